package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

// PostgresAuditRepo writes immutable records into the activity_logs table.
// It implements domain.AuditLogger: a failed insert is logged and
// swallowed, never propagated to the operation being audited.
type PostgresAuditRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresAuditRepo creates a new repository instance.
func NewPostgresAuditRepo(db *sql.DB, logger *zap.Logger) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db, logger: logger}
}

// Record inserts one audit event.
func (r *PostgresAuditRepo) Record(ctx context.Context, userID, action string, details map[string]any, meta domain.RequestMeta) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		detailsJSON = []byte("{}")
	}

	query := `
		INSERT INTO activity_logs (user_id, action, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	// The schema allows user_id to be NULL (e.g. anonymous failed login).
	_, err = r.db.ExecContext(ctx, query,
		nullableString(userID),
		action,
		detailsJSON,
		nullableString(meta.IP),
		nullableString(meta.UserAgent),
		time.Now(),
	)
	if err != nil {
		r.logger.Error("audit insert failed",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
