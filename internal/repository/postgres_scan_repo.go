package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

// PostgresScanRepo implements domain.ScanRepository using PostgreSQL.
// Content arrives already encrypted; this layer never sees plaintext.
type PostgresScanRepo struct {
	db *sql.DB
}

// NewPostgresScanRepo creates a new repository instance.
func NewPostgresScanRepo(db *sql.DB) *PostgresScanRepo {
	return &PostgresScanRepo{db: db}
}

// Save inserts a scan record and returns its generated id.
func (r *PostgresScanRepo) Save(ctx context.Context, scan *domain.Scan) (string, error) {
	reasons, err := json.Marshal(scan.Reasons)
	if err != nil {
		return "", fmt.Errorf("marshal reasons: %w", err)
	}

	query := `
		INSERT INTO scans (user_id, type, content, is_phishing, score, reasons, signature, encryption_key, sealed_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		scan.UserID,
		string(scan.Type),
		scan.EncryptedContent,
		scan.IsPhishing,
		scan.Score,
		reasons,
		scan.Signature,
		nullableString(scan.EncryptionKey),
		nullableString(scan.SealedKey),
		scan.CreatedAt,
	).Scan(&scan.ID)

	if err != nil {
		return "", fmt.Errorf("failed to save scan: %w", err)
	}
	return scan.ID, nil
}

const scanColumns = `
	SELECT id, user_id, type, content, is_phishing, score, reasons, signature,
	       COALESCE(encryption_key, ''), COALESCE(sealed_key, ''), created_at
	FROM scans
`

func scanRow(scanner interface{ Scan(...any) error }) (*domain.Scan, error) {
	scan := &domain.Scan{}
	var reasons []byte
	err := scanner.Scan(
		&scan.ID,
		&scan.UserID,
		&scan.Type,
		&scan.EncryptedContent,
		&scan.IsPhishing,
		&scan.Score,
		&reasons,
		&scan.Signature,
		&scan.EncryptionKey,
		&scan.SealedKey,
		&scan.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := json.Unmarshal(reasons, &scan.Reasons); err != nil {
		scan.Reasons = nil
	}
	return scan, nil
}

// GetByID fetches a single scan, scoped to its owner.
func (r *PostgresScanRepo) GetByID(ctx context.Context, userID, id string) (*domain.Scan, error) {
	return scanRow(r.db.QueryRowContext(ctx, scanColumns+` WHERE id = $1 AND user_id = $2`, id, userID))
}

// ListByUser returns a page of the user's scans, newest first, plus the
// total count for pagination.
func (r *PostgresScanRepo) ListByUser(ctx context.Context, userID string, scanType domain.ScanType, limit, offset int) ([]*domain.Scan, int, error) {
	query := scanColumns + ` WHERE user_id = $1`
	countQuery := `SELECT COUNT(*) FROM scans WHERE user_id = $1`
	args := []any{userID}

	if scanType.Valid() {
		query += ` AND type = $2`
		countQuery += ` AND type = $2`
		args = append(args, string(scanType))
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d OFFSET %d`, limit, offset)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var scans []*domain.Scan
	for rows.Next() {
		scan, err := scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		scans = append(scans, scan)
	}
	return scans, total, rows.Err()
}
