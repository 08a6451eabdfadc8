package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aphrodite-labs/phishguard/internal/domain"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// PostgresUserRepo implements domain.UserRepository using PostgreSQL.
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo creates a new repository instance.
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `
	SELECT u.id, u.email, u.password_hash, r.name,
	       u.email_otp_enabled, u.totp_enabled, COALESCE(u.totp_secret, ''),
	       u.created_at, u.updated_at
	FROM users u
	JOIN roles r ON u.role_id = r.id
`

func (r *PostgresUserRepo) scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.EmailOTPEnabled,
		&user.TOTPEnabled,
		&user.TOTPSecret,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return user, nil
}

// GetByEmail retrieves a user by their email address, joining with the
// roles table to get the role name directly and avoid N+1 queries.
func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userColumns+` WHERE u.email = $1`, email))
}

// GetByID retrieves a user by their UUID.
func (r *PostgresUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.scanUser(r.db.QueryRowContext(ctx, userColumns+` WHERE u.id = $1`, id))
}

// Create inserts a new user into the database.
func (r *PostgresUserRepo) Create(ctx context.Context, user *domain.User) error {
	// 1. Resolve Role Name to ID
	var roleID string
	err := r.db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name = $1", user.Role).Scan(&roleID)
	if err != nil {
		return fmt.Errorf("role '%s' not found: %w", user.Role, err)
	}

	// 2. Insert User
	query := `
		INSERT INTO users (email, password_hash, role_id, email_otp_enabled, totp_enabled, totp_secret, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	err = r.db.QueryRowContext(ctx, query,
		user.Email,
		user.PasswordHash,
		roleID,
		user.EmailOTPEnabled,
		user.TOTPEnabled,
		nullableString(user.TOTPSecret),
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// UpdateTOTP persists the TOTP secret and enabled flag for a user. An
// empty secret clears the column.
func (r *PostgresUserRepo) UpdateTOTP(ctx context.Context, userID, secret string, enabled bool) error {
	query := `
		UPDATE users
		SET totp_secret = $1, totp_enabled = $2, updated_at = $3
		WHERE id = $4
	`

	result, err := r.db.ExecContext(ctx, query, nullableString(secret), enabled, time.Now(), userID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// UpdateEmailOTP toggles the email OTP factor for a user.
func (r *PostgresUserRepo) UpdateEmailOTP(ctx context.Context, userID string, enabled bool) error {
	query := `
		UPDATE users
		SET email_otp_enabled = $1, updated_at = $2
		WHERE id = $3
	`

	result, err := r.db.ExecContext(ctx, query, enabled, time.Now(), userID)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireRow(result sql.Result) error {
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
