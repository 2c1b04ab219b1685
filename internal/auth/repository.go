package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

const (
	uniqueViolationCode     = "23505"
	usernameConstraintName  = "users_username_key"
	emailConstraintName     = "users_email_key"
	defaultStatementTimeout = 30 * time.Second
)

var ErrUserNotFound = errors.New("user not found")

// ConflictError reports which unique columns a rejected insert collided on.
type ConflictError struct {
	Username bool
	Email    bool
}

func (e *ConflictError) Error() string {
	switch {
	case e.Username && e.Email:
		return "username and email already exist"
	case e.Email:
		return "email already exists"
	default:
		return "username already exists"
	}
}

type Repository struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRepository binds the store to db. Every statement, including the wait
// for a pooled connection, runs under timeout.
func NewRepository(db *sqlx.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = defaultStatementTimeout
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) Create(ctx context.Context, user User) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, user.ID, user.Username, user.Email, user.PasswordHash, user.Active, user.CreatedAt)
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return r.classifyConflict(ctx, user, pgErr.ConstraintName)
	}
	return fmt.Errorf("insert user: %w", err)
}

// classifyConflict checks both unique columns because PostgreSQL only names
// the first constraint it trips.
func (r *Repository) classifyConflict(ctx context.Context, user User, constraint string) error {
	conflict := &ConflictError{}
	err := r.db.QueryRowxContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE username = $1),
			EXISTS (SELECT 1 FROM users WHERE email = $2)
	`, user.Username, user.Email).Scan(&conflict.Username, &conflict.Email)
	if err != nil || (!conflict.Username && !conflict.Email) {
		conflict.Username = constraint == usernameConstraintName
		conflict.Email = constraint == emailConstraintName
	}
	return conflict
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (User, error) {
	return r.findOne(ctx, "id", id)
}

func (r *Repository) FindByUsername(ctx context.Context, username string) (User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *Repository) findOne(ctx context.Context, column string, value any) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var user User
	err := r.db.GetContext(ctx, &user, `
		SELECT id, username, email, password_hash, active, code, access_token, created_at, updated_at
		FROM users
		WHERE `+column+` = $1
	`, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("query user by %s: %w", column, err)
	}
	return user, nil
}

func (r *Repository) UpdateCode(ctx context.Context, id uuid.UUID, code string) error {
	return r.updateColumn(ctx, "code", id, code)
}

func (r *Repository) UpdateAccessToken(ctx context.Context, id uuid.UUID, token string) error {
	return r.updateColumn(ctx, "access_token", id, token)
}

func (r *Repository) updateColumn(ctx context.Context, column string, id uuid.UUID, value string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET `+column+` = $2, updated_at = NOW()
		WHERE id = $1
	`, id, value)
	if err != nil {
		return fmt.Errorf("update user %s: %w", column, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user %s rows affected: %w", column, err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AccessToken returns the stored upstream token; ok is false when the user
// never completed the bank connection.
func (r *Repository) AccessToken(ctx context.Context, id uuid.UUID) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var token sql.NullString
	err := r.db.QueryRowxContext(ctx, `SELECT access_token FROM users WHERE id = $1`, id).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, ErrUserNotFound
		}
		return "", false, fmt.Errorf("query access token: %w", err)
	}
	if !token.Valid || token.String == "" {
		return "", false, nil
	}
	return token.String, true, nil
}
