package auth

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID           uuid.UUID      `db:"id"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	PasswordHash string         `db:"password_hash"`
	Active       bool           `db:"active"`
	Code         sql.NullString `db:"code"`
	AccessToken  sql.NullString `db:"access_token"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// Profile is the outward view of a user. Secrets never leave the service.
type Profile struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email"`
	Active        bool      `json:"active"`
	BankConnected bool      `json:"bank_connected"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Active:        u.Active,
		BankConnected: u.AccessToken.Valid && u.AccessToken.String != "",
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

type SignupInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type LoginResult struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID uuid.UUID
}
