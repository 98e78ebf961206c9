package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is the credential record owned by the persistence collaborator.
// It carries only authentication state: the password hash, the single active
// refresh token, and the brute-force lockout counters.
type User struct {
	UserID       uuid.UUID
	Email        string
	PasswordHash string

	// RefreshToken and RefreshTokenExpiry together represent at most one
	// active session. RefreshToken == nil means no session.
	RefreshToken       *string
	RefreshTokenExpiry *time.Time

	FailedLoginAttempts int
	AccountLockedUntil  *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockoutState is the portion of the record the lockout policy decides over.
func (u User) LockoutState() LockoutState {
	return LockoutState{
		FailedAttempts: u.FailedLoginAttempts,
		LockedUntil:    u.AccountLockedUntil,
	}
}

// HasActiveSession reports whether a refresh token is currently stored,
// regardless of its expiry.
func (u User) HasActiveSession() bool {
	return u.RefreshToken != nil
}
