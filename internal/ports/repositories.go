package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/domain"
)

// CreateUserParams captures atomic user-creation inputs.
type CreateUserParams struct {
	Email           string
	PasswordHash    string
	RegisteredAtUTC time.Time
}

// CredentialStore is the persistence collaborator holding credential records.
// Every method is a single atomic operation against one user row; the
// counter and rotation transitions happen store-side so two concurrent
// requests cannot lose an update (row lock or compare-and-swap, adapter's
// choice). A client disconnect mid-call must not leave a half-written pair
// of fields.
type CredentialStore interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error)

	// Create inserts a new credential record, and enqueues the given outbox
	// event in the same transaction when the backend supports one.
	// Returns domain.ErrConflict when the email is already taken.
	Create(ctx context.Context, params CreateUserParams, event OutboxEvent) (domain.User, error)

	// RecordLoginFailure atomically increments the failed-attempt counter and,
	// when the counter reaches threshold, sets the lock expiry to lockedUntil.
	// The resulting state is returned.
	RecordLoginFailure(ctx context.Context, userID uuid.UUID, threshold int, lockedUntil time.Time) (domain.LockoutState, error)

	// ResetLockout zeroes the counter and clears any lock timestamp.
	ResetLockout(ctx context.Context, userID uuid.UUID) error

	// UpdateSession stores refreshToken as the sole valid refresh token,
	// overwriting (and thereby revoking) whatever was stored before.
	UpdateSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error

	// RotateSession replaces the stored refresh token only if it currently
	// equals presented and has not passed its stored expiry. On any mismatch
	// it returns domain.ErrInvalidToken and leaves the record untouched.
	RotateSession(ctx context.Context, userID uuid.UUID, presented, replacement string, expiresAt time.Time) error

	// ClearSession removes the stored refresh token and its expiry.
	// Clearing an already-empty session is not an error.
	ClearSession(ctx context.Context, userID uuid.UUID) error

	TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
}
