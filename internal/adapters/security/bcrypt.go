package security

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"auth-session-service/internal/domain"
)

// BcryptHasher implements password hashing via bcrypt.
// Cost is configurable so security/performance can be tuned by environment.
//
// Hashing is CPU-bound and a single computation at cost 12 takes hundreds of
// milliseconds; a weighted semaphore caps in-flight hashes at the worker
// count so a burst of logins queues here instead of stalling the accept path.
type BcryptHasher struct {
	cost    int
	workers *semaphore.Weighted
}

// NewBcryptHasher creates a bcrypt-based hasher with default fallback cost
// and a worker gate sized to the available CPUs.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{
		cost:    cost,
		workers: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}
}

func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := h.workers.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.workers.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare verifies password against hash, returning
// domain.ErrInvalidCredentials on mismatch. bcrypt's comparison does not
// short-circuit on the first differing byte, so timing does not leak the
// mismatch position.
func (h *BcryptHasher) Compare(ctx context.Context, hash, password string) error {
	if err := h.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	defer h.workers.Release(1)

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return err
	}
	return nil
}
