package domain

import "errors"

var (
	// ErrNotFound is returned when the requested resource does not exist.
	// Keeping this sentinel in domain allows adapters to map it consistently.
	ErrNotFound = errors.New("resource not found")
	// ErrConflict signals a duplicate registration (email already taken).
	ErrConflict = errors.New("conflict")
	// ErrInvalidCredentials hides whether email or password failed.
	// The reason is to prevent account-enumeration side channels.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked signals temporary lockout after repeated failed attempts.
	// This supports brute-force mitigation and a predictable user-facing response.
	ErrAccountLocked = errors.New("account locked")
	// ErrInvalidToken covers bad signature, expiry, wrong token class, and
	// revoked or rotated-away refresh tokens. Callers cannot distinguish
	// "expired" from "revoked" through this sentinel on purpose.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidInput marks request-shape problems caught before any flow runs.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInternal is the only persistence/crypto failure shape that crosses
	// the service boundary; detail stays in logs.
	ErrInternal = errors.New("internal error")
)
