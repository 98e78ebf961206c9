package domain

import "time"

// LockoutState is the persisted lockout envelope for one credential record.
type LockoutState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// LockoutDecision is the outcome of evaluating lockout state before an
// authentication attempt.
type LockoutDecision int

const (
	// LockoutProceed permits the attempt; password verification may run.
	LockoutProceed LockoutDecision = iota
	// LockoutReject blocks the attempt unconditionally until the lock expires.
	LockoutReject
)

// LockoutPolicy is pure decision logic over (failedAttempts, lockedUntil, now).
// It never touches storage; callers persist the states it produces.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// Evaluate decides whether an authentication attempt may proceed.
// An elapsed lock window re-opens the account lazily; there is no expiry job.
func (p LockoutPolicy) Evaluate(state LockoutState, now time.Time) LockoutDecision {
	if state.LockedUntil != nil && now.Before(*state.LockedUntil) {
		return LockoutReject
	}
	return LockoutProceed
}

// OnFailure produces the next persisted state after a failed password check.
// The counter increments; reaching the threshold sets the lock expiry. A lock
// that had already elapsed does not carry over into the new state.
func (p LockoutPolicy) OnFailure(state LockoutState, now time.Time) LockoutState {
	next := LockoutState{FailedAttempts: state.FailedAttempts + 1}
	if next.FailedAttempts >= p.Threshold {
		lockedUntil := now.Add(p.Duration)
		next.LockedUntil = &lockedUntil
	}
	return next
}

// OnSuccess produces the state persisted after a successful authentication:
// counter reset to zero, any stale lock timestamp cleared.
func (p LockoutPolicy) OnSuccess() LockoutState {
	return LockoutState{}
}

// LockExpiry returns the lock deadline a failure occurring at now would set,
// used by stores that apply the counter transition atomically.
func (p LockoutPolicy) LockExpiry(now time.Time) time.Time {
	return now.Add(p.Duration)
}
