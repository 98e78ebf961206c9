package domain

import (
	"testing"
	"time"
)

func TestLockoutPolicyCountsUpToThreshold(t *testing.T) {
	t.Parallel()

	policy := LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	state := LockoutState{}
	for i := 1; i <= 4; i++ {
		state = policy.OnFailure(state, now)
		if state.FailedAttempts != i {
			t.Fatalf("attempt %d: counter = %d", i, state.FailedAttempts)
		}
		if state.LockedUntil != nil {
			t.Fatalf("attempt %d: locked before threshold", i)
		}
		if policy.Evaluate(state, now) != LockoutProceed {
			t.Fatalf("attempt %d: expected open account", i)
		}
	}

	state = policy.OnFailure(state, now)
	if state.FailedAttempts != 5 {
		t.Fatalf("counter = %d after fifth failure", state.FailedAttempts)
	}
	if state.LockedUntil == nil {
		t.Fatal("fifth failure should set the lock")
	}
	if want := now.Add(15 * time.Minute); !state.LockedUntil.Equal(want) {
		t.Fatalf("locked until %v, want %v", state.LockedUntil, want)
	}
	if policy.Evaluate(state, now) != LockoutReject {
		t.Fatal("expected locked account after fifth failure")
	}
}

func TestLockoutPolicyLazyExpiry(t *testing.T) {
	t.Parallel()

	policy := LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	lockedUntil := now.Add(15 * time.Minute)
	state := LockoutState{FailedAttempts: 5, LockedUntil: &lockedUntil}

	if policy.Evaluate(state, now.Add(14*time.Minute)) != LockoutReject {
		t.Fatal("lock should hold inside the window")
	}
	if policy.Evaluate(state, lockedUntil) != LockoutProceed {
		t.Fatal("lock should open exactly at expiry")
	}
	if policy.Evaluate(state, now.Add(time.Hour)) != LockoutProceed {
		t.Fatal("lock should open after expiry")
	}
}

func TestLockoutPolicyOnSuccessResets(t *testing.T) {
	t.Parallel()

	policy := LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	state := policy.OnSuccess()
	if state.FailedAttempts != 0 || state.LockedUntil != nil {
		t.Fatalf("success must clear counter and lock, got %+v", state)
	}
}

func TestLockoutPolicyFailureAfterElapsedLockRestartsCount(t *testing.T) {
	t.Parallel()

	policy := LockoutPolicy{Threshold: 5, Duration: 15 * time.Minute}
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)

	// A stale lock must not leak into the next persisted state.
	next := policy.OnFailure(LockoutState{FailedAttempts: 5, LockedUntil: &expired}, now)
	if next.LockedUntil == nil {
		t.Fatal("sixth failure crosses the threshold again and relocks")
	}
	if !next.LockedUntil.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("relock should use a fresh window, got %v", next.LockedUntil)
	}
}
