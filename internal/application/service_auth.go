package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

// Register creates a credential record and opens the account's first session.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return RegisterResponse{}, err
	}
	if err := domain.ValidatePassword(req.Password); err != nil {
		return RegisterResponse{}, err
	}

	passwordHash, err := s.hasher.Hash(ctx, req.Password)
	if err != nil {
		return RegisterResponse{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"email":         email,
		"registered_at": now,
	})
	user, err := s.users.Create(ctx, ports.CreateUserParams{
		Email:           email,
		PasswordHash:    passwordHash,
		RegisteredAtUTC: now,
	}, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeUserRegistered,
		PartitionKey: email,
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return RegisterResponse{}, domain.ErrConflict
		}
		return RegisterResponse{}, fmt.Errorf("create user: %w", err)
	}

	tokens, err := s.openSession(ctx, user)
	if err != nil {
		return RegisterResponse{}, err
	}
	return RegisterResponse{User: summarize(user), Tokens: tokens}, nil
}

// Login authenticates a password and replaces whatever session the account
// had with a fresh one. Failure ordering is deliberate: the lock gate runs
// before password verification, and an unknown email reads nothing else and
// fails exactly like a wrong password.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResponse, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return LoginResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return LoginResponse{}, domain.ErrInvalidCredentials
		}
		return LoginResponse{}, fmt.Errorf("load user: %w", err)
	}

	now := s.nowFn()
	if s.policy.Evaluate(user.LockoutState(), now) == domain.LockoutReject {
		return LoginResponse{}, domain.ErrAccountLocked
	}

	if err := s.hasher.Compare(ctx, user.PasswordHash, req.Password); err != nil {
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			return LoginResponse{}, fmt.Errorf("verify password: %w", err)
		}
		s.recordFailedAttempt(ctx, user)
		return LoginResponse{}, domain.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.AccountLockedUntil != nil {
		if err := s.users.ResetLockout(ctx, user.UserID); err != nil {
			return LoginResponse{}, fmt.Errorf("reset lockout: %w", err)
		}
	}
	if err := s.users.TouchLastLogin(ctx, user.UserID, now); err != nil {
		return LoginResponse{}, fmt.Errorf("touch last login: %w", err)
	}
	user.LastLogin = &now

	tokens, err := s.openSession(ctx, user)
	if err != nil {
		return LoginResponse{}, err
	}
	return LoginResponse{User: summarize(user), Tokens: tokens}, nil
}

// Refresh rotates a session: the presented refresh token is consumed and a
// brand-new pair takes its place. A token that was already rotated away or
// cleared fails InvalidToken even while its own signature is still valid.
func (s *Service) Refresh(ctx context.Context, req RefreshRequest) (RefreshResponse, error) {
	claims, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return RefreshResponse{}, domain.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return RefreshResponse{}, domain.ErrInvalidToken
		}
		return RefreshResponse{}, fmt.Errorf("load user: %w", err)
	}

	pair, err := s.tokens.IssuePair(user.UserID, user.Email)
	if err != nil {
		return RefreshResponse{}, fmt.Errorf("issue token pair: %w", err)
	}

	expiresAt := s.nowFn().Add(s.cfg.RefreshTokenTTL)
	if err := s.users.RotateSession(ctx, user.UserID, req.RefreshToken, pair.RefreshToken, expiresAt); err != nil {
		if errors.Is(err, domain.ErrInvalidToken) || errors.Is(err, domain.ErrNotFound) {
			return RefreshResponse{}, domain.ErrInvalidToken
		}
		return RefreshResponse{}, fmt.Errorf("rotate session: %w", err)
	}

	return RefreshResponse{Tokens: TokenBundle{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}}, nil
}

// Logout clears the stored refresh token. Logging out an account with no
// session, or one whose record is already gone, acknowledges all the same.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.ClearSession(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("clear session: %w", err)
	}

	now := s.nowFn()
	payload, _ := json.Marshal(map[string]any{
		"user_id":    userID,
		"cleared_at": now,
	})
	s.enqueueEvent(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeSessionCleared,
		PartitionKey: userID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
	return nil
}

// openSession issues a pair and persists its refresh token as the account's
// only valid one, revoking any prior session implicitly.
func (s *Service) openSession(ctx context.Context, user domain.User) (TokenBundle, error) {
	pair, err := s.tokens.IssuePair(user.UserID, user.Email)
	if err != nil {
		return TokenBundle{}, fmt.Errorf("issue token pair: %w", err)
	}

	expiresAt := s.nowFn().Add(s.cfg.RefreshTokenTTL)
	if err := s.users.UpdateSession(ctx, user.UserID, pair.RefreshToken, expiresAt); err != nil {
		return TokenBundle{}, fmt.Errorf("persist session: %w", err)
	}

	return TokenBundle{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

// recordFailedAttempt commits the counter transition store-side and emits a
// lock event when this failure crossed the threshold. The caller has already
// decided the request outcome; errors here are logged, not surfaced, so a
// counter hiccup cannot change an InvalidCredentials response.
func (s *Service) recordFailedAttempt(ctx context.Context, user domain.User) {
	now := s.nowFn()
	state, err := s.users.RecordLoginFailure(ctx, user.UserID, s.policy.Threshold, s.policy.LockExpiry(now))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist login failure",
			"module", "application",
			"layer", "application",
			"operation", "record_login_failure",
			"outcome", "failure",
			"user_id", user.UserID,
			"error", err,
		)
		return
	}

	if state.LockedUntil == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"user_id":      user.UserID,
		"locked_until": state.LockedUntil,
		"attempts":     state.FailedAttempts,
	})
	s.enqueueEvent(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventTypeAccountLocked,
		PartitionKey: user.UserID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
}
