package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"auth-session-service/internal/adapters/security"
	"auth-session-service/internal/application"
	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

func TestRegisterReturnsTokenPair(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	res, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "a@x.com",
		Password: "Secur3!Pass",
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if res.User.UserID == uuid.Nil {
		t.Fatal("register returned empty user id")
	}
	if res.User.Email != "a@x.com" {
		t.Fatalf("unexpected email: %q", res.User.Email)
	}
	if res.Tokens.AccessToken == "" || res.Tokens.RefreshToken == "" {
		t.Fatal("register must return a full token pair")
	}
	if res.Tokens.ExpiresIn != 900 {
		t.Fatalf("expiresIn = %d, want 900", res.Tokens.ExpiresIn)
	}

	stored := f.store.get(t, res.User.UserID)
	if stored.RefreshToken == nil || *stored.RefreshToken != res.Tokens.RefreshToken {
		t.Fatal("register must persist the issued refresh token")
	}
	if len(f.outbox.events) != 1 || f.outbox.events[0].EventType != "auth.user.registered" {
		t.Fatalf("expected one registration event, got %+v", f.outbox.events)
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	f.register(t, "a@x.com", "Secur3!Pass")
	_, err := f.service.Register(ctx, application.RegisterRequest{
		Email:    "A@X.com", // normalization makes this the same account
		Password: "Secur3!Pass",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginUnknownEmailFailsLikeWrongPassword(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Login(ctx, application.LoginRequest{Email: "ghost@x.com", Password: "whatever1!A"})
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if f.store.writes() != 0 {
		t.Fatal("unknown email must not write anything")
	}
}

func TestLoginRevokesPriorSession(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	first := f.register(t, "a@x.com", "Secur3!Pass")

	second, err := f.service.Login(ctx, application.LoginRequest{Email: "a@x.com", Password: "Secur3!Pass"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if second.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Fatal("login must mint a fresh refresh token")
	}
	if second.User.LastLogin == nil {
		t.Fatal("login must stamp last_login")
	}

	// The register-time token was rotated away by the second login.
	_, err = f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: first.Tokens.RefreshToken})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for revoked token, got %v", err)
	}
}

func TestFiveFailuresLockTheAccount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "a@x.com", "Secur3!Pass")

	for i := 0; i < 5; i++ {
		_, err := f.service.Login(ctx, application.LoginRequest{Email: "a@x.com", Password: "wrong-Pass1!"})
		if !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}

	stored := f.store.get(t, res.User.UserID)
	if stored.FailedLoginAttempts != 5 {
		t.Fatalf("failed attempts = %d, want 5", stored.FailedLoginAttempts)
	}
	if stored.AccountLockedUntil == nil {
		t.Fatal("fifth failure must set the lock")
	}

	// Correct password is irrelevant during an active lock.
	_, err := f.service.Login(ctx, application.LoginRequest{Email: "a@x.com", Password: "Secur3!Pass"})
	if !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	var lockEvents int
	for _, ev := range f.outbox.events {
		if ev.EventType == "auth.account.locked" {
			lockEvents++
		}
	}
	if lockEvents != 1 {
		t.Fatalf("expected exactly one lock event, got %d", lockEvents)
	}
}

func TestElapsedLockReopensAndSuccessResetsState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "a@x.com", "Secur3!Pass")

	for i := 0; i < 5; i++ {
		_, _ = f.service.Login(ctx, application.LoginRequest{Email: "a@x.com", Password: "wrong-Pass1!"})
	}

	// Let the lock window elapse without any expiry job running.
	f.store.expireLock(t, res.User.UserID)

	loginRes, err := f.service.Login(ctx, application.LoginRequest{Email: "a@x.com", Password: "Secur3!Pass"})
	if err != nil {
		t.Fatalf("login after elapsed lock failed: %v", err)
	}
	if loginRes.Tokens.AccessToken == "" {
		t.Fatal("expected tokens after reopened login")
	}

	stored := f.store.get(t, res.User.UserID)
	if stored.FailedLoginAttempts != 0 || stored.AccountLockedUntil != nil {
		t.Fatalf("success must reset lockout state, got attempts=%d locked=%v",
			stored.FailedLoginAttempts, stored.AccountLockedUntil)
	}
}

func TestRefreshRotationIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "a@x.com", "Secur3!Pass")

	rotated, err := f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: res.Tokens.RefreshToken})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.Tokens.RefreshToken == res.Tokens.RefreshToken {
		t.Fatal("refresh must return a different refresh token")
	}

	_, err = f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: res.Tokens.RefreshToken})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("replaying a consumed token: expected ErrInvalidToken, got %v", err)
	}

	// The replacement chain keeps working.
	if _, err := f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: rotated.Tokens.RefreshToken}); err != nil {
		t.Fatalf("refresh with rotated token failed: %v", err)
	}
}

func TestRefreshRejectsGarbageAndAccessTokens(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "a@x.com", "Secur3!Pass")

	if _, err := f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: "not-a-jwt"}); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
	// A correctly signed access token is still not a refresh token.
	if _, err := f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: res.Tokens.AccessToken}); !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for access token, got %v", err)
	}
}

func TestLogoutClearsSessionAndIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	res := f.register(t, "a@x.com", "Secur3!Pass")

	if err := f.service.Logout(ctx, res.User.UserID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}
	if err := f.service.Logout(ctx, res.User.UserID); err != nil {
		t.Fatalf("second logout failed: %v", err)
	}
	if err := f.service.Logout(ctx, uuid.New()); err != nil {
		t.Fatalf("logout for unknown user must still ack, got %v", err)
	}

	_, err := f.service.Refresh(ctx, application.RefreshRequest{RefreshToken: res.Tokens.RefreshToken})
	if !errors.Is(err, domain.ErrInvalidToken) {
		t.Fatalf("refresh after logout: expected ErrInvalidToken, got %v", err)
	}
}

func TestRegisterRejectsMalformedInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.service.Register(ctx, application.RegisterRequest{Email: "", Password: "Secur3!Pass"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("empty email: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.service.Register(ctx, application.RegisterRequest{Email: "not-an-email", Password: "Secur3!Pass"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("bad email: expected ErrInvalidInput, got %v", err)
	}
	if _, err := f.service.Register(ctx, application.RegisterRequest{Email: "a@x.com", Password: "short1!"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("weak password: expected ErrInvalidInput, got %v", err)
	}
}

// --- fixture ---

type fixture struct {
	service *application.Service
	store   *fakeStore
	outbox  *fakeOutbox
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	issuer, err := security.NewJWTIssuer(security.JWTConfig{
		AccessSecret:  "unit-access-secret",
		RefreshSecret: "unit-refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("build issuer: %v", err)
	}

	outbox := &fakeOutbox{}
	store := newFakeStore(outbox)
	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			FailedLoginThreshold: 5,
			LockoutDuration:      15 * time.Minute,
			RefreshTokenTTL:      7 * 24 * time.Hour,
		},
		Users:  store,
		Outbox: outbox,
		Hasher: security.NewBcryptHasher(4), // low cost keeps the suite fast
		Tokens: issuer,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &fixture{service: svc, store: store, outbox: outbox}
}

func (f *fixture) register(t *testing.T, email, password string) application.RegisterResponse {
	t.Helper()
	res, err := f.service.Register(context.Background(), application.RegisterRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

// --- fakes ---

type fakeStore struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]domain.User
	byEmail    map[string]uuid.UUID
	outbox     *fakeOutbox
	writeCount int
}

func newFakeStore(outbox *fakeOutbox) *fakeStore {
	return &fakeStore{
		byID:    make(map[uuid.UUID]domain.User),
		byEmail: make(map[string]uuid.UUID),
		outbox:  outbox,
	}
}

func (s *fakeStore) get(t *testing.T, userID uuid.UUID) domain.User {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		t.Fatalf("no stored user %s", userID)
	}
	return user
}

func (s *fakeStore) expireLock(t *testing.T, userID uuid.UUID) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		t.Fatalf("no stored user %s", userID)
	}
	past := time.Now().UTC().Add(-time.Second)
	user.AccountLockedUntil = &past
	s.byID[userID] = user
}

func (s *fakeStore) writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeCount
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEmail[email]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return s.byID[id], nil
}

func (s *fakeStore) GetByID(_ context.Context, userID uuid.UUID) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return user, nil
}

func (s *fakeStore) Create(ctx context.Context, params ports.CreateUserParams, event ports.OutboxEvent) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[params.Email]; taken {
		return domain.User{}, domain.ErrConflict
	}
	_ = s.outbox.Enqueue(ctx, event)
	user := domain.User{
		UserID:       uuid.New(),
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    params.RegisteredAtUTC,
		UpdatedAt:    params.RegisteredAtUTC,
	}
	s.byID[user.UserID] = user
	s.byEmail[user.Email] = user.UserID
	s.writeCount++
	return user, nil
}

func (s *fakeStore) RecordLoginFailure(_ context.Context, userID uuid.UUID, threshold int, lockedUntil time.Time) (domain.LockoutState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return domain.LockoutState{}, domain.ErrNotFound
	}
	user.FailedLoginAttempts++
	state := domain.LockoutState{FailedAttempts: user.FailedLoginAttempts}
	if user.FailedLoginAttempts >= threshold {
		until := lockedUntil
		user.AccountLockedUntil = &until
		state.LockedUntil = &until
	}
	s.byID[userID] = user
	s.writeCount++
	return state, nil
}

func (s *fakeStore) ResetLockout(_ context.Context, userID uuid.UUID) error {
	return s.mutate(userID, func(u *domain.User) {
		u.FailedLoginAttempts = 0
		u.AccountLockedUntil = nil
	})
}

func (s *fakeStore) UpdateSession(_ context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error {
	return s.mutate(userID, func(u *domain.User) {
		token := refreshToken
		expiry := expiresAt
		u.RefreshToken = &token
		u.RefreshTokenExpiry = &expiry
	})
}

func (s *fakeStore) RotateSession(_ context.Context, userID uuid.UUID, presented, replacement string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if user.RefreshToken == nil || *user.RefreshToken != presented {
		return domain.ErrInvalidToken
	}
	if user.RefreshTokenExpiry == nil || !user.RefreshTokenExpiry.After(time.Now().UTC()) {
		return domain.ErrInvalidToken
	}
	token := replacement
	expiry := expiresAt
	user.RefreshToken = &token
	user.RefreshTokenExpiry = &expiry
	s.byID[userID] = user
	s.writeCount++
	return nil
}

func (s *fakeStore) ClearSession(_ context.Context, userID uuid.UUID) error {
	return s.mutate(userID, func(u *domain.User) {
		u.RefreshToken = nil
		u.RefreshTokenExpiry = nil
	})
}

func (s *fakeStore) TouchLastLogin(_ context.Context, userID uuid.UUID, at time.Time) error {
	return s.mutate(userID, func(u *domain.User) {
		stamp := at
		u.LastLogin = &stamp
	})
}

func (s *fakeStore) mutate(userID uuid.UUID, apply func(*domain.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	apply(&user)
	s.byID[userID] = user
	s.writeCount++
	return nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (o *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }

func (o *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (o *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
