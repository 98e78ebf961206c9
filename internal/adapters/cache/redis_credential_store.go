package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

const (
	userKeyPrefix  = "auth:user:"
	emailKeyPrefix = "auth:user_email:"

	// casRetries bounds optimistic retries when a WATCHed key changes
	// between read and commit.
	casRetries = 5
)

// RedisCredentialStore keeps credential records in Redis hashes with a
// separate email index key. Multi-field transitions run under WATCH so two
// concurrent logins against the same record cannot interleave.
type RedisCredentialStore struct {
	client *redis.Client
	outbox *RedisOutboxRepository
	now    func() time.Time
}

// NewRedisCredentialStore creates a credential store backed by Redis hashes.
func NewRedisCredentialStore(client *redis.Client) *RedisCredentialStore {
	return &RedisCredentialStore{
		client: client,
		outbox: NewRedisOutboxRepository(client),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func userKey(userID uuid.UUID) string { return userKeyPrefix + userID.String() }

func emailKey(email string) string { return emailKeyPrefix + email }

func (s *RedisCredentialStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	id, err := s.client.Get(ctx, emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("resolve email index: %w", err)
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return domain.User{}, fmt.Errorf("corrupt email index for %q: %w", email, err)
	}
	return s.GetByID(ctx, userID)
}

func (s *RedisCredentialStore) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	data, err := s.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("load user hash: %w", err)
	}
	if len(data) == 0 {
		return domain.User{}, domain.ErrNotFound
	}
	return decodeUser(userID, data)
}

func (s *RedisCredentialStore) Create(ctx context.Context, params ports.CreateUserParams, event ports.OutboxEvent) (domain.User, error) {
	userID := uuid.New()
	at := params.RegisteredAtUTC

	// The email index key is the uniqueness guard; whoever sets it first
	// owns the address.
	claimed, err := s.client.SetNX(ctx, emailKey(params.Email), userID.String(), 0).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("claim email index: %w", err)
	}
	if !claimed {
		return domain.User{}, domain.ErrConflict
	}

	user := domain.User{
		UserID:       userID,
		Email:        params.Email,
		PasswordHash: params.PasswordHash,
		CreatedAt:    at,
		UpdatedAt:    at,
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, userKey(userID), encodeUser(user))
		s.outbox.enqueuePipelined(ctx, p, event)
		return nil
	})
	if err != nil {
		// Release the index so the address is not stranded behind a
		// half-created record.
		_ = s.client.Del(ctx, emailKey(params.Email)).Err()
		return domain.User{}, fmt.Errorf("write user hash: %w", err)
	}
	return user, nil
}

func (s *RedisCredentialStore) RecordLoginFailure(ctx context.Context, userID uuid.UUID, threshold int, lockedUntil time.Time) (domain.LockoutState, error) {
	key := userKey(userID)
	var state domain.LockoutState

	transition := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return domain.ErrNotFound
		}
		user, err := decodeUser(userID, data)
		if err != nil {
			return err
		}

		attempts := user.FailedLoginAttempts + 1
		state = domain.LockoutState{FailedAttempts: attempts}

		fields := map[string]interface{}{
			"failed_attempts": attempts,
			"updated_at":      s.now().UnixNano(),
		}
		if attempts >= threshold {
			fields["locked_until"] = lockedUntil.UnixNano()
			until := lockedUntil
			state.LockedUntil = &until
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key, fields)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.client.Watch(ctx, transition, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.LockoutState{}, err
		}
		return state, nil
	}
	return domain.LockoutState{}, fmt.Errorf("record login failure for %s: %w", userID, redis.TxFailedErr)
}

func (s *RedisCredentialStore) ResetLockout(ctx context.Context, userID uuid.UUID) error {
	return s.mutateExisting(ctx, userID, func(p redis.Pipeliner, key string) {
		p.HSet(ctx, key, "failed_attempts", 0, "updated_at", s.now().UnixNano())
		p.HDel(ctx, key, "locked_until")
	})
}

func (s *RedisCredentialStore) UpdateSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error {
	return s.mutateExisting(ctx, userID, func(p redis.Pipeliner, key string) {
		p.HSet(ctx, key,
			"refresh_token", refreshToken,
			"refresh_expiry", expiresAt.UnixNano(),
			"updated_at", s.now().UnixNano(),
		)
	})
}

func (s *RedisCredentialStore) RotateSession(ctx context.Context, userID uuid.UUID, presented, replacement string, expiresAt time.Time) error {
	key := userKey(userID)

	transition := func(tx *redis.Tx) error {
		data, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return domain.ErrNotFound
		}

		stored := data["refresh_token"]
		if stored == "" || stored != presented {
			return domain.ErrInvalidToken
		}
		expiry, err := decodeTime(data["refresh_expiry"])
		if err != nil || expiry == nil || !expiry.After(s.now()) {
			return domain.ErrInvalidToken
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, key,
				"refresh_token", replacement,
				"refresh_expiry", expiresAt.UnixNano(),
				"updated_at", s.now().UnixNano(),
			)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < casRetries; attempt++ {
		err := s.client.Watch(ctx, transition, key)
		if errors.Is(err, redis.TxFailedErr) {
			// A concurrent writer touched the record; the presented token
			// may have just been rotated away. Re-evaluating is correct
			// either way.
			continue
		}
		return err
	}
	return fmt.Errorf("rotate session for %s: %w", userID, redis.TxFailedErr)
}

func (s *RedisCredentialStore) ClearSession(ctx context.Context, userID uuid.UUID) error {
	return s.mutateExisting(ctx, userID, func(p redis.Pipeliner, key string) {
		p.HDel(ctx, key, "refresh_token", "refresh_expiry")
		p.HSet(ctx, key, "updated_at", s.now().UnixNano())
	})
}

func (s *RedisCredentialStore) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return s.mutateExisting(ctx, userID, func(p redis.Pipeliner, key string) {
		p.HSet(ctx, key, "last_login", at.UnixNano(), "updated_at", s.now().UnixNano())
	})
}

// mutateExisting applies a blind multi-field write after confirming the
// record exists, so absent users surface as domain.ErrNotFound instead of
// silently materializing a partial hash.
func (s *RedisCredentialStore) mutateExisting(ctx context.Context, userID uuid.UUID, apply func(p redis.Pipeliner, key string)) error {
	key := userKey(userID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		apply(p, key)
		return nil
	})
	return err
}

func encodeUser(u domain.User) map[string]interface{} {
	fields := map[string]interface{}{
		"email":           u.Email,
		"password_hash":   u.PasswordHash,
		"failed_attempts": u.FailedLoginAttempts,
		"created_at":      u.CreatedAt.UnixNano(),
		"updated_at":      u.UpdatedAt.UnixNano(),
	}
	if u.RefreshToken != nil {
		fields["refresh_token"] = *u.RefreshToken
	}
	if u.RefreshTokenExpiry != nil {
		fields["refresh_expiry"] = u.RefreshTokenExpiry.UnixNano()
	}
	if u.AccountLockedUntil != nil {
		fields["locked_until"] = u.AccountLockedUntil.UnixNano()
	}
	if u.LastLogin != nil {
		fields["last_login"] = u.LastLogin.UnixNano()
	}
	return fields
}

func decodeUser(userID uuid.UUID, data map[string]string) (domain.User, error) {
	user := domain.User{
		UserID:       userID,
		Email:        data["email"],
		PasswordHash: data["password_hash"],
	}
	if raw, ok := data["failed_attempts"]; ok && raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return domain.User{}, fmt.Errorf("corrupt failed_attempts for %s: %w", userID, err)
		}
		user.FailedLoginAttempts = n
	}
	if raw, ok := data["refresh_token"]; ok && raw != "" {
		token := raw
		user.RefreshToken = &token
	}

	var err error
	if user.RefreshTokenExpiry, err = decodeTime(data["refresh_expiry"]); err != nil {
		return domain.User{}, fmt.Errorf("corrupt refresh_expiry for %s: %w", userID, err)
	}
	if user.AccountLockedUntil, err = decodeTime(data["locked_until"]); err != nil {
		return domain.User{}, fmt.Errorf("corrupt locked_until for %s: %w", userID, err)
	}
	if user.LastLogin, err = decodeTime(data["last_login"]); err != nil {
		return domain.User{}, fmt.Errorf("corrupt last_login for %s: %w", userID, err)
	}
	if created, decodeErr := decodeTime(data["created_at"]); decodeErr == nil && created != nil {
		user.CreatedAt = *created
	}
	if updated, decodeErr := decodeTime(data["updated_at"]); decodeErr == nil && updated != nil {
		user.UpdatedAt = *updated
	}
	return user, nil
}

func decodeTime(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	t := time.Unix(0, nanos).UTC()
	return &t, nil
}
