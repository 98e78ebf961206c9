package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

// CredentialRepository is the Postgres-backed credential store.
// The counter and rotation transitions run inside transactions holding a
// row lock, so concurrent calls against the same user serialize here.
type CredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("email = ?", email).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, userID uuid.UUID) (domain.User, error) {
	var rec userModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, err
	}
	return toDomainUser(rec), nil
}

// Create inserts the credential record and its registration outbox event in
// one transaction, so user state and integration signal cannot diverge.
func (r *CredentialRepository) Create(ctx context.Context, params ports.CreateUserParams, event ports.OutboxEvent) (domain.User, error) {
	var result domain.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := userModel{
			Email:        params.Email,
			PasswordHash: params.PasswordHash,
			CreatedAt:    params.RegisteredAtUTC,
			UpdatedAt:    params.RegisteredAtUTC,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		payload := event.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		outbox := authOutboxModel{
			OutboxID:     event.EventID,
			EventType:    event.EventType,
			PartitionKey: rec.UserID.String(),
			Payload:      string(payload),
			CreatedAt:    event.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainUser(rec)
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return result, nil
}

// RecordLoginFailure increments the counter under a row lock and sets the
// lock expiry once the threshold is reached. Both fields commit together;
// a cancelled request can never persist the counter without its lock.
func (r *CredentialRepository) RecordLoginFailure(ctx context.Context, userID uuid.UUID, threshold int, lockedUntil time.Time) (domain.LockoutState, error) {
	var state domain.LockoutState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrNotFound
			}
			return err
		}

		updates := map[string]any{
			"failed_login_attempts": rec.FailedLoginAttempts + 1,
			"updated_at":            time.Now().UTC(),
		}
		state = domain.LockoutState{FailedAttempts: rec.FailedLoginAttempts + 1}
		if state.FailedAttempts >= threshold {
			updates["account_locked_until"] = lockedUntil
			until := lockedUntil
			state.LockedUntil = &until
		}
		return tx.Model(&userModel{}).Where("user_id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		return domain.LockoutState{}, err
	}
	return state, nil
}

func (r *CredentialRepository) ResetLockout(ctx context.Context, userID uuid.UUID) error {
	return r.updateOne(ctx, userID, map[string]any{
		"failed_login_attempts": 0,
		"account_locked_until":  nil,
		"updated_at":            time.Now().UTC(),
	})
}

func (r *CredentialRepository) UpdateSession(ctx context.Context, userID uuid.UUID, refreshToken string, expiresAt time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"refresh_token":        refreshToken,
		"refresh_token_expiry": expiresAt,
		"updated_at":           time.Now().UTC(),
	})
}

// RotateSession swaps the stored refresh token under a row lock. The stored
// value must match the presented token exactly and its stored expiry must
// still be in the future; otherwise the token was rotated away, cleared, or
// expired server-side, and the caller gets ErrInvalidToken.
func (r *CredentialRepository) RotateSession(ctx context.Context, userID uuid.UUID, presented, replacement string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec userModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrInvalidToken
			}
			return err
		}
		if rec.RefreshToken == nil || *rec.RefreshToken != presented {
			return domain.ErrInvalidToken
		}
		if rec.RefreshTokenExpiry == nil || !rec.RefreshTokenExpiry.After(time.Now().UTC()) {
			return domain.ErrInvalidToken
		}
		return tx.Model(&userModel{}).Where("user_id = ?", userID).Updates(map[string]any{
			"refresh_token":        replacement,
			"refresh_token_expiry": expiresAt,
			"updated_at":           time.Now().UTC(),
		}).Error
	})
}

func (r *CredentialRepository) ClearSession(ctx context.Context, userID uuid.UUID) error {
	return r.updateOne(ctx, userID, map[string]any{
		"refresh_token":        nil,
		"refresh_token_expiry": nil,
		"updated_at":           time.Now().UTC(),
	})
}

func (r *CredentialRepository) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, userID, map[string]any{
		"last_login": at,
		"updated_at": at,
	})
}

func (r *CredentialRepository) updateOne(ctx context.Context, userID uuid.UUID, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&userModel{}).Where("user_id = ?", userID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
