package postgres

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"auth-session-service/internal/domain"
)

func toDomainUser(rec userModel) domain.User {
	return domain.User{
		UserID:              rec.UserID,
		Email:               rec.Email,
		PasswordHash:        rec.PasswordHash,
		RefreshToken:        rec.RefreshToken,
		RefreshTokenExpiry:  rec.RefreshTokenExpiry,
		FailedLoginAttempts: rec.FailedLoginAttempts,
		AccountLockedUntil:  rec.AccountLockedUntil,
		LastLogin:           rec.LastLogin,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}
}

// isUniqueViolation recognizes duplicate-key failures across gorm's
// translated error and the raw Postgres code.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "SQLSTATE 23505")
}
