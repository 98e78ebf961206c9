package application

import (
	"time"

	"github.com/google/uuid"
)

type Config struct {
	FailedLoginThreshold int
	LockoutDuration      time.Duration
	RefreshTokenTTL      time.Duration
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserSummary is the public projection of a credential record. The password
// hash and session fields never leave the service.
type UserSummary struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// TokenBundle is one issued access/refresh pair. ExpiresIn is the access
// token lifetime in seconds.
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RegisterResponse struct {
	User   UserSummary `json:"user"`
	Tokens TokenBundle `json:"tokens"`
}

type LoginResponse struct {
	User   UserSummary `json:"user"`
	Tokens TokenBundle `json:"tokens"`
}

type RefreshResponse struct {
	Tokens TokenBundle `json:"tokens"`
}
