package application

import (
	"log/slog"
	"time"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

// Service orchestrates register, login, refresh and logout by composing the
// password hasher, the lockout policy, the token issuer and the credential
// store. It holds no mutable state of its own; every per-account transition
// commits through a single atomic store call.
type Service struct {
	cfg    Config
	users  ports.CredentialStore
	outbox ports.OutboxRepository
	hasher ports.PasswordHasher
	tokens ports.TokenIssuer
	policy domain.LockoutPolicy
	logger *slog.Logger
	nowFn  func() time.Time
}

type Dependencies struct {
	Config Config
	Users  ports.CredentialStore
	Outbox ports.OutboxRepository
	Hasher ports.PasswordHasher
	Tokens ports.TokenIssuer
	Logger *slog.Logger
}

func NewService(deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:    deps.Config,
		users:  deps.Users,
		outbox: deps.Outbox,
		hasher: deps.Hasher,
		tokens: deps.Tokens,
		policy: domain.LockoutPolicy{
			Threshold: deps.Config.FailedLoginThreshold,
			Duration:  deps.Config.LockoutDuration,
		},
		logger: logger,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}
