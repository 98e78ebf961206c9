package application

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"auth-session-service/internal/domain"
	"auth-session-service/internal/ports"
)

// normalizeEmail canonicalizes and validates email format before persistence
// and comparison, so "A@x.com" and "a@x.com" are the same account.
func normalizeEmail(email string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	if trimmed == "" {
		return "", fmt.Errorf("%w: email is required", domain.ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: invalid email", domain.ErrInvalidInput)
	}
	return trimmed, nil
}

func summarize(user domain.User) UserSummary {
	return UserSummary{
		UserID:    user.UserID,
		Email:     user.Email,
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
	}
}

// enqueueEvent writes a lifecycle event best-effort; event delivery must not
// decide request outcomes.
func (s *Service) enqueueEvent(ctx context.Context, event ports.OutboxEvent) {
	if err := s.outbox.Enqueue(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to enqueue event",
			"module", "application",
			"layer", "application",
			"operation", "enqueue_event",
			"outcome", "failure",
			"event_type", event.EventType,
			"error", err,
		)
	}
}
