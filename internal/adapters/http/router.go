package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"auth-session-service/internal/application"
	"auth-session-service/internal/ports"
)

// Handler is the HTTP adapter entrypoint for auth use-cases.
// Access-token verification lives here because bearer parsing is a
// transport concern; everything else defers to the application service.
type Handler struct {
	service *application.Service
	tokens  ports.TokenIssuer
}

// NewHandler constructs an HTTP handler bound to the application service.
func NewHandler(service *application.Service, tokens ports.TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

// NewRouter registers the HTTP routes and middleware stack.
// Centralizing routes here ensures consistent auth and error behavior
// across endpoints.
func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware)

	r.Get("/healthz", handler.healthz)
	r.Get("/readyz", handler.readyz)

	r.Route("/auth/v1", func(r chi.Router) {
		r.Post("/register", handler.register)
		r.Post("/login", handler.login)
		r.Post("/refresh", handler.refresh)

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/logout", handler.logout)
		})
	})

	return r
}
