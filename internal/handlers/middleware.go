package handlers

import (
	"net/http"
	"strings"

	"gitlab.com/ms-serving.net/internal/core/ports/primary"
)

type MiddlewareProvider struct {
	jwtService primary.JWTService
	method     string
	logger     primary.Logger
}

func New(jwtService primary.JWTService, method string, logger primary.Logger) *MiddlewareProvider {
	return &MiddlewareProvider{
		jwtService: jwtService,
		method:     method,
		logger:     logger,
	}
}

func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			ResponseError(w, "Authorization header missing", http.StatusUnauthorized)
			return
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		valid, err := m.jwtService.VerifyTokenHMAC(r.Context(), tokenString, m.method)
		if err != nil || !valid {
			m.logger.Debug("Rejected admin request", "path", r.URL.Path, "error", err)
			ResponseError(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
