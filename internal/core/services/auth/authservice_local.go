package auth

import (
	"context"
	"crypto/subtle"
	"fmt"

	"gitlab.com/ms-serving.net/internal/config"
	"gitlab.com/ms-serving.net/internal/core/ports/primary"
)

var _ IAuthService = &localAuthService{}

const adminPermission = "serving.admin"

type localAuthService struct {
	cfg         *config.JwtConfig
	jwtProvider primary.JWTService
	logger      primary.Logger
}

// NewLocalAuthService checks logins against the single configured admin
func NewLocalAuthService(cfg *config.JwtConfig, jwtProvider primary.JWTService, logger primary.Logger) IAuthService {
	return &localAuthService{
		cfg:         cfg,
		jwtProvider: jwtProvider,
		logger:      logger,
	}
}

func (g localAuthService) Login(ctx context.Context, credentials *Credentials) (string, error) {
	if g.cfg.AdminPasswordHash == "" || g.cfg.Secret == "" {
		return "", ErrLoginDisabled
	}
	if credentials == nil {
		return "", ErrInvalidCredentials
	}

	sameUser := subtle.ConstantTimeCompare([]byte(credentials.UserName), []byte(g.cfg.AdminUser)) == 1
	valid, err := g.jwtProvider.VerifyPassword(ctx, g.cfg.AdminPasswordHash, credentials.Password)
	if err != nil || !valid || !sameUser {
		g.logger.Warn("Rejected admin login", "username", credentials.UserName)
		return "", ErrInvalidCredentials
	}

	token, err := g.jwtProvider.GenerateTokenHMAC(ctx, g.cfg.Method, map[string]interface{}{
		"sub":        credentials.UserName,
		"permission": []string{adminPermission},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return token, nil
}
