package auth

import (
	"context"
	"errors"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginDisabled      = errors.New("admin login is not configured")
)

// Credentials of an admin login attempt
type Credentials struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

type IAuthService interface {
	// Login returns a bearer token for the admin API
	Login(ctx context.Context, credentials *Credentials) (string, error)
}
