package auth

import (
	"context"
	"errors"
	"testing"

	"gitlab.com/ms-serving.net/internal/adapter/crypto"
	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/config"
)

func newService(t *testing.T, password string) (IAuthService, *config.JwtConfig) {
	t.Helper()
	cfg := &config.JwtConfig{Secret: "s3cret", Method: "HS256", AdminUser: "admin"}
	jwtService := crypto.NewJWTService(cfg)
	if password != "" {
		hash, err := jwtService.EncryptPassword(context.Background(), password)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		cfg.AdminPasswordHash = hash
	}
	return NewLocalAuthService(cfg, jwtService, logging.NewNopLogger()), cfg
}

func TestLogin(t *testing.T) {
	svc, cfg := newService(t, "hunter2")
	ctx := context.Background()

	tests := []struct {
		name        string
		credentials *Credentials
		wantErr     error
	}{
		{"valid", &Credentials{UserName: "admin", Password: "hunter2"}, nil},
		{"wrong password", &Credentials{UserName: "admin", Password: "hunter3"}, ErrInvalidCredentials},
		{"wrong user", &Credentials{UserName: "root", Password: "hunter2"}, ErrInvalidCredentials},
		{"nil", nil, ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := svc.Login(ctx, tt.credentials)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				return
			}
			ok, err := crypto.NewJWTService(cfg).VerifyTokenHMAC(ctx, token, cfg.Method)
			if err != nil || !ok {
				t.Fatalf("issued token rejected: %v", err)
			}
		})
	}
}

func TestLoginDisabledWithoutHash(t *testing.T) {
	svc, _ := newService(t, "")
	if _, err := svc.Login(context.Background(), &Credentials{UserName: "admin"}); !errors.Is(err, ErrLoginDisabled) {
		t.Fatalf("err = %v, want ErrLoginDisabled", err)
	}
}
