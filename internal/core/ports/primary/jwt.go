package primary

import (
	"context"
)

type JWTService interface {
	GenerateTokenHMAC(ctx context.Context, method string, claims map[string]interface{}) (string, error)
	VerifyTokenHMAC(ctx context.Context, token string, method string) (bool, error)
	VerifyPassword(ctx context.Context, passwordHash string, pwd string) (bool, error)
	EncryptPassword(ctx context.Context, password string) (string, error)
}
