package config

import "os"

type JwtConfig struct {
	Secret string
	Method string
	// AdminUser and AdminPasswordHash (bcrypt) guard the admin login
	AdminUser         string
	AdminPasswordHash string
}

func NewJwtConfig() *JwtConfig {
	method := os.Getenv("JWT_METHOD")
	if method == "" {
		method = "HS256"
	}
	adminUser := os.Getenv("ADMIN_USER")
	if adminUser == "" {
		adminUser = "admin"
	}
	return &JwtConfig{
		Secret:            os.Getenv("JWT_SECRET"),
		Method:            method,
		AdminUser:         adminUser,
		AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
	}
}
