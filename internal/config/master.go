package config

import "os"

type AppConfig struct {
	DebugMode      bool
	MasterConfig   *MasterConfig
	LogConfig      *LogConfig
	RedisConfig    *RedisConfig
	PostgresConfig *PostgresConfig
	JwtConfig      *JwtConfig
}

// NewSystemConfig reads the whole configuration from the environment.
// DEBUG_MODE turns on debug logging unless LOG_LEVEL says otherwise.
func NewSystemConfig() *AppConfig {
	cfg := &AppConfig{
		DebugMode:      os.Getenv("DEBUG_MODE") == "true",
		MasterConfig:   NewMasterConfig(),
		LogConfig:      NewLogConfig(),
		RedisConfig:    NewRedisConfig(),
		PostgresConfig: NewPostgresConfig(),
		JwtConfig:      NewJwtConfig(),
	}
	if cfg.DebugMode && cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "debug"
	}
	return cfg
}
