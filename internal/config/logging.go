package config

import (
	"os"
	"strings"
)

type LogConfig struct {
	Level    string
	Format   string
	Outputs  []string
	Rotation RotationConfig
}

type RotationConfig struct {
	Enable     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

func NewLogConfig() *LogConfig {
	outputs := []string{"stdout"}
	if raw := os.Getenv("LOG_OUTPUTS"); raw != "" {
		outputs = strings.Split(raw, ",")
	}
	return &LogConfig{
		Level:   os.Getenv("LOG_LEVEL"),
		Format:  os.Getenv("LOG_FORMAT"),
		Outputs: outputs,
		Rotation: RotationConfig{
			Enable:     os.Getenv("LOG_ROTATE") == "true",
			MaxSizeMB:  intEnv("LOG_MAX_SIZE_MB", 100),
			MaxBackups: intEnv("LOG_MAX_BACKUPS", 3),
			MaxAgeDays: intEnv("LOG_MAX_AGE_DAYS", 7),
			Compress:   os.Getenv("LOG_COMPRESS") == "true",
		},
	}
}
