package config

import "os"

type RedisConfig struct {
	DB       int
	Url      string
	Password string
}

func NewRedisConfig() *RedisConfig {
	url := os.Getenv("REDIS_ADDR")
	if url == "" {
		url = "localhost:6379"
	}
	return &RedisConfig{
		DB:       0,
		Url:      url,
		Password: os.Getenv("REDIS_PASSWORD"),
	}
}
