package config

import (
	"os"
	"strconv"
	"time"
)

type MasterConfig struct {
	TCPAddress        string
	HTTPPort          int
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RPCDeadline       time.Duration
	EnablePersistence bool
}

func NewMasterConfig() *MasterConfig {
	tcpAddress := os.Getenv("MASTER_TCP_ADDR")
	if tcpAddress == "" {
		tcpAddress = ":5500"
	}
	return &MasterConfig{
		TCPAddress:        tcpAddress,
		HTTPPort:          intEnv("MASTER_HTTP_PORT", 5501),
		HeartbeatInterval: millisEnv("HEARTBEAT_INTERVAL_MS", 1000),
		HeartbeatTimeout:  millisEnv("HEARTBEAT_TIMEOUT_MS", 5000),
		RPCDeadline:       millisEnv("RPC_DEADLINE_MS", 1000),
		EnablePersistence: os.Getenv("ENABLE_PERSISTENCE") == "true",
	}
}

func intEnv(key string, fallback int) int {
	varInt, err := strconv.Atoi(os.Getenv(key))
	if err != nil || varInt <= 0 {
		return fallback
	}
	return varInt
}

func millisEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Millisecond
}
