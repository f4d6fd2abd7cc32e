package logger

import (
	"sync"

	"gitlab.com/ms-serving.net/internal/adapter/logging"
	"gitlab.com/ms-serving.net/internal/config"
)

var (
	Logger   = logging.NewZapLogger()
	initOnce sync.Once
)

// Init replaces the process logger. Only the first call has an effect.
func Init(cfg *config.LogConfig) *logging.ZapLogger {
	initOnce.Do(func() {
		Logger = logging.NewZapLoggerWithConfig(cfg)
	})
	return Logger
}

func Info(msg string, args ...interface{}) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...interface{}) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger.Warn(msg, args...)
}
