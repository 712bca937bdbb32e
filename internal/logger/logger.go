package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a production logger, the level is read from LOG_LEVEL (default info).
func New() *zap.Logger {
	cfg := zap.NewProductionConfig()
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		level, err := zapcore.ParseLevel(raw)
		if err != nil {
			log.Fatalf("Invalid LOG_LEVEL %q: %s", raw, err)
		}
		cfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := cfg.Build(zap.AddStacktrace(zap.FatalLevel))
	if err != nil {
		log.Fatalf("Error during logger initialization: %s", err)
	}
	return logger
}
