// Package applog constructs the shared structured logger used by every
// long-lived component of the hub and session processes. Each component
// gets its own named child logger (mirroring the teacher repo's bracketed
// [component] log tags, just backed by structured fields instead of
// string interpolation).
package applog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger for a process. Set ITWILLSYNC_LOG_LEVEL=debug
// for verbose output; defaults to info.
func New() *zap.SugaredLogger {
	level := zapcore.InfoLevel
	if os.Getenv("ITWILLSYNC_LOG_LEVEL") == "debug" {
		level = zapcore.DebugLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than crash a daemon over logging setup.
		return zap.NewNop().Sugar()
	}
	return logger.Sugar()
}

// Component returns a child logger tagged with the given component name,
// e.g. applog.Component(base, "hub-registry").
func Component(base *zap.SugaredLogger, name string) *zap.SugaredLogger {
	return base.Named(name)
}
