// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a production zap logger writing JSON to stderr. Verbose lowers
// the level to debug; console switches to the human-readable encoder used by
// the interactive shell.
func New(verbose, console bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if console {
		config = zap.NewDevelopmentConfig()
		config.DisableStacktrace = true
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	}
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
