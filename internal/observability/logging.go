// Package observability constructs the process loggers. Server
// components get a structured JSON logger injected through their
// constructors; CLI commands share the package-level console logger.
package observability

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the console logger used by CLI command plumbing. It
// writes human-readable output to stderr so stdout stays clean for
// data.
var CLILogger = newConsoleLogger(zapcore.InfoLevel)

// SetCLILevel adjusts the CLI logger's verbosity (e.g. for --verbose).
func SetCLILevel(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	CLILogger = newConsoleLogger(lvl)
	return nil
}

// NewLogger builds the logger for long-running components. Profile
// "structured" emits JSON; anything else falls back to the console
// encoder.
func NewLogger(level, profile string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if profile != "structured" {
		return newConsoleLogger(lvl), nil
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func newConsoleLogger(lvl zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		lvl,
	)
	return zap.New(core)
}
