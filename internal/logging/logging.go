// Package logging builds the zap loggers patternd components share.
//
// The process logs structured JSON in production and a human-readable
// console format during development. Construction is centralized here so
// every entry point (CLI commands, the maintenance daemon, tests) agrees
// on encoder settings and level handling.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// Config selects the logger's level and encoder.
type Config struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string

	// Format selects the encoder: "json" or "console".
	Format string

	// Fields are constant key/value pairs attached to every entry.
	Fields map[string]string
}

// New builds a logger from the configuration.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch cfg.Format {
	case "console":
		zc = zap.NewDevelopmentConfig()
	case "json", "":
		zc = zap.NewProductionConfig()
	default:
		return nil, fmt.Errorf("invalid log format %q (want json or console)", cfg.Format)
	}
	zc.Level = level

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}

	if len(cfg.Fields) > 0 {
		fields := make([]zap.Field, 0, len(cfg.Fields))
		for k, v := range cfg.Fields {
			fields = append(fields, zap.String(k, v))
		}
		logger = logger.With(fields...)
	}

	return logger, nil
}
