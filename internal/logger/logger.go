// Package logger builds the service's zap logger from configuration.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and verbosity of the logger.
type Options struct {
	// Environment "production" selects JSON output at info level. Anything
	// else gets a colored console encoder at debug level.
	Environment string
	// Service is attached to every entry as the "service" field. Empty
	// omits the field.
	Service string
	// Level overrides the environment's default level ("debug", "warn", ...).
	Level string
}

// New builds a logger for opts. An unknown Level is an error.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if opts.Environment == "production" {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := zap.ParseAtomicLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		cfg.Level = parsed
	}

	var fields []zap.Field
	if opts.Service != "" {
		fields = append(fields, zap.String("service", opts.Service))
	}
	return cfg.Build(zap.AddCaller(), zap.Fields(fields...))
}
