// Package logging builds the zap logger used across the portal.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"opsportal/internal/config"
)

// New builds a logger from the logging section. Empty fields fall back to
// info level and console encoding on stderr.
func New(cfg config.Logging) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		parsed, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging level: %w", err)
		}
		level.SetLevel(parsed)
	}
	encoding := cfg.Encoding
	if encoding == "" {
		encoding = "console"
	}
	zc := zap.Config{
		Encoding:         encoding,
		Level:            level,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewProductionEncoderConfig(),
	}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

// Diagnostics reports unknown section and tab ids as warnings.
type Diagnostics struct {
	Logger *zap.Logger
}

func (d Diagnostics) UnknownIdentifier(scope, id string) {
	if d.Logger == nil {
		return
	}
	d.Logger.Warn("no visibility rule for identifier", zap.String("scope", scope), zap.String("id", id))
}
