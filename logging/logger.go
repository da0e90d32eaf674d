// Package logging builds the zap logger shared by all services.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config represents logger settings.
type Config struct {
	Level            string   `json:"level,omitempty" yaml:"level,omitempty"`
	Encoding         string   `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	OutputPaths      []string `json:"outputPaths,omitempty" yaml:"outputPaths,omitempty"`
	ErrorOutputPaths []string `json:"errorOutputPaths,omitempty" yaml:"errorOutputPaths,omitempty"`
}

// DefaultConfig returns info level json logging to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Encoding: "json", OutputPaths: []string{"stderr"}, ErrorOutputPaths: []string{"stderr"}}
}

// Validate checks level and encoding.
func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := zapcore.ParseLevel(c.Level); err != nil {
			return fmt.Errorf("invalid log level: %w", err)
		}
	}
	switch strings.ToLower(c.Encoding) {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log encoding: %q", c.Encoding)
	}
	return nil
}

// New builds a production logger with ISO8601 timestamps and caller info.
func New(cfg Config) (*zap.Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	config := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, _ := zapcore.ParseLevel(cfg.Level)
		config.Level.SetLevel(level)
	}
	if cfg.Encoding != "" {
		config.Encoding = strings.ToLower(cfg.Encoding)
	}
	if len(cfg.OutputPaths) > 0 {
		config.OutputPaths = cfg.OutputPaths
	}
	if len(cfg.ErrorOutputPaths) > 0 {
		config.ErrorOutputPaths = cfg.ErrorOutputPaths
	}
	config.EncoderConfig.CallerKey = "caller"
	config.EncoderConfig.StacktraceKey = "stacktrace"
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return config.Build()
}
