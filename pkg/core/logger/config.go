package logger

import (
	"fmt"
	"strings"

	"github.com/co2market/auth-service/pkg/core/config"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config controls how the service logger is built.
type Config struct {
	// Level is the minimum enabled level.
	Level zapcore.Level
	// Development switches to console encoding with human-readable output.
	Development bool
	// OutputPaths defaults to stderr.
	OutputPaths []string
	// ErrorOutputPaths receives zap's internal errors. Defaults to stderr.
	ErrorOutputPaths []string
	// StacktraceLevel is the minimum level that records a stacktrace.
	StacktraceLevel zapcore.Level
}

// Validate rejects blank output paths.
func (c Config) Validate() error {
	if err := validatePaths(c.OutputPaths, "outputPaths"); err != nil {
		return err
	}
	return validatePaths(c.ErrorOutputPaths, "errorOutputPaths")
}

func validatePaths(paths []string, field string) error {
	for i, p := range paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%s[%d] cannot be empty or whitespace", field, i)
		}
	}
	return nil
}

type rawConfig struct {
	Level            string   `mapstructure:"level"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"outputPaths"`
	ErrorOutputPaths []string `mapstructure:"errorOutputPaths"`
	StacktraceLevel  string   `mapstructure:"stacktraceLevel"`
}

func newConfig(v *viper.Viper) (Config, error) {
	var raw rawConfig
	if err := config.Section(v, "logger").Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("failed to load logger config: %w", err)
	}

	level, err := parseLevel(raw.Level, zapcore.InfoLevel)
	if err != nil {
		return Config{}, fmt.Errorf("invalid log level '%s': %w", raw.Level, err)
	}
	stacktraceLevel, err := parseLevel(raw.StacktraceLevel, zapcore.ErrorLevel)
	if err != nil {
		return Config{}, fmt.Errorf("invalid stacktrace level '%s': %w", raw.StacktraceLevel, err)
	}

	return Config{
		Level:            level,
		Development:      raw.Development,
		OutputPaths:      raw.OutputPaths,
		ErrorOutputPaths: raw.ErrorOutputPaths,
		StacktraceLevel:  stacktraceLevel,
	}, nil
}

func parseLevel(s string, fallback zapcore.Level) (zapcore.Level, error) {
	if s == "" {
		return fallback, nil
	}
	return zapcore.ParseLevel(s)
}
