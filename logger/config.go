package logger

import (
	"fmt"
	"slices"
	"strings"
)

var (
	validLevels    = []string{"debug", "info", "warn", "error", "dpanic", "panic", "fatal"}
	validEncodings = []string{"json", "console"}
)

// Config is the configuration for the logger
type Config struct {
	// Level, debug, info, warn, error, dpanic, panic, fatal
	// default: "info"
	Level string `mapstructure:"level" env:"LEVEL"`
	// Encoding, json or console
	// default: "json"
	Encoding string `mapstructure:"encoding" env:"ENCODING"`
	// Name is attached to every entry as the logger name
	Name string `mapstructure:"name" env:"NAME"`
	// Output paths
	// default: []string{"stdout"}
	OutputPaths []string `mapstructure:"output_paths" env:"OUTPUT_PATHS" envSeparator:","`
	// Error output paths
	// default: []string{"stderr"}
	ErrorOutputPaths []string `mapstructure:"error_output_paths" env:"ERROR_OUTPUT_PATHS" envSeparator:","`
}

// DefaultConfig returns the default configuration for the logger
func DefaultConfig() *Config {
	return &Config{
		Level:            "info",
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}
}

// MergeDefaults returns a copy of c with empty fields filled from DefaultConfig.
// A nil receiver yields the defaults.
func (c *Config) MergeDefaults() *Config {
	defaults := DefaultConfig()
	if c == nil {
		return defaults
	}
	merged := *c
	if merged.Level == "" {
		merged.Level = defaults.Level
	}
	if merged.Encoding == "" {
		merged.Encoding = defaults.Encoding
	}
	if len(merged.OutputPaths) == 0 {
		merged.OutputPaths = defaults.OutputPaths
	}
	if len(merged.ErrorOutputPaths) == 0 {
		merged.ErrorOutputPaths = defaults.ErrorOutputPaths
	}
	return &merged
}

// Validate validates the configuration for the logger
func (c *Config) Validate() error {
	if !slices.Contains(validLevels, strings.ToLower(c.Level)) {
		return ErrInvalidLevel(c.Level, fmt.Errorf("must be one of: %s", strings.Join(validLevels, ", ")))
	}
	if !slices.Contains(validEncodings, c.Encoding) {
		return ErrInvalidEncoding(c.Encoding)
	}
	return nil
}
