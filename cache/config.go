package cache

import "time"

// Config holds configuration for the TTL cache
type Config struct {
	// Name is used for logging purposes to identify the cache
	// default: "cache"
	Name string `mapstructure:"name" env:"NAME"`
	// DefaultTTL applies when Set is called with a ttl <= 0
	// default: 5 * time.Minute
	DefaultTTL time.Duration `mapstructure:"default_ttl" env:"DEFAULT_TTL"`
	// SweepInterval is the interval between background sweeps of expired entries
	// default: time.Minute
	SweepInterval time.Duration `mapstructure:"sweep_interval" env:"SWEEP_INTERVAL"`
	// SweepSpec optionally replaces SweepInterval with a cron spec such as
	// "@every 30s" or "*/5 * * * *"
	SweepSpec string `mapstructure:"sweep_spec" env:"SWEEP_SPEC"`
}

// DefaultConfig returns the default configuration for the cache
func DefaultConfig() *Config {
	return &Config{
		Name:          "cache",
		DefaultTTL:    5 * time.Minute,
		SweepInterval: time.Minute,
	}
}

// MergeDefaults returns a copy of the config with zero values replaced by defaults
func (c *Config) MergeDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Name == "" {
		out.Name = def.Name
	}
	if out.DefaultTTL == 0 {
		out.DefaultTTL = def.DefaultTTL
	}
	if out.SweepInterval == 0 {
		out.SweepInterval = def.SweepInterval
	}
	return &out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return ErrInvalidDefaultTTL(c.DefaultTTL)
	}
	if c.SweepSpec == "" && c.SweepInterval <= 0 {
		return ErrInvalidSweepInterval(c.SweepInterval)
	}
	return nil
}
