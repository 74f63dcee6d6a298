// Package config loads the runtime configuration of every contractflow
// component from the environment.
//
// Variables are upper-case, prefixed with CONTRACTFLOW_ and grouped per
// component, e.g. CONTRACTFLOW_CACHE_DEFAULT_TTL=10m or
// CONTRACTFLOW_BATCH_POLL_INTERVAL=5s. Unset variables keep their defaults.
package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/dailyyoga/contractflow/api"
	"github.com/dailyyoga/contractflow/batch"
	"github.com/dailyyoga/contractflow/cache"
	"github.com/dailyyoga/contractflow/kafka"
	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/retry"
	"github.com/dailyyoga/contractflow/vlist"
)

// Prefix is prepended to every variable name
const Prefix = "CONTRACTFLOW_"

// Config is the root configuration
type Config struct {
	Logger logger.Config        `mapstructure:"logger" envPrefix:"LOG_"`
	API    api.Config           `mapstructure:"api" envPrefix:"API_"`
	Cache  cache.Config         `mapstructure:"cache" envPrefix:"CACHE_"`
	Retry  retry.Policy         `mapstructure:"retry" envPrefix:"RETRY_"`
	Batch  batch.Config         `mapstructure:"batch" envPrefix:"BATCH_"`
	VList  vlist.Config         `mapstructure:"vlist" envPrefix:"VLIST_"`
	Kafka  kafka.ProducerConfig `mapstructure:"kafka" envPrefix:"KAFKA_"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Logger: *logger.DefaultConfig(),
		API:    *api.DefaultConfig(),
		Cache:  *cache.DefaultConfig(),
		Retry:  retry.DefaultPolicy(),
		Batch:  *batch.DefaultConfig(),
		VList:  *vlist.DefaultConfig(),
		Kafka:  *kafka.DefaultProducerConfig(),
	}
}

// Load reads the process environment on top of the defaults. The result is
// not validated so callers can layer flags on top before calling Validate.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: Prefix})
}

// LoadFrom reads the given variables instead of the process environment
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := Default()
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, ErrParseEnv(err)
	}
	return cfg, nil
}

// Validate validates every component configuration. Kafka is only checked
// when brokers are set.
func (c *Config) Validate() error {
	if err := c.Logger.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("logger", err)
	}
	if err := c.API.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("api", err)
	}
	if err := c.Cache.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("cache", err)
	}
	if err := c.Retry.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("retry", err)
	}
	if err := c.Batch.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("batch", err)
	}
	if err := c.VList.MergeDefaults().Validate(); err != nil {
		return ErrInvalid("vlist", err)
	}
	if c.Kafka.Enabled() {
		if err := c.Kafka.MergeDefaults().Validate(); err != nil {
			return ErrInvalid("kafka", err)
		}
	}
	return nil
}
