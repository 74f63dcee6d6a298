package batch

import "time"

// Config holds configuration for the batch poller
type Config struct {
	// PollInterval is the wait before each status call
	// default: 2 * time.Second
	PollInterval time.Duration `mapstructure:"poll_interval" env:"POLL_INTERVAL"`
	// MaxPolls is the number of status calls after which an unfinished job
	// times out
	// default: 150
	MaxPolls int `mapstructure:"max_polls" env:"MAX_POLLS"`
	// PollTimeout bounds the whole polling phase of a job
	// default: 5 * time.Minute
	PollTimeout time.Duration `mapstructure:"poll_timeout" env:"POLL_TIMEOUT"`
	// StatusRetryAttempts caps retries of a single status call, independent
	// of MaxPolls
	// default: 3
	StatusRetryAttempts int `mapstructure:"status_retry_attempts" env:"STATUS_RETRY_ATTEMPTS"`
	// StatusRetryDelay is the first backoff of a failing status call
	// default: 500 * time.Millisecond
	StatusRetryDelay time.Duration `mapstructure:"status_retry_delay" env:"STATUS_RETRY_DELAY"`
	// MaxBatchSize rejects larger submissions
	// default: 50
	MaxBatchSize int `mapstructure:"max_batch_size" env:"MAX_BATCH_SIZE"`
	// MaxConcurrent is forwarded to the service as its per-batch parallelism
	// default: 5
	MaxConcurrent int `mapstructure:"max_concurrent" env:"MAX_CONCURRENT"`
	// MaxConsecutiveFailures fails a job after this many status calls in a
	// row could not be completed. Zero means unlimited
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures" env:"MAX_CONSECUTIVE_FAILURES"`
}

// DefaultConfig returns the default configuration for the batch poller
func DefaultConfig() *Config {
	return &Config{
		PollInterval:        2 * time.Second,
		MaxPolls:            150,
		PollTimeout:         5 * time.Minute,
		StatusRetryAttempts: 3,
		StatusRetryDelay:    500 * time.Millisecond,
		MaxBatchSize:        50,
		MaxConcurrent:       5,
	}
}

// MergeDefaults returns a copy of the config with zero values replaced by defaults
func (c *Config) MergeDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval == 0 {
		out.PollInterval = def.PollInterval
	}
	if out.MaxPolls == 0 {
		out.MaxPolls = def.MaxPolls
	}
	if out.PollTimeout == 0 {
		out.PollTimeout = def.PollTimeout
	}
	if out.StatusRetryAttempts == 0 {
		out.StatusRetryAttempts = def.StatusRetryAttempts
	}
	if out.StatusRetryDelay == 0 {
		out.StatusRetryDelay = def.StatusRetryDelay
	}
	if out.MaxBatchSize == 0 {
		out.MaxBatchSize = def.MaxBatchSize
	}
	if out.MaxConcurrent == 0 {
		out.MaxConcurrent = def.MaxConcurrent
	}
	return &out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return ErrInvalidDuration("poll_interval", c.PollInterval)
	}
	if c.PollTimeout <= 0 {
		return ErrInvalidDuration("poll_timeout", c.PollTimeout)
	}
	if c.StatusRetryDelay <= 0 {
		return ErrInvalidDuration("status_retry_delay", c.StatusRetryDelay)
	}
	if c.MaxPolls < 1 {
		return ErrInvalidCount("max_polls", c.MaxPolls)
	}
	if c.StatusRetryAttempts < 1 {
		return ErrInvalidCount("status_retry_attempts", c.StatusRetryAttempts)
	}
	if c.MaxBatchSize < 1 {
		return ErrInvalidCount("max_batch_size", c.MaxBatchSize)
	}
	if c.MaxConcurrent < 1 {
		return ErrInvalidCount("max_concurrent", c.MaxConcurrent)
	}
	if c.MaxConsecutiveFailures < 0 {
		return ErrInvalidCount("max_consecutive_failures", c.MaxConsecutiveFailures)
	}
	return nil
}
