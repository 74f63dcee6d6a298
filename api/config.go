package api

import (
	"net/url"
	"time"
)

// Config holds configuration for the analysis service client
type Config struct {
	// BaseURL is the service root, e.g. "https://contracts.example.com" (required)
	BaseURL string `mapstructure:"base_url" env:"BASE_URL"`
	// Timeout bounds each HTTP round trip
	// default: 30 * time.Second
	Timeout time.Duration `mapstructure:"timeout" env:"TIMEOUT"`
	// UserAgent is sent with every request
	// default: "contractflow/1.0"
	UserAgent string `mapstructure:"user_agent" env:"USER_AGENT"`
	// MaxResponseBytes caps how much of a response body is read
	// default: 10 MiB
	MaxResponseBytes int64 `mapstructure:"max_response_bytes" env:"MAX_RESPONSE_BYTES"`

	// Token is a static bearer token. Ignored when TokenURL is set
	Token string `mapstructure:"token" env:"TOKEN"`
	// TokenURL, ClientID and ClientSecret enable the OAuth2 client
	// credentials flow
	TokenURL     string   `mapstructure:"token_url" env:"TOKEN_URL"`
	ClientID     string   `mapstructure:"client_id" env:"CLIENT_ID"`
	ClientSecret string   `mapstructure:"client_secret" env:"CLIENT_SECRET"`
	Scopes       []string `mapstructure:"scopes" env:"SCOPES" envSeparator:","`
}

// DefaultConfig returns the default client configuration
// Note: BaseURL has no default value and must be explicitly set by the user
func DefaultConfig() *Config {
	return &Config{
		Timeout:          30 * time.Second,
		UserAgent:        "contractflow/1.0",
		MaxResponseBytes: 10 << 20,
	}
}

// MergeDefaults returns a copy of the config with zero values replaced by defaults
func (c *Config) MergeDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.Timeout == 0 {
		out.Timeout = def.Timeout
	}
	if out.UserAgent == "" {
		out.UserAgent = def.UserAgent
	}
	if out.MaxResponseBytes == 0 {
		out.MaxResponseBytes = def.MaxResponseBytes
	}
	return &out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrInvalidBaseURL(c.BaseURL, nil)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ErrInvalidBaseURL(c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidBaseURL(c.BaseURL, nil)
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout(c.Timeout)
	}
	if c.MaxResponseBytes <= 0 {
		return ErrInvalidMaxResponseBytes(c.MaxResponseBytes)
	}
	if c.TokenURL != "" && c.ClientID == "" {
		return ErrMissingClientID
	}
	return nil
}
