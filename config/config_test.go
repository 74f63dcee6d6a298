package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Cache.DefaultTTL != 5*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.InitialDelay != time.Second || cfg.Retry.MaxDelay != 10*time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Batch.PollInterval != 2*time.Second || cfg.Batch.MaxPolls != 150 {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.VList.ItemHeight != 60 || cfg.VList.BufferSize != 5 {
		t.Errorf("vlist = %+v", cfg.VList)
	}
	if cfg.Kafka.Enabled() {
		t.Error("kafka must be disabled without brokers")
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "invalid api config") {
		t.Errorf("missing base url must fail validation, got %v", err)
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"CONTRACTFLOW_LOG_LEVEL":           "debug",
		"CONTRACTFLOW_API_BASE_URL":        "https://contracts.example.com",
		"CONTRACTFLOW_API_SCOPES":          "read,write",
		"CONTRACTFLOW_CACHE_DEFAULT_TTL":   "10m",
		"CONTRACTFLOW_RETRY_MAX_ATTEMPTS":  "5",
		"CONTRACTFLOW_RETRY_MULTIPLIER":    "1.5",
		"CONTRACTFLOW_BATCH_POLL_INTERVAL": "5s",
		"CONTRACTFLOW_BATCH_MAX_POLLS":     "20",
		"CONTRACTFLOW_VLIST_ITEM_HEIGHT":   "48",
		"CONTRACTFLOW_KAFKA_BROKERS":       "k1:9092,k2:9092",
		"CONTRACTFLOW_KAFKA_TOPIC":         "batches",
	})
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	if cfg.Logger.Level != "debug" || cfg.API.BaseURL != "https://contracts.example.com" {
		t.Errorf("logger = %+v, api = %+v", cfg.Logger, cfg.API)
	}
	if len(cfg.API.Scopes) != 2 || cfg.API.Scopes[1] != "write" {
		t.Errorf("scopes = %v", cfg.API.Scopes)
	}
	if cfg.Cache.DefaultTTL != 10*time.Minute {
		t.Errorf("cache ttl = %v", cfg.Cache.DefaultTTL)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.Multiplier != 1.5 || cfg.Retry.InitialDelay != time.Second {
		t.Errorf("retry = %+v", cfg.Retry)
	}
	if cfg.Batch.PollInterval != 5*time.Second || cfg.Batch.MaxPolls != 20 || cfg.Batch.PollTimeout != 5*time.Minute {
		t.Errorf("batch = %+v", cfg.Batch)
	}
	if cfg.VList.ItemHeight != 48 {
		t.Errorf("vlist item height = %v", cfg.VList.ItemHeight)
	}
	if !cfg.Kafka.Enabled() || len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Topic != "batches" {
		t.Errorf("kafka = %+v", cfg.Kafka)
	}
}

func TestLoad_ProcessEnv(t *testing.T) {
	t.Setenv("CONTRACTFLOW_BATCH_MAX_BATCH_SIZE", "10")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Batch.MaxBatchSize != 10 {
		t.Errorf("max batch size = %d", cfg.Batch.MaxBatchSize)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name    string
		environ map[string]string
		wantErr string
	}{
		{"bad duration", map[string]string{"CONTRACTFLOW_CACHE_DEFAULT_TTL": "soon"}, "parse env"},
		{"bad int", map[string]string{"CONTRACTFLOW_BATCH_MAX_POLLS": "many"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(tt.environ)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected %q error, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.API.BaseURL = "http://localhost:8080"
		return cfg
	}
	tests := []struct {
		name      string
		mutate    func(*Config)
		component string
	}{
		{"valid", func(*Config) {}, ""},
		{"logger", func(c *Config) { c.Logger.Level = "loud" }, "logger"},
		{"cache", func(c *Config) { c.Cache.DefaultTTL = -time.Second }, "cache"},
		{"retry", func(c *Config) { c.Retry.Multiplier = 0.5 }, "retry"},
		{"batch", func(c *Config) { c.Batch.MaxPolls = -1 }, "batch"},
		{"vlist", func(c *Config) { c.VList.BufferSize = -2 }, "vlist"},
		{"kafka", func(c *Config) { c.Kafka.Brokers = []string{"k:9092"}; c.Kafka.Acks = "most" }, "kafka"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.component == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), "invalid "+tt.component+" config") {
				t.Errorf("expected %s error, got %v", tt.component, err)
			}
			if errors.Unwrap(err) == nil {
				t.Error("component error must be wrapped")
			}
		})
	}
}
