package kafka

import (
	"slices"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
)

var validAcks = []string{"all", "-1", "0", "1"}

// ProducerConfig is the configuration for kafka producer
type ProducerConfig struct {
	// kafka cluster brokers
	Brokers []string `mapstructure:"brokers" env:"BROKERS" envSeparator:","`

	// Topic receives one event per finished batch job
	// default: "contractflow.batch.finished"
	Topic string `mapstructure:"topic" env:"TOPIC"`

	// Optional: kafka client id, shown in broker logs
	ClientID string `mapstructure:"client_id" env:"CLIENT_ID"`

	// Acks is the number of broker confirmations before a write counts.
	// - all or -1: wait for every in-sync replica
	// - 1: leader only
	// - 0: fire and forget
	// default: "all"
	Acks string `mapstructure:"acks" env:"ACKS"`

	// Compression codec: none, gzip, snappy, lz4, zstd
	// default: "none"
	Compression string `mapstructure:"compression" env:"COMPRESSION"`

	// LingerMs batch sending wait time (milliseconds)
	// default: 0 (send immediately)
	LingerMs int `mapstructure:"linger_ms" env:"LINGER_MS"`

	// BatchSize maximum bytes per request
	// default: 100KB
	BatchSize int `mapstructure:"batch_size" env:"BATCH_SIZE"`

	// Security protocol, only PLAINTEXT for now
	// default: "PLAINTEXT"
	SecurityProtocol string `mapstructure:"security_protocol" env:"SECURITY_PROTOCOL"`

	// Max retries for kafka producer
	// default: 3
	MaxRetries int `mapstructure:"max_retries" env:"MAX_RETRIES"`

	// ConnectTimeout bounds the metadata probe run before the producer is created
	// default: 10s
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" env:"CONNECT_TIMEOUT"`

	// FlushTimeout bounds how long Close waits for queued messages
	// default: 10s
	FlushTimeout time.Duration `mapstructure:"flush_timeout" env:"FLUSH_TIMEOUT"`
}

// DefaultProducerConfig returns the default producer configuration
func DefaultProducerConfig() *ProducerConfig {
	return &ProducerConfig{
		Topic:            "contractflow.batch.finished",
		Acks:             "all",
		Compression:      "none",
		LingerMs:         0,
		BatchSize:        100 * 1024, // 100KB
		SecurityProtocol: "PLAINTEXT",
		MaxRetries:       3,
		ConnectTimeout:   10 * time.Second,
		FlushTimeout:     10 * time.Second,
	}
}

// Enabled reports whether brokers are configured
func (p *ProducerConfig) Enabled() bool {
	return p != nil && len(p.Brokers) > 0
}

// MergeDefaults returns a copy with zero values replaced by defaults
func (p *ProducerConfig) MergeDefaults() *ProducerConfig {
	def := DefaultProducerConfig()
	if p == nil {
		return def
	}
	out := *p
	if out.Topic == "" {
		out.Topic = def.Topic
	}
	if out.Acks == "" {
		out.Acks = def.Acks
	}
	if out.Compression == "" {
		out.Compression = def.Compression
	}
	if out.BatchSize == 0 {
		out.BatchSize = def.BatchSize
	}
	if out.SecurityProtocol == "" {
		out.SecurityProtocol = def.SecurityProtocol
	}
	if out.MaxRetries == 0 {
		out.MaxRetries = def.MaxRetries
	}
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = def.ConnectTimeout
	}
	if out.FlushTimeout == 0 {
		out.FlushTimeout = def.FlushTimeout
	}
	return &out
}

// Validate validates the producer configuration
func (p *ProducerConfig) Validate() error {
	if len(p.Brokers) == 0 {
		return ErrInvalidConfig("brokers are required")
	}
	if p.Topic == "" {
		return ErrInvalidConfig("topic is required")
	}
	if !slices.Contains(validAcks, strings.ToLower(p.Acks)) {
		return ErrInvalidConfig("acks must be one of: " + strings.Join(validAcks, ", "))
	}
	if p.LingerMs < 0 || p.BatchSize < 0 || p.MaxRetries < 0 {
		return ErrInvalidConfig("linger_ms, batch_size and max_retries must not be negative")
	}
	if p.ConnectTimeout < 0 || p.FlushTimeout < 0 {
		return ErrInvalidConfig("timeouts must not be negative")
	}
	return nil
}

// BuildConfigMap translates the config into librdkafka settings
func (p *ProducerConfig) BuildConfigMap() *kafka.ConfigMap {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers": strings.Join(p.Brokers, ","),
		"compression.type":  strings.ToLower(p.Compression),
		"acks":              strings.ToLower(p.Acks),
		"linger.ms":         p.LingerMs,
		"batch.size":        p.BatchSize,
		"retries":           p.MaxRetries,
		"security.protocol": p.SecurityProtocol,
	}

	if p.ClientID != "" {
		_ = configMap.SetKey("client.id", p.ClientID)
	}

	return configMap
}
