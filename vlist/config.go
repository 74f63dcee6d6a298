package vlist

import "time"

// Config holds configuration for a Renderer
type Config struct {
	// ItemHeight is the fixed height of every row
	// default: 60
	ItemHeight float64 `mapstructure:"item_height" env:"ITEM_HEIGHT"`
	// ViewportHeight is the initial visible height
	// default: 600
	ViewportHeight float64 `mapstructure:"viewport_height" env:"VIEWPORT_HEIGHT"`
	// BufferSize is the number of rows rendered beyond each edge
	// default: 5
	BufferSize int `mapstructure:"buffer_size" env:"BUFFER_SIZE"`
	// FrameInterval is the minimum time between two scroll renders
	// default: time.Second / 60
	FrameInterval time.Duration `mapstructure:"frame_interval" env:"FRAME_INTERVAL"`
}

// DefaultConfig returns the default renderer configuration
func DefaultConfig() *Config {
	return &Config{
		ItemHeight:     60,
		ViewportHeight: 600,
		BufferSize:     5,
		FrameInterval:  time.Second / 60,
	}
}

// MergeDefaults returns a copy of the config with zero values replaced by defaults
func (c *Config) MergeDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.ItemHeight == 0 {
		out.ItemHeight = def.ItemHeight
	}
	if out.ViewportHeight == 0 {
		out.ViewportHeight = def.ViewportHeight
	}
	if out.BufferSize == 0 {
		out.BufferSize = def.BufferSize
	}
	if out.FrameInterval == 0 {
		out.FrameInterval = def.FrameInterval
	}
	return &out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ItemHeight <= 0 {
		return ErrInvalidItemHeight(c.ItemHeight)
	}
	if c.ViewportHeight < 0 {
		return ErrInvalidViewportHeight(c.ViewportHeight)
	}
	if c.BufferSize < 0 {
		return ErrInvalidBufferSize(c.BufferSize)
	}
	if c.FrameInterval <= 0 {
		return ErrInvalidFrameInterval(c.FrameInterval)
	}
	return nil
}
