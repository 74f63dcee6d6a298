package cache

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dailyyoga/contractflow/logger"
	"github.com/dailyyoga/contractflow/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ttlCache is the default Cache implementation
type ttlCache struct {
	// Dependencies
	logger logger.Logger
	clock  clockwork.Clock
	sweep  *schedule.Handle

	// Configuration
	name       string
	defaultTTL time.Duration

	// Runtime state
	mu      sync.Mutex
	entries map[string]*Entry
	stats   Stats
	once    sync.Once
}

var _ Cache = (*ttlCache)(nil)

// New creates a TTL cache whose clock and background sweep are owned by reg.
// Closing reg stops the sweep as well.
func New(log logger.Logger, reg *schedule.Registry, cfg *Config) (Cache, error) {
	cfg = cfg.MergeDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrInvalidConfig
	}

	c := &ttlCache{
		logger:     logger.OrNop(log),
		clock:      reg.Clock(),
		name:       cfg.Name,
		defaultTTL: cfg.DefaultTTL,
		entries:    make(map[string]*Entry),
	}

	sweep := func(context.Context) error {
		if n := c.Sweep(); n > 0 {
			c.logger.Debug("swept expired entries", zap.String("cache", c.name), zap.Int("evicted", n))
		}
		return nil
	}

	var err error
	if cfg.SweepSpec != "" {
		c.sweep, err = reg.Cron(c.name+"-sweep", cfg.SweepSpec, sweep)
	} else {
		c.sweep, err = reg.Every(c.name+"-sweep", cfg.SweepInterval, sweep)
	}
	if err != nil {
		return nil, ErrStartSweep(err)
	}
	return c, nil
}

func (c *ttlCache) Get(key string) (any, bool) {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if !e.Valid(now) {
		delete(c.entries, key)
		c.stats.Evictions++
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return e.Value, true
}

func (c *ttlCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	e := &Entry{Key: key, Value: value, CreatedAt: c.clock.Now(), TTL: ttl}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

func (c *ttlCache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

func (c *ttlCache) InvalidateMatching(substr string) int {
	return c.removeIf(func(key string) bool { return strings.Contains(key, substr) })
}

func (c *ttlCache) InvalidatePattern(re *regexp.Regexp) int {
	if re == nil {
		return 0
	}
	return c.removeIf(re.MatchString)
}

func (c *ttlCache) Clear() int {
	c.mu.Lock()
	n := len(c.entries)
	clear(c.entries)
	c.mu.Unlock()
	if n > 0 {
		c.logger.Debug("cache cleared", zap.String("cache", c.name), zap.Int("entries", n))
	}
	return n
}

func (c *ttlCache) Sweep() int {
	now := c.clock.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Sweeps++
	n := 0
	for key, e := range c.entries {
		if !e.Valid(now) {
			delete(c.entries, key)
			n++
		}
	}
	c.stats.Evictions += uint64(n)
	return n
}

func (c *ttlCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ttlCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = len(c.entries)
	return s
}

func (c *ttlCache) Close() {
	c.once.Do(func() {
		c.sweep.Stop()
		<-c.sweep.Done()
		c.logger.Info("stopping sweep", zap.String("cache", c.name))
	})
}

func (c *ttlCache) removeIf(match func(key string) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for key := range c.entries {
		if match(key) {
			delete(c.entries, key)
			n++
		}
	}
	return n
}
