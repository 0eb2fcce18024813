package download

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/omalloc/cellar/api/defined/v1/storage"
	"github.com/omalloc/cellar/conf"
	"github.com/omalloc/cellar/download/status"
)

const (
	DefaultChunkSize            = 32 << 10
	DefaultMaxRetryAttempts     = 3
	DefaultDelayBetweenAttempts = 10 * time.Second
	DefaultMonitorPeriod        = 5 * time.Second
)

// Config is the configuration a transfer runs with. Copies share the
// cache switch, so a cache failure in one transfer is seen by every
// transfer started after it.
type Config struct {
	MaxRetryAttempts     int
	DelayBetweenAttempts time.Duration
	MonitorPeriod        time.Duration
	CacheWhenCanceled    bool
	ChunkSize            int
	MemoryThreshold      int
	TempDir              string
	RateLimitKbps        int

	Cache     storage.ResourceCache
	Publisher *status.Publisher
	Listener  status.StatusListener

	cacheEnabled *atomic.Bool
}

// NewConfig builds a Config from the download section of the bootstrap.
func NewConfig(c *conf.Download, cacheEnabled bool, cache storage.ResourceCache, publisher *status.Publisher, listener status.StatusListener) *Config {
	cfg := &Config{
		Cache:        cache,
		Publisher:    publisher,
		Listener:     listener,
		cacheEnabled: &atomic.Bool{},
	}
	if c != nil {
		cfg.MaxRetryAttempts = c.MaxRetryAttempts
		cfg.DelayBetweenAttempts = c.DelayBetweenAttempts
		cfg.MonitorPeriod = c.MonitorPeriod
		cfg.CacheWhenCanceled = c.CacheWhenCanceled
		cfg.ChunkSize = c.ChunkSize
		cfg.MemoryThreshold = c.MemoryThreshold
		cfg.TempDir = c.TempDir
		cfg.RateLimitKbps = c.RateLimitKbps
	}
	cfg.cacheEnabled.Store(cacheEnabled)
	return cfg
}

// CacheEnabled reports whether new transfers tee into the cache.
func (c *Config) CacheEnabled() bool {
	return c.Cache != nil && c.cacheEnabled != nil && c.cacheEnabled.Load()
}

// SetCacheEnabled flips the shared cache switch.
func (c *Config) SetCacheEnabled(enabled bool) {
	if c.cacheEnabled == nil {
		c.cacheEnabled = &atomic.Bool{}
	}
	c.cacheEnabled.Store(enabled)
}

// Validate checks the ranges and fills the zero values.
func (c *Config) Validate() error {
	if c.MaxRetryAttempts < 0 {
		return errors.New("max_retry_attempts must not be negative")
	}
	if c.DelayBetweenAttempts < 0 {
		return errors.New("delay_between_attempts must not be negative")
	}
	if c.ChunkSize < 0 {
		return errors.New("chunk_size must be positive")
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MonitorPeriod < 0 {
		c.MonitorPeriod = 0
	}
	if c.Publisher == nil {
		c.Publisher = status.NewPublisher(nil, false, false)
	}
	if c.cacheEnabled == nil {
		c.cacheEnabled = &atomic.Bool{}
	}
	return nil
}
