package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// AudioCache maps (text, speed, language) to synthesized audio. Lookups hit
// the memory tier first and fall back to the optional disk tier, promoting
// disk hits into memory.
type AudioCache struct {
	memory *MemoryCache
	disk   *DiskCache

	config   Config
	logger   *log.Logger
	observer Observer

	// Cleanup goroutine control
	sweepStop chan struct{}
	sweepWg   sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	mu    sync.Mutex
	stats struct {
		DiskHits   int64
		Promotions int64
		SweepRuns  int64
		LastSweep  time.Time
	}
}

// Option configures an AudioCache.
type Option func(*AudioCache)

// WithLogger sets the logger used for rejections and sweeps.
func WithLogger(l *log.Logger) Option {
	return func(c *AudioCache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver attaches an event observer (metrics).
func WithObserver(o Observer) Option {
	return func(c *AudioCache) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithClock overrides the time source of every tier.
func WithClock(now func() time.Time) Option {
	return func(c *AudioCache) {
		c.memory.SetClock(now)
		if c.disk != nil {
			c.disk.now = now
		}
	}
}

// New creates an audio cache. The disk tier is enabled when cfg.DiskPath is
// set. Call Start to run the background TTL sweep.
func New(cfg Config, opts ...Option) (*AudioCache, error) {
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("cache max bytes must be positive, got %d", cfg.MaxBytes)
	}
	if cfg.MaxEntries < 0 {
		return nil, fmt.Errorf("cache max entries must not be negative, got %d", cfg.MaxEntries)
	}

	c := &AudioCache{
		memory:    NewMemoryCache(cfg.MaxBytes, cfg.MaxEntries, cfg.TTL),
		config:    cfg,
		logger:    log.Default(),
		observer:  nopObserver{},
		sweepStop: make(chan struct{}),
	}

	if cfg.DiskPath != "" {
		disk, err := NewDiskCache(cfg.DiskPath, cfg.DiskCapacity, cfg.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		c.disk = disk
	}

	for _, opt := range opts {
		opt(c)
	}

	c.memory.OnEvict(func(key string, reason EvictReason) {
		c.observer.CacheEvicted(reason)
	})

	return c, nil
}

// Get returns a cached resource for the utterance, or false.
func (c *AudioCache) Get(text string, speed float64, lang string) (*Resource, bool) {
	key := NewKey(text, speed, lang).String()

	if res, ok := c.memory.Get(key); ok {
		c.observer.CacheHit(CacheLevelMemory)
		c.logger.Debug("audio cache hit", "key", key, "level", CacheLevelMemory)
		return res, true
	}

	if c.disk != nil {
		if data, mime, ok := c.disk.Get(key); ok {
			c.mu.Lock()
			c.stats.DiskHits++
			c.mu.Unlock()

			c.observer.CacheHit(CacheLevelDisk)
			res, err := c.memory.Put(key, data, mime)
			if err != nil {
				// Too large for memory: hand out an unmanaged handle.
				return NewResource(key, data, mime, time.Now()), true
			}
			c.mu.Lock()
			c.stats.Promotions++
			c.mu.Unlock()
			c.reportSize()
			c.logger.Debug("audio cache hit", "key", key, "level", CacheLevelDisk)
			return res, true
		}
	}

	c.observer.CacheMiss()
	return nil, false
}

// Set stores a payload for the utterance and returns its resource. A payload
// larger than the whole memory budget is logged and rejected.
func (c *AudioCache) Set(text string, speed float64, payload []byte, mimeType, lang string) (*Resource, error) {
	key := NewKey(text, speed, lang).String()

	res, err := c.memory.Put(key, payload, mimeType)
	if err != nil {
		if err == ErrItemTooLarge {
			c.observer.CacheRejected()
			c.logger.Warn("audio payload exceeds cache budget, not cached",
				"key", key, "bytes", len(payload), "max_bytes", c.config.MaxBytes)
		}
		return nil, err
	}

	if c.disk != nil {
		if err := c.disk.Put(key, payload, mimeType); err != nil {
			c.logger.Warn("disk cache write failed", "key", key, "err", err)
		}
	}

	c.reportSize()
	return res, nil
}

// Clear releases every handle and empties all tiers.
func (c *AudioCache) Clear() error {
	c.memory.Clear()
	c.reportSize()
	if c.disk != nil {
		if err := c.disk.Clear(); err != nil {
			return fmt.Errorf("disk clear: %w", err)
		}
	}
	return nil
}

// Stats returns memory tier statistics, which are the bounded ones.
func (c *AudioCache) Stats() Stats {
	return c.memory.Stats()
}

// DiskStats returns the persistent tier statistics, if enabled.
func (c *AudioCache) DiskStats() (Stats, bool) {
	if c.disk == nil {
		return Stats{}, false
	}
	return c.disk.Stats(), true
}

// Sweep removes expired entries from every tier.
func (c *AudioCache) Sweep() int {
	removed := c.memory.Sweep()
	if c.disk != nil && c.config.DiskTTL > 0 {
		removed += c.disk.RemoveOlderThan(c.memory.Now().Add(-c.config.DiskTTL))
	}

	c.mu.Lock()
	c.stats.SweepRuns++
	c.stats.LastSweep = time.Now()
	c.mu.Unlock()

	c.reportSize()
	if removed > 0 {
		c.logger.Debug("audio cache sweep", "removed", removed)
	}
	return removed
}

// Start launches the background TTL sweep if a sweep interval is set.
func (c *AudioCache) Start() {
	if c.config.SweepInterval <= 0 {
		return
	}
	c.startOnce.Do(func() {
		c.sweepWg.Add(1)
		go c.sweepLoop(c.config.SweepInterval)
	})
}

// Close stops the sweeper, releases handles and persists the disk index.
func (c *AudioCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.sweepStop)
	})
	c.sweepWg.Wait()

	c.memory.Clear()
	if c.disk != nil {
		return c.disk.Close()
	}
	return nil
}

func (c *AudioCache) sweepLoop(interval time.Duration) {
	defer c.sweepWg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.sweepStop:
			return
		}
	}
}

func (c *AudioCache) reportSize() {
	c.observer.CacheSize(c.memory.Size(), c.memory.Len())
}
