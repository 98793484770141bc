package cache

import (
	"errors"
	"sync"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when a payload exceeds the whole cache budget
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheMiss is returned when an item is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheCorrupted is returned when cache data is corrupted
	ErrCacheCorrupted = errors.New("cache data corrupted")

	// ErrEmptyPayload is returned when an empty payload is stored
	ErrEmptyPayload = errors.New("empty audio payload")
)

// CacheLevel represents the cache tier
type CacheLevel int

const (
	// CacheLevelMemory is the in-process LRU tier
	CacheLevelMemory CacheLevel = iota

	// CacheLevelDisk is the compressed on-disk tier
	CacheLevelDisk
)

// String returns the string representation of the cache level
func (l CacheLevel) String() string {
	switch l {
	case CacheLevelMemory:
		return "memory"
	case CacheLevelDisk:
		return "disk"
	default:
		return "unknown"
	}
}

// EvictReason tells observers why an entry left the cache.
type EvictReason int

const (
	// EvictCapacity means LRU pressure (bytes or entry count).
	EvictCapacity EvictReason = iota
	// EvictExpired means the entry outlived the TTL.
	EvictExpired
	// EvictReplaced means a newer payload was stored under the same key.
	EvictReplaced
	// EvictCleared means Clear or Delete removed the entry.
	EvictCleared
)

// String returns the string representation of the reason
func (r EvictReason) String() string {
	switch r {
	case EvictCapacity:
		return "capacity"
	case EvictExpired:
		return "expired"
	case EvictReplaced:
		return "replaced"
	case EvictCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Stats holds cache performance metrics
type Stats struct {
	// Configuration
	MaxBytes   int64
	MaxEntries int

	// Current state
	Size      int64 // Current payload size in bytes
	ItemCount int   // Number of items in cache

	// Performance metrics
	Hits        int64
	Misses      int64
	Evictions   int64
	Expirations int64
	Rejections  int64
	HitRate     float64

	LastAccess time.Time
	LastEvict  time.Time
}

// Config controls cache bounds and housekeeping.
type Config struct {
	MaxBytes      int64         // Total payload budget for the memory tier
	MaxEntries    int           // Maximum number of memory entries
	TTL           time.Duration // Entries older than this are swept
	SweepInterval time.Duration // Background sweep period, 0 disables the sweeper

	// Optional persistent tier
	DiskPath         string
	DiskCapacity     int64
	DiskTTL          time.Duration
	CompressionLevel int // zstd level, 0 stores raw bytes
}

// DefaultConfig returns the configuration used by the practice screens.
func DefaultConfig() Config {
	return Config{
		MaxBytes:         50 * 1024 * 1024,
		MaxEntries:       100,
		TTL:              30 * time.Minute,
		SweepInterval:    5 * time.Minute,
		DiskCapacity:     200 * 1024 * 1024,
		DiskTTL:          7 * 24 * time.Hour,
		CompressionLevel: 3,
	}
}

// Resource is a playable handle for one cached payload. Once released its
// bytes are dropped and Bytes returns nil.
type Resource struct {
	Key       string
	MIMEType  string
	CreatedAt time.Time

	mu       sync.RWMutex
	data     []byte
	size     int64
	released bool
}

// NewResource wraps a payload in a handle.
func NewResource(key string, data []byte, mimeType string, created time.Time) *Resource {
	return &Resource{
		Key:       key,
		MIMEType:  mimeType,
		CreatedAt: created,
		data:      data,
		size:      int64(len(data)),
	}
}

// Bytes returns the payload, or nil after Release.
func (r *Resource) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Size returns the payload size recorded at creation.
func (r *Resource) Size() int64 {
	return r.size
}

// Release frees the payload. It is safe to call more than once.
func (r *Resource) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = nil
	r.released = true
}

// Released reports whether the handle has been freed.
func (r *Resource) Released() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.released
}

// Observer receives cache events, typically to feed metrics.
type Observer interface {
	CacheHit(level CacheLevel)
	CacheMiss()
	CacheEvicted(reason EvictReason)
	CacheRejected()
	CacheSize(bytes int64, entries int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(CacheLevel) {}
func (nopObserver) CacheMiss() {}
func (nopObserver) CacheEvicted(EvictReason) {}
func (nopObserver) CacheRejected() {}
func (nopObserver) CacheSize(int64, int) {}
