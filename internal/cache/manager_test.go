package cache

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type countingObserver struct {
	hits, misses, rejected int
	evicted                map[EvictReason]int
	lastBytes              int64
	lastEntries            int
}

func (o *countingObserver) CacheHit(CacheLevel) { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }
func (o *countingObserver) CacheRejected() { o.rejected++ }
func (o *countingObserver) CacheEvicted(r EvictReason) {
	if o.evicted == nil {
		o.evicted = make(map[EvictReason]int)
	}
	o.evicted[r]++
}
func (o *countingObserver) CacheSize(b int64, n int) { o.lastBytes, o.lastEntries = b, n }

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func TestAudioCache_GetSetByUtterance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SweepInterval = 0
	c, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Close() //nolint:errcheck

	payload := []byte("ID3fake-mp3")
	if _, err := c.Set("Nice to meet you.", 1.0, payload, "audio/mpeg", "en-US"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	tests := []struct {
		name  string
		text  string
		speed float64
		lang  string
		hit   bool
	}{
		{"exact", "Nice to meet you.", 1.0, "en-US", true},
		{"whitespace normalized", "  Nice   to meet\tyou. ", 1.0, "en-US", true},
		{"lang case folded", "Nice to meet you.", 1.0, "EN-us", true},
		{"different speed", "Nice to meet you.", 0.7, "en-US", false},
		{"different lang", "Nice to meet you.", 1.0, "en-GB", false},
		{"different text", "Nice to see you.", 1.0, "en-US", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := c.Get(tt.text, tt.speed, tt.lang)
			if ok != tt.hit {
				t.Fatalf("Get() hit = %v, want %v", ok, tt.hit)
			}
			if ok && !bytes.Equal(res.Bytes(), payload) {
				t.Errorf("Get() payload = %q, want %q", res.Bytes(), payload)
			}
		})
	}
}

func TestAudioCache_RejectsOversizePayload(t *testing.T) {
	var logs bytes.Buffer
	obs := &countingObserver{}
	c, err := New(Config{MaxBytes: 16, MaxEntries: 4}, WithLogger(log.New(&logs)), WithObserver(obs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.Set("long", 1.0, make([]byte, 17), "audio/mpeg", "en-US"); err != ErrItemTooLarge {
		t.Fatalf("Set() error = %v, want ErrItemTooLarge", err)
	}
	if _, ok := c.Get("long", 1.0, "en-US"); ok {
		t.Error("oversize payload should not be cached")
	}
	if obs.rejected != 1 {
		t.Errorf("rejected = %d, want 1", obs.rejected)
	}
	if !bytes.Contains(logs.Bytes(), []byte("exceeds cache budget")) {
		t.Errorf("expected a warning log, got %q", logs.String())
	}
}

func TestAudioCache_ClearReleasesResources(t *testing.T) {
	c, err := New(Config{MaxBytes: 1024, MaxEntries: 10}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := c.Set("hello", 1.0, []byte("abc"), "audio/mpeg", "en-US")
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if !res.Released() {
		t.Error("Clear should release handles")
	}
	if stats := c.Stats(); stats.ItemCount != 0 || stats.Size != 0 {
		t.Errorf("Stats() after Clear = %d entries, %d bytes", stats.ItemCount, stats.Size)
	}
}

func TestAudioCache_SweepUsesTTL(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	obs := &countingObserver{}
	c, err := New(Config{MaxBytes: 1024, MaxEntries: 10, TTL: time.Minute},
		WithLogger(quietLogger()), WithObserver(obs), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.Set("hello", 1.0, []byte("abc"), "audio/mpeg", "en-US"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(2 * time.Minute)

	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep() = %d, want 1", removed)
	}
	if obs.evicted[EvictExpired] != 1 {
		t.Errorf("expired evictions = %d, want 1", obs.evicted[EvictExpired])
	}
	if obs.lastEntries != 0 {
		t.Errorf("reported entries = %d, want 0", obs.lastEntries)
	}
}

func TestAudioCache_BackgroundSweep(t *testing.T) {
	c, err := New(Config{MaxBytes: 1024, MaxEntries: 10, TTL: time.Nanosecond, SweepInterval: 5 * time.Millisecond},
		WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	c.Start()
	defer c.Close() //nolint:errcheck

	if _, err := c.Set("hello", 1.0, []byte("abc"), "audio/mpeg", "en-US"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().ItemCount == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("background sweep did not remove the expired entry")
}

func TestAudioCache_DiskTierPromotion(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		MaxBytes:         4096,
		MaxEntries:       10,
		DiskPath:         dir,
		DiskCapacity:     1 << 20,
		CompressionLevel: 3,
	}

	first, err := New(cfg, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	payload := bytes.Repeat([]byte("audio"), 400)
	if _, err := first.Set("Good morning", 1.0, payload, "audio/mpeg", "en-US"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	obs := &countingObserver{}
	second, err := New(cfg, WithLogger(quietLogger()), WithObserver(obs))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer second.Close() //nolint:errcheck

	res, ok := second.Get("Good morning", 1.0, "en-US")
	if !ok {
		t.Fatal("expected disk tier hit after reopen")
	}
	if !bytes.Equal(res.Bytes(), payload) {
		t.Error("disk tier returned a different payload")
	}
	if res.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q, want audio/mpeg", res.MIMEType)
	}
	if second.Stats().ItemCount != 1 {
		t.Error("disk hit should be promoted into memory")
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero bytes", Config{MaxBytes: 0, MaxEntries: 1}},
		{"negative entries", Config{MaxBytes: 10, MaxEntries: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  hello  world ", "hello world"},
		{"line\nbreak", "line break"},
		{"café", "café"},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
