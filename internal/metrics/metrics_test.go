package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/synth"
	"github.com/dgnsrekt/kaiwa/review"
	"github.com/dgnsrekt/kaiwa/speech"
	"github.com/dgnsrekt/kaiwa/tts"
)

var (
	_ cache.Observer  = (*Metrics)(nil)
	_ synth.Observer  = (*Metrics)(nil)
	_ tts.Observer    = (*Metrics)(nil)
	_ speech.Observer = (*Metrics)(nil)
	_ review.Observer = (*Metrics)(nil)
)

func TestObservers(t *testing.T) {
	m := New()

	m.CacheHit(cache.CacheLevelMemory)
	m.CacheHit(cache.CacheLevelDisk)
	m.CacheHit(cache.CacheLevelDisk)
	m.CacheMiss()
	m.CacheEvicted(cache.EvictExpired)
	m.CacheRejected()
	m.CacheSize(4096, 3)
	m.SynthRequest("ok", 120*time.Millisecond)
	m.SynthRetry()
	m.PlaybackFinished("completed")
	m.SpeechSession("timeup")
	m.ReviewRated("good")
	m.DrillFinished("phrase", true)
	m.DrillFinished("phrase", false)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"memory hits", testutil.ToFloat64(m.CacheHits.WithLabelValues("memory")), 1},
		{"disk hits", testutil.ToFloat64(m.CacheHits.WithLabelValues("disk")), 2},
		{"misses", testutil.ToFloat64(m.CacheMisses), 1},
		{"expired evictions", testutil.ToFloat64(m.CacheEvictions.WithLabelValues("expired")), 1},
		{"rejected", testutil.ToFloat64(m.CacheRejections), 1},
		{"bytes", testutil.ToFloat64(m.CacheBytes), 4096},
		{"entries", testutil.ToFloat64(m.CacheEntries), 3},
		{"synth ok", testutil.ToFloat64(m.SynthRequests.WithLabelValues("ok")), 1},
		{"retries", testutil.ToFloat64(m.SynthRetries), 1},
		{"playbacks", testutil.ToFloat64(m.Playbacks.WithLabelValues("completed")), 1},
		{"speech timeup", testutil.ToFloat64(m.SpeechSessions.WithLabelValues("timeup")), 1},
		{"reviews good", testutil.ToFloat64(m.Reviews.WithLabelValues("good")), 1},
		{"drills completed", testutil.ToFloat64(m.Drills.WithLabelValues("phrase", "completed")), 1},
		{"drills abandoned", testutil.ToFloat64(m.Drills.WithLabelValues("phrase", "abandoned")), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	m := New()
	m.ReviewRated("easy")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `kaiwa_reviews_total{difficulty="easy"} 1`) {
		t.Errorf("exposition missing reviews counter:\n%s", body)
	}
}

func TestSeparateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	a.CacheMiss()
	if got := testutil.ToFloat64(b.CacheMisses); got != 0 {
		t.Errorf("b misses = %v, want 0", got)
	}
}
