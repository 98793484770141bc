// Package metrics exports Prometheus instruments for the audio cache, the
// synthesis client, playback, speech sessions, training and reviews. A
// Metrics value satisfies the Observer interface of each of those packages.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgnsrekt/kaiwa/internal/cache"
)

// Namespace prefixes every metric name.
const Namespace = "kaiwa"

// Metrics groups all instruments.
type Metrics struct {
	registry *prometheus.Registry

	CacheHits       *prometheus.CounterVec
	CacheMisses     prometheus.Counter
	CacheEvictions  *prometheus.CounterVec
	CacheRejections prometheus.Counter
	CacheBytes      prometheus.Gauge
	CacheEntries    prometheus.Gauge

	SynthRequests *prometheus.CounterVec
	SynthLatency  prometheus.Histogram
	SynthRetries  prometheus.Counter
	Playbacks     *prometheus.CounterVec

	SpeechSessions *prometheus.CounterVec
	Reviews        *prometheus.CounterVec
	Drills         *prometheus.CounterVec
}

// New registers the instruments on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		CacheHits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_hits_total",
			Help:      "Audio cache hits by tier.",
		}, []string{"level"}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_misses_total",
			Help:      "Audio cache misses.",
		}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_evictions_total",
			Help:      "Audio cache evictions by reason.",
		}, []string{"reason"}),
		CacheRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cache_rejected_total",
			Help:      "Payloads too large to cache.",
		}),
		CacheBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cache_bytes",
			Help:      "Bytes held by the memory tier.",
		}),
		CacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "cache_entries",
			Help:      "Entries held by the memory tier.",
		}),
		SynthRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "synth_requests_total",
			Help:      "Synthesis requests by outcome.",
		}, []string{"outcome"}),
		SynthLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "synth_latency_ms",
			Help:      "Synthesis request latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000},
		}),
		SynthRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "synth_retries_total",
			Help:      "Synthesis retries after transient failures.",
		}),
		Playbacks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "playbacks_total",
			Help:      "Finished playbacks by outcome.",
		}, []string{"outcome"}),
		SpeechSessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "speech_sessions_total",
			Help:      "Speech recognition sessions by outcome.",
		}, []string{"outcome"}),
		Reviews: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reviews_total",
			Help:      "Review ratings by difficulty.",
		}, []string{"difficulty"}),
		Drills: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "drills_total",
			Help:      "Finished training sessions by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Registry returns the registry holding the instruments.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit(level cache.CacheLevel) { m.CacheHits.WithLabelValues(level.String()).Inc() }

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// CacheEvicted implements cache.Observer.
func (m *Metrics) CacheEvicted(reason cache.EvictReason) {
	m.CacheEvictions.WithLabelValues(reason.String()).Inc()
}

// CacheRejected implements cache.Observer.
func (m *Metrics) CacheRejected() { m.CacheRejections.Inc() }

// CacheSize implements cache.Observer.
func (m *Metrics) CacheSize(bytes int64, entries int) {
	m.CacheBytes.Set(float64(bytes))
	m.CacheEntries.Set(float64(entries))
}

// SynthRequest implements synth.Observer.
func (m *Metrics) SynthRequest(outcome string, d time.Duration) {
	m.SynthRequests.WithLabelValues(outcome).Inc()
	m.SynthLatency.Observe(float64(d.Milliseconds()))
}

// SynthRetry implements tts.Observer.
func (m *Metrics) SynthRetry() { m.SynthRetries.Inc() }

// PlaybackFinished implements tts.Observer.
func (m *Metrics) PlaybackFinished(outcome string) { m.Playbacks.WithLabelValues(outcome).Inc() }

// SpeechSession implements speech.Observer.
func (m *Metrics) SpeechSession(outcome string) { m.SpeechSessions.WithLabelValues(outcome).Inc() }

// ReviewRated implements review.Observer.
func (m *Metrics) ReviewRated(difficulty string) { m.Reviews.WithLabelValues(difficulty).Inc() }

// DrillFinished counts an archived training session.
func (m *Metrics) DrillFinished(kind string, completed bool) {
	result := "abandoned"
	if completed {
		result = "completed"
	}
	m.Drills.WithLabelValues(kind, result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
