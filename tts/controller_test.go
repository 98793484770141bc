package tts_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/synth"
	"github.com/dgnsrekt/kaiwa/tts"
	"github.com/dgnsrekt/kaiwa/tts/audio"
)

// fakeSynth answers with respond, counting calls.
type fakeSynth struct {
	mu      sync.Mutex
	calls   int
	texts   []string
	rates   []float64
	respond func(ctx context.Context, call int, text string) (*synth.Result, error)
}

func (f *fakeSynth) Synthesize(ctx context.Context, text string, rate float64) (*synth.Result, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.texts = append(f.texts, text)
	f.rates = append(f.rates, rate)
	f.mu.Unlock()
	if f.respond == nil {
		return &synth.Result{AudioData: b64(mp3Clip(400)), MIMEType: "audio/mpeg"}, nil
	}
	return f.respond(ctx, call, text)
}

func (f *fakeSynth) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recorder struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type harness struct {
	ctl    *tts.Controller
	synth  *fakeSynth
	player *audio.MockPlayer
	cache  *cache.AudioCache
	rec    *recorder
	delays []time.Duration
}

func newHarness(t *testing.T, cfg tts.ControllerConfig) *harness {
	t.Helper()
	quiet := log.New(io.Discard)

	ac, err := cache.New(cache.Config{MaxBytes: 1 << 20, MaxEntries: 10}, cache.WithLogger(quiet))
	if err != nil {
		t.Fatalf("cache.New failed: %v", err)
	}

	h := &harness{
		synth:  &fakeSynth{},
		player: audio.NewMockPlayer(),
		cache:  ac,
		rec:    &recorder{},
	}
	h.player.SetSpeedMultiplier(0)

	var mu sync.Mutex
	h.ctl = tts.NewController(h.synth, h.player,
		tts.WithCache(ac),
		tts.WithConfig(cfg),
		tts.WithLogger(quiet),
		tts.WithSleep(func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			h.delays = append(h.delays, d)
			mu.Unlock()
			return ctx.Err()
		}),
	)
	h.ctl.OnPlayStart(func() { h.rec.add("start") })
	h.ctl.OnPlayEnd(func() { h.rec.add("end") })
	h.ctl.OnError(func(err error) {
		h.rec.mu.Lock()
		h.rec.errs = append(h.rec.errs, err)
		h.rec.mu.Unlock()
		h.rec.add("error")
	})
	return h
}

func testConfig() tts.ControllerConfig {
	cfg := tts.DefaultControllerConfig()
	cfg.RequestTimeout = time.Second
	return cfg
}

func TestPlaySynthesizesCachesAndPlays(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	if err := h.ctl.Play(ctx, "Nice to meet you.", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if got := h.rec.Events(); len(got) != 2 || got[0] != "start" || got[1] != "end" {
		t.Errorf("events = %v, want [start end]", got)
	}
	if h.ctl.State().Current != tts.StateIdle {
		t.Errorf("state = %v, want idle", h.ctl.State().Current)
	}

	if err := h.ctl.Play(ctx, "  Nice to meet you. ", tts.SpeedNormal, false); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	if h.synth.Calls() != 1 {
		t.Errorf("synth calls = %d, want 1 (second play from cache)", h.synth.Calls())
	}
	if last := h.player.LastAudio(); last == nil || last.Resource == nil {
		t.Error("cached playback should carry its cache handle")
	}

	if err := h.ctl.Play(ctx, "Nice to meet you.", tts.SpeedSlow, false); err != nil {
		t.Fatalf("slow Play failed: %v", err)
	}
	if h.synth.Calls() != 2 {
		t.Errorf("synth calls = %d, want 2 (slow is a separate entry)", h.synth.Calls())
	}
}

func TestSlowRateOverride(t *testing.T) {
	cfg := testConfig()
	cfg.SlowRate = 0.5
	h := newHarness(t, cfg)

	if err := h.ctl.Play(context.Background(), "Slowly, please.", tts.SpeedSlow, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if err := h.ctl.Play(context.Background(), "Slowly, please.", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	h.synth.mu.Lock()
	defer h.synth.mu.Unlock()
	if len(h.synth.rates) != 2 || h.synth.rates[0] != 0.5 || h.synth.rates[1] != 1.0 {
		t.Errorf("rates = %v, want [0.5 1]", h.synth.rates)
	}
}

func TestPlayValidatesInput(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		speed tts.Speed
		want  error
	}{
		{"empty text", "   ", tts.SpeedNormal, tts.ErrEmptyText},
		{"unknown speed", "hi", tts.Speed(9), tts.ErrInvalidSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			err := h.ctl.Play(context.Background(), tt.text, tt.speed, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Play() error = %v, want %v", err, tt.want)
			}
			if tts.KindOf(err) != tts.KindInvalidInput {
				t.Errorf("KindOf() = %v, want invalid_input", tts.KindOf(err))
			}
			if h.synth.Calls() != 0 {
				t.Error("invalid input must not reach the synthesizer")
			}
		})
	}
}

func TestPlayRetryCeiling(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 3} {
		cfg := testConfig()
		cfg.MaxRetries = maxRetries
		h := newHarness(t, cfg)
		h.synth.respond = func(context.Context, int, string) (*synth.Result, error) {
			return nil, &synth.StatusError{Code: 503}
		}

		err := h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, false)
		if tts.KindOf(err) != tts.KindNetwork {
			t.Fatalf("maxRetries=%d: error = %v, want network kind", maxRetries, err)
		}
		if got := h.synth.Calls(); got != maxRetries+1 {
			t.Errorf("maxRetries=%d: synth calls = %d, want %d", maxRetries, got, maxRetries+1)
		}
		if errs := h.rec.Errors(); len(errs) != 1 {
			t.Errorf("maxRetries=%d: OnError fired %d times, want 1", maxRetries, len(errs))
		}
		if h.ctl.State().Current != tts.StateError {
			t.Errorf("state = %v, want error", h.ctl.State().Current)
		}
	}
}

func TestPlayBackoffDoubles(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	h := newHarness(t, cfg)
	h.synth.respond = func(_ context.Context, call int, _ string) (*synth.Result, error) {
		if call <= 3 {
			return nil, &synth.StatusError{Code: 502}
		}
		return &synth.Result{AudioData: b64(mp3Clip(400)), MIMEType: "audio/mpeg"}, nil
	}

	if err := h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(h.delays) != len(want) {
		t.Fatalf("delays = %v, want %v", h.delays, want)
	}
	for i := range want {
		if h.delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, h.delays[i], want[i])
		}
	}
	if got := h.ctl.State().RetryCount; got != 3 {
		t.Errorf("RetryCount = %d, want 3", got)
	}
}

func TestPlayTerminalFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name    string
		respond func(context.Context, int, string) (*synth.Result, error)
		kind    tts.ErrorKind
	}{
		{"empty payload error", func(context.Context, int, string) (*synth.Result, error) {
			return nil, synth.ErrEmptyPayload
		}, tts.KindEmptyPayload},
		{"empty audio field", func(context.Context, int, string) (*synth.Result, error) {
			return &synth.Result{MIMEType: "audio/mpeg"}, nil
		}, tts.KindEmptyPayload},
		{"client error", func(context.Context, int, string) (*synth.Result, error) {
			return nil, &synth.StatusError{Code: 400, Body: "Text is required"}
		}, tts.KindSynthesis},
		{"undecodable audio", func(context.Context, int, string) (*synth.Result, error) {
			return &synth.Result{AudioData: b64([]byte("plain text, not audio")), MIMEType: "audio/mpeg"}, nil
		}, tts.KindDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testConfig())
			h.synth.respond = tt.respond

			err := h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, false)
			if tts.KindOf(err) != tt.kind {
				t.Fatalf("error = %v (kind %v), want kind %v", err, tts.KindOf(err), tt.kind)
			}
			if h.synth.Calls() != 1 {
				t.Errorf("synth calls = %d, want 1", h.synth.Calls())
			}
			if h.cache.Stats().ItemCount != 0 {
				t.Error("failed payloads must not be cached")
			}
			if h.player.PlayCount() != 0 {
				t.Error("nothing should have played")
			}
		})
	}
}

func TestPlayTimeoutIsRetried(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.RequestTimeout = 10 * time.Millisecond
	h := newHarness(t, cfg)
	h.synth.respond = func(ctx context.Context, _ int, _ string) (*synth.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	err := h.ctl.Play(context.Background(), "slow server", tts.SpeedNormal, false)
	if tts.KindOf(err) != tts.KindTimeout {
		t.Fatalf("error = %v, want timeout kind", err)
	}
	if h.synth.Calls() != 2 {
		t.Errorf("synth calls = %d, want 2", h.synth.Calls())
	}
}

func TestAutoplayBlockedDowngrade(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.SetPlayError(tts.ErrAutoplayBlocked)

	if err := h.ctl.Play(context.Background(), "Welcome!", tts.SpeedNormal, true); err != nil {
		t.Fatalf("autoplay Play() = %v, want nil", err)
	}
	if !h.ctl.AutoplayBlocked() {
		t.Error("AutoplayBlocked() = false, want true")
	}
	if h.ctl.State().Current != tts.StateBlocked {
		t.Errorf("state = %v, want blocked", h.ctl.State().Current)
	}
	errs := h.rec.Errors()
	if len(errs) != 1 || tts.KindOf(errs[0]) != tts.KindAutoplayBlocked || !tts.IsRecoverableError(errs[0]) {
		t.Fatalf("OnError = %v, want one recoverable autoplay_blocked error", errs)
	}

	// A manual play clears the flag and succeeds.
	h.player.SetPlayError(nil)
	if err := h.ctl.Play(context.Background(), "Welcome!", tts.SpeedNormal, false); err != nil {
		t.Fatalf("manual Play failed: %v", err)
	}
	if h.ctl.AutoplayBlocked() {
		t.Error("manual play should clear the blocked flag")
	}
}

func TestAutoplaySwallowsTerminalSynthesisErrors(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	h := newHarness(t, cfg)
	h.synth.respond = func(context.Context, int, string) (*synth.Result, error) {
		return nil, &synth.StatusError{Code: 500}
	}

	if err := h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, true); err != nil {
		t.Fatalf("autoplay Play() = %v, want nil", err)
	}
	if h.synth.Calls() != 2 {
		t.Errorf("synth calls = %d, want 2", h.synth.Calls())
	}
	errs := h.rec.Errors()
	if len(errs) != 1 || !errors.Is(errs[0], tts.ErrAutoplayBlocked) {
		t.Errorf("OnError = %v, want autoplay blocked", errs)
	}
}

func TestManualPlaybackFailureSurfaces(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.SetPlayError(errors.New("device lost"))

	err := h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, false)
	if !errors.Is(err, tts.ErrPlaybackFailed) || tts.KindOf(err) != tts.KindPlayback {
		t.Fatalf("Play() = %v, want playback failure", err)
	}
	if h.ctl.AutoplayBlocked() {
		t.Error("manual failures must not set the blocked flag")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPlayWhilePlayingIsNoop(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.Hold()

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background(), "first", tts.SpeedNormal, false) }()
	waitFor(t, h.ctl.IsPlaying)

	if err := h.ctl.Play(context.Background(), "second", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play while playing = %v, want nil", err)
	}
	if h.synth.Calls() != 1 || h.player.PlayCount() != 1 {
		t.Errorf("synth calls/plays = %d/%d, want 1/1", h.synth.Calls(), h.player.PlayCount())
	}

	h.player.Finish()
	if err := <-done; err != nil {
		t.Fatalf("first Play failed: %v", err)
	}
}

func TestStopDuringPlayback(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.Hold()

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background(), "long answer", tts.SpeedNormal, false) }()
	waitFor(t, h.ctl.IsPlaying)

	if err := h.ctl.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Play after Stop = %v, want nil", err)
	}

	if got := h.rec.Events(); len(got) != 1 || got[0] != "start" {
		t.Errorf("events = %v, want [start] (no end after stop)", got)
	}
	if h.ctl.State().Current != tts.StateIdle {
		t.Errorf("state = %v, want idle", h.ctl.State().Current)
	}
}

func TestNewPlaySupersedesLoading(t *testing.T) {
	h := newHarness(t, testConfig())
	firstStarted := make(chan struct{})
	h.synth.respond = func(ctx context.Context, _ int, text string) (*synth.Result, error) {
		if text == "first" {
			close(firstStarted)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &synth.Result{AudioData: b64(mp3Clip(400)), MIMEType: "audio/mpeg"}, nil
	}

	done := make(chan error, 1)
	go func() { done <- h.ctl.Play(context.Background(), "first", tts.SpeedNormal, false) }()
	<-firstStarted

	if err := h.ctl.Play(context.Background(), "second", tts.SpeedNormal, false); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("superseded Play = %v, want nil", err)
	}
	if len(h.rec.Errors()) != 0 {
		t.Errorf("superseded request reported errors: %v", h.rec.Errors())
	}
	if h.player.PlayCount() != 1 {
		t.Errorf("plays = %d, want 1", h.player.PlayCount())
	}
}

func TestResetClearsState(t *testing.T) {
	h := newHarness(t, testConfig())
	h.player.SetPlayError(tts.ErrAutoplayBlocked)
	_ = h.ctl.Play(context.Background(), "hello", tts.SpeedNormal, true)

	if err := h.ctl.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	s := h.ctl.State()
	if s.Current != tts.StateIdle || s.AutoplayBlocked || s.LastError != nil || s.RetryCount != 0 {
		t.Errorf("State() after Reset = %+v", s)
	}
}

func TestPreloadWarmsCache(t *testing.T) {
	h := newHarness(t, testConfig())
	ctx := context.Background()

	if err := h.ctl.Play(ctx, "Hello", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	texts := []string{"Hello", "How are you?", "Nice to meet you.", ""}
	if err := h.ctl.Preload(ctx, texts, tts.SpeedNormal); err != nil {
		t.Fatalf("Preload failed: %v", err)
	}
	if h.synth.Calls() != 3 {
		t.Errorf("synth calls = %d, want 3", h.synth.Calls())
	}

	if err := h.ctl.Play(ctx, "How are you?", tts.SpeedNormal, false); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if h.synth.Calls() != 3 {
		t.Errorf("synth calls = %d, want 3 after cached play", h.synth.Calls())
	}
}

func TestPreloadJoinsFailures(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	h := newHarness(t, cfg)
	h.synth.respond = func(_ context.Context, _ int, text string) (*synth.Result, error) {
		if text == "bad" {
			return nil, synth.ErrEmptyPayload
		}
		return &synth.Result{AudioData: b64(mp3Clip(400)), MIMEType: "audio/mpeg"}, nil
	}

	err := h.ctl.Preload(context.Background(), []string{"good", "bad"}, tts.SpeedSlow)
	if tts.KindOf(err) != tts.KindEmptyPayload {
		t.Fatalf("Preload() = %v, want empty payload failure", err)
	}
	if h.cache.Stats().ItemCount != 1 {
		t.Errorf("cached = %d, want 1", h.cache.Stats().ItemCount)
	}
}
