// Package tts plays synthesized utterances: cache lookup, synthesis with
// retry, decode and playback, behind a small state machine.
package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/synth"
)

// ControllerConfig holds configuration for the audio session controller.
type ControllerConfig struct {
	MaxRetries         int           // Synthesis retries after the first attempt
	RetryBaseDelay     time.Duration // First backoff delay, doubled per retry
	RetryMaxDelay      time.Duration // Backoff ceiling
	RequestTimeout     time.Duration // Per-attempt synthesis timeout
	Lang               string        // Voice language, part of the cache key
	PreloadConcurrency int           // Parallel syntheses during Preload
	SlowRate           float64       // Rate of SpeedSlow, 0 means SlowRate
}

// DefaultControllerConfig returns a sensible default configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		MaxRetries:         3,
		RetryBaseDelay:     time.Second,
		RetryMaxDelay:      8 * time.Second,
		RequestTimeout:     10 * time.Second,
		Lang:               "en-US",
		PreloadConcurrency: 3,
	}
}

func (c *Controller) rate(speed Speed) float64 {
	if speed == SpeedSlow && c.config.SlowRate > 0 {
		return c.config.SlowRate
	}
	return speed.Rate()
}

// Controller produces audible playback of one utterance at a time.
type Controller struct {
	synth    Synthesizer
	player   AudioPlayer
	cache    AudioCache
	config   ControllerConfig
	logger   *log.Logger
	observer Observer
	sleep    func(context.Context, time.Duration) error

	mu      sync.Mutex
	machine *StateMachine
	state   State
	token   uint64
	cancel  context.CancelFunc
	current *Audio

	onPlayStart   func()
	onPlayEnd     func()
	onError       func(error)
	onStateChange func(StateType)
}

// Option configures a Controller.
type Option func(*Controller)

// WithCache enables the audio cache.
func WithCache(c AudioCache) Option {
	return func(ctl *Controller) { ctl.cache = c }
}

// WithConfig replaces the default configuration.
func WithConfig(cfg ControllerConfig) Option {
	return func(ctl *Controller) { ctl.config = cfg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(ctl *Controller) {
		if l != nil {
			ctl.logger = l
		}
	}
}

// WithObserver attaches a telemetry observer.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) {
		if o != nil {
			ctl.observer = o
		}
	}
}

// WithSleep replaces the backoff wait, for tests.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(ctl *Controller) {
		if fn != nil {
			ctl.sleep = fn
		}
	}
}

// NewController creates a controller over the given synthesizer and player.
func NewController(s Synthesizer, p AudioPlayer, opts ...Option) *Controller {
	c := &Controller{
		synth:    s,
		player:   p,
		config:   DefaultControllerConfig(),
		logger:   log.Default(),
		observer: nopObserver{},
		sleep:    sleepContext,
		machine:  NewStateMachine(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.setupStateMachine()
	return c
}

// OnPlayStart registers a callback fired when audio becomes audible.
func (c *Controller) OnPlayStart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPlayStart = fn
}

// OnPlayEnd registers a callback fired when playback completes normally.
func (c *Controller) OnPlayEnd(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPlayEnd = fn
}

// OnError registers a callback for terminal and autoplay errors.
func (c *Controller) OnError(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = fn
}

// OnStateChange registers a callback for state changes.
func (c *Controller) OnStateChange(fn func(StateType)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onStateChange = fn
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Current = c.machine.Current()
	return s
}

// AutoplayBlocked reports whether the last autoplay attempt was refused.
func (c *Controller) AutoplayBlocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.AutoplayBlocked
}

// IsPlaying reports whether audio is audible.
func (c *Controller) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Current() == StatePlaying
}

// Play loads and plays text, blocking until playback ends. It is a no-op
// while audio is already playing. A call made while another request is
// still loading supersedes it.
//
// When autoplay is true, failures move the session to StateBlocked, are
// reported through OnError and Play returns nil. A manual call clears the
// blocked flag and returns failures.
func (c *Controller) Play(ctx context.Context, text string, speed Speed, autoplay bool) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewAudioError(KindInvalidInput, ErrEmptyText, text)
	}
	if !speed.Valid() {
		return NewAudioError(KindInvalidInput, fmt.Errorf("%w: %v", ErrInvalidSpeed, speed), text)
	}

	c.mu.Lock()
	if c.machine.Current() == StatePlaying {
		c.mu.Unlock()
		c.logger.Debug("play ignored, audio already playing", "text", text)
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.token++
	token := c.token
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	if !autoplay {
		c.state.AutoplayBlocked = false
	}
	c.state.Text = text
	c.state.Speed = speed
	c.state.RetryCount = 0
	c.state.LastError = nil
	notify := c.transitionLocked(StateLoading)
	c.mu.Unlock()
	defer cancel()
	notify()

	audio, err := c.load(ctx, token, text, speed)
	if err != nil {
		return c.fail(ctx, token, err, text, autoplay)
	}

	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		return nil
	}
	c.current = audio
	notify = c.transitionLocked(StatePlaying)
	onStart := c.onPlayStart
	c.mu.Unlock()
	notify()
	if onStart != nil {
		onStart()
	}

	c.logger.Debug("playback started", "text", text, "speed", speed, "format", audio.Format, "duration", audio.Duration)
	playErr := c.player.Play(ctx, audio)

	c.mu.Lock()
	if token != c.token {
		// Stopped or reset while playing.
		c.mu.Unlock()
		c.observer.PlaybackFinished("stopped")
		return nil
	}
	c.current = nil
	if playErr != nil {
		c.mu.Unlock()
		if ctx.Err() != nil {
			return c.fail(ctx, token, ctx.Err(), text, autoplay)
		}
		if !errors.Is(playErr, ErrAutoplayBlocked) {
			playErr = fmt.Errorf("%w: %w", ErrPlaybackFailed, playErr)
		}
		return c.fail(ctx, token, NewAudioError(KindPlayback, playErr, text), text, autoplay)
	}
	notify = c.transitionLocked(StateIdle)
	c.clearCancelLocked(token)
	onEnd := c.onPlayEnd
	c.mu.Unlock()
	notify()

	c.observer.PlaybackFinished("completed")
	if onEnd != nil {
		onEnd()
	}
	return nil
}

// Stop halts playback immediately and discards the in-flight audio. It does
// not fire OnPlayEnd.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.token++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.current = nil
	notify := func() {}
	if cur := c.machine.Current(); cur == StateLoading || cur == StatePlaying {
		notify = c.transitionLocked(StateIdle)
	}
	c.mu.Unlock()
	notify()

	if c.player.IsPlaying() {
		if err := c.player.Stop(); err != nil {
			return fmt.Errorf("failed to stop player: %w", err)
		}
	}
	return nil
}

// Reset stops playback and clears counters, the blocked flag and the last
// error.
func (c *Controller) Reset() error {
	err := c.Stop()

	c.mu.Lock()
	c.state = State{}
	prev := c.machine.Current()
	c.machine.Force(StateIdle)
	fn := c.onStateChange
	c.mu.Unlock()

	if fn != nil && prev != StateIdle {
		fn(StateIdle)
	}
	return err
}

// Preload synthesizes and caches texts that are not cached yet, so later
// Play calls hit the cache. Failures do not stop other texts; they are
// joined into the returned error.
func (c *Controller) Preload(ctx context.Context, texts []string, speed Speed) error {
	if c.cache == nil {
		return nil
	}
	if !speed.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.config.PreloadConcurrency))

	var (
		mu   sync.Mutex
		errs []error
	)
	for _, text := range texts {
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if res, ok := c.cache.Get(text, c.rate(speed), c.config.Lang); ok && !res.Released() {
			continue
		}
		g.Go(func() error {
			if _, err := c.fetchAndStore(ctx, 0, text, speed); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("preload %q: %w", text, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		c.logger.Warn("audio preload incomplete", "failed", len(errs), "total", len(texts))
	}
	return errors.Join(errs...)
}

func (c *Controller) load(ctx context.Context, token uint64, text string, speed Speed) (*Audio, error) {
	if c.cache != nil {
		if res, ok := c.cache.Get(text, c.rate(speed), c.config.Lang); ok {
			if data := res.Bytes(); data != nil {
				audio, err := DecodeAudio(data, res.MIMEType)
				if err == nil {
					audio.Resource = res
					return audio, nil
				}
				c.logger.Warn("cached audio failed to decode, refetching", "text", text, "err", err)
			}
		}
	}
	return c.fetchAndStore(ctx, token, text, speed)
}

// fetchAndStore synthesizes, decodes and caches one utterance. Only payloads
// that decode are cached.
func (c *Controller) fetchAndStore(ctx context.Context, token uint64, text string, speed Speed) (*Audio, error) {
	res, attempts, err := c.synthesize(ctx, token, text, speed)
	if err != nil {
		return nil, err
	}

	audio, err := DecodePayload(res.AudioData, res.MIMEType)
	if err != nil {
		kind := KindDecode
		if errors.Is(err, ErrEmptyPayload) {
			kind = KindEmptyPayload
		}
		return nil, NewAudioError(kind, err, text).WithAttempts(attempts)
	}

	if c.cache != nil {
		handle, err := c.cache.Set(text, c.rate(speed), audio.Data, audio.MIMEType, c.config.Lang)
		if err == nil {
			audio.Resource = handle
		} else if !errors.Is(err, cache.ErrItemTooLarge) {
			c.logger.Warn("audio cache store failed", "text", text, "err", err)
		}
	}
	return audio, nil
}

// synthesize calls the synthesizer at most MaxRetries+1 times, backing off
// exponentially between retryable failures.
func (c *Controller) synthesize(ctx context.Context, token uint64, text string, speed Speed) (*synth.Result, int, error) {
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
		res, err := c.synth.Synthesize(attemptCtx, text, c.rate(speed))
		cancel()
		if err == nil {
			if res == nil || res.AudioData == "" {
				return nil, attempt + 1, NewAudioError(KindEmptyPayload, ErrEmptyPayload, text).WithAttempts(attempt + 1)
			}
			return res, attempt + 1, nil
		}

		if ctx.Err() != nil {
			return nil, attempt + 1, ctx.Err()
		}

		kind := classifySynthError(err)
		if !kind.Retryable() || attempt >= c.config.MaxRetries {
			return nil, attempt + 1, NewAudioError(kind, err, text).WithAttempts(attempt + 1)
		}

		delay := ExponentialBackoff(attempt, c.config.RetryBaseDelay, c.config.RetryMaxDelay)
		c.logger.Debug("synthesis failed, retrying", "text", text, "attempt", attempt+1, "delay", delay, "err", err)
		c.observer.SynthRetry()
		if token != 0 {
			c.mu.Lock()
			if token == c.token {
				c.state.RetryCount++
			}
			c.mu.Unlock()
		}

		if err := c.sleep(ctx, delay); err != nil {
			return nil, attempt + 1, err
		}
	}
}

func (c *Controller) requestTimeout() time.Duration {
	if c.config.RequestTimeout > 0 {
		return c.config.RequestTimeout
	}
	return DefaultControllerConfig().RequestTimeout
}

// fail records a failed request. Superseded requests and caller
// cancellation end quietly.
func (c *Controller) fail(ctx context.Context, token uint64, err error, text string, autoplay bool) error {
	c.mu.Lock()
	if token != c.token {
		c.mu.Unlock()
		return nil
	}
	c.clearCancelLocked(token)
	c.current = nil

	if ctx.Err() != nil && !errors.As(err, new(*AudioError)) {
		notify := c.transitionLocked(StateIdle)
		c.mu.Unlock()
		notify()
		return err
	}

	var ae *AudioError
	if !errors.As(err, &ae) {
		ae = NewAudioError(KindUnknown, err, text)
	}

	onError := c.onError
	if autoplay {
		blocked := NewAudioError(KindAutoplayBlocked, fmt.Errorf("%w: %w", ErrAutoplayBlocked, ae), text).
			WithAttempts(ae.Attempts)
		c.state.AutoplayBlocked = true
		c.state.LastError = blocked
		notify := c.transitionLocked(StateBlocked)
		c.mu.Unlock()
		notify()

		c.observer.PlaybackFinished("blocked")
		c.logger.Info("autoplay blocked, manual playback required", "text", text, "cause", ae.Kind)
		if onError != nil {
			onError(blocked)
		}
		return nil
	}

	c.state.LastError = ae
	notify := c.transitionLocked(StateError)
	c.mu.Unlock()
	notify()

	c.observer.PlaybackFinished(ae.Kind.String())
	c.logger.Warn("audio playback failed", "text", text, "kind", ae.Kind, "attempts", ae.Attempts, "err", ae.Err)
	if onError != nil {
		onError(ae)
	}
	return ae
}

func (c *Controller) clearCancelLocked(token uint64) {
	if token == c.token && c.cancel != nil {
		c.cancel = nil
	}
}

// transitionLocked moves the machine and returns the notification to run
// once the lock is released.
func (c *Controller) transitionLocked(to StateType) func() {
	if !c.machine.Transition(to) {
		c.logger.Debug("ignored invalid audio state transition", "from", c.machine.Current(), "to", to)
		return func() {}
	}
	fn := c.onStateChange
	if fn == nil {
		return func() {}
	}
	return func() { fn(to) }
}

func (c *Controller) setupStateMachine() {
	c.machine.OnEnter(StateLoading, func() {
		c.current = nil
	})
}

func classifySynthError(err error) ErrorKind {
	var se *synth.StatusError
	switch {
	case errors.Is(err, synth.ErrEmptyPayload), errors.Is(err, synth.ErrBadResponse):
		return KindEmptyPayload
	case errors.Is(err, synth.ErrEmptyText), errors.Is(err, synth.ErrTextTooLong):
		return KindInvalidInput
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &se):
		if se.Temporary() {
			return KindNetwork
		}
		return KindSynthesis
	default:
		return KindNetwork
	}
}
