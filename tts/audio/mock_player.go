package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/kaiwa/tts"
)

// MockPlayer implements tts.AudioPlayer for testing.
// It simulates playback timing without actual audio output.
type MockPlayer struct {
	mu      sync.Mutex
	playing bool
	stopCh  chan struct{}

	// Hold mode: Play blocks until Finish or Stop.
	hold    bool
	release chan struct{}

	// Test control
	speedMultiplier float64 // Scales audio.Duration; 0 completes immediately
	callbacks       MockCallbacks
	history         []PlaybackEvent
	plays           int
	last            *tts.Audio

	// Error injection for testing
	playError error
	stopError error
}

// MockCallbacks holds callback functions for testing.
type MockCallbacks struct {
	OnPlay func(audio *tts.Audio)
	OnStop func()
}

// PlaybackEvent records an event for testing verification.
type PlaybackEvent struct {
	Type      string // play, complete, stop, cancel, error
	Timestamp time.Time
	Audio     *tts.Audio
}

// NewMockPlayer creates a new mock audio player for testing.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{
		speedMultiplier: 1.0,
		release:         make(chan struct{}),
	}
}

// Play simulates playback of audio, blocking for its scaled duration.
func (mp *MockPlayer) Play(ctx context.Context, audio *tts.Audio) error {
	mp.mu.Lock()
	if mp.playError != nil {
		err := mp.playError
		mp.recordEvent("error", audio)
		mp.mu.Unlock()
		return err
	}
	if audio == nil {
		mp.mu.Unlock()
		return tts.ErrNothingToPlay
	}
	if mp.playing {
		mp.mu.Unlock()
		return errors.New("already playing")
	}

	mp.playing = true
	mp.plays++
	mp.last = audio
	stopCh := make(chan struct{})
	mp.stopCh = stopCh
	mp.recordEvent("play", audio)

	var done <-chan time.Time
	var release <-chan struct{}
	if mp.hold {
		release = mp.release
	} else {
		timer := time.NewTimer(time.Duration(float64(audio.Duration) * mp.speedMultiplier))
		defer timer.Stop()
		done = timer.C
	}
	onPlay := mp.callbacks.OnPlay
	mp.mu.Unlock()

	if onPlay != nil {
		onPlay(audio)
	}

	var err error
	event := "complete"
	select {
	case <-done:
	case <-release:
	case <-stopCh:
		event = "stop"
	case <-ctx.Done():
		err = ctx.Err()
		event = "cancel"
	}

	mp.mu.Lock()
	mp.playing = false
	if mp.stopCh == stopCh {
		mp.stopCh = nil
	}
	mp.recordEvent(event, audio)
	mp.mu.Unlock()
	return err
}

// Stop halts the current playback.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	if mp.stopError != nil {
		err := mp.stopError
		mp.mu.Unlock()
		return err
	}
	if mp.stopCh != nil {
		close(mp.stopCh)
		mp.stopCh = nil
	}
	onStop := mp.callbacks.OnStop
	mp.mu.Unlock()

	if onStop != nil {
		onStop()
	}
	return nil
}

// IsPlaying returns true if audio is currently playing.
func (mp *MockPlayer) IsPlaying() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.playing
}

func (mp *MockPlayer) recordEvent(eventType string, audio *tts.Audio) {
	mp.history = append(mp.history, PlaybackEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		Audio:     audio,
	})
}

// Test Control Methods

// SetSpeedMultiplier scales simulated durations. 0 completes immediately.
func (mp *MockPlayer) SetSpeedMultiplier(multiplier float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if multiplier < 0 {
		multiplier = 1.0
	}
	mp.speedMultiplier = multiplier
}

// Hold makes later Play calls block until Finish or Stop.
func (mp *MockPlayer) Hold() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.hold = true
}

// Finish completes every held playback.
func (mp *MockPlayer) Finish() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	close(mp.release)
	mp.release = make(chan struct{})
}

// SetCallbacks sets the test callbacks.
func (mp *MockPlayer) SetCallbacks(callbacks MockCallbacks) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.callbacks = callbacks
}

// SetPlayError injects an error returned by Play.
func (mp *MockPlayer) SetPlayError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.playError = err
}

// SetStopError injects an error returned by Stop.
func (mp *MockPlayer) SetStopError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopError = err
}

// PlayCount returns how many playbacks started.
func (mp *MockPlayer) PlayCount() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.plays
}

// LastAudio returns the most recently played audio.
func (mp *MockPlayer) LastAudio() *tts.Audio {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.last
}

// History returns a copy of the recorded events.
func (mp *MockPlayer) History() []PlaybackEvent {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]PlaybackEvent, len(mp.history))
	copy(out, mp.history)
	return out
}

// EventTypes returns the recorded event types in order.
func (mp *MockPlayer) EventTypes() []string {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]string, len(mp.history))
	for i, e := range mp.history {
		out[i] = e.Type
	}
	return out
}

var _ tts.AudioPlayer = (*MockPlayer)(nil)
