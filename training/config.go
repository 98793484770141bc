package training

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/internal/clock"
	"github.com/dgnsrekt/kaiwa/tts"
)

var (
	// ErrEmptyScene is returned for a scene without turns.
	ErrEmptyScene = errors.New("scene has no turns")
	// ErrEmptyGroup is returned for a phrase group without phrases.
	ErrEmptyGroup = errors.New("phrase group has no phrases")
	// ErrComplete is returned by actions on a finished session.
	ErrComplete = errors.New("training session is complete")
)

// Speaker plays prompts aloud. *tts.Controller satisfies it.
type Speaker interface {
	Play(ctx context.Context, text string, speed tts.Speed, autoplay bool) error
	Stop() error
	AutoplayBlocked() bool
}

// Config holds drill settings.
type Config struct {
	// ResponseTimeLimit is the answer window of a conversation turn.
	ResponseTimeLimit time.Duration
	Speed             tts.Speed
	// AutoListen opens the answer window as soon as the prompt finishes.
	AutoListen bool
	// AutoAdvance moves to the next phrase after a correct mark.
	AutoAdvance  bool
	AdvanceDelay time.Duration
}

// DefaultConfig returns the default drill settings.
func DefaultConfig() Config {
	return Config{
		ResponseTimeLimit: 6 * time.Second,
		Speed:             tts.SpeedNormal,
		AutoListen:        true,
		AutoAdvance:       true,
		AdvanceDelay:      time.Second,
	}
}

// seconds rounds the time limit up to whole seconds.
func (c Config) seconds() int {
	return int((c.ResponseTimeLimit + time.Second - 1) / time.Second)
}

type settings struct {
	config  Config
	clock   clock.Clock
	logger  *log.Logger
	history *History
}

// Option configures a flow.
type Option func(*settings)

// WithConfig replaces the default settings.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.config = cfg }
}

// WithClock sets the clock driving countdowns and auto-advance.
func WithClock(clk clock.Clock) Option {
	return func(s *settings) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHistory archives finished sessions into h.
func WithHistory(h *History) Option {
	return func(s *settings) { s.history = h }
}

func newSettings(opts []Option) settings {
	s := settings{
		config: DefaultConfig(),
		clock:  clock.Real(),
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.history == nil {
		s.history = NewHistory(DefaultHistorySize)
	}
	return s
}
