package training_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/internal/clock"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/speech"
	"github.com/dgnsrekt/kaiwa/speech/recognizers/mock"
	"github.com/dgnsrekt/kaiwa/training"
	"github.com/dgnsrekt/kaiwa/tts"
)

type fakeSpeaker struct {
	mu            sync.Mutex
	played        []string
	err           error
	blockAutoplay bool
	blocked       bool
	stops         int
}

func (s *fakeSpeaker) Play(_ context.Context, text string, _ tts.Speed, autoplay bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, text)
	if autoplay && s.blockAutoplay {
		s.blocked = true
		return nil
	}
	if !autoplay {
		s.blocked = false
	}
	return s.err
}

func (s *fakeSpeaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSpeaker) AutoplayBlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked
}

func (s *fakeSpeaker) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}

type harness struct {
	clock   *clock.Fake
	rec     *mock.Recognizer
	speech  *speech.Controller
	speaker *fakeSpeaker
	history *training.History
	opts    []training.Option
}

func newHarness(t *testing.T, cfg training.Config) *harness {
	t.Helper()
	return newSpeechHarness(t, cfg, nil)
}

// newSpeechHarness is newHarness with a tuned speech controller.
func newSpeechHarness(t *testing.T, cfg training.Config, mutate func(*speech.Config)) *harness {
	t.Helper()
	sc := speech.DefaultConfig()
	if mutate != nil {
		mutate(&sc)
	}
	logger := log.New(io.Discard)
	h := &harness{
		clock:   clock.NewFake(time.Unix(0, 0)),
		rec:     mock.New(),
		speaker: &fakeSpeaker{},
		history: training.NewHistory(10),
	}
	h.speech = speech.NewController(h.rec, speech.WithConfig(sc), speech.WithClock(h.clock), speech.WithLogger(logger))
	h.opts = []training.Option{
		training.WithConfig(cfg),
		training.WithClock(h.clock),
		training.WithLogger(logger),
		training.WithHistory(h.history),
	}
	t.Cleanup(h.speech.Close)
	return h
}

func testScene() content.Scene {
	return content.Scene{
		ID:    "morning_greeting",
		Title: "Morning greeting",
		Turns: []content.Turn{
			{ID: "t1", Speaker: content.SpeakerAI, Text: "Good morning! How are you?", Responses: []content.Response{
				{ID: "t1-b1", Level: content.LevelBeginner, Text: "I'm fine, thank you."},
			}},
			{ID: "t2", Speaker: content.SpeakerAI, Text: "Did you sleep well?", Responses: []content.Response{
				{ID: "t2-b1", Level: content.LevelBeginner, Text: "Yes, I did."},
			}},
		},
	}
}

func testGroup() content.PhraseGroup {
	return content.PhraseGroup{
		ID:    "office-basics",
		Title: "Office basics",
		Phrases: []content.Phrase{
			{ID: "o1", Japanese: "おはようございます", English: "Good morning."},
			{ID: "o2", Japanese: "お疲れ様です", English: "Thank you for your hard work."},
			{ID: "o3", Japanese: "失礼します", English: "Excuse me."},
		},
	}
}
