package training_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/speech"
	"github.com/dgnsrekt/kaiwa/training"
)

func newPhrases(t *testing.T, cfg training.Config) (*training.PhraseFlow, *harness) {
	t.Helper()
	h := newHarness(t, cfg)
	f, err := training.NewPhraseFlow(testGroup(), h.speaker, h.speech, h.opts...)
	if err != nil {
		t.Fatalf("NewPhraseFlow() error = %v", err)
	}
	return f, h
}

func TestNewPhraseFlowEmptyGroup(t *testing.T) {
	h := newHarness(t, training.DefaultConfig())
	_, err := training.NewPhraseFlow(content.PhraseGroup{ID: "empty"}, h.speaker, h.speech, h.opts...)
	if !errors.Is(err, training.ErrEmptyGroup) {
		t.Errorf("NewPhraseFlow() error = %v, want %v", err, training.ErrEmptyGroup)
	}
}

func TestPhraseFirstPassAndRetry(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())

	if err := f.MarkCorrect(); err != nil {
		t.Fatalf("MarkCorrect() error = %v", err)
	}
	if st := f.State(); st.Phase != training.PhraseMarked || st.Mark != training.Correct || !st.ShowAnswer {
		t.Errorf("state after MarkCorrect = %+v", st)
	}
	h.clock.Advance(999 * time.Millisecond)
	if got := f.State().Index; got != 0 {
		t.Errorf("Index before delay = %d, want 0", got)
	}
	h.clock.Advance(time.Millisecond)
	if got := f.State().Index; got != 1 {
		t.Fatalf("Index after delay = %d, want 1", got)
	}

	if err := f.MarkIncorrect(); err != nil {
		t.Fatalf("MarkIncorrect() error = %v", err)
	}
	h.clock.Advance(5 * time.Second)
	st := f.State()
	if st.Index != 1 {
		t.Errorf("Index = %d, want no auto advance after incorrect", st.Index)
	}
	if !slices.Equal(st.Incorrect, []int{1}) {
		t.Errorf("Incorrect = %v, want [1]", st.Incorrect)
	}

	if err := f.Next(); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if err := f.MarkCorrect(); err != nil {
		t.Fatalf("MarkCorrect() error = %v", err)
	}
	h.clock.Advance(time.Second)
	st = f.State()
	if !st.RetryPass || st.Index != 1 {
		t.Fatalf("state = %+v, want retry pass on phrase 1", st)
	}
	if st.Completed != 2 || st.Progress() <= 0.6 || st.Progress() >= 0.7 {
		t.Errorf("Completed = %d, Progress() = %v", st.Completed, st.Progress())
	}

	if err := f.MarkCorrect(); err != nil {
		t.Fatalf("MarkCorrect() error = %v", err)
	}
	st = f.State()
	if st.Phase != training.PhraseComplete || st.Completed != 3 || len(st.Incorrect) != 0 {
		t.Fatalf("state = %+v, want complete", st)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 after completion", h.clock.Pending())
	}
	if err := f.MarkCorrect(); !errors.Is(err, training.ErrComplete) {
		t.Errorf("MarkCorrect() after complete error = %v, want %v", err, training.ErrComplete)
	}

	recs := h.history.Records()
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	if r := recs[0]; !r.Completed || r.Kind != training.KindPhrase || r.Attempts != 4 || r.Done != 3 {
		t.Errorf("record = %+v", r)
	}
}

func TestPhraseIncorrectQueue(t *testing.T) {
	cfg := training.DefaultConfig()
	cfg.AutoAdvance = false
	f, _ := newPhrases(t, cfg)

	_ = f.MarkIncorrect()
	_ = f.MarkIncorrect()
	if got := f.State().Incorrect; !slices.Equal(got, []int{0}) {
		t.Fatalf("Incorrect = %v, want [0]", got)
	}
	_ = f.Next()
	_ = f.MarkIncorrect()
	_ = f.Next()
	_ = f.Next() // skip phrase 2, ending the first pass

	st := f.State()
	if !st.RetryPass || st.Index != 0 {
		t.Fatalf("state = %+v, want retry on phrase 0", st)
	}
	_ = f.MarkIncorrect()
	if got := f.State().Incorrect; !slices.Equal(got, []int{1, 0}) {
		t.Errorf("Incorrect = %v, want [1 0]", got)
	}
	_ = f.Next()
	if got := f.State().Index; got != 1 {
		t.Errorf("Index = %d, want 1", got)
	}

	// Correct marks drain the queue, then skipped phrases come back.
	_ = f.MarkCorrect()
	_ = f.Next()
	_ = f.MarkCorrect()
	_ = f.Next()
	st = f.State()
	if st.Index != 2 || st.Phase != training.PhraseShowing {
		t.Fatalf("state = %+v, want skipped phrase 2", st)
	}
	_ = f.MarkCorrect()
	if got := f.State().Phase; got != training.PhraseComplete {
		t.Errorf("Phase = %v, want complete", got)
	}
}

func TestPhraseLastMarkWins(t *testing.T) {
	cfg := training.DefaultConfig()
	cfg.AutoAdvance = false
	f, _ := newPhrases(t, cfg)

	_ = f.MarkCorrect()
	_ = f.MarkIncorrect()
	st := f.State()
	if st.Completed != 0 || !slices.Equal(st.Incorrect, []int{0}) {
		t.Errorf("state = %+v", st)
	}
	_ = f.MarkCorrect()
	st = f.State()
	if st.Completed != 1 || len(st.Incorrect) != 0 {
		t.Errorf("state = %+v", st)
	}
}

func TestPhraseNextCancelsAutoAdvance(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())

	_ = f.MarkCorrect()
	_ = f.Next()
	if got := f.State().Index; got != 1 {
		t.Fatalf("Index = %d, want 1", got)
	}
	h.clock.Advance(2 * time.Second)
	if got := f.State().Index; got != 1 {
		t.Errorf("Index after delay = %d, want 1 (advance cancelled)", got)
	}
}

func TestPhraseRecognition(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())

	if err := f.StartListening(); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	h.rec.Interim("Good")
	if got := f.State().Transcript; got != "Good" {
		t.Errorf("Transcript = %q, want %q", got, "Good")
	}
	h.rec.Final("Good morning", 0.95)

	st := f.State()
	if st.Phase != training.PhraseAssessing || st.UserResponse != "Good morning" || !st.ShowAnswer {
		t.Fatalf("state = %+v", st)
	}
	if got := h.speech.Phase().String(); got != "idle" {
		t.Errorf("speech phase = %s, want idle after result", got)
	}

	_ = f.MarkCorrect()
	h.clock.Advance(time.Second)
	if got := f.State().Index; got != 1 {
		t.Errorf("Index = %d, want 1", got)
	}

	if err := f.StartListening(); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	h.rec.Fail("no-speech", "")
	st = f.State()
	if st.Phase != training.PhraseShowing || st.Err == nil {
		t.Errorf("state after error = %+v", st)
	}
}

func TestPhraseSpeechTimeUp(t *testing.T) {
	tests := []struct {
		name      string
		interim   string
		wantPhase training.PhrasePhase
	}{
		{"partial is assessed", "Good mor", training.PhraseAssessing},
		{"silence shows the phrase again", "", training.PhraseShowing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSpeechHarness(t, training.DefaultConfig(), func(c *speech.Config) {
				c.TimeLimit = 3 * time.Second
				c.ConfirmOnTimeUp = true
			})
			f, err := training.NewPhraseFlow(testGroup(), h.speaker, h.speech, h.opts...)
			if err != nil {
				t.Fatalf("NewPhraseFlow() error = %v", err)
			}

			if err := f.StartListening(); err != nil {
				t.Fatalf("StartListening() error = %v", err)
			}
			if tt.interim != "" {
				h.rec.Interim(tt.interim)
			}
			h.clock.Advance(3 * time.Second)

			st := f.State()
			if st.Phase != tt.wantPhase {
				t.Fatalf("Phase = %v, want %v", st.Phase, tt.wantPhase)
			}
			if st.UserResponse != tt.interim {
				t.Errorf("UserResponse = %q, want %q", st.UserResponse, tt.interim)
			}
			if got := h.speech.Phase(); got != speech.PhaseIdle {
				t.Errorf("speech phase = %s, want idle", got)
			}

			if err := f.StartListening(); err != nil {
				t.Fatalf("StartListening() again error = %v", err)
			}
			if got := f.State().Phase; got != training.PhraseListening {
				t.Errorf("Phase after relisten = %v, want listening", got)
			}
			if got := h.rec.Starts(); got != 2 {
				t.Errorf("Starts() = %d, want 2", got)
			}
		})
	}
}

func TestPhraseNoSpeech(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())

	if err := f.StartListening(); err != nil {
		t.Fatalf("StartListening() error = %v", err)
	}
	h.rec.End()
	h.clock.Advance(time.Second)

	st := f.State()
	if st.Phase != training.PhraseShowing || st.Err != nil {
		t.Fatalf("state = %+v, want showing without error", st)
	}
	if err := f.StartListening(); err != nil {
		t.Fatalf("StartListening() again error = %v", err)
	}
	if got := h.rec.Starts(); got != 2 {
		t.Errorf("Starts() = %d, want 2", got)
	}
}

func TestPhraseWithoutRecognizer(t *testing.T) {
	h := newHarness(t, training.DefaultConfig())
	f, err := training.NewPhraseFlow(testGroup(), h.speaker, nil, h.opts...)
	if err != nil {
		t.Fatalf("NewPhraseFlow() error = %v", err)
	}
	if err := f.StartListening(); err == nil {
		t.Error("StartListening() error = nil, want not supported")
	}
	if err := f.MarkCorrect(); err != nil {
		t.Errorf("MarkCorrect() error = %v", err)
	}
}

func TestPhrasePlayAnswer(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())
	if err := f.PlayAnswer(context.Background()); err != nil {
		t.Fatalf("PlayAnswer() error = %v", err)
	}
	if got := h.speaker.Played(); len(got) != 1 || got[0] != "Good morning." {
		t.Errorf("played = %v", got)
	}
	f.RevealAnswer()
	if !f.State().ShowAnswer {
		t.Error("ShowAnswer = false after RevealAnswer")
	}
}

func TestPhraseRestartAndClose(t *testing.T) {
	f, h := newPhrases(t, training.DefaultConfig())

	_ = f.MarkCorrect()
	f.Restart()
	st := f.State()
	if st.Index != 0 || st.Completed != 0 || st.Attempts != 0 {
		t.Errorf("state after Restart = %+v", st)
	}
	if h.clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want advance cancelled", h.clock.Pending())
	}

	rec, ok := f.Close()
	if !ok || rec.Completed {
		t.Errorf("Close() = %+v, %v", rec, ok)
	}
	recs := h.history.Records()
	if len(recs) != 2 {
		t.Fatalf("history has %d records, want 2", len(recs))
	}
	if recs[0].Done != 1 || recs[1].Done != 0 {
		t.Errorf("records = %+v", recs)
	}
}
