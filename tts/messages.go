package tts

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Messages for Bubble Tea communication between the audio session and UI.

// PlayStartedMsg indicates audio became audible.
type PlayStartedMsg struct {
	Text  string
	Speed Speed
}

// PlayFinishedMsg indicates a Play call returned without error. Blocked is
// set when an autoplay attempt was downgraded.
type PlayFinishedMsg struct {
	Text    string
	Blocked bool
}

// AudioErrorMsg indicates a terminal playback error.
type AudioErrorMsg struct {
	Error       error
	Recoverable bool
	Kind        ErrorKind
}

// StateChangedMsg indicates the audio state has changed.
type StateChangedMsg struct {
	State     StateType
	Timestamp time.Time
}

// PreloadedMsg reports a finished preload.
type PreloadedMsg struct {
	Count int
	Err   error
}

// PlayCmd creates a command that plays text and reports the outcome.
func PlayCmd(ctx context.Context, c *Controller, text string, speed Speed, autoplay bool) tea.Cmd {
	return func() tea.Msg {
		if err := c.Play(ctx, text, speed, autoplay); err != nil {
			return AudioErrorMsg{
				Error:       err,
				Recoverable: IsRecoverableError(err),
				Kind:        KindOf(err),
			}
		}
		return PlayFinishedMsg{Text: text, Blocked: autoplay && c.AutoplayBlocked()}
	}
}

// StopCmd creates a command that stops playback.
func StopCmd(c *Controller) tea.Cmd {
	return func() tea.Msg {
		if err := c.Stop(); err != nil {
			return AudioErrorMsg{Error: err, Recoverable: true, Kind: KindPlayback}
		}
		return StateChangedMsg{State: c.State().Current, Timestamp: time.Now()}
	}
}

// PreloadCmd creates a command that warms the cache for texts.
func PreloadCmd(ctx context.Context, c *Controller, texts []string, speed Speed) tea.Cmd {
	return func() tea.Msg {
		return PreloadedMsg{Count: len(texts), Err: c.Preload(ctx, texts, speed)}
	}
}
