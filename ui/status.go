package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/kaiwa/tts"
)

// StatusDisplay summarizes audio and microphone activity for the status bar.
type StatusDisplay struct {
	audio        tts.StateType
	blocked      bool
	listening    bool
	timeLeft     int
	timed        bool
	errorMessage string
}

// NewStatusDisplay creates an idle status display.
func NewStatusDisplay() *StatusDisplay {
	return &StatusDisplay{audio: tts.StateIdle}
}

// UpdateAudio records the audio session state.
func (s *StatusDisplay) UpdateAudio(state tts.State) {
	s.audio = state.Current
	s.blocked = state.AutoplayBlocked
	if state.Current == tts.StateError && state.LastError != nil {
		s.errorMessage = state.LastError.Error()
	} else if state.Current != tts.StateError {
		s.errorMessage = ""
	}
}

// UpdateFromMessage updates the display from an audio message.
func (s *StatusDisplay) UpdateFromMessage(msg any) {
	switch m := msg.(type) {
	case tts.PlayStartedMsg:
		s.audio = tts.StatePlaying
	case tts.PlayFinishedMsg:
		s.audio = tts.StateIdle
		s.blocked = m.Blocked
		if m.Blocked {
			s.audio = tts.StateBlocked
		}
	case tts.StateChangedMsg:
		s.audio = m.State
	case tts.AudioErrorMsg:
		s.audio = tts.StateError
		s.errorMessage = m.Error.Error()
	}
}

// SetListening records whether the answer window is open and its countdown.
func (s *StatusDisplay) SetListening(listening bool, timeLeft int, timed bool) {
	s.listening = listening
	s.timeLeft = timeLeft
	s.timed = timed
}

// IsActive reports whether anything is worth showing.
func (s *StatusDisplay) IsActive() bool {
	return s.audio != tts.StateIdle || s.listening || s.blocked
}

// CompactStatus returns a one-line status for the status bar.
func (s *StatusDisplay) CompactStatus() string {
	var parts []string

	if icon, color, ok := s.audioIcon(); ok {
		parts = append(parts, lipgloss.NewStyle().Foreground(color).Render(icon+" audio"))
	}
	if s.listening {
		mic := lipgloss.NewStyle().Foreground(green).Render("● mic")
		if s.timed {
			style := timerStyle
			if s.timeLeft <= 2 {
				style = urgentStyle
			}
			mic += " " + style.Render(fmt.Sprintf("%ds", s.timeLeft))
		}
		parts = append(parts, mic)
	}
	if s.errorMessage != "" {
		parts = append(parts, wrongStyle.Render(truncate.StringWithTail(s.errorMessage, 40, ellipsis)))
	}
	return strings.Join(parts, "  ")
}

func (s *StatusDisplay) audioIcon() (string, lipgloss.TerminalColor, bool) {
	switch s.audio {
	case tts.StateLoading:
		return "⟳", blue, true
	case tts.StatePlaying:
		return "▶", green, true
	case tts.StateBlocked:
		return "⏸ press p to play", yellow, true
	case tts.StateError:
		return "✗", red, true
	default:
		if s.blocked {
			return "⏸ press p to play", yellow, true
		}
		return "", nil, false
	}
}
