package ui

import "github.com/dgnsrekt/kaiwa/internal/content"

// Config contains TUI-specific configuration.
type Config struct {
	GlamourMaxWidth uint
	GlamourStyle    string `env:"GLAMOUR_STYLE"`
	EnableMouse     bool

	// Level selects which example responses are revealed.
	Level content.Level
	// ShowTranslation shows the Japanese translation under each prompt.
	ShowTranslation bool
	// ShowHints shows the Japanese example while the answer window is open.
	ShowHints bool
	// Autoplay plays each prompt as it opens.
	Autoplay bool

	// For debugging the UI
	GlamourEnabled bool `env:"KAIWA_ENABLE_GLAMOUR"`
}
