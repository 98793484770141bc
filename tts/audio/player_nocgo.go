//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/tts"
)

// OtoPlayer stub for builds without CGO. Every clip falls through to the
// external command player.
type OtoPlayer struct{}

// NewOtoPlayer creates a stub PCM player.
func NewOtoPlayer(*log.Logger) *OtoPlayer {
	return &OtoPlayer{}
}

func (p *OtoPlayer) Play(context.Context, *tts.Audio) error {
	return fmt.Errorf("%w: audio not available in nocgo build", tts.ErrNoAudioBackend)
}

func (p *OtoPlayer) Stop() error {
	return nil
}

func (p *OtoPlayer) IsPlaying() bool {
	return false
}
