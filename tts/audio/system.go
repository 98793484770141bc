package audio

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/tts"
)

// Router sends PCM clips to the in-process player and everything else, or
// PCM when no device is available, to the fallback.
type Router struct {
	PCM      tts.AudioPlayer
	Fallback tts.AudioPlayer
}

// NewSystemPlayer returns the default player for this machine.
func NewSystemPlayer(logger *log.Logger) *Router {
	return &Router{
		PCM:      NewOtoPlayer(logger),
		Fallback: NewExecPlayer(logger),
	}
}

// Play implements tts.AudioPlayer.
func (r *Router) Play(ctx context.Context, audio *tts.Audio) error {
	if audio == nil {
		return tts.ErrNothingToPlay
	}
	if audio.Format == tts.FormatWAV && r.PCM != nil {
		err := r.PCM.Play(ctx, audio)
		if !errors.Is(err, tts.ErrNoAudioBackend) || r.Fallback == nil {
			return err
		}
	}
	if r.Fallback == nil {
		return tts.ErrNoAudioBackend
	}
	return r.Fallback.Play(ctx, audio)
}

// Stop implements tts.AudioPlayer.
func (r *Router) Stop() error {
	var errs []error
	if r.PCM != nil {
		errs = append(errs, r.PCM.Stop())
	}
	if r.Fallback != nil {
		errs = append(errs, r.Fallback.Stop())
	}
	return errors.Join(errs...)
}

// IsPlaying implements tts.AudioPlayer.
func (r *Router) IsPlaying() bool {
	return (r.PCM != nil && r.PCM.IsPlaying()) || (r.Fallback != nil && r.Fallback.IsPlaying())
}
