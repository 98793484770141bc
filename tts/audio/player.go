//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/kaiwa/tts"
)

// pollInterval is how often a running oto player is checked for completion.
const pollInterval = 10 * time.Millisecond

// OtoPlayer plays 16-bit PCM (WAV) audio through oto. oto allows a single
// context per process, so the first clip fixes the device sample rate.
type OtoPlayer struct {
	mu         sync.Mutex
	context    *oto.Context
	initErr    error
	sampleRate int
	channels   int
	current    *oto.Player
	stopCh     chan struct{}

	logger       *log.Logger
	readyTimeout time.Duration
}

// NewOtoPlayer creates a PCM player. The audio device is opened lazily.
func NewOtoPlayer(logger *log.Logger) *OtoPlayer {
	if logger == nil {
		logger = log.Default()
	}
	return &OtoPlayer{logger: logger, readyTimeout: 5 * time.Second}
}

// Play blocks until the clip has been played, Stop is called or ctx is done.
func (p *OtoPlayer) Play(ctx context.Context, audio *tts.Audio) error {
	if audio == nil || len(audio.PCM) == 0 {
		return tts.ErrNothingToPlay
	}
	if audio.Format != tts.FormatWAV {
		return fmt.Errorf("%w: oto plays PCM only, got %s", tts.ErrUnsupportedFormat, audio.Format)
	}

	p.mu.Lock()
	if err := p.ensureContext(audio.SampleRate, audio.Channels); err != nil {
		p.mu.Unlock()
		return err
	}
	if p.current != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: already playing", tts.ErrPlaybackFailed)
	}
	player := p.context.NewPlayer(bytes.NewReader(audio.PCM))
	stopCh := make(chan struct{})
	p.current = player
	p.stopCh = stopCh
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		if p.current == player {
			p.current = nil
			p.stopCh = nil
		}
		p.mu.Unlock()
		if err := player.Close(); err != nil {
			p.logger.Debug("closing oto player", "err", err)
		}
	}()

	player.Play()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-stopCh:
			player.Pause()
			return nil
		case <-ticker.C:
			if !player.IsPlaying() {
				if err := player.Err(); err != nil {
					return fmt.Errorf("%w: %v", tts.ErrPlaybackFailed, err)
				}
				return nil
			}
		}
	}
}

// Stop halts the current clip.
func (p *OtoPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	return nil
}

// IsPlaying returns true while a clip is running.
func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *OtoPlayer) ensureContext(sampleRate, channels int) error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.context != nil {
		if sampleRate != p.sampleRate || channels != p.channels {
			return fmt.Errorf("%w: clip is %d Hz/%d ch, device opened at %d Hz/%d ch",
				tts.ErrUnsupportedFormat, sampleRate, channels, p.sampleRate, p.channels)
		}
		return nil
	}

	options := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	switch runtime.GOOS {
	case "darwin":
		options.BufferSize = 100 * time.Millisecond
	case "windows":
		options.BufferSize = 80 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	p.logger.Debug("initializing audio context",
		"sample_rate", options.SampleRate,
		"channels", options.ChannelCount,
		"buffer_size", options.BufferSize)

	otoCtx, readyChan, err := oto.NewContext(options)
	if err != nil {
		p.initErr = fmt.Errorf("%w: %v", tts.ErrNoAudioBackend, err)
		return p.initErr
	}

	select {
	case <-readyChan:
	case <-time.After(p.readyTimeout):
		p.initErr = fmt.Errorf("%w: audio context not ready after %v", tts.ErrNoAudioBackend, p.readyTimeout)
		return p.initErr
	}

	p.context = otoCtx
	p.sampleRate = sampleRate
	p.channels = channels
	return nil
}
