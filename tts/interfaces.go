package tts

import (
	"context"
	"time"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/synth"
)

// Synthesizer turns text into encoded audio. *synth.Client implements it.
type Synthesizer interface {
	// Synthesize returns base64 audio for text at the rate multiplier.
	Synthesize(ctx context.Context, text string, rate float64) (*synth.Result, error)
}

// AudioPlayer defines the interface for audio playback.
type AudioPlayer interface {
	// Play blocks until the audio finishes, Stop is called or ctx is done.
	Play(ctx context.Context, audio *Audio) error

	// Stop halts the current playback, if any.
	Stop() error

	// IsPlaying returns true if audio is currently playing.
	IsPlaying() bool
}

// AudioCache stores encoded payloads by utterance. *cache.AudioCache
// implements it.
type AudioCache interface {
	Get(text string, rate float64, lang string) (*cache.Resource, bool)
	Set(text string, rate float64, payload []byte, mimeType, lang string) (*cache.Resource, error)
}

// Observer receives playback telemetry.
type Observer interface {
	SynthRetry()
	PlaybackFinished(outcome string)
}

type nopObserver struct{}

func (nopObserver) SynthRetry() {}
func (nopObserver) PlaybackFinished(string) {}

// Audio represents a decoded, playable utterance.
type Audio struct {
	Data       []byte      // Encoded container bytes as received
	PCM        []byte      // Little-endian 16-bit samples, FormatWAV only
	MIMEType   string      // Reported or sniffed MIME type
	Format     AudioFormat // Sniffed container format
	SampleRate int         // Sample rate in Hz, when known
	Channels   int         // Number of audio channels, when known
	Duration   time.Duration

	// Resource is the cache handle backing Data, nil if uncached.
	Resource *cache.Resource
}

// AudioFormat represents the container format of audio data.
type AudioFormat int

const (
	// FormatUnknown is anything the decoder does not recognise.
	FormatUnknown AudioFormat = iota
	// FormatMP3 represents MPEG audio, optionally behind an ID3 tag.
	FormatMP3
	// FormatWAV represents RIFF/WAVE with 16-bit PCM samples.
	FormatWAV
	// FormatOgg represents an Ogg container (Opus or Vorbis).
	FormatOgg
)

func (f AudioFormat) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatWAV:
		return "wav"
	case FormatOgg:
		return "ogg"
	default:
		return "unknown"
	}
}
