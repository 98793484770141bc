package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/synth"
	"github.com/dgnsrekt/kaiwa/tts"
	"github.com/dgnsrekt/kaiwa/tts/audio"
)

var slow bool

var sayCmd = &cobra.Command{
	Use:     "say TEXT",
	Short:   "Speak a sentence",
	Long:    paragraph(fmt.Sprintf("\n%s a sentence through the text-to-speech proxy, using the audio cache.", keyword("Speak"))),
	Example: paragraph("kaiwa say \"Could you say that again?\"\nkaiwa say --slow \"Nice to meet you.\""),
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ac, err := newAudioCache()
		if err != nil {
			return err
		}
		defer ac.Close() //nolint:errcheck

		ctl, err := newAudioController(ac)
		if err != nil {
			return err
		}

		speed := tts.SpeedNormal
		if slow {
			speed = tts.SpeedSlow
		}
		text := strings.Join(args, " ")
		start := time.Now()
		if err := ctl.Play(cmd.Context(), text, speed, false); err != nil {
			var ae *tts.AudioError
			if errors.As(err, &ae) {
				return fmt.Errorf("%s failed: %w", ae.Kind, err)
			}
			return err
		}
		log.Debug("spoke", "text", text, "speed", speed, "took", time.Since(start))
		return nil
	},
}

// newAudioCache builds the audio cache from the audio settings and starts
// its sweeper.
func newAudioCache() (*cache.AudioCache, error) {
	cc := cache.DefaultConfig()
	cc.MaxBytes = cfg.Audio.CacheBytes()
	cc.MaxEntries = cfg.Audio.MaxEntries
	cc.TTL = cfg.Audio.CacheTTL
	cc.SweepInterval = cfg.Audio.SweepInterval
	if cfg.Audio.DiskCache {
		dir, err := diskCacheDir()
		if err != nil {
			return nil, err
		}
		cc.DiskPath = dir
		cc.DiskCapacity = int64(cfg.Audio.DiskCapacityMB) * 1024 * 1024
	}

	ac, err := cache.New(cc,
		cache.WithLogger(log.Default().WithPrefix("cache")),
		cache.WithObserver(appMetrics),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create audio cache: %w", err)
	}
	ac.Start()
	return ac, nil
}

func diskCacheDir() (string, error) {
	if cfg.Audio.DiskCacheDir != "" {
		return cfg.Audio.DiskCacheDir, nil
	}
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "audio"), nil
}

// newPlayer returns the player selected by the audio settings.
func newPlayer(logger *log.Logger) tts.AudioPlayer {
	switch cfg.Audio.Player {
	case "exec":
		return audio.NewExecPlayer(logger)
	case "none":
		p := audio.NewMockPlayer()
		p.SetSpeedMultiplier(0)
		return p
	default:
		return audio.NewSystemPlayer(logger)
	}
}

// newSynthesizer returns the engine selected by the audio settings.
func newSynthesizer() (tts.Synthesizer, error) {
	logger := log.Default().WithPrefix("synth")
	if cfg.Audio.Engine == "piper" {
		p, err := synth.NewPiper(synth.PiperConfig{
			Binary:  cfg.Audio.PiperBinary,
			Model:   cfg.Audio.PiperModel,
			Speaker: cfg.Audio.PiperSpeaker,
			Timeout: cfg.Audio.Timeout,
		}, synth.WithPiperLogger(logger), synth.WithPiperObserver(appMetrics))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	c, err := synth.New(synth.Config{
		Endpoint:          cfg.API.Endpoint,
		Timeout:           cfg.API.Timeout,
		RequestsPerMinute: cfg.API.RequestsPerMinute(),
		UserAgent:         "kaiwa/" + Version,
	}, synth.WithLogger(logger), synth.WithObserver(appMetrics))
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newAudioController wires the synthesis engine, ac and the player.
func newAudioController(ac *cache.AudioCache) (*tts.Controller, error) {
	logger := log.Default().WithPrefix("tts")

	client, err := newSynthesizer()
	if err != nil {
		return nil, fmt.Errorf("unable to create synthesis client: %w", err)
	}

	cc := tts.DefaultControllerConfig()
	cc.MaxRetries = cfg.Audio.MaxRetries
	cc.RetryBaseDelay = cfg.API.RetryDelay
	cc.RequestTimeout = cfg.Audio.Timeout
	cc.Lang = cfg.Audio.VoiceLang
	cc.SlowRate = cfg.Audio.SlowRate

	return tts.NewController(client, newPlayer(logger),
		tts.WithCache(ac),
		tts.WithConfig(cc),
		tts.WithLogger(logger),
		tts.WithObserver(appMetrics),
	), nil
}

func init() {
	sayCmd.Flags().BoolVar(&slow, "slow", false, "speak at the slow rate")
}
