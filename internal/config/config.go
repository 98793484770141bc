// Package config holds kaiwa's settings: defaults, named profiles, the YAML
// config file and the KAIWA_* environment overlay.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Profile names.
const (
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
	ProfileTest        = "test"
)

// Config is the complete application configuration.
type Config struct {
	Profile  string         `yaml:"profile" mapstructure:"profile" env:"KAIWA_PROFILE"`
	Audio    AudioConfig    `yaml:"audio" mapstructure:"audio"`
	Speech   SpeechConfig   `yaml:"speech" mapstructure:"speech"`
	Training TrainingConfig `yaml:"training" mapstructure:"training"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Review   ReviewConfig   `yaml:"review" mapstructure:"review"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// AudioConfig controls synthesis retries, the audio cache and playback.
type AudioConfig struct {
	CacheSizeMB    int           `yaml:"cache_size_mb" mapstructure:"cache_size_mb" env:"KAIWA_AUDIO_CACHE_SIZE_MB"`
	MaxEntries     int           `yaml:"max_entries" mapstructure:"max_entries" env:"KAIWA_AUDIO_MAX_ENTRIES"`
	CacheTTL       time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" env:"KAIWA_AUDIO_CACHE_TTL"`
	SweepInterval  time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval" env:"KAIWA_AUDIO_SWEEP_INTERVAL"`
	DiskCache      bool          `yaml:"disk_cache" mapstructure:"disk_cache" env:"KAIWA_AUDIO_DISK_CACHE"`
	DiskCacheDir   string        `yaml:"disk_cache_dir" mapstructure:"disk_cache_dir" env:"KAIWA_AUDIO_DISK_CACHE_DIR"`
	DiskCapacityMB int           `yaml:"disk_capacity_mb" mapstructure:"disk_capacity_mb" env:"KAIWA_AUDIO_DISK_CAPACITY_MB"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries" env:"KAIWA_AUDIO_MAX_RETRIES"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout" env:"KAIWA_AUDIO_TIMEOUT"`
	VoiceLang      string        `yaml:"voice_lang" mapstructure:"voice_lang" env:"KAIWA_AUDIO_VOICE_LANG"`
	SlowRate       float64       `yaml:"slow_rate" mapstructure:"slow_rate" env:"KAIWA_AUDIO_SLOW_RATE"`
	Player         string        `yaml:"player" mapstructure:"player" env:"KAIWA_AUDIO_PLAYER"` // auto, exec or none
	Engine         string        `yaml:"engine" mapstructure:"engine" env:"KAIWA_AUDIO_ENGINE"` // proxy or piper
	PiperBinary    string        `yaml:"piper_binary" mapstructure:"piper_binary" env:"KAIWA_AUDIO_PIPER_BINARY"`
	PiperModel     string        `yaml:"piper_model" mapstructure:"piper_model" env:"KAIWA_AUDIO_PIPER_MODEL"`
	PiperSpeaker   string        `yaml:"piper_speaker" mapstructure:"piper_speaker" env:"KAIWA_AUDIO_PIPER_SPEAKER"`
}

// SpeechConfig controls the recognizer session.
type SpeechConfig struct {
	Lang                string        `yaml:"lang" mapstructure:"lang" env:"KAIWA_SPEECH_LANG"`
	ConfidenceThreshold float64       `yaml:"confidence_threshold" mapstructure:"confidence_threshold" env:"KAIWA_SPEECH_CONFIDENCE_THRESHOLD"`
	Timeout             time.Duration `yaml:"timeout" mapstructure:"timeout" env:"KAIWA_SPEECH_TIMEOUT"`
	Continuous          bool          `yaml:"continuous" mapstructure:"continuous" env:"KAIWA_SPEECH_CONTINUOUS"`
	InterimResults      bool          `yaml:"interim_results" mapstructure:"interim_results" env:"KAIWA_SPEECH_INTERIM_RESULTS"`
	ResetTimeout        time.Duration `yaml:"reset_timeout" mapstructure:"reset_timeout" env:"KAIWA_SPEECH_RESET_TIMEOUT"`
}

// TrainingConfig controls the practice flows.
type TrainingConfig struct {
	ResponseTimeLimit time.Duration `yaml:"response_time_limit" mapstructure:"response_time_limit" env:"KAIWA_TRAINING_RESPONSE_TIME_LIMIT"`
	SessionTimeout    time.Duration `yaml:"session_timeout" mapstructure:"session_timeout" env:"KAIWA_TRAINING_SESSION_TIMEOUT"`
	AutoAdvance       bool          `yaml:"auto_advance" mapstructure:"auto_advance" env:"KAIWA_TRAINING_AUTO_ADVANCE"`
	AutoAdvanceDelay  time.Duration `yaml:"auto_advance_delay" mapstructure:"auto_advance_delay" env:"KAIWA_TRAINING_AUTO_ADVANCE_DELAY"`
	ConfirmOnTimeUp   bool          `yaml:"confirm_on_time_up" mapstructure:"confirm_on_time_up" env:"KAIWA_TRAINING_CONFIRM_ON_TIME_UP"`
	Autoplay          bool          `yaml:"autoplay" mapstructure:"autoplay" env:"KAIWA_TRAINING_AUTOPLAY"`
	EnableHints       bool          `yaml:"enable_hints" mapstructure:"enable_hints" env:"KAIWA_TRAINING_ENABLE_HINTS"`
	HistorySize       int           `yaml:"history_size" mapstructure:"history_size" env:"KAIWA_TRAINING_HISTORY_SIZE"`
}

// APIConfig configures the synthesis proxy client.
type APIConfig struct {
	Endpoint         string        `yaml:"endpoint" mapstructure:"endpoint" env:"KAIWA_API_ENDPOINT"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout" env:"KAIWA_API_TIMEOUT"`
	RetryDelay       time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" env:"KAIWA_API_RETRY_DELAY"`
	RateLimit        int           `yaml:"rate_limit" mapstructure:"rate_limit" env:"KAIWA_API_RATE_LIMIT"` // requests per minute
	RateLimitEnabled bool          `yaml:"rate_limit_enabled" mapstructure:"rate_limit_enabled" env:"KAIWA_API_RATE_LIMIT_ENABLED"`
}

// ReviewConfig controls the due-item reminder.
type ReviewConfig struct {
	Reminder         bool          `yaml:"reminder" mapstructure:"reminder" env:"KAIWA_REVIEW_REMINDER"`
	ReminderInterval time.Duration `yaml:"reminder_interval" mapstructure:"reminder_interval" env:"KAIWA_REVIEW_REMINDER_INTERVAL"`
}

// StorageConfig selects the review database. An empty DSN means a SQLite
// file in the data directory; postgres:// DSNs use lib/pq.
type StorageConfig struct {
	DSN     string `yaml:"dsn" mapstructure:"dsn" env:"KAIWA_STORAGE_DSN"`
	DataDir string `yaml:"data_dir" mapstructure:"data_dir" env:"KAIWA_STORAGE_DATA_DIR"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" env:"KAIWA_METRICS_ADDR"`
}

// Default returns the base configuration.
func Default() Config {
	return Config{
		Profile: ProfileDevelopment,
		Audio: AudioConfig{
			CacheSizeMB:    50,
			MaxEntries:     100,
			CacheTTL:       30 * time.Minute,
			SweepInterval:  5 * time.Minute,
			DiskCapacityMB: 200,
			MaxRetries:     3,
			Timeout:        10 * time.Second,
			VoiceLang:      "en-US",
			SlowRate:       0.7,
			Player:         "auto",
			Engine:         "proxy",
		},
		Speech: SpeechConfig{
			Lang:                "en-US",
			ConfidenceThreshold: 0.7,
			Timeout:             30 * time.Second,
			Continuous:          true,
			InterimResults:      true,
			ResetTimeout:        1500 * time.Millisecond,
		},
		Training: TrainingConfig{
			ResponseTimeLimit: 6 * time.Second,
			SessionTimeout:    30 * time.Minute,
			AutoAdvance:       true,
			AutoAdvanceDelay:  time.Second,
			ConfirmOnTimeUp:   true,
			Autoplay:          true,
			EnableHints:       true,
			HistorySize:       50,
		},
		API: APIConfig{
			Endpoint:   "http://localhost:3000/api/tts",
			Timeout:    15 * time.Second,
			RetryDelay: time.Second,
			RateLimit:  60,
		},
		Review: ReviewConfig{
			ReminderInterval: time.Hour,
		},
	}
}

// Validate checks every field and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Profile {
	case ProfileDevelopment, ProfileProduction, ProfileTest:
	default:
		errs = append(errs, fmt.Errorf("unknown profile %q", c.Profile))
	}

	check(c.Audio.CacheSizeMB > 0, "audio cache_size_mb must be positive, got %d", c.Audio.CacheSizeMB)
	check(c.Audio.MaxEntries >= 0, "audio max_entries must not be negative, got %d", c.Audio.MaxEntries)
	check(c.Audio.CacheTTL > 0, "audio cache_ttl must be positive, got %s", c.Audio.CacheTTL)
	check(c.Audio.SweepInterval >= 0, "audio sweep_interval must not be negative, got %s", c.Audio.SweepInterval)
	check(c.Audio.MaxRetries >= 0, "audio max_retries must not be negative, got %d", c.Audio.MaxRetries)
	check(c.Audio.Timeout > 0, "audio timeout must be positive, got %s", c.Audio.Timeout)
	check(c.Audio.SlowRate > 0 && c.Audio.SlowRate <= 1, "audio slow_rate must be in (0, 1], got %.2f", c.Audio.SlowRate)
	check(strings.TrimSpace(c.Audio.VoiceLang) != "", "audio voice_lang is required")
	switch c.Audio.Player {
	case "auto", "exec", "none":
	default:
		errs = append(errs, fmt.Errorf("audio player must be auto, exec or none, got %q", c.Audio.Player))
	}
	switch c.Audio.Engine {
	case "proxy":
	case "piper":
		check(c.Audio.PiperModel != "", "audio piper_model is required by the piper engine")
	default:
		errs = append(errs, fmt.Errorf("audio engine must be proxy or piper, got %q", c.Audio.Engine))
	}
	if c.Audio.DiskCache {
		check(c.Audio.DiskCapacityMB > 0, "audio disk_capacity_mb must be positive, got %d", c.Audio.DiskCapacityMB)
	}

	check(c.Speech.ConfidenceThreshold >= 0 && c.Speech.ConfidenceThreshold <= 1,
		"speech confidence_threshold must be between 0 and 1, got %.2f", c.Speech.ConfidenceThreshold)
	check(c.Speech.Timeout > 0, "speech timeout must be positive, got %s", c.Speech.Timeout)
	check(c.Speech.ResetTimeout > 0, "speech reset_timeout must be positive, got %s", c.Speech.ResetTimeout)

	check(c.Training.ResponseTimeLimit >= 0, "training response_time_limit must not be negative, got %s", c.Training.ResponseTimeLimit)
	check(c.Training.SessionTimeout > 0, "training session_timeout must be positive, got %s", c.Training.SessionTimeout)
	check(c.Training.AutoAdvanceDelay >= 0, "training auto_advance_delay must not be negative, got %s", c.Training.AutoAdvanceDelay)
	check(c.Training.HistorySize > 0, "training history_size must be positive, got %d", c.Training.HistorySize)

	check(c.API.Timeout > 0, "api timeout must be positive, got %s", c.API.Timeout)
	check(c.API.RetryDelay >= 0, "api retry_delay must not be negative, got %s", c.API.RetryDelay)
	check(c.API.RateLimit >= 0, "api rate_limit must not be negative, got %d", c.API.RateLimit)

	if c.Review.Reminder {
		check(c.Review.ReminderInterval >= time.Minute, "review reminder_interval must be at least 1m, got %s", c.Review.ReminderInterval)
	}

	return errors.Join(errs...)
}

// RequestsPerMinute is the synthesis rate limit, 0 when limiting is off.
func (a APIConfig) RequestsPerMinute() int {
	if !a.RateLimitEnabled {
		return 0
	}
	return a.RateLimit
}

// CacheBytes is the memory cache budget in bytes.
func (a AudioConfig) CacheBytes() int64 {
	return int64(a.CacheSizeMB) * 1024 * 1024
}
