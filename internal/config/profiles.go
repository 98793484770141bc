package config

import (
	"fmt"
	"strings"
	"time"
)

// ApplyProfile overlays the named profile onto c. An empty name keeps the
// development profile.
func ApplyProfile(c *Config, name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = ProfileDevelopment
	}

	switch name {
	case ProfileDevelopment:
		c.API.RateLimitEnabled = false
	case ProfileProduction:
		c.Audio.MaxRetries = 2
		c.Speech.ConfidenceThreshold = 0.8
		c.Training.EnableHints = false
		c.API.RateLimitEnabled = true
	case ProfileTest:
		c.Audio.Timeout = 5 * time.Second
		c.Audio.CacheSizeMB = 10
		c.Speech.Timeout = 10 * time.Second
		c.Training.ResponseTimeLimit = 3 * time.Second
	default:
		return fmt.Errorf("unknown profile %q", name)
	}

	c.Profile = name
	return nil
}

// ForProfile returns the defaults with the named profile applied.
func ForProfile(name string) (Config, error) {
	c := Default()
	if err := ApplyProfile(&c, name); err != nil {
		return Config{}, err
	}
	return c, nil
}
