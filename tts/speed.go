package tts

import (
	"fmt"
	"math"
	"strings"
)

// Speed selects the synthesis rate variant of an utterance.
type Speed int

const (
	// SpeedNormal synthesizes at the natural rate.
	SpeedNormal Speed = iota
	// SpeedSlow synthesizes at SlowRate of the natural rate.
	SpeedSlow
)

// Rate multipliers sent to the synthesizer.
const (
	NormalRate = 1.0
	SlowRate   = 0.7
)

// Rate returns the multiplier for the speed variant.
func (s Speed) Rate() float64 {
	if s == SpeedSlow {
		return SlowRate
	}
	return NormalRate
}

// Valid reports whether s is a known variant.
func (s Speed) Valid() bool {
	return s == SpeedNormal || s == SpeedSlow
}

func (s Speed) String() string {
	switch s {
	case SpeedNormal:
		return "normal"
	case SpeedSlow:
		return "slow"
	default:
		return fmt.Sprintf("speed(%d)", int(s))
	}
}

// ParseSpeed accepts a variant name or a rate multiplier.
func ParseSpeed(v string) (Speed, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "normal", "1", "1.0":
		return SpeedNormal, nil
	case "slow", "0.7":
		return SpeedSlow, nil
	}
	return SpeedNormal, fmt.Errorf("%w: %q", ErrInvalidSpeed, v)
}

// SpeedFromRate maps a rate multiplier to its variant.
func SpeedFromRate(rate float64) (Speed, error) {
	switch {
	case math.Abs(rate-NormalRate) < 0.001:
		return SpeedNormal, nil
	case math.Abs(rate-SlowRate) < 0.001:
		return SpeedSlow, nil
	}
	return SpeedNormal, fmt.Errorf("%w: %.2f", ErrInvalidSpeed, rate)
}
