package tts

import (
	"errors"
	"fmt"
	"time"
)

// Common errors for audio sessions.
var (
	// Input errors
	ErrEmptyText    = errors.New("text is empty")
	ErrInvalidSpeed = errors.New("invalid speed")

	// Synthesis errors
	ErrEmptyPayload = errors.New("synthesis returned no audio")
	ErrSynthesis    = errors.New("synthesis failed")

	// Decode errors
	ErrDecodeFailed       = errors.New("audio decode failed")
	ErrUnsupportedFormat  = errors.New("unsupported audio format")
	ErrInvalidAudioFormat = errors.New("invalid audio format")

	// Player errors
	ErrPlaybackFailed  = errors.New("audio playback failed")
	ErrAutoplayBlocked = errors.New("autoplay blocked")
	ErrNoAudioBackend  = errors.New("no audio backend available")
	ErrNothingToPlay   = errors.New("no audio to play")
)

// ErrorKind classifies an audio failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidInput
	KindNetwork
	KindTimeout
	KindEmptyPayload
	KindSynthesis
	KindDecode
	KindPlayback
	KindAutoplayBlocked
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindEmptyPayload:
		return "empty_payload"
	case KindSynthesis:
		return "synthesis"
	case KindDecode:
		return "decode"
	case KindPlayback:
		return "playback"
	case KindAutoplayBlocked:
		return "autoplay_blocked"
	default:
		return "unknown"
	}
}

// Retryable reports whether another synthesis attempt may succeed.
func (k ErrorKind) Retryable() bool {
	return k == KindNetwork || k == KindTimeout
}

// ErrorSeverity represents the severity of an error.
type ErrorSeverity int

const (
	// SeverityInfo is for informational messages.
	SeverityInfo ErrorSeverity = iota
	// SeverityWarning is for warnings that don't prevent operation.
	SeverityWarning
	// SeverityError is for errors that prevent normal operation.
	SeverityError
)

// AudioError provides detailed error information for a failed play request.
type AudioError struct {
	Kind      ErrorKind
	Err       error  // The underlying error
	Text      string // Utterance being played
	Attempts  int    // Synthesis attempts made
	Severity  ErrorSeverity
	Timestamp time.Time
}

// Error implements the error interface.
func (e *AudioError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("audio %s error", e.Kind)
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("audio %s error after %d attempts: %v", e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("audio %s error: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *AudioError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether the session can continue without user
// intervention beyond a manual replay.
func (e *AudioError) IsRecoverable() bool {
	return e.Kind == KindAutoplayBlocked || e.Kind.Retryable()
}

// NewAudioError creates an audio error of the given kind.
func NewAudioError(kind ErrorKind, err error, text string) *AudioError {
	severity := SeverityError
	if kind == KindAutoplayBlocked {
		severity = SeverityWarning
	}
	return &AudioError{
		Kind:      kind,
		Err:       err,
		Text:      text,
		Severity:  severity,
		Timestamp: time.Now(),
	}
}

// WithAttempts records how many synthesis attempts were made.
func (e *AudioError) WithAttempts(n int) *AudioError {
	e.Attempts = n
	return e
}

// KindOf returns the kind of an AudioError anywhere in err's chain.
func KindOf(err error) ErrorKind {
	var ae *AudioError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// IsRetryable checks if an error may succeed on another attempt.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// IsRecoverableError checks if an error is recoverable.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	var ae *AudioError
	if errors.As(err, &ae) {
		return ae.IsRecoverable()
	}
	return errors.Is(err, ErrAutoplayBlocked)
}
