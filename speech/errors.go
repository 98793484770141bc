package speech

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors recognizers return from Start.
var (
	ErrNotSupported     = errors.New("speech recognition not supported")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrNotIdle          = errors.New("speech session is not idle")
)

// ErrorType classifies speech failures.
type ErrorType string

// Speech error types.
const (
	ErrTypeNotSupported ErrorType = "speech_not_supported"
	ErrTypePermission   ErrorType = "speech_permission"
	ErrTypeRecognition  ErrorType = "speech_recognition"
	ErrTypeResetTimeout ErrorType = "speech_reset_timeout"
)

// SpeechError is a classified recognition failure.
type SpeechError struct {
	ID          string
	Type        ErrorType
	Message     string
	Code        string // platform error code, if any
	Recoverable bool
	Timestamp   time.Time
	Err         error
}

// Error implements the error interface.
func (e *SpeechError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *SpeechError) Unwrap() error {
	return e.Err
}

// NewSpeechError creates an error of the given type. Not-supported and
// permission errors are not recoverable by retrying.
func NewSpeechError(t ErrorType, message string, err error) *SpeechError {
	return &SpeechError{
		ID:          uuid.NewString(),
		Type:        t,
		Message:     message,
		Recoverable: t != ErrTypeNotSupported && t != ErrTypePermission,
		Timestamp:   time.Now(),
		Err:         err,
	}
}

// WithCode attaches a platform error code.
func (e *SpeechError) WithCode(code string) *SpeechError {
	e.Code = code
	return e
}

// classifyStartError maps a recognizer Start failure to a SpeechError.
func classifyStartError(err error) *SpeechError {
	var se *SpeechError
	switch {
	case errors.As(err, &se):
		return se
	case errors.Is(err, ErrNotSupported):
		return NewSpeechError(ErrTypeNotSupported, "speech recognition is not available", err)
	case errors.Is(err, ErrPermissionDenied):
		return NewSpeechError(ErrTypePermission, "microphone access is required", err).WithCode("PERMISSION_DENIED")
	default:
		return NewSpeechError(ErrTypeRecognition, "failed to start recognition", err)
	}
}

// IsRecoverableError reports whether the session can be retried after err.
func IsRecoverableError(err error) bool {
	if err == nil {
		return true
	}
	var se *SpeechError
	if errors.As(err, &se) {
		return se.Recoverable
	}
	return !errors.Is(err, ErrNotSupported) && !errors.Is(err, ErrPermissionDenied)
}
