// Package synth talks to the text-to-speech proxy.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Errors returned by the client.
var (
	ErrEmptyText    = errors.New("text cannot be empty")
	ErrTextTooLong  = errors.New("text too long")
	ErrEmptyPayload = errors.New("synthesis response has no audio data")
	ErrBadResponse  = errors.New("malformed synthesis response")
)

// maxTextSize mirrors the upstream limit on request length.
const maxTextSize = 5000

// Result is one synthesis response. AudioData is still base64 encoded.
type Result struct {
	AudioData string `json:"audioData"`
	MIMEType  string `json:"mimeType"`
}

type request struct {
	Text  string  `json:"text"`
	Speed float64 `json:"speed"`
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("synthesis failed: HTTP %d", e.Code)
	}
	return fmt.Sprintf("synthesis failed: HTTP %d: %s", e.Code, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return IsRetryableStatus(e.Code)
}

// Observer receives request outcomes.
type Observer interface {
	SynthRequest(outcome string, d time.Duration)
}

// Config holds client settings.
type Config struct {
	Endpoint          string
	Timeout           time.Duration // whole-request HTTP timeout
	RequestsPerMinute int           // 0 disables rate limiting
	UserAgent         string
}

// Client posts {text, speed} to the proxy and returns {audioData, mimeType}.
type Client struct {
	endpoint  string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	logger    *log.Logger
	observer  Observer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver attaches a request observer.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// New creates a client for the proxy at cfg.Endpoint.
func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("synthesis endpoint is required")
	}
	if !strings.HasPrefix(cfg.Endpoint, "http://") && !strings.HasPrefix(cfg.Endpoint, "https://") {
		return nil, fmt.Errorf("synthesis endpoint must be http(s): %q", cfg.Endpoint)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	c := &Client{
		endpoint:  cfg.Endpoint,
		http:      &http.Client{Timeout: timeout},
		userAgent: cfg.UserAgent,
		logger:    log.Default(),
	}
	if cfg.RequestsPerMinute > 0 {
		burst := max(1, cfg.RequestsPerMinute/10)
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), burst)
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Synthesize requests audio for text at the given rate multiplier.
func (c *Client) Synthesize(ctx context.Context, text string, speed float64) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextSize {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, len(text), maxTextSize)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	start := time.Now()
	res, err := c.do(ctx, text, speed)
	c.observe(err, time.Since(start))
	if err != nil {
		c.logger.Debug("synthesis failed", "err", err, "chars", len(text), "speed", speed)
		return nil, err
	}

	c.logger.Debug("synthesis complete", "chars", len(text), "speed", speed,
		"mime", res.MIMEType, "elapsed", time.Since(start))
	return res, nil
}

func (c *Client) do(ctx context.Context, text string, speed float64) (*Result, error) {
	body, err := json.Marshal(request{Text: text, Speed: speed})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Body: errorMessage(raw)}
	}

	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if res.AudioData == "" {
		return nil, ErrEmptyPayload
	}
	if res.MIMEType == "" {
		res.MIMEType = "audio/mpeg"
	}
	return &res, nil
}

func (c *Client) observe(err error, d time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	var se *StatusError
	switch {
	case err == nil:
	case errors.As(err, &se):
		outcome = fmt.Sprintf("http_%d", se.Code)
	case errors.Is(err, ErrEmptyPayload):
		outcome = "empty_payload"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "network"
	}
	c.observer.SynthRequest(outcome, d)
}

// errorMessage pulls {"error": "..."} out of a failure body when present.
func errorMessage(raw []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// IsRetryableStatus classifies retryable HTTP status codes.
func IsRetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err is a transient network, timeout or
// server failure. Empty payloads and caller cancellation are terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrEmptyPayload) || errors.Is(err, ErrBadResponse) ||
		errors.Is(err, ErrEmptyText) || errors.Is(err, ErrTextTooLong) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}
