package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) SynthRequest(outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	opts = append([]Option{WithLogger(log.New(io.Discard))}, opts...)
	c, err := New(Config{Endpoint: srv.URL, Timeout: 2 * time.Second}, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestClient_Synthesize(t *testing.T) {
	var got request
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"audioData": "SUQzAAAA",
			"mimeType":  "audio/mpeg",
		})
	})

	res, err := c.Synthesize(context.Background(), "  How are you?  ", 0.7)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if got.Text != "How are you?" || got.Speed != 0.7 {
		t.Errorf("request = %+v, want trimmed text at speed 0.7", got)
	}
	if res.AudioData != "SUQzAAAA" || res.MIMEType != "audio/mpeg" {
		t.Errorf("Synthesize() = %+v", res)
	}
}

func TestClient_DefaultsMIMEType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"audioData":"AAAA"}`)
	})
	res, err := c.Synthesize(context.Background(), "hi", 1.0)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.MIMEType != "audio/mpeg" {
		t.Errorf("MIMEType = %q, want audio/mpeg", res.MIMEType)
	}
}

func TestClient_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   error
		retryable bool
		outcome   string
	}{
		{"empty payload", 200, `{"mimeType":"audio/mpeg"}`, ErrEmptyPayload, false, "empty_payload"},
		{"malformed json", 200, `not json`, ErrBadResponse, false, "network"},
		{"server error", 500, `{"error":"upstream down"}`, nil, true, "http_500"},
		{"rate limited", 429, ``, nil, true, "http_429"},
		{"bad request", 400, `{"error":"Text is required"}`, nil, false, "http_400"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &recordingObserver{}
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}, WithObserver(obs))

			_, err := c.Synthesize(context.Background(), "hello", 1.0)
			if err == nil {
				t.Fatal("Synthesize() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if got := IsRetryable(err); got != tt.retryable {
				t.Errorf("IsRetryable(%v) = %v, want %v", err, got, tt.retryable)
			}
			if len(obs.outcomes) != 1 || obs.outcomes[0] != tt.outcome {
				t.Errorf("outcomes = %v, want [%s]", obs.outcomes, tt.outcome)
			}
		})
	}
}

func TestClient_StatusErrorMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"Text is required"}`)
	})

	_, err := c.Synthesize(context.Background(), "x", 1.0)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %T, want *StatusError", err)
	}
	if se.Code != 400 || se.Body != "Text is required" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestClient_ValidatesText(t *testing.T) {
	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})

	if _, err := c.Synthesize(context.Background(), "   ", 1.0); !errors.Is(err, ErrEmptyText) {
		t.Errorf("error = %v, want ErrEmptyText", err)
	}
	long := make([]byte, maxTextSize+1)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := c.Synthesize(context.Background(), string(long), 1.0); !errors.Is(err, ErrTextTooLong) {
		t.Errorf("error = %v, want ErrTextTooLong", err)
	}
}

func TestClient_ContextTimeoutIsRetryable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Synthesize(ctx, "slow", 1.0)
	if err == nil {
		t.Fatal("Synthesize() should time out")
	}
	if !IsRetryable(err) {
		t.Errorf("IsRetryable(%v) = false, want true", err)
	}
}

func TestIsRetryable_Cancelled(t *testing.T) {
	err := fmt.Errorf("synthesis request: %w", context.Canceled)
	if IsRetryable(err) {
		t.Error("cancelled requests must not be retried")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
	}{
		{"empty", ""},
		{"no scheme", "localhost:8080/api/tts"},
		{"ftp", "ftp://example.com/tts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{Endpoint: tt.endpoint}); err == nil {
				t.Error("New() should fail")
			}
		})
	}
}
