package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ErrNoPiper is returned when no piper binary can be found.
var ErrNoPiper = errors.New("piper not found")

// maxPiperOutput bounds the raw PCM accepted from one run.
const maxPiperOutput = 10 * 1024 * 1024

// PiperConfig selects the local piper voice.
type PiperConfig struct {
	Binary      string // Path to piper, searched for when empty
	Model       string // Voice model (.onnx)
	ModelConfig string // Model config, defaults to Model with a .json extension
	Speaker     string
	SampleRate  int // Sample rate of the model, 22050 when zero
	Timeout     time.Duration
}

// Piper synthesizes speech offline by running the piper binary once per
// utterance. Raw PCM from piper is wrapped in a WAV container so callers
// see the same payloads as from the proxy.
type Piper struct {
	config   PiperConfig
	logger   *log.Logger
	observer Observer
}

// PiperOption configures a Piper engine.
type PiperOption func(*Piper)

// WithPiperLogger sets the engine logger.
func WithPiperLogger(l *log.Logger) PiperOption {
	return func(p *Piper) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPiperObserver attaches a request observer.
func WithPiperObserver(o Observer) PiperOption {
	return func(p *Piper) { p.observer = o }
}

// NewPiper checks the model and locates the binary.
func NewPiper(cfg PiperConfig, opts ...PiperOption) (*Piper, error) {
	if cfg.Model == "" {
		return nil, errors.New("piper model path is required")
	}
	if _, err := os.Stat(cfg.Model); err != nil {
		return nil, fmt.Errorf("piper model not found: %w", err)
	}
	if cfg.ModelConfig == "" {
		cfg.ModelConfig = strings.TrimSuffix(cfg.Model, filepath.Ext(cfg.Model)) + ".json"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 22050
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Binary == "" {
		cfg.Binary = findPiper()
	}
	if cfg.Binary == "" {
		return nil, ErrNoPiper
	}

	p := &Piper{config: cfg, logger: log.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Synthesize runs piper over text. A rate below one lengthens speech.
func (p *Piper) Synthesize(ctx context.Context, text string, speed float64) (*Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if len(text) > maxTextSize {
		return nil, fmt.Errorf("%w: %d characters (max %d)", ErrTextTooLong, len(text), maxTextSize)
	}
	if speed <= 0 {
		speed = 1
	}

	args := []string{
		"--model", p.config.Model,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(1/speed, 'f', 2, 64),
	}
	if _, err := os.Stat(p.config.ModelConfig); err == nil {
		args = append(args, "--config", p.config.ModelConfig)
	}
	if p.config.Speaker != "" {
		args = append(args, "--speaker", p.config.Speaker)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	// stdin is set before start so piper never sees an empty pipe
	cmd := exec.CommandContext(ctx, p.config.Binary, args...)
	cmd.Stdin = strings.NewReader(text)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = 100 * time.Millisecond

	start := time.Now()
	err := cmd.Run()
	d := time.Since(start)
	switch {
	case ctx.Err() != nil:
		p.observe("timeout", d)
		return nil, fmt.Errorf("piper timed out after %s: %w", p.config.Timeout, ctx.Err())
	case err != nil:
		p.observe("exec", d)
		return nil, fmt.Errorf("piper failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	case stdout.Len() == 0:
		p.observe("empty_payload", d)
		return nil, fmt.Errorf("%w: stderr: %s", ErrEmptyPayload, strings.TrimSpace(stderr.String()))
	case stdout.Len() > maxPiperOutput:
		p.observe("exec", d)
		return nil, fmt.Errorf("piper output too large: %d bytes (max %d)", stdout.Len(), maxPiperOutput)
	}
	p.observe("ok", d)
	p.logger.Debug("piper synthesized", "chars", len(text), "bytes", stdout.Len(), "took", d)

	return &Result{
		AudioData: base64.StdEncoding.EncodeToString(wavFromPCM(stdout.Bytes(), p.config.SampleRate)),
		MIMEType:  "audio/wav",
	}, nil
}

func (p *Piper) observe(outcome string, d time.Duration) {
	if p.observer != nil {
		p.observer.SynthRequest(outcome, d)
	}
}

// wavFromPCM prepends a RIFF header for mono 16-bit samples.
func wavFromPCM(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm))) //nolint:gosec
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))            //nolint:gosec
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*blockAlign)) //nolint:gosec
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))            //nolint:gosec
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm))) //nolint:gosec
	buf.Write(pcm)
	return buf.Bytes()
}

// findPiper looks on PATH and in the usual per-user install dirs.
func findPiper() string {
	candidates := []string{"piper"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".local", "bin", "piper"),
			filepath.Join(home, "bin", "piper"),
		)
	}
	candidates = append(candidates, "/usr/local/bin/piper", "/usr/bin/piper")
	for _, c := range candidates {
		if path, err := exec.LookPath(c); err == nil {
			return path
		}
	}
	return ""
}
