package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/tts"
)

// Command is an external program that plays audio read from stdin.
type Command struct {
	Name    string
	Args    []string
	Formats []tts.AudioFormat // empty means any format
}

func (c Command) supports(f tts.AudioFormat) bool {
	if len(c.Formats) == 0 {
		return true
	}
	for _, s := range c.Formats {
		if s == f {
			return true
		}
	}
	return false
}

// DefaultCommands are tried in order.
var DefaultCommands = []Command{
	{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-i", "pipe:0"}},
	{Name: "mpg123", Args: []string{"-q", "-"}, Formats: []tts.AudioFormat{tts.FormatMP3}},
	{Name: "aplay", Args: []string{"-q", "-"}, Formats: []tts.AudioFormat{tts.FormatWAV}},
	{Name: "paplay", Args: nil, Formats: []tts.AudioFormat{tts.FormatWAV}},
}

// ExecPlayer pipes encoded audio into an external player. It handles the
// compressed formats oto cannot.
type ExecPlayer struct {
	mu       sync.Mutex
	commands []Command
	lookPath func(string) (string, error)
	cmd      *exec.Cmd
	stopped  bool
	logger   *log.Logger
}

// NewExecPlayer creates a player over DefaultCommands.
func NewExecPlayer(logger *log.Logger, commands ...Command) *ExecPlayer {
	if logger == nil {
		logger = log.Default()
	}
	if len(commands) == 0 {
		commands = DefaultCommands
	}
	return &ExecPlayer{commands: commands, lookPath: exec.LookPath, logger: logger}
}

// Resolve returns the first installed command able to play f.
func (p *ExecPlayer) Resolve(f tts.AudioFormat) (string, Command, error) {
	var tried []string
	for _, c := range p.commands {
		if !c.supports(f) {
			continue
		}
		path, err := p.lookPath(c.Name)
		if err == nil {
			return path, c, nil
		}
		tried = append(tried, c.Name)
	}
	return "", Command{}, fmt.Errorf("%w for %s (tried %s)", tts.ErrNoAudioBackend, f, strings.Join(tried, ", "))
}

// Play runs the external player and waits for it to exit.
func (p *ExecPlayer) Play(ctx context.Context, audio *tts.Audio) error {
	if audio == nil || len(audio.Data) == 0 {
		return tts.ErrNothingToPlay
	}
	path, c, err := p.Resolve(audio.Format)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, c.Args...)
	// Stdin is set before Start so the child never sees a half-wired pipe.
	cmd.Stdin = bytes.NewReader(audio.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.mu.Lock()
	if p.cmd != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: already playing", tts.ErrPlaybackFailed)
	}
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: start %s: %v", tts.ErrPlaybackFailed, c.Name, err)
	}
	p.cmd = cmd
	p.stopped = false
	p.mu.Unlock()

	p.logger.Debug("external player started", "cmd", c.Name, "format", audio.Format, "bytes", len(audio.Data))
	err = cmd.Wait()

	p.mu.Lock()
	stopped := p.stopped
	p.cmd = nil
	p.mu.Unlock()

	switch {
	case stopped:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && stderr.Len() > 0 {
			return fmt.Errorf("%w: %s: %v: %s", tts.ErrPlaybackFailed, c.Name, err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("%w: %s: %v", tts.ErrPlaybackFailed, c.Name, err)
	}
	return nil
}

// Stop kills the running player process.
func (p *ExecPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	p.stopped = true
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to stop player: %w", err)
	}
	return nil
}

// IsPlaying returns true while the player process runs.
func (p *ExecPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}
