package synth

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// fakePiper writes a shell script standing in for piper and returns its
// path, the model path and the file the script records its args in.
func fakePiper(t *testing.T, body string) (bin, model, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake piper needs a POSIX shell")
	}
	dir := t.TempDir()
	model = filepath.Join(dir, "voice.onnx")
	if err := os.WriteFile(model, []byte("model"), 0o600); err != nil {
		t.Fatal(err)
	}
	argsFile = filepath.Join(dir, "args")
	bin = filepath.Join(dir, "piper")
	script := "#!/bin/sh\necho \"$@\" > " + argsFile + "\n" + body + "\n"
	if err := os.WriteFile(bin, []byte(script), 0o700); err != nil { //nolint:gosec
		t.Fatal(err)
	}
	return bin, model, argsFile
}

func TestPiper_Synthesize(t *testing.T) {
	bin, model, argsFile := fakePiper(t, "cat > /dev/null\nprintf 'abcd'")
	obs := &recordingObserver{}
	p, err := NewPiper(PiperConfig{Binary: bin, Model: model, Speaker: "2"}, WithPiperObserver(obs))
	if err != nil {
		t.Fatalf("NewPiper failed: %v", err)
	}

	res, err := p.Synthesize(context.Background(), "  Nice to meet you.  ", 0.5)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if res.MIMEType != "audio/wav" {
		t.Errorf("MIMEType = %q, want audio/wav", res.MIMEType)
	}
	wav, err := base64.StdEncoding.DecodeString(res.AudioData)
	if err != nil {
		t.Fatalf("AudioData is not base64: %v", err)
	}
	if len(wav) != 48 {
		t.Fatalf("len(wav) = %d, want 48", len(wav))
	}
	if string(wav[:4]) != "RIFF" || string(wav[8:16]) != "WAVEfmt " || string(wav[36:40]) != "data" {
		t.Errorf("bad WAV header: %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 22050 {
		t.Errorf("sample rate = %d, want 22050", got)
	}
	if got := string(wav[44:]); got != "abcd" {
		t.Errorf("samples = %q, want abcd", got)
	}

	args, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"--model " + model, "--output-raw", "--length-scale 2.00", "--speaker 2"} {
		if !strings.Contains(string(args), want) {
			t.Errorf("args = %q, want %q", args, want)
		}
	}
	if strings.Contains(string(args), "--config") {
		t.Errorf("args = %q, want no --config without a model config", args)
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != "ok" {
		t.Errorf("outcomes = %v, want [ok]", obs.outcomes)
	}
}

func TestPiper_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		text    string
		timeout time.Duration
		outcome string
		wantErr error
	}{
		{name: "empty text", body: "exit 0", text: "   ", wantErr: ErrEmptyText},
		{name: "no output", body: "cat > /dev/null", text: "hi", outcome: "empty_payload", wantErr: ErrEmptyPayload},
		{name: "failure", body: "echo boom >&2; exit 3", text: "hi", outcome: "exec"},
		{name: "timeout", body: "sleep 5", text: "hi", timeout: 50 * time.Millisecond, outcome: "timeout", wantErr: context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin, model, _ := fakePiper(t, tt.body)
			obs := &recordingObserver{}
			p, err := NewPiper(PiperConfig{Binary: bin, Model: model, Timeout: tt.timeout}, WithPiperObserver(obs))
			if err != nil {
				t.Fatalf("NewPiper failed: %v", err)
			}
			_, err = p.Synthesize(context.Background(), tt.text, 1)
			if err == nil {
				t.Fatal("Synthesize succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			var got string
			if len(obs.outcomes) > 0 {
				got = obs.outcomes[0]
			}
			if got != tt.outcome {
				t.Errorf("outcome = %q, want %q", got, tt.outcome)
			}
		})
	}
}

func TestNewPiper_MissingModel(t *testing.T) {
	if _, err := NewPiper(PiperConfig{}); err == nil {
		t.Error("NewPiper() with no model succeeded")
	}
	if _, err := NewPiper(PiperConfig{Binary: "piper", Model: filepath.Join(t.TempDir(), "nope.onnx")}); err == nil {
		t.Error("NewPiper() with a missing model succeeded")
	}
}
