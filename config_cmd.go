package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/config"
)

const defaultConfig = `# settings profile: development, production or test
profile: "development"

audio:
  # memory cache budget and entry limit
  cache_size_mb: 50
  max_entries: 100
  # cached clips older than this are swept
  cache_ttl: "30m"
  sweep_interval: "5m"
  # keep synthesized clips on disk between runs
  disk_cache: false
  # disk_cache_dir: "~/.local/share/kaiwa/audio"
  disk_capacity_mb: 200
  # synthesis retries per utterance and the per-attempt timeout
  max_retries: 3
  timeout: "10s"
  voice_lang: "en-US"
  # rate multiplier used for slow replays
  slow_rate: 0.7
  # player: auto, exec or none
  player: "auto"
  # engine: proxy (the api endpoint below) or piper (offline)
  engine: "proxy"
  # piper_binary: "~/.local/bin/piper"
  # piper_model: "~/.local/share/piper/en_US-lessac-medium.onnx"
  # piper_speaker: ""

speech:
  lang: "en-US"
  confidence_threshold: 0.7
  # listening is force-ended after this long
  timeout: "30s"
  continuous: true
  interim_results: true
  reset_timeout: "1500ms"

training:
  # seconds to answer each prompt, 0 disables the timer
  response_time_limit: "6s"
  session_timeout: "30m"
  # move to the next phrase after a correct mark
  auto_advance: true
  auto_advance_delay: "1s"
  confirm_on_time_up: true
  # play each prompt as it opens
  autoplay: true
  enable_hints: true
  history_size: 50

api:
  # text-to-speech proxy
  endpoint: "http://localhost:3000/api/tts"
  timeout: "15s"
  retry_delay: "1s"
  # requests per minute
  rate_limit: 60
  rate_limit_enabled: false

review:
  # log a reminder while "kaiwa review remind" runs
  reminder: false
  reminder_interval: "1h"

storage:
  # empty uses a SQLite file in the data dir; postgres:// DSNs are supported
  dsn: ""
  # data_dir: "~/.local/share/kaiwa"

metrics:
  # serve Prometheus metrics, e.g. ":9091"
  addr: ""
`

var configCmd = &cobra.Command{
	Use:              "config",
	Hidden:           false,
	Short:            "Edit the kaiwa config file",
	Long:             paragraph(fmt.Sprintf("\n%s the kaiwa config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example:          paragraph("kaiwa config\nkaiwa config --config path/to/config.yml"),
	Args:             cobra.NoArgs,
	PersistentPreRun: func(*cobra.Command, []string) {},
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Kaiwa", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		if _, err := config.Load(nil, config.Options{File: configFile}); err != nil {
			fmt.Println("Warning:", err)
		}
		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// existingConfigFile returns the first kaiwa config found in the search path.
func existingConfigFile() (string, bool) {
	dirs, err := config.SearchDirs()
	if err != nil {
		return "", false
	}
	for _, d := range dirs {
		for _, ext := range []string{".yml", ".yaml"} {
			p := filepath.Join(d, config.AppName+ext)
			if _, err := os.Stat(p); err == nil {
				return p, true
			}
		}
	}
	return "", false
}

func ensureConfigFile() error {
	if configFile == "" {
		if p, ok := existingConfigFile(); ok {
			configFile = p
		} else {
			p, err := config.DefaultFile()
			if err != nil {
				return err
			}
			configFile = p
		}
	}
	configFile = config.ExpandPath(configFile)

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
