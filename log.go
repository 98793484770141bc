package main

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/kaiwa/internal/config"
)

// setupLog sends logs to the kaiwa log file when KAIWA_DEBUG is set and
// discards them otherwise.
func setupLog() (func() error, error) {
	noop := func() error { return nil }
	if os.Getenv("KAIWA_DEBUG") == "" {
		log.SetOutput(io.Discard)
		return noop, nil
	}

	logFile, err := config.LogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil { //nolint:gosec
		// log disabled
		log.SetOutput(io.Discard)
		return noop, nil
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		// log disabled
		log.SetOutput(io.Discard)
		return noop, nil
	}

	log.SetDefault(log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           log.DebugLevel,
	}))
	return f.Close, nil
}
