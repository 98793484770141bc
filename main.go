// Package main provides the entry point for the kaiwa CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/kaiwa/internal/config"
	"github.com/dgnsrekt/kaiwa/internal/metrics"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	profile    string
	style      string
	width      uint
	mouse      bool

	v          = viper.New()
	cfg        config.Config
	appMetrics = metrics.New()

	rootCmd = &cobra.Command{
		Use:   "kaiwa [SCENE]",
		Short: "Practice English conversation in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nPractice English %s: hear a prompt, answer before the timer runs out, then compare with example answers.", keyword("conversation")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
		RunE: runDrill,
	}
)

// loadConfig reads settings into cfg and validates the display flags.
func loadConfig(cmd *cobra.Command) error {
	if profile != "" {
		if err := os.Setenv("KAIWA_PROFILE", profile); err != nil {
			return fmt.Errorf("unable to set profile: %w", err)
		}
	}

	c, err := config.Load(v, config.Options{File: configFile, Logger: log.Default()})
	if err != nil {
		return err
	}
	cfg = c
	log.Debug("configuration loaded", "profile", cfg.Profile, "file", v.ConfigFileUsed())

	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// We want to use a special no-TTY style, when stdout is not a terminal
	// and there was no specific style passed by arg
	if !isTerminal && !cmd.Flags().Changed("style") {
		style = "notty"
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != styles.AutoStyle && styles.DefaultStyles[style] == nil {
		style = config.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

// dataDir is where the review database, content and disk cache live.
func dataDir() (string, error) {
	if cfg.Storage.DataDir != "" {
		return cfg.Storage.DataDir, nil
	}
	return config.DataDir()
}

func contentDir() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "content"), nil
}

// startMetrics serves /metrics until ctx is done when an address is set.
func startMetrics(ctx context.Context) {
	if cfg.Metrics.Addr == "" {
		return
	}
	logger := log.Default().WithPrefix("metrics")
	go func() {
		if err := appMetrics.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
			logger.Error("metrics server failed", "addr", cfg.Metrics.Addr, "err", err)
		}
	}()
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is kaiwa.yml in the user config dir)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "settings profile: development, production or test")
	rootCmd.PersistentFlags().StringVarP(&style, "style", "s", styles.AutoStyle, "summary style name or JSON path")
	rootCmd.PersistentFlags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to detect)")
	rootCmd.PersistentFlags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse support")
	_ = rootCmd.PersistentFlags().MarkHidden("mouse")

	rootCmd.AddCommand(
		configCmd,
		manCmd,
		sayCmd,
		drillCmd,
		phrasesCmd,
		reviewCmd,
		cacheCmd,
		contentCmd,
	)
}
