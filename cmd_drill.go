package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/cache"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/review"
	"github.com/dgnsrekt/kaiwa/review/sqlstore"
	"github.com/dgnsrekt/kaiwa/speech"
	"github.com/dgnsrekt/kaiwa/speech/recognizers/typed"
	"github.com/dgnsrekt/kaiwa/training"
	"github.com/dgnsrekt/kaiwa/tts"
	"github.com/dgnsrekt/kaiwa/ui"
)

var (
	level       string
	translation bool

	drillCmd = &cobra.Command{
		Use:     "drill [SCENE]",
		Short:   "Practice a conversation scene",
		Long:    paragraph(fmt.Sprintf("\nPractice a %s. Each prompt is spoken, then you type your answer before the timer runs out. SCENE is a scene id or a fuzzy search; the first scene is used when it is omitted.", keyword("conversation scene"))),
		Example: paragraph("kaiwa drill\nkaiwa drill morning\nkaiwa drill --level native cafe_order"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runDrill,
	}

	phrasesCmd = &cobra.Command{
		Use:     "phrases [GROUP]",
		Short:   "Drill a phrase group",
		Long:    paragraph(fmt.Sprintf("\nDrill a %s: say each phrase in English, mark yourself, and repeat the ones you missed.", keyword("phrase group"))),
		Example: paragraph("kaiwa phrases\nkaiwa phrases office"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runPhrases,
	}
)

func loadLibrary() (content.Library, error) {
	dir, err := contentDir()
	if err != nil {
		return content.Library{}, err
	}
	lib, err := content.LoadDir(dir)
	if err != nil {
		return content.Library{}, fmt.Errorf("unable to load content: %w", err)
	}
	return lib, nil
}

// session holds everything a drill screen needs.
type session struct {
	cache   *cache.AudioCache
	audio   *tts.Controller
	input   *typed.Recognizer
	speech  *speech.Controller
	history *training.History
	store   *sqlstore.Store
	opts    []training.Option
}

func newSession(ctx context.Context) (*session, error) {
	ac, err := newAudioCache()
	if err != nil {
		return nil, err
	}
	ctl, err := newAudioController(ac)
	if err != nil {
		_ = ac.Close()
		return nil, err
	}

	input := typed.New(log.Default().WithPrefix("input"))
	sc := speech.DefaultConfig()
	sc.Lang = cfg.Speech.Lang
	sc.Continuous = cfg.Speech.Continuous
	sc.InterimResults = cfg.Speech.InterimResults
	sc.TimeLimit = cfg.Speech.Timeout
	sc.ConfirmOnTimeUp = cfg.Training.ConfirmOnTimeUp
	sc.ResetTimeout = cfg.Speech.ResetTimeout
	sc.ConfidenceThreshold = cfg.Speech.ConfidenceThreshold
	rec := speech.NewController(input,
		speech.WithConfig(sc),
		speech.WithLogger(log.Default().WithPrefix("speech")),
		speech.WithObserver(appMetrics),
	)

	history := training.NewHistory(cfg.Training.HistorySize)
	tc := training.DefaultConfig()
	tc.ResponseTimeLimit = cfg.Training.ResponseTimeLimit
	tc.AutoAdvance = cfg.Training.AutoAdvance
	tc.AdvanceDelay = cfg.Training.AutoAdvanceDelay

	// The drill still runs without review; only the add-to-review key is lost.
	store, err := openStore(ctx)
	if err != nil {
		log.Warn("review store unavailable", "err", err)
		store = nil
	}

	return &session{
		cache:   ac,
		audio:   ctl,
		input:   input,
		speech:  rec,
		history: history,
		store:   store,
		opts: []training.Option{
			training.WithConfig(tc),
			training.WithLogger(log.Default()),
			training.WithHistory(history),
		},
	}, nil
}

func (s *session) Close() {
	s.speech.Close()
	if err := s.audio.Stop(); err != nil {
		log.Debug("stopping audio failed", "err", err)
	}
	if err := s.cache.Close(); err != nil {
		log.Warn("closing audio cache failed", "err", err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Warn("closing review store failed", "err", err)
		}
	}
	for _, r := range s.history.Records() {
		appMetrics.DrillFinished(string(r.Kind), r.Completed)
	}
}

// review returns the review store for the drill screen, nil when it could
// not be opened.
func (s *session) review() review.Store {
	if s.store == nil {
		return nil
	}
	return s.store
}

// uiConfig reads the UI environment and applies flags and settings.
func uiConfig() (ui.Config, error) {
	c, err := env.ParseAs[ui.Config]()
	if err != nil {
		return ui.Config{}, fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if unset or invalid
	if c.GlamourStyle == "" || validateStyle(c.GlamourStyle) != nil {
		c.GlamourStyle = style
	}
	c.GlamourEnabled = true
	c.GlamourMaxWidth = width
	c.EnableMouse = mouse
	c.Level = content.Level(level)
	c.ShowTranslation = translation
	c.ShowHints = cfg.Training.EnableHints
	c.Autoplay = cfg.Training.Autoplay
	return c, nil
}

func runDrill(cmd *cobra.Command, args []string) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	var scene content.Scene
	switch {
	case len(args) == 1:
		if scene, err = lib.LookupScene(args[0]); err != nil {
			return err
		}
	case len(lib.Scenes) > 0:
		scene = lib.Scenes[0]
	default:
		return errors.New("no scenes available")
	}

	s, err := newSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	flow, err := training.NewConversationFlow(scene, s.audio, s.speech, s.opts...)
	if err != nil {
		return err
	}
	defer flow.Close()

	return runProgram(cmd.Context(), ui.Drill{
		Conversation: flow,
		Input:        s.input,
		Audio:        s.audio,
		History:      s.history,
		Review:       s.review(),
	})
}

func runPhrases(cmd *cobra.Command, args []string) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	var group content.PhraseGroup
	switch {
	case len(args) == 1:
		if group, err = lib.LookupGroup(args[0]); err != nil {
			return err
		}
	case len(lib.Groups) > 0:
		group = lib.Groups[0]
	default:
		return errors.New("no phrase groups available")
	}

	s, err := newSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	flow, err := training.NewPhraseFlow(group, s.audio, s.speech, s.opts...)
	if err != nil {
		return err
	}
	defer flow.Close()

	return runProgram(cmd.Context(), ui.Drill{
		Phrases: flow,
		Input:   s.input,
		Audio:   s.audio,
		History: s.history,
		Review:  s.review(),
	})
}

// runProgram runs the drill screen until the user quits or the session
// timeout passes.
func runProgram(ctx context.Context, d ui.Drill) error {
	c, err := uiConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Training.SessionTimeout)
	defer cancel()
	startMetrics(ctx)
	if stop := startReminder(ctx); stop != nil {
		defer stop()
	}

	// Run Bubble Tea program
	if _, err := ui.NewProgram(ctx, c, d).Run(); err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			log.Info("drill ended", "reason", ctx.Err())
			return nil
		}
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// startReminder runs the due-review reminder in the background when it is
// enabled. It returns a stop function, or nil.
func startReminder(ctx context.Context) func() {
	if !cfg.Review.Reminder {
		return nil
	}
	store, err := openStore(ctx)
	if err != nil {
		log.Warn("review reminder disabled", "err", err)
		return nil
	}
	logger := log.Default().WithPrefix("review")
	r := review.NewReminder(store, review.NotifierFunc(func(count int) error {
		logger.Info("reviews due", "count", count)
		return nil
	}), cfg.Review.ReminderInterval, logger)
	if err := r.Start(); err != nil {
		_ = store.Close()
		log.Warn("review reminder disabled", "err", err)
		return nil
	}
	return func() {
		r.Stop()
		_ = store.Close()
	}
}

// openStore opens the review database named by the storage settings.
func openStore(ctx context.Context) (*sqlstore.Store, error) {
	dsn := cfg.Storage.DSN
	if dsn == "" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		dsn = filepath.Join(dir, "kaiwa.db")
	}
	return sqlstore.Open(ctx, dsn, log.Default().WithPrefix("store"))
}

func init() {
	for _, c := range []*cobra.Command{rootCmd, drillCmd} {
		c.Flags().StringVarP(&level, "level", "l", string(content.LevelBeginner), "example answer level: beginner or native")
		c.Flags().BoolVarP(&translation, "translation", "t", false, "show the Japanese translation of each prompt")
	}
}
