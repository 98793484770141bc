package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/kaiwa/internal/config"
	"github.com/dgnsrekt/kaiwa/internal/content"
	"github.com/dgnsrekt/kaiwa/review"
)

var (
	reviewScene  string
	reviewTurn   string
	reviewPhrase string

	reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Spaced-repetition review of turns and phrases",
		Long:  paragraph(fmt.Sprintf("\nQueue turns and phrases for %s and rate how well you recalled them.", keyword("spaced-repetition review"))),
	}

	reviewAddCmd = &cobra.Command{
		Use:     "add",
		Short:   "Queue a turn or phrase for review",
		Example: paragraph("kaiwa review add --scene morning_greeting --turn t1\nkaiwa review add --phrase o2"),
		Args:    cobra.NoArgs,
		RunE:    withStore(reviewAdd),
	}

	reviewDueCmd = &cobra.Command{
		Use:   "due",
		Short: "List items due for review",
		Args:  cobra.NoArgs,
		RunE:  withStore(reviewDue),
	}

	reviewRateCmd = &cobra.Command{
		Use:     "rate ID DIFFICULTY",
		Short:   "Rate recall of an item: again, hard, good or easy",
		Example: paragraph("kaiwa review rate 3f1c good"),
		Args:    cobra.ExactArgs(2),
		RunE:    withStore(reviewRate),
	}

	reviewRmCmd = &cobra.Command{
		Use:   "rm ID",
		Short: "Remove an item from review",
		Args:  cobra.ExactArgs(1),
		RunE:  withStore(reviewRm),
	}

	reviewStatsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show review totals",
		Args:  cobra.NoArgs,
		RunE:  withStore(reviewStats),
	}

	reviewRunCmd = &cobra.Command{
		Use:   "run",
		Short: "Review every due item, rating each one",
		Args:  cobra.NoArgs,
		RunE:  withStore(reviewRun),
	}

	reviewRemindCmd = &cobra.Command{
		Use:   "remind",
		Short: "Keep running and report due reviews on an interval",
		Long:  paragraph("\nCheck for due reviews every review.reminder_interval until interrupted. The interval is reloaded when the config file changes."),
		Args:  cobra.NoArgs,
		RunE:  withStore(reviewRemind),
	}
)

type storeFunc func(cmd *cobra.Command, args []string, store review.Store) error

// withStore opens the review database around fn.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close() //nolint:errcheck
		return fn(cmd, args, store)
	}
}

func newReviewer(store review.Store) *review.Reviewer {
	return review.NewReviewer(store,
		review.WithLogger(log.Default().WithPrefix("review")),
		review.WithObserver(appMetrics),
	)
}

func reviewAdd(cmd *cobra.Command, _ []string, store review.Store) error {
	var ref review.Ref
	switch {
	case reviewPhrase != "":
		ref = review.Ref{Type: review.TypePhrase, PhraseID: reviewPhrase}
	case reviewScene != "":
		ref = review.Ref{Type: review.TypeConversation, SceneID: reviewScene, TurnID: reviewTurn}
	default:
		return errors.New("use --scene and --turn, or --phrase")
	}

	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	if _, err := describe(lib, ref); err != nil {
		return err
	}

	item, err := review.NewItem(ref, time.Now())
	if err != nil {
		return err
	}
	item, added, err := store.Add(cmd.Context(), item)
	if err != nil {
		return err
	}
	if !added {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is already queued as %s\n", ref, item.ID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as %s, first review %s\n", ref, item.ID, humanize.Time(item.NextReviewAt))
	return nil
}

func reviewDue(cmd *cobra.Command, _ []string, store review.Store) error {
	items, err := store.DueItems(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review.")
		return nil
	}
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	for _, item := range items {
		text, err := describe(lib, item.Ref)
		if err != nil {
			text = "(missing content)"
		}
		fmt.Fprintf(w, "%s  %-8s  due %-14s  %s\n", item.ID, keyword(string(item.Type)), humanize.Time(item.NextReviewAt), text)
	}
	return nil
}

func reviewRate(cmd *cobra.Command, args []string, store review.Store) error {
	d, err := review.ParseDifficulty(args[1])
	if err != nil {
		return err
	}
	item, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	r := newReviewer(store)
	if _, err := r.Start([]review.Item{item}); err != nil {
		return err
	}
	item, err = r.Record(cmd.Context(), item.ID, d, 0)
	if err != nil {
		return err
	}
	r.End()
	fmt.Fprintf(cmd.OutOrStdout(), "Next review %s (%s)\n", humanize.Time(item.NextReviewAt), item.NextReviewAt.Format(time.DateOnly))
	return nil
}

func reviewRm(cmd *cobra.Command, args []string, store review.Store) error {
	if err := store.Remove(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Removed", args[0])
	return nil
}

func reviewStats(cmd *cobra.Command, _ []string, store review.Store) error {
	st, err := store.Stats(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Total: %d  Due: %d  Mastered: %d\n", st.Total, st.Due, st.Mastered)
	return nil
}

// reviewRun walks the due items on the terminal, reading one rating per
// line.
func reviewRun(cmd *cobra.Command, _ []string, store review.Store) error {
	lib, err := loadLibrary()
	if err != nil {
		return err
	}
	r := newReviewer(store)
	sess, err := r.StartDue(cmd.Context())
	if err != nil {
		return err
	}
	if len(sess.ItemIDs) == 0 {
		r.End()
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to review.")
		return nil
	}
	return runReviewSession(cmd.Context(), r, store, lib, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runReviewSession(ctx context.Context, r *review.Reviewer, store review.Store, lib content.Library, in io.Reader, w io.Writer) error {
	defer r.End()
	scanner := bufio.NewScanner(in)
	for {
		id, ok := r.Current()
		if !ok {
			break
		}
		item, err := store.Get(ctx, id)
		if err != nil {
			return err
		}
		text, err := describe(lib, item.Ref)
		if err != nil {
			text = item.Ref.String()
		}
		done, total := r.Progress()
		fmt.Fprintf(w, "\n[%d/%d] %s\nagain/hard/good/easy (q to stop): ", done+1, total, text)

		shown := time.Now()
		var d review.Difficulty
		for {
			if !scanner.Scan() {
				return scanner.Err()
			}
			answer := strings.TrimSpace(scanner.Text())
			if answer == "q" {
				return nil
			}
			if d, err = review.ParseDifficulty(answer); err == nil {
				break
			}
			fmt.Fprint(w, "please answer again, hard, good or easy: ")
		}
		item, err = r.Record(ctx, id, d, time.Since(shown))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "next review %s\n", humanize.Time(item.NextReviewAt))
	}
	fmt.Fprintln(w, "\nAll done.")
	return nil
}

func reviewRemind(cmd *cobra.Command, _ []string, store review.Store) error {
	ctx := cmd.Context()
	startMetrics(ctx)
	logger := log.Default().WithPrefix("review")
	out := cmd.OutOrStdout()
	notifier := review.NotifierFunc(func(count int) error {
		_, err := fmt.Fprintf(out, "%s %d review(s) due, run %s\n", time.Now().Format(time.Kitchen), count, keyword("kaiwa review run"))
		return err
	})

	var mu sync.Mutex
	start := func(interval time.Duration) (*review.Reminder, error) {
		r := review.NewReminder(store, notifier, interval, logger)
		if err := r.Start(); err != nil {
			return nil, err
		}
		return r, nil
	}
	reminder, err := start(cfg.Review.ReminderInterval)
	if err != nil {
		return err
	}
	defer func() {
		mu.Lock()
		reminder.Stop()
		mu.Unlock()
	}()

	if path := v.ConfigFileUsed(); path != "" {
		w, err := config.Watch(path, func() (config.Config, error) {
			return config.Load(nil, config.Options{File: path})
		}, func(c config.Config) {
			mu.Lock()
			defer mu.Unlock()
			if c.Review.ReminderInterval == cfg.Review.ReminderInterval {
				return
			}
			next, err := start(c.Review.ReminderInterval)
			if err != nil {
				logger.Warn("keeping reminder interval", "err", err)
				return
			}
			reminder.Stop()
			reminder = next
			cfg.Review.ReminderInterval = c.Review.ReminderInterval
			logger.Info("reminder interval changed", "interval", c.Review.ReminderInterval)
		}, logger)
		if err != nil {
			logger.Warn("config changes will not be picked up", "err", err)
		} else {
			defer w.Close() //nolint:errcheck
		}
	}

	fmt.Fprintf(out, "Checking for due reviews every %s. Press ctrl+c to stop.\n", cfg.Review.ReminderInterval)
	<-ctx.Done()
	return nil
}

// describe returns the prompt text of the referenced content.
func describe(lib content.Library, ref review.Ref) (string, error) {
	switch ref.Type {
	case review.TypePhrase:
		for _, g := range lib.Groups {
			for _, p := range g.Phrases {
				if p.ID == ref.PhraseID {
					return p.Japanese + " → " + p.English, nil
				}
			}
		}
		return "", fmt.Errorf("%w: phrase %q", content.ErrNotFound, ref.PhraseID)
	default:
		scene, err := lib.Scene(ref.SceneID)
		if err != nil {
			return "", err
		}
		for _, t := range scene.Turns {
			if t.ID == ref.TurnID {
				return t.Text, nil
			}
		}
		return "", fmt.Errorf("%w: turn %q in scene %q", content.ErrNotFound, ref.TurnID, ref.SceneID)
	}
}

func init() {
	reviewAddCmd.Flags().StringVar(&reviewScene, "scene", "", "scene id")
	reviewAddCmd.Flags().StringVar(&reviewTurn, "turn", "", "turn id within the scene")
	reviewAddCmd.Flags().StringVar(&reviewPhrase, "phrase", "", "phrase id")

	reviewCmd.AddCommand(reviewAddCmd, reviewDueCmd, reviewRateCmd, reviewRmCmd, reviewStatsCmd, reviewRunCmd, reviewRemindCmd)
}
