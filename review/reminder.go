package review

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-co-op/gocron"
)

// Notifier is told how many items are due.
type Notifier interface {
	DueReminder(count int) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(count int) error

// DueReminder calls f.
func (f NotifierFunc) DueReminder(count int) error { return f(count) }

// Reminder periodically checks the store and notifies when items are due.
type Reminder struct {
	store    Store
	notifier Notifier
	interval time.Duration
	logger   *log.Logger
	now      func() time.Time

	mu        sync.Mutex
	scheduler *gocron.Scheduler
}

// NewReminder creates a reminder that checks store every interval.
func NewReminder(store Store, notifier Notifier, interval time.Duration, logger *log.Logger) *Reminder {
	if logger == nil {
		logger = log.Default()
	}
	return &Reminder{
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Start schedules the check and runs it in the background. The first check
// runs immediately.
func (r *Reminder) Start() error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid reminder interval %s", r.interval)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return nil
	}

	s := gocron.NewScheduler(time.Local)
	s.SingletonModeAll()
	if _, err := s.Every(r.interval).Do(r.run); err != nil {
		return fmt.Errorf("failed to schedule review reminder: %w", err)
	}
	s.StartAsync()
	r.scheduler = s
	r.logger.Debug("review reminder started", "interval", r.interval)
	return nil
}

// Stop terminates the scheduled check.
func (r *Reminder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return
	}
	r.scheduler.Stop()
	r.scheduler = nil
}

func (r *Reminder) run() {
	if _, err := r.Check(context.Background()); err != nil {
		r.logger.Warn("review reminder failed", "err", err)
	}
}

// Check counts due items and notifies when there are any.
func (r *Reminder) Check(ctx context.Context) (int, error) {
	st, err := r.store.Stats(ctx, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to count due items: %w", err)
	}
	if st.Due == 0 {
		return 0, nil
	}
	if err := r.notifier.DueReminder(st.Due); err != nil {
		return st.Due, fmt.Errorf("failed to send review reminder: %w", err)
	}
	return st.Due, nil
}
