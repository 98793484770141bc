package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/kaiwa/internal/clock"
)

// Session errors.
var (
	ErrNoSession      = errors.New("no review session in progress")
	ErrNotInSession   = errors.New("item is not part of the review session")
	ErrSessionRunning = errors.New("a review session is already in progress")
)

// DefaultHistorySize bounds the archived session list.
const DefaultHistorySize = 50

// Result records one rating within a session.
type Result struct {
	ItemID       string
	Difficulty   Difficulty
	Success      bool
	ResponseTime time.Duration
	Timestamp    time.Time
}

// Session is one pass over a set of due items.
type Session struct {
	ID           string
	ItemIDs      []string
	CurrentIndex int
	Results      []Result
	StartedAt    time.Time
	EndedAt      time.Time
}

// Done reports whether every item has been rated.
func (s Session) Done() bool {
	return s.CurrentIndex >= len(s.ItemIDs)
}

// Observer receives review ratings.
type Observer interface {
	ReviewRated(difficulty string)
}

type nopObserver struct{}

func (nopObserver) ReviewRated(string) {}

// Reviewer runs review sessions against a Store and archives them.
type Reviewer struct {
	store       Store
	clock       clock.Clock
	logger      *log.Logger
	observer    Observer
	historySize int

	mu      sync.Mutex
	current *Session
	history []Session
}

// ReviewerOption configures a Reviewer.
type ReviewerOption func(*Reviewer)

// WithClock sets the time source.
func WithClock(c clock.Clock) ReviewerOption {
	return func(r *Reviewer) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) ReviewerOption {
	return func(r *Reviewer) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver attaches a rating observer.
func WithObserver(o Observer) ReviewerOption {
	return func(r *Reviewer) {
		if o != nil {
			r.observer = o
		}
	}
}

// WithHistorySize bounds the archived session list.
func WithHistorySize(n int) ReviewerOption {
	return func(r *Reviewer) {
		if n > 0 {
			r.historySize = n
		}
	}
}

// NewReviewer creates a Reviewer over store.
func NewReviewer(store Store, opts ...ReviewerOption) *Reviewer {
	r := &Reviewer{
		store:       store,
		clock:       clock.Real(),
		logger:      log.Default(),
		observer:    nopObserver{},
		historySize: DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start begins a session over items.
func (r *Reviewer) Start(items []Item) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		return Session{}, ErrSessionRunning
	}
	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	r.current = &Session{
		ID:        uuid.NewString(),
		ItemIDs:   ids,
		StartedAt: r.clock.Now(),
	}
	r.logger.Debug("review session started", "session", r.current.ID, "items", len(ids))
	return r.snapshotLocked(), nil
}

// StartDue begins a session over the items due now.
func (r *Reviewer) StartDue(ctx context.Context) (Session, error) {
	due, err := r.store.DueItems(ctx, r.clock.Now())
	if err != nil {
		return Session{}, fmt.Errorf("failed to load due items: %w", err)
	}
	return r.Start(due)
}

// Record rates an item of the current session, reschedules it and persists
// the result. It returns the updated item.
func (r *Reviewer) Record(ctx context.Context, itemID string, d Difficulty, responseTime time.Duration) (Item, error) {
	if !d.Valid() {
		return Item{}, fmt.Errorf("%w: %q", ErrInvalidDifficulty, string(d))
	}

	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return Item{}, ErrNoSession
	}
	if !contains(r.current.ItemIDs, itemID) {
		r.mu.Unlock()
		return Item{}, fmt.Errorf("%w: %s", ErrNotInSession, itemID)
	}
	sessionID := r.current.ID
	r.mu.Unlock()

	item, err := r.store.Get(ctx, itemID)
	if err != nil {
		return Item{}, fmt.Errorf("failed to load review item %s: %w", itemID, err)
	}
	now := r.clock.Now()
	sched, err := ScheduleNextReview(item, d, now)
	if err != nil {
		return Item{}, err
	}
	item = sched.Apply(item, now)
	if err := r.store.Update(ctx, item); err != nil {
		return Item{}, fmt.Errorf("failed to save review item %s: %w", itemID, err)
	}

	r.mu.Lock()
	if r.current != nil && r.current.ID == sessionID {
		r.current.Results = append(r.current.Results, Result{
			ItemID:       itemID,
			Difficulty:   d,
			Success:      d != Again,
			ResponseTime: responseTime,
			Timestamp:    now,
		})
		if r.current.CurrentIndex < len(r.current.ItemIDs) {
			r.current.CurrentIndex++
		}
	}
	r.mu.Unlock()

	r.logger.Debug("review recorded", "item", itemID, "difficulty", d, "next", sched.NextReviewAt, "ef", sched.EaseFactor)
	r.observer.ReviewRated(string(d))
	return item, nil
}

// Current returns the id of the next item to rate.
func (r *Reviewer) Current() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.current.Done() {
		return "", false
	}
	return r.current.ItemIDs[r.current.CurrentIndex], true
}

// Progress returns rated and total item counts of the current session.
func (r *Reviewer) Progress() (done, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return 0, 0
	}
	return len(r.current.Results), len(r.current.ItemIDs)
}

// End archives the current session. It reports false when none is running.
func (r *Reviewer) End() (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Session{}, false
	}
	r.current.EndedAt = r.clock.Now()
	s := r.snapshotLocked()
	r.current = nil

	r.history = append(r.history, s)
	if over := len(r.history) - r.historySize; over > 0 {
		r.history = append([]Session(nil), r.history[over:]...)
	}
	r.logger.Debug("review session ended", "session", s.ID, "rated", len(s.Results))
	return s, true
}

// History returns archived sessions, oldest first.
func (r *Reviewer) History() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.history...)
}

func (r *Reviewer) snapshotLocked() Session {
	s := *r.current
	s.ItemIDs = append([]string(nil), s.ItemIDs...)
	s.Results = append([]Result(nil), s.Results...)
	return s
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
