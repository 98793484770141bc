package training

import (
	"sync"
	"time"
)

// DefaultHistorySize bounds the archived session list.
const DefaultHistorySize = 50

// Kind is the drill type of a session.
type Kind string

// Session kinds.
const (
	KindConversation Kind = "conversation"
	KindPhrase       Kind = "phrase"
)

// Record is an archived training session.
type Record struct {
	ID        string
	Kind      Kind
	ContentID string
	StartedAt time.Time
	EndedAt   time.Time
	Completed bool
	Items     int // turns or phrases in the drill
	Done      int // turns answered or phrases marked correct
	Attempts  int
	Responses []string
}

// Completion is the share of items done, in [0, 1].
func (r Record) Completion() float64 {
	if r.Items == 0 {
		return 0
	}
	return float64(r.Done) / float64(r.Items)
}

// Duration is how long the session ran.
func (r Record) Duration() time.Duration {
	if r.EndedAt.Before(r.StartedAt) {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// HistoryStats summarizes archived sessions.
type HistoryStats struct {
	Sessions          int
	Completed         int
	AverageCompletion float64
	TotalTime         time.Duration
}

// History keeps the most recent sessions. The zero value is not usable;
// call NewHistory.
type History struct {
	mu      sync.Mutex
	max     int
	records []Record
}

// NewHistory creates a history holding at most max records.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultHistorySize
	}
	return &History{max: max}
}

// Add archives r, dropping the oldest record when full.
func (h *History) Add(r Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r)
	if over := len(h.records) - h.max; over > 0 {
		h.records = append([]Record(nil), h.records[over:]...)
	}
}

// Records returns archived sessions, oldest first.
func (h *History) Records() []Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Record(nil), h.records...)
}

// Len returns the number of archived sessions.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Stats summarizes the archive.
func (h *History) Stats() HistoryStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	var st HistoryStats
	var sum float64
	for _, r := range h.records {
		st.Sessions++
		if r.Completed {
			st.Completed++
		}
		sum += r.Completion()
		st.TotalTime += r.Duration()
	}
	if st.Sessions > 0 {
		st.AverageCompletion = sum / float64(st.Sessions)
	}
	return st
}
