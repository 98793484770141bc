package training

import (
	"testing"
	"time"
)

func TestHistoryBounded(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Add(Record{ID: string(rune('a' + i))})
	}
	recs := h.Records()
	if len(recs) != 3 {
		t.Fatalf("Len = %d, want 3", len(recs))
	}
	if recs[0].ID != "c" || recs[2].ID != "e" {
		t.Errorf("records = %v, want c..e", []string{recs[0].ID, recs[1].ID, recs[2].ID})
	}
}

func TestHistoryStats(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	h := NewHistory(0)
	h.Add(Record{StartedAt: start, EndedAt: start.Add(2 * time.Minute), Completed: true, Items: 4, Done: 4})
	h.Add(Record{StartedAt: start, EndedAt: start.Add(time.Minute), Items: 4, Done: 2})
	h.Add(Record{StartedAt: start, EndedAt: start.Add(-time.Minute)})

	st := h.Stats()
	if st.Sessions != 3 || st.Completed != 1 {
		t.Errorf("Stats() = %+v", st)
	}
	if st.TotalTime != 3*time.Minute {
		t.Errorf("TotalTime = %v, want 3m", st.TotalTime)
	}
	if want := 0.5; st.AverageCompletion != want {
		t.Errorf("AverageCompletion = %v, want %v", st.AverageCompletion, want)
	}
	if got := NewHistory(0).Stats(); got != (HistoryStats{}) {
		t.Errorf("empty Stats() = %+v", got)
	}
}
