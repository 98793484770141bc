package review

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Difficulty is the user's rating of how well an item was recalled.
type Difficulty string

// Difficulty ratings.
const (
	Again Difficulty = "again"
	Hard  Difficulty = "hard"
	Good  Difficulty = "good"
	Easy  Difficulty = "easy"
)

// Scheduling constants.
const (
	InitialEaseFactor = 2.5
	MinEaseFactor     = 1.3
)

// ErrInvalidDifficulty is returned for a rating outside again/hard/good/easy.
var ErrInvalidDifficulty = errors.New("invalid difficulty")

// ParseDifficulty parses a rating, ignoring case and surrounding space.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, s)
	}
	return d, nil
}

// Valid reports whether d is a known rating.
func (d Difficulty) Valid() bool {
	switch d {
	case Again, Hard, Good, Easy:
		return true
	}
	return false
}

// Schedule is the outcome of one review.
type Schedule struct {
	NextReviewAt    time.Time
	IntervalDays    int
	EaseFactor      float64
	RepetitionCount int
}

// ScheduleNextReview computes the next review for item rated d at now.
//
// Intervals always start from a base of one day; the item's previous
// interval is not carried forward. "hard" keeps the repetition count.
func ScheduleNextReview(item Item, d Difficulty, now time.Time) (Schedule, error) {
	ef := item.EaseFactor
	if ef < MinEaseFactor {
		ef = MinEaseFactor
	}
	n := item.RepetitionCount
	if n < 0 {
		n = 0
	}
	interval := 1

	switch d {
	case Again:
		n = 0
		ef = math.Max(MinEaseFactor, ef-0.2)
	case Hard:
		// TODO: scale from the item's previous interval once intervals are stored.
		interval = max(1, int(math.Round(float64(interval)*1.2)))
		ef = math.Max(MinEaseFactor, ef-0.15)
	case Good:
		switch n {
		case 0:
			interval = 1
		case 1:
			interval = 6
		default:
			interval = int(math.Round(float64(interval) * ef))
		}
		n++
	case Easy:
		if n == 0 {
			interval = 4
		} else {
			interval = int(math.Round(float64(interval) * ef * 1.3))
		}
		n++
		ef += 0.15
	default:
		return Schedule{}, fmt.Errorf("%w: %q", ErrInvalidDifficulty, string(d))
	}

	next := now.AddDate(0, 0, interval)
	if next.Before(item.AddedAt) {
		next = item.AddedAt
	}
	return Schedule{
		NextReviewAt:    next,
		IntervalDays:    interval,
		EaseFactor:      ef,
		RepetitionCount: n,
	}, nil
}

// MustSchedule is like ScheduleNextReview but panics on an invalid rating.
func MustSchedule(item Item, d Difficulty, now time.Time) Schedule {
	s, err := ScheduleNextReview(item, d, now)
	if err != nil {
		panic(err)
	}
	return s
}

// Apply returns item updated with s, reviewed at now.
func (s Schedule) Apply(item Item, now time.Time) Item {
	item.NextReviewAt = s.NextReviewAt
	item.EaseFactor = s.EaseFactor
	item.RepetitionCount = s.RepetitionCount
	reviewed := now
	item.LastReviewedAt = &reviewed
	return item
}
