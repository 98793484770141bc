package review

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ItemType is the kind of content an item points at.
type ItemType string

// Item types.
const (
	TypeConversation ItemType = "conversation"
	TypePhrase       ItemType = "phrase"
)

// MasteredRepetitions is the repetition count at which an item counts as
// mastered in Stats.
const MasteredRepetitions = 3

// FirstReviewDelay is how long after being added an item first falls due.
const FirstReviewDelay = 24 * time.Hour

// ErrInvalidRef is returned for a content reference missing its ids.
var ErrInvalidRef = errors.New("invalid content reference")

// Ref identifies the reviewed content: a scene turn or a phrase.
type Ref struct {
	Type     ItemType
	SceneID  string
	TurnID   string
	PhraseID string
}

// Validate checks that the ids required by the type are present.
func (r Ref) Validate() error {
	switch r.Type {
	case TypeConversation:
		if r.SceneID == "" || r.TurnID == "" {
			return fmt.Errorf("%w: conversation needs scene and turn ids", ErrInvalidRef)
		}
	case TypePhrase:
		if r.PhraseID == "" {
			return fmt.Errorf("%w: phrase needs a phrase id", ErrInvalidRef)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRef, r.Type)
	}
	return nil
}

// Key is the unique form of the reference used for deduplication.
func (r Ref) Key() string {
	if r.Type == TypePhrase {
		return "phrase:" + r.PhraseID
	}
	return "conversation:" + r.SceneID + "/" + r.TurnID
}

func (r Ref) String() string { return r.Key() }

// Item is one reviewable piece of content.
type Item struct {
	ID string
	Ref
	AddedAt         time.Time
	LastReviewedAt  *time.Time
	NextReviewAt    time.Time
	EaseFactor      float64
	RepetitionCount int
}

// NewItem creates an item for ref, first due a day after now.
func NewItem(ref Ref, now time.Time) (Item, error) {
	if err := ref.Validate(); err != nil {
		return Item{}, err
	}
	return Item{
		ID:           uuid.NewString(),
		Ref:          ref,
		AddedAt:      now,
		NextReviewAt: now.Add(FirstReviewDelay),
		EaseFactor:   InitialEaseFactor,
	}, nil
}

// Due reports whether the item should be reviewed at now.
func (i Item) Due(now time.Time) bool {
	return !i.NextReviewAt.After(now)
}

// Mastered reports whether the item has been recalled enough times.
func (i Item) Mastered() bool {
	return i.RepetitionCount >= MasteredRepetitions
}
