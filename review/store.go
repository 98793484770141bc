package review

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when an item does not exist.
var ErrNotFound = errors.New("review item not found")

// Stats summarizes a store.
type Stats struct {
	Total    int
	Due      int
	Mastered int
}

// Store persists review items. Add is idempotent per content reference: it
// returns the existing item and false when the reference is already stored.
type Store interface {
	Add(ctx context.Context, item Item) (Item, bool, error)
	Get(ctx context.Context, id string) (Item, error)
	Update(ctx context.Context, item Item) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]Item, error)
	DueItems(ctx context.Context, now time.Time) ([]Item, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
	byRef map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items: make(map[string]Item),
		byRef: make(map[string]string),
	}
}

func (s *MemoryStore) Add(_ context.Context, item Item) (Item, bool, error) {
	if err := item.Ref.Validate(); err != nil {
		return Item{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byRef[item.Ref.Key()]; ok {
		return s.items[id], false, nil
	}
	s.items[item.ID] = item
	s.byRef[item.Ref.Key()] = item.ID
	return item, true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return item, nil
}

// Update replaces a stored item. The content reference cannot change.
func (s *MemoryStore) Update(_ context.Context, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	item.Ref = old.Ref
	s.items[item.ID] = item
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	delete(s.byRef, item.Ref.Key())
	return nil
}

// List returns every item, oldest first.
func (s *MemoryStore) List(_ context.Context) ([]Item, error) {
	s.mu.RLock()
	items := make([]Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, item)
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
	return items, nil
}

// DueItems returns the items due at now, soonest first.
func (s *MemoryStore) DueItems(_ context.Context, now time.Time) ([]Item, error) {
	s.mu.RLock()
	var due []Item
	for _, item := range s.items {
		if item.Due(now) {
			due = append(due, item)
		}
	}
	s.mu.RUnlock()

	SortByDue(due)
	return due, nil
}

func (s *MemoryStore) Stats(_ context.Context, now time.Time) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Total: len(s.items)}
	for _, item := range s.items {
		if item.Due(now) {
			st.Due++
		}
		if item.Mastered() {
			st.Mastered++
		}
	}
	return st, nil
}

// SortByDue orders items by next review date, then id.
func SortByDue(items []Item) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].NextReviewAt.Equal(items[j].NextReviewAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].NextReviewAt.Before(items[j].NextReviewAt)
	})
}

var _ Store = (*MemoryStore)(nil)
