// Package sqlstore persists review items with sqlx. SQLite is the default
// backend; a postgres:// DSN selects PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dgnsrekt/kaiwa/review"
)

const schema = `
CREATE TABLE IF NOT EXISTS review_items (
	id               TEXT PRIMARY KEY,
	item_type        TEXT NOT NULL,
	ref_key          TEXT NOT NULL UNIQUE,
	scene_id         TEXT NOT NULL DEFAULT '',
	turn_id          TEXT NOT NULL DEFAULT '',
	phrase_id        TEXT NOT NULL DEFAULT '',
	added_at         TIMESTAMP NOT NULL,
	last_reviewed_at TIMESTAMP NULL,
	next_review_at   TIMESTAMP NOT NULL,
	ease_factor      DOUBLE PRECISION NOT NULL DEFAULT 2.5,
	repetition_count INTEGER NOT NULL DEFAULT 0
)`

const index = `CREATE INDEX IF NOT EXISTS review_items_next_review_at ON review_items (next_review_at)`

const columns = `id, item_type, ref_key, scene_id, turn_id, phrase_id,
	added_at, last_reviewed_at, next_review_at, ease_factor, repetition_count`

type row struct {
	ID              string       `db:"id"`
	Type            string       `db:"item_type"`
	RefKey          string       `db:"ref_key"`
	SceneID         string       `db:"scene_id"`
	TurnID          string       `db:"turn_id"`
	PhraseID        string       `db:"phrase_id"`
	AddedAt         time.Time    `db:"added_at"`
	LastReviewedAt  sql.NullTime `db:"last_reviewed_at"`
	NextReviewAt    time.Time    `db:"next_review_at"`
	EaseFactor      float64      `db:"ease_factor"`
	RepetitionCount int          `db:"repetition_count"`
}

func toRow(item review.Item) row {
	r := row{
		ID:              item.ID,
		Type:            string(item.Type),
		RefKey:          item.Ref.Key(),
		SceneID:         item.SceneID,
		TurnID:          item.TurnID,
		PhraseID:        item.PhraseID,
		AddedAt:         item.AddedAt.UTC(),
		NextReviewAt:    item.NextReviewAt.UTC(),
		EaseFactor:      item.EaseFactor,
		RepetitionCount: item.RepetitionCount,
	}
	if item.LastReviewedAt != nil {
		r.LastReviewedAt = sql.NullTime{Time: item.LastReviewedAt.UTC(), Valid: true}
	}
	return r
}

func (r row) item() review.Item {
	item := review.Item{
		ID: r.ID,
		Ref: review.Ref{
			Type:     review.ItemType(r.Type),
			SceneID:  r.SceneID,
			TurnID:   r.TurnID,
			PhraseID: r.PhraseID,
		},
		AddedAt:         r.AddedAt.UTC(),
		NextReviewAt:    r.NextReviewAt.UTC(),
		EaseFactor:      r.EaseFactor,
		RepetitionCount: r.RepetitionCount,
	}
	if r.LastReviewedAt.Valid {
		t := r.LastReviewedAt.Time.UTC()
		item.LastReviewedAt = &t
	}
	return item
}

// Store is a review.Store backed by a SQL database.
type Store struct {
	db     *sqlx.DB
	logger *log.Logger
}

// Driver returns the database/sql driver name for dsn.
func Driver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

// Open connects to dsn and creates the schema. A plain path or sqlite://
// DSN opens a SQLite file, creating its directory.
func Open(ctx context.Context, dsn string, logger *log.Logger) (*Store, error) {
	driver := Driver(dsn)
	if driver == "sqlite3" {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
		if dir := filepath.Dir(dsn); dsn != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == "sqlite3" {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	s, err := New(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open connection and creates the schema.
func New(ctx context.Context, db *sqlx.DB, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	for _, stmt := range []string{schema, index} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to initialize review schema: %w", err)
		}
	}
	logger.Debug("review store ready", "driver", db.DriverName())
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Add(ctx context.Context, item review.Item) (review.Item, bool, error) {
	if err := item.Ref.Validate(); err != nil {
		return review.Item{}, false, err
	}
	query := s.db.Rebind(`INSERT INTO review_items (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ref_key) DO NOTHING`)
	r := toRow(item)
	res, err := s.db.ExecContext(ctx, query,
		r.ID, r.Type, r.RefKey, r.SceneID, r.TurnID, r.PhraseID,
		r.AddedAt, r.LastReviewedAt, r.NextReviewAt, r.EaseFactor, r.RepetitionCount,
	)
	if err != nil {
		return review.Item{}, false, fmt.Errorf("failed to add review item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return review.Item{}, false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return r.item(), true, nil
	}

	var existing row
	err = s.db.GetContext(ctx, &existing,
		s.db.Rebind(`SELECT `+columns+` FROM review_items WHERE ref_key = ?`), r.RefKey)
	if err != nil {
		return review.Item{}, false, fmt.Errorf("failed to load existing review item: %w", err)
	}
	return existing.item(), false, nil
}

func (s *Store) Get(ctx context.Context, id string) (review.Item, error) {
	var r row
	err := s.db.GetContext(ctx, &r, s.db.Rebind(`SELECT `+columns+` FROM review_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return review.Item{}, review.ErrNotFound
	}
	if err != nil {
		return review.Item{}, fmt.Errorf("failed to get review item: %w", err)
	}
	return r.item(), nil
}

// Update saves the scheduling fields of item.
func (s *Store) Update(ctx context.Context, item review.Item) error {
	r := toRow(item)
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE review_items SET
			last_reviewed_at = ?,
			next_review_at = ?,
			ease_factor = ?,
			repetition_count = ?
		WHERE id = ?`),
		r.LastReviewedAt, r.NextReviewAt, r.EaseFactor, r.RepetitionCount, r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update review item: %w", err)
	}
	return expectRow(res)
}

func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM review_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to remove review item: %w", err)
	}
	return expectRow(res)
}

func (s *Store) List(ctx context.Context) ([]review.Item, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+columns+` FROM review_items ORDER BY added_at, id`); err != nil {
		return nil, fmt.Errorf("failed to list review items: %w", err)
	}
	return items(rows), nil
}

func (s *Store) DueItems(ctx context.Context, now time.Time) ([]review.Item, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT `+columns+` FROM review_items
		WHERE next_review_at <= ?
		ORDER BY next_review_at, id`), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get due review items: %w", err)
	}
	return items(rows), nil
}

func (s *Store) Stats(ctx context.Context, now time.Time) (review.Stats, error) {
	var st struct {
		Total    int `db:"total"`
		Due      int `db:"due"`
		Mastered int `db:"mastered"`
	}
	err := s.db.GetContext(ctx, &st, s.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN next_review_at <= ? THEN 1 ELSE 0 END), 0) AS due,
			COALESCE(SUM(CASE WHEN repetition_count >= ? THEN 1 ELSE 0 END), 0) AS mastered
		FROM review_items`), now.UTC(), review.MasteredRepetitions)
	if err != nil {
		return review.Stats{}, fmt.Errorf("failed to get review stats: %w", err)
	}
	return review.Stats{Total: st.Total, Due: st.Due, Mastered: st.Mastered}, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return review.ErrNotFound
	}
	return nil
}

func items(rows []row) []review.Item {
	out := make([]review.Item, len(rows))
	for i, r := range rows {
		out[i] = r.item()
	}
	return out
}

var _ review.Store = (*Store)(nil)
