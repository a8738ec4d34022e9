// Package report persists practice attempts in an embedded SQLite database.
//
// An empty path opens an ephemeral store that accepts writes and remembers
// nothing, so the rest of the application never has to special-case
// "history disabled".
package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// DefaultRecentLimit is used by [Store.Recent] when limit is not positive.
const DefaultRecentLimit = 20

// Attempt is one recorded practice attempt.
type Attempt struct {
	ID         string
	Phrase     string
	Transcript string

	// Scored is false for attempts that ended without speech. WPM and WER
	// are zero in that case.
	Scored bool
	WPM    int
	WER    float64

	Elapsed   time.Duration
	Reason    string
	WAVPath   string
	CreatedAt time.Time
}

// Store is a SQLite-backed attempt log. It is safe for concurrent use.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Option configures a [Store].
type Option func(*Store)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens (creating if needed) the store at path. An empty path yields an
// ephemeral store.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{log: slog.Default(), clock: time.Now}
	for _, o := range opts {
		o(s)
	}
	if path == "" {
		return s, nil
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("report: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("report: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: init schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS attempts (
    id TEXT PRIMARY KEY,
    phrase TEXT NOT NULL,
    transcript TEXT NOT NULL,
    scored INTEGER NOT NULL,
    wpm INTEGER NOT NULL,
    wer REAL NOT NULL,
    elapsed_ms INTEGER NOT NULL,
    reason TEXT NOT NULL,
    wav_path TEXT NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_created ON attempts(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Ephemeral reports whether the store discards everything it is given.
func (s *Store) Ephemeral() bool { return s.db == nil }

// Save records a. A missing ID is filled with a new UUID and a zero
// CreatedAt with the current time. The stored attempt is returned.
func (s *Store) Save(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Millisecond)
	if s.db == nil {
		return a, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts(id, phrase, transcript, scored, wpm, wer, elapsed_ms, reason, wav_path, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Phrase, a.Transcript, a.Scored, a.WPM, a.WER,
		a.Elapsed.Milliseconds(), a.Reason, a.WAVPath, a.CreatedAt.UnixMilli())
	if err != nil {
		return Attempt{}, fmt.Errorf("report: save %s: %w", a.ID, err)
	}
	s.log.Debug("report: attempt saved", "id", a.ID, "scored", a.Scored, "wpm", a.WPM, "wer", a.WER)
	return a, nil
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, phrase, transcript, scored, wpm, wer, elapsed_ms, reason, wav_path, created_at
		 FROM attempts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("report: query recent: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a         Attempt
			elapsedMS int64
			createdMS int64
		)
		if err := rows.Scan(&a.ID, &a.Phrase, &a.Transcript, &a.Scored, &a.WPM, &a.WER,
			&elapsedMS, &a.Reason, &a.WAVPath, &createdMS); err != nil {
			return nil, fmt.Errorf("report: scan: %w", err)
		}
		a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		a.CreatedAt = time.UnixMilli(createdMS).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

// Get returns the attempt with the given id, or [ErrNotFound].
func (s *Store) Get(ctx context.Context, id string) (Attempt, error) {
	if s.db == nil {
		return Attempt{}, ErrNotFound
	}
	var (
		a         Attempt
		elapsedMS int64
		createdMS int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, phrase, transcript, scored, wpm, wer, elapsed_ms, reason, wav_path, created_at
		 FROM attempts WHERE id = ?`, id).
		Scan(&a.ID, &a.Phrase, &a.Transcript, &a.Scored, &a.WPM, &a.WER,
			&elapsedMS, &a.Reason, &a.WAVPath, &createdMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("report: get %s: %w", id, err)
	}
	a.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	a.CreatedAt = time.UnixMilli(createdMS).UTC()
	return a, nil
}

// ErrNotFound is returned by [Store.Get] for an unknown id.
var ErrNotFound = errors.New("report: attempt not found")

// Ping checks the database connection. An ephemeral store is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
