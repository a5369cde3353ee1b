// Package transcript keeps an append-only SQLite log of every conversation
// turn. It is an audit trail: continuity is decided by the state file alone.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/diffchat/internal/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS turns (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    handle         TEXT NOT NULL,
    feature        TEXT NOT NULL DEFAULT '',
    role           TEXT NOT NULL,
    commits        TEXT NOT NULL DEFAULT '[]',
    prompt         TEXT NOT NULL,
    output         TEXT NOT NULL,
    turn_id        TEXT NOT NULL,
    continued_from TEXT NOT NULL DEFAULT '',
    chained        INTEGER NOT NULL DEFAULT 0,
    model          TEXT NOT NULL DEFAULT '',
    collection_id  TEXT NOT NULL DEFAULT '',
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_handle ON turns(handle);
CREATE INDEX IF NOT EXISTS idx_turns_feature ON turns(feature);
`

// Entry is one recorded turn.
type Entry struct {
	ID            int64     `json:"id"`
	Handle        string    `json:"handle"`
	Feature       string    `json:"feature"`
	Role          string    `json:"role"`
	Commits       []string  `json:"commits"`
	Prompt        string    `json:"prompt"`
	Output        string    `json:"output"`
	TurnID        string    `json:"turnId"`
	ContinuedFrom string    `json:"continuedFrom,omitempty"`
	Chained       bool      `json:"chained"`
	Model         string    `json:"model"`
	CollectionID  string    `json:"collectionId"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Filter selects entries for List. Empty fields match everything.
type Filter struct {
	Handle  string
	Feature string
	// Limit caps the number of entries, keeping the most recent. Zero means no cap.
	Limit int
}

// Store is a SQLite-backed transcript.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the transcript database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating transcript directory")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening transcript")
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "setting WAL mode")
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "creating transcript schema")
	}
	log.Debug().Str("path", path).Msg("Opened transcript")
	return &Store{db: db, path: path}, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// RecordTurn appends a completed turn.
func (s *Store) RecordTurn(ctx context.Context, r session.TurnResult) error {
	commits := r.Commits
	if commits == nil {
		commits = []string{}
	}
	commitsJSON, err := json.Marshal(commits)
	if err != nil {
		return errors.Wrap(err, "encoding commits")
	}
	created := r.StartedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO turns
			(handle, feature, role, commits, prompt, output, turn_id, continued_from, chained, model, collection_id, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Handle, r.Feature, r.Role, string(commitsJSON), r.Prompt, r.Output,
		r.TurnID, r.ContinuedFrom, boolToInt(r.Chained), r.Model, r.CollectionID,
		r.Duration.Milliseconds(), created.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "recording turn")
	}
	return nil
}

// List returns matching entries oldest first.
func (s *Store) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Handle != "" {
		where = append(where, "handle = ?")
		args = append(args, f.Handle)
	}
	if f.Feature != "" {
		where = append(where, "feature = ?")
		args = append(args, f.Feature)
	}
	q := `SELECT id, handle, feature, role, commits, prompt, output, turn_id, continued_from,
		chained, model, collection_id, duration_ms, created_at FROM turns`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing turns")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e           Entry
			commitsJSON string
			chained     int
			createdAt   string
		)
		if err := rows.Scan(&e.ID, &e.Handle, &e.Feature, &e.Role, &commitsJSON, &e.Prompt,
			&e.Output, &e.TurnID, &e.ContinuedFrom, &chained, &e.Model, &e.CollectionID,
			&e.DurationMs, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scanning turn")
		}
		if err := json.Unmarshal([]byte(commitsJSON), &e.Commits); err != nil {
			return nil, errors.Wrapf(err, "decoding commits of turn %d", e.ID)
		}
		e.Chained = chained != 0
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "listing turns")
	}

	// Query is newest first so LIMIT keeps the latest; present oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns the number of recorded turns.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM turns").Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting turns")
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ session.Recorder = (*Store)(nil)
