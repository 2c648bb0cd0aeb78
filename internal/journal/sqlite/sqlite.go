package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/stagehand/internal/journal"
)

const defaultLimit = 100

// DB implements journal.Journal for SQLite (modernc.org/sqlite, CGO-free).
// Path is a filesystem path; use ":memory:" for an in-memory journal.
type DB struct {
	db *sql.DB
}

// New opens (or creates) the SQLite journal at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			detail TEXT NULL,
			at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lifecycle_events_service ON lifecycle_events(service, id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Append(ctx context.Context, e journal.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lifecycle_events(service, from_state, to_state, pid, detail, at)
		VALUES(?, ?, ?, ?, ?, ?);`,
		e.Service, e.From, e.To, e.PID, nullable(e.Detail), e.At.UTC())
	return err
}

func (s *DB) ByService(ctx context.Context, name string, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, from_state, to_state, pid, COALESCE(detail, ''), at
		FROM lifecycle_events WHERE service = ? ORDER BY id DESC LIMIT ?;`,
		name, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.ID, &e.Service, &e.From, &e.To, &e.PID, &e.Detail, &e.At); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *DB) Close() error { return s.db.Close() }

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
