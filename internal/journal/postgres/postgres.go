package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/stagehand/internal/journal"
)

const defaultLimit = 100

// DB implements journal.Journal on PostgreSQL via the pgx stdlib driver.
type DB struct {
	db *sql.DB
}

// New opens a PostgreSQL journal with the given DSN. The connection is
// established lazily; EnsureSchema is the first round-trip.
func New(dsn string) (*DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("empty postgres dsn")
	}
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lifecycle_events(
			id BIGSERIAL PRIMARY KEY,
			service TEXT NOT NULL,
			from_state TEXT NOT NULL,
			to_state TEXT NOT NULL,
			pid INTEGER NOT NULL DEFAULT 0,
			detail TEXT NULL,
			at TIMESTAMPTZ NOT NULL
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
		VALUES($1, $2, $3, $4, NULLIF($5, ''), $6);`,
		e.Service, e.From, e.To, e.PID, e.Detail, e.At.UTC())
	return err
}

func (s *DB) ByService(ctx context.Context, name string, limit int) ([]journal.Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, service, from_state, to_state, pid, COALESCE(detail, ''), at
		FROM lifecycle_events WHERE service = $1 ORDER BY id DESC LIMIT $2;`,
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
