// Package journal persists the supervisor's lifecycle event stream so
// operators can reconstruct what happened to a service after the fact.
// The journal is append-only and local; it is not a distributed log.
package journal

import (
	"context"
	"time"
)

// Entry is one recorded state transition.
type Entry struct {
	ID      int64     `json:"id,omitempty"`
	Service string    `json:"service"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	PID     int       `json:"pid,omitempty"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Journal is the persistence interface for lifecycle events.
type Journal interface {
	EnsureSchema(ctx context.Context) error
	Append(ctx context.Context, e Entry) error
	// ByService returns the most recent entries for name, newest first,
	// up to limit (0 means a backend-chosen default).
	ByService(ctx context.Context, name string, limit int) ([]Entry, error)
	Close() error
}

// Config selects and configures a journal backend.
type Config struct {
	Type string `toml:"type" mapstructure:"type"` // "sqlite" or "postgres"; empty disables
	Path string `toml:"path" mapstructure:"path"` // sqlite file path, ":memory:" supported
	DSN  string `toml:"dsn" mapstructure:"dsn"`   // postgres connection string
}
