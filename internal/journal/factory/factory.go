package factory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/stagehand/internal/journal"
	"github.com/loykin/stagehand/internal/journal/postgres"
	"github.com/loykin/stagehand/internal/journal/sqlite"
)

const schemaTimeout = 5 * time.Second

// New builds a journal backend from config and ensures its schema exists.
// An empty Type disables journaling and returns (nil, nil).
func New(cfg journal.Config) (journal.Journal, error) {
	var j journal.Journal
	var err error
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "":
		return nil, nil
	case "sqlite":
		j, err = sqlite.New(cfg.Path)
	case "postgres", "postgresql":
		j, err = postgres.New(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown journal type %q (sqlite, postgres)", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), schemaTimeout)
	defer cancel()
	if err := j.EnsureSchema(ctx); err != nil {
		_ = j.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return j, nil
}
