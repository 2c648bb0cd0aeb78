package factory

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/stagehand/internal/journal"
)

func TestEmptyTypeDisablesJournal(t *testing.T) {
	j, err := New(journal.Config{})
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestSQLiteBackend(t *testing.T) {
	j, err := New(journal.Config{Type: "sqlite", Path: filepath.Join(t.TempDir(), "j.db")})
	require.NoError(t, err)
	require.NotNil(t, j)
	t.Cleanup(func() { _ = j.Close() })
	assert.NoError(t, j.EnsureSchema(context.Background()))
}

func TestPostgresRequiresDSN(t *testing.T) {
	_, err := New(journal.Config{Type: "postgres"})
	assert.Error(t, err)
}

func TestUnknownType(t *testing.T) {
	_, err := New(journal.Config{Type: "clickhouse"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown journal type")
}
