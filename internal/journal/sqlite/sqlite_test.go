package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/stagehand/internal/journal"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.EnsureSchema(context.Background()))
	return db
}

func TestNewRejectsEmptyPath(t *testing.T) {
	_, err := New("  ")
	assert.Error(t, err)
}

func TestAppendAndQuery(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []journal.Entry{
		{Service: "db", From: "pending", To: "checking_files", At: base},
		{Service: "db", From: "checking_files", To: "starting", PID: 0, At: base.Add(time.Second)},
		{Service: "web", From: "pending", To: "checking_files", At: base},
		{Service: "db", From: "starting", To: "waiting_ready", PID: 1234, At: base.Add(2 * time.Second)},
	}
	for _, e := range entries {
		require.NoError(t, db.Append(ctx, e))
	}

	got, err := db.ByService(ctx, "db", 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// newest first
	assert.Equal(t, "waiting_ready", got[0].To)
	assert.Equal(t, 1234, got[0].PID)
	assert.Equal(t, "checking_files", got[2].To)

	got, err = db.ByService(ctx, "db", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "waiting_ready", got[0].To)

	got, err = db.ByService(ctx, "unknown", 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendStoresDetail(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Append(ctx, journal.Entry{
		Service: "db", From: "running", To: "crashed",
		Detail: "unexpected exit: exit code 1", At: time.Now().UTC(),
	}))
	got, err := db.ByService(ctx, "db", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "unexpected exit: exit code 1", got[0].Detail)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, db.EnsureSchema(context.Background()))
}
