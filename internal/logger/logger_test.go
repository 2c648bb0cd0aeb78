package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lj "gopkg.in/natefinch/lumberjack.v2"
)

func TestWritersFromDir(t *testing.T) {
	dir := t.TempDir()
	out, errW, err := Config{Dir: dir}.Writers("db")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, errW)
	t.Cleanup(func() { _ = out.Close(); _ = errW.Close() })

	_, err = out.Write([]byte("hello stdout\n"))
	require.NoError(t, err)
	_, err = errW.Write([]byte("hello stderr\n"))
	require.NoError(t, err)

	b, err := os.ReadFile(filepath.Join(dir, "db.stdout.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello stdout\n", string(b))
	b, err = os.ReadFile(filepath.Join(dir, "db.stderr.log"))
	require.NoError(t, err)
	assert.Equal(t, "hello stderr\n", string(b))
}

func TestWritersExplicitPathsWin(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Dir:        dir,
		StdoutPath: filepath.Join(dir, "custom-out.log"),
		StderrPath: filepath.Join(dir, "custom-err.log"),
	}
	out, errW, err := cfg.Writers("ignored")
	require.NoError(t, err)
	t.Cleanup(func() { _ = out.Close(); _ = errW.Close() })

	_, err = out.Write([]byte("x"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "custom-out.log"))
	assert.NoFileExists(t, filepath.Join(dir, "ignored.stdout.log"))
}

func TestWritersNoDestination(t *testing.T) {
	out, errW, err := Config{}.Writers("db")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, errW)
}

func TestRotationDefaults(t *testing.T) {
	w := Config{}.rotatingWriter("x.log")
	l, ok := w.(*lj.Logger)
	require.True(t, ok)
	assert.Equal(t, DefaultMaxSizeMB, l.MaxSize)
	assert.Equal(t, DefaultMaxBackups, l.MaxBackups)
	assert.Equal(t, DefaultMaxAgeDays, l.MaxAge)

	w = Config{MaxSizeMB: 50, MaxBackups: 9, MaxAgeDays: 1}.rotatingWriter("x.log")
	l = w.(*lj.Logger)
	assert.Equal(t, 50, l.MaxSize)
	assert.Equal(t, 9, l.MaxBackups)
	assert.Equal(t, 1, l.MaxAge)
}

func TestSetupLevels(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	l := Setup("debug", true)
	assert.True(t, l.Enabled(t.Context(), slog.LevelDebug))

	l = Setup("warn", true)
	assert.False(t, l.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, l.Enabled(t.Context(), slog.LevelWarn))

	l = Setup("bogus", false)
	assert.True(t, l.Enabled(t.Context(), slog.LevelInfo), "unknown level falls back to info")
}
