//go:build !windows

package process

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/stagehand/internal/logger"
)

func waitExit(t *testing.T, h *Handle, within time.Duration) ExitStatus {
	t.Helper()
	select {
	case <-h.Done():
		return h.ExitStatus()
	case <-time.After(within):
		t.Fatalf("process %d did not exit within %s", h.PID(), within)
		return ExitStatus{}
	}
}

func TestStartCapturesExitCode(t *testing.T) {
	h, err := Start(StartSpec{Name: "exit3", Command: []string{"/bin/sh", "-c", "exit 3"}})
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)

	st := waitExit(t, h, 5*time.Second)
	assert.Equal(t, 3, st.Code)
	assert.False(t, st.Signaled)
	assert.False(t, h.Alive())
}

func TestStartMissingExecutable(t *testing.T) {
	_, err := Start(StartSpec{Name: "nope", Command: []string{"/no/such/binary"}})
	assert.Error(t, err)
}

func TestStartEmptyCommand(t *testing.T) {
	_, err := Start(StartSpec{Name: "empty"})
	assert.Error(t, err)
}

func TestStartInvalidWorkDir(t *testing.T) {
	_, err := Start(StartSpec{
		Name:    "badcwd",
		Command: []string{"/bin/sh", "-c", "true"},
		WorkDir: "/no/such/dir",
	})
	assert.Error(t, err)
}

func TestShutdownTerminatesGracefully(t *testing.T) {
	h, err := Start(StartSpec{Name: "sleeper", Command: []string{"/bin/sh", "-c", "sleep 30"}})
	require.NoError(t, err)

	start := time.Now()
	st, err := h.Shutdown(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.True(t, st.Signaled, "sleep should die from SIGTERM, got %s", st)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, h.Alive())
}

func TestShutdownEscalatesToKill(t *testing.T) {
	// Trap TERM so only the kill escalation can end it.
	h, err := Start(StartSpec{
		Name:    "stubborn",
		Command: []string{"/bin/sh", "-c", "trap '' TERM; while true; do sleep 1; done"},
	})
	require.NoError(t, err)

	st, err := h.Shutdown(context.Background(), 500*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, st.Signaled)
}

func TestShutdownAfterExitIsNoop(t *testing.T) {
	h, err := Start(StartSpec{Name: "quick", Command: []string{"/bin/sh", "-c", "exit 0"}})
	require.NoError(t, err)
	waitExit(t, h, 5*time.Second)

	st, err := h.Shutdown(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Code)
}

func TestCapturedOutputGoesToLogDir(t *testing.T) {
	dir := t.TempDir()
	h, err := Start(StartSpec{
		Name:    "echoer",
		Command: []string{"/bin/sh", "-c", "echo hello-stdout; echo hello-stderr 1>&2"},
		Log:     logger.Config{Dir: dir},
	})
	require.NoError(t, err)
	waitExit(t, h, 5*time.Second)

	out, err := os.ReadFile(filepath.Join(dir, "echoer.stdout.log"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "hello-stdout")

	errOut, err := os.ReadFile(filepath.Join(dir, "echoer.stderr.log"))
	require.NoError(t, err)
	assert.Contains(t, string(errOut), "hello-stderr")
}

func TestExitNotificationDeliveredOnce(t *testing.T) {
	h, err := Start(StartSpec{Name: "once", Command: []string{"/bin/sh", "-c", "exit 7"}})
	require.NoError(t, err)

	// Multiple waiters all observe the same single notification.
	for i := 0; i < 3; i++ {
		select {
		case <-h.Done():
		case <-time.After(5 * time.Second):
			t.Fatal("waiter starved")
		}
	}
	assert.Equal(t, 7, h.ExitStatus().Code)
}
