package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/loykin/stagehand/internal/logger"
)

// StartSpec describes a single spawn. Command is argv form: element 0 is the
// executable path, the rest are arguments passed verbatim (no shell).
type StartSpec struct {
	Name    string
	Command []string
	WorkDir string
	Env     []string
	Log     logger.Config
}

// ExitStatus captures how a spawn ended. Code is the exit code, or 128+signal
// when the process was terminated by a signal (unix convention).
type ExitStatus struct {
	Code     int    `json:"code"`
	Signaled bool   `json:"signaled"`
	Signal   string `json:"signal,omitempty"`
}

func (s ExitStatus) String() string {
	if s.Signaled {
		return fmt.Sprintf("signal %s (code %d)", s.Signal, s.Code)
	}
	return fmt.Sprintf("exit code %d", s.Code)
}

// Handle owns exactly one spawned OS process. The exit notification is
// delivered exactly once per spawn by closing Done; the status is readable
// via ExitStatus afterwards. A Handle is not reusable across spawns.
type Handle struct {
	name      string
	cmd       *exec.Cmd
	pid       int
	startedAt time.Time

	mu     sync.Mutex
	status ExitStatus
	outW   io.WriteCloser
	errW   io.WriteCloser
	done   chan struct{}
}

// Start spawns the process described by spec. The working directory must
// exist and Command must be non-empty; failures are returned without retry
// (retry policy belongs to the caller).
func Start(spec StartSpec) (*Handle, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("empty command")
	}
	// ok: intentional execution, argv comes from validated config
	// #nosec G204
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	configureSysProcAttr(cmd)

	h := &Handle{name: spec.Name, cmd: cmd, done: make(chan struct{})}
	if spec.Log.Dir != "" || spec.Log.StdoutPath != "" || spec.Log.StderrPath != "" {
		if spec.Log.Dir != "" {
			_ = os.MkdirAll(spec.Log.Dir, 0o750)
		}
		outW, errW, _ := spec.Log.Writers(spec.Name)
		h.outW, h.errW = outW, errW
	}
	if h.outW != nil {
		cmd.Stdout = h.outW
	} else {
		cmd.Stdout, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}
	if h.errW != nil {
		cmd.Stderr = h.errW
	} else {
		cmd.Stderr, _ = os.OpenFile(os.DevNull, os.O_RDWR, 0)
	}

	if err := cmd.Start(); err != nil {
		h.closeWriters()
		return nil, fmt.Errorf("spawn %s: %w", spec.Command[0], err)
	}
	h.pid = cmd.Process.Pid
	h.startedAt = time.Now()
	go h.reap()
	return h, nil
}

// reap waits for the child and publishes the exit status exactly once.
// It is the only caller of cmd.Wait for this spawn.
func (h *Handle) reap() {
	err := h.cmd.Wait()
	st := exitStatus(h.cmd.ProcessState, err)
	h.mu.Lock()
	h.status = st
	h.mu.Unlock()
	h.closeWriters()
	close(h.done)
}

func (h *Handle) closeWriters() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.outW != nil {
		_ = h.outW.Close()
		h.outW = nil
	}
	if h.errW != nil {
		_ = h.errW.Close()
		h.errW = nil
	}
}

func (h *Handle) PID() int             { return h.pid }
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once, when the process has exited and been reaped.
// This includes processes killed externally.
func (h *Handle) Done() <-chan struct{} { return h.done }

// ExitStatus is valid only after Done is closed.
func (h *Handle) ExitStatus() ExitStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Alive reports whether the spawn has not yet been reaped.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Terminate requests a graceful stop (SIGTERM to the process group).
func (h *Handle) Terminate() error { return terminate(h.pid) }

// Kill forcefully terminates the process group (SIGKILL).
func (h *Handle) Kill() error { return kill(h.pid) }

// Shutdown terminates the process gracefully, escalating to Kill when it has
// not exited within grace. It returns the exit status, or an error when the
// context is canceled before the process could be reaped.
func (h *Handle) Shutdown(ctx context.Context, grace time.Duration) (ExitStatus, error) {
	select {
	case <-h.done:
		return h.ExitStatus(), nil
	default:
	}
	_ = h.Terminate()
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-h.done:
		return h.ExitStatus(), nil
	case <-ctx.Done():
		_ = h.Kill()
		return ExitStatus{}, ctx.Err()
	case <-t.C:
	}
	_ = h.Kill()
	select {
	case <-h.done:
		return h.ExitStatus(), nil
	case <-ctx.Done():
		return ExitStatus{}, ctx.Err()
	}
}
