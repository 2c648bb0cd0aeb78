package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/stagehand/internal/probe"
	"github.com/loykin/stagehand/internal/process"
)

// DefaultStopGrace is how long a service gets to exit after SIGTERM before
// it is force-killed. Not exposed in config.
const DefaultStopGrace = 10 * time.Second

// killGrace bounds cleanup of a half-started process (readiness timeout or
// canceled startup) where nobody is going to wait the full stop grace.
const killGrace = 2 * time.Second

// Controller drives one service through its lifecycle. A single controller
// owns its Runtime exclusively; Up is called by the supervisor's startup
// sequence, crashes are handled by the controller's own monitor goroutine,
// and Stop is called during shutdown. Restart attempts are strictly
// serialized: there is at most one live spawn per service at any time.
type Controller struct {
	spec Spec
	prb  probe.Probe
	log  *slog.Logger

	events chan<- Event

	mu     sync.Mutex
	rt     Runtime
	handle *process.Handle
	cancel context.CancelFunc

	stopReq atomic.Bool
	monWG   sync.WaitGroup
}

// NewController builds a controller for spec. The probe is constructed here
// so an unknown wait kind fails before anything spawns.
func NewController(spec Spec, events chan<- Event, log *slog.Logger) (*Controller, error) {
	p, err := probe.New(spec.Wait)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", spec.Name, err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		spec:   spec,
		prb:    p,
		log:    log.With("service", spec.Name),
		events: events,
		rt: Runtime{
			Name:    spec.Name,
			State:   StatePending,
			Backoff: spec.RestartBackoff,
		},
	}, nil
}

// Spec returns the immutable service definition.
func (c *Controller) Spec() Spec { return c.spec }

// Snapshot returns a consistent copy of the runtime record.
func (c *Controller) Snapshot() Runtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rt
}

// State returns the current lifecycle state.
func (c *Controller) State() State { return c.Snapshot().State }

// Up drives the service from pending to running or failed and returns the
// state reached. On success a monitor goroutine keeps watching the spawn and
// applies the restart policy on unexpected exits.
func (c *Controller) Up(parent context.Context) State {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	if c.stopReq.Load() {
		return c.State()
	}

	h, err := c.bringUp(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Shutdown arrived mid-startup; Stop finalizes the state.
			return c.State()
		}
		c.fail(err)
		return StateFailed
	}
	c.monWG.Add(1)
	go c.monitor(ctx, h)
	return StateRunning
}

// bringUp performs one startup attempt: file check, spawn, readiness wait.
// It emits the intermediate transitions but leaves the terminal decision
// (failed vs. another restart) to the caller.
func (c *Controller) bringUp(ctx context.Context) (*process.Handle, error) {
	c.setState(StateCheckingFiles, nil)
	if err := c.checkFiles(); err != nil {
		return nil, err
	}

	c.setState(StateStarting, nil)
	h, err := process.Start(process.StartSpec{
		Name:    c.spec.Name,
		Command: c.spec.Command,
		WorkDir: c.spec.WorkDir,
		Env:     c.spec.Env,
		Log:     c.spec.Log,
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.handle = h
	c.rt.PID = h.PID()
	c.rt.StartedAt = h.StartedAt()
	c.mu.Unlock()

	c.setState(StateWaitingReady, nil)
	res := probe.WaitReady(ctx, c.prb, h.Done(), c.spec.Wait.Timeout)
	switch res.Kind {
	case probe.Ready:
		c.setRunning(res.Elapsed)
		return h, nil
	case probe.TimedOut:
		_, _ = h.Shutdown(context.Background(), killGrace)
		c.recordExit(h)
		return nil, fmt.Errorf("%w after %s (%s)", ErrReadinessTimeout, c.spec.Wait.Timeout, c.prb.Describe())
	case probe.ProcessExited:
		c.recordExit(h)
		return nil, fmt.Errorf("%w: %s", ErrExitedDuringStartup, h.ExitStatus())
	default: // probe.Canceled
		_, _ = h.Shutdown(context.Background(), killGrace)
		c.recordExit(h)
		return nil, context.Canceled
	}
}

// monitor owns the steady-state of a service: it blocks on exit
// notifications and applies the restart policy. It returns on stop request,
// context cancellation, or when the service reaches failed.
func (c *Controller) monitor(ctx context.Context, h *process.Handle) {
	defer c.monWG.Done()
	for {
		select {
		case <-h.Done():
		case <-ctx.Done():
			return
		}
		c.recordExit(h)
		if c.stopReq.Load() {
			return
		}
		st := h.ExitStatus()
		c.setState(StateCrashed, fmt.Errorf("unexpected exit: %s", st))
		if !c.spec.AutoRestart {
			c.fail(fmt.Errorf("%w (%s) and auto_restart is off", ErrCrashed, st))
			return
		}

		next, ok := c.restartLoop(ctx)
		if !ok {
			return
		}
		h = next
	}
}

// restartLoop retries startup with geometric backoff until a spawn reaches
// running, the budget is exhausted, or the controller is stopped. Each
// attempt, successful or not, consumes one unit of restart budget.
func (c *Controller) restartLoop(ctx context.Context) (*process.Handle, bool) {
	for {
		c.mu.Lock()
		if c.rt.Restarts >= c.spec.MaxRestarts {
			c.mu.Unlock()
			c.fail(fmt.Errorf("%w (%d attempts)", ErrRestartBudgetExhausted, c.spec.MaxRestarts))
			return nil, false
		}
		delay := c.rt.Backoff
		c.rt.Backoff = time.Duration(float64(c.rt.Backoff) * c.spec.BackoffFactor)
		c.rt.Restarts++
		c.mu.Unlock()

		c.setState(StateRestarting, nil)
		c.log.Info("restarting after backoff", "delay", delay, "attempt", c.Snapshot().Restarts)
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, false
		}

		h, err := c.bringUp(ctx)
		if err == nil {
			return h, true
		}
		if errors.Is(err, context.Canceled) {
			return nil, false
		}
		c.log.Warn("restart attempt failed", "error", err)
	}
}

// Stop transitions the service to stopped, terminating a live process with
// the grace/kill discipline. An already failed service stays failed.
func (c *Controller) Stop(ctx context.Context) State {
	c.stopReq.Store(true)
	c.mu.Lock()
	cancel := c.cancel
	h := c.handle
	st := c.rt.State
	c.mu.Unlock()
	if st.Terminal() {
		return st
	}
	if cancel != nil {
		cancel()
	}
	c.setState(StateStopping, nil)
	if h != nil && h.Alive() {
		if _, err := h.Shutdown(ctx, DefaultStopGrace); err != nil {
			c.log.Warn("stop did not complete cleanly", "error", err)
		}
	}
	c.monWG.Wait()
	if h != nil && !h.Alive() {
		c.recordExit(h)
	}
	c.setState(StateStopped, nil)
	return StateStopped
}

func (c *Controller) checkFiles() error {
	for _, rel := range c.spec.RequiredFiles {
		p := rel
		if !filepath.IsAbs(p) {
			p = filepath.Join(c.spec.WorkDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: %s", ErrMissingFile, rel)
		}
	}
	return nil
}

func (c *Controller) fail(err error) {
	c.setState(StateFailed, err)
}

func (c *Controller) setRunning(readyWait time.Duration) {
	c.mu.Lock()
	from := c.rt.State
	c.rt.State = StateRunning
	c.rt.LastError = ""
	ev := Event{
		Service:   c.spec.Name,
		From:      from,
		To:        StateRunning,
		At:        time.Now(),
		PID:       c.rt.PID,
		Restarts:  c.rt.Restarts,
		ReadyWait: readyWait,
	}
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Controller) setState(to State, err error) {
	c.mu.Lock()
	from := c.rt.State
	c.rt.State = to
	if err != nil {
		c.rt.LastError = err.Error()
	}
	ev := Event{
		Service:  c.spec.Name,
		From:     from,
		To:       to,
		At:       time.Now(),
		PID:      c.rt.PID,
		Restarts: c.rt.Restarts,
		Err:      err,
	}
	c.mu.Unlock()
	c.emit(ev)
}

func (c *Controller) recordExit(h *process.Handle) {
	select {
	case <-h.Done():
	default:
		return
	}
	st := h.ExitStatus()
	c.mu.Lock()
	c.rt.LastExit = &st
	c.rt.ExitedAt = time.Now()
	c.rt.PID = 0
	c.mu.Unlock()
}

// emit never blocks the controller; a stalled reporter drops events rather
// than wedging lifecycle handling.
func (c *Controller) emit(ev Event) {
	if ev.Err != nil {
		c.log.Warn("state transition", "from", ev.From, "to", ev.To, "error", ev.Err)
	} else {
		c.log.Debug("state transition", "from", ev.From, "to", ev.To)
	}
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
	}
}
