// Package supervisor orchestrates an ordered list of service controllers:
// sequential startup with a fixed inter-service delay, an event loop over
// lifecycle transitions, and coordinated reverse-order shutdown.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/stagehand/internal/journal"
	"github.com/loykin/stagehand/internal/metrics"
	"github.com/loykin/stagehand/internal/service"
)

// Phase is the overall supervisor phase.
type Phase string

const (
	PhaseStarting     Phase = "starting"
	PhaseRunning      Phase = "running"
	PhaseShuttingDown Phase = "shutting_down"
	PhaseStopped      Phase = "stopped"
)

// Options configures a Supervisor.
type Options struct {
	// StartInterval is waited after each service reaches running or failed,
	// before the next service's startup begins. Applied regardless of the
	// previous service's outcome to keep pacing deterministic.
	StartInterval time.Duration
	// Journal, when non-nil, receives every state transition.
	Journal journal.Journal
	// OnEvent, when non-nil, is invoked from the event loop for every
	// transition. Used for embedding and tests.
	OnEvent func(service.Event)
	Logger  *slog.Logger
}

// Status is a consistent snapshot of the whole supervisor.
type Status struct {
	Phase    Phase             `json:"phase"`
	Degraded bool              `json:"degraded"`
	Services []service.Runtime `json:"services"`
}

// Supervisor owns the ordered controllers and the aggregate phase. Per
// service state lives in the controllers; the supervisor only ever reads
// snapshots.
type Supervisor struct {
	opts        Options
	log         *slog.Logger
	controllers []*service.Controller
	events      chan service.Event

	mu    sync.RWMutex
	phase Phase

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// New builds a supervisor for specs in declared order. Spec validation
// (unique names, known probe kinds) is the config loader's job; probe
// construction errors still surface here.
func New(specs []service.Spec, opts Options) (*Supervisor, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		opts:   opts,
		log:    log,
		events: make(chan service.Event, 128),
		phase:  PhaseStarting,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, spec := range specs {
		c, err := service.NewController(spec, s.events, log)
		if err != nil {
			return nil, err
		}
		s.controllers = append(s.controllers, c)
	}
	return s, nil
}

// Run starts all services in declared order and blocks until shutdown is
// requested (Shutdown call or ctx cancellation), then stops everything in
// reverse order. It always returns with phase stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.done)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	var loopWG sync.WaitGroup
	loopWG.Add(1)
	go func() {
		defer loopWG.Done()
		s.eventLoop(loopCtx)
	}()

	s.setPhase(PhaseStarting)
	s.startAll(ctx)

	if !s.stopRequested(ctx) {
		s.setPhase(PhaseRunning)
		st := s.Status()
		if st.Degraded {
			s.log.Warn("startup finished degraded", "services", len(s.controllers))
		} else {
			s.log.Info("all services started", "services", len(s.controllers))
		}
		select {
		case <-ctx.Done():
		case <-s.stopCh:
		}
	}

	s.setPhase(PhaseShuttingDown)
	s.stopAll()
	s.setPhase(PhaseStopped)

	stopLoop()
	loopWG.Wait()
	s.drainEvents()
	return nil
}

// startAll brings services up one at a time, waiting StartInterval between
// one service reaching running/failed and the next one's file check. A
// failed service never aborts its siblings.
func (s *Supervisor) startAll(ctx context.Context) {
	for i, c := range s.controllers {
		if i > 0 {
			t := time.NewTimer(s.opts.StartInterval)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return
			case <-s.stopCh:
				t.Stop()
				return
			}
		}
		if s.stopRequested(ctx) {
			return
		}
		st := c.Up(ctx)
		switch st {
		case service.StateRunning:
			s.log.Info("service started", "service", c.Spec().Name, "pid", c.Snapshot().PID)
		case service.StateFailed:
			s.log.Error("service failed to start, continuing with remaining services",
				"service", c.Spec().Name, "error", c.Snapshot().LastError)
		}
	}
}

// stopAll stops controllers in reverse startup order, each with the full
// stop grace. Stop ignores services that are already failed or stopped.
func (s *Supervisor) stopAll() {
	for i := len(s.controllers) - 1; i >= 0; i-- {
		c := s.controllers[i]
		st := c.Stop(context.Background())
		s.log.Info("service stopped", "service", c.Spec().Name, "state", string(st))
	}
}

// Shutdown requests a full stop. Safe to call multiple times and from any
// goroutine; Run performs the actual reverse-order termination.
func (s *Supervisor) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Done is closed once Run has fully finished.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Status returns a consistent snapshot: overall phase, degraded flag, and
// per-service runtime copies in declared order.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	phase := s.phase
	s.mu.RUnlock()
	out := Status{Phase: phase, Services: make([]service.Runtime, 0, len(s.controllers))}
	for _, c := range s.controllers {
		rt := c.Snapshot()
		if rt.State == service.StateFailed {
			out.Degraded = true
		}
		out.Services = append(out.Services, rt)
	}
	return out
}

// ServiceStatus returns the runtime snapshot for one service by name.
func (s *Supervisor) ServiceStatus(name string) (service.Runtime, bool) {
	for _, c := range s.controllers {
		if c.Spec().Name == name {
			return c.Snapshot(), true
		}
	}
	return service.Runtime{}, false
}

// PIDs returns name -> pid for currently running services. Used by the
// resource metrics sampler.
func (s *Supervisor) PIDs() map[string]int {
	out := make(map[string]int)
	for _, c := range s.controllers {
		rt := c.Snapshot()
		if rt.State == service.StateRunning && rt.PID != 0 {
			out[rt.Name] = rt.PID
		}
	}
	return out
}

func (s *Supervisor) setPhase(p Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.log.Info("phase change", "phase", string(p))
}

func (s *Supervisor) stopRequested(ctx context.Context) bool {
	select {
	case <-s.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// eventLoop consumes controller transitions: structured logging, metrics,
// journal, and the embedder callback.
func (s *Supervisor) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.handleEvent(ev)
		}
	}
}

// drainEvents flushes transitions emitted during the final shutdown steps.
func (s *Supervisor) drainEvents() {
	for {
		select {
		case ev := <-s.events:
			s.handleEvent(ev)
		default:
			return
		}
	}
}

func (s *Supervisor) handleEvent(ev service.Event) {
	metrics.RecordStateTransition(ev.Service, string(ev.From), string(ev.To))
	metrics.SetCurrentState(ev.Service, string(ev.From), false)
	metrics.SetCurrentState(ev.Service, string(ev.To), true)
	switch ev.To {
	case service.StateStarting:
		metrics.IncStart(ev.Service)
	case service.StateRestarting:
		metrics.IncRestart(ev.Service)
	case service.StateStopped:
		metrics.IncStop(ev.Service)
	case service.StateRunning:
		if ev.ReadyWait > 0 {
			metrics.ObserveReadyWait(ev.Service, ev.ReadyWait.Seconds())
		}
	}
	if j := s.opts.Journal; j != nil {
		jctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		entry := journal.Entry{
			Service: ev.Service,
			From:    string(ev.From),
			To:      string(ev.To),
			PID:     ev.PID,
			At:      ev.At,
		}
		if ev.Err != nil {
			entry.Detail = ev.Err.Error()
		}
		if err := j.Append(jctx, entry); err != nil {
			s.log.Warn("journal append failed", "error", err)
		}
		cancel()
	}
	if s.opts.OnEvent != nil {
		s.opts.OnEvent(ev)
	}
}
