package probe

import (
	"context"
	"time"
)

// PollInterval is how often WaitReady re-runs a failing check.
const PollInterval = 250 * time.Millisecond

// ResultKind classifies how a readiness wait ended.
type ResultKind int

const (
	Ready ResultKind = iota
	TimedOut
	ProcessExited
	Canceled
)

func (k ResultKind) String() string {
	switch k {
	case Ready:
		return "ready"
	case TimedOut:
		return "timed_out"
	case ProcessExited:
		return "process_exited"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Result is the outcome of a readiness wait.
type Result struct {
	Kind    ResultKind
	Elapsed time.Duration
	Err     error // last check error for TimedOut
}

// WaitReady polls p until it succeeds, timeout elapses, exited is closed
// (the underlying process died), or ctx is canceled, whichever comes first.
// A process exit short-circuits immediately rather than waiting out the
// remaining timeout.
func WaitReady(ctx context.Context, p Probe, exited <-chan struct{}, timeout time.Duration) Result {
	start := time.Now()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(PollInterval)
	defer tick.Stop()

	var lastErr error
	for {
		// Check first so a ready service is detected without waiting a tick.
		cctx, cancel := context.WithTimeout(ctx, PollInterval)
		err := p.Check(cctx)
		cancel()
		if err == nil {
			return Result{Kind: Ready, Elapsed: time.Since(start)}
		}
		lastErr = err

		select {
		case <-exited:
			return Result{Kind: ProcessExited, Elapsed: time.Since(start)}
		case <-ctx.Done():
			return Result{Kind: Canceled, Elapsed: time.Since(start), Err: ctx.Err()}
		case <-deadline.C:
			return Result{Kind: TimedOut, Elapsed: time.Since(start), Err: lastErr}
		case <-tick.C:
		}
	}
}
