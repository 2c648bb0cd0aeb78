//go:build !windows

package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/stagehand/internal/probe"
	"github.com/loykin/stagehand/internal/service"
)

type eventLog struct {
	mu  sync.Mutex
	evs []service.Event
}

func (l *eventLog) record(ev service.Event) {
	l.mu.Lock()
	l.evs = append(l.evs, ev)
	l.mu.Unlock()
}

func (l *eventLog) all() []service.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]service.Event(nil), l.evs...)
}

// firstTo returns the time of the first transition of svc into state.
func (l *eventLog) firstTo(svc string, state service.State) (time.Time, bool) {
	for _, ev := range l.all() {
		if ev.Service == svc && ev.To == state {
			return ev.At, true
		}
	}
	return time.Time{}, false
}

func sleeperSpec(name string) service.Spec {
	return service.Spec{
		Name:    name,
		Command: []string{"/bin/sh", "-c", "sleep 60"},
		Wait:    probe.Spec{Kind: probe.KindNone},
	}
}

func runSupervisor(t *testing.T, specs []service.Spec, interval time.Duration, log *eventLog) *Supervisor {
	t.Helper()
	opts := Options{StartInterval: interval}
	if log != nil {
		opts.OnEvent = log.record
	}
	s, err := New(specs, opts)
	require.NoError(t, err)
	go func() { _ = s.Run(context.Background()) }()
	t.Cleanup(func() {
		s.Shutdown()
		select {
		case <-s.Done():
		case <-time.After(30 * time.Second):
			t.Error("supervisor did not stop")
		}
	})
	return s
}

func waitPhase(t *testing.T, s *Supervisor, p Phase) {
	t.Helper()
	require.Eventually(t, func() bool { return s.Status().Phase == p }, 15*time.Second, 20*time.Millisecond,
		"expected phase %s, got %s", p, s.Status().Phase)
}

func TestStartOrderAndPacing(t *testing.T) {
	log := &eventLog{}
	interval := 300 * time.Millisecond
	s := runSupervisor(t, []service.Spec{
		sleeperSpec("alpha"), sleeperSpec("beta"), sleeperSpec("gamma"),
	}, interval, log)
	waitPhase(t, s, PhaseRunning)

	ta, ok := log.firstTo("alpha", service.StateCheckingFiles)
	require.True(t, ok)
	tb, ok := log.firstTo("beta", service.StateCheckingFiles)
	require.True(t, ok)
	tc, ok := log.firstTo("gamma", service.StateCheckingFiles)
	require.True(t, ok)

	assert.True(t, ta.Before(tb) && tb.Before(tc), "startup must follow declared order")
	// Inter-start gaps include the full interval (timers never fire early;
	// allow a little slack for event timestamping).
	assert.GreaterOrEqual(t, tb.Sub(ta), interval-50*time.Millisecond)
	assert.GreaterOrEqual(t, tc.Sub(tb), interval-50*time.Millisecond)

	st := s.Status()
	assert.False(t, st.Degraded)
	require.Len(t, st.Services, 3)
	for _, rt := range st.Services {
		assert.Equal(t, service.StateRunning, rt.State)
	}
}

func TestFailedServiceDoesNotBlockSiblings(t *testing.T) {
	log := &eventLog{}
	interval := 250 * time.Millisecond

	dir := t.TempDir()
	broken := sleeperSpec("broken")
	broken.WorkDir = dir
	broken.RequiredFiles = []string{"missing.conf"}

	s := runSupervisor(t, []service.Spec{
		sleeperSpec("first"), broken, sleeperSpec("third"),
	}, interval, log)
	waitPhase(t, s, PhaseRunning)

	st := s.Status()
	assert.True(t, st.Degraded, "a failed service must surface as degraded")
	assert.Equal(t, service.StateRunning, st.Services[0].State)
	assert.Equal(t, service.StateFailed, st.Services[1].State)
	assert.Equal(t, service.StateRunning, st.Services[2].State)

	// The interval is waited after the failure too: third's file check must
	// not begin before broken failed plus the interval.
	tFail, ok := log.firstTo("broken", service.StateFailed)
	require.True(t, ok)
	tThird, ok := log.firstTo("third", service.StateCheckingFiles)
	require.True(t, ok)
	assert.GreaterOrEqual(t, tThird.Sub(tFail), interval-50*time.Millisecond)
}

func TestShutdownReverseOrder(t *testing.T) {
	log := &eventLog{}
	s := runSupervisor(t, []service.Spec{
		sleeperSpec("one"), sleeperSpec("two"), sleeperSpec("three"),
	}, 0, log)
	waitPhase(t, s, PhaseRunning)

	s.Shutdown()
	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("shutdown timed out")
	}

	assert.Equal(t, PhaseStopped, s.Status().Phase)
	t1, ok := log.firstTo("one", service.StateStopping)
	require.True(t, ok)
	t2, ok := log.firstTo("two", service.StateStopping)
	require.True(t, ok)
	t3, ok := log.firstTo("three", service.StateStopping)
	require.True(t, ok)
	assert.True(t, !t3.After(t2) && !t2.After(t1), "shutdown must run in reverse startup order")

	for _, rt := range s.Status().Services {
		assert.Equal(t, service.StateStopped, rt.State)
	}
}

func TestShutdownDuringStartup(t *testing.T) {
	s := runSupervisor(t, []service.Spec{
		sleeperSpec("a"), sleeperSpec("b"), sleeperSpec("c"),
	}, 10*time.Second, nil)

	// Request shutdown while the supervisor is still pacing startups.
	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	s.Shutdown()
	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("shutdown timed out")
	}
	assert.Less(t, time.Since(start), 15*time.Second, "shutdown must cancel the inter-start wait")
	assert.Equal(t, PhaseStopped, s.Status().Phase)
}

func TestStoppedOnlyWhenAllStoppedOrFailed(t *testing.T) {
	dir := t.TempDir()
	broken := sleeperSpec("bad")
	broken.WorkDir = dir
	broken.RequiredFiles = []string{"absent"}

	s := runSupervisor(t, []service.Spec{sleeperSpec("good"), broken}, 0, nil)
	waitPhase(t, s, PhaseRunning)

	s.Shutdown()
	select {
	case <-s.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("shutdown timed out")
	}
	st := s.Status()
	assert.Equal(t, PhaseStopped, st.Phase)
	assert.Equal(t, service.StateStopped, st.Services[0].State)
	// failed is a valid terminal state for overall stopped
	assert.Equal(t, service.StateFailed, st.Services[1].State)
}

func TestServiceStatusLookup(t *testing.T) {
	s := runSupervisor(t, []service.Spec{sleeperSpec("lookup")}, 0, nil)
	waitPhase(t, s, PhaseRunning)

	rt, ok := s.ServiceStatus("lookup")
	require.True(t, ok)
	assert.Equal(t, service.StateRunning, rt.State)
	assert.Greater(t, rt.PID, 0)

	_, ok = s.ServiceStatus("nope")
	assert.False(t, ok)

	pids := s.PIDs()
	assert.Equal(t, rt.PID, pids["lookup"])
}
