package watchdog

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"doorwatch/internal/types"
)

var testEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func newTestLogger() *testLogger { return &testLogger{} }

func (l *testLogger) Info(msg string, args ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}
func (l *testLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}
func (l *testLogger) Error(msg string, args ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}
func (l *testLogger) With(args ...any) types.Logger { return l }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// recordingEmitter captures every event handed to it.
type recordingEmitter struct {
	mu     sync.Mutex
	events []types.TransitionEvent
	err    error
}

func (e *recordingEmitter) Enqueue(ev types.TransitionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) kinds() []types.TransitionKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.TransitionKind, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (e *recordingEmitter) last() types.TransitionEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

// manualTimer never fires on its own; tests call fire.
type manualTimer struct {
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) lastTimer() *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.timers) == 0 {
		return nil
	}
	return s.timers[len(s.timers)-1]
}

func (s *manualScheduler) durations() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.timers))
	for _, t := range s.timers {
		out = append(out, t.d)
	}
	return out
}

// fireLast runs the newest timer's callback outside the scheduler lock.
func (s *manualScheduler) fireLast(t *testing.T) {
	t.Helper()
	timer := s.lastTimer()
	require.NotNil(t, timer, "no timer armed")
	timer.f()
}

type machineFixture struct {
	machine *Machine
	emitter *recordingEmitter
	sched   *manualScheduler
	clock   *fakeClock
	logger  *testLogger
}

const (
	benignLine    = "[doord] normal operation"
	anomalousLine = "[doord] actuator jam detected"
	foreignLine   = "[sshd] session opened"
)

func newMachineFixture(t *testing.T) *machineFixture {
	t.Helper()

	classifier, err := NewClassifier("doord", 0, []string{`\[doord\] normal operation`})
	require.NoError(t, err)

	f := &machineFixture{
		emitter: &recordingEmitter{},
		sched:   &manualScheduler{},
		clock:   &fakeClock{now: testEpoch},
		logger:  newTestLogger(),
	}
	f.machine, err = NewMachine(MachineConfig{
		Classifier:     classifier,
		Emitter:        f.emitter,
		Escalation:     EscalationPolicy{MinInterval: 2 * time.Minute, MaxInterval: 20 * time.Minute},
		Scheduler:      f.sched,
		Clock:          f.clock,
		RecentLogLimit: 100,
		Logger:         f.logger,
	})
	require.NoError(t, err)
	return f
}

// feed delivers a line stamped with the fixture clock after advancing it.
func (f *machineFixture) feed(advance time.Duration, payload string) {
	now := f.clock.Advance(advance)
	f.machine.Observe(types.LogEvent{ReceivedAt: now, Payload: payload})
}

var errQueueFull = errors.New("queue full")
