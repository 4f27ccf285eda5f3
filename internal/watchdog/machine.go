package watchdog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"doorwatch/internal/telemetry"
	"doorwatch/internal/types"
)

// Emitter receives every TransitionEvent. Enqueue is called with the Machine
// lock held, so implementations must hand the event off without blocking on
// network I/O.
type Emitter interface {
	Enqueue(ev types.TransitionEvent) error
}

// MachineConfig holds the dependencies of a Machine.
type MachineConfig struct {
	Classifier     *Classifier
	Emitter        Emitter
	Escalation     EscalationPolicy
	Scheduler      Scheduler // defaults to RealScheduler
	Clock          types.Clock
	RecentLogLimit int
	Metrics        telemetry.Recorder
	Logger         types.Logger
}

// Machine is the health state machine. It is the single ordering point for
// every input: line arrivals, heartbeat checks and escalation firings all take
// mu, so no two transitions race.
type Machine struct {
	classifier *Classifier
	emitter    Emitter
	policy     EscalationPolicy
	sched      Scheduler
	clock      types.Clock
	metrics    telemetry.Recorder
	logger     types.Logger

	mu         sync.Mutex
	state      types.HealthState
	since      time.Time
	lastSeen   time.Time
	seen       bool
	recent     *RecentLog
	escalation *EscalationScheduler
}

// NewMachine returns a Machine in the Healthy state.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("machine: classifier must not be nil")
	}
	if cfg.Emitter == nil {
		return nil, fmt.Errorf("machine: emitter must not be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("machine: logger must not be nil")
	}
	if cfg.Escalation.MinInterval <= 0 || cfg.Escalation.MaxInterval < cfg.Escalation.MinInterval {
		return nil, fmt.Errorf("machine: invalid escalation bounds min=%s max=%s",
			cfg.Escalation.MinInterval, cfg.Escalation.MaxInterval)
	}

	sched := cfg.Scheduler
	if sched == nil {
		sched = RealScheduler{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = telemetry.Nop{}
	}

	return &Machine{
		classifier: cfg.Classifier,
		emitter:    cfg.Emitter,
		policy:     cfg.Escalation,
		sched:      sched,
		clock:      clock,
		metrics:    metrics,
		logger:     cfg.Logger,
		state:      types.StateHealthy,
		since:      clock.Now(),
		recent:     NewRecentLog(cfg.RecentLogLimit),
	}, nil
}

// Observe feeds one received line into the machine.
//
// Any line ends a Dead period: arrival is itself proof of life, so the machine
// moves Dead -> Healthy and then classifies the same line from Healthy, which
// may immediately raise ToError. The offending line opens the recent log, and
// while ErrorReported every line that does not clear the error is added to it
// whatever its verdict.
func (m *Machine) Observe(ev types.LogEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastSeen = ev.ReceivedAt
	m.seen = true

	if m.state == types.StateDead {
		lines, dropped := m.recent.Drain()
		m.transition(types.StateHealthy, types.KindToHealthy, ev.ReceivedAt, types.TransitionContext{
			Line:         ev.Payload,
			RecentLog:    lines,
			DroppedLines: dropped,
		})
	}

	if !m.classifier.Eligible(ev.Payload) {
		if m.state == types.StateErrorReported {
			m.recent.Append(ev.Payload)
		}
		return
	}

	verdict := m.classifier.Classify(ev.Payload)
	switch {
	case m.state == types.StateHealthy && verdict == types.VerdictAnomalous:
		m.transition(types.StateErrorReported, types.KindToError, ev.ReceivedAt, types.TransitionContext{
			Line: ev.Payload,
		})
		m.recent.Append(ev.Payload)
	case m.state == types.StateErrorReported && verdict == types.VerdictBenign:
		lines, dropped := m.recent.Drain()
		m.transition(types.StateHealthy, types.KindToHealthy, ev.ReceivedAt, types.TransitionContext{
			Line:         ev.Payload,
			RecentLog:    lines,
			DroppedLines: dropped,
		})
	case m.state == types.StateErrorReported:
		m.recent.Append(ev.Payload)
	}
}

// ExpireIfSilent moves the machine to Dead when no line has arrived for more
// than threshold. It does nothing before the first line ever arrives or when
// already Dead, so one silence period yields at most one ToDead.
func (m *Machine) ExpireIfSilent(now time.Time, threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.seen || m.state == types.StateDead {
		return false
	}
	silence := now.Sub(m.lastSeen)
	if silence <= threshold {
		return false
	}

	lines, dropped := m.recent.Drain()
	m.transition(types.StateDead, types.KindToDead, now, types.TransitionContext{
		Silence:      silence,
		RecentLog:    lines,
		DroppedLines: dropped,
	})
	return true
}

// onEscalation is the EscalationScheduler callback. It runs on a timer
// goroutine and discards firings that belong to a cancelled error period.
func (m *Machine) onEscalation(e *EscalationScheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.cancelled || e != m.escalation || m.state != types.StateErrorReported {
		return
	}

	now := m.clock.Now()
	lines, dropped := m.recent.Drain()
	m.emit(types.TransitionEvent{
		ID:         uuid.NewString(),
		From:       types.StateErrorReported,
		To:         types.StateErrorReported,
		Kind:       types.KindRecurrentError,
		OccurredAt: now,
		Context: types.TransitionContext{
			RecentLog:    lines,
			DroppedLines: dropped,
		},
	})
	e.advance(now)

	m.logger.Info("escalation fired",
		"fired", e.Fired(),
		"next_interval", e.Interval().String(),
	)
}

// transition applies a state change and emits its event. Caller holds mu.
func (m *Machine) transition(to types.HealthState, kind types.TransitionKind, now time.Time, tctx types.TransitionContext) {
	from := m.state
	m.state = to
	m.since = now

	if from == types.StateErrorReported && m.escalation != nil {
		m.escalation.cancel()
		m.escalation = nil
	}
	if to == types.StateErrorReported {
		m.escalation = newEscalationScheduler(m.policy, m.sched, m.onEscalation)
		m.escalation.start(now)
	}

	m.logger.Info("health state changed",
		"from", from.String(),
		"to", to.String(),
		"kind", string(kind),
	)

	m.emit(types.TransitionEvent{
		ID:         uuid.NewString(),
		From:       from,
		To:         to,
		Kind:       kind,
		OccurredAt: now,
		Context:    tctx,
	})
}

// emit hands ev to the Emitter. A rejected event is logged and counted; the
// state change stands regardless.
func (m *Machine) emit(ev types.TransitionEvent) {
	m.metrics.RecordTransition(ev.Kind)
	if err := m.emitter.Enqueue(ev); err != nil {
		m.metrics.RecordDispatchRejected()
		m.logger.Error("transition event not dispatched",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"error", err.Error(),
		)
	}
}

// Status is a point-in-time view of the machine for the status API.
type Status struct {
	State              types.HealthState `json:"state"`
	Since              time.Time         `json:"since"`
	LastSeen           *time.Time        `json:"last_seen,omitempty"`
	RecentLogLen       int               `json:"recent_log_len"`
	NextEscalation     *time.Time        `json:"next_escalation,omitempty"`
	EscalationInterval string            `json:"escalation_interval,omitempty"`
	EscalationsFired   int               `json:"escalations_fired,omitempty"`
}

// Snapshot returns the current Status.
func (m *Machine) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Status{
		State:        m.state,
		Since:        m.since,
		RecentLogLen: m.recent.Len(),
	}
	if m.seen {
		t := m.lastSeen
		s.LastSeen = &t
	}
	if m.escalation != nil {
		t := m.escalation.NextAt()
		s.NextEscalation = &t
		s.EscalationInterval = m.escalation.Interval().String()
		s.EscalationsFired = m.escalation.Fired()
	}
	return s
}

// State returns the current health state.
func (m *Machine) State() types.HealthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}
