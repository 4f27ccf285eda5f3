package watchdog

import (
	"sync"

	"doorwatch/internal/telemetry"
	"doorwatch/internal/types"
)

// AuditSink durably records every received line.
type AuditSink interface {
	Append(line string) error
}

// Watchdog is the ingestion point: every LogEvent is audited, then fed to the
// Machine. It implements ingest.Handler.
type Watchdog struct {
	audit   AuditSink
	machine *Machine
	metrics telemetry.Recorder
	logger  types.Logger

	mu            sync.Mutex
	auditErr      error
	auditFailures int
}

// New wires an audit sink in front of a machine.
func New(audit AuditSink, machine *Machine, metrics telemetry.Recorder, logger types.Logger) *Watchdog {
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	return &Watchdog{
		audit:   audit,
		machine: machine,
		metrics: metrics,
		logger:  logger,
	}
}

// Handle audits ev and passes it to the state machine. An audit failure is
// recorded as a health concern but never stops classification.
func (w *Watchdog) Handle(ev types.LogEvent) {
	if err := w.audit.Append(ev.Payload); err != nil {
		w.metrics.RecordAuditFailure()
		w.mu.Lock()
		w.auditErr = err
		w.auditFailures++
		w.mu.Unlock()
		w.logger.Error("audit append failed", "error", err.Error())
	} else {
		w.mu.Lock()
		w.auditErr = nil
		w.mu.Unlock()
	}

	w.machine.Observe(ev)
}

// AuditHealth returns the total number of failed appends and the most recent
// error, which is nil again once an append succeeds.
func (w *Watchdog) AuditHealth() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.auditFailures, w.auditErr
}

// Status returns the machine snapshot.
func (w *Watchdog) Status() Status {
	return w.machine.Snapshot()
}
