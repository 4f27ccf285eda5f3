package watchdog

import (
	"context"
	"fmt"
	"time"

	"doorwatch/internal/types"
)

// LivenessChecker is the part of the Machine the monitor drives.
type LivenessChecker interface {
	ExpireIfSilent(now time.Time, threshold time.Duration) bool
}

// HeartbeatMonitor checks on a fixed period whether the controller has gone
// silent for longer than threshold. The comparison is pure elapsed time and
// never blocks the loop.
type HeartbeatMonitor struct {
	checker   LivenessChecker
	period    time.Duration
	threshold time.Duration
	clock     types.Clock
	logger    types.Logger
}

// NewHeartbeatMonitor validates the timings and returns a monitor.
func NewHeartbeatMonitor(checker LivenessChecker, period, threshold time.Duration, clock types.Clock, logger types.Logger) (*HeartbeatMonitor, error) {
	if period <= 0 {
		return nil, fmt.Errorf("heartbeat: period must be positive, got %s", period)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("heartbeat: threshold must be positive, got %s", threshold)
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &HeartbeatMonitor{
		checker:   checker,
		period:    period,
		threshold: threshold,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Check runs one heartbeat comparison and reports whether liveness was lost.
func (h *HeartbeatMonitor) Check() bool {
	lost := h.checker.ExpireIfSilent(h.clock.Now(), h.threshold)
	if lost {
		h.logger.Warn("missed heartbeat", "threshold", h.threshold.String())
	}
	return lost
}

// Run ticks every period until ctx is cancelled. The ticker keeps its own
// schedule, so a slow check shifts one tick at most.
func (h *HeartbeatMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	h.logger.Info("heartbeat monitor started",
		"period", h.period.String(),
		"threshold", h.threshold.String(),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			h.Check()
		}
	}
}
