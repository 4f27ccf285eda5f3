package watchdog

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChecker struct {
	calls atomic.Int32
	lost  bool
	last  time.Duration
}

func (s *stubChecker) ExpireIfSilent(now time.Time, threshold time.Duration) bool {
	s.calls.Add(1)
	s.last = threshold
	return s.lost
}

func TestNewHeartbeatMonitor_Validation(t *testing.T) {
	_, err := NewHeartbeatMonitor(&stubChecker{}, 0, time.Minute, nil, newTestLogger())
	assert.Error(t, err)

	_, err = NewHeartbeatMonitor(&stubChecker{}, time.Minute, 0, nil, newTestLogger())
	assert.Error(t, err)
}

func TestHeartbeatMonitor_CheckLogsLoss(t *testing.T) {
	checker := &stubChecker{lost: true}
	logger := newTestLogger()
	h, err := NewHeartbeatMonitor(checker, time.Minute, 2*time.Minute, &fakeClock{now: testEpoch}, logger)
	require.NoError(t, err)

	assert.True(t, h.Check())
	assert.Equal(t, 2*time.Minute, checker.last)
	assert.Equal(t, []string{"missed heartbeat"}, logger.warns)

	checker.lost = false
	assert.False(t, h.Check())
	assert.Len(t, logger.warns, 1)
}

func TestHeartbeatMonitor_RunTicksUntilCancelled(t *testing.T) {
	checker := &stubChecker{}
	h, err := NewHeartbeatMonitor(checker, 5*time.Millisecond, time.Minute, nil, newTestLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool { return checker.calls.Load() >= 2 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
