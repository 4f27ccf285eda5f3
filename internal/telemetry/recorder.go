// Package telemetry records watchdog metrics. Two backends exist: a
// Prometheus registry scraped through the status server, and a CloudWatch
// recorder that aggregates in memory and flushes on a fixed period.
package telemetry

import (
	"time"

	"doorwatch/internal/types"
)

// Recorder is implemented by every metrics backend. Methods must be cheap and
// non-blocking: they are called from the ingestion path.
type Recorder interface {
	RecordPacket(result types.PacketResult)
	RecordAuditFailure()
	RecordTransition(kind types.TransitionKind)
	RecordDelivery(channel types.ChannelType, result types.DeliveryResult, latency time.Duration)
	RecordDispatchRejected()
}

// Nop discards all metrics. Used when METRICS_BACKEND=none and in tests.
type Nop struct{}

func (Nop) RecordPacket(types.PacketResult)                                       {}
func (Nop) RecordAuditFailure()                                                   {}
func (Nop) RecordTransition(types.TransitionKind)                                 {}
func (Nop) RecordDelivery(types.ChannelType, types.DeliveryResult, time.Duration) {}
func (Nop) RecordDispatchRejected()                                               {}

var _ Recorder = Nop{}
