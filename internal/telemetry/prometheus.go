package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"doorwatch/internal/types"
)

const promNamespace = "doorwatch"

// PrometheusRecorder exposes watchdog metrics as Prometheus collectors.
type PrometheusRecorder struct {
	packets          *prometheus.CounterVec
	auditFailures    prometheus.Counter
	transitions      *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	deliverySeconds  *prometheus.HistogramVec
	dispatchRejected prometheus.Counter
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
// Collectors that are already registered are reused silently.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	r := &PrometheusRecorder{
		packets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: promNamespace,
				Name:      "packets_total",
				Help:      "Datagrams received, partitioned by result.",
			},
			[]string{"result"},
		),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "audit_write_failures_total",
			Help:      "Audit trail appends that failed.",
		}),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: promNamespace,
				Name:      "transitions_total",
				Help:      "Health transitions and escalations emitted, by kind.",
			},
			[]string{"kind"},
		),
		deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: promNamespace,
				Name:      "deliveries_total",
				Help:      "Notification deliveries, by channel and result.",
			},
			[]string{"channel", "result"},
		),
		deliverySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: promNamespace,
				Name:      "delivery_seconds",
				Help:      "Notification delivery latency in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"channel"},
		),
		dispatchRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "dispatch_rejected_total",
			Help:      "Transition events rejected because the dispatch queue was full.",
		}),
	}

	collectors := []prometheus.Collector{
		r.packets,
		r.auditFailures,
		r.transitions,
		r.deliveries,
		r.deliverySeconds,
		r.dispatchRejected,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, err
		}
	}
	return r, nil
}

func (r *PrometheusRecorder) RecordPacket(result types.PacketResult) {
	r.packets.WithLabelValues(string(result)).Inc()
}

func (r *PrometheusRecorder) RecordAuditFailure() {
	r.auditFailures.Inc()
}

func (r *PrometheusRecorder) RecordTransition(kind types.TransitionKind) {
	r.transitions.WithLabelValues(string(kind)).Inc()
}

func (r *PrometheusRecorder) RecordDelivery(channel types.ChannelType, result types.DeliveryResult, latency time.Duration) {
	r.deliveries.WithLabelValues(string(channel), string(result)).Inc()
	if latency < 0 {
		latency = 0
	}
	r.deliverySeconds.WithLabelValues(string(channel)).Observe(latency.Seconds())
}

func (r *PrometheusRecorder) RecordDispatchRejected() {
	r.dispatchRejected.Inc()
}

var _ Recorder = (*PrometheusRecorder)(nil)
