package types

// Telemetry metric names. All recorders MUST use these constants.
const (
	MetricPacketsReceived  = "PacketsReceived"
	MetricAuditFailure     = "AuditWriteFailure"
	MetricTransition       = "HealthTransition"
	MetricDeliveryAttempt  = "DeliveryAttempt"
	MetricDeliveryLatency  = "DeliveryAttemptLatency"
	MetricDispatchRejected = "DispatchRejected"

	// Dimension Keys
	DimResult  = "Result"
	DimChannel = "Channel"
	DimKind    = "Kind"

	// DefaultMetricNamespace is used when METRIC_NAMESPACE is unset.
	DefaultMetricNamespace = "DoorWatch"
)
