package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"doorwatch/internal/types"
)

// PutMetricData limits per request and per datum.
const (
	cloudWatchMaxDatums = 1000
	cloudWatchMaxValues = 150
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

type metricKey struct {
	name    string
	dimName string
	dimVal  string
	dim2    string
	dim2Val string
}

// CloudWatchRecorder counts events in memory and publishes them on Flush.
// Publishing per packet would cost one API call per log line.
type CloudWatchRecorder struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger

	mu        sync.Mutex
	counts    map[metricKey]float64
	latencies map[types.ChannelType][]float64
}

// NewCloudWatchRecorder creates a recorder publishing under namespace.
func NewCloudWatchRecorder(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchRecorder {
	if namespace == "" {
		namespace = types.DefaultMetricNamespace
	}
	return &CloudWatchRecorder{
		client:    client,
		namespace: namespace,
		logger:    logger,
		counts:    make(map[metricKey]float64),
		latencies: make(map[types.ChannelType][]float64),
	}
}

func (r *CloudWatchRecorder) add(k metricKey) {
	r.mu.Lock()
	r.counts[k]++
	r.mu.Unlock()
}

func (r *CloudWatchRecorder) RecordPacket(result types.PacketResult) {
	r.add(metricKey{name: types.MetricPacketsReceived, dimName: types.DimResult, dimVal: string(result)})
}

func (r *CloudWatchRecorder) RecordAuditFailure() {
	r.add(metricKey{name: types.MetricAuditFailure})
}

func (r *CloudWatchRecorder) RecordTransition(kind types.TransitionKind) {
	r.add(metricKey{name: types.MetricTransition, dimName: types.DimKind, dimVal: string(kind)})
}

func (r *CloudWatchRecorder) RecordDelivery(channel types.ChannelType, result types.DeliveryResult, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[metricKey{
		name:    types.MetricDeliveryAttempt,
		dimName: types.DimChannel,
		dimVal:  string(channel),
		dim2:    types.DimResult,
		dim2Val: string(result),
	}]++
	r.latencies[channel] = append(r.latencies[channel], float64(latency.Milliseconds()))
}

func (r *CloudWatchRecorder) RecordDispatchRejected() {
	r.add(metricKey{name: types.MetricDispatchRejected})
}

// Run flushes every period until ctx is cancelled, then flushes once more.
func (r *CloudWatchRecorder) Run(ctx context.Context, period time.Duration) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			r.Flush(ctx)
		}
	}
}

// Flush publishes and resets the accumulated counters. Failures are logged;
// the affected datapoints are lost.
func (r *CloudWatchRecorder) Flush(ctx context.Context) {
	r.mu.Lock()
	counts := r.counts
	latencies := r.latencies
	r.counts = make(map[metricKey]float64)
	r.latencies = make(map[types.ChannelType][]float64)
	r.mu.Unlock()

	now := time.Now().UTC()
	datums := make([]cwtypes.MetricDatum, 0, len(counts)+len(latencies))
	for k, v := range counts {
		d := cwtypes.MetricDatum{
			MetricName: aws.String(k.name),
			Value:      aws.Float64(v),
			Unit:       cwtypes.StandardUnitCount,
			Timestamp:  aws.Time(now),
		}
		if k.dimName != "" {
			d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: aws.String(k.dimName), Value: aws.String(k.dimVal)})
		}
		if k.dim2 != "" {
			d.Dimensions = append(d.Dimensions, cwtypes.Dimension{Name: aws.String(k.dim2), Value: aws.String(k.dim2Val)})
		}
		datums = append(datums, d)
	}
	for ch, values := range latencies {
		for len(values) > 0 {
			n := min(len(values), cloudWatchMaxValues)
			datums = append(datums, cwtypes.MetricDatum{
				MetricName: aws.String(types.MetricDeliveryLatency),
				Values:     values[:n],
				Unit:       cwtypes.StandardUnitMilliseconds,
				Timestamp:  aws.Time(now),
				Dimensions: []cwtypes.Dimension{{Name: aws.String(types.DimChannel), Value: aws.String(string(ch))}},
			})
			values = values[n:]
		}
	}

	for start := 0; start < len(datums); start += cloudWatchMaxDatums {
		end := min(start+cloudWatchMaxDatums, len(datums))
		_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(r.namespace),
			MetricData: datums[start:end],
		})
		if err != nil {
			r.logger.Error("failed to publish metrics",
				"namespace", r.namespace,
				"datums", end-start,
				"error", err.Error(),
			)
		}
	}
}

var _ Recorder = (*CloudWatchRecorder)(nil)
