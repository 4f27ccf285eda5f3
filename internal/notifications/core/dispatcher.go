// Package core runs notification dispatch. The Dispatcher takes
// TransitionEvents from the state machine through a bounded queue, renders
// each one once and fans the result out to every channel destination.
package core

import (
	"context"
	"errors"
	"time"

	"github.com/remeh/sizedwaitgroup"

	"doorwatch/internal/telemetry"
	"doorwatch/internal/types"
)

// Renderer formats a TransitionEvent for delivery.
type Renderer interface {
	Render(ev types.TransitionEvent) (*types.Notification, error)
}

// DispatcherConfig holds the dependencies of a Dispatcher.
type DispatcherConfig struct {
	Renderer        Renderer
	Channels        []types.NotificationChannel
	QueueSize       int
	Concurrency     int
	DeliveryTimeout time.Duration
	Metrics         telemetry.Recorder
	Logger          types.Logger
}

// Dispatcher is the NotificationDispatcher. Enqueue never blocks; Run is the
// single consumer, so notifications go out in the order transitions happened.
type Dispatcher struct {
	renderer    Renderer
	channels    []types.NotificationChannel
	queue       chan types.TransitionEvent
	concurrency int
	timeout     time.Duration
	metrics     telemetry.Recorder
	logger      types.Logger
}

// NewDispatcher validates cfg and returns a Dispatcher with an empty queue.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Renderer == nil {
		return nil, errors.New("dispatcher: renderer must not be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("dispatcher: logger must not be nil")
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 30 * time.Second
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.Nop{}
	}

	return &Dispatcher{
		renderer:    cfg.Renderer,
		channels:    cfg.Channels,
		queue:       make(chan types.TransitionEvent, cfg.QueueSize),
		concurrency: cfg.Concurrency,
		timeout:     cfg.DeliveryTimeout,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}, nil
}

// Enqueue hands ev to the dispatch loop. It returns a dispatch_queue_full
// AppError instead of blocking when the queue is at capacity.
func (d *Dispatcher) Enqueue(ev types.TransitionEvent) error {
	select {
	case d.queue <- ev:
		return nil
	default:
		return types.NewAppError(types.ErrCodeDispatchQueueFull, "dispatch queue is full", nil).
			WithDetails(map[string]any{
				"event_id": ev.ID,
				"kind":     string(ev.Kind),
				"capacity": cap(d.queue),
			})
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Run dispatches queued events until ctx is cancelled, then delivers whatever
// is still queued. Deliveries are detached from ctx so shutdown does not cut
// an in-flight send short; each is still bounded by the delivery timeout.
func (d *Dispatcher) Run(ctx context.Context) error {
	base := context.WithoutCancel(ctx)

	d.logger.Info("notification dispatcher started",
		"channels", len(d.channels),
		"queue_size", cap(d.queue),
		"concurrency", d.concurrency,
	)

	for {
		select {
		case ev := <-d.queue:
			d.Dispatch(base, ev)
		case <-ctx.Done():
			d.drain(base)
			return nil
		}
	}
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.Dispatch(ctx, ev)
		default:
			return
		}
	}
}

// Dispatch renders ev and delivers it to every destination of every channel,
// at most Concurrency sends at a time. A failed send is logged and counted;
// it never affects other destinations and is not retried.
func (d *Dispatcher) Dispatch(ctx context.Context, ev types.TransitionEvent) {
	n, err := d.renderer.Render(ev)
	if err != nil {
		d.logger.Error("notification render failed",
			"event_id", ev.ID,
			"kind", string(ev.Kind),
			"code", string(types.ErrorCodeOf(err)),
			"error", err.Error(),
		)
		return
	}

	swg := sizedwaitgroup.New(d.concurrency)
	for _, ch := range d.channels {
		for i, dest := range ch.Destinations() {
			swg.Add()
			go func() {
				defer swg.Done()
				d.deliver(ctx, ch, n, dest, i)
			}()
		}
	}
	swg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, ch types.NotificationChannel, n *types.Notification, dest string, idx int) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	err := ch.Deliver(ctx, n, dest)
	latency := time.Since(start)

	if err != nil {
		d.metrics.RecordDelivery(ch.Type(), types.DeliveryFailed, latency)
		d.logger.Error("notification delivery failed",
			"event_id", n.EventID,
			"kind", string(n.Kind),
			"channel", string(ch.Type()),
			"destination_index", idx,
			"code", string(types.ErrorCodeOf(err)),
			"error", err.Error(),
		)
		return
	}

	d.metrics.RecordDelivery(ch.Type(), types.DeliverySent, latency)
	d.logger.Info("notification delivered",
		"event_id", n.EventID,
		"kind", string(n.Kind),
		"channel", string(ch.Type()),
		"destination_index", idx,
		"latency_ms", latency.Milliseconds(),
	)
}
