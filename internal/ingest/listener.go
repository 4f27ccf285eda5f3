// Package ingest receives the controller's log feed as UDP datagrams and turns
// each one into a LogEvent.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"doorwatch/internal/telemetry"
	"doorwatch/internal/types"
)

// Handler consumes decoded log events. Handle is called synchronously from the
// read loop, one event at a time, in arrival order.
type Handler interface {
	Handle(ev types.LogEvent)
}

// Config holds Listener settings.
type Config struct {
	Addr        string
	PrefixBytes int
	MaxPacket   int
}

// Listener is the UDP LineSource. Delivery is at-most-once: lost datagrams are
// invisible and malformed ones are dropped and counted.
type Listener struct {
	cfg     Config
	handler Handler
	metrics telemetry.Recorder
	clock   types.Clock
	logger  types.Logger

	mu   sync.Mutex
	conn net.PacketConn
}

// NewListener validates cfg and returns an unbound Listener.
func NewListener(cfg Config, handler Handler, metrics telemetry.Recorder, clock types.Clock, logger types.Logger) (*Listener, error) {
	if handler == nil {
		return nil, errors.New("ingest: handler must not be nil")
	}
	if cfg.PrefixBytes < 0 {
		return nil, fmt.Errorf("ingest: negative prefix length %d", cfg.PrefixBytes)
	}
	if cfg.MaxPacket <= cfg.PrefixBytes {
		return nil, fmt.Errorf("ingest: max packet %d must exceed prefix %d", cfg.MaxPacket, cfg.PrefixBytes)
	}
	if metrics == nil {
		metrics = telemetry.Nop{}
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	return &Listener{
		cfg:     cfg,
		handler: handler,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Listen binds the socket. Run calls it when the caller has not.
func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return nil
	}
	conn, err := net.ListenPacket("udp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("ingest: listen on %s: %w", l.cfg.Addr, err)
	}
	l.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

// Run reads datagrams until ctx is cancelled, then closes the socket.
func (l *Listener) Run(ctx context.Context) error {
	if err := l.Listen(); err != nil {
		return err
	}

	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	l.logger.Info("ingest listener started",
		"addr", conn.LocalAddr().String(),
		"prefix_bytes", l.cfg.PrefixBytes,
	)

	buf := make([]byte, l.cfg.MaxPacket)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return fmt.Errorf("ingest: read: %w", err)
		}

		payload, err := Decode(buf[:n], l.cfg.PrefixBytes)
		if err != nil {
			l.metrics.RecordPacket(types.PacketDropped)
			l.logger.Warn("dropped malformed packet",
				"from", from.String(),
				"size", n,
				"error", err.Error(),
			)
			continue
		}

		l.metrics.RecordPacket(types.PacketAccepted)
		l.handler.Handle(types.LogEvent{
			ReceivedAt: l.clock.Now(),
			Payload:    payload,
		})
	}
}

// interiorBreaks escapes line breaks left inside a packet so one datagram
// always yields one audit line.
var interiorBreaks = strings.NewReplacer("\r", `\r`, "\n", `\n`)

// Decode strips the opaque framing prefix and returns the line text with
// trailing line terminators removed and interior ones escaped. Bytes that are
// not valid UTF-8 are replaced with U+FFFD.
func Decode(packet []byte, prefix int) (string, error) {
	if len(packet) < prefix {
		return "", types.NewAppError(types.ErrCodeIngestionMalformed,
			fmt.Sprintf("packet of %d bytes is shorter than the %d byte prefix", len(packet), prefix), nil)
	}
	line := strings.TrimRight(string(packet[prefix:]), "\r\n\x00")
	return strings.ToValidUTF8(interiorBreaks.Replace(line), "�"), nil
}
