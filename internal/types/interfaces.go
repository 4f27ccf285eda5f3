package types

import (
	"context"
	"time"
)

// Logger defines the structured logging interface used throughout the watchdog.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NotificationChannel is one delivery mechanism (mail, microblog, queue).
type NotificationChannel interface {
	// Type returns the channel type.
	Type() ChannelType

	// Destinations lists where each notification goes; the dispatcher makes
	// one Deliver call per destination.
	Destinations() []string

	// Deliver sends n to one destination. It must honour ctx cancellation.
	Deliver(ctx context.Context, n *Notification, destination string) error
}
