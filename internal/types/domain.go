package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// LogEvent is one line received from the monitored controller. It is
// immutable once created.
type LogEvent struct {
	ReceivedAt time.Time `json:"received_at"`
	Payload    string    `json:"payload"`
}

// Verdict is the outcome of classifying a line against the whitelist.
type Verdict int

const (
	VerdictBenign Verdict = iota
	VerdictAnomalous
)

// String returns the lower-case verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictBenign:
		return "benign"
	case VerdictAnomalous:
		return "anomalous"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// HealthState is the monitored controller's health as seen by the watchdog.
type HealthState int

const (
	StateHealthy HealthState = iota
	StateErrorReported
	StateDead
)

// String returns the snake_case state name used in logs and the status API.
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateErrorReported:
		return "error_reported"
	case StateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s HealthState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// TransitionKind keys both the transition and its notification template.
type TransitionKind string

const (
	KindToError        TransitionKind = "transition_to_error_state"
	KindToHealthy      TransitionKind = "transition_to_healthy_state"
	KindToDead         TransitionKind = "transition_to_dead_state"
	KindRecurrentError TransitionKind = "recurrent_in_error_state"
)

// AllTransitionKinds lists every kind a template set must cover.
var AllTransitionKinds = []TransitionKind{
	KindToError,
	KindToHealthy,
	KindToDead,
	KindRecurrentError,
}

// TransitionContext carries what a notification needs to describe the change.
// Which fields are set depends on the kind.
type TransitionContext struct {
	Line         string        `json:"line,omitempty"`
	RecentLog    []string      `json:"recent_log,omitempty"`
	DroppedLines int           `json:"dropped_lines,omitempty"`
	Silence      time.Duration `json:"silence_ns,omitempty"`
}

// TransitionEvent is produced exactly once per accepted state change, and once
// per escalation firing (From == To == StateErrorReported).
type TransitionEvent struct {
	ID         string            `json:"id"`
	From       HealthState       `json:"from"`
	To         HealthState       `json:"to"`
	Kind       TransitionKind    `json:"kind"`
	OccurredAt time.Time         `json:"occurred_at"`
	Context    TransitionContext `json:"context"`
}

// Notification is a rendered TransitionEvent, ready for any channel.
type Notification struct {
	EventID    string         `json:"id"`
	Kind       TransitionKind `json:"kind"`
	From       HealthState    `json:"from"`
	To         HealthState    `json:"to"`
	Subject    string         `json:"subject"`
	Body       string         `json:"body"`
	OccurredAt time.Time      `json:"occurred_at"`
}
