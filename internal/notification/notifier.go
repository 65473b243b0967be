// Package notification delivers simulation alerts (price spikes, simulated
// market open and close) to external channels.
package notification

import (
	"context"
	"errors"
	"log"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Event names what happened in the simulation.
type Event string

const (
	EventSpike        Event = "spike"
	EventSessionOpen  Event = "session_open"
	EventSessionClose Event = "session_close"
)

// Alert represents a notification to be sent. Price and ChangePct are set
// for spikes only.
type Alert struct {
	Event     Event      `json:"event"`
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Ticker    string     `json:"ticker,omitempty"`
	Price     float64    `json:"price,omitempty"`
	ChangePct float64    `json:"change_pct,omitempty"`
	SimTime   time.Time  `json:"sim_time"` // simulated clock when the event happened
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts. It is the fallback when no backend is configured.
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, summary(alert), alert.Message)
	return nil
}

// Multi sends every alert to each notifier in turn. A failing backend does
// not stop the others; their errors are joined.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
