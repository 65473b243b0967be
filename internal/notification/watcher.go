package notification

import (
	"context"
	"log"
	"time"

	"marketsim/internal/model"
)

// DefaultSpikeCooldown is the simulated time between two spike alerts for
// the same ticker.
const DefaultSpikeCooldown = time.Hour

// Watcher turns the update stream into alerts: a warning per price spike
// and an info alert whenever the simulated market opens or closes.
type Watcher struct {
	n Notifier

	// SpikeCooldown is measured on the simulated clock. Zero uses
	// DefaultSpikeCooldown.
	SpikeCooldown time.Duration

	// SendTimeout bounds each delivery.
	SendTimeout time.Duration

	lastSpike map[string]time.Time
	open      bool
	seen      bool

	// OnAlert is called after each delivery attempt (for metrics).
	OnAlert func(a Alert, err error)
}

// NewWatcher creates a Watcher sending through n.
func NewWatcher(n Notifier) *Watcher {
	return &Watcher{
		n:             n,
		SpikeCooldown: DefaultSpikeCooldown,
		SendTimeout:   10 * time.Second,
		lastSpike:     make(map[string]time.Time),
	}
}

// Run consumes updates until ctx is cancelled or updates is closed. Blocks.
func (w *Watcher) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			for _, a := range w.Check(u) {
				w.send(ctx, a)
			}
		}
	}
}

// Check returns the alerts u raises and advances the watcher's state.
func (w *Watcher) Check(u model.Update) []Alert {
	var alerts []Alert

	if w.seen && u.Generated != w.open {
		a := Alert{Level: AlertInfo, SimTime: u.CurrentDate}
		if u.Generated {
			a.Event = EventSessionOpen
			a.Title = "Market open"
			a.Message = "simulated session opened at " + u.CurrentDate.Format("Mon 2006-01-02 15:04")
		} else {
			a.Event = EventSessionClose
			a.Title = "Market closed"
			a.Message = "clock moved to " + u.CurrentDate.Format("Mon 2006-01-02 15:04")
		}
		alerts = append(alerts, a)
	}
	w.seen = true
	w.open = u.Generated

	cooldown := w.SpikeCooldown
	if cooldown <= 0 {
		cooldown = DefaultSpikeCooldown
	}
	for _, iu := range u.Instruments {
		if !iu.Spike {
			continue
		}
		if last, ok := w.lastSpike[iu.Ticker]; ok && u.CurrentDate.Sub(last) < cooldown {
			continue
		}
		w.lastSpike[iu.Ticker] = u.CurrentDate
		a := Alert{
			Event:     EventSpike,
			Level:     AlertWarning,
			Title:     iu.Ticker + " price spike",
			Ticker:    iu.Ticker,
			Price:     iu.Price,
			ChangePct: iu.Change * 100,
			SimTime:   u.CurrentDate,
		}
		a.Message = "moved " + movement(a)
		alerts = append(alerts, a)
	}
	return alerts
}

func (w *Watcher) send(ctx context.Context, a Alert) {
	sendCtx, cancel := context.WithTimeout(ctx, w.SendTimeout)
	defer cancel()
	err := w.n.Send(sendCtx, a)
	if err != nil {
		log.Printf("[notify] delivery failed for %q: %v", a.Title, err)
	}
	if w.OnAlert != nil {
		w.OnAlert(a, err)
	}
}
