package series

import (
	"context"
	"log"
	"sync"
	"time"

	"marketsim/internal/model"
)

// dayState holds the in-progress daily bar for one ticker.
type dayState struct {
	day time.Time
	bar model.Bar
}

// Aggregator builds daily bars from the live update stream and emits each
// bar once the simulated day rolls over.
type Aggregator struct {
	mu     sync.Mutex
	loc    *time.Location
	states map[string]*dayState // key = ticker

	// OnLatePoint is called when a point older than the open bar arrives.
	OnLatePoint func()
}

// NewAggregator buckets days in loc (nil means UTC).
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{loc: loc, states: make(map[string]*dayState)}
}

// Run consumes updates until ctx is cancelled or updates is closed, then
// flushes every open bar. Blocks. bars is left open; the caller closes it
// once Run returns so the consumer sees the final flush.
func (a *Aggregator) Run(ctx context.Context, updates <-chan model.Update, bars chan<- model.Bar) {
	for {
		select {
		case <-ctx.Done():
			a.flushAll(bars)
			return
		case u, ok := <-updates:
			if !ok {
				a.flushAll(bars)
				return
			}
			a.Process(u, bars)
		}
	}
}

// Process incorporates every generated point of u.
func (a *Aggregator) Process(u model.Update, bars chan<- model.Bar) {
	if !u.Generated {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, iu := range u.Instruments {
		if iu.Point != nil {
			a.addLocked(iu.Ticker, *iu.Point, bars)
		}
	}
}

// Seed replays a ticker's stored history, oldest first, and returns the
// bars of every completed day. The last day stays open so live points
// extend it instead of starting a fresh bar mid-session.
func (a *Aggregator) Seed(ticker string, history []model.PricePoint) []model.Bar {
	closed := make(chan model.Bar, len(history)+1)
	a.mu.Lock()
	for _, p := range history {
		a.addLocked(ticker, p, closed)
	}
	a.mu.Unlock()
	close(closed)

	out := make([]model.Bar, 0, len(closed))
	for b := range closed {
		out = append(out, b)
	}
	return out
}

// OpenBar returns the in-progress bar for ticker, if any.
func (a *Aggregator) OpenBar(ticker string) (model.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.states[ticker]
	if !ok {
		return model.Bar{}, false
	}
	return state.bar, true
}

func (a *Aggregator) addLocked(ticker string, p model.PricePoint, bars chan<- model.Bar) {
	day := dayStart(p.Timestamp, a.loc)
	state, exists := a.states[ticker]

	if exists && day.Before(state.day) {
		if a.OnLatePoint != nil {
			a.OnLatePoint()
		}
		return
	}
	if exists && day.After(state.day) {
		a.emit(state, bars)
		exists = false
	}
	if !exists {
		b := pointBar(ticker, p)
		b.TS = day
		a.states[ticker] = &dayState{day: day, bar: b}
		return
	}
	merge(&state.bar, p)
}

func (a *Aggregator) flushAll(bars chan<- model.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for key, state := range a.states {
		a.emit(state, bars)
		delete(a.states, key)
	}
}

// emit is non-blocking so a stalled consumer cannot back up the bus.
func (a *Aggregator) emit(state *dayState, bars chan<- model.Bar) {
	select {
	case bars <- state.bar:
	default:
		log.Printf("[series] bar channel full, dropping %s bar for %s", state.bar.Ticker, state.day.Format("2006-01-02"))
	}
}
