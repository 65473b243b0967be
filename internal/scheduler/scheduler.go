// Package scheduler abstracts repeating timers so the engine can be driven
// by wall-clock tickers in production and by a manual clock in tests.
package scheduler

import (
	"sync"
	"time"
)

// Cancel stops a scheduled callback. It never blocks and is safe to call
// more than once. A callback already in flight may still complete.
type Cancel func()

// Scheduler arranges for fn to be called every interval until cancelled.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Cancel
}

// Ticker is the production Scheduler backed by time.Ticker. The zero value
// is ready to use.
type Ticker struct{}

// Every starts a goroutine that calls fn on each tick. Calls never overlap:
// a slow fn makes the ticker drop ticks rather than queue them.
func (Ticker) Every(interval time.Duration, fn func()) Cancel {
	t := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
