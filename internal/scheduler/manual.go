package scheduler

import (
	"sort"
	"sync"
	"time"
)

// Manual is a virtual-clock Scheduler for tests. Time only moves when
// Advance is called; due callbacks run synchronously on the caller's
// goroutine in deadline order.
type Manual struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers map[int]*manualTimer
	fired  int
}

type manualTimer struct {
	id       int
	interval time.Duration
	next     time.Duration
	fn       func()
}

// NewManual returns a Manual clock at virtual time zero.
func NewManual() *Manual {
	return &Manual{timers: make(map[int]*manualTimer)}
}

// Every registers fn to fire every interval of virtual time.
func (m *Manual) Every(interval time.Duration, fn func()) Cancel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.timers[id] = &manualTimer{id: id, interval: interval, next: m.now + interval, fn: fn}
	return func() {
		m.mu.Lock()
		delete(m.timers, id)
		m.mu.Unlock()
	}
}

// Advance moves virtual time forward by d, firing every callback that
// becomes due. Returns the number of callbacks fired.
func (m *Manual) Advance(d time.Duration) int {
	m.mu.Lock()
	target := m.now + d
	fired := 0
	for {
		t := m.earliestLocked(target)
		if t == nil {
			break
		}
		m.now = t.next
		t.next += t.interval
		fn := t.fn
		m.fired++
		fired++
		m.mu.Unlock()
		fn()
		m.mu.Lock()
	}
	m.now = target
	m.mu.Unlock()
	return fired
}

// Active returns the number of registered, uncancelled timers.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

// Intervals returns the intervals of the active timers, shortest first.
func (m *Manual) Intervals() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Duration, 0, len(m.timers))
	for _, t := range m.timers {
		out = append(out, t.interval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Fired returns the total number of callbacks fired so far.
func (m *Manual) Fired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fired
}

// Now returns the current virtual time.
func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) earliestLocked(limit time.Duration) *manualTimer {
	var best *manualTimer
	for _, t := range m.timers {
		if t.next > limit {
			continue
		}
		if best == nil || t.next < best.next || (t.next == best.next && t.id < best.id) {
			best = t
		}
	}
	return best
}
