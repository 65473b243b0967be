package bus

import (
	"context"
	"log"
	"sort"
	"sync"

	"marketsim/internal/model"
)

// FanOut broadcasts tick updates to N subscriber channels.
// If a subscriber channel is full, the update is dropped for that consumer
// so a slow consumer never blocks the engine.
type FanOut struct {
	mu      sync.RWMutex
	outputs map[int]chan model.Update
	nextID  int
	bufSize int
	closed  bool

	// OnDrop is called when an update is dropped for a subscriber.
	// subscriberID is the id assigned at Subscribe time.
	OnDrop func(subscriberID int)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	if outputBufferSize < 1 {
		outputBufferSize = 1
	}
	return &FanOut{
		outputs: make(map[int]chan model.Update),
		bufSize: outputBufferSize,
	}
}

// Subscribe creates a new output channel. The returned func unsubscribes
// and closes the channel; it is safe to call more than once.
func (f *FanOut) Subscribe() (<-chan model.Update, func()) {
	ch := make(chan model.Update, f.bufSize)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.nextID++
	id := f.nextID
	f.outputs[id] = ch
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			if c, ok := f.outputs[id]; ok {
				delete(f.outputs, id)
				close(c)
			}
			f.mu.Unlock()
		})
	}
}

// Publish delivers u to every subscriber without blocking.
func (f *FanOut) Publish(u model.Update) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, ch := range f.outputs {
		select {
		case ch <- u:
		default:
			if f.OnDrop != nil {
				f.OnDrop(id)
			} else {
				log.Printf("[bus] subscriber %d full, dropping update seq=%d", id, u.Seq)
			}
		}
	}
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed, then closes every
// subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Update) {
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-input:
			if !ok {
				return
			}
			f.Publish(u)
		}
	}
}

// Close closes every subscriber channel. Later subscribers receive a
// closed channel.
func (f *FanOut) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.outputs {
		close(ch)
		delete(f.outputs, id)
	}
}

// Subscribers returns the number of live subscriptions.
func (f *FanOut) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.outputs)
}

// ChannelStat reports (length, capacity) for one subscriber channel.
// Used for reporting channel saturation percentage.
type ChannelStat struct {
	ID  int
	Len int
	Cap int
}

// ChannelStats returns stats for every subscriber, ordered by id.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, 0, len(f.outputs))
	for id, ch := range f.outputs {
		stats = append(stats, ChannelStat{ID: id, Len: len(ch), Cap: cap(ch)})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].ID < stats[j].ID })
	return stats
}
