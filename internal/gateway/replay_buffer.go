package gateway

import "sync"

// replayEntry is one broadcast envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes in a fixed-size ring so a
// reconnecting client can resume from the last seq it saw. Seqs are pushed
// in increasing order. Safe for concurrent use.
type ReplayBuffer struct {
	mu    sync.RWMutex
	ring  []replayEntry
	next  int
	count int
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{ring: make([]replayEntry, capacity)}
}

// Push stores an envelope, evicting the oldest when full. data is not
// copied; callers must not modify it afterwards.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.ring[rb.next] = replayEntry{Seq: seq, Data: data}
	rb.next = (rb.next + 1) % len(rb.ring)
	if rb.count < len(rb.ring) {
		rb.count++
	}
}

// Since returns the buffered entries with Seq > seq, oldest first.
func (rb *ReplayBuffer) Since(seq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	oldest := (rb.next - rb.count + len(rb.ring)) % len(rb.ring)
	for i := 0; i < rb.count; i++ {
		e := rb.ring[(oldest+i)%len(rb.ring)]
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Oldest returns the smallest buffered seq, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.count == 0 {
		return 0
	}
	return rb.ring[(rb.next-rb.count+len(rb.ring))%len(rb.ring)].Seq
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
