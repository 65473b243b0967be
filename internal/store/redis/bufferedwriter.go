package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"marketsim/internal/model"
)

// UpdateSink is anything that can persist one update; *Writer is the
// production sink.
type UpdateSink interface {
	WriteUpdate(ctx context.Context, u model.Update) error
}

// BufferedWriter wraps a sink with a circuit breaker.
// During circuit-open state, updates are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	sink UpdateSink
	cb   *CircuitBreaker
	ctx  context.Context

	mu     sync.Mutex
	buffer []model.Update
	maxBuf int // max buffered updates before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when an update is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered updates
}

// NewBufferedWriter creates a BufferedWriter wrapping the given sink.
func NewBufferedWriter(ctx context.Context, sink UpdateSink, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		sink:   sink,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]model.Update, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.Flush()
		}
	}

	return bw
}

// Write sends u through the circuit breaker. If the circuit is open the
// update is buffered and nil is returned.
func (bw *BufferedWriter) Write(u model.Update) error {
	err := bw.cb.Execute(func() error {
		return bw.sink.WriteUpdate(bw.ctx, u)
	})
	if errors.Is(err, ErrCircuitOpen) {
		bw.bufferWrite(u)
		return nil // buffered, not lost
	}
	return err
}

// Run reads updates and writes each through the breaker.
// Blocks until ctx is cancelled or updates is closed.
func (bw *BufferedWriter) Run(ctx context.Context, updates <-chan model.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := bw.Write(u); err != nil {
				log.Printf("[buffered-writer] write seq=%d failed: %v", u.Seq, err)
			}
		}
	}
}

func (bw *BufferedWriter) bufferWrite(u model.Update) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full, drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, u)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// Flush replays buffered updates in arrival order. Updates that fail again
// are dropped and logged.
func (bw *BufferedWriter) Flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.Update, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, u := range toFlush {
		if err := bw.sink.WriteUpdate(bw.ctx, u); err != nil {
			log.Printf("[buffered-writer] replay seq=%d failed: %v", u.Seq, err)
			continue
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d of %d buffered updates", flushed, len(toFlush))
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered updates waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
