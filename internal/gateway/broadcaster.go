package gateway

import (
	"log"
	"strconv"
	"time"
)

// Broadcast wraps data in an envelope, records it as the latest state and
// in the replay buffer, and fans it out to every client. A client whose
// send buffer is full misses the envelope and can catch up by seq.
func (h *Hub) Broadcast(channel string, data []byte) {
	start := time.Now()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+96), channel, data, start.UTC(), seq)
	h.latest = buf
	h.replay.Push(seq, buf)

	dropped := 0
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			dropped++
		}
	}
	h.mu.Unlock()

	if dropped > 0 {
		log.Printf("[gateway] seq=%d dropped for %d slow client(s)", seq, dropped)
	}
	h.Latency.Record(time.Since(start))
}

// appendEnvelope hand-crafts {"channel":"…","data":…,"ts":"…","seq":N}.
// data must already be valid JSON.
func appendEnvelope(buf []byte, channel string, data []byte, ts time.Time, seq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
