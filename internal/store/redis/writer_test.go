package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

func sampleUpdate() model.Update {
	ts := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	return model.Update{
		Seq:         12,
		RunID:       "run-1",
		Generated:   true,
		CurrentDate: ts.Add(5 * time.Minute),
		Instruments: []model.InstrumentUpdate{
			{ID: 1, Ticker: "TCH", Price: 101.25, Point: &model.PricePoint{Timestamp: ts, Price: 101.25, Volume: 550000}},
			{ID: 2, Ticker: "STB", Price: 49.9, Point: &model.PricePoint{Timestamp: ts, Price: 49.9, Volume: 120000}},
		},
	}
}

func TestUpdateCommands_KeysPerInstrument(t *testing.T) {
	cmds := updateCommands(sampleUpdate())

	keys := map[opKind][]string{}
	for _, c := range cmds {
		keys[c.op] = append(keys[c.op], c.key)
	}
	assert.ElementsMatch(t, []string{StateKey, LatestKey("TCH"), LatestKey("STB")}, keys[opSet])
	assert.ElementsMatch(t, []string{TickChannel, InstrumentChannel("TCH"), InstrumentChannel("STB")}, keys[opPublish])
	assert.ElementsMatch(t, []string{StreamKey("TCH"), StreamKey("STB")}, keys[opXAdd])

	for _, c := range cmds {
		if c.op == opSet && c.key == LatestKey("TCH") {
			assert.Equal(t, defaultLatestTTL, c.ttl)
			var iu model.InstrumentUpdate
			require.NoError(t, json.Unmarshal([]byte(c.payload), &iu))
			assert.Equal(t, 101.25, iu.Price)
		}
		if c.op == opXAdd && c.key == StreamKey("TCH") {
			p, err := pointFromValues(c.values)
			require.NoError(t, err)
			assert.Equal(t, *sampleUpdate().Instruments[0].Point, p)
		}
	}
}

func TestUpdateCommands_ClockJumpOnlyTouchesState(t *testing.T) {
	cmds := updateCommands(model.Update{Seq: 3, Generated: false, CurrentDate: time.Now()})
	require.Len(t, cmds, 2)
	assert.Equal(t, StateKey, cmds[0].key)
	assert.Equal(t, TickChannel, cmds[1].key)
}

func TestPointFromValues_Rejects(t *testing.T) {
	_, err := pointFromValues(map[string]interface{}{"ts": "1", "price": "x", "volume": "1"})
	assert.Error(t, err)
	_, err = pointFromValues(map[string]interface{}{"price": "1", "volume": "1"})
	assert.Error(t, err)
}

type fakeSink struct {
	mu      sync.Mutex
	fail    bool
	written []int64
}

func (s *fakeSink) WriteUpdate(_ context.Context, u model.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("connection refused")
	}
	s.written = append(s.written, u.Seq)
	return nil
}

func (s *fakeSink) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

func (s *fakeSink) seqs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.written...)
}

func TestBufferedWriter_BuffersWhileOpenAndFlushesOnClose(t *testing.T) {
	sink := &fakeSink{fail: true}
	cb, clock := newTestBreaker(1, 50*time.Millisecond)
	var buffered int
	bw := NewBufferedWriter(context.Background(), sink, cb, 10)
	bw.OnBuffer = func() { buffered++ }

	assert.Error(t, bw.Write(model.Update{Seq: 1}))
	assert.Equal(t, StateOpen, cb.CurrentState())

	assert.NoError(t, bw.Write(model.Update{Seq: 2}))
	assert.NoError(t, bw.Write(model.Update{Seq: 3}))
	assert.Equal(t, 2, bw.PendingCount())
	assert.Equal(t, 2, buffered)

	sink.setFail(false)
	clock.advance(time.Second)
	require.NoError(t, bw.Write(model.Update{Seq: 4}))

	require.Eventually(t, func() bool { return len(sink.seqs()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []int64{4, 2, 3}, sink.seqs())
	assert.Equal(t, 0, bw.PendingCount())
}

func TestBufferedWriter_DropsOldestWhenFull(t *testing.T) {
	sink := &fakeSink{fail: true}
	cb, _ := newTestBreaker(1, time.Hour)
	bw := NewBufferedWriter(context.Background(), sink, cb, 2)

	bw.Write(model.Update{Seq: 1}) // trips
	for seq := int64(2); seq <= 5; seq++ {
		require.NoError(t, bw.Write(model.Update{Seq: seq}))
	}
	assert.Equal(t, 2, bw.PendingCount())

	sink.setFail(false)
	bw.Flush()
	assert.Equal(t, []int64{4, 5}, sink.seqs())
}
