package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

// envelope is the parsed WS message structure.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Seq     int64           `json:"seq"`
}

func TestEnvelopeFormat(t *testing.T) {
	data := []byte(`{"seq":7,"generated":true,"current_date":"2024-03-04T09:35:00Z"}`)
	now := time.Date(2024, 3, 4, 9, 35, 0, 123, time.UTC)

	buf := appendEnvelope(nil, ChannelTick, data, now, 42)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, ChannelTick, env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.JSONEq(t, string(data), string(env.Data))

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelopes reads frames until n tick envelopes arrived. Frames may
// carry several newline-separated messages.
func readEnvelopes(t *testing.T, conn *websocket.Conn, n int) []envelope {
	t.Helper()
	var out []envelope
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(out) < n {
		_, frame, err := conn.ReadMessage()
		require.NoError(t, err)
		for _, line := range bytes.Split(frame, []byte{'\n'}) {
			var env envelope
			require.NoError(t, json.Unmarshal(line, &env))
			if env.Channel == ChannelTick {
				out = append(out, env)
			}
		}
	}
	return out
}

func update(seq int64) model.Update {
	return model.Update{
		Seq:         seq,
		Generated:   true,
		CurrentDate: time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC).Add(time.Duration(seq) * 5 * time.Minute),
	}
}

func TestHub_NewClientReceivesLatest(t *testing.T) {
	hub, url := startHub(t)
	u1, u2 := update(1), update(2)
	hub.Broadcast(ChannelTick, u1.JSON())
	hub.Broadcast(ChannelTick, u2.JSON())

	conn := dial(t, url)
	got := readEnvelopes(t, conn, 1)
	assert.Equal(t, int64(2), got[0].Seq)

	var u model.Update
	require.NoError(t, json.Unmarshal(got[0].Data, &u))
	assert.Equal(t, int64(2), u.Seq)
}

func TestHub_RunStreamsUpdates(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan model.Update, 4)
	go hub.Run(ctx, updates)

	for seq := int64(1); seq <= 3; seq++ {
		updates <- update(seq)
	}
	got := readEnvelopes(t, conn, 3)
	for i, env := range got {
		assert.Equal(t, int64(i+1), env.Seq)
	}
	assert.Equal(t, 3, hub.Latency.Snapshot().Count)
}

func TestHub_SinceReplaysMissedEnvelopes(t *testing.T) {
	hub, url := startHub(t)
	for seq := int64(1); seq <= 5; seq++ {
		u := update(seq)
		hub.Broadcast(ChannelTick, u.JSON())
	}

	conn := dial(t, url+"?since=2")
	got := readEnvelopes(t, conn, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].Seq, got[1].Seq, got[2].Seq})
}

func TestHub_ReplayRequest(t *testing.T) {
	hub, url := startHub(t)
	for seq := int64(1); seq <= 4; seq++ {
		u := update(seq)
		hub.Broadcast(ChannelTick, u.JSON())
	}
	conn := dial(t, url)
	first := readEnvelopes(t, conn, 1)
	require.Equal(t, int64(4), first[0].Seq)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "replay", "since": 1}))
	got := readEnvelopes(t, conn, 3)
	assert.Equal(t, int64(2), got[0].Seq)
	assert.Equal(t, int64(4), got[2].Seq)
}

func TestHub_PingPong(t *testing.T) {
	_, url := startHub(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(map[string]int64{"ping": 99}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(frame, &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(99), pong.Ping)
}

func TestHub_StatusBroadcast(t *testing.T) {
	hub, url := startHub(t)
	hub.Status = func() interface{} { return map[string]bool{"is_running": true} }
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.broadcastStatus()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string          `json:"type"`
		Clients int             `json:"clients"`
		Status  map[string]bool `json:"status"`
	}
	require.NoError(t, json.Unmarshal(frame, &msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, 1, msg.Clients)
	assert.True(t, msg.Status["is_running"])
}

func TestHub_DisconnectRemovesClient(t *testing.T) {
	hub, url := startHub(t)
	counts := make(chan int, 4)
	hub.OnClients = func(n int) { counts <- n }

	conn := dial(t, url)
	require.Equal(t, 1, <-counts)
	conn.Close()

	select {
	case n := <-counts:
		assert.Equal(t, 0, n)
	case <-time.After(2 * time.Second):
		t.Fatal("client was not removed")
	}
	assert.Equal(t, 0, hub.ClientCount())
}
