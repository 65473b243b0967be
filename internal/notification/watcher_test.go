package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recorder) Send(ctx context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func (r *recorder) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.alerts))
	for i, a := range r.alerts {
		out[i] = a.Title
	}
	return out
}

var monday = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func tick(at time.Time, generated bool, spikes ...string) model.Update {
	u := model.Update{Generated: generated, CurrentDate: at}
	for _, t := range spikes {
		u.Instruments = append(u.Instruments, model.InstrumentUpdate{Ticker: t, Price: 101, Change: 0.06, Spike: true})
	}
	return u
}

func TestWatcher_SessionTransitions(t *testing.T) {
	w := NewWatcher(&recorder{})

	assert.Empty(t, w.Check(tick(monday, true)), "first update sets the baseline")
	assert.Empty(t, w.Check(tick(monday.Add(5*time.Minute), true)))

	closed := w.Check(tick(monday.Add(18*time.Hour), false))
	require.Len(t, closed, 1)
	assert.Equal(t, "Market closed", closed[0].Title)
	assert.Equal(t, EventSessionClose, closed[0].Event)
	assert.Equal(t, AlertInfo, closed[0].Level)

	opened := w.Check(tick(monday.Add(24*time.Hour), true))
	require.Len(t, opened, 1)
	assert.Equal(t, "Market open", opened[0].Title)
	assert.Equal(t, EventSessionOpen, opened[0].Event)
}

func TestWatcher_SpikeCooldown(t *testing.T) {
	w := NewWatcher(&recorder{})
	w.SpikeCooldown = 30 * time.Minute

	first := w.Check(tick(monday, true, "TCH"))
	require.Len(t, first, 1)
	assert.Equal(t, AlertWarning, first[0].Level)
	assert.Equal(t, "TCH", first[0].Ticker)
	assert.Equal(t, EventSpike, first[0].Event)
	assert.Equal(t, "moved +6.00% to 101.00", first[0].Message)
	assert.InDelta(t, 6.0, first[0].ChangePct, 1e-9)

	assert.Empty(t, w.Check(tick(monday.Add(10*time.Minute), true, "TCH")))
	assert.Len(t, w.Check(tick(monday.Add(10*time.Minute), true, "STB")), 1, "cooldown is per ticker")
	assert.Len(t, w.Check(tick(monday.Add(30*time.Minute), true, "TCH")), 1)
}

func TestWatcher_RunDelivers(t *testing.T) {
	rec := &recorder{err: errors.New("boom")}
	w := NewWatcher(rec)
	var attempts int
	w.OnAlert = func(a Alert, err error) {
		attempts++
		assert.Error(t, err)
	}

	updates := make(chan model.Update, 3)
	updates <- tick(monday, true, "TCH")
	updates <- tick(monday.Add(5*time.Minute), false)
	close(updates)

	w.Run(context.Background(), updates)
	assert.Equal(t, []string{"TCH price spike", "Market closed"}, rec.titles())
	assert.Equal(t, 2, attempts)
}

func TestMulti_JoinsErrors(t *testing.T) {
	ok := &recorder{}
	bad := &recorder{err: errors.New("down")}
	err := Multi{bad, ok}.Send(context.Background(), Alert{Title: "x"})
	require.Error(t, err)
	assert.Equal(t, []string{"x"}, ok.titles())
}

func TestWebhookNotifier_Payload(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{
		Event: EventSpike, Level: AlertWarning, Title: "TCH price spike",
		Ticker: "TCH", Price: 94.5, ChangePct: -5.5, SimTime: monday,
	})
	require.NoError(t, err)
	assert.Equal(t, "spike", got["event"])
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "TCH", got["ticker"])
	assert.Equal(t, "TCH ▼ -5.50% to 94.50", got["summary"])
	assert.Equal(t, 94.5, got["price"])
	assert.Equal(t, -5.5, got["change_pct"])
	assert.Equal(t, "2024-03-04T14:30:00Z", got["sim_time"])
	assert.NotEmpty(t, got["sent_at"])
}

func TestWebhookNotifier_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL).Send(context.Background(), Alert{Title: "x"})
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestTelegramNotifier_EscapesMarkdown(t *testing.T) {
	var body struct {
		ChatID    string `json:"chat_id"`
		Text      string `json:"text"`
		ParseMode string `json:"parse_mode"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	require.NoError(t, n.Send(context.Background(), Alert{Level: AlertInfo, Title: "Market open", Message: "a.b", SimTime: monday}))
	assert.Equal(t, "42", body.ChatID)
	assert.Equal(t, "MarkdownV2", body.ParseMode)
	assert.Contains(t, body.Text, `a\.b`)
	assert.Contains(t, body.Text, `2024\-03\-04`)
}

func TestTelegramText_Spike(t *testing.T) {
	text := telegramText(Alert{
		Event: EventSpike, Level: AlertWarning, Ticker: "TCH",
		Price: 101, ChangePct: 6, Message: "moved +6.00% to 101.00", SimTime: monday,
	})
	assert.True(t, strings.HasPrefix(text, "⚠️ *TCH ▲ \\+6\\.00% to 101\\.00*"), text)
	assert.Contains(t, text, "_sim Mon 2024\\-03\\-04 14:30_")
}

func TestSummary_SessionEventsUseTitle(t *testing.T) {
	assert.Equal(t, "Market open", summary(Alert{Event: EventSessionOpen, Title: "Market open"}))
}
