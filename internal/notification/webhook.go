package notification

import (
	"context"
	"log"
	"net/http"
	"time"
)

// webhookPayload is the JSON body posted for every alert. Times are RFC 3339
// in UTC; sim_time is the simulated clock, sent_at the wall clock.
type webhookPayload struct {
	Event     Event      `json:"event"`
	Level     AlertLevel `json:"level"`
	Title     string     `json:"title"`
	Summary   string     `json:"summary"`
	Message   string     `json:"message"`
	Ticker    string     `json:"ticker,omitempty"`
	Price     float64    `json:"price,omitempty"`
	ChangePct float64    `json:"change_pct,omitempty"`
	SimTime   string     `json:"sim_time"`
	SentAt    string     `json:"sent_at"`
}

// WebhookNotifier posts alerts to a generic HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	p := webhookPayload{
		Event:     alert.Event,
		Level:     alert.Level,
		Title:     alert.Title,
		Summary:   summary(alert),
		Message:   alert.Message,
		Ticker:    alert.Ticker,
		Price:     alert.Price,
		ChangePct: alert.ChangePct,
		SimTime:   alert.SimTime.UTC().Format(time.RFC3339),
		SentAt:    time.Now().UTC().Format(time.RFC3339Nano),
	}
	if err := postJSON(ctx, w.client, "webhook", w.url, p); err != nil {
		return err
	}
	log.Printf("[webhook] %s delivered", p.Summary)
	return nil
}
