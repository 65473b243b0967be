package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// movement renders a spike as "+6.00% to 101.00".
func movement(a Alert) string {
	pct := decimal.NewFromFloat(a.ChangePct).StringFixed(2)
	if !strings.HasPrefix(pct, "-") {
		pct = "+" + pct
	}
	return fmt.Sprintf("%s%% to %s", pct, decimal.NewFromFloat(a.Price).StringFixed(2))
}

// summary is the one-line form chat backends lead with.
func summary(a Alert) string {
	if a.Event != EventSpike {
		return a.Title
	}
	arrow := "▲"
	if a.ChangePct < 0 {
		arrow = "▼"
	}
	return fmt.Sprintf("%s %s %s", a.Ticker, arrow, movement(a))
}

func levelIcon(l AlertLevel) string {
	switch l {
	case AlertWarning:
		return "⚠️"
	case AlertCritical:
		return "🚨"
	}
	return "ℹ️"
}

// postJSON posts v to url and treats any non-2xx reply as a failure.
func postJSON(ctx context.Context, client *http.Client, backend, url string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%s: marshal: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", backend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send: %w", backend, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %d", backend, resp.StatusCode)
	}
	return nil
}
