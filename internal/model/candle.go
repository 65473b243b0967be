package model

import (
	"encoding/json"
	"time"
)

// Bar is a bucket of price points re-aggregated for display, e.g. one
// trading day for the weekly and monthly views.
type Bar struct {
	Ticker string    `json:"ticker"`
	TS     time.Time `json:"ts"` // bucket start
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"` // summed over the bucket
	Points int       `json:"points"` // number of 5-minute points aggregated
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	j, _ := json.Marshal(b)
	return j
}
