package model

import (
	"encoding/json"
	"time"
)

// PricePoint is one 5-minute observation in an instrument's history.
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
}

// SimulationConfig is the externally visible clock and lifecycle state.
type SimulationConfig struct {
	Speed       time.Duration `json:"-"`
	IsRunning   bool          `json:"is_running"`
	CurrentDate time.Time     `json:"current_date"`
}

// SpeedMillis is Speed in milliseconds, the unit used on the wire.
func (c SimulationConfig) SpeedMillis() int64 { return c.Speed.Milliseconds() }

// InstrumentUpdate is the per-instrument part of an Update.
type InstrumentUpdate struct {
	ID         int                `json:"id"`
	Ticker     string             `json:"ticker"`
	Price      float64            `json:"price"`
	Momentum   float64            `json:"momentum"`
	Change     float64            `json:"change"`
	Spike      bool               `json:"spike,omitempty"`
	Point      *PricePoint        `json:"point,omitempty"`
	Indicators []Indicator        `json:"indicators,omitempty"`
	Technicals []TechnicalReading `json:"technicals,omitempty"`
}

// Update is published to observers once per tick.
// Generated is false when the market was closed and the clock jumped.
type Update struct {
	Seq         int64              `json:"seq"`
	RunID       string             `json:"run_id,omitempty"`
	Generated   bool               `json:"generated"`
	CurrentDate time.Time          `json:"current_date"`
	Instruments []InstrumentUpdate `json:"instruments,omitempty"`
}

// JSON returns the JSON-encoded update (ignoring errors for hot-path usage).
func (u *Update) JSON() []byte {
	b, _ := json.Marshal(u)
	return b
}
