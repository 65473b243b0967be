package indicator

import "marketsim/internal/model"

const neutralReading = 50.0

// minTechnicalPoints is the history length below which every reading is
// reported as neutral.
const minTechnicalPoints = 15

// Technicals tracks the streaming technical readings for one instrument.
// Not safe for concurrent use; the engine owns one per instrument.
type Technicals struct {
	calcs []Calculator
	seen  int
}

// NewTechnicals returns the standard set: RSI(14), MACD(12,26) and
// Volume Pressure(10).
func NewTechnicals() *Technicals {
	return &Technicals{calcs: []Calculator{
		NewRSI(14),
		NewMACD(12, 26),
		NewVolumePressure(10),
	}}
}

// Update feeds one appended history point to every calculator.
func (t *Technicals) Update(p model.PricePoint) {
	t.seen++
	for _, c := range t.calcs {
		c.Update(p.Price, p.Volume)
	}
}

// Replay resets and feeds a whole history, oldest first.
func (t *Technicals) Replay(history []model.PricePoint) {
	t.seen = 0
	for _, c := range t.calcs {
		c.Reset()
	}
	for _, p := range history {
		t.Update(p)
	}
}

// Readings returns the current values in a stable order.
func (t *Technicals) Readings() []model.TechnicalReading {
	out := make([]model.TechnicalReading, len(t.calcs))
	for i, c := range t.calcs {
		r := model.TechnicalReading{Name: c.Name(), Value: neutralReading}
		if t.seen >= minTechnicalPoints && c.Ready() {
			r.Value = c.Value()
			r.Ready = true
		}
		out[i] = r
	}
	return out
}
