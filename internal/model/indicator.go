package model

// Timeframe is the horizon over which an indicator is expected to act.
// Shorter horizons get a larger per-step price scale.
type Timeframe string

const (
	TimeframeShort  Timeframe = "short"
	TimeframeMedium Timeframe = "medium"
	TimeframeLong   Timeframe = "long"
)

// Valid reports whether tf is one of the known horizons.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TimeframeShort, TimeframeMedium, TimeframeLong:
		return true
	}
	return false
}

// Indicator is a bounded, mean-reverting signal that drifts toward a
// randomly re-chosen target. Value always lies within [Min, Max].
type Indicator struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Value       float64   `json:"value"`
	Min         float64   `json:"min"`
	Max         float64   `json:"max"`
	Weight      float64   `json:"weight"`
	Timeframe   Timeframe `json:"timeframe"`
	Trend       float64   `json:"trend"` // -1..1, direction toward TargetValue
	TargetValue float64   `json:"target_value"`
	ChangeSpeed float64   `json:"change_speed"`
	Volatility  float64   `json:"volatility"`
}

// Mid is the neutral point of the indicator range.
func (i Indicator) Mid() float64 { return (i.Min + i.Max) / 2 }

// Span is Max - Min.
func (i Indicator) Span() float64 { return i.Max - i.Min }

// FundamentalIndicator is a slow company metric re-drawn once per simulated
// quarter. Reversed metrics (debt ratio) pull the price down as they rise.
type FundamentalIndicator struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Value       float64 `json:"value"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Neutral     float64 `json:"neutral"`
	Weight      float64 `json:"weight"`
	Reversed    bool    `json:"reversed,omitempty"`
}

// TechnicalReading is an indicator derived from the generated history.
// Value is on a 0..100 scale; 50 until Ready.
type TechnicalReading struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Ready bool    `json:"ready"`
}
