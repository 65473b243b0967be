package model

// Instrument is one synthetic stock driven by the simulation.
// ID, Name and Ticker never change after construction; everything else is
// owned by the engine and mutated only on a tick.
type Instrument struct {
	ID           int                    `json:"id"`
	Name         string                 `json:"name"`
	Ticker       string                 `json:"ticker"`
	CurrentPrice float64                `json:"current_price"`
	Momentum     float64                `json:"momentum"`
	PriceHistory []PricePoint           `json:"price_history,omitempty"`
	Indicators   []Indicator            `json:"indicators"`
	Fundamentals []FundamentalIndicator `json:"fundamentals,omitempty"`
	Technicals   []TechnicalReading     `json:"technicals,omitempty"`
}

// LastPoint returns the most recent history point, if any.
func (i *Instrument) LastPoint() (PricePoint, bool) {
	if len(i.PriceHistory) == 0 {
		return PricePoint{}, false
	}
	return i.PriceHistory[len(i.PriceHistory)-1], true
}

// Clone returns a deep copy that shares no slices with i.
func (i *Instrument) Clone() Instrument {
	c := *i
	c.PriceHistory = append([]PricePoint(nil), i.PriceHistory...)
	c.Indicators = append([]Indicator(nil), i.Indicators...)
	c.Fundamentals = append([]FundamentalIndicator(nil), i.Fundamentals...)
	c.Technicals = append([]TechnicalReading(nil), i.Technicals...)
	return c
}

// Summary is a copy without price history, used for list views.
func (i *Instrument) Summary() Instrument {
	c := i.Clone()
	c.PriceHistory = nil
	return c
}
