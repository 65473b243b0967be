package indicator

// MACD maps the fast/slow EMA spread onto a 0..100 scale: 50 is no spread,
// 75 is a spread of 2% of the last price. The value is clamped.
type MACD struct {
	fast, slow *EMA
	current    float64
}

// NewMACD creates a MACD reading over the given fast and slow periods
// (typically 12 and 26).
func NewMACD(fast, slow int) *MACD {
	return &MACD{fast: NewEMA(fast), slow: NewEMA(slow), current: neutralReading}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(price float64, _ int64) {
	m.fast.Update(price)
	m.slow.Update(price)
	if !m.Ready() || price <= 0 {
		return
	}
	spread := m.fast.Value() - m.slow.Value()
	m.current = clamp(50+spread/(price*0.02)*25, 0, 100)
}

func (m *MACD) Value() float64 { return m.current }
func (m *MACD) Ready() bool    { return m.slow.Ready() }

// Reset clears both averages.
func (m *MACD) Reset() {
	m.fast.Reset()
	m.slow.Reset()
	m.current = neutralReading
}
