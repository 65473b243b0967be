package indicator

import "marketsim/internal/model"

// DefaultSpecs returns the seven market indicators every default instrument
// carries. All use the [0, 100] range with 50 as neutral.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			Name:        "RSI (Relative Strength Index)",
			Description: "Momentum oscillator; above 70 suggests overbought, below 30 oversold.",
			Weight:      0.15,
			Timeframe:   model.TimeframeShort,
			Volatility:  0.2,
		},
		{
			Name:        "Volume Pressure",
			Description: "Buying versus selling pressure inferred from traded volume.",
			Weight:      0.15,
			Timeframe:   model.TimeframeShort,
			Volatility:  0.25,
		},
		{
			Name:        "MACD Signal",
			Description: "Trend-following signal from the spread of two moving averages.",
			Weight:      0.15,
			Timeframe:   model.TimeframeMedium,
			Volatility:  0.15,
		},
		{
			Name:        "Market Sentiment",
			Description: "Aggregate investor mood from news and social activity.",
			Weight:      0.1,
			Timeframe:   model.TimeframeShort,
			Volatility:  0.3,
		},
		{
			Name:        "Sector Trend",
			Description: "Direction of the instrument's sector as a whole.",
			Weight:      0.15,
			Timeframe:   model.TimeframeMedium,
			Volatility:  0.1,
		},
		{
			Name:        "Institutional Money Flow",
			Description: "Net positioning of large funds.",
			Weight:      0.15,
			Timeframe:   model.TimeframeMedium,
			Volatility:  0.12,
		},
		{
			Name:        "Economic Context",
			Description: "Macro backdrop: rates, inflation, growth.",
			Weight:      0.15,
			Timeframe:   model.TimeframeLong,
			Volatility:  0.08,
		},
	}
}

// DefaultFundamentals returns the five company metrics. Debt ratio is
// reversed: a higher value weighs on the price.
func DefaultFundamentals() []FundamentalSpec {
	return []FundamentalSpec{
		{Name: "Revenue Growth", Description: "Year-over-year revenue growth, percent.", Weight: 0.25, Min: -20, Max: 40, Neutral: 5},
		{Name: "Profit Margin", Description: "Net margin, percent.", Weight: 0.2, Min: -10, Max: 40, Neutral: 10},
		{Name: "Market Share", Description: "Share of the addressable market, percent.", Weight: 0.2, Min: 0, Max: 50, Neutral: 15},
		{Name: "Innovation Score", Description: "R&D output relative to peers.", Weight: 0.15, Min: 0, Max: 100, Neutral: 50},
		{Name: "Debt Ratio", Description: "Debt to equity.", Weight: 0.2, Min: 0, Max: 3, Neutral: 1, Reversed: true},
	}
}
