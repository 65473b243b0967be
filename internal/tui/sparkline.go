package tui

import (
	"math"
	"strings"

	"marketsim/internal/model"
)

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// Sparkline renders values as one row of block characters, scaled between
// their min and max. Only the last width values are drawn.
func Sparkline(values []float64, width int) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	var b strings.Builder
	top := len(sparkRunes) - 1
	for _, v := range values {
		idx := top / 2
		if hi > lo {
			idx = int(math.Round((v - lo) / (hi - lo) * float64(top)))
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}

// closes extracts bar closes.
func closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// gauge renders v in [lo, hi] as a fixed-width bar.
func gauge(v, lo, hi float64, width int) string {
	if width <= 0 {
		return ""
	}
	frac := 0.5
	if hi > lo {
		frac = (v - lo) / (hi - lo)
	}
	frac = math.Max(0, math.Min(1, frac))
	filled := int(math.Round(frac * float64(width)))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
