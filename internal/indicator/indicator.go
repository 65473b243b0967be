// Package indicator evolves the per-instrument signals that drive prices.
//
// Three families live here:
//   - driving indicators (Bank): bounded values drifting toward random targets;
//   - fundamentals: slow company metrics re-drawn once per simulated quarter;
//   - technicals: RSI, MACD and volume pressure computed from generated history.
//
// Everything that draws random numbers takes a Rand so results are
// reproducible under a seeded source.
package indicator

// Rand is the random source used by the bank and the stepper.
// *math/rand.Rand satisfies it.
type Rand interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
}

// Calculator is a streaming technical indicator fed one price point at a time.
type Calculator interface {
	// Name returns the reading name (e.g. "RSI").
	Name() string

	// Update feeds the next close and volume.
	Update(price float64, volume int64)

	// Value returns the current 0..100 reading. Neutral (50) until Ready.
	Value() float64

	// Ready returns true when enough points have been seen.
	Ready() bool

	// Reset clears accumulated state.
	Reset()
}

// uniform returns a value in [-half, +half).
func uniform(r Rand, half float64) float64 {
	return (r.Float64()*2 - 1) * half
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
