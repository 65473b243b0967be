package pricing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/indicator"
	"marketsim/internal/model"
)

// constRand always returns v.
type constRand float64

func (c constRand) Float64() float64 { return float64(c) }

func defaultIndicators(t *testing.T, seed int64) []model.Indicator {
	t.Helper()
	b, err := indicator.NewBank(indicator.DefaultBankParams(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	inds, err := b.Initialize(indicator.DefaultSpecs())
	require.NoError(t, err)
	return inds
}

func newStepper(t *testing.T, p Params, r indicator.Rand) *Stepper {
	t.Helper()
	s, err := NewStepper(p, r)
	require.NoError(t, err)
	return s
}

func TestDefaultParams_ScaleOrdering(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())
	assert.Greater(t, p.TimeframeScale(model.TimeframeShort), p.TimeframeScale(model.TimeframeMedium))
	assert.Greater(t, p.TimeframeScale(model.TimeframeMedium), p.TimeframeScale(model.TimeframeLong))
}

func TestParams_ValidateRejects(t *testing.T) {
	mutate := []func(*Params){
		func(p *Params) { p.MomentumDecay = 1 },
		func(p *Params) { p.SpikeProbability = 1.5 },
		func(p *Params) { p.BaseVolatility = -1 },
		func(p *Params) { p.LongScale = p.ShortScale * 2 },
		func(p *Params) { p.MediumScale, p.LongScale = p.ShortScale, p.ShortScale },
		func(p *Params) { p.LongScale = p.MediumScale },
		func(p *Params) { p.PriceFloor = 0 },
		func(p *Params) { p.VolumeBase = 0 },
	}
	for i, m := range mutate {
		p := DefaultParams()
		m(&p)
		assert.Error(t, p.Validate(), "case %d", i)
	}
	_, err := NewStepper(DefaultParams(), nil)
	assert.Error(t, err)
}

func TestStep_Deterministic(t *testing.T) {
	inds := defaultIndicators(t, 1)
	run := func() []Result {
		s := newStepper(t, DefaultParams(), rand.New(rand.NewSource(99)))
		price, mom := 100.0, 0.0
		out := make([]Result, 0, 1000)
		for i := 0; i < 1000; i++ {
			r := s.Step(price, mom, inds, nil)
			price, mom = r.Price, r.Momentum
			out = append(out, r)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestStep_RoundsToCents(t *testing.T) {
	s := newStepper(t, DefaultParams(), rand.New(rand.NewSource(4)))
	inds := defaultIndicators(t, 4)
	price, mom := 123.45, 0.0
	for i := 0; i < 5000; i++ {
		r := s.Step(price, mom, inds, nil)
		cents := r.Price * 100
		if math.Abs(cents-math.Round(cents)) > 1e-6 {
			t.Fatalf("step %d: price %.10f not rounded to 2 decimals", i, r.Price)
		}
		price, mom = r.Price, r.Momentum
	}
}

func TestStep_PriceStaysPositive(t *testing.T) {
	p := DefaultParams()
	p.BaseVolatility = 4 // a single draw of 0 gives a -200% move
	s := newStepper(t, p, constRand(0))

	r := s.Step(5, 0, nil, nil)
	assert.True(t, r.Floored)
	assert.Equal(t, p.PriceFloor, r.Price)

	// Non-finite input prices recover to the floor as well.
	s = newStepper(t, DefaultParams(), constRand(0.5))
	r = s.Step(math.NaN(), 0, nil, nil)
	assert.Greater(t, r.Price, 0.0)
	r = s.Step(math.Inf(1), 0, nil, nil)
	assert.Greater(t, r.Price, 0.0)
	assert.False(t, math.IsInf(r.Price, 0))
}

func TestStep_RandomWalkNeverNonPositive(t *testing.T) {
	s := newStepper(t, DefaultParams(), rand.New(rand.NewSource(21)))
	b, err := indicator.NewBank(indicator.DefaultBankParams(), rand.New(rand.NewSource(21)))
	require.NoError(t, err)
	inds, err := b.Initialize(indicator.DefaultSpecs())
	require.NoError(t, err)

	price, mom := 1.0, 0.0
	for i := 0; i < 50000; i++ {
		inds = b.Advance(inds)
		r := s.Step(price, mom, inds, nil)
		if !(r.Price > 0) {
			t.Fatalf("step %d: non-positive price %v", i, r.Price)
		}
		price, mom = r.Price, r.Momentum
	}
}

func TestStep_MomentumDecay(t *testing.T) {
	// constRand(0.5) makes every uniform draw exactly zero and never spikes.
	s := newStepper(t, DefaultParams(), constRand(0.5))
	r := s.Step(100, 0.01, nil, nil)
	assert.InDelta(t, 0.007, r.Momentum, 1e-12)
	assert.False(t, r.Spiked)
	assert.InDelta(t, 0.007, r.Change, 1e-12)
	assert.Equal(t, 100.7, r.Price)
}

func TestStep_IndicatorEffect(t *testing.T) {
	p := DefaultParams()
	s := newStepper(t, p, constRand(0.5))
	inds := []model.Indicator{
		{Name: "s", Min: 0, Max: 100, Value: 100, Weight: 0.5, Timeframe: model.TimeframeShort},
		{Name: "l", Min: 0, Max: 100, Value: 0, Weight: 0.5, Timeframe: model.TimeframeLong},
	}
	r := s.Step(100, 0, inds, nil)
	want := 0.5*p.ShortScale - 0.5*p.LongScale
	assert.InDelta(t, want, r.IndicatorEffect, 1e-12)
	assert.LessOrEqual(t, math.Abs(r.IndicatorEffect), p.IndicatorEffectBound(inds, nil))
}

func TestStep_FundamentalEffect(t *testing.T) {
	p := DefaultParams()
	s := newStepper(t, p, constRand(0.5))
	funds := []model.FundamentalIndicator{
		{Name: "debt", Min: 0, Max: 3, Neutral: 1, Value: 3, Weight: 1, Reversed: true},
	}
	r := s.Step(100, 0, nil, funds)
	assert.Less(t, r.FundamentalEffect, 0.0)
	assert.LessOrEqual(t, math.Abs(r.FundamentalEffect), p.IndicatorEffectBound(nil, funds))
}

func TestStep_SpikeFrequency(t *testing.T) {
	const n = 200_000
	p := DefaultParams()
	s := newStepper(t, p, rand.New(rand.NewSource(2024)))
	inds := defaultIndicators(t, 2024)
	bound := p.NonSpikeBound(0, inds, nil)

	var spikes, exceed int
	for i := 0; i < n; i++ {
		r := s.Step(100, 0, inds, nil)
		if r.Spiked {
			spikes++
		} else if math.Abs(r.Change) > bound+1e-12 {
			t.Fatalf("step %d: non-spike change %.6f exceeds bound %.6f", i, r.Change, bound)
		}
		if math.Abs(r.Change) > bound {
			exceed++
		}
	}

	freq := float64(spikes) / n
	sigma := math.Sqrt(p.SpikeProbability * (1 - p.SpikeProbability) / n)
	assert.InDelta(t, p.SpikeProbability, freq, 5*sigma)

	// Only spikes can cross the bound, and not every spike does.
	exceedFreq := float64(exceed) / n
	assert.Greater(t, exceedFreq, 0.0)
	assert.LessOrEqual(t, exceedFreq, freq)
}

func TestVolume(t *testing.T) {
	s := newStepper(t, DefaultParams(), constRand(0.5))
	calm := s.Volume(0)
	busy := s.Volume(0.01)
	assert.Equal(t, int64(550_000), calm)
	assert.Greater(t, busy, calm)
	assert.Equal(t, s.Volume(-0.01), busy)
	assert.GreaterOrEqual(t, s.Volume(math.NaN()), int64(1))

	rs := newStepper(t, DefaultParams(), rand.New(rand.NewSource(8)))
	for i := 0; i < 10000; i++ {
		v := rs.Volume(0)
		if v < 100_000 || v > 1_000_000 {
			t.Fatalf("volume %d outside base range", v)
		}
	}
}
