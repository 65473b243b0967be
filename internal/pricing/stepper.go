// Package pricing turns indicator readings into discrete price steps.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"marketsim/internal/indicator"
	"marketsim/internal/model"
)

// Params are the stepper's tuning constants. The defaults are demo-tuned,
// not calibrated against any real market.
type Params struct {
	BaseVolatility   float64 `yaml:"base_volatility"`
	MomentumFactor   float64 `yaml:"momentum_factor"`
	MomentumDecay    float64 `yaml:"momentum_decay"`
	SpikeProbability float64 `yaml:"spike_probability"`
	SpikeMagnitude   float64 `yaml:"spike_magnitude"`

	ShortScale       float64 `yaml:"short_scale"`
	MediumScale      float64 `yaml:"medium_scale"`
	LongScale        float64 `yaml:"long_scale"`
	FundamentalScale float64 `yaml:"fundamental_scale"`

	PriceFloor float64 `yaml:"price_floor"`

	VolumeBase             int64   `yaml:"volume_base"`
	VolumeRange            int64   `yaml:"volume_range"`
	VolumeChangeMultiplier float64 `yaml:"volume_change_multiplier"`
}

// DefaultParams returns the default tuning.
func DefaultParams() Params {
	return Params{
		BaseVolatility:   0.0015,
		MomentumFactor:   0.0008,
		MomentumDecay:    0.7,
		SpikeProbability: 0.05,
		SpikeMagnitude:   0.005,

		ShortScale:       0.003,
		MediumScale:      0.0015,
		LongScale:        0.0007,
		FundamentalScale: 0.0004,

		PriceFloor: 0.01,

		VolumeBase:             100_000,
		VolumeRange:            900_000,
		VolumeChangeMultiplier: 100,
	}
}

// Validate rejects parameter sets that break the step contract.
func (p Params) Validate() error {
	switch {
	case p.MomentumDecay <= 0 || p.MomentumDecay >= 1:
		return fmt.Errorf("pricing: momentum decay %.3f outside (0,1)", p.MomentumDecay)
	case p.SpikeProbability < 0 || p.SpikeProbability > 1:
		return fmt.Errorf("pricing: spike probability %.3f outside [0,1]", p.SpikeProbability)
	case p.BaseVolatility < 0, p.MomentumFactor < 0, p.SpikeMagnitude < 0, p.FundamentalScale < 0:
		return errors.New("pricing: volatility, momentum and spike parameters must be non-negative")
	case p.LongScale < 0 || p.ShortScale <= p.MediumScale || p.MediumScale <= p.LongScale:
		return fmt.Errorf("pricing: timeframe scales must satisfy short > medium > long >= 0 (got %g, %g, %g)",
			p.ShortScale, p.MediumScale, p.LongScale)
	case p.PriceFloor <= 0:
		return errors.New("pricing: price floor must be positive")
	case p.VolumeBase < 1 || p.VolumeRange < 0 || p.VolumeChangeMultiplier < 0:
		return errors.New("pricing: volume base must be >= 1 and range, multiplier non-negative")
	}
	return nil
}

// TimeframeScale is the per-step weight multiplier of a horizon.
func (p Params) TimeframeScale(tf model.Timeframe) float64 {
	switch tf {
	case model.TimeframeShort:
		return p.ShortScale
	case model.TimeframeMedium:
		return p.MediumScale
	case model.TimeframeLong:
		return p.LongScale
	}
	return 0
}

// IndicatorEffectBound is the largest |indicator effect| the given sets can
// produce.
func (p Params) IndicatorEffectBound(inds []model.Indicator, funds []model.FundamentalIndicator) float64 {
	var b float64
	for _, ind := range inds {
		b += math.Abs(ind.Weight) * p.TimeframeScale(ind.Timeframe)
	}
	for _, f := range funds {
		b += math.Abs(f.Weight) * p.FundamentalScale * 2
	}
	return b
}

// NonSpikeBound is the largest |total change| a step without a spike can
// produce from the given incoming momentum.
func (p Params) NonSpikeBound(momentum float64, inds []model.Indicator, funds []model.FundamentalIndicator) float64 {
	return p.BaseVolatility/2 + math.Abs(momentum)*p.MomentumDecay + p.MomentumFactor/2 + p.IndicatorEffectBound(inds, funds)
}

// Result is the outcome of one step.
type Result struct {
	Price             float64 // new price, 2 decimals, >= PriceFloor
	Momentum          float64
	Change            float64 // total relative change applied
	Base              float64
	Spike             float64
	Spiked            bool
	IndicatorEffect   float64
	FundamentalEffect float64
	Floored           bool // the raw price was clamped to the floor
}

// Stepper computes price steps. It has no state besides its random source.
type Stepper struct {
	params Params
	rng    indicator.Rand
}

// NewStepper validates params and returns a Stepper drawing from rng.
func NewStepper(params Params, rng indicator.Rand) (*Stepper, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("pricing: nil random source")
	}
	return &Stepper{params: params, rng: rng}, nil
}

// Params returns the stepper's tuning.
func (s *Stepper) Params() Params { return s.params }

// Step computes the next price and momentum. Random draws happen in a fixed
// order (momentum, base, spike) so a seeded source gives identical results.
func (s *Stepper) Step(price, momentum float64, inds []model.Indicator, funds []model.FundamentalIndicator) Result {
	p := s.params
	var r Result

	r.Momentum = momentum*p.MomentumDecay + s.uniform(p.MomentumFactor/2)
	r.Base = s.uniform(p.BaseVolatility / 2)
	if s.rng.Float64() < p.SpikeProbability {
		r.Spiked = true
		r.Spike = s.uniform(p.SpikeMagnitude / 2)
	}
	r.IndicatorEffect = s.indicatorEffect(inds)
	r.FundamentalEffect = s.fundamentalEffect(funds)
	r.Change = r.Base + r.Momentum + r.Spike + r.IndicatorEffect + r.FundamentalEffect

	r.Price, r.Floored = s.applyChange(price, r.Change)
	return r
}

// Volume derives a synthetic traded volume: a uniform base in
// [VolumeBase, VolumeBase+VolumeRange) scaled up by the size of the move.
func (s *Stepper) Volume(change float64) int64 {
	p := s.params
	base := float64(p.VolumeBase) + s.rng.Float64()*float64(p.VolumeRange)
	if math.IsNaN(change) || math.IsInf(change, 0) {
		change = 0
	}
	v := math.Round(base * (1 + math.Abs(change)*p.VolumeChangeMultiplier))
	if v < 1 || math.IsInf(v, 0) {
		return 1
	}
	if v > math.MaxInt64/2 {
		return math.MaxInt64 / 2
	}
	return int64(v)
}

func (s *Stepper) indicatorEffect(inds []model.Indicator) float64 {
	var e float64
	for _, ind := range inds {
		e += indicator.Normalize(ind) * ind.Weight * s.params.TimeframeScale(ind.Timeframe)
	}
	return e
}

func (s *Stepper) fundamentalEffect(funds []model.FundamentalIndicator) float64 {
	var e float64
	for _, f := range funds {
		e += indicator.NormalizeFundamental(f) * f.Weight * s.params.FundamentalScale
	}
	return e
}

func (s *Stepper) applyChange(price, change float64) (float64, bool) {
	floor := s.params.PriceFloor
	if !finite(price) || price < floor {
		price = floor
	}
	raw := price * (1 + change)
	if !finite(raw) {
		return floor, true
	}
	rounded := decimal.NewFromFloat(raw).Round(2).InexactFloat64()
	if rounded < floor {
		return floor, true
	}
	return rounded, false
}

func (s *Stepper) uniform(half float64) float64 {
	return (s.rng.Float64()*2 - 1) * half
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
