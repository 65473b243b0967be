package indicator

import (
	"errors"
	"fmt"
	"math"

	"marketsim/internal/model"
)

// Spec is the static configuration of one driving indicator.
type Spec struct {
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Weight      float64         `yaml:"weight"`
	Timeframe   model.Timeframe `yaml:"timeframe"`
	Volatility  float64         `yaml:"volatility"`
	ChangeSpeed float64         `yaml:"change_speed"` // 0 picks a per-timeframe default
	Min         float64         `yaml:"min"`
	Max         float64         `yaml:"max"` // Min == Max == 0 means [0, 100]
}

// Default approach speeds, fraction of the gap closed per tick.
var defaultChangeSpeed = map[model.Timeframe]float64{
	model.TimeframeShort:  0.1,
	model.TimeframeMedium: 0.05,
	model.TimeframeLong:   0.03,
}

// Normalised fills range and change-speed defaults.
func (s Spec) Normalised() Spec {
	if s.Min == 0 && s.Max == 0 {
		s.Max = 100
	}
	if s.ChangeSpeed == 0 {
		s.ChangeSpeed = defaultChangeSpeed[s.Timeframe]
	}
	return s
}

// Validate checks a normalised spec.
func (s Spec) Validate() error {
	switch {
	case s.Name == "":
		return errors.New("indicator: name is required")
	case !s.Timeframe.Valid():
		return fmt.Errorf("indicator %s: unknown timeframe %q", s.Name, s.Timeframe)
	case s.Min >= s.Max:
		return fmt.Errorf("indicator %s: min %.2f must be below max %.2f", s.Name, s.Min, s.Max)
	case s.Weight < 0 || math.IsNaN(s.Weight):
		return fmt.Errorf("indicator %s: negative weight", s.Name)
	case s.Volatility < 0:
		return fmt.Errorf("indicator %s: negative volatility", s.Name)
	case s.ChangeSpeed <= 0 || s.ChangeSpeed > 1:
		return fmt.Errorf("indicator %s: change speed %.3f outside (0,1]", s.Name, s.ChangeSpeed)
	}
	return nil
}

// BankParams tunes the indicator random walk. Noise and retarget distances
// are expressed per 100 units of range so they scale with custom bounds.
type BankParams struct {
	Damping           float64 `yaml:"damping"`            // multiplies ChangeSpeed
	NoiseScale        float64 `yaml:"noise_scale"`        // k: noise is U(±Volatility*k)
	RetargetThreshold float64 `yaml:"retarget_threshold"` // |target-value| below this picks a new target
	RetargetSpread    float64 `yaml:"retarget_spread"`    // new target = value + U(±½)*Volatility*100*spread
	InitialSpread     float64 `yaml:"initial_spread"`     // initial value = mid ± spread
}

// DefaultBankParams returns the tuning used by the default catalogue.
func DefaultBankParams() BankParams {
	return BankParams{
		Damping:           1,
		NoiseScale:        2.5,
		RetargetThreshold: 1,
		RetargetSpread:    3,
		InitialSpread:     5,
	}
}

// Validate rejects parameters that would stall or explode the walk.
func (p BankParams) Validate() error {
	switch {
	case p.Damping <= 0 || p.Damping > 1:
		return fmt.Errorf("indicator: damping %.3f outside (0,1]", p.Damping)
	case p.NoiseScale < 0, p.RetargetSpread < 0, p.InitialSpread < 0:
		return errors.New("indicator: noise and spread must be non-negative")
	case p.RetargetThreshold <= 0:
		return errors.New("indicator: retarget threshold must be positive")
	}
	return nil
}

// Bank initializes and advances driving indicators. It holds no per-
// instrument state; the random source is the only dependency.
type Bank struct {
	params BankParams
	rng    Rand
}

// NewBank returns a Bank using rng for every draw.
func NewBank(params BankParams, rng Rand) (*Bank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, errors.New("indicator: nil random source")
	}
	return &Bank{params: params, rng: rng}, nil
}

// Initialize creates the indicator set for one instrument.
// Values start near the middle of the range; targets are a perturbation.
func (b *Bank) Initialize(specs []Spec) ([]model.Indicator, error) {
	out := make([]model.Indicator, 0, len(specs))
	for _, raw := range specs {
		s := raw.Normalised()
		if err := s.Validate(); err != nil {
			return nil, err
		}
		ind := model.Indicator{
			Name:        s.Name,
			Description: s.Description,
			Min:         s.Min,
			Max:         s.Max,
			Weight:      s.Weight,
			Timeframe:   s.Timeframe,
			ChangeSpeed: s.ChangeSpeed,
			Volatility:  s.Volatility,
		}
		span := ind.Span()
		ind.Value = clamp(ind.Mid()+uniform(b.rng, b.params.InitialSpread*span/100), s.Min, s.Max)
		ind.TargetValue = b.newTarget(ind, ind.Value)
		ind.Trend = trend(ind)
		out = append(out, ind)
	}
	return out, nil
}

// Advance returns the next state of every indicator. The input slice is
// not modified.
func (b *Bank) Advance(inds []model.Indicator) []model.Indicator {
	out := make([]model.Indicator, len(inds))
	for i, ind := range inds {
		scale := ind.Span() / 100
		diff := ind.TargetValue - ind.Value
		noise := uniform(b.rng, ind.Volatility*b.params.NoiseScale*scale)

		next := ind
		next.Value = clamp(ind.Value+diff*ind.ChangeSpeed*b.params.Damping+noise, ind.Min, ind.Max)
		if math.IsNaN(next.Value) {
			next.Value = ind.Mid()
		}
		if math.Abs(diff) < b.params.RetargetThreshold*scale {
			next.TargetValue = b.newTarget(ind, next.Value)
		}
		next.Trend = trend(next)
		out[i] = next
	}
	return out
}

func (b *Bank) newTarget(ind model.Indicator, from float64) float64 {
	spread := ind.Volatility * ind.Span() * b.params.RetargetSpread
	return clamp(from+uniform(b.rng, spread/2), ind.Min, ind.Max)
}

// trend is the signed distance to target as a fraction of half the range.
func trend(ind model.Indicator) float64 {
	half := ind.Span() / 2
	if half == 0 {
		return 0
	}
	return clamp((ind.TargetValue-ind.Value)/half, -1, 1)
}

// Normalize maps an indicator value onto [-1, 1] around its mid-point.
func Normalize(ind model.Indicator) float64 {
	half := ind.Span() / 2
	if half <= 0 {
		return 0
	}
	return clamp((ind.Value-ind.Mid())/half, -1, 1)
}
