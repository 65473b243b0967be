package indicator

import (
	"fmt"
	"time"

	"marketsim/internal/model"
)

// FundamentalSpec is the static definition of a fundamental metric.
type FundamentalSpec struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Weight      float64 `yaml:"weight"`
	Min         float64 `yaml:"min"`
	Max         float64 `yaml:"max"`
	Neutral     float64 `yaml:"neutral"`
	Reversed    bool    `yaml:"reversed"`
}

// Validate checks range ordering and that neutral lies inside it.
func (s FundamentalSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("fundamental: name is required")
	}
	if s.Min >= s.Max {
		return fmt.Errorf("fundamental %s: min %.2f must be below max %.2f", s.Name, s.Min, s.Max)
	}
	if s.Neutral < s.Min || s.Neutral > s.Max {
		return fmt.Errorf("fundamental %s: neutral %.2f outside [%.2f, %.2f]", s.Name, s.Neutral, s.Min, s.Max)
	}
	if s.Weight < 0 {
		return fmt.Errorf("fundamental %s: negative weight", s.Name)
	}
	return nil
}

const (
	fundamentalInitialSpread = 0.2 // of range, around neutral
	fundamentalQuarterStep   = 0.1 // of range, per quarter
)

// InitializeFundamentals draws starting values near each neutral point.
func InitializeFundamentals(rng Rand, specs []FundamentalSpec) ([]model.FundamentalIndicator, error) {
	out := make([]model.FundamentalIndicator, 0, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		span := s.Max - s.Min
		out = append(out, model.FundamentalIndicator{
			Name:        s.Name,
			Description: s.Description,
			Value:       clamp(s.Neutral+uniform(rng, span*fundamentalInitialSpread/2), s.Min, s.Max),
			Min:         s.Min,
			Max:         s.Max,
			Neutral:     s.Neutral,
			Weight:      s.Weight,
			Reversed:    s.Reversed,
		})
	}
	return out, nil
}

// UpdateFundamentals re-draws every metric by up to ±5% of its range.
func UpdateFundamentals(rng Rand, in []model.FundamentalIndicator) []model.FundamentalIndicator {
	out := make([]model.FundamentalIndicator, len(in))
	for i, f := range in {
		span := f.Max - f.Min
		f.Value = clamp(f.Value+uniform(rng, span*fundamentalQuarterStep/2), f.Min, f.Max)
		out[i] = f
	}
	return out
}

// NormalizeFundamental maps the value to roughly [-2, 2] around neutral,
// positive meaning supportive of the price. Reversed metrics are mirrored.
func NormalizeFundamental(f model.FundamentalIndicator) float64 {
	span := f.Max - f.Min
	if span <= 0 {
		return 0
	}
	v := (f.Value - f.Min) / span
	n := (f.Neutral - f.Min) / span
	if f.Reversed {
		v, n = 1-v, 1-n
	}
	return (v - n) * 2
}

// Quarter identifies a calendar quarter, used to detect quarter rollover
// in simulated time.
func Quarter(t time.Time) int {
	return t.Year()*4 + (int(t.Month())-1)/3
}
