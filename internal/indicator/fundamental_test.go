package indicator

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

func TestFundamentals_InitializeAndUpdateStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	fs, err := InitializeFundamentals(rng, DefaultFundamentals())
	require.NoError(t, err)
	require.Len(t, fs, 5)

	for _, f := range fs {
		span := f.Max - f.Min
		assert.InDelta(t, f.Neutral, f.Value, span*0.1+1e-9, f.Name)
	}

	for q := 0; q < 400; q++ {
		fs = UpdateFundamentals(rng, fs)
		for _, f := range fs {
			if f.Value < f.Min || f.Value > f.Max {
				t.Fatalf("quarter %d: %s = %.3f outside [%.1f,%.1f]", q, f.Name, f.Value, f.Min, f.Max)
			}
		}
	}
}

func TestNormalizeFundamental_Reversed(t *testing.T) {
	debt := model.FundamentalIndicator{Min: 0, Max: 3, Neutral: 1, Reversed: true}

	debt.Value = 1
	assert.InDelta(t, 0.0, NormalizeFundamental(debt), 1e-9)

	debt.Value = 2.5 // heavy debt is bad news
	assert.Less(t, NormalizeFundamental(debt), 0.0)

	growth := model.FundamentalIndicator{Min: -20, Max: 40, Neutral: 5, Value: 20}
	assert.InDelta(t, 0.5, NormalizeFundamental(growth), 1e-9)
}

func TestFundamentalSpec_Validate(t *testing.T) {
	assert.Error(t, FundamentalSpec{Name: "x", Min: 1, Max: 1}.Validate())
	assert.Error(t, FundamentalSpec{Name: "x", Min: 0, Max: 10, Neutral: 11}.Validate())
	assert.NoError(t, FundamentalSpec{Name: "x", Min: 0, Max: 10, Neutral: 5}.Validate())
}

func TestQuarter(t *testing.T) {
	q1 := Quarter(time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC))
	q2 := Quarter(time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, q1+1, q2)
	assert.Equal(t, q1, Quarter(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
}
