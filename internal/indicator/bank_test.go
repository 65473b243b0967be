package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketsim/internal/model"
)

func newTestBank(t *testing.T, seed int64) *Bank {
	t.Helper()
	b, err := NewBank(DefaultBankParams(), rand.New(rand.NewSource(seed)))
	require.NoError(t, err)
	return b
}

func TestBank_InitializeNearMid(t *testing.T) {
	b := newTestBank(t, 1)
	inds, err := b.Initialize(DefaultSpecs())
	require.NoError(t, err)
	require.Len(t, inds, 7)

	for _, ind := range inds {
		assert.GreaterOrEqual(t, ind.Value, 45.0, ind.Name)
		assert.LessOrEqual(t, ind.Value, 55.0, ind.Name)
		assert.GreaterOrEqual(t, ind.TargetValue, 0.0, ind.Name)
		assert.LessOrEqual(t, ind.TargetValue, 100.0, ind.Name)
		assert.Greater(t, ind.ChangeSpeed, 0.0, ind.Name)
	}
	assert.Equal(t, 0.1, inds[0].ChangeSpeed)  // short
	assert.Equal(t, 0.05, inds[2].ChangeSpeed) // medium
	assert.Equal(t, 0.03, inds[6].ChangeSpeed) // long
}

func TestBank_InitializeRejectsBadSpec(t *testing.T) {
	b := newTestBank(t, 1)

	_, err := b.Initialize([]Spec{{Name: "x", Timeframe: "hourly", Weight: 0.1}})
	assert.Error(t, err)

	_, err = b.Initialize([]Spec{{Name: "x", Timeframe: model.TimeframeShort, Min: 10, Max: 10}})
	assert.Error(t, err)
}

func TestBank_AdvanceStaysInBounds(t *testing.T) {
	b := newTestBank(t, 7)
	specs := append(DefaultSpecs(), Spec{
		Name: "Narrow", Timeframe: model.TimeframeShort, Weight: 0.1,
		Volatility: 5, Min: 35, Max: 65,
	})
	inds, err := b.Initialize(specs)
	require.NoError(t, err)

	for i := 0; i < 20000; i++ {
		inds = b.Advance(inds)
		for _, ind := range inds {
			if ind.Value < ind.Min || ind.Value > ind.Max || math.IsNaN(ind.Value) {
				t.Fatalf("step %d: %s value %.4f outside [%.0f,%.0f]", i, ind.Name, ind.Value, ind.Min, ind.Max)
			}
			if ind.TargetValue < ind.Min || ind.TargetValue > ind.Max {
				t.Fatalf("step %d: %s target %.4f outside bounds", i, ind.Name, ind.TargetValue)
			}
			if ind.Trend < -1 || ind.Trend > 1 {
				t.Fatalf("step %d: %s trend %.4f outside [-1,1]", i, ind.Name, ind.Trend)
			}
		}
	}
}

func TestBank_AdvanceDoesNotMutateInput(t *testing.T) {
	b := newTestBank(t, 3)
	inds, err := b.Initialize(DefaultSpecs())
	require.NoError(t, err)
	before := append([]model.Indicator(nil), inds...)

	_ = b.Advance(inds)
	assert.Equal(t, before, inds)
}

func TestBank_AdvanceMovesTowardTarget(t *testing.T) {
	params := DefaultBankParams()
	params.NoiseScale = 0
	b, err := NewBank(params, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	in := []model.Indicator{{
		Name: "t", Min: 0, Max: 100, Value: 40, TargetValue: 60,
		ChangeSpeed: 0.1, Timeframe: model.TimeframeShort,
	}}
	out := b.Advance(in)
	assert.InDelta(t, 42.0, out[0].Value, 1e-9)
	assert.Equal(t, 60.0, out[0].TargetValue)
	assert.Greater(t, out[0].Trend, 0.0)
}

func TestBank_RetargetsWhenReached(t *testing.T) {
	b := newTestBank(t, 5)
	in := []model.Indicator{{
		Name: "t", Min: 0, Max: 100, Value: 50, TargetValue: 50.5,
		ChangeSpeed: 0.1, Volatility: 0.2, Timeframe: model.TimeframeShort,
	}}
	out := b.Advance(in)
	assert.NotEqual(t, 50.5, out[0].TargetValue)
	// U(±½)·vol·span·spread = ±30 around the new value.
	assert.InDelta(t, out[0].Value, out[0].TargetValue, 30.0)
}

func TestBank_Deterministic(t *testing.T) {
	run := func() []model.Indicator {
		b := newTestBank(t, 42)
		inds, err := b.Initialize(DefaultSpecs())
		require.NoError(t, err)
		for i := 0; i < 500; i++ {
			inds = b.Advance(inds)
		}
		return inds
	}
	assert.Equal(t, run(), run())
}

func TestNormalize(t *testing.T) {
	ind := model.Indicator{Min: 0, Max: 100}
	ind.Value = 50
	assert.Equal(t, 0.0, Normalize(ind))
	ind.Value = 100
	assert.Equal(t, 1.0, Normalize(ind))
	ind.Value = 0
	assert.Equal(t, -1.0, Normalize(ind))

	narrow := model.Indicator{Min: 35, Max: 65, Value: 57.5}
	assert.InDelta(t, 0.5, Normalize(narrow), 1e-9)
}

func TestBankParams_Validate(t *testing.T) {
	p := DefaultBankParams()
	require.NoError(t, p.Validate())

	p.Damping = 0
	assert.Error(t, p.Validate())

	p = DefaultBankParams()
	p.RetargetThreshold = 0
	assert.Error(t, p.Validate())

	_, err := NewBank(DefaultBankParams(), nil)
	assert.Error(t, err)
}
