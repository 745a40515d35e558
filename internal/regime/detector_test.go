package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapeflow/internal/types"
)

func trendingUpInputs() Inputs {
	return Inputs{
		ADX:         40,
		PlusDI:      30,
		MinusDI:     10,
		EMAFast:     101,
		EMASlow:     100,
		PriceVsVWAP: 0.5,
		DeltaSlope:  5,
		Ready:       true,
	}
}

func TestDetectorConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.ADXTrendThreshold = 10
	assert.Error(t, bad.Validate())

	bad = DefaultConfig()
	bad.ATRHighPercentile = 1.5
	assert.Error(t, bad.Validate())

	// A window inside the indicator warm-up would never produce a ready
	// snapshot; reject it instead of silently widening it.
	bad = DefaultConfig()
	bad.HistoryBars = 20
	assert.Error(t, bad.Validate())
}

func TestDetectorUncertainUntilReady(t *testing.T) {
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	state := d.Classify(Inputs{})
	assert.Equal(t, types.RegimeUncertain, state.Label)
	assert.Zero(t, state.Confidence)
}

func TestDetectorTrendingUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 1
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	state := d.Classify(trendingUpInputs())
	assert.Equal(t, types.RegimeTrendingUp, state.Label)
	// (40-25)/25 = 0.6 plus the delta-slope agreement boost.
	assert.InDelta(t, 0.75, state.Confidence, 1e-9)
}

func TestDetectorTrendingDown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 1
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	in := Inputs{
		ADX:         30,
		PlusDI:      10,
		MinusDI:     30,
		EMAFast:     99,
		EMASlow:     100,
		PriceVsVWAP: -0.5,
		DeltaSlope:  -5,
		Ready:       true,
	}
	state := d.Classify(in)
	assert.Equal(t, types.RegimeTrendingDown, state.Label)
	assert.Positive(t, state.Confidence)
}

func TestDetectorStrongADXWithMixedBiasIsUncertain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 1
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	in := trendingUpInputs()
	in.PriceVsVWAP = -1 // tape disagrees with the directional movement
	state := d.Classify(in)
	assert.Equal(t, types.RegimeUncertain, state.Label)
}

func TestDetectorRanging(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 1
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	in := Inputs{ADX: 10, ATRPercentile: 0.3, Ready: true}
	state := d.Classify(in)
	assert.Equal(t, types.RegimeRanging, state.Label)
	assert.InDelta(t, 0.5, state.Confidence, 1e-9)
}

func TestDetectorWeakADXHighVolatilityIsUncertain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 1
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	in := Inputs{ADX: 10, ATRPercentile: 0.95, Ready: true}
	state := d.Classify(in)
	assert.Equal(t, types.RegimeUncertain, state.Label)
}

func TestDetectorConfidenceHeldUntilMinBars(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 3
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	in := trendingUpInputs()
	state := d.Classify(in)
	assert.Equal(t, types.RegimeTrendingUp, state.Label)
	assert.Zero(t, state.Confidence, "first bar in a new regime must not carry confidence")
	assert.Equal(t, 1, state.BarsInRegime)

	state = d.Classify(in)
	assert.Zero(t, state.Confidence)

	state = d.Classify(in)
	assert.Equal(t, 3, state.BarsInRegime)
	assert.Positive(t, state.Confidence)
}

func TestDetectorRegimeFlipResetsBars(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinBarsInRegime = 2
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	up := trendingUpInputs()
	d.Classify(up)
	d.Classify(up)
	state := d.Classify(Inputs{ADX: 10, ATRPercentile: 0.3, Ready: true})
	assert.Equal(t, types.RegimeRanging, state.Label)
	assert.Equal(t, 1, state.BarsInRegime)
	assert.Zero(t, state.Confidence)
}
