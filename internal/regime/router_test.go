package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapeflow/internal/execution"
	"tapeflow/internal/types"
)

func testSession(t *testing.T) *execution.Session {
	t.Helper()
	s := execution.DefaultSession("MES")
	require.NoError(t, s.Validate())
	return s
}

func testRouter(t *testing.T, s *execution.Session) *Router {
	t.Helper()
	r, err := NewRouter(DefaultConfig(), s, nil)
	require.NoError(t, err)
	// Mid-morning, inside trading hours and clear of the lunch window.
	r.SetClock(func() time.Time {
		return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	})
	return r
}

func signal(pattern types.Pattern, dir types.Direction, strength float64) types.Signal {
	return types.Signal{
		Timestamp: time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC),
		Symbol:    "MES",
		Pattern:   pattern,
		Direction: dir,
		Strength:  strength,
		Price:     100.0,
	}
}

func TestRouterApprovesAlignedSignal(t *testing.T) {
	r := testRouter(t, testSession(t))
	r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8, BarsInRegime: 5}

	out := r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.8))
	assert.True(t, out.Approved)
	assert.Equal(t, types.RejectNone, out.RejectReason)
	assert.Equal(t, types.RegimeTrendingUp, out.Regime)
}

func TestRouterRejectionReasons(t *testing.T) {
	t.Run("low strength", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}
		out := r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.3))
		assert.False(t, out.Approved)
		assert.Equal(t, types.RejectLowStrength, out.RejectReason)
	})

	t.Run("low confidence", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.2}
		out := r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.8))
		assert.False(t, out.Approved)
		assert.Equal(t, types.RejectLowConfidence, out.RejectReason)
	})

	t.Run("outside hours", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}
		r.SetClock(func() time.Time {
			return time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC)
		})
		out := r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.8))
		assert.False(t, out.Approved)
		assert.Equal(t, types.RejectOutsideHours, out.RejectReason)
	})

	t.Run("lunch window", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}
		r.SetClock(func() time.Time {
			return time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)
		})
		out := r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.8))
		assert.Equal(t, types.RejectOutsideHours, out.RejectReason)
	})

	t.Run("counter-trend short in uptrend", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}
		out := r.Evaluate(signal(types.PatternStackedSellImbalance, types.DirectionShort, 0.8))
		assert.False(t, out.Approved)
		assert.Equal(t, types.RejectRegimeConflict, out.RejectReason)
	})

	t.Run("pattern disabled in regime", func(t *testing.T) {
		r := testRouter(t, testSession(t))
		r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}
		out := r.Evaluate(signal(types.PatternUnfinishedHigh, types.DirectionLong, 0.8))
		assert.Equal(t, types.RejectRegimeConflict, out.RejectReason)
	})
}

func TestRouterMeanReversionAllowance(t *testing.T) {
	s := testSession(t)
	s.AllowMeanReversion = true
	r := testRouter(t, s)
	r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}

	out := r.Evaluate(signal(types.PatternStackedSellImbalance, types.DirectionShort, 0.8))
	assert.True(t, out.Approved)
}

func TestRouterGateOrder(t *testing.T) {
	// A signal failing several gates reports the first one.
	r := testRouter(t, testSession(t))
	r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.1}
	r.SetClock(func() time.Time {
		return time.Date(2025, 3, 14, 7, 0, 0, 0, time.UTC)
	})
	out := r.Evaluate(signal(types.PatternStackedSellImbalance, types.DirectionShort, 0.1))
	assert.Equal(t, types.RejectLowStrength, out.RejectReason)
}

func TestRouterSizeMultiplier(t *testing.T) {
	r := testRouter(t, testSession(t))

	r.state = types.RegimeState{Label: types.RegimeTrendingUp}
	assert.Equal(t, 1.0, r.SizeMultiplier())
	r.state = types.RegimeState{Label: types.RegimeRanging}
	assert.Equal(t, 0.75, r.SizeMultiplier())
	r.state = types.RegimeState{Label: types.RegimeUncertain}
	assert.Equal(t, 0.25, r.SizeMultiplier())
}

func TestRouterStateCounters(t *testing.T) {
	r := testRouter(t, testSession(t))
	r.state = types.RegimeState{Label: types.RegimeTrendingUp, Confidence: 0.8}

	r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.8))
	r.Evaluate(signal(types.PatternStackedBuyImbalance, types.DirectionLong, 0.1))

	state := r.State()
	assert.Equal(t, int64(2), state["evaluated"])
	assert.Equal(t, int64(1), state["approved"])
	rejects := state["rejected"].(map[string]int64)
	assert.Equal(t, int64(1), rejects[string(types.RejectLowStrength)])
}
