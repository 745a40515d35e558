package regime

import (
	"fmt"
	"sync"
	"time"

	"tapeflow/internal/execution"
	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// profile is the per-regime trading posture: which patterns stay live,
// the base size multiplier, and the directional bias enforced against
// counter-trend signals.
type profile struct {
	sizeMultiplier float64
	disabled       map[types.Pattern]bool
	bias           types.Direction
}

var regimeProfiles = map[types.RegimeLabel]profile{
	types.RegimeTrendingUp: {
		sizeMultiplier: 1.0,
		bias:           types.DirectionLong,
		disabled: map[types.Pattern]bool{
			types.PatternUnfinishedHigh: true,
			types.PatternUnfinishedLow:  true,
		},
	},
	types.RegimeTrendingDown: {
		sizeMultiplier: 1.0,
		bias:           types.DirectionShort,
		disabled: map[types.Pattern]bool{
			types.PatternUnfinishedHigh: true,
			types.PatternUnfinishedLow:  true,
		},
	},
	types.RegimeRanging: {
		sizeMultiplier: 0.75,
		disabled: map[types.Pattern]bool{
			types.PatternBuyImbalance:  true,
			types.PatternSellImbalance: true,
		},
	},
	types.RegimeUncertain: {
		sizeMultiplier: 0.25,
		disabled: map[types.Pattern]bool{
			types.PatternBuyImbalance:      true,
			types.PatternSellImbalance:     true,
			types.PatternBullishDivergence: true,
			types.PatternBearishDivergence: true,
		},
	},
}

// Router classifies completed bars and screens signals against the
// session's approval gates plus the per-regime posture.
type Router struct {
	mu sync.Mutex

	session  *execution.Session
	calc     *Calculator
	detector *Detector
	state    types.RegimeState

	evaluated int64
	approved  int64
	rejected  map[types.RejectReason]int64

	now func() time.Time
}

// NewRouter wires the classifier to the session gates. deltaSlope feeds
// the order-flow confirmation into the classifier; nil disables it.
func NewRouter(cfg Config, session *execution.Session, deltaSlope func() float64) (*Router, error) {
	if session == nil {
		return nil, fmt.Errorf("regime: session is required")
	}
	det, err := NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	return &Router{
		session:  session,
		calc:     NewCalculator(cfg.HistoryBars, deltaSlope),
		detector: det,
		state:    types.RegimeState{Label: types.RegimeUncertain},
		rejected: make(map[types.RejectReason]int64),
		now:      time.Now,
	}, nil
}

// SetClock overrides the wall clock, for tests.
func (r *Router) SetClock(now func() time.Time) { r.now = now }

// OnBar feeds a completed bar through the classifier.
func (r *Router) OnBar(bar *types.FootprintBar) types.RegimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calc.AddBar(bar)
	r.state = r.detector.Classify(r.calc.Calculate())
	return r.state
}

func (r *Router) Regime() types.RegimeState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Evaluate stamps the signal with the approval verdict. Gates run in
// order: strength, regime confidence, trading hours, regime conflict.
func (r *Router) Evaluate(sig types.Signal) types.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.evaluated++
	sig.Regime = r.state.Label
	sig.Approved = false

	switch {
	case sig.Strength < r.session.MinSignalStrength:
		sig.RejectReason = types.RejectLowStrength
	case r.state.Confidence < r.session.MinRegimeConfidence:
		sig.RejectReason = types.RejectLowConfidence
	case !r.session.WithinTradingHours(r.now()):
		sig.RejectReason = types.RejectOutsideHours
	case r.conflicts(sig):
		sig.RejectReason = types.RejectRegimeConflict
	default:
		sig.Approved = true
		sig.RejectReason = types.RejectNone
	}

	if sig.Approved {
		r.approved++
		logger.Infof("router: approved %s %s strength=%.2f regime=%s conf=%.2f",
			sig.Pattern, sig.Direction, sig.Strength, r.state.Label, r.state.Confidence)
	} else {
		r.rejected[sig.RejectReason]++
		logger.Debugf("router: rejected %s %s reason=%s", sig.Pattern, sig.Direction, sig.RejectReason)
	}
	return sig
}

// conflicts reports whether the signal fights the regime posture: its
// pattern is disabled under the current label, or it trades against a
// trend without the mean-reversion allowance.
func (r *Router) conflicts(sig types.Signal) bool {
	prof, ok := regimeProfiles[r.state.Label]
	if !ok {
		return false
	}
	if prof.disabled[sig.Pattern] {
		return true
	}
	if prof.bias != "" && sig.Direction != prof.bias && !r.session.AllowMeanReversion {
		return true
	}
	return false
}

// SizeMultiplier returns the position-size scale for the current regime.
func (r *Router) SizeMultiplier() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	prof, ok := regimeProfiles[r.state.Label]
	if !ok {
		return 0.25
	}
	return prof.sizeMultiplier
}

// State summarizes routing for the dashboard.
func (r *Router) State() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	rejects := make(map[string]int64, len(r.rejected))
	for reason, n := range r.rejected {
		rejects[string(reason)] = n
	}
	return map[string]any{
		"regime":         string(r.state.Label),
		"confidence":     r.state.Confidence,
		"bars_in_regime": r.state.BarsInRegime,
		"bars_seen":      r.calc.BarCount(),
		"evaluated":      r.evaluated,
		"approved":       r.approved,
		"rejected":       rejects,
	}
}
