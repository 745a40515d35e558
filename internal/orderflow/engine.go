package orderflow

import (
	"fmt"
	"sync"
	"time"

	"tapeflow/internal/logger"
	"tapeflow/internal/orderflow/detector"
	"tapeflow/internal/types"
)

// Engine owns the tick-to-bar path: it aggregates ticks, maintains the
// cumulative delta and volume profile, and runs the detector set against
// each completed bar. Writes come from the single pipeline worker; the
// mutex guards dashboard reads.
type Engine struct {
	mu        sync.Mutex
	agg       *Aggregator
	delta     *CumulativeDelta
	profile   *VolumeProfile
	detectors []detector.Detector
	enabled   map[types.Pattern]bool

	ticks   int64
	signals int64
}

// NewEngine builds the engine. enabledPatterns empty means every pattern
// is live; otherwise only the named patterns survive detection.
func NewEngine(timeframe time.Duration, tickSize float64, cfg detector.Config, enabledPatterns []string) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	agg, err := NewAggregator(timeframe, tickSize)
	if err != nil {
		return nil, err
	}
	var enabled map[types.Pattern]bool
	if len(enabledPatterns) > 0 {
		enabled = make(map[types.Pattern]bool, len(enabledPatterns))
		for _, name := range enabledPatterns {
			enabled[types.Pattern(name)] = true
		}
	}
	return &Engine{
		agg:       agg,
		delta:     NewCumulativeDelta(0),
		profile:   NewVolumeProfile(),
		detectors: detector.All(cfg),
		enabled:   enabled,
	}, nil
}

// ProcessTick folds one tick in and returns the completed bar, if any.
func (e *Engine) ProcessTick(tick types.Tick) (*types.FootprintBar, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bar, ok := e.agg.Process(tick)
	if !ok {
		return nil, false
	}
	e.ticks++
	if bar != nil {
		e.delta.AddBar(bar)
		e.profile.AddBar(bar)
	}
	return bar, true
}

// DetectSignals runs every detector against the bar, drops suppressed
// patterns and scales strength by regime alignment.
func (e *Engine) DetectSignals(bar *types.FootprintBar, regime types.RegimeState) []types.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []types.Signal
	for _, det := range e.detectors {
		for _, sig := range det.Detect(bar) {
			if e.enabled != nil && !e.enabled[sig.Pattern] {
				continue
			}
			sig.Strength = alignStrength(sig.Strength, sig.Direction, regime)
			sig.Regime = regime.Label
			out = append(out, sig)
			e.signals++
			logger.Debugf("signal %s %s strength=%.2f price=%v", sig.Pattern, sig.Direction, sig.Strength, sig.Price)
		}
	}
	return out
}

// Discard drops the in-flight bar, used at shutdown.
func (e *Engine) Discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agg.Reset()
}

// CumulativeDelta exposes the delta tracker for the worker goroutine;
// it must not be read concurrently with ProcessTick.
func (e *Engine) CumulativeDelta() *CumulativeDelta { return e.delta }

// ProfileState snapshots the volume profile for the dashboard.
func (e *Engine) ProfileState() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := map[string]any{"bars": e.profile.Bars()}
	if poc, ok := e.profile.POC(); ok {
		out["poc"] = poc
	}
	if low, high, ok := e.profile.ValueArea(0.7); ok {
		out["value_area_low"] = low
		out["value_area_high"] = high
	}
	out["high_volume_nodes"] = e.profile.HighVolumeNodes(1.5)
	out["low_volume_nodes"] = e.profile.LowVolumeNodes(0.5)
	return out
}

// State summarizes engine counters for the dashboard.
func (e *Engine) State() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := map[string]any{
		"ticks_processed":  e.ticks,
		"ticks_rejected":   e.agg.Rejected(),
		"bars_completed":   e.agg.Completed(),
		"signals_detected": e.signals,
		"cumulative_delta": e.delta.Value(),
	}
	if poc, ok := e.profile.POC(); ok {
		state["poc"] = poc
		if low, high, ok := e.profile.ValueArea(0.7); ok {
			state["value_area"] = fmt.Sprintf("%v-%v", low, high)
		}
	}
	return state
}

// alignStrength boosts signals that trade with the regime and dampens
// counter-trend ones. Ranging and uncertain regimes leave strength as is.
func alignStrength(strength float64, dir types.Direction, regime types.RegimeState) float64 {
	aligned := (regime.Label == types.RegimeTrendingUp && dir == types.DirectionLong) ||
		(regime.Label == types.RegimeTrendingDown && dir == types.DirectionShort)
	counter := (regime.Label == types.RegimeTrendingUp && dir == types.DirectionShort) ||
		(regime.Label == types.RegimeTrendingDown && dir == types.DirectionLong)
	switch {
	case aligned:
		strength *= 1.2
	case counter:
		strength *= 0.8
	}
	if strength > 1 {
		return 1
	}
	return strength
}
