package regime

import (
	"fmt"

	"tapeflow/internal/types"
)

// Config tunes the regime classifier.
type Config struct {
	ADXTrendThreshold float64 `toml:"adx_trend_threshold" yaml:"adx_trend_threshold"`
	ADXWeakThreshold  float64 `toml:"adx_weak_threshold" yaml:"adx_weak_threshold"`
	ATRHighPercentile float64 `toml:"atr_high_percentile" yaml:"atr_high_percentile"`
	MinBarsInRegime   int     `toml:"min_bars_in_regime" yaml:"min_bars_in_regime"`
	HistoryBars       int     `toml:"history_bars" yaml:"history_bars"`
	SlopeBars         int     `toml:"slope_bars" yaml:"slope_bars"`
}

func DefaultConfig() Config {
	return Config{
		ADXTrendThreshold: 25,
		ADXWeakThreshold:  20,
		ATRHighPercentile: 0.8,
		MinBarsInRegime:   3,
		HistoryBars:       200,
		SlopeBars:         20,
	}
}

func (c Config) Validate() error {
	if c.ADXTrendThreshold <= c.ADXWeakThreshold {
		return fmt.Errorf("regime: adx_trend_threshold %v must exceed adx_weak_threshold %v",
			c.ADXTrendThreshold, c.ADXWeakThreshold)
	}
	if c.ADXWeakThreshold <= 0 {
		return fmt.Errorf("regime: adx_weak_threshold must be positive, got %v", c.ADXWeakThreshold)
	}
	if c.ATRHighPercentile <= 0 || c.ATRHighPercentile >= 1 {
		return fmt.Errorf("regime: atr_high_percentile must be in (0,1), got %v", c.ATRHighPercentile)
	}
	if c.MinBarsInRegime < 1 {
		return fmt.Errorf("regime: min_bars_in_regime must be at least 1, got %d", c.MinBarsInRegime)
	}
	if c.HistoryBars <= minBars {
		return fmt.Errorf("regime: history_bars must exceed the %d-bar indicator warm-up, got %d", minBars, c.HistoryBars)
	}
	return nil
}

// Detector classifies each completed bar into a regime. Confidence is the
// normalized distance from the classification boundary, clamped to [0,1],
// and held at zero until the label has persisted min_bars_in_regime bars.
type Detector struct {
	cfg   Config
	state types.RegimeState
}

func NewDetector(cfg Config) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, state: types.RegimeState{Label: types.RegimeUncertain}}, nil
}

// Classify votes on the indicator snapshot and updates the held state.
func (d *Detector) Classify(in Inputs) types.RegimeState {
	label, confidence := d.vote(in)

	if label == d.state.Label {
		d.state.BarsInRegime++
	} else {
		d.state.Label = label
		d.state.BarsInRegime = 1
	}
	if d.state.BarsInRegime < d.cfg.MinBarsInRegime {
		confidence = 0
	}
	d.state.Confidence = confidence
	return d.state
}

func (d *Detector) State() types.RegimeState { return d.state }

func (d *Detector) vote(in Inputs) (types.RegimeLabel, float64) {
	if !in.Ready {
		return types.RegimeUncertain, 0
	}

	biasUp := in.PlusDI > in.MinusDI && in.EMAFast >= in.EMASlow
	biasDown := in.MinusDI > in.PlusDI && in.EMAFast <= in.EMASlow

	if in.ADX >= d.cfg.ADXTrendThreshold {
		conf := clamp01((in.ADX - d.cfg.ADXTrendThreshold) / d.cfg.ADXTrendThreshold)
		// Demand the order-flow agree with the tape before calling a
		// trend with conviction.
		switch {
		case biasUp && in.PriceVsVWAP >= 0:
			return types.RegimeTrendingUp, boost(conf, in.DeltaSlope > 0)
		case biasDown && in.PriceVsVWAP <= 0:
			return types.RegimeTrendingDown, boost(conf, in.DeltaSlope < 0)
		default:
			return types.RegimeUncertain, 0
		}
	}

	if in.ADX < d.cfg.ADXWeakThreshold && in.ATRPercentile < d.cfg.ATRHighPercentile {
		conf := clamp01((d.cfg.ADXWeakThreshold - in.ADX) / d.cfg.ADXWeakThreshold)
		return types.RegimeRanging, conf
	}
	return types.RegimeUncertain, 0
}

func boost(conf float64, agree bool) float64 {
	if agree {
		return clamp01(conf + 0.15)
	}
	return conf
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
