// Package detector holds the per-bar order-flow pattern detectors. Each
// detector inspects a completed footprint bar (some keep a short history)
// and emits zero or more raw signals; routing and regime alignment happen
// upstream.
package detector

import (
	"fmt"

	"tapeflow/internal/types"
)

// Detector inspects one completed bar and returns the signals it fired.
type Detector interface {
	Name() string
	Detect(bar *types.FootprintBar) []types.Signal
}

// Config carries the thresholds shared by the detector set.
type Config struct {
	ImbalanceRatio       float64 `toml:"imbalance_ratio" yaml:"imbalance_ratio"`
	ImbalanceMinVolume   int64   `toml:"imbalance_min_volume" yaml:"imbalance_min_volume"`
	StackedMin           int     `toml:"stacked_min" yaml:"stacked_min"`
	ExhaustionLevels     int     `toml:"exhaustion_levels" yaml:"exhaustion_levels"`
	ExhaustionMinDecline float64 `toml:"exhaustion_min_decline" yaml:"exhaustion_min_decline"`
	AbsorptionMinVolume  int64   `toml:"absorption_min_volume" yaml:"absorption_min_volume"`
	AbsorptionDominance  float64 `toml:"absorption_dominance" yaml:"absorption_dominance"`
	DivergenceLookback   int     `toml:"divergence_lookback" yaml:"divergence_lookback"`
	UnfinishedMaxVolume  int64   `toml:"unfinished_max_volume" yaml:"unfinished_max_volume"`
}

func DefaultConfig() Config {
	return Config{
		ImbalanceRatio:       3.0,
		ImbalanceMinVolume:   10,
		StackedMin:           3,
		ExhaustionLevels:     3,
		ExhaustionMinDecline: 0.3,
		AbsorptionMinVolume:  100,
		AbsorptionDominance:  0.6,
		DivergenceLookback:   5,
		UnfinishedMaxVolume:  5,
	}
}

func (c Config) Validate() error {
	if c.ImbalanceRatio <= 1 {
		return fmt.Errorf("detector: imbalance_ratio must exceed 1, got %v", c.ImbalanceRatio)
	}
	if c.ImbalanceMinVolume <= 0 {
		return fmt.Errorf("detector: imbalance_min_volume must be positive, got %d", c.ImbalanceMinVolume)
	}
	if c.StackedMin < 2 {
		return fmt.Errorf("detector: stacked_min must be at least 2, got %d", c.StackedMin)
	}
	if c.ExhaustionLevels < 2 {
		return fmt.Errorf("detector: exhaustion_levels must be at least 2, got %d", c.ExhaustionLevels)
	}
	if c.ExhaustionMinDecline <= 0 || c.ExhaustionMinDecline >= 1 {
		return fmt.Errorf("detector: exhaustion_min_decline must be in (0,1), got %v", c.ExhaustionMinDecline)
	}
	if c.AbsorptionDominance <= 0.5 || c.AbsorptionDominance > 1 {
		return fmt.Errorf("detector: absorption_dominance must be in (0.5,1], got %v", c.AbsorptionDominance)
	}
	if c.DivergenceLookback < 2 {
		return fmt.Errorf("detector: divergence_lookback must be at least 2, got %d", c.DivergenceLookback)
	}
	if c.UnfinishedMaxVolume < 0 {
		return fmt.Errorf("detector: unfinished_max_volume must not be negative, got %d", c.UnfinishedMaxVolume)
	}
	return nil
}

// All builds the full detector set under one config.
func All(cfg Config) []Detector {
	return []Detector{
		NewImbalanceDetector(cfg),
		NewAbsorptionDetector(cfg),
		NewExhaustionDetector(cfg),
		NewDivergenceDetector(cfg),
		NewUnfinishedDetector(cfg),
	}
}

func clampStrength(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func newSignal(bar *types.FootprintBar, p types.Pattern, dir types.Direction, strength, price float64) types.Signal {
	return types.Signal{
		Timestamp: bar.End,
		Symbol:    bar.Symbol,
		Pattern:   p,
		Direction: dir,
		Strength:  clampStrength(strength),
		Price:     price,
	}
}
