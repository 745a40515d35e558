package detector

import (
	"tapeflow/internal/types"
)

// DivergenceDetector keeps a short bar history and flags bars where price
// and delta disagree over the lookback: new price highs on falling delta
// are bearish, new lows on rising delta bullish.
type DivergenceDetector struct {
	cfg    Config
	closes []float64
	deltas []int64
}

func NewDivergenceDetector(cfg Config) *DivergenceDetector {
	return &DivergenceDetector{cfg: cfg}
}

func (d *DivergenceDetector) Name() string { return "divergence" }

func (d *DivergenceDetector) Detect(bar *types.FootprintBar) []types.Signal {
	d.closes = append(d.closes, bar.Close)
	d.deltas = append(d.deltas, bar.Delta)
	keep := d.cfg.DivergenceLookback + 1
	if len(d.closes) > keep {
		d.closes = d.closes[len(d.closes)-keep:]
		d.deltas = d.deltas[len(d.deltas)-keep:]
	}
	if len(d.closes) < keep {
		return nil
	}

	first, last := d.closes[0], d.closes[len(d.closes)-1]
	var deltaSum int64
	for _, v := range d.deltas[1:] {
		deltaSum += v
	}

	priceUp := last > first
	priceDown := last < first
	var out []types.Signal
	switch {
	case priceUp && deltaSum < 0:
		sig := newSignal(bar, types.PatternBearishDivergence, types.DirectionShort,
			divergenceStrength(last-first, deltaSum), bar.Close)
		sig.Details = map[string]any{"price_change": last - first, "delta_sum": deltaSum}
		out = append(out, sig)
	case priceDown && deltaSum > 0:
		sig := newSignal(bar, types.PatternBullishDivergence, types.DirectionLong,
			divergenceStrength(first-last, -deltaSum), bar.Close)
		sig.Details = map[string]any{"price_change": last - first, "delta_sum": deltaSum}
		out = append(out, sig)
	}
	return out
}

// divergenceStrength grows with how hard delta leans against the move.
func divergenceStrength(priceMove float64, deltaSum int64) float64 {
	s := 0.5
	if deltaSum < -100 {
		s += 0.2
	} else if deltaSum < -25 {
		s += 0.1
	}
	if priceMove > 0 {
		s += 0.1
	}
	return s
}
