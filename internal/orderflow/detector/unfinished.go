package detector

import (
	"tapeflow/internal/types"
)

// UnfinishedDetector tracks auction extremes that closed with two-sided
// trade still present. A finished high prints essentially no bid volume
// at the top; when both sides stay active there the auction is unfinished
// and price tends to revisit the level. Tracked levels are dropped once a
// later bar trades back through them.
type UnfinishedDetector struct {
	cfg   Config
	highs map[float64]bool
	lows  map[float64]bool
}

func NewUnfinishedDetector(cfg Config) *UnfinishedDetector {
	return &UnfinishedDetector{
		cfg:   cfg,
		highs: make(map[float64]bool),
		lows:  make(map[float64]bool),
	}
}

func (d *UnfinishedDetector) Name() string { return "unfinished" }

func (d *UnfinishedDetector) Detect(bar *types.FootprintBar) []types.Signal {
	d.expire(bar)

	var out []types.Signal
	if lvl, ok := bar.Levels[bar.High]; ok {
		if lvl.BidVolume > d.cfg.UnfinishedMaxVolume && lvl.AskVolume > d.cfg.UnfinishedMaxVolume {
			if !d.highs[bar.High] {
				d.highs[bar.High] = true
				sig := newSignal(bar, types.PatternUnfinishedHigh, types.DirectionLong, 0.45, bar.High)
				sig.Details = map[string]any{"bid_volume": lvl.BidVolume, "ask_volume": lvl.AskVolume}
				out = append(out, sig)
			}
		}
	}
	if lvl, ok := bar.Levels[bar.Low]; ok {
		if lvl.BidVolume > d.cfg.UnfinishedMaxVolume && lvl.AskVolume > d.cfg.UnfinishedMaxVolume {
			if !d.lows[bar.Low] {
				d.lows[bar.Low] = true
				sig := newSignal(bar, types.PatternUnfinishedLow, types.DirectionShort, 0.45, bar.Low)
				sig.Details = map[string]any{"bid_volume": lvl.BidVolume, "ask_volume": lvl.AskVolume}
				out = append(out, sig)
			}
		}
	}
	return out
}

// Pending returns how many unfinished extremes are still tracked.
func (d *UnfinishedDetector) Pending() int {
	return len(d.highs) + len(d.lows)
}

// expire clears tracked extremes the current bar traded through.
func (d *UnfinishedDetector) expire(bar *types.FootprintBar) {
	for price := range d.highs {
		if price >= bar.Low && price <= bar.High {
			delete(d.highs, price)
		}
	}
	for price := range d.lows {
		if price >= bar.Low && price <= bar.High {
			delete(d.lows, price)
		}
	}
}
