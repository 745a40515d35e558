package detector

import (
	"tapeflow/internal/types"
)

// ImbalanceDetector compares diagonally adjacent bid/ask volumes. A buy
// imbalance is ask volume at one level overwhelming bid volume one level
// below; a sell imbalance is the mirror. Runs of stacked imbalances on
// adjacent levels are promoted to a stacked signal.
type ImbalanceDetector struct {
	cfg Config
}

func NewImbalanceDetector(cfg Config) *ImbalanceDetector {
	return &ImbalanceDetector{cfg: cfg}
}

func (d *ImbalanceDetector) Name() string { return "imbalance" }

func (d *ImbalanceDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	if len(levels) < 2 {
		return nil
	}

	buy := make([]bool, len(levels))
	sell := make([]bool, len(levels))
	for i := 1; i < len(levels); i++ {
		ask := levels[i].AskVolume
		bidBelow := levels[i-1].BidVolume
		if ask >= d.cfg.ImbalanceMinVolume && imbalanced(ask, bidBelow, d.cfg.ImbalanceRatio) {
			buy[i] = true
		}
		bid := levels[i-1].BidVolume
		askAbove := levels[i].AskVolume
		if bid >= d.cfg.ImbalanceMinVolume && imbalanced(bid, askAbove, d.cfg.ImbalanceRatio) {
			sell[i-1] = true
		}
	}

	var out []types.Signal
	out = append(out, d.collect(bar, levels, buy, types.DirectionLong,
		types.PatternBuyImbalance, types.PatternStackedBuyImbalance)...)
	out = append(out, d.collect(bar, levels, sell, types.DirectionShort,
		types.PatternSellImbalance, types.PatternStackedSellImbalance)...)
	return out
}

// collect walks contiguous runs of flagged levels. Runs reaching
// StackedMin emit one stacked signal anchored at the run's far edge;
// shorter runs emit single-level signals.
func (d *ImbalanceDetector) collect(bar *types.FootprintBar, levels []*types.PriceLevel,
	flags []bool, dir types.Direction, single, stacked types.Pattern) []types.Signal {

	var out []types.Signal
	i := 0
	for i < len(flags) {
		if !flags[i] {
			i++
			continue
		}
		j := i
		for j+1 < len(flags) && flags[j+1] {
			j++
		}
		run := j - i + 1
		if run >= d.cfg.StackedMin {
			strength := 0.6 + 0.1*float64(run-d.cfg.StackedMin)
			anchor := levels[j].Price
			if dir == types.DirectionShort {
				anchor = levels[i].Price
			}
			sig := newSignal(bar, stacked, dir, strength, anchor)
			sig.Details = map[string]any{"stack_size": run, "from": levels[i].Price, "to": levels[j].Price}
			out = append(out, sig)
		} else {
			for k := i; k <= j; k++ {
				sig := newSignal(bar, single, dir, 0.4, levels[k].Price)
				out = append(out, sig)
			}
		}
		i = j + 1
	}
	return out
}

// imbalanced reports dominant >= ratio * other, treating a zero opposite
// side as imbalanced whenever the dominant side traded at all.
func imbalanced(dominant, other int64, ratio float64) bool {
	if dominant == 0 {
		return false
	}
	if other == 0 {
		return true
	}
	return float64(dominant) >= ratio*float64(other)
}
