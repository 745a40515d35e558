package detector

import (
	"tapeflow/internal/types"
)

// AbsorptionDetector looks for heavy one-sided aggression at a bar extreme
// that failed to move price: buyers leaning into the high while the bar
// closes back down means passive sellers absorbed them, and vice versa at
// the low.
type AbsorptionDetector struct {
	cfg Config
}

func NewAbsorptionDetector(cfg Config) *AbsorptionDetector {
	return &AbsorptionDetector{cfg: cfg}
}

func (d *AbsorptionDetector) Name() string { return "absorption" }

func (d *AbsorptionDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	if len(levels) < 3 || bar.Range() <= 0 {
		return nil
	}
	closePos := (bar.Close - bar.Low) / bar.Range()

	var out []types.Signal
	top := levels[len(levels)-3:]
	if sig, ok := d.check(bar, top, types.SideAsk, closePos); ok {
		out = append(out, sig)
	}
	bottom := levels[:3]
	if sig, ok := d.check(bar, bottom, types.SideBid, closePos); ok {
		out = append(out, sig)
	}
	return out
}

func (d *AbsorptionDetector) check(bar *types.FootprintBar, zone []*types.PriceLevel,
	aggressor types.Side, closePos float64) (types.Signal, bool) {

	var total, dominant int64
	for _, lvl := range zone {
		total += lvl.TotalVolume()
		if aggressor == types.SideAsk {
			dominant += lvl.AskVolume
		} else {
			dominant += lvl.BidVolume
		}
	}
	if total < d.cfg.AbsorptionMinVolume {
		return types.Signal{}, false
	}
	dominance := float64(dominant) / float64(total)
	if dominance < d.cfg.AbsorptionDominance {
		return types.Signal{}, false
	}

	// Aggression at the high must be rejected by a weak close, at the
	// low by a strong one.
	if aggressor == types.SideAsk {
		if closePos > 0.4 {
			return types.Signal{}, false
		}
		strength := 0.5 + 0.5*(dominance-d.cfg.AbsorptionDominance)/(1-d.cfg.AbsorptionDominance)
		sig := newSignal(bar, types.PatternBuyingAbsorption, types.DirectionShort, strength, bar.High)
		sig.Details = map[string]any{"zone_volume": total, "dominance": dominance, "close_position": closePos}
		return sig, true
	}
	if closePos < 0.6 {
		return types.Signal{}, false
	}
	strength := 0.5 + 0.5*(dominance-d.cfg.AbsorptionDominance)/(1-d.cfg.AbsorptionDominance)
	sig := newSignal(bar, types.PatternSellingAbsorption, types.DirectionLong, strength, bar.Low)
	sig.Details = map[string]any{"zone_volume": total, "dominance": dominance, "close_position": closePos}
	return sig, true
}
