package detector

import (
	"tapeflow/internal/types"
)

// ExhaustionDetector fires when volume dries up into a bar extreme: each
// of the top levels trading materially less than the one before signals
// the advance ran out of participants.
type ExhaustionDetector struct {
	cfg Config
}

func NewExhaustionDetector(cfg Config) *ExhaustionDetector {
	return &ExhaustionDetector{cfg: cfg}
}

func (d *ExhaustionDetector) Name() string { return "exhaustion" }

func (d *ExhaustionDetector) Detect(bar *types.FootprintBar) []types.Signal {
	levels := bar.SortedLevels()
	n := d.cfg.ExhaustionLevels
	if len(levels) < n+1 {
		return nil
	}

	var out []types.Signal
	// Climbing into the high: ask volume shrinking level over level.
	top := levels[len(levels)-n-1:]
	if decline, ok := shrinking(top, true, d.cfg.ExhaustionMinDecline); ok {
		sig := newSignal(bar, types.PatternBuyingExhaustion, types.DirectionShort,
			0.5+decline/2, bar.High)
		sig.Details = map[string]any{"decline": decline, "levels": n}
		out = append(out, sig)
	}
	// Falling into the low: bid volume shrinking level over level.
	bottom := levels[:n+1]
	if decline, ok := shrinking(bottom, false, d.cfg.ExhaustionMinDecline); ok {
		sig := newSignal(bar, types.PatternSellingExhaustion, types.DirectionLong,
			0.5+decline/2, bar.Low)
		sig.Details = map[string]any{"decline": decline, "levels": n}
		out = append(out, sig)
	}
	return out
}

// shrinking checks each step toward the extreme declines by at least
// minDecline, returning the average decline ratio. ascending selects the
// walk direction: true walks up through ask volume, false walks down
// through bid volume.
func shrinking(zone []*types.PriceLevel, ascending bool, minDecline float64) (float64, bool) {
	volumes := make([]int64, len(zone))
	for i, lvl := range zone {
		if ascending {
			volumes[i] = lvl.AskVolume
		} else {
			volumes[i] = lvl.BidVolume
		}
	}
	if !ascending {
		for i, j := 0, len(volumes)-1; i < j; i, j = i+1, j-1 {
			volumes[i], volumes[j] = volumes[j], volumes[i]
		}
	}

	var totalDecline float64
	steps := 0
	for i := 1; i < len(volumes); i++ {
		prev, cur := volumes[i-1], volumes[i]
		if prev == 0 {
			return 0, false
		}
		decline := 1 - float64(cur)/float64(prev)
		if decline < minDecline {
			return 0, false
		}
		totalDecline += decline
		steps++
	}
	if steps == 0 {
		return 0, false
	}
	return totalDecline / float64(steps), true
}
