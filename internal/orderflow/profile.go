package orderflow

import (
	"sort"

	"tapeflow/internal/types"
)

// VolumeProfile accumulates per-price volume across completed bars and
// derives the point of control, value area and volume nodes.
type VolumeProfile struct {
	levels map[float64]int64
	total  int64
	bars   int
}

func NewVolumeProfile() *VolumeProfile {
	return &VolumeProfile{levels: make(map[float64]int64)}
}

func (p *VolumeProfile) AddBar(bar *types.FootprintBar) {
	for price, lvl := range bar.Levels {
		p.levels[price] += lvl.TotalVolume()
		p.total += lvl.TotalVolume()
	}
	p.bars++
}

func (p *VolumeProfile) Bars() int { return p.bars }

// POC returns the price with the highest accumulated volume. Ties break
// toward the lower price so the result is deterministic.
func (p *VolumeProfile) POC() (float64, bool) {
	if len(p.levels) == 0 {
		return 0, false
	}
	var poc float64
	var best int64 = -1
	for _, price := range p.sortedPrices() {
		if v := p.levels[price]; v > best {
			best = v
			poc = price
		}
	}
	return poc, true
}

// ValueArea expands outward from the POC until pct of total volume is
// covered, returning the low and high bounds.
func (p *VolumeProfile) ValueArea(pct float64) (low, high float64, ok bool) {
	if len(p.levels) == 0 || p.total == 0 {
		return 0, 0, false
	}
	if pct <= 0 || pct > 1 {
		pct = 0.7
	}
	prices := p.sortedPrices()
	poc, _ := p.POC()
	idx := sort.SearchFloat64s(prices, poc)
	lo, hi := idx, idx
	covered := p.levels[poc]
	target := int64(float64(p.total) * pct)
	for covered < target && (lo > 0 || hi < len(prices)-1) {
		var below, above int64 = -1, -1
		if lo > 0 {
			below = p.levels[prices[lo-1]]
		}
		if hi < len(prices)-1 {
			above = p.levels[prices[hi+1]]
		}
		if above > below {
			hi++
			covered += above
		} else {
			lo--
			covered += below
		}
	}
	return prices[lo], prices[hi], true
}

// HighVolumeNodes returns prices holding at least ratio times the mean
// per-level volume.
func (p *VolumeProfile) HighVolumeNodes(ratio float64) []float64 {
	return p.nodes(ratio, true)
}

// LowVolumeNodes returns prices holding at most ratio times the mean
// per-level volume.
func (p *VolumeProfile) LowVolumeNodes(ratio float64) []float64 {
	return p.nodes(ratio, false)
}

func (p *VolumeProfile) nodes(ratio float64, above bool) []float64 {
	if len(p.levels) == 0 {
		return nil
	}
	mean := float64(p.total) / float64(len(p.levels))
	threshold := mean * ratio
	var out []float64
	for _, price := range p.sortedPrices() {
		v := float64(p.levels[price])
		if above && v >= threshold {
			out = append(out, price)
		}
		if !above && v <= threshold {
			out = append(out, price)
		}
	}
	return out
}

func (p *VolumeProfile) Reset() {
	p.levels = make(map[float64]int64)
	p.total = 0
	p.bars = 0
}

func (p *VolumeProfile) sortedPrices() []float64 {
	prices := make([]float64, 0, len(p.levels))
	for price := range p.levels {
		prices = append(prices, price)
	}
	sort.Float64s(prices)
	return prices
}
