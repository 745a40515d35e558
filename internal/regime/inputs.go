package regime

import (
	"math"
	"sort"

	"github.com/markcheno/go-talib"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

const (
	adxPeriod = 14
	atrPeriod = 14
	emaFast   = 9
	emaSlow   = 21
	// talib's Wilder-smoothed ADX needs roughly twice its period of bars
	// before the first stable value.
	minBars = 2 * adxPeriod
)

// Inputs is the indicator snapshot the classifier votes on, computed over
// the rolling bar history.
type Inputs struct {
	ADX           float64
	PlusDI        float64
	MinusDI       float64
	EMAFast       float64
	EMASlow       float64
	ATR           float64
	ATRPercentile float64
	VWAP          float64
	PriceVsVWAP   float64
	DeltaSlope    float64
	Close         float64
	Ready         bool
}

// Calculator keeps the rolling bar window and derives Inputs from it.
type Calculator struct {
	maxBars    int
	bars       []*types.FootprintBar
	deltaSlope func() float64
}

// NewCalculator builds a calculator holding up to maxBars completed bars.
// deltaSlope supplies the cumulative-delta trajectory; nil disables it.
// Windows inside the indicator warm-up are widened to the minimum that
// can ever go ready; Config.Validate rejects them up front.
func NewCalculator(maxBars int, deltaSlope func() float64) *Calculator {
	if maxBars <= minBars {
		logger.Warnf("regime: %d-bar history is inside the %d-bar indicator warm-up, widening to %d", maxBars, minBars, minBars+1)
		maxBars = minBars + 1
	}
	return &Calculator{maxBars: maxBars, deltaSlope: deltaSlope}
}

func (c *Calculator) AddBar(bar *types.FootprintBar) {
	c.bars = append(c.bars, bar)
	if len(c.bars) > c.maxBars {
		c.bars = c.bars[len(c.bars)-c.maxBars:]
	}
}

func (c *Calculator) BarCount() int { return len(c.bars) }

// Calculate derives the current snapshot. Ready is false until enough
// bars exist for stable indicator values.
func (c *Calculator) Calculate() Inputs {
	if len(c.bars) <= minBars {
		return Inputs{}
	}

	n := len(c.bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range c.bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	adx := talib.Adx(highs, lows, closes, adxPeriod)
	plusDI := talib.PlusDI(highs, lows, closes, adxPeriod)
	minusDI := talib.MinusDI(highs, lows, closes, adxPeriod)
	fast := talib.Ema(closes, emaFast)
	slow := talib.Ema(closes, emaSlow)
	atr := talib.Atr(highs, lows, closes, atrPeriod)

	in := Inputs{
		ADX:     last(adx),
		PlusDI:  last(plusDI),
		MinusDI: last(minusDI),
		EMAFast: last(fast),
		EMASlow: last(slow),
		ATR:     last(atr),
		Close:   closes[n-1],
		Ready:   true,
	}
	in.ATRPercentile = percentileRank(atr[atrPeriod:], in.ATR)
	in.VWAP = c.vwap()
	if in.VWAP > 0 {
		in.PriceVsVWAP = in.Close - in.VWAP
	}
	if c.deltaSlope != nil {
		in.DeltaSlope = c.deltaSlope()
	}
	return in
}

func (c *Calculator) vwap() float64 {
	var pv float64
	var vol int64
	for _, b := range c.bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * float64(b.Volume)
		vol += b.Volume
	}
	if vol == 0 {
		return 0
	}
	return pv / float64(vol)
}

func last(values []float64) float64 {
	for i := len(values) - 1; i >= 0; i-- {
		if !math.IsNaN(values[i]) && values[i] != 0 {
			return values[i]
		}
	}
	return 0
}

// percentileRank returns the fraction of history at or below v.
func percentileRank(history []float64, v float64) float64 {
	vals := make([]float64, 0, len(history))
	for _, h := range history {
		if h > 0 && !math.IsNaN(h) {
			vals = append(vals, h)
		}
	}
	if len(vals) == 0 {
		return 0.5
	}
	sort.Float64s(vals)
	idx := sort.SearchFloat64s(vals, v)
	return float64(idx) / float64(len(vals))
}
