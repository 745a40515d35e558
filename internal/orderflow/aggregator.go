package orderflow

import (
	"fmt"
	"math"
	"time"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// Aggregator folds a non-decreasing tick stream into footprint bars on a
// fixed timeframe. Bars are half-open [start, start+timeframe); the tick
// sitting exactly on a boundary opens the next bar.
type Aggregator struct {
	timeframe time.Duration
	tickSize  float64
	current   *types.FootprintBar
	lastEnd   time.Time
	rejected  int64
	bars      int64
}

func NewAggregator(timeframe time.Duration, tickSize float64) (*Aggregator, error) {
	if timeframe <= 0 {
		return nil, fmt.Errorf("aggregator: timeframe must be positive, got %s", timeframe)
	}
	if tickSize <= 0 {
		return nil, fmt.Errorf("aggregator: tick size must be positive, got %v", tickSize)
	}
	return &Aggregator{timeframe: timeframe, tickSize: tickSize}, nil
}

// Process folds one tick in. It returns the completed bar when the tick
// closes the previous window, otherwise nil. The second result reports
// whether the tick was accepted.
func (a *Aggregator) Process(tick types.Tick) (*types.FootprintBar, bool) {
	if !a.validate(tick) {
		a.rejected++
		return nil, false
	}

	barStart := tick.Timestamp.Truncate(a.timeframe)
	price := a.snapToGrid(tick.Price)

	if a.current == nil {
		a.current = a.newBar(tick.Symbol, barStart)
		a.apply(price, tick)
		return nil, true
	}

	if !tick.Timestamp.Before(a.current.End) {
		done := a.current
		a.lastEnd = done.End
		a.bars++
		a.current = a.newBar(tick.Symbol, barStart)
		a.apply(price, tick)
		return done, true
	}

	a.apply(price, tick)
	return nil, true
}

// Current returns the in-flight bar, nil when none. Callers must not
// mutate it.
func (a *Aggregator) Current() *types.FootprintBar {
	return a.current
}

// Reset discards the in-flight bar without emitting it.
func (a *Aggregator) Reset() {
	a.current = nil
}

func (a *Aggregator) Rejected() int64 { return a.rejected }
func (a *Aggregator) Completed() int64 { return a.bars }

func (a *Aggregator) validate(tick types.Tick) bool {
	switch {
	case tick.Price <= 0:
		logger.Warnf("aggregator: dropping tick with non-positive price %v", tick.Price)
		return false
	case tick.Volume <= 0:
		logger.Warnf("aggregator: dropping tick with non-positive volume %d", tick.Volume)
		return false
	case tick.Side != types.SideBid && tick.Side != types.SideAsk:
		logger.Warnf("aggregator: dropping tick with unknown side %q", tick.Side)
		return false
	case a.current != nil && tick.Timestamp.Before(a.current.Start):
		logger.Warnf("aggregator: dropping out-of-order tick at %s before bar start %s",
			tick.Timestamp.Format(time.RFC3339Nano), a.current.Start.Format(time.RFC3339Nano))
		return false
	case a.current == nil && !a.lastEnd.IsZero() && tick.Timestamp.Before(a.lastEnd):
		logger.Warnf("aggregator: dropping out-of-order tick at %s before last bar end %s",
			tick.Timestamp.Format(time.RFC3339Nano), a.lastEnd.Format(time.RFC3339Nano))
		return false
	}
	return true
}

func (a *Aggregator) snapToGrid(price float64) float64 {
	return math.Round(price/a.tickSize) * a.tickSize
}

func (a *Aggregator) newBar(symbol string, start time.Time) *types.FootprintBar {
	return &types.FootprintBar{
		Symbol: symbol,
		Start:  start,
		End:    start.Add(a.timeframe),
		Levels: make(map[float64]*types.PriceLevel),
	}
}

func (a *Aggregator) apply(price float64, tick types.Tick) {
	bar := a.current
	if bar.TickCount == 0 {
		bar.Open = price
		bar.High = price
		bar.Low = price
	}
	if price > bar.High {
		bar.High = price
	}
	if price < bar.Low {
		bar.Low = price
	}
	bar.Close = price
	bar.TickCount++
	bar.Volume += tick.Volume

	lvl, ok := bar.Levels[price]
	if !ok {
		lvl = &types.PriceLevel{Price: price}
		bar.Levels[price] = lvl
	}
	if tick.Side == types.SideAsk {
		lvl.AskVolume += tick.Volume
		bar.Delta += tick.Volume
	} else {
		lvl.BidVolume += tick.Volume
		bar.Delta -= tick.Volume
	}
}
