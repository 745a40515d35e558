package types

import (
	"sort"
	"time"
)

// Side is the aggressor side of a trade: ASK means the buyer lifted the
// offer, BID means the seller hit the bid.
type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

// Tick is a single trade print.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	Side      Side      `json:"side"`
}

// PriceLevel accumulates traded volume at one price inside a bar.
type PriceLevel struct {
	Price     float64 `json:"price"`
	BidVolume int64   `json:"bid_volume"`
	AskVolume int64   `json:"ask_volume"`
}

func (l PriceLevel) TotalVolume() int64 {
	return l.BidVolume + l.AskVolume
}

func (l PriceLevel) Delta() int64 {
	return l.AskVolume - l.BidVolume
}

// FootprintBar is a time-sliced bar carrying per-price bid/ask volume.
// Window is half-open: [Start, End).
type FootprintBar struct {
	Symbol    string                  `json:"symbol"`
	Start     time.Time               `json:"start"`
	End       time.Time               `json:"end"`
	Open      float64                 `json:"open"`
	High      float64                 `json:"high"`
	Low       float64                 `json:"low"`
	Close     float64                 `json:"close"`
	Volume    int64                   `json:"volume"`
	Delta     int64                   `json:"delta"`
	TickCount int                     `json:"tick_count"`
	Levels    map[float64]*PriceLevel `json:"levels"`
}

// SortedLevels returns the level ladder in ascending price order.
func (b *FootprintBar) SortedLevels() []*PriceLevel {
	out := make([]*PriceLevel, 0, len(b.Levels))
	for _, lvl := range b.Levels {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

func (b *FootprintBar) BuyVolume() int64 {
	var v int64
	for _, lvl := range b.Levels {
		v += lvl.AskVolume
	}
	return v
}

func (b *FootprintBar) SellVolume() int64 {
	var v int64
	for _, lvl := range b.Levels {
		v += lvl.BidVolume
	}
	return v
}

// Range returns high minus low.
func (b *FootprintBar) Range() float64 {
	return b.High - b.Low
}

// Pattern identifies an order-flow event class.
type Pattern string

const (
	PatternBuyImbalance         Pattern = "BUY_IMBALANCE"
	PatternSellImbalance        Pattern = "SELL_IMBALANCE"
	PatternStackedBuyImbalance  Pattern = "STACKED_BUY_IMBALANCE"
	PatternStackedSellImbalance Pattern = "STACKED_SELL_IMBALANCE"
	PatternBuyingExhaustion     Pattern = "BUYING_EXHAUSTION"
	PatternSellingExhaustion    Pattern = "SELLING_EXHAUSTION"
	PatternBuyingAbsorption     Pattern = "BUYING_ABSORPTION"
	PatternSellingAbsorption    Pattern = "SELLING_ABSORPTION"
	PatternBullishDivergence    Pattern = "BULLISH_DELTA_DIVERGENCE"
	PatternBearishDivergence    Pattern = "BEARISH_DELTA_DIVERGENCE"
	PatternUnfinishedHigh       Pattern = "UNFINISHED_HIGH"
	PatternUnfinishedLow        Pattern = "UNFINISHED_LOW"
)

// Direction is the trade direction a signal implies.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// RegimeLabel classifies the prevailing market state.
type RegimeLabel string

const (
	RegimeTrendingUp   RegimeLabel = "TRENDING_UP"
	RegimeTrendingDown RegimeLabel = "TRENDING_DOWN"
	RegimeRanging      RegimeLabel = "RANGING"
	RegimeUncertain    RegimeLabel = "UNCERTAIN"
)

// RegimeState is the classifier output for the latest completed bar.
type RegimeState struct {
	Label        RegimeLabel `json:"label"`
	Confidence   float64     `json:"confidence"`
	BarsInRegime int         `json:"bars_in_regime"`
}

// RejectReason explains why the router declined a signal.
type RejectReason string

const (
	RejectNone           RejectReason = ""
	RejectLowStrength    RejectReason = "LOW_STRENGTH"
	RejectLowConfidence  RejectReason = "LOW_CONFIDENCE"
	RejectOutsideHours   RejectReason = "OUTSIDE_HOURS"
	RejectRegimeConflict RejectReason = "REGIME_CONFLICT"
)

// Signal is a detected order-flow event, annotated by the router with the
// regime under which it fired and the approval verdict.
type Signal struct {
	Timestamp    time.Time      `json:"timestamp"`
	Symbol       string         `json:"symbol"`
	Pattern      Pattern        `json:"pattern"`
	Direction    Direction      `json:"direction"`
	Strength     float64        `json:"strength"`
	Price        float64        `json:"price"`
	Details      map[string]any `json:"details,omitempty"`
	Regime       RegimeLabel    `json:"regime,omitempty"`
	Approved     bool           `json:"approved"`
	RejectReason RejectReason   `json:"reject_reason,omitempty"`
}
