package execution

import (
	"time"

	"tapeflow/internal/types"
)

// PositionStatus tracks the fill state of a working position.
type PositionStatus string

const (
	// StatusPending marks a conservative fill awaiting confirmation.
	StatusPending PositionStatus = "PENDING"
	StatusOpen    PositionStatus = "OPEN"
)

// ExitReason records why a trade closed.
type ExitReason string

const (
	ExitTarget ExitReason = "TARGET"
	ExitStop   ExitReason = "STOP"
	ExitManual ExitReason = "MANUAL"
	ExitEOD    ExitReason = "EOD"
)

// Order is a bracket entry: market-style entry with attached stop and
// target prices.
type Order struct {
	ID          string            `json:"id"`
	Symbol      string            `json:"symbol"`
	Side        types.Direction   `json:"side"`
	Size        int               `json:"size"`
	EntryPrice  float64           `json:"entry_price"`
	StopPrice   float64           `json:"stop_price"`
	TargetPrice float64           `json:"target_price"`
	Pattern     types.Pattern     `json:"pattern"`
	Regime      types.RegimeLabel `json:"regime"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Position is a working order with live stop management state.
type Position struct {
	Order
	Status      PositionStatus `json:"status"`
	CurrentStop float64        `json:"current_stop"`
	OpenedAt    time.Time      `json:"opened_at"`
}

// unrealizedTicks is the favorable excursion in ticks at price.
func (p *Position) unrealizedTicks(price, tickSize float64) float64 {
	if p.Side == types.DirectionLong {
		return (price - p.EntryPrice) / tickSize
	}
	return (p.EntryPrice - price) / tickSize
}

// Trade is a closed round trip.
type Trade struct {
	ID         string            `json:"id"`
	Symbol     string            `json:"symbol"`
	Side       types.Direction   `json:"side"`
	Size       int               `json:"size"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  float64           `json:"exit_price"`
	PnL        float64           `json:"pnl"`
	PnLTicks   float64           `json:"pnl_ticks"`
	ExitReason ExitReason        `json:"exit_reason"`
	Pattern    types.Pattern     `json:"pattern"`
	Regime     types.RegimeLabel `json:"regime"`
	OpenedAt   time.Time         `json:"opened_at"`
	ClosedAt   time.Time         `json:"closed_at"`
}
