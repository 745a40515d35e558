package orderflow

import (
	"time"

	"github.com/shopspring/decimal"

	"tapeflow/internal/types"
)

type deltaPoint struct {
	ts    time.Time
	value decimal.Decimal
}

// CumulativeDelta tracks the session-wide running delta and its recent
// trajectory. Decimal keeps the running sum exact over long sessions.
type CumulativeDelta struct {
	value   decimal.Decimal
	history []deltaPoint
	maxLen  int
}

func NewCumulativeDelta(maxHistory int) *CumulativeDelta {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &CumulativeDelta{maxLen: maxHistory}
}

func (c *CumulativeDelta) AddBar(bar *types.FootprintBar) {
	c.value = c.value.Add(decimal.NewFromInt(bar.Delta))
	c.history = append(c.history, deltaPoint{ts: bar.End, value: c.value})
	if len(c.history) > c.maxLen {
		c.history = c.history[len(c.history)-c.maxLen:]
	}
}

func (c *CumulativeDelta) Value() int64 {
	return c.value.IntPart()
}

// Slope fits a least-squares line through the last n cumulative values and
// returns its per-bar slope. Returns 0 when fewer than two points exist.
func (c *CumulativeDelta) Slope(n int) float64 {
	if n <= 1 || len(c.history) < 2 {
		return 0
	}
	pts := c.history
	if len(pts) > n {
		pts = pts[len(pts)-n:]
	}
	return fitSlope(pts)
}

func (c *CumulativeDelta) Reset() {
	c.value = decimal.Zero
	c.history = nil
}

func fitSlope(pts []deltaPoint) float64 {
	n := float64(len(pts))
	var sumX, sumY, sumXY, sumXX float64
	for i, p := range pts {
		x := float64(i)
		y, _ := p.value.Float64()
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
