package execution

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// ProfitFactorCap stands in for an infinite profit factor when a session
// has wins and no losses.
const ProfitFactorCap = 1000.0

// RefusalReason explains why the manager declined an approved signal.
type RefusalReason string

const (
	RefusalNone         RefusalReason = ""
	RefusalHalted       RefusalReason = "HALTED"
	RefusalNoSlot       RefusalReason = "NO_SLOT"
	RefusalZeroSize     RefusalReason = "ZERO_SIZE"
	RefusalNotApproved  RefusalReason = "NOT_APPROVED"
	RefusalOutsideHours RefusalReason = "OUTSIDE_HOURS"
)

// Stats summarizes closed trades.
type Stats struct {
	TotalTrades  int     `json:"total_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`
	TotalPnL     float64 `json:"total_pnl"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	ProfitFactor float64 `json:"profit_factor"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

// Manager simulates bracket-order execution against the tick stream and
// enforces the session's risk limits. All entry points are serialized by
// the pipeline; the mutex only guards dashboard reads.
type Manager struct {
	mu sync.Mutex

	session   *Session
	tickSize  float64
	tickValue float64

	lastPrice    float64
	dailyPnL     float64
	paperBalance float64
	halted       bool
	haltReason   string

	positions []*Position
	trades    []*Trade

	onTrade func(*Trade)
	onHalt  func(reason string)
	now     func() time.Time
}

func NewManager(session *Session, tickSize, tickValue float64) (*Manager, error) {
	if session == nil {
		return nil, fmt.Errorf("execution: session is required")
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if tickSize <= 0 {
		return nil, fmt.Errorf("execution: tick size must be positive, got %v", tickSize)
	}
	if tickValue <= 0 {
		return nil, fmt.Errorf("execution: tick value must be positive, got %v", tickValue)
	}
	return &Manager{
		session:      session,
		tickSize:     tickSize,
		tickValue:    tickValue,
		paperBalance: session.PaperStartingBalance,
		now:          time.Now,
	}, nil
}

// SetTradeHandler registers the sink invoked once per closed trade,
// session-end flattening included. The handler runs on the closing
// goroutine and must not block.
func (m *Manager) SetTradeHandler(fn func(*Trade)) { m.onTrade = fn }

func (m *Manager) SetHaltHandler(fn func(string)) { m.onHalt = fn }

// SetClock overrides the wall clock, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

func (m *Manager) Session() *Session { return m.session }

// OnSignal turns an approved signal into a bracket order. A nil order
// with a non-empty refusal means the manager declined; refusals are
// business outcomes, not errors.
func (m *Manager) OnSignal(sig types.Signal, sizeMultiplier float64) (*Order, RefusalReason) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.halted {
		logger.Infof("execution: signal %s refused, session halted (%s)", sig.Pattern, m.haltReason)
		return nil, RefusalHalted
	}
	if !sig.Approved {
		return nil, RefusalNotApproved
	}
	if len(m.positions) >= m.session.MaxConcurrentTrades {
		logger.Debugf("execution: signal %s refused, %d positions already working", sig.Pattern, len(m.positions))
		return nil, RefusalNoSlot
	}
	if !m.session.WithinTradingHours(m.now()) {
		return nil, RefusalOutsideHours
	}
	size := int(math.Round(float64(m.session.MaxPositionSize) * sizeMultiplier))
	if size <= 0 {
		logger.Debugf("execution: signal %s refused, size multiplier %.2f rounds to zero", sig.Pattern, sizeMultiplier)
		return nil, RefusalZeroSize
	}

	entry := m.lastPrice
	if entry == 0 {
		entry = sig.Price
	}
	slip := float64(m.session.PaperSlippageTicks) * m.tickSize
	stopOff := float64(m.session.StopLossTicks) * m.tickSize
	targetOff := float64(m.session.TakeProfitTicks) * m.tickSize

	order := &Order{
		ID:        uuid.NewString(),
		Symbol:    sig.Symbol,
		Side:      sig.Direction,
		Size:      size,
		Pattern:   sig.Pattern,
		Regime:    sig.Regime,
		CreatedAt: m.now(),
	}
	if sig.Direction == types.DirectionLong {
		order.EntryPrice = entry + slip
		order.StopPrice = order.EntryPrice - stopOff
		order.TargetPrice = order.EntryPrice + targetOff
	} else {
		order.EntryPrice = entry - slip
		order.StopPrice = order.EntryPrice + stopOff
		order.TargetPrice = order.EntryPrice - targetOff
	}

	pos := &Position{
		Order:       *order,
		Status:      StatusOpen,
		CurrentStop: order.StopPrice,
		OpenedAt:    m.now(),
	}
	if m.session.ConservativeFills {
		pos.Status = StatusPending
	}
	m.positions = append(m.positions, pos)
	logger.Infof("execution: %s %s x%d entry=%v stop=%v target=%v (%s)",
		pos.Status, order.Side, order.Size, order.EntryPrice, order.StopPrice, order.TargetPrice, order.Pattern)
	return order, RefusalNone
}

// UpdatePrice advances every working position against the latest trade
// price: confirms pending fills, ratchets breakeven stops, and closes
// positions whose stop or target was crossed.
func (m *Manager) UpdatePrice(price float64) []*Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastPrice = price
	var closed []*Trade
	remaining := m.positions[:0]
	for _, pos := range m.positions {
		if pos.Status == StatusPending {
			if m.confirmFill(pos, price) {
				remaining = append(remaining, pos)
			}
			continue
		}
		if trade := m.manageOpen(pos, price); trade != nil {
			closed = append(closed, trade)
			continue
		}
		remaining = append(remaining, pos)
	}
	m.positions = remaining

	for _, trade := range closed {
		m.settle(trade)
	}
	return closed
}

// confirmFill resolves a pending conservative entry. The fill stands once
// price trades one tick through the entry; a touch of the target first
// means the order would never have filled, so it is cancelled.
func (m *Manager) confirmFill(pos *Position, price float64) bool {
	if pos.Side == types.DirectionLong {
		if price <= pos.EntryPrice-m.tickSize {
			pos.Status = StatusOpen
			pos.OpenedAt = m.now()
			logger.Debugf("execution: pending %s confirmed at %v", pos.ID, price)
			return true
		}
		if price >= pos.TargetPrice {
			logger.Infof("execution: pending %s cancelled, target traded before fill", pos.ID)
			return false
		}
		return true
	}
	if price >= pos.EntryPrice+m.tickSize {
		pos.Status = StatusOpen
		pos.OpenedAt = m.now()
		logger.Debugf("execution: pending %s confirmed at %v", pos.ID, price)
		return true
	}
	if price <= pos.TargetPrice {
		logger.Infof("execution: pending %s cancelled, target traded before fill", pos.ID)
		return false
	}
	return true
}

func (m *Manager) manageOpen(pos *Position, price float64) *Trade {
	// Breakeven ratchet: once the trade has moved breakeven_ticks in
	// favor, the stop jumps to entry and never retreats.
	if m.session.BreakevenTicks > 0 && pos.unrealizedTicks(price, m.tickSize) >= float64(m.session.BreakevenTicks) {
		if pos.Side == types.DirectionLong && pos.CurrentStop < pos.EntryPrice {
			pos.CurrentStop = pos.EntryPrice
			logger.Debugf("execution: %s stop ratcheted to breakeven %v", pos.ID, pos.CurrentStop)
		}
		if pos.Side == types.DirectionShort && pos.CurrentStop > pos.EntryPrice {
			pos.CurrentStop = pos.EntryPrice
			logger.Debugf("execution: %s stop ratcheted to breakeven %v", pos.ID, pos.CurrentStop)
		}
	}

	if pos.Side == types.DirectionLong {
		if price <= pos.CurrentStop {
			return m.close(pos, pos.CurrentStop, ExitStop)
		}
		if m.targetHit(price, pos.TargetPrice, types.DirectionLong) {
			return m.close(pos, pos.TargetPrice, ExitTarget)
		}
		return nil
	}
	if price >= pos.CurrentStop {
		return m.close(pos, pos.CurrentStop, ExitStop)
	}
	if m.targetHit(price, pos.TargetPrice, types.DirectionShort) {
		return m.close(pos, pos.TargetPrice, ExitTarget)
	}
	return nil
}

// targetHit requires a trade through the target; conservative fills need
// one full tick beyond it.
func (m *Manager) targetHit(price, target float64, side types.Direction) bool {
	if side == types.DirectionLong {
		if m.session.ConservativeFills {
			return price >= target+m.tickSize
		}
		return price >= target
	}
	if m.session.ConservativeFills {
		return price <= target-m.tickSize
	}
	return price <= target
}

func (m *Manager) close(pos *Position, exitPrice float64, reason ExitReason) *Trade {
	var ticks float64
	if pos.Side == types.DirectionLong {
		ticks = (exitPrice - pos.EntryPrice) / m.tickSize
	} else {
		ticks = (pos.EntryPrice - exitPrice) / m.tickSize
	}
	pnl := ticks * m.tickValue * float64(pos.Size)
	return &Trade{
		ID:         pos.ID,
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Size:       pos.Size,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		PnLTicks:   ticks,
		ExitReason: reason,
		Pattern:    pos.Pattern,
		Regime:     pos.Regime,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   m.now(),
	}
}

// settle books a closed trade and applies the daily halt limits.
func (m *Manager) settle(trade *Trade) {
	m.dailyPnL += trade.PnL
	m.paperBalance += trade.PnL
	m.trades = append(m.trades, trade)
	logger.Infof("execution: closed %s %s pnl=%.2f (%s) daily=%.2f",
		trade.Side, trade.Symbol, trade.PnL, trade.ExitReason, m.dailyPnL)
	if m.onTrade != nil {
		m.onTrade(trade)
	}
	if m.halted {
		return
	}
	switch {
	case m.dailyPnL <= m.session.DailyLossLimit:
		m.halt(fmt.Sprintf("daily loss limit %.2f reached (pnl %.2f)", m.session.DailyLossLimit, m.dailyPnL))
	case m.dailyPnL >= m.session.DailyProfitTarget:
		m.halt(fmt.Sprintf("daily profit target %.2f reached (pnl %.2f)", m.session.DailyProfitTarget, m.dailyPnL))
	}
}

func (m *Manager) halt(reason string) {
	m.halted = true
	m.haltReason = reason
	logger.Warnf("execution: halted, %s", reason)
	if m.onHalt != nil {
		m.onHalt(reason)
	}
}

// Resume lifts a halt when the daily limits are no longer breached.
func (m *Manager) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.halted {
		return nil
	}
	if m.dailyPnL <= m.session.DailyLossLimit {
		return fmt.Errorf("execution: cannot resume, daily pnl %.2f still at or below loss limit %.2f",
			m.dailyPnL, m.session.DailyLossLimit)
	}
	if m.dailyPnL >= m.session.DailyProfitTarget {
		return fmt.Errorf("execution: cannot resume, daily pnl %.2f still at or above profit target %.2f",
			m.dailyPnL, m.session.DailyProfitTarget)
	}
	m.halted = false
	m.haltReason = ""
	logger.Infof("execution: resumed")
	return nil
}

// CloseAll flattens every working position at price. Pending fills are
// cancelled without producing a trade.
func (m *Manager) CloseAll(price float64, reason ExitReason) []*Trade {
	m.mu.Lock()
	defer m.mu.Unlock()

	if price == 0 {
		price = m.lastPrice
	}
	var closed []*Trade
	for _, pos := range m.positions {
		if pos.Status == StatusPending {
			logger.Infof("execution: pending %s cancelled on %s", pos.ID, reason)
			continue
		}
		closed = append(closed, m.close(pos, price, reason))
	}
	m.positions = nil
	for _, trade := range closed {
		m.settle(trade)
	}
	return closed
}

func (m *Manager) Halted() (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted, m.haltReason
}

func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dailyPnL
}

func (m *Manager) OpenPositions() []*Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Position, len(m.positions))
	copy(out, m.positions)
	return out
}

func (m *Manager) Trades() []*Trade {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Trade, len(m.trades))
	copy(out, m.trades)
	return out
}

// State summarizes execution for the dashboard.
func (m *Manager) State() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]any{
		"mode":           string(m.session.Mode),
		"halted":         m.halted,
		"halt_reason":    m.haltReason,
		"daily_pnl":      m.dailyPnL,
		"paper_balance":  m.paperBalance,
		"open_positions": len(m.positions),
		"closed_trades":  len(m.trades),
		"last_price":     m.lastPrice,
	}
}

// Statistics aggregates closed trades; profit factor is capped when the
// session has wins and no losses.
func (m *Manager) Statistics() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var s Stats
	s.TotalTrades = len(m.trades)
	if s.TotalTrades == 0 {
		return s
	}
	var grossWin, grossLoss float64
	for _, t := range m.trades {
		s.TotalPnL += t.PnL
		if t.PnL > 0 {
			s.Wins++
			grossWin += t.PnL
			if t.PnL > s.LargestWin {
				s.LargestWin = t.PnL
			}
		} else {
			s.Losses++
			grossLoss += -t.PnL
			if t.PnL < s.LargestLoss {
				s.LargestLoss = t.PnL
			}
		}
	}
	s.WinRate = float64(s.Wins) / float64(s.TotalTrades)
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -grossLoss / float64(s.Losses)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = ProfitFactorCap
	}
	return s
}
