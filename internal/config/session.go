package config

import (
	"fmt"

	"tapeflow/internal/execution"
)

// BuildSession turns the session section into a validated trading
// session for the given symbol.
func (sc SessionConfig) BuildSession(symbol string) (*execution.Session, error) {
	s := execution.DefaultSession(symbol)
	s.Mode = execution.Mode(sc.Mode)
	s.PaperStartingBalance = sc.PaperStartingBalance
	s.PaperSlippageTicks = sc.PaperSlippageTicks
	s.ConservativeFills = sc.ConservativeFills
	s.DailyProfitTarget = sc.DailyProfitTarget
	s.DailyLossLimit = sc.DailyLossLimit
	s.MaxPositionSize = sc.MaxPositionSize
	s.MaxConcurrentTrades = sc.MaxConcurrentTrades
	s.StopLossTicks = sc.StopLossTicks
	s.TakeProfitTicks = sc.TakeProfitTicks
	s.BreakevenTicks = sc.BreakevenTicks
	s.BypassTradingHours = sc.BypassTradingHours
	s.EnabledPatterns = append([]string(nil), sc.EnabledPatterns...)
	s.MinSignalStrength = sc.MinSignalStrength
	s.MinRegimeConfidence = sc.MinRegimeConfidence
	s.AllowMeanReversion = sc.AllowMeanReversion

	var err error
	if s.TradingStart, err = execution.ParseTimeOfDay(sc.TradingStart); err != nil {
		return nil, fmt.Errorf("config: session.trading_start: %w", err)
	}
	if s.TradingEnd, err = execution.ParseTimeOfDay(sc.TradingEnd); err != nil {
		return nil, fmt.Errorf("config: session.trading_end: %w", err)
	}
	if len(sc.NoTradeWindows) > 0 {
		s.NoTradeWindows = s.NoTradeWindows[:0]
		for _, w := range sc.NoTradeWindows {
			start, err := execution.ParseTimeOfDay(w.Start)
			if err != nil {
				return nil, fmt.Errorf("config: session.no_trade_windows.start: %w", err)
			}
			end, err := execution.ParseTimeOfDay(w.End)
			if err != nil {
				return nil, fmt.Errorf("config: session.no_trade_windows.end: %w", err)
			}
			s.NoTradeWindows = append(s.NoTradeWindows, execution.Window{Start: start, End: end})
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}
