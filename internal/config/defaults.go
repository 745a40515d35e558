package config

import (
	"tapeflow/internal/orderflow/detector"
	"tapeflow/internal/regime"
)

// applyDefaults fills zero-valued fields. Booleans keep their zero value,
// explicit false and unset are indistinguishable and default off.
func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":8080"
	}

	if c.Engine.Symbol == "" {
		c.Engine.Symbol = "MES"
	}
	if c.Engine.TimeframeSeconds == 0 {
		c.Engine.TimeframeSeconds = 60
	}
	if c.Engine.TickSize == 0 {
		c.Engine.TickSize = 0.25
	}
	if c.Engine.TickValue == 0 {
		c.Engine.TickValue = 1.25
	}
	if c.Engine.QueueSize == 0 {
		c.Engine.QueueSize = 4096
	}

	def := detector.DefaultConfig()
	if c.Detector.ImbalanceRatio == 0 {
		c.Detector.ImbalanceRatio = def.ImbalanceRatio
	}
	if c.Detector.ImbalanceMinVolume == 0 {
		c.Detector.ImbalanceMinVolume = def.ImbalanceMinVolume
	}
	if c.Detector.StackedMin == 0 {
		c.Detector.StackedMin = def.StackedMin
	}
	if c.Detector.ExhaustionLevels == 0 {
		c.Detector.ExhaustionLevels = def.ExhaustionLevels
	}
	if c.Detector.ExhaustionMinDecline == 0 {
		c.Detector.ExhaustionMinDecline = def.ExhaustionMinDecline
	}
	if c.Detector.AbsorptionMinVolume == 0 {
		c.Detector.AbsorptionMinVolume = def.AbsorptionMinVolume
	}
	if c.Detector.AbsorptionDominance == 0 {
		c.Detector.AbsorptionDominance = def.AbsorptionDominance
	}
	if c.Detector.DivergenceLookback == 0 {
		c.Detector.DivergenceLookback = def.DivergenceLookback
	}
	if c.Detector.UnfinishedMaxVolume == 0 {
		c.Detector.UnfinishedMaxVolume = def.UnfinishedMaxVolume
	}

	reg := regime.DefaultConfig()
	if c.Regime.ADXTrendThreshold == 0 {
		c.Regime.ADXTrendThreshold = reg.ADXTrendThreshold
	}
	if c.Regime.ADXWeakThreshold == 0 {
		c.Regime.ADXWeakThreshold = reg.ADXWeakThreshold
	}
	if c.Regime.ATRHighPercentile == 0 {
		c.Regime.ATRHighPercentile = reg.ATRHighPercentile
	}
	if c.Regime.MinBarsInRegime == 0 {
		c.Regime.MinBarsInRegime = reg.MinBarsInRegime
	}
	if c.Regime.HistoryBars == 0 {
		c.Regime.HistoryBars = reg.HistoryBars
	}
	if c.Regime.SlopeBars == 0 {
		c.Regime.SlopeBars = reg.SlopeBars
	}

	if c.Session.Mode == "" {
		c.Session.Mode = "paper"
	}
	if c.Session.PaperStartingBalance == 0 {
		c.Session.PaperStartingBalance = 10000
	}
	if c.Session.DailyProfitTarget == 0 {
		c.Session.DailyProfitTarget = 500
	}
	if c.Session.DailyLossLimit == 0 {
		c.Session.DailyLossLimit = -300
	}
	if c.Session.MaxPositionSize == 0 {
		c.Session.MaxPositionSize = 2
	}
	if c.Session.MaxConcurrentTrades == 0 {
		c.Session.MaxConcurrentTrades = 1
	}
	if c.Session.StopLossTicks == 0 {
		c.Session.StopLossTicks = 5
	}
	if c.Session.TakeProfitTicks == 0 {
		c.Session.TakeProfitTicks = 4
	}
	if c.Session.BreakevenTicks == 0 {
		c.Session.BreakevenTicks = 2
	}
	if c.Session.PaperSlippageTicks == 0 {
		c.Session.PaperSlippageTicks = 1
	}
	if c.Session.TradingStart == "" {
		c.Session.TradingStart = "09:30:00"
	}
	if c.Session.TradingEnd == "" {
		c.Session.TradingEnd = "15:45:00"
	}
	if c.Session.MinSignalStrength == 0 {
		c.Session.MinSignalStrength = 0.6
	}
	if c.Session.MinRegimeConfidence == 0 {
		c.Session.MinRegimeConfidence = 0.7
	}

	if c.Market.Source == "" {
		c.Market.Source = "replay"
	}
	if c.Market.Binance.LotSize == 0 {
		c.Market.Binance.LotSize = 0.001
	}
	if c.Market.Polygon.BaseURL == "" {
		c.Market.Polygon.BaseURL = "https://api.polygon.io"
	}
	if c.Market.Polygon.Limit == 0 {
		c.Market.Polygon.Limit = 50000
	}

	if c.Store.Path == "" {
		c.Store.Path = "data/tapeflow.db"
	}
	if c.Report.Dir == "" {
		c.Report.Dir = "reports"
	}
}
