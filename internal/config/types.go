package config

import (
	"tapeflow/internal/orderflow/detector"
	"tapeflow/internal/regime"
)

// Config is the full application configuration tree.
type Config struct {
	App      AppConfig       `toml:"app" yaml:"app"`
	Engine   EngineConfig    `toml:"engine" yaml:"engine"`
	Detector detector.Config `toml:"detector" yaml:"detector"`
	Regime   regime.Config   `toml:"regime" yaml:"regime"`
	Session  SessionConfig   `toml:"session" yaml:"session"`
	Market   MarketConfig    `toml:"market" yaml:"market"`
	Store    StoreConfig     `toml:"store" yaml:"store"`
	Notify   NotifyConfig    `toml:"notify" yaml:"notify"`
	Report   ReportConfig    `toml:"report" yaml:"report"`
}

type AppConfig struct {
	LogLevel string `toml:"log_level" yaml:"log_level"`
	LogPath  string `toml:"log_path" yaml:"log_path"`
	HTTPAddr string `toml:"http_addr" yaml:"http_addr"`
}

type EngineConfig struct {
	Symbol           string  `toml:"symbol" yaml:"symbol"`
	TimeframeSeconds int     `toml:"timeframe_seconds" yaml:"timeframe_seconds"`
	TickSize         float64 `toml:"tick_size" yaml:"tick_size"`
	TickValue        float64 `toml:"tick_value" yaml:"tick_value"`
	QueueSize        int     `toml:"queue_size" yaml:"queue_size"`
}

// SessionConfig mirrors the trading session parameters; times of day are
// HH:MM:SS strings here and parsed when the session is built.
type SessionConfig struct {
	Mode                 string             `toml:"mode" yaml:"mode"`
	PaperStartingBalance float64            `toml:"paper_starting_balance" yaml:"paper_starting_balance"`
	PaperSlippageTicks   int                `toml:"paper_slippage_ticks" yaml:"paper_slippage_ticks"`
	ConservativeFills    bool               `toml:"conservative_fills" yaml:"conservative_fills"`
	DailyProfitTarget    float64            `toml:"daily_profit_target" yaml:"daily_profit_target"`
	DailyLossLimit       float64            `toml:"daily_loss_limit" yaml:"daily_loss_limit"`
	MaxPositionSize      int                `toml:"max_position_size" yaml:"max_position_size"`
	MaxConcurrentTrades  int                `toml:"max_concurrent_trades" yaml:"max_concurrent_trades"`
	StopLossTicks        int                `toml:"stop_loss_ticks" yaml:"stop_loss_ticks"`
	TakeProfitTicks      int                `toml:"take_profit_ticks" yaml:"take_profit_ticks"`
	BreakevenTicks       int                `toml:"breakeven_ticks" yaml:"breakeven_ticks"`
	TradingStart         string             `toml:"trading_start" yaml:"trading_start"`
	TradingEnd           string             `toml:"trading_end" yaml:"trading_end"`
	NoTradeWindows       []TimeWindowConfig `toml:"no_trade_windows" yaml:"no_trade_windows"`
	BypassTradingHours   bool               `toml:"bypass_trading_hours" yaml:"bypass_trading_hours"`
	EnabledPatterns      []string           `toml:"enabled_patterns" yaml:"enabled_patterns"`
	MinSignalStrength    float64            `toml:"min_signal_strength" yaml:"min_signal_strength"`
	MinRegimeConfidence  float64            `toml:"min_regime_confidence" yaml:"min_regime_confidence"`
	AllowMeanReversion   bool               `toml:"allow_mean_reversion" yaml:"allow_mean_reversion"`
	SnapshotPath         string             `toml:"snapshot_path" yaml:"snapshot_path"`
}

type TimeWindowConfig struct {
	Start string `toml:"start" yaml:"start"`
	End   string `toml:"end" yaml:"end"`
}

type MarketConfig struct {
	Source  string        `toml:"source" yaml:"source"`
	Binance BinanceConfig `toml:"binance" yaml:"binance"`
	Polygon PolygonConfig `toml:"polygon" yaml:"polygon"`
	Replay  ReplayConfig  `toml:"replay" yaml:"replay"`
}

type BinanceConfig struct {
	// LotSize converts fractional contract quantity into integer volume
	// units for the footprint.
	LotSize float64 `toml:"lot_size" yaml:"lot_size"`
}

type PolygonConfig struct {
	APIKey  string `toml:"api_key" yaml:"api_key"`
	BaseURL string `toml:"base_url" yaml:"base_url"`
	Limit   int    `toml:"limit" yaml:"limit"`
}

type ReplayConfig struct {
	// Speed multiplies playback; 0 replays as fast as possible.
	Speed float64 `toml:"speed" yaml:"speed"`
	From  string  `toml:"from" yaml:"from"`
	To    string  `toml:"to" yaml:"to"`
}

type StoreConfig struct {
	Enabled      bool   `toml:"enabled" yaml:"enabled"`
	Path         string `toml:"path" yaml:"path"`
	PersistTicks bool   `toml:"persist_ticks" yaml:"persist_ticks"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram" yaml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	BotToken string `toml:"bot_token" yaml:"bot_token"`
	ChatID   string `toml:"chat_id" yaml:"chat_id"`
}

type ReportConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Dir     string `toml:"dir" yaml:"dir"`
}
