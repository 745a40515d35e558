package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Mode selects how orders are filled.
type Mode string

const (
	ModePaper Mode = "paper"
	ModeLive  Mode = "live"
)

// TimeOfDay is a wall-clock time without a date, serialized as HH:MM:SS.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d:%d", &t.Hour, &t.Minute, &t.Second); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 || t.Second < 0 || t.Second > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

func (t TimeOfDay) SecondOfDay() int {
	return t.Hour*3600 + t.Minute*60 + t.Second
}

// Window is a [Start, End) slice of the trading day.
type Window struct {
	Start TimeOfDay `mapstructure:"start"`
	End   TimeOfDay `mapstructure:"end"`
}

func (w Window) Contains(t time.Time) bool {
	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	return sec >= w.Start.SecondOfDay() && sec < w.End.SecondOfDay()
}

// Session carries all risk and routing parameters for one trading day.
type Session struct {
	SessionID string `mapstructure:"session_id"`
	Mode      Mode   `mapstructure:"mode"`
	Symbol    string `mapstructure:"symbol"`

	PaperStartingBalance float64 `mapstructure:"paper_starting_balance"`
	PaperSlippageTicks   int     `mapstructure:"paper_slippage_ticks"`
	ConservativeFills    bool    `mapstructure:"conservative_fills"`

	DailyProfitTarget float64 `mapstructure:"daily_profit_target"`
	DailyLossLimit    float64 `mapstructure:"daily_loss_limit"`

	MaxPositionSize     int `mapstructure:"max_position_size"`
	MaxConcurrentTrades int `mapstructure:"max_concurrent_trades"`

	StopLossTicks   int `mapstructure:"stop_loss_ticks"`
	TakeProfitTicks int `mapstructure:"take_profit_ticks"`
	BreakevenTicks  int `mapstructure:"breakeven_ticks"`

	TradingStart       TimeOfDay `mapstructure:"trading_start"`
	TradingEnd         TimeOfDay `mapstructure:"trading_end"`
	NoTradeWindows     []Window  `mapstructure:"no_trade_windows"`
	BypassTradingHours bool      `mapstructure:"bypass_trading_hours"`

	EnabledPatterns     []string `mapstructure:"enabled_patterns"`
	MinSignalStrength   float64  `mapstructure:"min_signal_strength"`
	MinRegimeConfidence float64  `mapstructure:"min_regime_confidence"`
	AllowMeanReversion  bool     `mapstructure:"allow_mean_reversion"`

	StartedAt time.Time `mapstructure:"started_at"`
	EndedAt   time.Time `mapstructure:"ended_at"`
}

// DefaultSession returns a paper session tuned for index-future scalping
// in regular hours, with the midday chop window blocked.
func DefaultSession(symbol string) *Session {
	return &Session{
		SessionID:            uuid.NewString(),
		Mode:                 ModePaper,
		Symbol:               symbol,
		PaperStartingBalance: 10000,
		PaperSlippageTicks:   1,
		ConservativeFills:    false,
		DailyProfitTarget:    500,
		DailyLossLimit:       -300,
		MaxPositionSize:      2,
		MaxConcurrentTrades:  1,
		StopLossTicks:        5,
		TakeProfitTicks:      4,
		BreakevenTicks:       2,
		TradingStart:         TimeOfDay{Hour: 9, Minute: 30},
		TradingEnd:           TimeOfDay{Hour: 15, Minute: 45},
		NoTradeWindows: []Window{
			{Start: TimeOfDay{Hour: 12}, End: TimeOfDay{Hour: 13}},
		},
		MinSignalStrength:   0.6,
		MinRegimeConfidence: 0.7,
	}
}

func (s *Session) Validate() error {
	if s.Symbol == "" {
		return fmt.Errorf("session: symbol is required")
	}
	if s.Mode != ModePaper && s.Mode != ModeLive {
		return fmt.Errorf("session: mode must be paper or live, got %q", s.Mode)
	}
	if s.DailyLossLimit >= 0 {
		return fmt.Errorf("session: daily_loss_limit must be negative, got %v", s.DailyLossLimit)
	}
	if s.DailyProfitTarget <= 0 {
		return fmt.Errorf("session: daily_profit_target must be positive, got %v", s.DailyProfitTarget)
	}
	if s.MaxPositionSize < 1 {
		return fmt.Errorf("session: max_position_size must be at least 1, got %d", s.MaxPositionSize)
	}
	if s.MaxConcurrentTrades < 1 {
		return fmt.Errorf("session: max_concurrent_trades must be at least 1, got %d", s.MaxConcurrentTrades)
	}
	if s.StopLossTicks <= 0 || s.TakeProfitTicks <= 0 {
		return fmt.Errorf("session: stop_loss_ticks and take_profit_ticks must be positive")
	}
	if s.BreakevenTicks < 0 {
		return fmt.Errorf("session: breakeven_ticks must not be negative, got %d", s.BreakevenTicks)
	}
	if s.PaperSlippageTicks < 0 {
		return fmt.Errorf("session: paper_slippage_ticks must not be negative, got %d", s.PaperSlippageTicks)
	}
	if s.MinSignalStrength < 0 || s.MinSignalStrength > 1 {
		return fmt.Errorf("session: min_signal_strength must be in [0,1], got %v", s.MinSignalStrength)
	}
	if s.MinRegimeConfidence < 0 || s.MinRegimeConfidence > 1 {
		return fmt.Errorf("session: min_regime_confidence must be in [0,1], got %v", s.MinRegimeConfidence)
	}
	if !s.BypassTradingHours && s.TradingStart.SecondOfDay() >= s.TradingEnd.SecondOfDay() {
		return fmt.Errorf("session: trading_start %s must precede trading_end %s", s.TradingStart, s.TradingEnd)
	}
	for _, w := range s.NoTradeWindows {
		if w.Start.SecondOfDay() >= w.End.SecondOfDay() {
			return fmt.Errorf("session: no-trade window %s-%s is empty", w.Start, w.End)
		}
	}
	return nil
}

// WithinTradingHours reports whether t falls inside trading hours and
// outside every no-trade window.
func (s *Session) WithinTradingHours(t time.Time) bool {
	if s.BypassTradingHours {
		return true
	}
	sec := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if sec < s.TradingStart.SecondOfDay() || sec >= s.TradingEnd.SecondOfDay() {
		return false
	}
	for _, w := range s.NoTradeWindows {
		if w.Contains(t) {
			return false
		}
	}
	return true
}

// ToMap flattens the session into plain types suitable for YAML or JSON:
// times of day as HH:MM:SS, datetimes as RFC 3339.
func (s *Session) ToMap() map[string]any {
	windows := make([]map[string]any, 0, len(s.NoTradeWindows))
	for _, w := range s.NoTradeWindows {
		windows = append(windows, map[string]any{"start": w.Start.String(), "end": w.End.String()})
	}
	m := map[string]any{
		"session_id":             s.SessionID,
		"mode":                   string(s.Mode),
		"symbol":                 s.Symbol,
		"paper_starting_balance": s.PaperStartingBalance,
		"paper_slippage_ticks":   s.PaperSlippageTicks,
		"conservative_fills":     s.ConservativeFills,
		"daily_profit_target":    s.DailyProfitTarget,
		"daily_loss_limit":       s.DailyLossLimit,
		"max_position_size":      s.MaxPositionSize,
		"max_concurrent_trades":  s.MaxConcurrentTrades,
		"stop_loss_ticks":        s.StopLossTicks,
		"take_profit_ticks":      s.TakeProfitTicks,
		"breakeven_ticks":        s.BreakevenTicks,
		"trading_start":          s.TradingStart.String(),
		"trading_end":            s.TradingEnd.String(),
		"no_trade_windows":       windows,
		"bypass_trading_hours":   s.BypassTradingHours,
		"enabled_patterns":       append([]string(nil), s.EnabledPatterns...),
		"min_signal_strength":    s.MinSignalStrength,
		"min_regime_confidence":  s.MinRegimeConfidence,
		"allow_mean_reversion":   s.AllowMeanReversion,
	}
	if !s.StartedAt.IsZero() {
		m["started_at"] = s.StartedAt.Format(time.RFC3339Nano)
	}
	if !s.EndedAt.IsZero() {
		m["ended_at"] = s.EndedAt.Format(time.RFC3339Nano)
	}
	return m
}

// SessionFromMap rebuilds a session from ToMap output. The round trip is
// lossless.
func SessionFromMap(m map[string]any) (*Session, error) {
	var s Session
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &s,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(timeOfDayHook, timestampHook),
	})
	if err != nil {
		return nil, fmt.Errorf("session decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func timeOfDayHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(TimeOfDay{}) {
		return data, nil
	}
	return ParseTimeOfDay(data.(string))
}

func timestampHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := data.(string)
	if s == "" {
		return time.Time{}, nil
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts, nil
}

// SaveFile writes the session snapshot as YAML.
func (s *Session) SaveFile(path string) error {
	data, err := yaml.Marshal(s.ToMap())
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create session dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// LoadSessionFile reads a snapshot written by SaveFile.
func LoadSessionFile(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal session file: %w", err)
	}
	return SessionFromMap(m)
}
