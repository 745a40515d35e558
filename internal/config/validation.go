package config

import (
	"fmt"
	"time"
)

func validate(cfg *Config) error {
	if err := validateApp(&cfg.App); err != nil {
		return err
	}
	if err := validateEngine(&cfg.Engine); err != nil {
		return err
	}
	if err := cfg.Detector.Validate(); err != nil {
		return err
	}
	if err := cfg.Regime.Validate(); err != nil {
		return err
	}
	if err := validateMarket(&cfg.Market); err != nil {
		return err
	}
	// Session values validate fully when the session object is built;
	// only the shape checks live here.
	if cfg.Session.Mode != "paper" && cfg.Session.Mode != "live" {
		return fmt.Errorf("config: session.mode must be paper or live, got %q", cfg.Session.Mode)
	}
	return nil
}

func validateApp(app *AppConfig) error {
	switch app.LogLevel {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("config: app.log_level %q is not a known level", app.LogLevel)
}

func validateEngine(e *EngineConfig) error {
	if e.Symbol == "" {
		return fmt.Errorf("config: engine.symbol is required")
	}
	if e.TimeframeSeconds <= 0 {
		return fmt.Errorf("config: engine.timeframe_seconds must be positive, got %d", e.TimeframeSeconds)
	}
	if e.TickSize <= 0 {
		return fmt.Errorf("config: engine.tick_size must be positive, got %v", e.TickSize)
	}
	if e.TickValue <= 0 {
		return fmt.Errorf("config: engine.tick_value must be positive, got %v", e.TickValue)
	}
	return nil
}

func validateMarket(m *MarketConfig) error {
	switch m.Source {
	case "binance", "polygon", "replay":
	default:
		return fmt.Errorf("config: market.source %q is not one of binance, polygon, replay", m.Source)
	}
	if m.Source == "polygon" {
		if m.Polygon.APIKey == "" {
			return fmt.Errorf("config: market.polygon.api_key is required for the polygon source")
		}
		if m.Replay.From != "" {
			if _, err := time.Parse(time.RFC3339, m.Replay.From); err != nil {
				return fmt.Errorf("config: market.replay.from: %w", err)
			}
		}
		if m.Replay.To != "" {
			if _, err := time.Parse(time.RFC3339, m.Replay.To); err != nil {
				return fmt.Errorf("config: market.replay.to: %w", err)
			}
		}
	}
	return nil
}

// Timeframe returns the engine timeframe as a duration.
func (e EngineConfig) Timeframe() time.Duration {
	return time.Duration(e.TimeframeSeconds) * time.Second
}
