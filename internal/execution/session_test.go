package execution

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30:00")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 9, Minute: 30}, tod)
	assert.Equal(t, "09:30:00", tod.String())

	_, err = ParseTimeOfDay("25:00:00")
	assert.Error(t, err)
	_, err = ParseTimeOfDay("not a time")
	assert.Error(t, err)
}

func TestDefaultSessionValidates(t *testing.T) {
	s := DefaultSession("MES")
	require.NoError(t, s.Validate())
	assert.NotEmpty(t, s.SessionID)
	assert.Equal(t, ModePaper, s.Mode)
}

func TestSessionValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Session)
	}{
		{"empty symbol", func(s *Session) { s.Symbol = "" }},
		{"bad mode", func(s *Session) { s.Mode = "dry-run" }},
		{"positive loss limit", func(s *Session) { s.DailyLossLimit = 100 }},
		{"zero profit target", func(s *Session) { s.DailyProfitTarget = 0 }},
		{"zero position size", func(s *Session) { s.MaxPositionSize = 0 }},
		{"zero stop", func(s *Session) { s.StopLossTicks = 0 }},
		{"strength out of range", func(s *Session) { s.MinSignalStrength = 1.5 }},
		{"inverted hours", func(s *Session) { s.TradingStart, s.TradingEnd = s.TradingEnd, s.TradingStart }},
		{"empty window", func(s *Session) {
			s.NoTradeWindows = []Window{{Start: TimeOfDay{Hour: 13}, End: TimeOfDay{Hour: 12}}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSession("MES")
			tc.mutate(s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestWithinTradingHours(t *testing.T) {
	s := DefaultSession("MES")
	day := func(h, m int) time.Time {
		return time.Date(2025, 3, 14, h, m, 0, 0, time.UTC)
	}

	assert.False(t, s.WithinTradingHours(day(9, 29)))
	assert.True(t, s.WithinTradingHours(day(9, 30)))
	assert.True(t, s.WithinTradingHours(day(11, 59)))
	assert.False(t, s.WithinTradingHours(day(12, 30)), "lunch window blocks trading")
	assert.True(t, s.WithinTradingHours(day(13, 0)))
	assert.False(t, s.WithinTradingHours(day(15, 45)), "end bound is exclusive")

	s.BypassTradingHours = true
	assert.True(t, s.WithinTradingHours(day(3, 0)))
}

func TestSessionMapRoundTrip(t *testing.T) {
	s := DefaultSession("MES")
	s.EnabledPatterns = []string{"STACKED_BUY_IMBALANCE", "BUYING_EXHAUSTION"}
	s.AllowMeanReversion = true
	s.StartedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	s.EndedAt = time.Date(2025, 3, 14, 16, 0, 0, 0, time.UTC)

	restored, err := SessionFromMap(s.ToMap())
	require.NoError(t, err)
	assert.Equal(t, s, restored)
}

func TestSessionFileRoundTrip(t *testing.T) {
	s := DefaultSession("MES")
	s.StartedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "session.yaml")

	require.NoError(t, s.SaveFile(path))
	restored, err := LoadSessionFile(path)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, restored.SessionID)
	assert.Equal(t, s.TradingStart, restored.TradingStart)
	assert.Equal(t, s.NoTradeWindows, restored.NoTradeWindows)
	assert.True(t, s.StartedAt.Equal(restored.StartedAt))
}

func TestSessionFromMapRejectsBadTime(t *testing.T) {
	m := DefaultSession("MES").ToMap()
	m["trading_start"] = "99:99:99"
	_, err := SessionFromMap(m)
	assert.Error(t, err)
}
