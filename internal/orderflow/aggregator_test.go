package orderflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapeflow/internal/types"
)

func tick(ts time.Time, price float64, volume int64, side types.Side) types.Tick {
	return types.Tick{Timestamp: ts, Symbol: "MES", Price: price, Volume: volume, Side: side}
}

func TestNewAggregatorValidation(t *testing.T) {
	_, err := NewAggregator(0, 0.25)
	require.Error(t, err)
	_, err = NewAggregator(time.Minute, 0)
	require.Error(t, err)
	_, err = NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)
}

func TestAggregatorAccumulatesLevels(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)

	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	bar, ok := agg.Process(tick(base, 100.0, 5, types.SideAsk))
	require.True(t, ok)
	assert.Nil(t, bar)
	_, ok = agg.Process(tick(base.Add(5*time.Second), 100.0, 3, types.SideBid))
	require.True(t, ok)
	_, ok = agg.Process(tick(base.Add(10*time.Second), 100.25, 7, types.SideAsk))
	require.True(t, ok)

	cur := agg.Current()
	require.NotNil(t, cur)
	assert.Equal(t, 100.0, cur.Open)
	assert.Equal(t, 100.25, cur.High)
	assert.Equal(t, 100.0, cur.Low)
	assert.Equal(t, 100.25, cur.Close)
	assert.Equal(t, int64(15), cur.Volume)
	assert.Equal(t, int64(9), cur.Delta)
	assert.Equal(t, 3, cur.TickCount)

	lvl := cur.Levels[100.0]
	require.NotNil(t, lvl)
	assert.Equal(t, int64(5), lvl.AskVolume)
	assert.Equal(t, int64(3), lvl.BidVolume)
}

func TestAggregatorVolumeInvariant(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)

	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	prices := []float64{100.0, 100.25, 100.5, 100.25, 99.75, 100.0}
	for i, p := range prices {
		side := types.SideAsk
		if i%2 == 1 {
			side = types.SideBid
		}
		_, ok := agg.Process(tick(base.Add(time.Duration(i)*time.Second), p, int64(i+1), side))
		require.True(t, ok)
	}
	bar, ok := agg.Process(tick(base.Add(time.Minute), 100.0, 1, types.SideAsk))
	require.True(t, ok)
	require.NotNil(t, bar)

	var total, delta int64
	for _, lvl := range bar.Levels {
		total += lvl.TotalVolume()
		delta += lvl.Delta()
	}
	assert.Equal(t, bar.Volume, total)
	assert.Equal(t, bar.Delta, delta)
}

func TestAggregatorHalfOpenWindow(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)

	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	_, ok := agg.Process(tick(base, 100.0, 1, types.SideAsk))
	require.True(t, ok)
	_, ok = agg.Process(tick(base.Add(59*time.Second+999*time.Millisecond), 100.25, 1, types.SideAsk))
	require.True(t, ok)

	// The boundary tick closes the first bar and opens the next.
	bar, ok := agg.Process(tick(base.Add(time.Minute), 100.5, 1, types.SideAsk))
	require.True(t, ok)
	require.NotNil(t, bar)
	assert.Equal(t, base, bar.Start)
	assert.Equal(t, base.Add(time.Minute), bar.End)
	assert.Equal(t, 2, bar.TickCount)

	cur := agg.Current()
	require.NotNil(t, cur)
	assert.Equal(t, base.Add(time.Minute), cur.Start)
	assert.Equal(t, 100.5, cur.Open)
}

func TestAggregatorRejectsInvalidTicks(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name string
		tick types.Tick
	}{
		{"zero price", tick(base, 0, 1, types.SideAsk)},
		{"negative price", tick(base, -5, 1, types.SideAsk)},
		{"zero volume", tick(base, 100, 0, types.SideAsk)},
		{"unknown side", types.Tick{Timestamp: base, Price: 100, Volume: 1, Side: "BUY"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := agg.Process(tc.tick)
			assert.False(t, ok)
		})
	}
	assert.Equal(t, int64(len(cases)), agg.Rejected())
}

func TestAggregatorRejectsOutOfOrderTicks(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	_, ok := agg.Process(tick(base.Add(70*time.Second), 100.0, 1, types.SideAsk))
	require.True(t, ok)
	_, ok = agg.Process(tick(base.Add(30*time.Second), 100.0, 1, types.SideAsk))
	assert.False(t, ok)
	assert.Equal(t, int64(1), agg.Rejected())
}

func TestAggregatorSnapsToGrid(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	_, ok := agg.Process(tick(base, 100.12, 1, types.SideAsk))
	require.True(t, ok)
	cur := agg.Current()
	_, found := cur.Levels[100.0]
	assert.True(t, found, "100.12 should bucket to 100.0")

	_, ok = agg.Process(tick(base.Add(time.Second), 100.13, 1, types.SideAsk))
	require.True(t, ok)
	_, found = cur.Levels[100.25]
	assert.True(t, found, "100.13 should bucket to 100.25")
}

func TestAggregatorReset(t *testing.T) {
	agg, err := NewAggregator(time.Minute, 0.25)
	require.NoError(t, err)
	base := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

	_, ok := agg.Process(tick(base, 100.0, 1, types.SideAsk))
	require.True(t, ok)
	agg.Reset()
	assert.Nil(t, agg.Current())
	assert.Equal(t, int64(0), agg.Completed())
}
