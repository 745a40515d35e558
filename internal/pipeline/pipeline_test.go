package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapeflow/internal/execution"
	"tapeflow/internal/orderflow"
	"tapeflow/internal/orderflow/detector"
	"tapeflow/internal/regime"
	"tapeflow/internal/types"
)

var barStart = time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)

func testPipeline(t *testing.T, cb Callbacks, queueSize int) *Pipeline {
	t.Helper()
	engine, err := orderflow.NewEngine(time.Minute, 0.25, detector.DefaultConfig(), nil)
	require.NoError(t, err)
	session := execution.DefaultSession("MES")
	exec, err := execution.NewManager(session, 0.25, 12.5)
	require.NoError(t, err)
	router, err := regime.NewRouter(regime.DefaultConfig(), session, nil)
	require.NoError(t, err)
	pipe, err := New(engine, router, exec, cb, queueSize)
	require.NoError(t, err)
	return pipe
}

func tick(offset time.Duration, price float64, volume int64, side types.Side) types.Tick {
	return types.Tick{
		Timestamp: barStart.Add(offset),
		Symbol:    "MES",
		Price:     price,
		Volume:    volume,
		Side:      side,
	}
}

func TestPipelineEmitsCompletedBars(t *testing.T) {
	bars := make(chan *types.FootprintBar, 8)
	pipe := testPipeline(t, Callbacks{
		OnBar: func(b *types.FootprintBar) { bars <- b },
	}, 64)

	ctx := context.Background()
	pipe.Start(ctx)

	require.NoError(t, pipe.Push(ctx, tick(0, 100.0, 5, types.SideAsk)))
	require.NoError(t, pipe.Push(ctx, tick(10*time.Second, 100.25, 3, types.SideAsk)))
	require.NoError(t, pipe.Push(ctx, tick(20*time.Second, 99.75, 4, types.SideBid)))
	// Garbage on the wire must not disturb the bar.
	require.NoError(t, pipe.Push(ctx, tick(30*time.Second, 100.0, 0, types.SideBid)))
	// The boundary tick closes the first bar and opens the next.
	require.NoError(t, pipe.Push(ctx, tick(time.Minute, 100.0, 1, types.SideAsk)))

	var bar *types.FootprintBar
	select {
	case bar = <-bars:
	case <-time.After(2 * time.Second):
		t.Fatal("no bar published")
	}

	assert.Equal(t, barStart, bar.Start)
	assert.Equal(t, 100.0, bar.Open)
	assert.Equal(t, 100.25, bar.High)
	assert.Equal(t, 99.75, bar.Low)
	assert.Equal(t, 99.75, bar.Close)
	assert.Equal(t, int64(12), bar.Volume)
	assert.Equal(t, int64(4), bar.Delta)
	assert.Len(t, bar.Levels, 3)

	// The boundary tick started a second bar; shutdown discards it
	// rather than emitting a partial.
	pipe.Stop()
	assert.Empty(t, bars)
	assert.Zero(t, pipe.DroppedEvents())
}

func TestPipelineShedsEventsWhenPublisherStalls(t *testing.T) {
	var (
		calls   atomic.Int64
		gate    sync.Once
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	pipe := testPipeline(t, Callbacks{
		OnBar: func(*types.FootprintBar) {
			calls.Add(1)
			gate.Do(func() {
				entered <- struct{}{}
				<-release
			})
		},
	}, 1)

	ctx := context.Background()
	pipe.Start(ctx)

	// One tick per minute: each boundary tick completes the previous bar.
	require.NoError(t, pipe.Push(ctx, tick(0, 100.0, 1, types.SideAsk)))
	require.NoError(t, pipe.Push(ctx, tick(time.Minute, 100.0, 1, types.SideAsk)))

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher never reached the callback")
	}

	// With the consumer wedged and a queue of one, only a single further
	// bar can be buffered; the rest are shed.
	for i := 2; i <= 4; i++ {
		require.NoError(t, pipe.Push(ctx, tick(time.Duration(i)*time.Minute, 100.0, 1, types.SideAsk)))
	}
	assert.Eventually(t, func() bool { return pipe.DroppedEvents() == 2 }, 2*time.Second, 10*time.Millisecond)

	close(release)
	pipe.Stop()
	assert.Equal(t, int64(2), calls.Load())
}

func TestPipelineSurvivesCallbackPanic(t *testing.T) {
	var calls atomic.Int64
	bars := make(chan *types.FootprintBar, 8)
	pipe := testPipeline(t, Callbacks{
		OnBar: func(b *types.FootprintBar) {
			if calls.Add(1) == 1 {
				panic("consumer bug")
			}
			bars <- b
		},
	}, 64)

	ctx := context.Background()
	pipe.Start(ctx)

	require.NoError(t, pipe.Push(ctx, tick(0, 100.0, 1, types.SideAsk)))
	require.NoError(t, pipe.Push(ctx, tick(time.Minute, 100.0, 1, types.SideAsk)))
	require.NoError(t, pipe.Push(ctx, tick(2*time.Minute, 100.0, 1, types.SideAsk)))

	select {
	case <-bars:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline died with the panicking callback")
	}
	pipe.Stop()
}

// TestPipelineOpensBracketOnStackedImbalanceInTrend drives the composed
// path end to end: a one-way tape warms the classifier into a confident
// uptrend, then a bar printing a three-level 3:1 ask stack yields exactly
// one approved long and a bracket order priced off the last trade.
func TestPipelineOpensBracketOnStackedImbalanceInTrend(t *testing.T) {
	engine, err := orderflow.NewEngine(time.Minute, 0.25, detector.DefaultConfig(), nil)
	require.NoError(t, err)
	session := execution.DefaultSession("MES")
	session.MinSignalStrength = 0.70
	session.MinRegimeConfidence = 0.60
	exec, err := execution.NewManager(session, 0.25, 12.5)
	require.NoError(t, err)
	router, err := regime.NewRouter(regime.DefaultConfig(), session, nil)
	require.NoError(t, err)
	clock := func() time.Time {
		return time.Date(2025, 3, 14, 10, 30, 0, 0, time.UTC)
	}
	exec.SetClock(clock)
	router.SetClock(clock)

	signals := make(chan types.Signal, 8)
	pipe, err := New(engine, router, exec, Callbacks{
		OnSignal: func(s types.Signal) { signals <- s },
	}, 256)
	require.NoError(t, err)

	ctx := context.Background()
	pipe.Start(ctx)

	// Thirty-three bars climbing a point per minute with no downside
	// movement: directional movement is one-sided, so ADX saturates and
	// the classifier settles into TRENDING_UP well past its hold.
	for i := 0; i < 33; i++ {
		price := 4960.0 + float64(i)
		require.NoError(t, pipe.Push(ctx, tick(time.Duration(i)*time.Minute, price, 10, types.SideAsk)))
	}

	// The signal bar prints three adjacent levels of ask volume dwarfing
	// the bid diagonally below, closing on the high.
	base := 4999.0
	barOffset := 33 * time.Minute
	prints := []struct {
		price float64
		vol   int64
		side  types.Side
	}{
		{base, 2, types.SideBid},
		{base + 0.25, 2, types.SideBid},
		{base + 0.50, 3, types.SideBid},
		{base + 0.25, 30, types.SideAsk},
		{base + 0.50, 30, types.SideAsk},
		{base + 0.75, 30, types.SideAsk},
	}
	for i, p := range prints {
		require.NoError(t, pipe.Push(ctx, tick(barOffset+time.Duration(i)*time.Second, p.price, p.vol, p.side)))
	}
	// The boundary tick completes the signal bar and prices the entry.
	require.NoError(t, pipe.Push(ctx, tick(34*time.Minute, 5000.0, 1, types.SideAsk)))
	pipe.Stop()

	var sig types.Signal
	select {
	case sig = <-signals:
	default:
		t.Fatal("no signal published")
	}
	assert.Equal(t, types.PatternStackedBuyImbalance, sig.Pattern)
	assert.Equal(t, types.DirectionLong, sig.Direction)
	assert.Equal(t, types.RegimeTrendingUp, sig.Regime)
	assert.True(t, sig.Approved)
	// Base 0.6 stack strength scaled up for trading with the trend.
	assert.InDelta(t, 0.72, sig.Strength, 1e-9)
	assert.Empty(t, signals, "exactly one signal for the stack")

	positions := exec.OpenPositions()
	require.Len(t, positions, 1)
	pos := positions[0]
	assert.Equal(t, types.DirectionLong, pos.Side)
	assert.Equal(t, 2, pos.Size)
	assert.InDelta(t, 5000.25, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 5000.25-5*0.25, pos.StopPrice, 1e-9)
	assert.InDelta(t, 5000.25+4*0.25, pos.TargetPrice, 1e-9)
}

func TestPipelinePushAfterStopRefused(t *testing.T) {
	pipe := testPipeline(t, Callbacks{}, 8)
	pipe.Start(context.Background())
	pipe.Stop()

	err := pipe.Push(context.Background(), tick(0, 100.0, 1, types.SideAsk))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPipelinePushHonorsContext(t *testing.T) {
	pipe := testPipeline(t, Callbacks{}, 1)
	// Never started: the queue fills and Push must fall back to ctx.
	require.NoError(t, pipe.Push(context.Background(), tick(0, 100.0, 1, types.SideAsk)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := pipe.Push(ctx, tick(time.Second, 100.0, 1, types.SideAsk))
	assert.ErrorIs(t, err, context.Canceled)
}
