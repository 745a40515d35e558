package market

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// ReplaySource plays a prepared tick slice through the Source interface.
// Ticks are sorted by timestamp so the pipeline always sees a
// non-decreasing stream. Speed > 0 paces playback against the original
// inter-tick gaps; speed 0 replays as fast as the consumer drains.
type ReplaySource struct {
	ticks  []types.Tick
	speed  float64
	cancel context.CancelFunc
}

func NewReplaySource(ticks []types.Tick, speed float64) (*ReplaySource, error) {
	if len(ticks) == 0 {
		return nil, fmt.Errorf("replay source: no ticks to replay")
	}
	if speed < 0 {
		return nil, fmt.Errorf("replay source: speed must not be negative, got %v", speed)
	}
	sorted := make([]types.Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return &ReplaySource{ticks: sorted, speed: speed}, nil
}

func (s *ReplaySource) SubscribeTicks(ctx context.Context, symbol string, opts SubscribeOptions) (<-chan types.Tick, error) {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	out := make(chan types.Tick, buffer)
	go func() {
		defer close(out)
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		var prev time.Time
		for _, tick := range s.ticks {
			if symbol != "" && tick.Symbol != "" && tick.Symbol != symbol {
				continue
			}
			if s.speed > 0 && !prev.IsZero() {
				gap := tick.Timestamp.Sub(prev)
				if gap > 0 {
					if !sleepWithContext(runCtx, time.Duration(float64(gap)/s.speed)) {
						return
					}
				}
			}
			prev = tick.Timestamp
			select {
			case <-runCtx.Done():
				return
			case out <- tick:
			}
		}
		logger.Infof("replay source: stream exhausted, %d ticks replayed", len(s.ticks))
	}()
	return out, nil
}

func (s *ReplaySource) Stats() SourceStats {
	return SourceStats{}
}

func (s *ReplaySource) Close() error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}
