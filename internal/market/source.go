package market

import (
	"context"
	"time"

	"tapeflow/internal/types"
)

// SubscribeOptions tunes a live tick subscription.
type SubscribeOptions struct {
	Buffer       int
	OnConnect    func()
	OnDisconnect func(error)
}

// SourceStats exposes connection health for the dashboard.
type SourceStats struct {
	Reconnects      int    `json:"reconnects"`
	SubscribeErrors int    `json:"subscribe_errors"`
	LastError       string `json:"last_error,omitempty"`
}

// Source delivers a tick stream for one symbol. Implementations own
// reconnect handling; the channel closes only when ctx is cancelled or
// the stream is exhausted.
type Source interface {
	SubscribeTicks(ctx context.Context, symbol string, opts SubscribeOptions) (<-chan types.Tick, error)
	Stats() SourceStats
	Close() error
}

// HistorySource fetches a bounded slice of historical ticks.
type HistorySource interface {
	FetchTicks(ctx context.Context, symbol string, from, to time.Time) ([]types.Tick, error)
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextDelay(d time.Duration) time.Duration {
	d *= 2
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}
