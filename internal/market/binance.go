package market

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tapeflow/internal/logger"
	"tapeflow/internal/types"
)

// BinanceSource streams futures aggregate trades and converts them into
// footprint ticks. The aggressor side comes from the maker flag: when
// the buyer is the maker the trade hit the bid.
type BinanceSource struct {
	lotSize float64

	mu     sync.Mutex
	cancel context.CancelFunc

	statsMu sync.Mutex
	stats   SourceStats
}

// NewBinanceSource builds the adapter. lotSize scales fractional
// contract quantity into integer volume units.
func NewBinanceSource(lotSize float64) (*BinanceSource, error) {
	if lotSize <= 0 {
		return nil, fmt.Errorf("binance source: lot size must be positive, got %v", lotSize)
	}
	return &BinanceSource{lotSize: lotSize}, nil
}

func (s *BinanceSource) SubscribeTicks(ctx context.Context, symbol string, opts SubscribeOptions) (<-chan types.Tick, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("binance source: symbol is required")
	}
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1024
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	out := make(chan types.Tick, buffer)
	go func() {
		defer close(out)
		s.runLoop(runCtx, symbol, out, opts)
	}()
	return out, nil
}

func (s *BinanceSource) runLoop(ctx context.Context, symbol string, out chan<- types.Tick, opts SubscribeOptions) {
	delay := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		var errMu sync.Mutex
		var lastErr error
		handler := func(event *futures.WsAggTradeEvent) {
			tick, ok := s.convert(event)
			if !ok {
				return
			}
			select {
			case <-ctx.Done():
			case out <- tick:
			}
		}
		errHandler := func(err error) {
			if err == nil {
				return
			}
			errMu.Lock()
			lastErr = err
			errMu.Unlock()
		}
		doneC, stopC, err := futures.WsAggTradeServe(symbol, handler, errHandler)
		if err != nil {
			s.recordSubscribeError(err)
			if opts.OnDisconnect != nil {
				opts.OnDisconnect(err)
			}
			if !sleepWithContext(ctx, delay) {
				return
			}
			delay = nextDelay(delay)
			continue
		}
		delay = time.Second
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
		select {
		case <-ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
		}
		errMu.Lock()
		errCopy := lastErr
		errMu.Unlock()
		s.recordReconnect(errCopy)
		if opts.OnDisconnect != nil {
			opts.OnDisconnect(errCopy)
		}
		if !sleepWithContext(ctx, delay) {
			return
		}
		delay = nextDelay(delay)
	}
}

func (s *BinanceSource) convert(ev *futures.WsAggTradeEvent) (types.Tick, bool) {
	if ev == nil {
		return types.Tick{}, false
	}
	price, err := strconv.ParseFloat(strings.TrimSpace(ev.Price), 64)
	if err != nil || price <= 0 {
		return types.Tick{}, false
	}
	qty, err := strconv.ParseFloat(strings.TrimSpace(ev.Quantity), 64)
	if err != nil || qty <= 0 {
		return types.Tick{}, false
	}
	volume := int64(math.Round(qty / s.lotSize))
	if volume <= 0 {
		volume = 1
	}
	side := types.SideAsk
	if ev.Maker {
		side = types.SideBid
	}
	return types.Tick{
		Timestamp: time.UnixMilli(ev.TradeTime),
		Symbol:    strings.ToUpper(strings.TrimSpace(ev.Symbol)),
		Price:     price,
		Volume:    volume,
		Side:      side,
	}, true
}

func (s *BinanceSource) recordReconnect(err error) {
	s.statsMu.Lock()
	s.stats.Reconnects++
	if err != nil {
		s.stats.LastError = err.Error()
	}
	s.statsMu.Unlock()
	if err != nil {
		logger.Warnf("binance source: stream dropped: %v", err)
	}
}

func (s *BinanceSource) recordSubscribeError(err error) {
	s.statsMu.Lock()
	s.stats.SubscribeErrors++
	s.stats.LastError = err.Error()
	s.statsMu.Unlock()
	logger.Warnf("binance source: subscribe failed: %v", err)
}

func (s *BinanceSource) Stats() SourceStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *BinanceSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}
