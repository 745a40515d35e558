package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"tapeflow/internal/config"
	"tapeflow/internal/execution"
	"tapeflow/internal/logger"
	"tapeflow/internal/market"
	"tapeflow/internal/notifier"
	"tapeflow/internal/orderflow"
	"tapeflow/internal/pipeline"
	"tapeflow/internal/regime"
	"tapeflow/internal/report"
	"tapeflow/internal/store"
	transporthttp "tapeflow/internal/transport/http"
	"tapeflow/internal/types"
)

// App wires config, market data, the trading pipeline, persistence and
// the dashboard into one runnable unit.
type App struct {
	cfg     *config.Config
	session *execution.Session
	engine  *orderflow.Engine
	router  *regime.Router
	exec    *execution.Manager
	pipe    *pipeline.Pipeline
	server  *transporthttp.Server
	db      *store.Store
	notify  notifier.Notifier
	source  market.Source

	barsMu      sync.Mutex
	sessionBars []*types.FootprintBar
}

func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config is required")
	}
	a := &App{cfg: cfg, notify: notifier.Noop{}}

	session, err := cfg.Session.BuildSession(cfg.Engine.Symbol)
	if err != nil {
		return nil, err
	}
	a.session = session

	a.exec, err = execution.NewManager(session, cfg.Engine.TickSize, cfg.Engine.TickValue)
	if err != nil {
		return nil, err
	}
	a.engine, err = orderflow.NewEngine(cfg.Engine.Timeframe(), cfg.Engine.TickSize, cfg.Detector, session.EnabledPatterns)
	if err != nil {
		return nil, err
	}
	slopeBars := cfg.Regime.SlopeBars
	a.router, err = regime.NewRouter(cfg.Regime, session, func() float64 {
		return a.engine.CumulativeDelta().Slope(slopeBars)
	})
	if err != nil {
		return nil, err
	}

	if cfg.Store.Enabled {
		a.db, err = store.New(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
	}
	if cfg.Notify.Telegram.Enabled {
		a.notify = notifier.NewTelegram(cfg.Notify.Telegram.BotToken, cfg.Notify.Telegram.ChatID)
	}

	a.server, err = transporthttp.NewServer(cfg.App.HTTPAddr, a.stateFuncs())
	if err != nil {
		return nil, err
	}
	a.pipe, err = pipeline.New(a.engine, a.router, a.exec, a.callbacks(), cfg.Engine.QueueSize)
	if err != nil {
		return nil, err
	}
	a.exec.SetHaltHandler(func(reason string) {
		a.sendNotify(fmt.Sprintf("*%s* trading halted: %s", session.Symbol, reason))
	})
	// Every close routes through here, including the session-end flatten
	// that runs after the pipeline has stopped.
	a.exec.SetTradeHandler(func(trade *execution.Trade) {
		a.server.Broadcast("trade", trade)
		a.sendNotify(fmt.Sprintf("*%s* %s %s x%d pnl=%.2f (%s)",
			trade.Symbol, trade.Side, trade.Pattern, trade.Size, trade.PnL, trade.ExitReason))
	})

	a.source, err = a.buildSource(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) stateFuncs() transporthttp.StateFuncs {
	return transporthttp.StateFuncs{
		Engine:     a.engine.State,
		Router:     a.router.State,
		Execution:  a.exec.State,
		Statistics: a.exec.Statistics,
		Session:    a.session.ToMap,
		Profile:    a.engine.ProfileState,
		Positions:  a.exec.OpenPositions,
		Trades:     a.exec.Trades,
		RecentBars: a.recentBars,
	}
}

func (a *App) callbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		OnBar: func(bar *types.FootprintBar) {
			a.barsMu.Lock()
			a.sessionBars = append(a.sessionBars, bar)
			a.barsMu.Unlock()
			if a.db != nil {
				if err := a.db.SaveBar(context.Background(), bar); err != nil {
					logger.Warnf("app: persist bar failed: %v", err)
				}
			}
			a.server.Broadcast("bar", bar)
		},
		OnSignal: func(sig types.Signal) {
			a.server.Broadcast("signal", sig)
		},
	}
}

func (a *App) sendNotify(text string) {
	go func() {
		if err := a.notify.SendText(text); err != nil {
			logger.Warnf("app: notify failed: %v", err)
		}
	}()
}

func (a *App) recentBars(limit int) []*types.FootprintBar {
	a.barsMu.Lock()
	defer a.barsMu.Unlock()
	if limit <= 0 || limit > len(a.sessionBars) {
		limit = len(a.sessionBars)
	}
	out := make([]*types.FootprintBar, limit)
	copy(out, a.sessionBars[len(a.sessionBars)-limit:])
	return out
}

// buildSource picks the tick source per config: a live binance stream,
// polygon history replayed, or previously persisted ticks replayed.
func (a *App) buildSource(cfg *config.Config) (market.Source, error) {
	switch cfg.Market.Source {
	case "binance":
		return market.NewBinanceSource(cfg.Market.Binance.LotSize)
	case "polygon":
		poly, err := market.NewPolygonSource(cfg.Market.Polygon.APIKey, cfg.Market.Polygon.BaseURL, cfg.Market.Polygon.Limit)
		if err != nil {
			return nil, err
		}
		from, to, err := replayRange(cfg.Market.Replay)
		if err != nil {
			return nil, err
		}
		ticks, err := poly.FetchTicks(context.Background(), cfg.Engine.Symbol, from, to)
		if err != nil {
			return nil, err
		}
		return market.NewReplaySource(ticks, cfg.Market.Replay.Speed)
	case "replay":
		if a.db == nil {
			return nil, fmt.Errorf("app: replay source needs store.enabled")
		}
		from, to, err := replayRange(cfg.Market.Replay)
		if err != nil {
			return nil, err
		}
		ticks, err := a.db.TicksBetween(context.Background(), cfg.Engine.Symbol, from, to)
		if err != nil {
			return nil, err
		}
		return market.NewReplaySource(ticks, cfg.Market.Replay.Speed)
	}
	return nil, fmt.Errorf("app: unknown market source %q", cfg.Market.Source)
}

func replayRange(rc config.ReplayConfig) (from, to time.Time, err error) {
	if rc.From != "" {
		if from, err = time.Parse(time.RFC3339, rc.From); err != nil {
			return from, to, fmt.Errorf("app: replay.from: %w", err)
		}
	}
	if rc.To != "" {
		if to, err = time.Parse(time.RFC3339, rc.To); err != nil {
			return from, to, fmt.Errorf("app: replay.to: %w", err)
		}
	}
	return from, to, nil
}

// Run drives the session until ctx cancels or the tick stream ends, then
// flattens, snapshots and reports.
func (a *App) Run(ctx context.Context) error {
	a.session.StartedAt = time.Now()
	logger.Infof("app: session %s starting, symbol=%s mode=%s source=%s",
		a.session.SessionID, a.session.Symbol, a.session.Mode, a.cfg.Market.Source)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ticks, err := a.source.SubscribeTicks(runCtx, a.session.Symbol, market.SubscribeOptions{
		Buffer: a.cfg.Engine.QueueSize,
		OnDisconnect: func(err error) {
			if err != nil {
				logger.Warnf("app: market stream dropped: %v", err)
			}
		},
	})
	if err != nil {
		return err
	}

	a.pipe.Start(runCtx)

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return a.server.Start(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return a.feed(gctx, ticks)
	})

	err = g.Wait()
	a.shutdown()
	return err
}

// feed moves ticks from the source into the pipeline, batching raw tick
// persistence along the way.
func (a *App) feed(ctx context.Context, ticks <-chan types.Tick) error {
	var batch []types.Tick
	flush := func() {
		if a.db == nil || !a.cfg.Store.PersistTicks || len(batch) == 0 {
			return
		}
		if err := a.db.SaveTicks(context.Background(), batch); err != nil {
			logger.Warnf("app: persist ticks failed: %v", err)
		}
		batch = batch[:0]
	}
	defer flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tick, ok := <-ticks:
			if !ok {
				logger.Infof("app: tick stream ended")
				return nil
			}
			if err := a.pipe.Push(ctx, tick); err != nil {
				return nil
			}
			if a.db != nil && a.cfg.Store.PersistTicks {
				batch = append(batch, tick)
				if len(batch) >= 500 {
					flush()
				}
			}
		}
	}
}

// shutdown drains the pipeline, flattens open positions and writes the
// session artifacts.
func (a *App) shutdown() {
	a.pipe.Stop()
	_ = a.source.Close()

	if trades := a.exec.CloseAll(0, execution.ExitEOD); len(trades) > 0 {
		logger.Infof("app: flattened %d positions at session end", len(trades))
	}
	a.session.EndedAt = time.Now()

	if a.cfg.Session.SnapshotPath != "" {
		if err := a.session.SaveFile(a.cfg.Session.SnapshotPath); err != nil {
			logger.Warnf("app: session snapshot failed: %v", err)
		}
	}
	if a.cfg.Report.Enabled {
		a.barsMu.Lock()
		bars := append([]*types.FootprintBar(nil), a.sessionBars...)
		a.barsMu.Unlock()
		if _, err := report.Generate(a.cfg.Report.Dir, report.Input{
			Session: a.session,
			Trades:  a.exec.Trades(),
			Bars:    bars,
			Stats:   a.exec.Statistics(),
		}); err != nil {
			logger.Warnf("app: report failed: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warnf("app: store close failed: %v", err)
		}
	}
	stats := a.exec.Statistics()
	logger.Infof("app: session %s ended, trades=%d pnl=%.2f",
		a.session.SessionID, stats.TotalTrades, stats.TotalPnL)
}
