package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"tapeflow/internal/execution"
	"tapeflow/internal/logger"
	"tapeflow/internal/orderflow"
	"tapeflow/internal/regime"
	"tapeflow/internal/types"
)

// ErrStopped is returned by Push once the intake is closed.
var ErrStopped = errors.New("pipeline: stopped")

// EventKind tags outbound pipeline events.
type EventKind string

const (
	EventBar    EventKind = "bar"
	EventSignal EventKind = "signal"
)

// Event is a fire-and-forget notification to dashboard and persistence
// consumers. Closed trades are not events here; they surface through the
// execution manager's trade handler, which also covers session-end
// flattening after the pipeline is gone.
type Event struct {
	Kind   EventKind
	Bar    *types.FootprintBar
	Signal *types.Signal
}

// Callbacks receive pipeline events on the publisher goroutine. Slow or
// panicking callbacks never stall the trading path.
type Callbacks struct {
	OnBar    func(*types.FootprintBar)
	OnSignal func(types.Signal)
}

// Pipeline is the single-writer trading loop: one worker drains the tick
// queue and runs aggregation, classification, routing and execution in
// sequence, so no stage ever sees concurrent state.
type Pipeline struct {
	engine *orderflow.Engine
	router *regime.Router
	exec   *execution.Manager
	cb     Callbacks

	ticks  chan types.Tick
	events chan Event

	dropped   atomic.Int64
	stopped   atomic.Bool
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(engine *orderflow.Engine, router *regime.Router, exec *execution.Manager, cb Callbacks, queueSize int) (*Pipeline, error) {
	if engine == nil || router == nil || exec == nil {
		return nil, fmt.Errorf("pipeline: engine, router and execution manager are required")
	}
	if queueSize <= 0 {
		queueSize = 4096
	}
	return &Pipeline{
		engine: engine,
		router: router,
		exec:   exec,
		cb:     cb,
		ticks:  make(chan types.Tick, queueSize),
		events: make(chan Event, queueSize),
	}, nil
}

// Start launches the worker and publisher goroutines. It returns
// immediately; Stop waits for both to drain.
func (p *Pipeline) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.wg.Add(2)
		go p.publishLoop()
		go p.workLoop(ctx)
	})
}

// Push enqueues a tick, blocking when the queue is full so the ingest
// side backs off instead of losing data. Returns ctx.Err once cancelled
// and ErrStopped after Stop. Callers must finish pushing before calling
// Stop; Push does not tolerate racing it.
func (p *Pipeline) Push(ctx context.Context, tick types.Tick) error {
	if p.stopped.Load() {
		return ErrStopped
	}
	select {
	case p.ticks <- tick:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the intake and waits until queued ticks are processed and
// published. The in-flight bar is discarded, never emitted partial.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.ticks)
	})
	p.wg.Wait()
	p.engine.Discard()
	if n := p.dropped.Load(); n > 0 {
		logger.Warnf("pipeline: %d events dropped on full publisher queue", n)
	}
}

// DroppedEvents reports how many outbound events were shed.
func (p *Pipeline) DroppedEvents() int64 { return p.dropped.Load() }

func (p *Pipeline) workLoop(ctx context.Context) {
	defer p.wg.Done()
	defer close(p.events)
	for {
		select {
		case tick, ok := <-p.ticks:
			if !ok {
				return
			}
			p.handle(tick)
		case <-ctx.Done():
			// Drain whatever was queued before the cancel, then leave.
			for {
				select {
				case tick, ok := <-p.ticks:
					if !ok {
						return
					}
					p.handle(tick)
				default:
					return
				}
			}
		}
	}
}

// handle runs the full per-tick sequence: price-driven exits first, then
// bar completion, classification, detection, routing and entries.
func (p *Pipeline) handle(tick types.Tick) {
	bar, ok := p.engine.ProcessTick(tick)
	if !ok {
		return
	}
	p.exec.UpdatePrice(tick.Price)
	if bar == nil {
		return
	}

	state := p.router.OnBar(bar)
	p.publish(Event{Kind: EventBar, Bar: bar})

	for _, sig := range p.engine.DetectSignals(bar, state) {
		routed := p.router.Evaluate(sig)
		p.publish(Event{Kind: EventSignal, Signal: &routed})
		if !routed.Approved {
			continue
		}
		if _, refusal := p.exec.OnSignal(routed, p.router.SizeMultiplier()); refusal != execution.RefusalNone {
			logger.Debugf("pipeline: approved %s refused by execution: %s", routed.Pattern, refusal)
		}
	}
}

// publish hands an event to the outbound queue without ever blocking the
// trading path; overflow is shed and counted.
func (p *Pipeline) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.dropped.Add(1)
	}
}

func (p *Pipeline) publishLoop() {
	defer p.wg.Done()
	for ev := range p.events {
		p.dispatch(ev)
	}
}

// dispatch invokes one callback, swallowing panics so a broken consumer
// cannot take the pipeline down.
func (p *Pipeline) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("pipeline: event callback panic: %v", r)
		}
	}()
	switch ev.Kind {
	case EventBar:
		if p.cb.OnBar != nil {
			p.cb.OnBar(ev.Bar)
		}
	case EventSignal:
		if p.cb.OnSignal != nil {
			p.cb.OnSignal(*ev.Signal)
		}
	}
}
