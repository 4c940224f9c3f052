package reentry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/metrics"
)

// Status represents the current state of the monitor
type Status string

// Available monitor statuses
const (
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

const (
	defaultPollInterval = 5 * time.Second
	eventBuffer         = 128
)

type command struct {
	run  func() error
	done chan error
}

// Monitor is the only writer of chain state. One goroutine consumes closure events, operator
// commands and poll ticks in order, so chain updates never race each other.
type Monitor struct {
	engine   *Engine
	executor *Executor
	feed     core.PriceFeed
	store    core.ChainStore
	log      logger.Logger
	notifier core.Notifier
	interval time.Duration

	events   chan core.TradeClosed
	commands chan command
	running  atomic.Bool
	paused   atomic.Bool
}

// NewMonitor creates a monitor polling watching chains at the configured interval
func NewMonitor(engine *Engine, executor *Executor, feed core.PriceFeed, store core.ChainStore,
	log logger.Logger) *Monitor {

	interval := engine.Settings().Reentry.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	return &Monitor{
		engine:   engine,
		executor: executor,
		feed:     feed,
		store:    store,
		log:      log,
		interval: interval,
		events:   make(chan core.TradeClosed, eventBuffer),
		commands: make(chan command),
	}
}

// SetNotifier configures where closure messages go
func (m *Monitor) SetNotifier(notifier core.Notifier) {
	m.notifier = notifier
}

// Status returns the current monitor status
func (m *Monitor) Status() Status {
	switch {
	case !m.running.Load():
		return StatusStopped
	case m.paused.Load():
		return StatusPaused
	default:
		return StatusRunning
	}
}

// Pause stops evaluations. Closure events are still booked.
func (m *Monitor) Pause() {
	m.paused.Store(true)
	m.log.Info("monitor paused")
}

// Resume restarts evaluations
func (m *Monitor) Resume() {
	m.paused.Store(false)
	m.log.Info("monitor resumed")
}

// Submit queues a closure event for the loop
func (m *Monitor) Submit(ctx context.Context, event core.TradeClosed) error {
	select {
	case m.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTradeClosed queues a closure event without a deadline, it matches broker close callbacks
func (m *Monitor) OnTradeClosed(event core.TradeClosed) {
	if err := m.Submit(context.Background(), event); err != nil {
		m.log.WithError(err).Error("failed to queue closure")
	}
}

// StopChain closes an active chain from inside the loop and waits for the result. An order of
// the chain still open at the broker is closed afterwards.
func (m *Monitor) StopChain(ctx context.Context, chainID string) error {
	var open core.ChainOrder
	err := m.do(ctx, func() error {
		if err := m.engine.Stop(chainID); err != nil {
			return err
		}
		if last, ok := m.store.LastOrder(chainID); ok && last.Outcome == core.OutcomeOpen {
			open = last
		}
		m.notifyChainClosed(chainID)
		return nil
	})
	if err != nil || open.OrderID == "" {
		return err
	}

	// outside the loop: the broker reports the closure back through Submit
	return m.executor.Close(ctx, open)
}

func (m *Monitor) do(ctx context.Context, run func() error) error {
	if !m.running.Load() {
		return fmt.Errorf("monitor is not running")
	}

	cmd := command{run: run, done: make(chan error, 1)}
	select {
	case m.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx is done. Watching chains are evaluated once at start so state
// restored from storage is picked up without waiting for the first tick.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}
	defer m.running.Store(false)

	m.log.Infof("monitor started, polling every %s", m.interval)
	m.poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitor stopped")
			return nil
		case event := <-m.events:
			m.handle(ctx, event)
		case cmd := <-m.commands:
			cmd.done <- cmd.run()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// Step books the given closures and evaluates every watching chain once. It drives replays
// and must not be called while Run is active.
func (m *Monitor) Step(ctx context.Context, events ...core.TradeClosed) error {
	if m.running.Load() {
		return fmt.Errorf("monitor is running")
	}

	for _, event := range events {
		m.handle(ctx, event)
	}
	m.poll(ctx)
	return nil
}

// handle books a closure and evaluates the closed order once
func (m *Monitor) handle(ctx context.Context, event core.TradeClosed) {
	order, booked, err := m.engine.Book(event)
	if err != nil {
		m.log.WithField("order", event.Order.OrderID).WithError(err).Error("failed to book closure")
		return
	}
	if !booked {
		return
	}

	m.notify(orderClosedMessage(order))

	if m.paused.Load() {
		return
	}
	m.evaluate(ctx, order)
}

// poll evaluates every watching chain
func (m *Monitor) poll(ctx context.Context) {
	active := m.store.ListActive()
	metrics.SetActiveChains(len(active))

	if m.paused.Load() {
		return
	}

	for _, chain := range active {
		if ctx.Err() != nil {
			return
		}

		last, ok := m.store.LastOrder(chain.ID)
		if !ok || !last.Outcome.Closed() {
			continue
		}
		m.evaluate(ctx, last)
	}
}

func (m *Monitor) evaluate(ctx context.Context, order core.ChainOrder) {
	log := m.log.WithFields(map[string]any{"chain": order.ChainID, "order": order.OrderID})

	quote, err := m.feed.Price(ctx, order.Symbol)
	if err != nil {
		if errors.Is(err, core.ErrPriceUnavailable) {
			metrics.IncSkippedTick()
			log.Warnf("no price for %s", order.Symbol)
		} else {
			metrics.IncExecutionError("price")
			log.WithError(err).Warn("failed to fetch price")
		}
		quote = core.Quote{}
	}

	decision, err := m.engine.OnTradeClosed(order, order.Outcome, quote)
	if err != nil {
		log.WithError(err).Error("failed to evaluate closed order")
		return
	}

	metrics.IncDecision(string(decision.Kind), string(decision.Reason))
	log.Debugf("decision: %s", decision)

	switch {
	case decision.Opens():
		if _, err := m.executor.Execute(ctx, decision); err != nil {
			log.WithError(err).Error("failed to execute decision")
		}
	case decision.Reason.Final():
		m.notifyChainClosed(decision.ChainID)
	}
}

func (m *Monitor) notifyChainClosed(chainID string) {
	chain, err := m.store.Get(chainID)
	if err != nil {
		m.log.WithError(err).Warn("closed chain not found")
		return
	}
	m.notify(chainClosedMessage(chain))
}

func (m *Monitor) notify(text string) {
	if m.notifier != nil {
		m.notifier.Notify(text)
	}
}
