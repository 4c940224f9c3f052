package reentry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/stretchr/testify/require"
)

type loop struct {
	*fixture
	paper    *broker.Paper
	executor *Executor
	monitor  *Monitor
	notes    *recorder
}

func newLoop(t *testing.T, mutate func(*core.Settings)) *loop {
	t.Helper()

	f := newFixture(t, mutate)
	paper := broker.NewPaper(broker.WithPaperClock(f.clock.Now))

	notes := &recorder{}
	executor := NewExecutor(paper, f.store, f.governor, logger.Nop())
	executor.SetClock(f.clock.Now)
	executor.SetNotifier(notes)

	monitor := NewMonitor(f.engine, executor, paper, f.store, logger.Nop())
	monitor.SetNotifier(notes)

	return &loop{fixture: f, paper: paper, executor: executor, monitor: monitor, notes: notes}
}

// quote moves the paper market and feeds the resulting closures to the monitor
func (l *loop) quote(ctx context.Context, bid, ask float64) {
	for _, event := range l.paper.SetQuote("EURUSD", bid, ask) {
		l.monitor.handle(ctx, event)
	}
}

func TestExecutor_PlacesRecovery(t *testing.T) {
	l := newLoop(t, nil)
	order := l.close(t, originalBuy(), core.OutcomeSL, -50)
	l.paper.SetQuote("EURUSD", 1.1035, 1.1036)

	decision := core.OpenRecovery(order.ChainID, 1, 1.1036, 1.1015, 1.1150, 0.1)
	placed, err := l.executor.Execute(context.Background(), decision)
	require.NoError(t, err)
	require.Equal(t, core.OrderKindRecovery, placed.Kind)
	require.Equal(t, core.OutcomeOpen, placed.Outcome)

	chain, err := l.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, 1, chain.CurrentLevel)
	require.Equal(t, 1, chain.RecoveryAttempts)
	require.Equal(t, 1, l.governor.Snapshot().RecoveryAttempts)

	last, ok := l.store.LastOrder(chain.ID)
	require.True(t, ok)
	require.Equal(t, placed.OrderID, last.OrderID)

	position, ok := l.paper.Position(placed.OrderID)
	require.True(t, ok)
	require.InDelta(t, 1.1015, position.SLPrice, 1e-9)
	require.Equal(t, 1, l.notes.Len())
}

func TestExecutor_FailureStopsChain(t *testing.T) {
	l := newLoop(t, nil)
	order := l.close(t, originalBuy(), core.OutcomeSL, -50)
	l.paper.SetQuote("EURUSD", 1.1035, 1.1036)
	l.paper.FailNext(&core.ExecutionError{Op: "place_order", Symbol: "EURUSD", Err: errors.New("rejected")})

	decision := core.OpenRecovery(order.ChainID, 1, 1.1036, 1.1015, 1.1150, 0.1)
	_, err := l.executor.Execute(context.Background(), decision)
	require.Error(t, err)

	chain, err := l.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.Equal(t, string(core.ReasonExecutionError), chain.StopReason)
	require.Equal(t, 0, chain.CurrentLevel)
	require.Equal(t, 0, l.governor.Snapshot().RecoveryAttempts)
	require.Empty(t, l.paper.Positions())
}

func TestExecutor_RejectsNoAction(t *testing.T) {
	l := newLoop(t, nil)
	_, err := l.executor.Execute(context.Background(), core.NoAction("x", core.ReasonNoPrice))
	require.Error(t, err)
}

func TestMonitor_RecoveryChain(t *testing.T) {
	l := newLoop(t, nil)
	ctx := context.Background()

	l.paper.SetQuote("EURUSD", 1.1049, 1.1050)
	id, err := l.paper.PlaceOrder(ctx, core.OrderRequest{
		Symbol: "EURUSD", Direction: core.DirectionBuy, Lot: 0.1, SL: 1.1000, TP: 1.1150,
	})
	require.NoError(t, err)

	// stop loss of the original order starts a watching chain
	l.quote(ctx, 1.0999, 1.1000)
	chains := l.store.ListActive()
	require.Len(t, chains, 1)
	chain := chains[0]
	require.InDelta(t, 1.1050, chain.BaseEntry, 1e-9)

	original, err := l.store.Order(id)
	require.NoError(t, err)
	require.Equal(t, core.OutcomeSL, original.Outcome)
	require.Empty(t, l.paper.Positions())

	// not enough retrace yet
	l.quote(ctx, 1.1020, 1.1021)
	l.monitor.poll(ctx)
	require.Empty(t, l.paper.Positions())

	l.quote(ctx, 1.1035, 1.1036)
	l.monitor.poll(ctx)

	positions := l.paper.Positions()
	require.Len(t, positions, 1)
	require.InDelta(t, 1.1015, positions[0].SLPrice, 1e-9)
	require.InDelta(t, 1.1150, positions[0].TPPrice, 1e-9)

	chain, err = l.store.Get(chain.ID)
	require.NoError(t, err)
	require.Equal(t, 1, chain.CurrentLevel)

	// a live chain is not evaluated again
	l.monitor.poll(ctx)
	require.Len(t, l.paper.Positions(), 1)

	// the recovery is stopped out and the loss reaches the governor
	l.quote(ctx, 1.1014, 1.1015)
	require.Empty(t, l.paper.Positions())
	require.InDelta(t, 21, l.governor.Snapshot().RecoveryLosses, 1e-6)

	chain, err = l.store.Get(chain.ID)
	require.NoError(t, err)
	require.True(t, chain.Active())
	require.InDelta(t, -71, chain.TotalRealizedProfit, 1e-6)
	require.Len(t, l.store.Orders(chain.ID), 2)
}

func TestMonitor_TakeProfitContinues(t *testing.T) {
	l := newLoop(t, nil)
	ctx := context.Background()

	l.paper.SetQuote("EURUSD", 1.1049, 1.1050)
	_, err := l.paper.PlaceOrder(ctx, core.OrderRequest{
		Symbol: "EURUSD", Direction: core.DirectionBuy, Lot: 0.1, SL: 1.1000, TP: 1.1150,
	})
	require.NoError(t, err)

	l.quote(ctx, 1.1150, 1.1151)
	require.Empty(t, l.paper.Positions())

	l.quote(ctx, 1.1156, 1.1157)
	l.monitor.poll(ctx)

	positions := l.paper.Positions()
	require.Len(t, positions, 1)
	require.InDelta(t, 1.1122, positions[0].SLPrice, 1e-9)

	chain := l.store.ListActive()[0]
	last, ok := l.store.LastOrder(chain.ID)
	require.True(t, ok)
	require.Equal(t, core.OrderKindContinuation, last.Kind)
	require.Equal(t, 0, chain.RecoveryAttempts)
}

func TestMonitor_SkipsWithoutPrice(t *testing.T) {
	l := newLoop(t, nil)
	ctx := context.Background()

	// the closure arrives for a symbol the paper market never quoted
	l.monitor.handle(ctx, core.TradeClosed{
		Order:    originalBuy(),
		Outcome:  core.OutcomeSL,
		Profit:   -50,
		ClosedAt: start,
	})
	l.monitor.poll(ctx)

	chains := l.store.ListActive()
	require.Len(t, chains, 1)
	require.Equal(t, 0, chains[0].CurrentLevel)

	// the window still closes the chain while prices are missing
	l.clock.Advance(time.Hour)
	l.monitor.poll(ctx)
	require.Empty(t, l.store.ListActive())
}

func TestMonitor_PauseHoldsEvaluation(t *testing.T) {
	l := newLoop(t, nil)
	ctx := context.Background()

	l.paper.SetQuote("EURUSD", 1.1035, 1.1036)
	l.monitor.Pause()
	l.monitor.handle(ctx, core.TradeClosed{Order: originalBuy(), Outcome: core.OutcomeSL, Profit: -50, ClosedAt: start})
	l.monitor.poll(ctx)
	require.Empty(t, l.paper.Positions())

	l.monitor.Resume()
	l.monitor.poll(ctx)
	require.Len(t, l.paper.Positions(), 1)
}

func TestMonitor_RunProcessesEventsAndCommands(t *testing.T) {
	l := newLoop(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- l.monitor.Run(ctx) }()

	require.Eventually(t, func() bool { return l.monitor.Status() == StatusRunning },
		time.Second, 10*time.Millisecond)

	require.NoError(t, l.monitor.Submit(ctx, core.TradeClosed{
		Order: originalBuy(), Outcome: core.OutcomeSL, Profit: -50, ClosedAt: start,
	}))

	var chainID string
	require.Eventually(t, func() bool {
		chains := l.store.ListActive()
		if len(chains) == 1 {
			chainID = chains[0].ID
		}
		return chainID != ""
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, l.monitor.StopChain(ctx, chainID))
	chain, err := l.store.Get(chainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.Equal(t, string(core.ReasonOperatorStop), chain.StopReason)

	cancel()
	require.NoError(t, <-done)
	require.Equal(t, StatusStopped, l.monitor.Status())
}

func TestMonitor_StopChainClosesOpenOrder(t *testing.T) {
	l := newLoop(t, nil)
	order := l.close(t, originalBuy(), core.OutcomeSL, -50)
	l.paper.SetQuote("EURUSD", 1.1035, 1.1036)

	decision := core.OpenRecovery(order.ChainID, 1, 1.1036, 1.1015, 1.1150, 0.1)
	placed, err := l.executor.Execute(context.Background(), decision)
	require.NoError(t, err)
	l.paper.SetCloseHandler(l.monitor.OnTradeClosed)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.monitor.Run(ctx) }()

	require.Eventually(t, func() bool { return l.monitor.Status() == StatusRunning },
		time.Second, 10*time.Millisecond)

	require.NoError(t, l.monitor.StopChain(ctx, order.ChainID))

	_, open := l.paper.Position(placed.OrderID)
	require.False(t, open)

	require.Eventually(t, func() bool {
		stored, err := l.store.Order(placed.OrderID)
		return err == nil && stored.Outcome == core.OutcomeClosedManual
	}, time.Second, 10*time.Millisecond)

	chain, err := l.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.Equal(t, string(core.ReasonOperatorStop), chain.StopReason)

	cancel()
	require.NoError(t, <-done)
}
