package reentry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/safety"
	"github.com/raykavin/zepix/pkg/storage"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorder) Notify(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

func testSettings() core.Settings {
	return core.Settings{
		Reentry: core.ReentrySettings{
			MaxLevel:               5,
			RecoveryFraction:       0.7,
			SLReductionPercent:     30,
			MinSLPips:              2,
			RecoveryWindow:         30 * time.Minute,
			ContinuationEnabled:    true,
			ContinuationOffsetPips: 5,
			ContinuationWindow:     30 * time.Minute,
			LotMultiplier:          1,
			PollInterval:           time.Second,
		},
		Safety: core.SafetySettings{
			MaxDailyRecoveryAttempts: 10,
			Timezone:                 "UTC",
		},
	}
}

type fixture struct {
	clock    *testClock
	store    *storage.ChainStore
	governor *safety.Governor
	engine   *Engine
}

func newFixture(t *testing.T, mutate func(*core.Settings)) *fixture {
	t.Helper()

	settings := testSettings()
	if mutate != nil {
		mutate(&settings)
	}

	repo, err := storage.FromMemory()
	require.NoError(t, err)

	store, err := storage.NewChainStore(repo)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clock := &testClock{now: start}
	governor, err := safety.NewGovernor(settings.Safety, store, logger.Nop(), safety.WithClock(clock.Now))
	require.NoError(t, err)

	ids := 0
	engine := NewEngine(settings, store, governor, logger.Nop(),
		WithEngineClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("chain-%d", ids)
		}),
	)

	return &fixture{clock: clock, store: store, governor: governor, engine: engine}
}

func originalBuy() core.ChainOrder {
	return core.ChainOrder{
		OrderID:    "O1",
		Symbol:     "EURUSD",
		Direction:  core.DirectionBuy,
		EntryPrice: 1.1050,
		SLPrice:    1.1000,
		TPPrice:    1.1150,
		LotSize:    0.1,
		OpenedAt:   start.Add(-time.Hour),
	}
}

// close books a closure for order at the fixture clock and returns the stored order
func (f *fixture) close(t *testing.T, order core.ChainOrder, outcome core.OutcomeType, profit float64) core.ChainOrder {
	t.Helper()
	booked, ok, err := f.engine.Book(core.TradeClosed{
		Order:    order,
		Outcome:  outcome,
		Profit:   profit,
		ClosedAt: f.clock.Now(),
	})
	require.NoError(t, err)
	require.True(t, ok)
	return booked
}

func quote(bid, ask float64) core.Quote {
	return core.Quote{Symbol: "EURUSD", Bid: bid, Ask: ask, Time: start}
}

func TestEngine_RecoveryAfterRetrace(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, 0, chain.CurrentLevel)
	require.Equal(t, 5, chain.MaxLevel)
	require.InDelta(t, -50, chain.TotalRealizedProfit, 1e-9)
	require.Equal(t, core.OrderKindOriginal, order.Kind)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1030, 1.1031))
	require.NoError(t, err)
	require.Equal(t, core.DecisionNoAction, decision.Kind)
	require.Equal(t, core.ReasonAwaitingRetrace, decision.Reason)

	decision, err = f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.DecisionOpenRecovery, decision.Kind)
	require.Equal(t, 1, decision.Level)
	require.InDelta(t, 1.1015, decision.SL, 1e-9)
	require.InDelta(t, 1.1150, decision.TP, 1e-9)
	require.InDelta(t, 1.1036, decision.Entry, 1e-9)
	require.InDelta(t, 0.1, decision.Lot, 1e-9)

	chain, err = f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.True(t, chain.Active())
	require.Equal(t, 0, chain.CurrentLevel)
}

func TestEngine_SellRecoveryMirrorsBuy(t *testing.T) {
	f := newFixture(t, nil)
	sell := core.ChainOrder{
		OrderID:    "S1",
		Symbol:     "EURUSD",
		Direction:  core.DirectionSell,
		EntryPrice: 1.1000,
		SLPrice:    1.1050,
		TPPrice:    1.0900,
		LotSize:    0.2,
	}
	order := f.close(t, sell, core.OutcomeSL, -100)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1014, 1.1015))
	require.NoError(t, err)
	require.Equal(t, core.DecisionOpenRecovery, decision.Kind)
	require.InDelta(t, 1.1035, decision.SL, 1e-9)
	require.InDelta(t, 1.1014, decision.Entry, 1e-9)
}

func TestEngine_LevelNeverExceedsMax(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Reentry.MaxLevel = 1 })
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.NoError(t, chain.Advance(1, start))
	require.NoError(t, f.store.Upsert(chain))

	recovery := core.ChainOrder{
		OrderID: "O2", ChainID: chain.ID, Level: 1, Kind: core.OrderKindRecovery,
		Symbol: "EURUSD", Direction: core.DirectionBuy,
		EntryPrice: 1.1036, SLPrice: 1.1015, TPPrice: 1.1150, LotSize: 0.1,
		Outcome: core.OutcomeOpen, OpenedAt: start,
	}
	require.NoError(t, f.store.SaveOrder(recovery))
	recovery = f.close(t, recovery, core.OutcomeSL, -21)

	decision, err := f.engine.OnTradeClosed(recovery, core.OutcomeSL, quote(1.1050, 1.1051))
	require.NoError(t, err)
	require.Equal(t, core.ReasonMaxLevel, decision.Reason)

	chain, err = f.store.Get(chain.ID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.LessOrEqual(t, chain.CurrentLevel, chain.MaxLevel)

	decision, err = f.engine.OnTradeClosed(recovery, core.OutcomeSL, quote(1.1050, 1.1051))
	require.NoError(t, err)
	require.Equal(t, core.ReasonChainInactive, decision.Reason)
}

func TestEngine_ZeroMaxLevelNeverRecovers(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Reentry.MaxLevel = 0 })
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, 0, chain.MaxLevel)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.DecisionNoAction, decision.Kind)
	require.Equal(t, core.ReasonMaxLevel, decision.Reason)

	chain, err = f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.Equal(t, 0, chain.CurrentLevel)
}

func TestEngine_RecoveryWindowExpires(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	f.clock.Advance(31 * time.Minute)
	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.ReasonRecoveryWindowExpired, decision.Reason)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
	require.Equal(t, string(core.ReasonRecoveryWindowExpired), chain.StopReason)
}

func TestEngine_NoPriceKeepsChainWatching(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, core.Quote{})
	require.NoError(t, err)
	require.Equal(t, core.ReasonNoPrice, decision.Reason)
	require.False(t, decision.Reason.Final())

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.True(t, chain.Active())
}

func TestEngine_ManualCloseStopsChain(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeClosedManual, 5)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeClosedManual, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.ReasonManualClose, decision.Reason)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
}

func TestEngine_Continuation(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeTP, 100)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeTP, quote(1.1152, 1.1153))
	require.NoError(t, err)
	require.Equal(t, core.ReasonAwaitingContinuation, decision.Reason)

	decision, err = f.engine.OnTradeClosed(order, core.OutcomeTP, quote(1.1156, 1.1157))
	require.NoError(t, err)
	require.Equal(t, core.DecisionOpenContinuation, decision.Kind)
	require.Equal(t, core.OrderKindContinuation, decision.OrderKind())
	require.Equal(t, 1, decision.Level)
	require.InDelta(t, 1.1157, decision.Entry, 1e-9)
	require.InDelta(t, 1.1122, decision.SL, 1e-9)
	require.InDelta(t, 1.1257, decision.TP, 1e-9)
}

func TestEngine_ContinuationDisabledCompletesChain(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Reentry.ContinuationEnabled = false })
	order := f.close(t, originalBuy(), core.OutcomeTP, 100)

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeTP, quote(1.1156, 1.1157))
	require.NoError(t, err)
	require.Equal(t, core.ReasonContinuationDisabled, decision.Reason)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusCompleted, chain.Status)
}

func TestEngine_ContinuationWindowExpires(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeTP, 100)

	f.clock.Advance(time.Hour)
	decision, err := f.engine.OnTradeClosed(order, core.OutcomeTP, core.Quote{})
	require.NoError(t, err)
	require.Equal(t, core.ReasonContinuationWindowExpired, decision.Reason)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusCompleted, chain.Status)
}

func TestEngine_SafetyCapStopsChain(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Safety.MaxDailyRecoveryAttempts = 1 })
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.NoError(t, f.governor.RecordAttempt(chain))

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.ReasonSafetyCap, decision.Reason)

	chain, err = f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.Equal(t, core.ChainStatusStopped, chain.Status)
}

func TestEngine_ProfitProtection(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Reentry.MaxGivebackPercent = 50 })
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)

	// risk of the recovery is 0.1 lot x 21 pips x 10 = 21
	chain.TotalRealizedProfit = 30
	require.NoError(t, f.store.Upsert(chain))

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.ReasonProfitProtection, decision.Reason)
}

func TestEngine_ProfitProtectionAllowsSmallRisk(t *testing.T) {
	f := newFixture(t, func(s *core.Settings) { s.Reentry.MaxGivebackPercent = 50 })
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	chain.TotalRealizedProfit = 100
	require.NoError(t, f.store.Upsert(chain))

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.DecisionOpenRecovery, decision.Kind)
}

func TestEngine_EvaluationIsRepeatable(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	first, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	second, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestEngine_BookIgnoresDuplicates(t *testing.T) {
	f := newFixture(t, nil)
	event := core.TradeClosed{Order: originalBuy(), Outcome: core.OutcomeSL, Profit: -50, ClosedAt: start}

	_, booked, err := f.engine.Book(event)
	require.NoError(t, err)
	require.True(t, booked)

	order, booked, err := f.engine.Book(event)
	require.NoError(t, err)
	require.False(t, booked)

	chain, err := f.store.Get(order.ChainID)
	require.NoError(t, err)
	require.InDelta(t, -50, chain.TotalRealizedProfit, 1e-9)
	require.Len(t, f.store.All(), 1)
}

func TestEngine_BookRejectsInvalidOrders(t *testing.T) {
	f := newFixture(t, nil)

	_, _, err := f.engine.Book(core.TradeClosed{Order: originalBuy(), Outcome: core.OutcomeOpen})
	require.Error(t, err)

	invalid := originalBuy()
	invalid.SLPrice = invalid.EntryPrice
	_, _, err = f.engine.Book(core.TradeClosed{Order: invalid, Outcome: core.OutcomeSL})
	require.Error(t, err)
	require.Empty(t, f.store.All())
}

func TestEngine_SupersededOrder(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	require.NoError(t, f.store.SaveOrder(core.ChainOrder{
		OrderID: "O2", ChainID: order.ChainID, Level: 1, Kind: core.OrderKindRecovery,
		Symbol: "EURUSD", Direction: core.DirectionBuy,
		EntryPrice: 1.1036, SLPrice: 1.1015, LotSize: 0.1, Outcome: core.OutcomeOpen,
	}))

	decision, err := f.engine.OnTradeClosed(order, core.OutcomeSL, quote(1.1035, 1.1036))
	require.NoError(t, err)
	require.Equal(t, core.ReasonSuperseded, decision.Reason)
}

func TestEngine_Stop(t *testing.T) {
	f := newFixture(t, nil)
	order := f.close(t, originalBuy(), core.OutcomeSL, -50)

	require.NoError(t, f.engine.Stop(order.ChainID))
	require.ErrorIs(t, f.engine.Stop(order.ChainID), core.ErrChainClosed)
	require.ErrorIs(t, f.engine.Stop("missing"), core.ErrChainNotFound)
}
