// Package reentry decides when a closed order is followed by a recovery or continuation order
// and drives those decisions through the broker.
package reentry

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/metrics"
	"github.com/raykavin/zepix/pkg/profit"
)

// pips are compared with a small tolerance so a retrace that lands exactly on the threshold counts
const pipTolerance = 1e-6

// Governor caps recovery activity
type Governor interface {
	Verify(chain core.Chain) error
	RecordAttempt(chain core.Chain) error
	RecordLoss(amount float64) error
}

// Engine evaluates closed orders against their chains.
// It only mutates chain state for terminal transitions; opening orders is the Executor's job.
type Engine struct {
	settings core.Settings
	store    core.ChainStore
	governor Governor
	log      logger.Logger
	clock    core.Clock
	newID    func() string
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithEngineClock replaces the wall clock
func WithEngineClock(clock core.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithIDGenerator replaces the chain id generator
func WithIDGenerator(newID func() string) EngineOption {
	return func(e *Engine) {
		e.newID = newID
	}
}

// NewEngine creates an engine over the given store and governor
func NewEngine(settings core.Settings, store core.ChainStore, governor Governor, log logger.Logger,
	options ...EngineOption) *Engine {

	e := &Engine{
		settings: settings,
		store:    store,
		governor: governor,
		log:      log,
		clock:    time.Now,
		newID:    uuid.NewString,
	}

	for _, option := range options {
		option(e)
	}
	return e
}

// Settings returns the engine settings
func (e *Engine) Settings() core.Settings {
	return e.settings
}

// Book records a closure reported by the broker. Orders the store does not know start a new chain
// at level 0. It returns the stored order and whether the closure was new; repeated events for an
// order that is already closed are ignored.
func (e *Engine) Book(event core.TradeClosed) (core.ChainOrder, bool, error) {
	if !event.Outcome.Closed() {
		return core.ChainOrder{}, false, fmt.Errorf("order %s: outcome %q is not a closure",
			event.Order.OrderID, event.Outcome)
	}

	order, err := e.store.Order(event.Order.OrderID)
	switch {
	case errors.Is(err, core.ErrOrderNotFound):
		order, err = e.startChain(event.Order)
		if err != nil {
			return core.ChainOrder{}, false, err
		}
	case err != nil:
		return core.ChainOrder{}, false, err
	}

	if order.Outcome.Closed() {
		e.log.WithField("order", order.OrderID).Debug("duplicate closure ignored")
		return order, false, nil
	}

	closedAt := event.ClosedAt
	if closedAt.IsZero() {
		closedAt = e.clock()
	}

	order.Outcome = event.Outcome
	order.Profit = event.Profit
	order.ClosedAt = closedAt
	if err := e.store.SaveOrder(order); err != nil {
		return core.ChainOrder{}, false, fmt.Errorf("failed to save closed order: %w", err)
	}

	chain, err := e.store.Get(order.ChainID)
	if err != nil {
		return core.ChainOrder{}, false, err
	}

	chain.TotalRealizedProfit += event.Profit
	chain.UpdatedAt = closedAt
	if err := e.store.Upsert(chain); err != nil {
		return core.ChainOrder{}, false, fmt.Errorf("failed to save chain: %w", err)
	}
	metrics.AddRealizedProfit(event.Profit)

	if order.Kind == core.OrderKindRecovery && event.Profit < 0 {
		if err := e.governor.RecordLoss(event.Profit); err != nil {
			e.log.WithError(err).Error("failed to record recovery loss")
		}
	}

	e.log.WithFields(map[string]any{
		"chain":   chain.ID,
		"order":   order.OrderID,
		"level":   order.Level,
		"outcome": order.Outcome,
		"profit":  event.Profit,
	}).Info("order closed")

	return order, true, nil
}

// startChain creates a chain whose level 0 order is the given one
func (e *Engine) startChain(order core.ChainOrder) (core.ChainOrder, error) {
	if err := order.Validate(); err != nil {
		return core.ChainOrder{}, fmt.Errorf("cannot start chain: %w", err)
	}

	now := e.clock()

	chain := core.Chain{
		ID:           e.newID(),
		Symbol:       order.Symbol,
		Direction:    order.Direction,
		BaseLot:      order.LotSize,
		CurrentLevel: 0,
		MaxLevel:     e.settings.Reentry.MaxLevel,
		Status:       core.ChainStatusActive,
		BaseEntry:    order.EntryPrice,
		BaseSL:       order.SLPrice,
		BaseTP:       order.TPPrice,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Upsert(chain); err != nil {
		return core.ChainOrder{}, fmt.Errorf("failed to save new chain: %w", err)
	}

	order.ChainID = chain.ID
	order.Level = 0
	order.Kind = core.OrderKindOriginal
	order.Outcome = core.OutcomeOpen
	if order.OpenedAt.IsZero() {
		order.OpenedAt = now
	}
	if err := e.store.SaveOrder(order); err != nil {
		return core.ChainOrder{}, fmt.Errorf("failed to save original order: %w", err)
	}

	e.log.WithField("chain", chain.ID).Infof("chain started from order %s", order.OrderID)
	return order, nil
}

// OnTradeClosed decides what follows a closed order given the current quote.
// Terminal decisions close the chain in the store before returning. The error is only set when
// the store cannot be read or written.
func (e *Engine) OnTradeClosed(order core.ChainOrder, outcome core.OutcomeType,
	quote core.Quote) (core.Decision, error) {

	chain, err := e.store.Get(order.ChainID)
	if err != nil {
		return core.Decision{}, err
	}

	if !chain.Active() {
		return core.NoAction(chain.ID, core.ReasonChainInactive), nil
	}

	if last, ok := e.store.LastOrder(chain.ID); ok && last.OrderID != order.OrderID {
		return core.NoAction(chain.ID, core.ReasonSuperseded), nil
	}

	switch outcome {
	case core.OutcomeSL:
		return e.recovery(chain, order, quote)
	case core.OutcomeTP:
		return e.continuation(chain, order, quote)
	case core.OutcomeClosedManual:
		return e.finish(chain, core.ChainStatusStopped, core.ReasonManualClose)
	default:
		return core.NoAction(chain.ID, core.ReasonOrderOpen), nil
	}
}

func (e *Engine) recovery(chain core.Chain, order core.ChainOrder, quote core.Quote) (core.Decision, error) {
	cfg := e.settings.Reentry
	level := chain.CurrentLevel + 1

	if level > chain.MaxLevel {
		return e.finish(chain, core.ChainStatusStopped, core.ReasonMaxLevel)
	}

	if cfg.RecoveryWindow > 0 && e.clock().Sub(order.ClosedAt) > cfg.RecoveryWindow {
		return e.finish(chain, core.ChainStatusStopped, core.ReasonRecoveryWindowExpired)
	}

	if !quote.Valid() {
		return core.NoAction(chain.ID, core.ReasonNoPrice), nil
	}

	info := e.settings.Symbol(chain.Symbol)
	sign := chain.Direction.Sign()
	basePips := profit.ToPips(chain.BaseSLDistance(), info)

	retracePips := profit.ToPips(sign*(quote.ExitPrice(chain.Direction)-order.SLPrice), info)
	if retracePips+pipTolerance < cfg.RecoveryFraction*basePips {
		return core.NoAction(chain.ID, core.ReasonAwaitingRetrace), nil
	}

	slPips := profit.NextSLDistance(basePips, level, cfg.SLReductionPercent, cfg.MinSLPips)
	sl := profit.RoundPrice(chain.BaseEntry-sign*profit.FromPips(slPips, info), info)

	entry := quote.EntryPrice(chain.Direction)
	if sign*(entry-sl) <= 0 {
		return core.NoAction(chain.ID, core.ReasonAwaitingRetrace), nil
	}

	if err := e.governor.Verify(chain); err != nil {
		e.log.WithField("chain", chain.ID).WithError(err).Warn("recovery blocked")
		return e.finish(chain, core.ChainStatusStopped, core.ReasonSafetyCap)
	}

	lot := profit.LotForLevel(chain.BaseLot, level, cfg.LotMultiplier, info)
	if e.givesBackTooMuch(chain, lot, entry-sl, info) {
		return e.finish(chain, core.ChainStatusStopped, core.ReasonProfitProtection)
	}

	tp := 0.0
	if chain.BaseTP > 0 && sign*(chain.BaseTP-entry) > 0 {
		tp = chain.BaseTP
	}

	return core.OpenRecovery(chain.ID, level, entry, sl, tp, lot), nil
}

func (e *Engine) continuation(chain core.Chain, order core.ChainOrder, quote core.Quote) (core.Decision, error) {
	cfg := e.settings.Reentry
	level := chain.CurrentLevel + 1

	if !cfg.ContinuationEnabled {
		return e.finish(chain, core.ChainStatusCompleted, core.ReasonContinuationDisabled)
	}

	if level > chain.MaxLevel {
		return e.finish(chain, core.ChainStatusCompleted, core.ReasonMaxLevel)
	}

	if cfg.ContinuationWindow > 0 && e.clock().Sub(order.ClosedAt) > cfg.ContinuationWindow {
		return e.finish(chain, core.ChainStatusCompleted, core.ReasonContinuationWindowExpired)
	}

	if !quote.Valid() {
		return core.NoAction(chain.ID, core.ReasonNoPrice), nil
	}

	info := e.settings.Symbol(chain.Symbol)
	sign := chain.Direction.Sign()

	beyondPips := profit.ToPips(sign*(quote.ExitPrice(chain.Direction)-order.TPPrice), info)
	if beyondPips+pipTolerance < cfg.ContinuationOffsetPips {
		return core.NoAction(chain.ID, core.ReasonAwaitingContinuation), nil
	}

	entry := quote.EntryPrice(chain.Direction)
	basePips := profit.ToPips(chain.BaseSLDistance(), info)
	slPips := profit.NextSLDistance(basePips, level, cfg.SLReductionPercent, cfg.MinSLPips)
	sl := profit.RoundPrice(entry-sign*profit.FromPips(slPips, info), info)

	tpDistance := order.TPDistance()
	if tpDistance == 0 {
		tpDistance = chain.BaseTP - chain.BaseEntry
		if tpDistance < 0 {
			tpDistance = -tpDistance
		}
	}

	tp := 0.0
	if tpDistance > 0 {
		tp = profit.RoundPrice(entry+sign*tpDistance, info)
	}

	lot := profit.LotForLevel(chain.BaseLot, level, cfg.LotMultiplier, info)
	return core.OpenContinuation(chain.ID, level, entry, sl, tp, lot), nil
}

// givesBackTooMuch reports whether losing the next order would hand back more than the allowed
// share of the profit the chain has already realized
func (e *Engine) givesBackTooMuch(chain core.Chain, lot, slDistance float64, info core.SymbolInfo) bool {
	percent := e.settings.Reentry.MaxGivebackPercent
	if percent <= 0 || chain.TotalRealizedProfit <= 0 {
		return false
	}

	if slDistance < 0 {
		slDistance = -slDistance
	}
	return profit.Risk(lot, slDistance, info) > chain.TotalRealizedProfit*percent/100
}

// finish closes the chain and returns the matching NoAction decision
func (e *Engine) finish(chain core.Chain, status core.ChainStatusType,
	reason core.NoActionReason) (core.Decision, error) {

	if err := chain.Close(status, string(reason), e.clock()); err != nil {
		return core.Decision{}, err
	}

	if err := e.store.Upsert(chain); err != nil {
		return core.Decision{}, fmt.Errorf("failed to close chain %s: %w", chain.ID, err)
	}

	metrics.IncChainClosed(string(status), string(reason))
	e.log.WithFields(map[string]any{
		"chain":  chain.ID,
		"status": status,
		"reason": reason,
		"level":  chain.CurrentLevel,
	}).Info("chain closed")

	return core.NoAction(chain.ID, reason), nil
}

// Stop ends an active chain on operator request
func (e *Engine) Stop(chainID string) error {
	chain, err := e.store.Get(chainID)
	if err != nil {
		return err
	}

	_, err = e.finish(chain, core.ChainStatusStopped, core.ReasonOperatorStop)
	return err
}
