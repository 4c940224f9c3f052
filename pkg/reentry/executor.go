package reentry

import (
	"context"
	"fmt"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/metrics"
)

// Executor turns open decisions into broker orders and records them in the chain
type Executor struct {
	client   core.ExecutionClient
	store    core.ChainStore
	governor Governor
	notifier core.Notifier
	log      logger.Logger
	clock    core.Clock
}

// NewExecutor creates an executor placing orders through client
func NewExecutor(client core.ExecutionClient, store core.ChainStore, governor Governor,
	log logger.Logger) *Executor {

	return &Executor{
		client:   client,
		store:    store,
		governor: governor,
		log:      log,
		clock:    time.Now,
	}
}

// SetNotifier configures where placement and failure messages go
func (x *Executor) SetNotifier(notifier core.Notifier) {
	x.notifier = notifier
}

// SetClock replaces the wall clock
func (x *Executor) SetClock(clock core.Clock) {
	x.clock = clock
}

// Execute places the order described by an open decision.
// A broker failure stops the chain; the engine never retries it.
func (x *Executor) Execute(ctx context.Context, decision core.Decision) (core.ChainOrder, error) {
	if !decision.Opens() {
		return core.ChainOrder{}, fmt.Errorf("decision %s does not open an order", decision)
	}

	chain, err := x.store.Get(decision.ChainID)
	if err != nil {
		return core.ChainOrder{}, err
	}

	if !chain.Active() {
		return core.ChainOrder{}, fmt.Errorf("%w: %s", core.ErrChainClosed, chain.ID)
	}

	if decision.Level > chain.MaxLevel {
		return core.ChainOrder{}, fmt.Errorf("level %d exceeds max level %d of chain %s",
			decision.Level, chain.MaxLevel, chain.ID)
	}

	kind := decision.OrderKind()
	request := core.OrderRequest{
		Symbol:    chain.Symbol,
		Direction: chain.Direction,
		Lot:       decision.Lot,
		SL:        decision.SL,
		TP:        decision.TP,
		Comment:   orderComment(chain.ID, decision.Level),
	}

	orderID, err := x.client.PlaceOrder(ctx, request)
	if err != nil {
		metrics.IncExecutionError("place_order")
		x.log.WithField("chain", chain.ID).WithError(err).Error("failed to place order")
		x.stop(chain, core.ReasonExecutionError)
		x.notify(executionFailedMessage(chain, decision, err))
		return core.ChainOrder{}, fmt.Errorf("place %s order for chain %s: %w", kind, chain.ID, err)
	}

	now := x.clock()
	order := core.ChainOrder{
		OrderID:    orderID,
		ChainID:    chain.ID,
		Level:      decision.Level,
		Kind:       kind,
		Symbol:     chain.Symbol,
		Direction:  chain.Direction,
		EntryPrice: decision.Entry,
		SLPrice:    decision.SL,
		TPPrice:    decision.TP,
		LotSize:    decision.Lot,
		Outcome:    core.OutcomeOpen,
		OpenedAt:   now,
	}

	if err := x.store.SaveOrder(order); err != nil {
		// the broker holds a position the chain cannot track, stop before it is opened twice
		x.log.WithField("order", orderID).WithError(err).Error("failed to save placed order")
		x.stop(chain, core.ReasonExecutionError)
		return core.ChainOrder{}, fmt.Errorf("save order %s: %w", orderID, err)
	}

	if err := chain.Advance(decision.Level, now); err != nil {
		return core.ChainOrder{}, err
	}
	if kind == core.OrderKindRecovery {
		chain.RecoveryAttempts++
	}

	if err := x.store.Upsert(chain); err != nil {
		return core.ChainOrder{}, fmt.Errorf("save chain %s: %w", chain.ID, err)
	}

	if kind == core.OrderKindRecovery {
		if err := x.governor.RecordAttempt(chain); err != nil {
			x.log.WithError(err).Error("failed to record recovery attempt")
		}
	}

	metrics.IncOrderPlaced(string(kind), chain.Symbol)
	x.log.WithFields(map[string]any{
		"chain": chain.ID,
		"order": orderID,
		"level": decision.Level,
		"kind":  kind,
	}).Info("order placed")
	x.notify(orderPlacedMessage(chain, order))

	return order, nil
}

// Close closes an open order at the broker. Its closure comes back as a broker event.
func (x *Executor) Close(ctx context.Context, order core.ChainOrder) error {
	if err := x.client.CloseOrder(ctx, order.OrderID); err != nil {
		metrics.IncExecutionError("close_order")
		x.log.WithField("order", order.OrderID).WithError(err).Error("failed to close order")
		return fmt.Errorf("close order %s of chain %s: %w", order.OrderID, order.ChainID, err)
	}

	x.log.WithFields(map[string]any{
		"chain": order.ChainID,
		"order": order.OrderID,
	}).Info("order closed at broker")
	return nil
}

func (x *Executor) stop(chain core.Chain, reason core.NoActionReason) {
	if err := chain.Close(core.ChainStatusStopped, string(reason), x.clock()); err != nil {
		x.log.WithError(err).Warn("chain already closed")
		return
	}

	if err := x.store.Upsert(chain); err != nil {
		x.log.WithField("chain", chain.ID).WithError(err).Error("failed to stop chain")
		return
	}
	metrics.IncChainClosed(string(chain.Status), string(reason))
}

func (x *Executor) notify(text string) {
	if x.notifier != nil {
		x.notifier.Notify(text)
	}
}

func orderComment(chainID string, level int) string {
	if len(chainID) > 8 {
		chainID = chainID[:8]
	}
	return fmt.Sprintf("zepix %s L%d", chainID, level)
}
