package core

import "fmt"

// DecisionKind identifies the variant of a Decision
type DecisionKind string

// NoActionReason explains why a Decision did not open an order
type NoActionReason string

// Decision kinds
const (
	DecisionOpenRecovery     DecisionKind = "OPEN_RECOVERY"
	DecisionOpenContinuation DecisionKind = "OPEN_CONTINUATION"
	DecisionNoAction         DecisionKind = "NO_ACTION"
)

// NoAction reasons
const (
	ReasonNoPrice                   NoActionReason = "no_price"
	ReasonAwaitingRetrace           NoActionReason = "awaiting_retrace"
	ReasonAwaitingContinuation      NoActionReason = "awaiting_continuation"
	ReasonMaxLevel                  NoActionReason = "max_level"
	ReasonSafetyCap                 NoActionReason = "safety_cap"
	ReasonProfitProtection          NoActionReason = "profit_protection"
	ReasonRecoveryWindowExpired     NoActionReason = "recovery_window_expired"
	ReasonContinuationWindowExpired NoActionReason = "continuation_window_expired"
	ReasonContinuationDisabled      NoActionReason = "continuation_disabled"
	ReasonChainInactive             NoActionReason = "chain_inactive"
	ReasonManualClose               NoActionReason = "manual_close"
	ReasonOrderOpen                 NoActionReason = "order_open"
	ReasonSuperseded                NoActionReason = "superseded"
	ReasonExecutionError            NoActionReason = "execution_error"
	ReasonOperatorStop              NoActionReason = "operator_stop"
)

// Final reports whether the reason ends the chain. Non-final reasons are re-evaluated on the next poll.
func (r NoActionReason) Final() bool {
	switch r {
	case ReasonNoPrice, ReasonAwaitingRetrace, ReasonAwaitingContinuation, ReasonOrderOpen,
		ReasonChainInactive, ReasonSuperseded:
		return false
	}
	return true
}

// Decision is the result of evaluating a closed order against its chain.
// Only the fields of the variant named by Kind are meaningful.
type Decision struct {
	Kind    DecisionKind
	ChainID string
	Level   int

	// OpenRecovery / OpenContinuation
	Entry float64 // expected fill price
	SL    float64
	TP    float64
	Lot   float64

	// NoAction
	Reason NoActionReason
}

// OpenRecovery builds a recovery decision
func OpenRecovery(chainID string, level int, entry, sl, tp, lot float64) Decision {
	return Decision{Kind: DecisionOpenRecovery, ChainID: chainID, Level: level, Entry: entry, SL: sl, TP: tp, Lot: lot}
}

// OpenContinuation builds a continuation decision
func OpenContinuation(chainID string, level int, entry, sl, tp, lot float64) Decision {
	return Decision{Kind: DecisionOpenContinuation, ChainID: chainID, Level: level, Entry: entry, SL: sl, TP: tp, Lot: lot}
}

// NoAction builds a decision that opens nothing
func NoAction(chainID string, reason NoActionReason) Decision {
	return Decision{Kind: DecisionNoAction, ChainID: chainID, Reason: reason}
}

// Opens reports whether the decision requires a new order
func (d Decision) Opens() bool {
	return d.Kind == DecisionOpenRecovery || d.Kind == DecisionOpenContinuation
}

// OrderKind maps an open decision to the kind of order it creates
func (d Decision) OrderKind() OrderKindType {
	if d.Kind == DecisionOpenContinuation {
		return OrderKindContinuation
	}
	return OrderKindRecovery
}

func (d Decision) String() string {
	switch d.Kind {
	case DecisionOpenRecovery, DecisionOpenContinuation:
		return fmt.Sprintf("%s L%d lot=%.2f sl=%g tp=%g", d.Kind, d.Level, d.Lot, d.SL, d.TP)
	default:
		return fmt.Sprintf("%s (%s)", d.Kind, d.Reason)
	}
}
