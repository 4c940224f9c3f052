package reentry

import (
	"fmt"
	"strings"

	"github.com/raykavin/zepix/pkg/core"
)

func orderPlacedMessage(chain core.Chain, order core.ChainOrder) string {
	var title string
	switch order.Kind {
	case core.OrderKindContinuation:
		title = fmt.Sprintf("📈 CONTINUATION L%d - %s", order.Level, order.Symbol)
	default:
		title = fmt.Sprintf("🔁 RECOVERY L%d - %s", order.Level, order.Symbol)
	}
	return fmt.Sprintf("%s\n-----\n%s\nChain: %s", title, order, chain.ID)
}

func orderClosedMessage(order core.ChainOrder) string {
	var title string
	switch order.Outcome {
	case core.OutcomeTP:
		title = fmt.Sprintf("✅ TAKE PROFIT - %s", order.Symbol)
	case core.OutcomeSL:
		title = fmt.Sprintf("❌ STOP LOSS - %s", order.Symbol)
	default:
		title = fmt.Sprintf("✋ CLOSED - %s", order.Symbol)
	}
	return fmt.Sprintf("%s\n-----\n%s\nProfit: %.2f", title, order, order.Profit)
}

func chainClosedMessage(chain core.Chain) string {
	title := "🏁 CHAIN COMPLETED"
	if chain.Status == core.ChainStatusStopped {
		title = "🛑 CHAIN STOPPED"
	}
	return fmt.Sprintf("%s - %s\n-----\n%s\nReason: %s", title, chain.Symbol, chain, chain.StopReason)
}

func executionFailedMessage(chain core.Chain, decision core.Decision, err error) string {
	sb := strings.Builder{}
	sb.WriteString("🛑 EXECUTION ERROR\n")
	fmt.Fprintf(&sb, "Chain: %s\n", chain.ID)
	fmt.Fprintf(&sb, "Symbol: %s\n", chain.Symbol)
	fmt.Fprintf(&sb, "Decision: %s\n", decision)
	fmt.Fprintf(&sb, "Error: %v\n", err)
	return sb.String()
}
