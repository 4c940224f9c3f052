package notification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/samber/lo"
)

// FormatChains renders a chain list for chat messages
func FormatChains(chains []core.Chain) string {
	if len(chains) == 0 {
		return "No active chains."
	}

	sb := strings.Builder{}
	sb.WriteString("*CHAINS*\n")
	for _, chain := range chains {
		fmt.Fprintf(&sb, "`%s` %s %s L%d/%d profit `%.2f`\n",
			chain.ID, chain.Direction, chain.Symbol, chain.CurrentLevel, chain.MaxLevel, chain.TotalRealizedProfit)
	}
	return sb.String()
}

// FormatChain renders one chain with its orders
func FormatChain(chain core.Chain, orders []core.ChainOrder) string {
	sb := strings.Builder{}
	fmt.Fprintf(&sb, "*CHAIN* `%s`\n%s\n", chain.ID, chain)
	if chain.StopReason != "" {
		fmt.Fprintf(&sb, "Reason: %s\n", chain.StopReason)
	}

	sb.WriteString("-----\n")
	for _, order := range orders {
		sb.WriteString(order.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatSafety renders the daily counters against their caps
func FormatSafety(counters core.Counters, caps core.SafetySettings) string {
	return fmt.Sprintf("*SAFETY* `%s`\nAttempts: `%d` / `%s`\nLosses: `%.2f` / `%s`\nPer chain: `%s`",
		counters.Day,
		counters.RecoveryAttempts, capText(float64(caps.MaxDailyRecoveryAttempts), "%.0f"),
		counters.RecoveryLosses, capText(caps.MaxDailyRecoveryLoss, "%.2f"),
		capText(float64(caps.MaxChainRecoveryAttempts), "%.0f"),
	)
}

// FormatError renders an error, with broker details when available
func FormatError(err error) string {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var execErr *core.ExecutionError
	if errors.As(err, &execErr) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Operation: %s\n", execErr.Op)
		fmt.Fprintf(&sb, "Symbol: %s\n", execErr.Symbol)
		sb.WriteString("-----\n")
		sb.WriteString(execErr.Err.Error())
		return sb.String()
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())
	return sb.String()
}

func capText(value float64, format string) string {
	if value <= 0 {
		return "off"
	}
	return fmt.Sprintf(format, value)
}

func activeOnly(chains []core.Chain) []core.Chain {
	return lo.Filter(chains, func(chain core.Chain, _ int) bool {
		return chain.Active()
	})
}
