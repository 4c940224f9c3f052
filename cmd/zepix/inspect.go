package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/goterm/term"
	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/zepix/pkg/config"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/profit"
	"github.com/raykavin/zepix/pkg/report"
	"github.com/raykavin/zepix/pkg/storage"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

const (
	bootstrapSamples    = 10000
	bootstrapConfidence = 0.95
	histogramBins       = 15
)

// Inspection flags
var (
	activeOnly  bool
	chainSymbol string
	symbol      string
	basePips    float64
	baseLot     float64
)

func buildChainsCmd() *cobra.Command {
	chainsCmd := &cobra.Command{
		Use:   "chains",
		Short: "List stored chains",
		RunE:  runChains,
	}

	chainsCmd.Flags().BoolVarP(&activeOnly, "active", "a", false, "Only active chains")
	chainsCmd.Flags().StringVarP(&chainSymbol, "symbol", "s", "", "Only chains of a symbol")
	return chainsCmd
}

func buildReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Summarize realized chain results",
		RunE:  runReport,
	}
}

func buildLadderCmd() *cobra.Command {
	ladderCmd := &cobra.Command{
		Use:   "ladder",
		Short: "Print the stop loss and lot of every chain level",
		RunE:  runLadder,
	}

	ladderCmd.Flags().StringVarP(&symbol, "symbol", "s", "EURUSD", "Symbol (e.g. XAUUSD)")
	ladderCmd.Flags().Float64VarP(&basePips, "sl-pips", "p", 0, "Stop loss distance of the original order in pips")
	ladderCmd.Flags().Float64VarP(&baseLot, "lot", "l", 0.1, "Lot of the original order")
	ladderCmd.MarkFlagRequired("sl-pips")

	return ladderCmd
}

// openStore loads the configured storage without starting the bot
func openStore() (*storage.ChainStore, error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return storage.Open(settings.Storage)
}

func runChains(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var filters []core.ChainFilter
	if activeOnly {
		filters = append(filters, core.WithStatusIn(core.ChainStatusActive))
	}
	if chainSymbol != "" {
		filters = append(filters, core.WithSymbol(strings.ToUpper(chainSymbol)))
	}

	chains, err := store.Find(filters...)
	if err != nil {
		return err
	}

	printChains(chains)
	return nil
}

func printChains(chains []core.Chain) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Symbol", "Side", "Level", "Status", "Reason", "Profit", "Updated"})

	for _, chain := range chains {
		table.Append([]string{
			chain.ID,
			chain.Symbol,
			string(chain.Direction),
			fmt.Sprintf("%d/%d", chain.CurrentLevel, chain.MaxLevel),
			colorStatus(chain.Status),
			chain.StopReason,
			fmt.Sprintf("%.2f", chain.TotalRealizedProfit),
			chain.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	table.SetFooter([]string{"", "", "", "", "", "TOTAL",
		fmt.Sprintf("%.2f", lo.SumBy(chains, func(chain core.Chain) float64 { return chain.TotalRealizedProfit })), ""})
	table.Render()
}

func colorStatus(status core.ChainStatusType) string {
	switch status {
	case core.ChainStatusActive:
		return term.Cyanf("%s", status)
	case core.ChainStatusCompleted:
		return term.Greenf("%s", status)
	default:
		return term.Redf("%s", status)
	}
}

func runReport(_ *cobra.Command, _ []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	printReport(store.All(), store.Orders)
	return nil
}

func printReport(chains []core.Chain, orders report.OrderSource) {
	summaries := report.Build(chains, orders)
	if len(summaries) == 0 {
		fmt.Println("No chains recorded.")
		return
	}

	var profits []float64
	for _, summary := range summaries {
		summary.Render(os.Stdout)
		profits = append(profits, summary.ChainProfits...)
	}

	fmt.Println("------ CHAIN PROFIT -------")
	if err := report.Histogram(os.Stdout, profits, histogramBins); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	fmt.Println()

	fmt.Println("------ CONFIDENCE INTERVAL (95%) -------")
	for _, summary := range summaries {
		interval := report.Bootstrap(summary.ChainProfits, report.Mean, bootstrapSamples, bootstrapConfidence)
		fmt.Printf("| %s | CHAIN PROFIT: %.2f (%.2f ~ %.2f)\n",
			summary.Symbol, interval.Mean, interval.Lower, interval.Upper)
	}
}

func runLadder(_ *cobra.Command, _ []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rules := settings.Reentry
	info := settings.Symbol(symbol)
	ladder := profit.Ladder(basePips, rules.MaxLevel, rules.SLReductionPercent, rules.MinSLPips)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Level", "SL pips", "Lot", "Risk"})
	for level, pips := range ladder {
		lot := profit.LotForLevel(baseLot, level, rules.LotMultiplier, info)
		table.Append([]string{
			strconv.Itoa(level),
			fmt.Sprintf("%.1f", pips),
			strconv.FormatFloat(lot, 'f', -1, 64),
			fmt.Sprintf("%.2f", profit.Risk(lot, profit.FromPips(pips, info), info)),
		})
	}
	table.Render()

	return nil
}
