package main

import (
	"fmt"
	"os"

	"github.com/raykavin/zepix"
	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/config"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/storage"
	"github.com/spf13/cobra"
)

// Replay flags
var (
	ticksFile string
	direction string
	openLot   float64
	openSL    float64
	openTP    float64
	persist   bool
)

func buildReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded quotes through the paper broker",
		Long: "Replay opens one original order on the first tick of --symbol and lets chains " +
			"evolve over the recorded quotes. The CSV columns are time, symbol, bid and ask.",
		RunE: runReplay,
	}

	replayCmd.Flags().StringVarP(&ticksFile, "ticks", "t", "", "CSV file of recorded quotes")
	replayCmd.Flags().StringVarP(&symbol, "symbol", "s", "EURUSD", "Symbol of the original order")
	replayCmd.Flags().StringVarP(&direction, "direction", "d", "BUY", "Side of the original order (BUY or SELL)")
	replayCmd.Flags().Float64VarP(&openLot, "lot", "l", 0.1, "Lot of the original order")
	replayCmd.Flags().Float64Var(&openSL, "sl", 0, "Stop loss price of the original order")
	replayCmd.Flags().Float64Var(&openTP, "tp", 0, "Take profit price of the original order")
	replayCmd.Flags().BoolVar(&persist, "persist", false, "Write chains to the configured storage")

	replayCmd.MarkFlagRequired("ticks")
	replayCmd.MarkFlagRequired("sl")

	return replayCmd
}

func runReplay(cmd *cobra.Command, _ []string) error {
	settings, err := config.Load(configPath)
	if err != nil {
		return err
	}

	request, err := originalRequest()
	if err != nil {
		return err
	}

	ticks, err := broker.ReadTicksFile(ticksFile)
	if err != nil {
		return fmt.Errorf("failed to read ticks: %w", err)
	}

	options := []zepix.Option{zepix.WithReplay()}
	if !persist {
		repo, err := storage.FromMemory()
		if err != nil {
			return err
		}
		options = append(options, zepix.WithStorage(repo))
	}

	bot, err := zepix.NewBot(settings, options...)
	if err != nil {
		return err
	}
	defer bot.Close()

	if err := bot.Replay(cmd.Context(), ticks, []core.OrderRequest{request}, os.Stderr); err != nil {
		return err
	}
	fmt.Println()

	printChains(bot.Chains())
	printReport(bot.Chains(), bot.Orders)
	return nil
}
