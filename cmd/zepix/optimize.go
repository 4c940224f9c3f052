package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/raykavin/zepix"
	"github.com/raykavin/zepix/pkg/broker"
	"github.com/raykavin/zepix/pkg/config"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/raykavin/zepix/pkg/optimizer"
	"github.com/spf13/cobra"
)

// Optimize flags
var (
	iterations  int
	parallelism int
	useGrid     bool
	metricName  string
	minimize    bool
	topN        int
	resultsFile string
)

func buildOptimizeCmd() *cobra.Command {
	optimizeCmd := &cobra.Command{
		Use:   "optimize",
		Short: "Search the re-entry rules that perform best over recorded quotes",
		RunE:  runOptimize,
	}

	flags := optimizeCmd.Flags()
	flags.StringVarP(&ticksFile, "ticks", "t", "", "CSV file of recorded quotes")
	flags.StringVarP(&symbol, "symbol", "s", "EURUSD", "Symbol of the original order")
	flags.StringVarP(&direction, "direction", "d", "BUY", "Side of the original order (BUY or SELL)")
	flags.Float64VarP(&openLot, "lot", "l", 0.1, "Lot of the original order")
	flags.Float64Var(&openSL, "sl", 0, "Stop loss price of the original order")
	flags.Float64Var(&openTP, "tp", 0, "Take profit price of the original order")
	flags.IntVarP(&iterations, "iterations", "i", 100, "Random search samples")
	flags.IntVarP(&parallelism, "parallel", "p", runtime.NumCPU(), "Concurrent replays")
	flags.BoolVar(&useGrid, "grid", false, "Evaluate the full grid instead of random samples")
	flags.StringVarP(&metricName, "metric", "m", string(optimizer.MetricProfit), "Metric to optimize")
	flags.BoolVar(&minimize, "minimize", false, "Minimize the metric instead of maximizing it")
	flags.IntVarP(&topN, "top", "n", 10, "Results to show")
	flags.StringVarP(&resultsFile, "output", "o", "", "Write results to a CSV file")

	optimizeCmd.MarkFlagRequired("ticks")
	optimizeCmd.MarkFlagRequired("sl")

	return optimizeCmd
}

func runOptimize(cmd *cobra.Command, _ []string) error {
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

	target := optimizer.MetricName(metricName)
	search := optimizer.NewConfig().
		WithParameters(optimizer.DefaultParameters()...).
		WithMaxIterations(iterations).
		WithParallelism(parallelism).
		WithTargetMetric(target, !minimize).
		WithTopN(topN).
		WithLogger(zepix.DefaultLog)

	var opt optimizer.Optimizer
	if useGrid {
		opt, err = optimizer.NewGridSearch(search)
	} else {
		opt, err = optimizer.NewRandomSearch(search)
	}
	if err != nil {
		return err
	}

	evaluator := optimizer.NewReplayEvaluator(settings, ticks, []core.OrderRequest{request}, logger.Nop())
	results, err := opt.Optimize(cmd.Context(), evaluator, target, !minimize)
	if err != nil {
		return err
	}

	optimizer.PrintResults(os.Stdout, results, target)

	if resultsFile != "" {
		return optimizer.SaveResultsToCSV(results, resultsFile)
	}
	return nil
}

// originalRequest builds the original order shared by replay and optimize
func originalRequest() (core.OrderRequest, error) {
	request := core.OrderRequest{
		Symbol:    strings.ToUpper(symbol),
		Direction: core.DirectionType(strings.ToUpper(direction)),
		Lot:       openLot,
		SL:        openSL,
		TP:        openTP,
		Comment:   "replay",
	}
	if !request.Direction.Valid() {
		return core.OrderRequest{}, fmt.Errorf("invalid direction: %s", direction)
	}
	return request, nil
}
