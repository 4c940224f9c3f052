package optimizer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/zepix/pkg/report"
	"github.com/samber/lo"
)

// MetricsFromSummaries aggregates the per symbol summaries of one evaluation
func MetricsFromSummaries(summaries []*report.Summary) map[MetricName]float64 {
	var (
		wins, losses []float64
		chains       int
		stopped      int
	)

	for _, summary := range summaries {
		wins = append(wins, summary.Wins...)
		losses = append(losses, summary.Losses...)
		chains += summary.Chains()
		stopped += summary.Stopped
	}

	total := report.Summary{Wins: wins, Losses: losses}
	return map[MetricName]float64{
		MetricProfit:        total.Profit(),
		MetricWinRate:       total.WinPercentage(),
		MetricPayoff:        total.Payoff(),
		MetricProfitFactor:  total.ProfitFactor(),
		MetricSQN:           total.SQN(),
		MetricTradeCount:    float64(len(wins) + len(losses)),
		MetricChainCount:    float64(chains),
		MetricStoppedChains: float64(stopped),
	}
}

// SaveResultsToCSV saves optimization results to a CSV file in their current order
func SaveResultsToCSV(results []*Result, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return WriteResultsCSV(file, results)
}

// WriteResultsCSV writes one row per result with parameters and metrics as columns
func WriteResultsCSV(w io.Writer, results []*Result) error {
	writer := csv.NewWriter(w)

	params, metrics := columns(results)

	header := append([]string{"rank", "duration"}, params...)
	header = append(header, lo.Map(metrics, func(m MetricName, _ int) string { return string(m) })...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, result := range results {
		row := []string{strconv.Itoa(i + 1), result.Duration.String()}
		for _, name := range params {
			row = append(row, strconv.FormatFloat(result.Parameters[name], 'f', -1, 64))
		}
		for _, name := range metrics {
			row = append(row, strconv.FormatFloat(result.Metrics[name], 'f', 4, 64))
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// PrintResults writes the results as a table, target metric first
func PrintResults(w io.Writer, results []*Result, targetMetric MetricName) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	params, _ := columns(results)

	table := tablewriter.NewWriter(w)
	table.SetHeader(append(append([]string{"#"}, params...), string(targetMetric), "trades", "chains"))

	for i, result := range results {
		row := []string{strconv.Itoa(i + 1)}
		for _, name := range params {
			row = append(row, strconv.FormatFloat(result.Parameters[name], 'f', -1, 64))
		}
		row = append(row,
			fmt.Sprintf("%.2f", result.Metrics[targetMetric]),
			fmt.Sprintf("%.0f", result.Metrics[MetricTradeCount]),
			fmt.Sprintf("%.0f", result.Metrics[MetricChainCount]),
		)
		table.Append(row)
	}
	table.Render()
}

// FormatParameterSet formats a parameter set with sorted names
func FormatParameterSet(params ParameterSet) string {
	names := lo.Keys(params)
	sort.Strings(names)

	parts := lo.Map(names, func(name string, _ int) string {
		return fmt.Sprintf("%s: %v", name, params[name])
	})
	return "{" + strings.Join(parts, ", ") + "}"
}

// columns returns the sorted parameter and metric names found in results
func columns(results []*Result) ([]string, []MetricName) {
	params := make(map[string]struct{})
	metrics := make(map[MetricName]struct{})

	for _, result := range results {
		for name := range result.Parameters {
			params[name] = struct{}{}
		}
		for name := range result.Metrics {
			metrics[name] = struct{}{}
		}
	}

	paramNames := lo.Keys(params)
	sort.Strings(paramNames)

	metricNames := lo.Keys(metrics)
	sort.Slice(metricNames, func(i, j int) bool { return metricNames[i] < metricNames[j] })

	return paramNames, metricNames
}
