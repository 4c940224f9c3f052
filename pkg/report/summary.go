// Package report aggregates realized chain results for operators.
package report

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// OrderSource returns the orders of a chain
type OrderSource func(chainID string) []core.ChainOrder

// Summary collects chain statistics for one symbol
type Summary struct {
	Symbol        string
	Wins          []float64 // profit of closed orders that made money
	Losses        []float64 // profit of closed orders that lost money
	ChainProfits  []float64 // realized profit of every finished chain
	Active        int
	Stopped       int
	Completed     int
	Recoveries    int
	Continuations int
	MaxLevel      int
	StopReasons   map[string]int
}

// Build groups chains by symbol and returns one summary per symbol, sorted by symbol
func Build(chains []core.Chain, orders OrderSource) []*Summary {
	bySymbol := lo.GroupBy(chains, func(chain core.Chain) string {
		return chain.Symbol
	})

	summaries := make([]*Summary, 0, len(bySymbol))
	for symbol, group := range bySymbol {
		summary := &Summary{Symbol: symbol, StopReasons: make(map[string]int)}
		for _, chain := range group {
			summary.add(chain, orders(chain.ID))
		}
		summaries = append(summaries, summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Symbol < summaries[j].Symbol
	})
	return summaries
}

func (s *Summary) add(chain core.Chain, orders []core.ChainOrder) {
	switch chain.Status {
	case core.ChainStatusActive:
		s.Active++
	case core.ChainStatusStopped:
		s.Stopped++
	case core.ChainStatusCompleted:
		s.Completed++
	}

	if !chain.Active() {
		s.ChainProfits = append(s.ChainProfits, chain.TotalRealizedProfit)
		if chain.StopReason != "" {
			s.StopReasons[chain.StopReason]++
		}
	}

	if chain.CurrentLevel > s.MaxLevel {
		s.MaxLevel = chain.CurrentLevel
	}

	for _, order := range orders {
		switch order.Kind {
		case core.OrderKindRecovery:
			s.Recoveries++
		case core.OrderKindContinuation:
			s.Continuations++
		}

		if !order.Outcome.Closed() {
			continue
		}
		if order.Profit >= 0 {
			s.Wins = append(s.Wins, order.Profit)
		} else {
			s.Losses = append(s.Losses, order.Profit)
		}
	}
}

// Chains returns the number of chains in the summary
func (s Summary) Chains() int {
	return s.Active + s.Stopped + s.Completed
}

// Trades returns every closed order result
func (s Summary) Trades() []float64 {
	return append(append([]float64(nil), s.Wins...), s.Losses...)
}

// Profit calculates the total realized profit across all orders
func (s Summary) Profit() float64 {
	return lo.Sum(s.Trades())
}

// SQN (System Quality Number) calculates the quality of the chain results
// SQN = sqrt(n) * (average profit / standard deviation)
func (s Summary) SQN() float64 {
	trades := s.Trades()
	if len(trades) < 2 {
		return 0
	}

	mean, stdDev := stat.PopMeanStdDev(trades, nil)
	if stdDev == 0 {
		return 0
	}
	return math.Sqrt(float64(len(trades))) * (mean / stdDev)
}

// Payoff calculates the ratio of the average win to the average loss
func (s Summary) Payoff() float64 {
	if len(s.Wins) == 0 || len(s.Losses) == 0 {
		return 0
	}

	avgLoss := stat.Mean(s.Losses, nil)
	if avgLoss == 0 {
		return 0
	}
	return stat.Mean(s.Wins, nil) / math.Abs(avgLoss)
}

// ProfitFactor calculates the ratio of gross profit to gross loss
func (s Summary) ProfitFactor() float64 {
	grossLoss := lo.Sum(s.Losses)
	if grossLoss == 0 {
		return 0
	}
	return lo.Sum(s.Wins) / math.Abs(grossLoss)
}

// WinPercentage calculates the percentage of winning orders
func (s Summary) WinPercentage() float64 {
	total := len(s.Wins) + len(s.Losses)
	if total == 0 {
		return 0
	}
	return float64(len(s.Wins)) / float64(total) * 100
}

// ChainMean returns the mean and standard deviation of finished chain profits
func (s Summary) ChainMean() (mean, stdDev float64) {
	switch len(s.ChainProfits) {
	case 0:
		return 0, 0
	case 1:
		return s.ChainProfits[0], 0
	}
	return stat.MeanStdDev(s.ChainProfits, nil)
}

// String formats the summary as a text table
func (s Summary) String() string {
	sb := &strings.Builder{}
	s.Render(sb)
	return sb.String()
}

// Render writes the summary table to w
func (s Summary) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	mean, stdDev := s.ChainMean()

	data := [][]string{
		{"Symbol", s.Symbol},
		{"Chains", strconv.Itoa(s.Chains())},
		{"Active", strconv.Itoa(s.Active)},
		{"Completed", strconv.Itoa(s.Completed)},
		{"Stopped", strconv.Itoa(s.Stopped)},
		{"Recoveries", strconv.Itoa(s.Recoveries)},
		{"Continuations", strconv.Itoa(s.Continuations)},
		{"Max level", strconv.Itoa(s.MaxLevel)},
		{"Trades", strconv.Itoa(len(s.Wins) + len(s.Losses))},
		{"% Win", fmt.Sprintf("%.1f", s.WinPercentage())},
		{"Payoff", fmt.Sprintf("%.2f", s.Payoff())},
		{"Pr.Fact", fmt.Sprintf("%.2f", s.ProfitFactor())},
		{"SQN", fmt.Sprintf("%.2f", s.SQN())},
		{"Chain avg", fmt.Sprintf("%.2f ± %.2f", mean, stdDev)},
		{"Profit", fmt.Sprintf("%.2f", s.Profit())},
	}

	reasons := lo.Keys(s.StopReasons)
	sort.Strings(reasons)
	for _, reason := range reasons {
		data = append(data, []string{"Stop: " + reason, strconv.Itoa(s.StopReasons[reason])})
	}

	table.AppendBulk(data)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.Render()
}
