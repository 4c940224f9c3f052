package report

import (
	"bytes"
	"testing"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	chains := []core.Chain{
		{ID: "a", Symbol: "EURUSD", Status: core.ChainStatusCompleted, CurrentLevel: 2,
			TotalRealizedProfit: 30, StopReason: "continuation_window_expired"},
		{ID: "b", Symbol: "EURUSD", Status: core.ChainStatusStopped, CurrentLevel: 1,
			TotalRealizedProfit: -71, StopReason: "max_level"},
		{ID: "c", Symbol: "XAUUSD", Status: core.ChainStatusActive},
	}

	orders := map[string][]core.ChainOrder{
		"a": {
			{OrderID: "1", Kind: core.OrderKindOriginal, Outcome: core.OutcomeSL, Profit: -50},
			{OrderID: "2", Kind: core.OrderKindRecovery, Outcome: core.OutcomeTP, Profit: 80},
		},
		"b": {
			{OrderID: "3", Kind: core.OrderKindOriginal, Outcome: core.OutcomeSL, Profit: -50},
			{OrderID: "4", Kind: core.OrderKindRecovery, Outcome: core.OutcomeSL, Profit: -21},
		},
		"c": {
			{OrderID: "5", Kind: core.OrderKindOriginal, Outcome: core.OutcomeOpen},
		},
	}

	summaries := Build(chains, func(chainID string) []core.ChainOrder { return orders[chainID] })
	require.Len(t, summaries, 2)

	eur := summaries[0]
	require.Equal(t, "EURUSD", eur.Symbol)
	require.Equal(t, 2, eur.Chains())
	require.Equal(t, 1, eur.Completed)
	require.Equal(t, 1, eur.Stopped)
	require.Equal(t, 2, eur.Recoveries)
	require.Equal(t, 2, eur.MaxLevel)
	require.InDelta(t, -41, eur.Profit(), 1e-9)
	require.InDelta(t, 25, eur.WinPercentage(), 1e-9)
	require.InDelta(t, 80/121.0, eur.ProfitFactor(), 1e-9)
	require.Equal(t, 1, eur.StopReasons["max_level"])

	mean, _ := eur.ChainMean()
	require.InDelta(t, -20.5, mean, 1e-9)
	require.Contains(t, eur.String(), "EURUSD")

	xau := summaries[1]
	require.Equal(t, 1, xau.Active)
	require.Empty(t, xau.Trades())
	require.Zero(t, xau.SQN())
	require.Zero(t, xau.Payoff())
}

func TestBootstrap(t *testing.T) {
	values := []float64{10, 10, 10, 10}
	interval := Bootstrap(values, Mean, 100, 0.95)
	require.InDelta(t, 10, interval.Mean, 1e-9)
	require.InDelta(t, 10, interval.Lower, 1e-9)
	require.InDelta(t, 10, interval.Upper, 1e-9)

	require.Equal(t, BootstrapInterval{}, Bootstrap(nil, Mean, 100, 0.95))
}

func TestHistogram(t *testing.T) {
	var buffer bytes.Buffer
	require.NoError(t, Histogram(&buffer, nil, 5))
	require.Empty(t, buffer.String())

	require.NoError(t, Histogram(&buffer, []float64{-50, -21, 30, 80}, 4))
	require.NotEmpty(t, buffer.String())
}
