package broker

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReadTicks(t *testing.T) {
	t.Run("default layout", func(t *testing.T) {
		ticks, err := ReadTicks(strings.NewReader("60,eurusd,1.1000,1.1001\n0,EURUSD,1.0990,1.0991\n"))
		require.NoError(t, err)
		require.Len(t, ticks, 2)
		require.Equal(t, time.Unix(0, 0).UTC(), ticks[0].Time)
		require.Equal(t, "EURUSD", ticks[1].Symbol)
		require.InDelta(t, 1.1001, ticks[1].Ask, 1e-9)
	})

	t.Run("custom header", func(t *testing.T) {
		content := "bid,ask,symbol,time\n1.2,1.3,XAUUSD,2024-03-01T10:00:00Z\n"
		ticks, err := ReadTicks(strings.NewReader(content))
		require.NoError(t, err)
		require.Len(t, ticks, 1)
		require.Equal(t, "XAUUSD", ticks[0].Symbol)
		require.InDelta(t, 1.2, ticks[0].Bid, 1e-9)
		require.Equal(t, 2024, ticks[0].Time.Year())
	})

	t.Run("invalid price", func(t *testing.T) {
		_, err := ReadTicks(strings.NewReader("0,EURUSD,abc,1.1\n"))
		require.ErrorContains(t, err, "line 1")
	})

	t.Run("empty", func(t *testing.T) {
		ticks, err := ReadTicks(strings.NewReader(""))
		require.NoError(t, err)
		require.Empty(t, ticks)
	})
}

func TestSymbols(t *testing.T) {
	ticks := []Tick{{Symbol: "EURUSD"}, {Symbol: "XAUUSD"}, {Symbol: "EURUSD"}}
	require.Equal(t, []string{"EURUSD", "XAUUSD"}, Symbols(ticks))
}
