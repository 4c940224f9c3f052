package profit

import (
	"testing"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextSLDistance_Ladder(t *testing.T) {
	expected := []float64{10, 7, 4.9, 3.43, 2.401, 2}

	for level, want := range expected {
		got := NextSLDistance(10, level, 30, 2)
		assert.InDelta(t, want, got, 1e-9, "level %d", level)
	}
}

func TestNextSLDistance_Monotonic(t *testing.T) {
	for _, reduction := range []float64{0, 5, 30, 50, 99} {
		previous := NextSLDistance(50, 0, reduction, 10)
		for level := 1; level <= 20; level++ {
			current := NextSLDistance(50, level, reduction, 10)
			require.LessOrEqual(t, current, previous, "reduction %.0f level %d", reduction, level)
			require.GreaterOrEqual(t, current, 10.0)
			previous = current
		}
	}
}

func TestNextSLDistance_NegativeLevel(t *testing.T) {
	require.Equal(t, 10.0, NextSLDistance(10, -3, 30, 2))
}

func TestLadder(t *testing.T) {
	ladder := Ladder(50, 3, 30, 10)
	require.Len(t, ladder, 4)
	assert.InDelta(t, 35, ladder[1], 1e-9)
	assert.InDelta(t, 17.15, ladder[3], 1e-9)

	require.Nil(t, Ladder(50, -1, 30, 10))
}

func TestLotForLevel(t *testing.T) {
	info := core.DefaultSymbolInfo("EURUSD")

	assert.Equal(t, 0.1, LotForLevel(0.1, 0, 1.5, info))
	assert.Equal(t, 0.15, LotForLevel(0.1, 1, 1.5, info))
	assert.Equal(t, 0.22, LotForLevel(0.1, 2, 1.5, info))

	info.MaxLot = 0.2
	assert.Equal(t, 0.2, LotForLevel(0.1, 2, 1.5, info))

	assert.Equal(t, 0.01, LotForLevel(0.001, 0, 1, core.DefaultSymbolInfo("EURUSD")))
}

func TestPips(t *testing.T) {
	eurusd := core.DefaultSymbolInfo("EURUSD")
	assert.Equal(t, 50.0, ToPips(0.0050, eurusd))
	assert.InDelta(t, 0.0035, FromPips(35, eurusd), 1e-12)

	usdjpy := core.DefaultSymbolInfo("USDJPY")
	assert.Equal(t, 25.0, ToPips(0.25, usdjpy))

	assert.Equal(t, 1.1015, RoundPrice(1.10150000001, eurusd))
	assert.InDelta(t, 35.0, Risk(0.1, 0.0035, eurusd), 1e-9)
}
