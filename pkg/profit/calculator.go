// Package profit computes stop loss distances, lot sizes and pip conversions for chain levels.
package profit

import (
	"math"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/shopspring/decimal"
)

// NextSLDistance returns the stop loss distance of a chain level.
// The base distance is reduced by reductionPercent once per level and floored at minDistance.
// Negative levels are treated as level 0.
func NextSLDistance(baseDistance float64, level int, reductionPercent, minDistance float64) float64 {
	distance := baseDistance
	factor := 1 - reductionPercent/100

	for i := 0; i < level; i++ {
		distance *= factor
	}

	return math.Max(distance, minDistance)
}

// Ladder returns the stop loss distance of every level from 0 to maxLevel
func Ladder(baseDistance float64, maxLevel int, reductionPercent, minDistance float64) []float64 {
	if maxLevel < 0 {
		return nil
	}

	ladder := make([]float64, 0, maxLevel+1)
	for level := 0; level <= maxLevel; level++ {
		ladder = append(ladder, NextSLDistance(baseDistance, level, reductionPercent, minDistance))
	}
	return ladder
}

// LotForLevel scales the base lot by multiplier^level, rounds down to the lot step and clamps it
// to the symbol limits.
func LotForLevel(baseLot float64, level int, multiplier float64, info core.SymbolInfo) float64 {
	lot := baseLot * math.Pow(multiplier, float64(level))
	lot = RoundLot(lot, info.LotStep)

	if info.MaxLot > 0 && lot > info.MaxLot {
		lot = info.MaxLot
	}
	if lot < info.MinLot {
		lot = info.MinLot
	}
	return lot
}

// RoundLot rounds a lot down to a multiple of step
func RoundLot(lot, step float64) float64 {
	if step <= 0 {
		return lot
	}
	d := decimal.NewFromFloat(lot).Div(decimal.NewFromFloat(step)).Floor()
	return d.Mul(decimal.NewFromFloat(step)).InexactFloat64()
}

// RoundPrice rounds a price to the symbol precision
func RoundPrice(price float64, info core.SymbolInfo) float64 {
	return decimal.NewFromFloat(price).Round(int32(info.Digits)).InexactFloat64()
}

// ToPips converts a price distance to pips
func ToPips(distance float64, info core.SymbolInfo) float64 {
	if info.PipSize == 0 {
		return 0
	}
	return decimal.NewFromFloat(distance).Div(decimal.NewFromFloat(info.PipSize)).Round(4).InexactFloat64()
}

// FromPips converts pips to a price distance
func FromPips(pips float64, info core.SymbolInfo) float64 {
	return decimal.NewFromFloat(pips).Mul(decimal.NewFromFloat(info.PipSize)).InexactFloat64()
}

// Risk estimates the money lost if an order of the given lot hits a stop loss distance
func Risk(lot, distance float64, info core.SymbolInfo) float64 {
	return lot * ToPips(distance, info) * info.PipValue
}
