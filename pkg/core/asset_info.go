package core

import "strings"

// SymbolInfo contains broker metadata about a tradable symbol
type SymbolInfo struct {
	Symbol string

	PipSize  float64 // Price change of one pip
	Digits   int     // Price precision
	PipValue float64 // Account currency value of one pip for one lot

	MinLot  float64
	MaxLot  float64
	LotStep float64
}

// DefaultSymbolInfo guesses metadata for a symbol from its name
func DefaultSymbolInfo(symbol string) SymbolInfo {
	info := SymbolInfo{Symbol: symbol}

	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(upper, "XAU"):
		info.PipSize, info.Digits = 0.1, 2
	case strings.HasPrefix(upper, "XAG"):
		info.PipSize, info.Digits = 0.01, 3
	case strings.Contains(upper, "JPY"):
		info.PipSize, info.Digits = 0.01, 3
	}

	return info.withDefaults()
}

func (s SymbolInfo) withDefaults() SymbolInfo {
	if s.PipSize == 0 {
		s.PipSize = 0.0001
	}
	if s.Digits == 0 {
		s.Digits = 5
	}
	if s.PipValue == 0 {
		s.PipValue = 10
	}
	if s.LotStep == 0 {
		s.LotStep = 0.01
	}
	if s.MinLot == 0 {
		s.MinLot = s.LotStep
	}
	if s.MaxLot == 0 {
		s.MaxLot = 100
	}
	return s
}
