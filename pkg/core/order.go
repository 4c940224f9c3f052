package core

import (
	"fmt"
	"time"
)

// OutcomeType represents how a chain order ended
type OutcomeType string

// OrderKindType tells why an order was opened
type OrderKindType string

// Outcome constants
const (
	OutcomeOpen         OutcomeType = "OPEN"
	OutcomeTP           OutcomeType = "TP"
	OutcomeSL           OutcomeType = "SL"
	OutcomeClosedManual OutcomeType = "CLOSED_MANUAL"
)

// Order kind constants
const (
	OrderKindOriginal     OrderKindType = "ORIGINAL"
	OrderKindRecovery     OrderKindType = "RECOVERY"
	OrderKindContinuation OrderKindType = "CONTINUATION"
)

// Closed reports whether the outcome ends the order
func (o OutcomeType) Closed() bool {
	return o == OutcomeTP || o == OutcomeSL || o == OutcomeClosedManual
}

// Valid reports whether the outcome is a known value
func (o OutcomeType) Valid() bool {
	return o == OutcomeOpen || o.Closed()
}

// ChainOrder is a broker order owned by exactly one chain
type ChainOrder struct {
	OrderID    string        `json:"order_id"`
	ChainID    string        `json:"chain_id"`
	Level      int           `json:"level"`
	Kind       OrderKindType `json:"kind"`
	Symbol     string        `json:"symbol"`
	Direction  DirectionType `json:"direction"`
	EntryPrice float64       `json:"entry_price"`
	SLPrice    float64       `json:"sl_price"`
	TPPrice    float64       `json:"tp_price"`
	LotSize    float64       `json:"lot_size"`
	Outcome    OutcomeType   `json:"outcome"`
	Profit     float64       `json:"profit"`

	OpenedAt time.Time `json:"opened_at"`
	ClosedAt time.Time `json:"closed_at"`
}

// SLDistance returns the absolute distance between entry and stop loss
func (o ChainOrder) SLDistance() float64 {
	d := o.EntryPrice - o.SLPrice
	if d < 0 {
		return -d
	}
	return d
}

// TPDistance returns the absolute distance between entry and take profit
func (o ChainOrder) TPDistance() float64 {
	d := o.TPPrice - o.EntryPrice
	if d < 0 {
		return -d
	}
	return d
}

// Validate checks the fields an order needs before it can start a chain
func (o ChainOrder) Validate() error {
	switch {
	case o.OrderID == "":
		return fmt.Errorf("order id is empty")
	case o.Symbol == "":
		return fmt.Errorf("order %s: symbol is empty", o.OrderID)
	case !o.Direction.Valid():
		return fmt.Errorf("order %s: invalid direction %q", o.OrderID, o.Direction)
	case o.LotSize <= 0:
		return fmt.Errorf("order %s: lot size must be positive", o.OrderID)
	case o.EntryPrice <= 0 || o.SLPrice <= 0:
		return fmt.Errorf("order %s: entry and stop loss prices are required", o.OrderID)
	case o.SLDistance() == 0:
		return fmt.Errorf("order %s: stop loss equals entry", o.OrderID)
	}
	return nil
}

func (o ChainOrder) String() string {
	return fmt.Sprintf("[%s] %s %s %s | L%d | lot: %.2f | entry: %g | sl: %g | tp: %g | id: %s",
		o.Outcome, o.Kind, o.Direction, o.Symbol, o.Level, o.LotSize, o.EntryPrice, o.SLPrice, o.TPPrice, o.OrderID)
}

// TradeClosed is the broker event reporting that an order left the market
type TradeClosed struct {
	Order    ChainOrder  `json:"order"`
	Outcome  OutcomeType `json:"outcome"`
	Price    float64     `json:"price"`
	Profit   float64     `json:"profit"`
	ClosedAt time.Time   `json:"closed_at"`
}

// OrderRequest carries the parameters of a new broker order
type OrderRequest struct {
	Symbol    string
	Direction DirectionType
	Lot       float64
	SL        float64
	TP        float64
	Comment   string
}
