package core

import (
	"context"
	"time"
)

// Quote is the current bid/ask of a symbol
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Valid reports whether both sides of the quote are usable
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// ExitPrice is the price a position of the given direction closes at
func (q Quote) ExitPrice(direction DirectionType) float64 {
	if direction == DirectionSell {
		return q.Ask
	}
	return q.Bid
}

// EntryPrice is the price a position of the given direction opens at
func (q Quote) EntryPrice(direction DirectionType) float64 {
	if direction == DirectionSell {
		return q.Bid
	}
	return q.Ask
}

// PriceFeed supplies current prices on demand
type PriceFeed interface {
	Price(ctx context.Context, symbol string) (Quote, error)
}

// ExecutionClient is the broker black box used to place and close orders
type ExecutionClient interface {
	PriceFeed
	PlaceOrder(ctx context.Context, request OrderRequest) (orderID string, err error)
	CloseOrder(ctx context.Context, orderID string) error
}

// Notifier is a sink for pre-formatted messages
type Notifier interface {
	Notify(text string)
}

// NotifierWithStart is a notifier that runs its own loop, such as a chat bot
type NotifierWithStart interface {
	Notifier
	Start()
}

// Clock returns the current time, replaced by fixed clocks in tests
type Clock func() time.Time

// Operator is the control surface shared by chat commands and the HTTP API
type Operator interface {
	Status() string
	Pause()
	Resume()
	Chains() []Chain
	Chain(chainID string) (Chain, error)
	Orders(chainID string) []ChainOrder
	Safety() (Counters, SafetySettings)
	StopChain(ctx context.Context, chainID string) error
	Submit(ctx context.Context, event TradeClosed) error
	SetQuote(symbol string, bid, ask float64) error
}
