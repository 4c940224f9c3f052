package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/profit"
)

// ErrUnknownOrder is returned when closing an order the paper broker does not hold
var ErrUnknownOrder = errors.New("unknown order")

// CloseHandler receives the closure events produced by the paper broker
type CloseHandler func(event core.TradeClosed)

// Paper is a simulated execution client. Positions close on their stop loss or take profit
// when a quote crosses them, and a closure event is emitted for each.
type Paper struct {
	mu        sync.Mutex
	counter   int64
	clock     core.Clock
	symbols   func(symbol string) core.SymbolInfo
	onClose   CloseHandler
	failNext  error
	quotes    map[string]core.Quote
	positions map[string]core.ChainOrder
}

// PaperOption configures the paper broker
type PaperOption func(*Paper)

// WithPaperClock replaces the wall clock
func WithPaperClock(clock core.Clock) PaperOption {
	return func(p *Paper) {
		p.clock = clock
	}
}

// WithPaperSymbols sets the symbol metadata used to compute profit
func WithPaperSymbols(symbols func(symbol string) core.SymbolInfo) PaperOption {
	return func(p *Paper) {
		p.symbols = symbols
	}
}

// WithCloseHandler registers the receiver of closure events
func WithCloseHandler(handler CloseHandler) PaperOption {
	return func(p *Paper) {
		p.onClose = handler
	}
}

// NewPaper creates an empty paper broker
func NewPaper(options ...PaperOption) *Paper {
	p := &Paper{
		clock:     time.Now,
		symbols:   core.DefaultSymbolInfo,
		quotes:    make(map[string]core.Quote),
		positions: make(map[string]core.ChainOrder),
	}

	for _, option := range options {
		option(p)
	}

	return p
}

// SetCloseHandler registers the receiver of closure events after construction
func (p *Paper) SetCloseHandler(handler CloseHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClose = handler
}

// FailNext makes the next PlaceOrder call fail with err
func (p *Paper) FailNext(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = err
}

// SetQuote updates the price of a symbol and closes every position whose SL or TP was crossed
func (p *Paper) SetQuote(symbol string, bid, ask float64) []core.TradeClosed {
	p.mu.Lock()

	now := p.clock()
	p.quotes[symbol] = core.Quote{Symbol: symbol, Bid: bid, Ask: ask, Time: now}

	var events []core.TradeClosed
	for _, id := range p.sortedIDs() {
		position := p.positions[id]
		if position.Symbol != symbol {
			continue
		}

		exit := p.quotes[symbol].ExitPrice(position.Direction)
		sign := position.Direction.Sign()

		var (
			outcome core.OutcomeType
			price   float64
		)

		switch {
		case position.SLPrice > 0 && sign*(exit-position.SLPrice) <= 0:
			outcome, price = core.OutcomeSL, position.SLPrice
		case position.TPPrice > 0 && sign*(exit-position.TPPrice) >= 0:
			outcome, price = core.OutcomeTP, position.TPPrice
		default:
			continue
		}

		events = append(events, p.close(position, outcome, price, now))
	}

	handler := p.onClose
	p.mu.Unlock()

	if handler != nil {
		for _, event := range events {
			handler(event)
		}
	}

	return events
}

// Price implements core.PriceFeed
func (p *Paper) Price(_ context.Context, symbol string) (core.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	quote, ok := p.quotes[symbol]
	if !ok || !quote.Valid() {
		return core.Quote{}, &core.ExecutionError{Op: "price", Symbol: symbol, Err: core.ErrPriceUnavailable}
	}
	return quote, nil
}

// PlaceOrder implements core.ExecutionClient. Orders fill at market.
func (p *Paper) PlaceOrder(_ context.Context, request core.OrderRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failNext; err != nil {
		p.failNext = nil
		return "", err
	}

	quote, ok := p.quotes[request.Symbol]
	if !ok || !quote.Valid() {
		return "", &core.ExecutionError{Op: "place_order", Symbol: request.Symbol, Err: core.ErrPriceUnavailable}
	}

	if request.Lot <= 0 {
		return "", &core.ExecutionError{Op: "place_order", Symbol: request.Symbol, Err: fmt.Errorf("invalid lot %f", request.Lot)}
	}

	entry := quote.EntryPrice(request.Direction)
	sign := request.Direction.Sign()

	if request.SL > 0 && sign*(entry-request.SL) <= 0 {
		return "", &core.ExecutionError{Op: "place_order", Symbol: request.Symbol,
			Err: fmt.Errorf("invalid stops: sl %g on the wrong side of %g", request.SL, entry)}
	}
	if request.TP > 0 && sign*(request.TP-entry) <= 0 {
		return "", &core.ExecutionError{Op: "place_order", Symbol: request.Symbol,
			Err: fmt.Errorf("invalid stops: tp %g on the wrong side of %g", request.TP, entry)}
	}

	p.counter++
	id := "P" + strconv.FormatInt(p.counter, 10)

	p.positions[id] = core.ChainOrder{
		OrderID:    id,
		Symbol:     request.Symbol,
		Direction:  request.Direction,
		EntryPrice: entry,
		SLPrice:    request.SL,
		TPPrice:    request.TP,
		LotSize:    request.Lot,
		Outcome:    core.OutcomeOpen,
		OpenedAt:   p.clock(),
	}

	return id, nil
}

// CloseOrder implements core.ExecutionClient. The position closes at market.
func (p *Paper) CloseOrder(_ context.Context, orderID string) error {
	p.mu.Lock()

	position, ok := p.positions[orderID]
	if !ok {
		p.mu.Unlock()
		return &core.ExecutionError{Op: "close_order", Symbol: orderID, Err: ErrUnknownOrder}
	}

	exit := p.quotes[position.Symbol].ExitPrice(position.Direction)
	event := p.close(position, core.OutcomeClosedManual, exit, p.clock())
	handler := p.onClose
	p.mu.Unlock()

	if handler != nil {
		handler(event)
	}
	return nil
}

// Position returns an open position by id
func (p *Paper) Position(orderID string) (core.ChainOrder, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	position, ok := p.positions[orderID]
	return position, ok
}

// Positions returns the open positions ordered by id
func (p *Paper) Positions() []core.ChainOrder {
	p.mu.Lock()
	defer p.mu.Unlock()

	positions := make([]core.ChainOrder, 0, len(p.positions))
	for _, id := range p.sortedIDs() {
		positions = append(positions, p.positions[id])
	}
	return positions
}

// close removes a position and builds its closure event. Callers hold p.mu.
func (p *Paper) close(position core.ChainOrder, outcome core.OutcomeType, price float64, now time.Time) core.TradeClosed {
	delete(p.positions, position.OrderID)

	info := p.symbols(position.Symbol)
	move := (price - position.EntryPrice) * position.Direction.Sign()
	pnl := position.LotSize * profit.ToPips(move, info) * info.PipValue

	position.Outcome = outcome
	position.Profit = pnl
	position.ClosedAt = now

	return core.TradeClosed{
		Order:    position,
		Outcome:  outcome,
		Price:    price,
		Profit:   pnl,
		ClosedAt: now,
	}
}

func (p *Paper) sortedIDs() []string {
	ids := make([]string, 0, len(p.positions))
	for id := range p.positions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}
		return ids[i] < ids[j]
	})
	return ids
}
