// Package broker provides execution clients and the retry policy wrapped around them.
package broker

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
)

// Retry decorates an execution client with a bounded retry for transient failures.
// Broker rejections are returned on the first attempt so a refused order is never re-sent.
type Retry struct {
	client   core.ExecutionClient
	log      logger.Logger
	attempts int
	min      time.Duration
	max      time.Duration
}

// NewRetry wraps client. attempts is the total number of calls, including the first one.
func NewRetry(client core.ExecutionClient, log logger.Logger, attempts int, min, max time.Duration) *Retry {
	if attempts < 1 {
		attempts = 1
	}

	return &Retry{
		client:   client,
		log:      log,
		attempts: attempts,
		min:      min,
		max:      max,
	}
}

// Price implements core.PriceFeed
func (r *Retry) Price(ctx context.Context, symbol string) (quote core.Quote, err error) {
	err = r.do(ctx, "price", symbol, func() error {
		quote, err = r.client.Price(ctx, symbol)
		return err
	})
	return quote, err
}

// PlaceOrder implements core.ExecutionClient
func (r *Retry) PlaceOrder(ctx context.Context, request core.OrderRequest) (orderID string, err error) {
	err = r.do(ctx, "place_order", request.Symbol, func() error {
		orderID, err = r.client.PlaceOrder(ctx, request)
		return err
	})
	return orderID, err
}

// CloseOrder implements core.ExecutionClient
func (r *Retry) CloseOrder(ctx context.Context, orderID string) error {
	return r.do(ctx, "close_order", orderID, func() error {
		return r.client.CloseOrder(ctx, orderID)
	})
}

func (r *Retry) do(ctx context.Context, op, target string, call func() error) error {
	retry := &backoff.Backoff{
		Min:    r.min,
		Max:    r.max,
		Factor: 2,
		Jitter: true,
	}

	for attempt := 1; ; attempt++ {
		err := call()
		if err == nil {
			return nil
		}

		if !core.IsTemporary(err) || attempt >= r.attempts {
			return err
		}

		wait := retry.Duration()
		r.log.WithError(err).WithFields(map[string]any{
			"op":      op,
			"target":  target,
			"attempt": attempt,
			"wait":    wait,
		}).Warn("broker: transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
