// Package mt5 talks to a MetaTrader 5 terminal through its HTTP bridge.
package mt5

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raykavin/zepix/pkg/core"
)

// ErrRejected is wrapped by execution errors the bridge answers with a 4xx status
var ErrRejected = errors.New("rejected by broker")

// Config holds the bridge connection settings
type Config struct {
	Endpoint string
	Token    string
	Timeout  time.Duration
}

// Client implements core.ExecutionClient against the bridge REST API:
//
//	GET    /price/{symbol}
//	POST   /orders
//	DELETE /orders/{id}
type Client struct {
	http *resty.Client
}

type priceResponse struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"` // unix seconds
}

type orderPayload struct {
	Symbol    string  `json:"symbol"`
	Direction string  `json:"direction"`
	Lot       float64 `json:"lot"`
	SL        float64 `json:"sl"`
	TP        float64 `json:"tp"`
	Comment   string  `json:"comment,omitempty"`
}

type orderResponse struct {
	OrderID string `json:"order_id"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewClient creates a bridge client
func NewClient(config Config) *Client {
	client := resty.New().
		SetBaseURL(config.Endpoint).
		SetHeader("Accept", "application/json")

	if config.Timeout > 0 {
		client.SetTimeout(config.Timeout)
	}
	if config.Token != "" {
		client.SetAuthToken(config.Token)
	}

	return &Client{http: client}
}

// Price implements core.PriceFeed
func (c *Client) Price(ctx context.Context, symbol string) (core.Quote, error) {
	var result priceResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&result).
		SetError(&errorResponse{}).
		Get("/price/{symbol}")
	if err := classify("price", symbol, resp, err); err != nil {
		return core.Quote{}, err
	}

	quote := core.Quote{
		Symbol: symbol,
		Bid:    result.Bid,
		Ask:    result.Ask,
		Time:   time.Unix(result.Time, 0),
	}
	if !quote.Valid() {
		return core.Quote{}, &core.ExecutionError{Op: "price", Symbol: symbol, Err: core.ErrPriceUnavailable}
	}

	return quote, nil
}

// PlaceOrder implements core.ExecutionClient
func (c *Client) PlaceOrder(ctx context.Context, request core.OrderRequest) (string, error) {
	var result orderResponse

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(orderPayload{
			Symbol:    request.Symbol,
			Direction: string(request.Direction),
			Lot:       request.Lot,
			SL:        request.SL,
			TP:        request.TP,
			Comment:   request.Comment,
		}).
		SetResult(&result).
		SetError(&errorResponse{}).
		Post("/orders")
	if err := classify("place_order", request.Symbol, resp, err); err != nil {
		return "", err
	}

	if result.OrderID == "" {
		return "", &core.ExecutionError{Op: "place_order", Symbol: request.Symbol, Err: errors.New("empty order id")}
	}

	return result.OrderID, nil
}

// CloseOrder implements core.ExecutionClient
func (c *Client) CloseOrder(ctx context.Context, orderID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", orderID).
		SetError(&errorResponse{}).
		Delete("/orders/{id}")
	return classify("close_order", orderID, resp, err)
}

// classify maps transport failures and 5xx answers to temporary errors and 4xx answers to rejections
func classify(op, target string, resp *resty.Response, err error) error {
	if err != nil {
		return &core.ExecutionError{Op: op, Symbol: target, Err: err, Temporary: true}
	}

	if !resp.IsError() {
		return nil
	}

	message := resp.Status()
	if body, ok := resp.Error().(*errorResponse); ok && body.Message != "" {
		message = body.Message
	}

	if resp.StatusCode() >= http.StatusInternalServerError || resp.StatusCode() == http.StatusTooManyRequests {
		return &core.ExecutionError{Op: op, Symbol: target, Err: fmt.Errorf("bridge: %s", message), Temporary: true}
	}

	return &core.ExecutionError{Op: op, Symbol: target, Err: fmt.Errorf("%w: %s", ErrRejected, message)}
}
