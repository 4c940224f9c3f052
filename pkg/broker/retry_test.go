package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/raykavin/zepix/pkg/logger"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	calls int
	errs  []error
}

func (f *flakyClient) next() error {
	f.calls++
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *flakyClient) Price(context.Context, string) (core.Quote, error) {
	if err := f.next(); err != nil {
		return core.Quote{}, err
	}
	return core.Quote{Bid: 1, Ask: 1.1}, nil
}

func (f *flakyClient) PlaceOrder(context.Context, core.OrderRequest) (string, error) {
	if err := f.next(); err != nil {
		return "", err
	}
	return "42", nil
}

func (f *flakyClient) CloseOrder(context.Context, string) error {
	return f.next()
}

func temporary() error {
	return &core.ExecutionError{Op: "test", Err: errors.New("timeout"), Temporary: true}
}

func TestRetry_RecoversFromTransientFailures(t *testing.T) {
	client := &flakyClient{errs: []error{temporary(), temporary()}}
	retry := NewRetry(client, logger.Nop(), 3, time.Millisecond, 2*time.Millisecond)

	id, err := retry.PlaceOrder(context.Background(), core.OrderRequest{Symbol: "EURUSD"})
	require.NoError(t, err)
	require.Equal(t, "42", id)
	require.Equal(t, 3, client.calls)
}

func TestRetry_GivesUpAfterAttempts(t *testing.T) {
	client := &flakyClient{errs: []error{temporary(), temporary(), temporary(), temporary()}}
	retry := NewRetry(client, logger.Nop(), 3, time.Millisecond, 2*time.Millisecond)

	_, err := retry.Price(context.Background(), "EURUSD")
	require.Error(t, err)
	require.True(t, core.IsTemporary(err))
	require.Equal(t, 3, client.calls)
}

func TestRetry_DoesNotRetryRejections(t *testing.T) {
	rejected := &core.ExecutionError{Op: "place_order", Err: errors.New("not enough money")}
	client := &flakyClient{errs: []error{rejected}}
	retry := NewRetry(client, logger.Nop(), 3, time.Millisecond, 2*time.Millisecond)

	_, err := retry.PlaceOrder(context.Background(), core.OrderRequest{})
	require.ErrorIs(t, err, rejected)
	require.Equal(t, 1, client.calls)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	client := &flakyClient{errs: []error{temporary(), temporary()}}
	retry := NewRetry(client, logger.Nop(), 3, time.Hour, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := retry.CloseOrder(ctx, "1")
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, client.calls)
}
