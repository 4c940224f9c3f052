package mt5

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/raykavin/zepix/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBridge(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/price/EURUSD", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(priceResponse{Symbol: "EURUSD", Bid: 1.1035, Ask: 1.1036, Time: 1700000000})
	})

	mux.HandleFunc("/price/GBPUSD", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		var payload orderPayload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if payload.Lot > 10 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(errorResponse{Code: 10014, Message: "invalid volume"})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(orderResponse{OrderID: "9001"})
	})

	mux.HandleFunc("/orders/9001", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestClient_Price(t *testing.T) {
	client := NewClient(Config{Endpoint: newBridge(t).URL, Token: "secret"})

	quote, err := client.Price(context.Background(), "EURUSD")
	require.NoError(t, err)
	require.Equal(t, 1.1035, quote.Bid)
	require.Equal(t, 1.1036, quote.Ask)

	_, err = client.Price(context.Background(), "GBPUSD")
	require.Error(t, err)
	require.True(t, core.IsTemporary(err))
}

func TestClient_PlaceAndClose(t *testing.T) {
	client := NewClient(Config{Endpoint: newBridge(t).URL, Token: "secret"})

	id, err := client.PlaceOrder(context.Background(), core.OrderRequest{
		Symbol: "EURUSD", Direction: core.DirectionBuy, Lot: 0.1, SL: 1.1015, TP: 1.1150,
	})
	require.NoError(t, err)
	require.Equal(t, "9001", id)

	require.NoError(t, client.CloseOrder(context.Background(), id))
}

func TestClient_Rejection(t *testing.T) {
	client := NewClient(Config{Endpoint: newBridge(t).URL, Token: "secret"})

	_, err := client.PlaceOrder(context.Background(), core.OrderRequest{
		Symbol: "EURUSD", Direction: core.DirectionBuy, Lot: 50,
	})
	require.ErrorIs(t, err, ErrRejected)
	require.False(t, core.IsTemporary(err))
	require.Contains(t, err.Error(), "invalid volume")

	var execErr *core.ExecutionError
	require.ErrorAs(t, err, &execErr)
	require.Equal(t, "place_order", execErr.Op)
}
