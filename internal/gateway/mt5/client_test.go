package mt5

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sigrelay/internal/config"
	"sigrelay/internal/gateway"
	"sigrelay/internal/model"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	c, err := NewClient(config.MT5Config{APIURL: server.URL, APIToken: "secret-token"})
	require.NoError(t, err)
	c.SetHTTPClient(server.Client())
	return c
}

func TestPositionsDecodesBareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		io.WriteString(w, `[{"id":"12345","symbol":"XAUUSD","direction":"buy","volume":0.1,"openPrice":2000.5}]`)
	})

	positions, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "12345", positions[0].ID)
	assert.Equal(t, model.DirectionBuy, positions[0].Direction)
	assert.InDelta(t, 0.1, positions[0].Volume, 1e-9)
}

func TestPositionsDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ok","data":[{"id":"77","symbol":"EURUSD","direction":"sell","volume":0.2}]}`)
	})

	positions, err := c.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "77", positions[0].ID)
	assert.Equal(t, model.DirectionSell, positions[0].Direction)
}

func TestBasicAuthWhenNoToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "trader", user)
		assert.Equal(t, "hunter2", pass)
		io.WriteString(w, `[]`)
	}))
	defer server.Close()
	c, err := NewClient(config.MT5Config{APIURL: server.URL, Username: "trader", Password: "hunter2"})
	require.NoError(t, err)
	c.SetHTTPClient(server.Client())

	_, err = c.Quotes(context.Background())
	require.NoError(t, err)
}

func TestPlaceOrderPostsPayload(t *testing.T) {
	stop := 1990.0
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/order", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success":true,"message":"filled","orderId":"98765"}`)
	})

	res, err := c.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol:    "XAUUSD",
		Direction: model.DirectionBuy,
		Volume:    0.05,
		Stop:      &stop,
		Comment:   "signal abc123",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "98765", res.OrderID)

	assert.Equal(t, "XAUUSD", got["symbol"])
	assert.Equal(t, "buy", got["direction"])
	assert.InDelta(t, 0.05, got["volume"].(float64), 1e-9)
	assert.InDelta(t, 1990.0, got["stop"].(float64), 1e-9)
	_, hasTarget := got["target"]
	assert.False(t, hasTarget)
}

func TestModifyPositionSendsOnlySetLevels(t *testing.T) {
	target := 2050.0
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/positions/42/modify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		io.WriteString(w, `{"success":true}`)
	})

	res, err := c.ModifyPosition(context.Background(), "42", nil, &target)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.InDelta(t, 2050.0, got["target"].(float64), 1e-9)
	_, hasStop := got["stop"]
	assert.False(t, hasStop)
}

func TestBridgeErrorSurfacesBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, "terminal not connected")
	})

	_, err := c.Positions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal not connected")
}

func TestTradeHistoryPassesLookbackDays(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/history", r.URL.Path)
		assert.Equal(t, "7", r.URL.Query().Get("days"))
		io.WriteString(w, `{"trades":[{"id":"t1","symbol":"XAUUSD","profit":12.5}]}`)
	})

	trades, err := c.TradeHistory(context.Background(), 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, 12.5, trades[0].Profit, 1e-9)
}
