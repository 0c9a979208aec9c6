package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitos/quicky/internal/domain"
)

const testNowMs = int64(1700000000000)

var testCreds = domain.Credentials{Mode: domain.Testnet, APIKey: "test-key", APISecret: "test-secret"}

func newTestServer(t *testing.T, router *mux.Router) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAdapter(srvURL string, opts ...Option) *BybitAdapter {
	env := domain.Environment{Mode: domain.Testnet, Credentials: testCreds, RESTEndpoint: srvURL}
	base := []Option{
		WithClock(func() time.Time { return time.UnixMilli(testNowMs) }),
		WithRateLimit(0),
	}
	return NewBybitAdapter(env, append(base, opts...)...)
}

func entryRequest() *domain.OrderRequest {
	return &domain.OrderRequest{
		Category: domain.CategoryInverse,
		Symbol:   "XRPUSD",
		Side:     domain.SideBuy,
		Kind:     domain.OrderKindEntry,
		Qty:      100,
		Price:    decimal.RequireFromString("0.6542"),
		LinkID:   "link-1",
	}
}

func stopLossRequest() *domain.OrderRequest {
	return &domain.OrderRequest{
		Category:         domain.CategoryInverse,
		Symbol:           "XRPUSD",
		Side:             domain.SideSell,
		Kind:             domain.OrderKindStopLoss,
		Qty:              100,
		TriggerPrice:     decimal.RequireFromString("0.6528"),
		TriggerDirection: domain.TriggerFall,
		ReduceOnly:       true,
		LinkID:           "link-2",
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestSignKnownVector(t *testing.T) {
	query := url.Values{}
	query.Set("symbol", "XRPUSD")
	query.Set("orderLinkId", "abc")
	query.Set("category", "inverse")

	payload := CanonicalQuery(query)
	assert.Equal(t, "category=inverse&orderLinkId=abc&symbol=XRPUSD", payload)

	sr := Sign(testCreds, 5000, testNowMs, payload)
	assert.Equal(t, "c911ed309e53341e5044e64429efe8a9c8c73803f2fc988f285d1ef0df38c26e", sr.Signature)
	assert.Equal(t, "test-key", sr.APIKey)
	assert.Equal(t, int64(5000), sr.RecvWindow)
	assert.Equal(t, testNowMs, sr.Timestamp)

	empty := Sign(domain.Credentials{}, 0, 0, "")
	assert.Equal(t, "a483313256f16049590cf1fffad7866938189c9851dc74c02a7f127532755d9d", empty.Signature)
}

func TestPlaceOrder_EntryIsSignedPostOnlyLimit(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		assert.Equal(t,
			`{"category":"inverse","symbol":"XRPUSD","side":"Buy","orderType":"Limit","qty":"100","price":"0.6542","timeInForce":"PostOnly","orderLinkId":"link-1"}`,
			string(body))
		assert.Equal(t, "test-key", r.Header.Get("X-BAPI-API-KEY"))
		assert.Equal(t, "1700000000000", r.Header.Get("X-BAPI-TIMESTAMP"))
		assert.Equal(t, "5000", r.Header.Get("X-BAPI-RECV-WINDOW"))
		assert.Equal(t, "770b47b08452e4c02501e121abbc9b9c200d3c51560af1c01a9b1c88cc0e3bdb", r.Header.Get("X-BAPI-SIGN"))

		writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"orderId":"1321003749386327552","orderLinkId":"link-1"},"time":1700000000001}`)
	}).Methods(http.MethodPost)
	srv := newTestServer(t, router)

	res, err := newTestAdapter(srv.URL).PlaceOrder(context.Background(), entryRequest())
	require.NoError(t, err)
	assert.Equal(t, "1321003749386327552", res.OrderID)
	assert.Equal(t, "link-1", res.LinkID)
	assert.Equal(t, domain.OrderKindEntry, res.Kind)
}

func TestPlaceOrder_StopLossIsConditionalReduceOnly(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		assert.Equal(t, "Sell", body["side"])
		assert.Equal(t, "Market", body["orderType"])
		assert.Equal(t, "0.6528", body["triggerPrice"])
		assert.Equal(t, float64(2), body["triggerDirection"])
		assert.Equal(t, "LastPrice", body["triggerBy"])
		assert.Equal(t, true, body["reduceOnly"])
		assert.Equal(t, true, body["closeOnTrigger"])
		assert.Equal(t, "link-2", body["orderLinkId"])
		assert.NotContains(t, body, "price")
		assert.NotContains(t, body, "timeInForce")
		assert.NotEmpty(t, r.Header.Get("X-BAPI-SIGN"))

		writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"orderId":"sl-1","orderLinkId":"link-2"}}`)
	}).Methods(http.MethodPost)
	srv := newTestServer(t, router)

	res, err := newTestAdapter(srv.URL).PlaceOrder(context.Background(), stopLossRequest())
	require.NoError(t, err)
	assert.Equal(t, "sl-1", res.OrderID)
}

func TestPlaceOrder_ResponseClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		rejected  bool
		ambiguous bool
		retCode   int
	}{
		{"Business rejection", http.StatusOK, `{"retCode":110007,"retMsg":"ab not enough for new order","result":{}}`, true, false, 110007},
		{"Post only would cross", http.StatusOK, `{"retCode":140024,"retMsg":"post only","result":{}}`, true, false, 140024},
		{"Server timeout retCode", http.StatusOK, `{"retCode":10000,"retMsg":"Server Timeout","result":{}}`, false, true, 0},
		{"Internal error retCode", http.StatusOK, `{"retCode":10016,"retMsg":"Internal error","result":{}}`, false, true, 0},
		{"HTTP 502", http.StatusBadGateway, `<html>bad gateway</html>`, false, true, 0},
		{"Undecodable 200", http.StatusOK, `not json`, false, true, 0},
		{"Accepted without order id", http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{}}`, false, true, 0},
		{"HTTP 403 plain text", http.StatusForbidden, `forbidden`, true, false, 0},
		{"HTTP 401 with retCode", http.StatusUnauthorized, `{"retCode":10003,"retMsg":"API key is invalid."}`, true, false, 10003},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := mux.NewRouter()
			router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			srv := newTestServer(t, router)

			res, err := newTestAdapter(srv.URL).PlaceOrder(context.Background(), entryRequest())
			require.Error(t, err)
			assert.Nil(t, res)
			assert.False(t, domain.IsRetryable(err), "order submission must never be retryable")

			var rejected *domain.ExchangeRejectedError
			var ambiguous *domain.AmbiguousOrderStateError
			if tt.ambiguous {
				require.True(t, errors.As(err, &ambiguous), "got %v", err)
				assert.Equal(t, "link-1", ambiguous.LinkID)
				assert.Equal(t, domain.OrderKindEntry, ambiguous.Kind)
			}
			if tt.rejected {
				require.True(t, errors.As(err, &rejected), "got %v", err)
				assert.Equal(t, tt.retCode, rejected.RetCode)
				assert.False(t, errors.As(err, &ambiguous))
			}
		})
	}
}

func TestPlaceOrder_TimeoutIsAmbiguous(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := newTestServer(t, router)

	_, err := newTestAdapter(srv.URL, WithTimeout(50*time.Millisecond)).PlaceOrder(context.Background(), stopLossRequest())
	var ambiguous *domain.AmbiguousOrderStateError
	require.True(t, errors.As(err, &ambiguous), "got %v", err)
	assert.Equal(t, domain.OrderKindStopLoss, ambiguous.Kind)
	assert.Equal(t, "link-2", ambiguous.LinkID)
}

func TestPlaceOrder_ConnectionRefusedIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srvURL := srv.URL
	srv.Close()

	_, err := newTestAdapter(srvURL).PlaceOrder(context.Background(), entryRequest())
	var netErr *domain.NetworkError
	require.True(t, errors.As(err, &netErr), "got %v", err)

	var ambiguous *domain.AmbiguousOrderStateError
	assert.False(t, errors.As(err, &ambiguous))
}

func TestPlaceOrder_InvalidRequestNotSent(t *testing.T) {
	calls := 0
	router := mux.NewRouter()
	router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) { calls++ })
	srv := newTestServer(t, router)
	adapter := newTestAdapter(srv.URL)

	req := entryRequest()
	req.Qty = 0
	_, err := adapter.PlaceOrder(context.Background(), req)
	var qtyErr *domain.InvalidQuantityError
	assert.True(t, errors.As(err, &qtyErr))

	req = entryRequest()
	req.Price = decimal.Zero
	_, err = adapter.PlaceOrder(context.Background(), req)
	var priceErr *domain.InvalidPriceError
	assert.True(t, errors.As(err, &priceErr))

	assert.Zero(t, calls)
}

func TestGetCurrentPrice(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/v5/market/tickers", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "inverse", r.URL.Query().Get("category"))
		assert.Empty(t, r.Header.Get("X-BAPI-SIGN"), "public endpoint must not be signed")

		switch r.URL.Query().Get("symbol") {
		case "XRPUSD":
			writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"category":"inverse","list":[{"symbol":"XRPUSD","lastPrice":"0.6543"}]}}`)
		case "FOOBAR":
			writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"category":"inverse","list":[]}}`)
		case "BADSYM":
			writeJSON(w, http.StatusOK, `{"retCode":10001,"retMsg":"Not supported symbols","result":{}}`)
		case "BROKEN":
			writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"list":[{"symbol":"BROKEN","lastPrice":""}]}}`)
		default:
			writeJSON(w, http.StatusServiceUnavailable, `upstream unavailable`)
		}
	}).Methods(http.MethodGet)
	srv := newTestServer(t, router)
	adapter := newTestAdapter(srv.URL)
	ctx := context.Background()

	price, err := adapter.GetCurrentPrice(ctx, domain.CategoryInverse, "XRPUSD")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.RequireFromString("0.6543")))

	_, err = adapter.GetCurrentPrice(ctx, domain.CategoryInverse, "FOOBAR")
	var symErr *domain.UnsupportedSymbolError
	assert.True(t, errors.As(err, &symErr))

	_, err = adapter.GetCurrentPrice(ctx, domain.CategoryInverse, "BADSYM")
	var rejected *domain.ExchangeRejectedError
	assert.True(t, errors.As(err, &rejected))
	assert.False(t, domain.IsRetryable(err))

	_, err = adapter.GetCurrentPrice(ctx, domain.CategoryInverse, "BROKEN")
	var priceErr *domain.InvalidPriceError
	assert.True(t, errors.As(err, &priceErr))

	_, err = adapter.GetCurrentPrice(ctx, domain.CategoryInverse, "DOWN")
	assert.True(t, domain.IsRetryable(err), "got %v", err)
}

func TestSyncServerTimeShiftsSignatureTimestamp(t *testing.T) {
	serverNow := time.UnixMilli(testNowMs + 1500)

	router := mux.NewRouter()
	router.HandleFunc("/v5/market/time", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, fmt.Sprintf(`{"retCode":0,"retMsg":"OK","result":{"timeSecond":"%d","timeNano":"%d"}}`,
			serverNow.Unix(), serverNow.UnixNano()))
	})
	router.HandleFunc("/v5/order/create", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1700000001500", r.Header.Get("X-BAPI-TIMESTAMP"))
		writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"orderId":"1","orderLinkId":"link-1"}}`)
	})
	srv := newTestServer(t, router)
	adapter := newTestAdapter(srv.URL)

	offset, err := adapter.SyncServerTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, offset)

	_, err = adapter.PlaceOrder(context.Background(), entryRequest())
	require.NoError(t, err)
}

func TestGetOrderByLinkID(t *testing.T) {
	router := mux.NewRouter()
	router.HandleFunc("/v5/order/realtime", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"list":[]}}`)
	}).Methods(http.MethodGet).Queries("orderLinkId", "missing")
	router.HandleFunc("/v5/order/realtime", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "category=inverse&orderLinkId=abc&symbol=XRPUSD", r.URL.RawQuery)
		assert.Equal(t, "c911ed309e53341e5044e64429efe8a9c8c73803f2fc988f285d1ef0df38c26e", r.Header.Get("X-BAPI-SIGN"))

		writeJSON(w, http.StatusOK, `{"retCode":0,"retMsg":"OK","result":{"list":[{
			"orderId":"1321003749386327552","orderLinkId":"abc","symbol":"XRPUSD","side":"Buy",
			"orderType":"Limit","orderStatus":"New","price":"0.6542","triggerPrice":"0","qty":"100",
			"createdTime":"1700000000123"}]}}`)
	}).Methods(http.MethodGet)
	srv := newTestServer(t, router)
	adapter := newTestAdapter(srv.URL)

	order, err := adapter.GetOrderByLinkID(context.Background(), domain.CategoryInverse, "XRPUSD", "abc")
	require.NoError(t, err)
	assert.Equal(t, "1321003749386327552", order.ID)
	assert.Equal(t, domain.SideBuy, order.Side)
	assert.Equal(t, "New", order.Status)
	assert.True(t, order.Price.Equal(decimal.RequireFromString("0.6542")))
	assert.True(t, order.Qty.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(1700000000123), order.CreatedAt.UnixMilli())

	_, err = adapter.GetOrderByLinkID(context.Background(), domain.CategoryInverse, "XRPUSD", "missing")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
