package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vitos/quicky/internal/domain"
)

const (
	MainnetRESTURL = "https://api.bybit.com"
	TestnetRESTURL = "https://api-testnet.bybit.com"

	DefaultRecvWindow = 5000
	DefaultTimeout    = 10 * time.Second
	DefaultRateLimit  = 10.0
)

// retCodes Bybit uses when the request may still have been processed.
var ambiguousRetCodes = map[int]bool{
	10000: true, // server timeout
	10016: true, // internal server error
}

type BybitAdapter struct {
	creds      domain.Credentials
	baseURL    string
	recvWindow int64
	client     *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
	timeOffset atomic.Int64 // server minus local clock, ms
}

var _ domain.Exchange = (*BybitAdapter)(nil)

type Option func(*BybitAdapter)

func WithHTTPClient(c *http.Client) Option {
	return func(b *BybitAdapter) { b.client = c }
}

func WithTimeout(d time.Duration) Option {
	return func(b *BybitAdapter) { b.client.Timeout = d }
}

func WithRecvWindow(ms int64) Option {
	return func(b *BybitAdapter) { b.recvWindow = ms }
}

// WithRateLimit caps outgoing REST calls per second. Zero or less disables pacing.
func WithRateLimit(perSec float64) Option {
	return func(b *BybitAdapter) {
		if perSec <= 0 {
			b.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		b.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(b *BybitAdapter) { b.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *BybitAdapter) { b.now = now }
}

func NewBybitAdapter(env domain.Environment, opts ...Option) *BybitAdapter {
	b := &BybitAdapter{
		creds:      env.Credentials,
		baseURL:    env.RESTEndpoint,
		recvWindow: DefaultRecvWindow,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		logger:     zap.NewNop(),
		now:        time.Now,
	}
	if b.baseURL == "" {
		b.baseURL = MainnetRESTURL
		if env.Mode == domain.Testnet {
			b.baseURL = TestnetRESTURL
		}
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// --- REST API ---

type apiResponse struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

// preSendError marks failures that happened before any byte left the process.
type preSendError struct{ err error }

func (e *preSendError) Error() string { return e.err.Error() }
func (e *preSendError) Unwrap() error { return e.err }

func (b *BybitAdapter) timestamp() int64 {
	return b.now().UnixMilli() + b.timeOffset.Load()
}

// sendRequest performs one HTTP exchange. Private calls are signed right
// before sending so every attempt carries a fresh timestamp.
func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, query url.Values, body []byte, private bool) (int, []byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return 0, nil, &preSendError{err: errors.Wrap(err, "rate limiter")}
	}

	target := b.baseURL + path
	payload := string(body)
	if len(query) > 0 {
		payload = CanonicalQuery(query)
		target += "?" + payload
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return 0, nil, &preSendError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if private {
		applySignature(req.Header, Sign(b.creds, b.recvWindow, b.timestamp(), payload))
	}

	start := b.now()
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.Debug("Bybit request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	b.logger.Debug("Bybit request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", b.now().Sub(start)))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// isDialError reports whether err happened while connecting, before the
// request could reach the exchange.
func isDialError(err error) bool {
	var pre *preSendError
	if errors.As(err, &pre) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// getJSON runs a read and maps every failure onto the market-data taxonomy.
// Reads are safe to retry, so transport failures become NetworkError.
func (b *BybitAdapter) getJSON(ctx context.Context, op, path string, query url.Values, private bool, out interface{}) error {
	status, body, err := b.sendRequest(ctx, http.MethodGet, path, query, nil, private)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	if status >= http.StatusInternalServerError {
		return &domain.NetworkError{Op: op, Err: errors.Errorf("http status %d", status)}
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		if status >= http.StatusBadRequest {
			return &domain.ExchangeRejectedError{HTTPStatus: status, RetMsg: snippet(body)}
		}
		return &domain.NetworkError{Op: op, Err: errors.Wrap(err, "decode response")}
	}
	if resp.RetCode != 0 {
		return &domain.ExchangeRejectedError{RetCode: resp.RetCode, RetMsg: resp.RetMsg, HTTPStatus: status}
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return &domain.NetworkError{Op: op, Err: errors.Wrap(err, "decode result")}
	}
	return nil
}

func (b *BybitAdapter) GetCurrentPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)

	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		} `json:"list"`
	}
	if err := b.getJSON(ctx, "get ticker", "/v5/market/tickers", query, false, &result); err != nil {
		return decimal.Zero, err
	}
	if len(result.List) == 0 {
		return decimal.Zero, &domain.UnsupportedSymbolError{Symbol: symbol}
	}

	price, err := decimal.NewFromString(result.List[0].LastPrice)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: price, Reason: fmt.Sprintf("bad lastPrice %q", result.List[0].LastPrice)}
	}
	return price, nil
}

// SyncServerTime measures the exchange clock and uses it for later signatures.
func (b *BybitAdapter) SyncServerTime(ctx context.Context) (time.Duration, error) {
	var result struct {
		TimeSecond string `json:"timeSecond"`
		TimeNano   string `json:"timeNano"`
	}
	if err := b.getJSON(ctx, "get server time", "/v5/market/time", nil, false, &result); err != nil {
		return 0, err
	}

	nanos, err := strconv.ParseInt(result.TimeNano, 10, 64)
	if err != nil {
		secs, serr := strconv.ParseInt(result.TimeSecond, 10, 64)
		if serr != nil {
			return 0, errors.Wrapf(err, "parse server time %q", result.TimeNano)
		}
		nanos = secs * int64(time.Second)
	}

	offset := time.Duration(nanos - b.now().UnixNano())
	b.timeOffset.Store(offset.Milliseconds())
	b.logger.Info("Server time synced", zap.Duration("offset", offset))
	return offset, nil
}

type createOrderBody struct {
	Category         string `json:"category"`
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	OrderType        string `json:"orderType"`
	Qty              string `json:"qty"`
	Price            string `json:"price,omitempty"`
	TimeInForce      string `json:"timeInForce,omitempty"`
	TriggerPrice     string `json:"triggerPrice,omitempty"`
	TriggerDirection int    `json:"triggerDirection,omitempty"`
	TriggerBy        string `json:"triggerBy,omitempty"`
	ReduceOnly       bool   `json:"reduceOnly,omitempty"`
	CloseOnTrigger   bool   `json:"closeOnTrigger,omitempty"`
	OrderLinkID      string `json:"orderLinkId,omitempty"`
}

func buildOrderBody(req *domain.OrderRequest) (*createOrderBody, error) {
	if req.Qty <= 0 {
		return nil, &domain.InvalidQuantityError{Qty: req.Qty}
	}
	if !req.Side.Valid() {
		return nil, errors.Errorf("invalid side %q", req.Side)
	}

	body := &createOrderBody{
		Category:    req.Category,
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Qty:         strconv.FormatInt(req.Qty, 10),
		OrderLinkID: req.LinkID,
	}
	switch req.Kind {
	case domain.OrderKindEntry:
		if !req.Price.IsPositive() {
			return nil, &domain.InvalidPriceError{Price: req.Price, Reason: "limit price must be positive"}
		}
		body.OrderType = "Limit"
		body.Price = req.Price.String()
		body.TimeInForce = "PostOnly"
	case domain.OrderKindStopLoss:
		if !req.TriggerPrice.IsPositive() {
			return nil, &domain.InvalidPriceError{Price: req.TriggerPrice, Reason: "trigger price must be positive"}
		}
		body.OrderType = "Market"
		body.TriggerPrice = req.TriggerPrice.String()
		body.TriggerDirection = int(req.TriggerDirection)
		body.TriggerBy = "LastPrice"
		body.ReduceOnly = req.ReduceOnly
		body.CloseOnTrigger = true
	default:
		return nil, errors.Errorf("unknown order kind %q", req.Kind)
	}
	return body, nil
}

// PlaceOrder submits exactly one order and never retries. Failures that leave
// the order's existence unknown come back as *domain.AmbiguousOrderStateError.
func (b *BybitAdapter) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	body, err := buildOrderBody(req)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	ambiguous := func(cause error) error {
		return &domain.AmbiguousOrderStateError{Kind: req.Kind, LinkID: req.LinkID, Err: cause}
	}

	status, respBody, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", nil, raw, true)
	if err != nil {
		if isDialError(err) {
			return nil, &domain.NetworkError{Op: "create order", Err: err}
		}
		return nil, ambiguous(err)
	}
	if status >= http.StatusInternalServerError {
		return nil, ambiguous(errors.Errorf("http status %d", status))
	}

	var resp apiResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		if status >= http.StatusBadRequest {
			return nil, &domain.ExchangeRejectedError{HTTPStatus: status, RetMsg: snippet(respBody)}
		}
		return nil, ambiguous(errors.Wrap(err, "decode response"))
	}

	if resp.RetCode != 0 {
		if ambiguousRetCodes[resp.RetCode] {
			return nil, ambiguous(&domain.ExchangeRejectedError{RetCode: resp.RetCode, RetMsg: resp.RetMsg, HTTPStatus: status})
		}
		b.logger.Warn("Order rejected",
			zap.String("kind", string(req.Kind)),
			zap.Int("ret_code", resp.RetCode),
			zap.String("ret_msg", resp.RetMsg))
		return nil, &domain.ExchangeRejectedError{RetCode: resp.RetCode, RetMsg: resp.RetMsg, HTTPStatus: status}
	}

	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil || result.OrderID == "" {
		return nil, ambiguous(errors.New("accepted without order id"))
	}
	if result.OrderLinkID == "" {
		result.OrderLinkID = req.LinkID
	}
	return &domain.OrderResult{OrderID: result.OrderID, LinkID: result.OrderLinkID, Kind: req.Kind}, nil
}

// GetOrderByLinkID looks up an order by its client id. Read-only.
func (b *BybitAdapter) GetOrderByLinkID(ctx context.Context, category, symbol, linkID string) (*domain.Order, error) {
	query := url.Values{}
	query.Set("category", category)
	query.Set("symbol", symbol)
	query.Set("orderLinkId", linkID)

	var result struct {
		List []struct {
			OrderID      string `json:"orderId"`
			OrderLinkID  string `json:"orderLinkId"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			OrderType    string `json:"orderType"`
			OrderStatus  string `json:"orderStatus"`
			Price        string `json:"price"`
			TriggerPrice string `json:"triggerPrice"`
			Qty          string `json:"qty"`
			CreatedTime  string `json:"createdTime"`
		} `json:"list"`
	}
	if err := b.getJSON(ctx, "get order", "/v5/order/realtime", query, true, &result); err != nil {
		return nil, err
	}
	if len(result.List) == 0 {
		return nil, domain.ErrOrderNotFound
	}

	raw := result.List[0]
	order := &domain.Order{
		ID:     raw.OrderID,
		LinkID: raw.OrderLinkID,
		Symbol: raw.Symbol,
		Side:   domain.Side(raw.Side),
		Type:   raw.OrderType,
		Status: raw.OrderStatus,
	}
	order.Price, _ = decimal.NewFromString(raw.Price)
	order.TriggerPrice, _ = decimal.NewFromString(raw.TriggerPrice)
	order.Qty, _ = decimal.NewFromString(raw.Qty)
	if ms, err := strconv.ParseInt(raw.CreatedTime, 10, 64); err == nil {
		order.CreatedAt = time.UnixMilli(ms)
	}
	return order, nil
}

func snippet(body []byte) string {
	const limit = 200
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
