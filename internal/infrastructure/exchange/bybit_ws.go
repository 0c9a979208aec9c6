package exchange

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/quicky/internal/domain"
)

const (
	MainnetWSURL = "wss://stream.bybit.com/v5/public"
	TestnetWSURL = "wss://stream-testnet.bybit.com/v5/public"

	defaultWSReadTimeout = 10 * time.Second
)

// BybitWSFeed reads the last price from a single tickers snapshot on the
// public stream. Each call opens and closes its own connection.
type BybitWSFeed struct {
	baseURL     string
	dialer      *websocket.Dialer
	readTimeout time.Duration
	logger      *zap.Logger
}

func NewBybitWSFeed(env domain.Environment, logger *zap.Logger) *BybitWSFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	base := env.WSEndpoint
	if base == "" {
		base = MainnetWSURL
		if env.Mode == domain.Testnet {
			base = TestnetWSURL
		}
	}
	return &BybitWSFeed{
		baseURL:     strings.TrimSuffix(base, "/"),
		dialer:      websocket.DefaultDialer,
		readTimeout: defaultWSReadTimeout,
		logger:      logger,
	}
}

type wsSubscribe struct {
	ReqID string   `json:"req_id,omitempty"`
	Op    string   `json:"op"`
	Args  []string `json:"args"`
}

type wsMessage struct {
	Op      string          `json:"op"`
	Success *bool           `json:"success"`
	RetMsg  string          `json:"ret_msg"`
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
}

func (f *BybitWSFeed) GetCurrentPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error) {
	endpoint := f.baseURL + "/" + category
	conn, _, err := f.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return decimal.Zero, &domain.NetworkError{Op: "ws dial", Err: err}
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(f.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return decimal.Zero, &domain.NetworkError{Op: "ws deadline", Err: err}
	}

	topic := "tickers." + symbol
	if err := conn.WriteJSON(wsSubscribe{ReqID: symbol, Op: "subscribe", Args: []string{topic}}); err != nil {
		return decimal.Zero, &domain.NetworkError{Op: "ws subscribe", Err: err}
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return decimal.Zero, &domain.NetworkError{Op: "ws read", Err: err}
		}

		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			f.logger.Debug("WS unmarshal error", zap.Error(err))
			continue
		}

		if msg.Op == "subscribe" {
			if msg.Success != nil && !*msg.Success {
				return decimal.Zero, &domain.ExchangeRejectedError{RetMsg: msg.RetMsg}
			}
			continue
		}
		if msg.Topic != topic {
			continue
		}

		var ticker struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
		}
		if err := json.Unmarshal(msg.Data, &ticker); err != nil {
			return decimal.Zero, &domain.NetworkError{Op: "ws decode", Err: errors.Wrap(err, "ticker data")}
		}
		// Deltas may leave lastPrice out.
		if ticker.LastPrice == "" {
			continue
		}
		price, err := decimal.NewFromString(ticker.LastPrice)
		if err != nil || !price.IsPositive() {
			return decimal.Zero, &domain.InvalidPriceError{Price: price, Reason: "bad lastPrice " + ticker.LastPrice}
		}
		f.logger.Debug("WS ticker", zap.String("symbol", symbol), zap.Stringer("last_price", price))
		return price, nil
	}
}
