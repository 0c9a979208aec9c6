package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceFeed returns the last traded price of a symbol.
type PriceFeed interface {
	GetCurrentPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error)
}

// OrderGateway submits a single order. Implementations must not retry.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req *OrderRequest) (*OrderResult, error)
}

// Exchange is the full surface of an exchange adapter.
type Exchange interface {
	PriceFeed
	OrderGateway
	GetOrderByLinkID(ctx context.Context, category, symbol, linkID string) (*Order, error)
}
