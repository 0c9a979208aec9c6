package usecase_test

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/vitos/quicky/internal/domain"
)

type priceReply struct {
	price decimal.Decimal
	err   error
}

type orderReply struct {
	result *domain.OrderResult
	err    error
}

// MockExchange replays scripted replies. The last price reply repeats once
// the script runs out; unscripted orders are accepted.
type MockExchange struct {
	PriceReplies []priceReply
	PriceCalls   int

	OrderReplies []orderReply
	Orders       []*domain.OrderRequest
}

func (m *MockExchange) GetCurrentPrice(ctx context.Context, category, symbol string) (decimal.Decimal, error) {
	i := m.PriceCalls
	m.PriceCalls++
	if len(m.PriceReplies) == 0 {
		return decimal.Zero, fmt.Errorf("no price scripted")
	}
	if i >= len(m.PriceReplies) {
		i = len(m.PriceReplies) - 1
	}
	r := m.PriceReplies[i]
	return r.price, r.err
}

func (m *MockExchange) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.OrderResult, error) {
	i := len(m.Orders)
	m.Orders = append(m.Orders, req)
	if i < len(m.OrderReplies) {
		return m.OrderReplies[i].result, m.OrderReplies[i].err
	}
	return &domain.OrderResult{OrderID: fmt.Sprintf("order-%d", i+1), LinkID: req.LinkID, Kind: req.Kind}, nil
}

func sequentialLinkIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("link-%d", n)
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
