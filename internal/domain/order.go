package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Opposite returns the side that closes a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// SideFromQuantity derives the order side from the sign of a signed quantity.
func SideFromQuantity(qty int64) (Side, error) {
	switch {
	case qty > 0:
		return SideBuy, nil
	case qty < 0:
		return SideSell, nil
	}
	return "", &InvalidQuantityError{Qty: qty}
}

// OrderKind tells an entry order apart from its protective stop.
type OrderKind string

const (
	OrderKindEntry    OrderKind = "entry"
	OrderKindStopLoss OrderKind = "stop_loss"
)

// TriggerDirection follows Bybit v5: 1 fires when the price rises to the
// trigger, 2 when it falls to it.
type TriggerDirection int

const (
	TriggerRise TriggerDirection = 1
	TriggerFall TriggerDirection = 2
)

// OrderRequest is an order ready to be sent to the exchange.
// Qty is the absolute contract count; Side carries the direction.
type OrderRequest struct {
	Category         string
	Symbol           string
	Side             Side
	Kind             OrderKind
	Qty              int64
	Price            decimal.Decimal
	TriggerPrice     decimal.Decimal
	TriggerDirection TriggerDirection
	ReduceOnly       bool
	LinkID           string
}

// OrderResult is the exchange acknowledgement of an accepted order.
type OrderResult struct {
	OrderID string
	LinkID  string
	Kind    OrderKind
}

// Order is an order as reported back by the exchange.
type Order struct {
	ID           string
	LinkID       string
	Symbol       string
	Side         Side
	Type         string
	Status       string
	Price        decimal.Decimal
	TriggerPrice decimal.Decimal
	Qty          decimal.Decimal
	CreatedAt    time.Time
}

// SignedRequest is the authentication envelope attached to a private call.
type SignedRequest struct {
	APIKey     string
	Timestamp  int64
	RecvWindow int64
	Payload    string
	Signature  string
}
