package usecase

import (
	"github.com/shopspring/decimal"

	"github.com/vitos/quicky/internal/domain"
)

// RoundPassive moves price onto the tick grid on the passive side of the book:
// the highest tick strictly below price for a buy, the lowest tick strictly
// above it for a sell. An on-grid price moves one full tick.
func RoundPassive(price, tick decimal.Decimal, side domain.Side) (decimal.Decimal, error) {
	if !tick.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: tick, Reason: "tick size must be positive"}
	}
	if !price.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: price, Reason: "market price must be positive"}
	}

	// price = q*tick + r, 0 <= r < tick
	q, r := price.QuoRem(tick, 0)

	var limit decimal.Decimal
	switch side {
	case domain.SideBuy:
		if r.IsZero() {
			q = q.Sub(decimal.NewFromInt(1))
		}
		limit = q.Mul(tick)
	case domain.SideSell:
		limit = q.Add(decimal.NewFromInt(1)).Mul(tick)
	default:
		return decimal.Zero, &domain.InvalidPriceError{Price: price, Reason: "unknown side " + string(side)}
	}

	if !limit.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: limit, Reason: "rounded limit price is not positive"}
	}
	return limit, nil
}

// floorToTick and ceilToTick assume positive inputs.
func floorToTick(v, tick decimal.Decimal) decimal.Decimal {
	q, _ := v.QuoRem(tick, 0)
	return q.Mul(tick)
}

func ceilToTick(v, tick decimal.Decimal) decimal.Decimal {
	q, r := v.QuoRem(tick, 0)
	if !r.IsZero() {
		q = q.Add(decimal.NewFromInt(1))
	}
	return q.Mul(tick)
}
