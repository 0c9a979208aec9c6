package usecase

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/vitos/quicky/internal/domain"
)

const DefaultStopLossPercent = 0.2

func ValidateStopLossPercent(pct float64) error {
	if math.IsNaN(pct) || math.IsInf(pct, 0) || pct <= 0 || pct >= 100 {
		return &domain.InvalidPercentError{Percent: pct}
	}
	return nil
}

// ComputeStopLoss returns the stop trigger pct percent away from entry on the
// losing side, rounded away from entry onto the tick grid.
func ComputeStopLoss(entry decimal.Decimal, side domain.Side, pct float64, tick decimal.Decimal) (decimal.Decimal, error) {
	if err := ValidateStopLossPercent(pct); err != nil {
		return decimal.Zero, err
	}
	if !tick.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: tick, Reason: "tick size must be positive"}
	}
	if !entry.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: entry, Reason: "entry price must be positive"}
	}

	frac := decimal.NewFromFloat(pct).Shift(-2)

	var sl decimal.Decimal
	switch side {
	case domain.SideBuy:
		sl = floorToTick(entry.Mul(decimal.NewFromInt(1).Sub(frac)), tick)
	case domain.SideSell:
		sl = ceilToTick(entry.Mul(decimal.NewFromInt(1).Add(frac)), tick)
	default:
		return decimal.Zero, &domain.InvalidPriceError{Price: entry, Reason: "unknown side " + string(side)}
	}

	if !sl.IsPositive() {
		return decimal.Zero, &domain.InvalidPriceError{Price: sl, Reason: "stop-loss price is not positive"}
	}
	return sl, nil
}
