package domain

import "github.com/shopspring/decimal"

const (
	CategoryInverse = "inverse"
	CategoryLinear  = "linear"
)

// Instrument describes a tradable symbol and its price grid.
type Instrument struct {
	Symbol   string
	Category string
	TickSize decimal.Decimal
}
