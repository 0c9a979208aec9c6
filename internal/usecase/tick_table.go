package usecase

import (
	"sort"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/vitos/quicky/internal/domain"
)

// DefaultInstruments is the built-in symbol table.
func DefaultInstruments() []domain.Instrument {
	return []domain.Instrument{
		{Symbol: "XRPUSD", Category: domain.CategoryInverse, TickSize: decimal.RequireFromString("0.0001")},
	}
}

type TickTable struct {
	instruments map[string]domain.Instrument
}

// NewTickTable builds a table from the defaults plus extra entries.
// An extra entry for a known symbol replaces the default.
func NewTickTable(extra ...domain.Instrument) (*TickTable, error) {
	t := &TickTable{instruments: make(map[string]domain.Instrument)}
	for _, inst := range append(DefaultInstruments(), extra...) {
		if inst.Symbol == "" {
			return nil, errors.New("instrument without symbol")
		}
		if !inst.TickSize.IsPositive() {
			return nil, errors.Errorf("instrument %s: tick size must be positive, got %s", inst.Symbol, inst.TickSize)
		}
		if inst.Category == "" {
			inst.Category = domain.CategoryInverse
		}
		t.instruments[inst.Symbol] = inst
	}
	return t, nil
}

func (t *TickTable) Instrument(symbol string) (domain.Instrument, error) {
	inst, ok := t.instruments[symbol]
	if !ok {
		return domain.Instrument{}, &domain.UnsupportedSymbolError{Symbol: symbol}
	}
	return inst, nil
}

func (t *TickTable) TickSize(symbol string) (decimal.Decimal, error) {
	inst, err := t.Instrument(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return inst.TickSize, nil
}

// Symbols returns the supported symbols in sorted order.
func (t *TickTable) Symbols() []string {
	out := make([]string, 0, len(t.instruments))
	for s := range t.instruments {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
