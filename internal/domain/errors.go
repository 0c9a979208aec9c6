package domain

import (
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned by order lookups that match nothing.
var ErrOrderNotFound = errors.New("order not found")

type UnsupportedSymbolError struct {
	Symbol string
}

func (e *UnsupportedSymbolError) Error() string {
	return fmt.Sprintf("unsupported symbol %q", e.Symbol)
}

type InvalidPriceError struct {
	Price  decimal.Decimal
	Reason string
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("invalid price %s: %s", e.Price, e.Reason)
}

type InvalidPercentError struct {
	Percent float64
}

func (e *InvalidPercentError) Error() string {
	return fmt.Sprintf("invalid stop-loss percent %v: must be in (0, 100)", e.Percent)
}

type InvalidQuantityError struct {
	Qty int64
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity %d: must be non-zero", e.Qty)
}

type MissingCredentialsError struct {
	Mode     NetworkMode
	Variable string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing %s credentials: %s is not set", e.Mode, e.Variable)
}

// NetworkError is a transport failure where no order can have been created.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Retryable() bool { return true }

// ExchangeRejectedError is a definitive rejection by the exchange.
type ExchangeRejectedError struct {
	RetCode    int
	RetMsg     string
	HTTPStatus int
}

func (e *ExchangeRejectedError) Error() string {
	if e.HTTPStatus != 0 && e.RetCode == 0 {
		return fmt.Sprintf("exchange rejected request: http %d: %s", e.HTTPStatus, e.RetMsg)
	}
	return fmt.Sprintf("exchange rejected request: retCode=%d retMsg=%q", e.RetCode, e.RetMsg)
}

// AmbiguousOrderStateError means the order may or may not exist on the exchange.
type AmbiguousOrderStateError struct {
	Kind   OrderKind
	LinkID string
	Err    error
}

func (e *AmbiguousOrderStateError) Error() string {
	return fmt.Sprintf("%s order state unknown (orderLinkId=%s): %v", e.Kind, e.LinkID, e.Err)
}

func (e *AmbiguousOrderStateError) Unwrap() error { return e.Err }

// UnprotectedPositionError means the entry was accepted but no stop-loss is in place.
type UnprotectedPositionError struct {
	EntryOrderID string
	Err          error
}

func (e *UnprotectedPositionError) Error() string {
	return fmt.Sprintf("entry order %s accepted but stop-loss failed: %v", e.EntryOrderID, e.Err)
}

func (e *UnprotectedPositionError) Unwrap() error { return e.Err }

// PipelineError records the pipeline state in which a failure happened.
type PipelineError struct {
	State PipelineState
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// IsRetryable reports whether err may be retried without risk of a duplicate order.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Retryable()
}
