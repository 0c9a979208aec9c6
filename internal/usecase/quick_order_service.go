package usecase

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vitos/quicky/internal/domain"
)

// RetryPolicy bounds retries of market-data reads. Orders are never retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

type QuickOrderRequest struct {
	Symbol      string
	Qty         int64
	StopLossPct float64
}

// QuickOrderResult is filled in as the pipeline advances and is returned
// even when Place fails, so an accepted entry is never lost.
type QuickOrderResult struct {
	State         domain.PipelineState
	Instrument    domain.Instrument
	Side          domain.Side
	Qty           int64
	MarketPrice   decimal.Decimal
	LimitPrice    decimal.Decimal
	StopLossPrice decimal.Decimal
	Entry         *domain.OrderResult
	StopLoss      *domain.OrderResult
}

type QuickOrderService struct {
	prices    domain.PriceFeed
	orders    domain.OrderGateway
	ticks     *TickTable
	retry     RetryPolicy
	logger    *zap.Logger
	newLinkID func() string
}

type QuickOrderOption func(*QuickOrderService)

func WithRetryPolicy(p RetryPolicy) QuickOrderOption {
	return func(s *QuickOrderService) { s.retry = p }
}

func WithLinkIDGenerator(gen func() string) QuickOrderOption {
	return func(s *QuickOrderService) { s.newLinkID = gen }
}

func NewQuickOrderService(prices domain.PriceFeed, orders domain.OrderGateway, ticks *TickTable, logger *zap.Logger, opts ...QuickOrderOption) *QuickOrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuickOrderService{
		prices:    prices,
		orders:    orders,
		ticks:     ticks,
		retry:     DefaultRetryPolicy(),
		logger:    logger,
		newLinkID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Place runs the whole quick-order pipeline: validate, fetch the last price,
// compute the passive limit and stop prices, submit the entry and then the
// stop-loss. Errors are *domain.PipelineError carrying the failing state.
func (s *QuickOrderService) Place(ctx context.Context, req QuickOrderRequest) (*QuickOrderResult, error) {
	res := &QuickOrderResult{State: domain.StateIdle, Qty: req.Qty}
	log := s.logger.With(zap.String("symbol", req.Symbol), zap.Int64("qty", req.Qty))

	fail := func(err error) (*QuickOrderResult, error) {
		state := res.State
		res.State = domain.StateFailed
		log.Error("Quick order failed", zap.Stringer("state", state), zap.Error(err))
		return res, &domain.PipelineError{State: state, Err: err}
	}

	// Everything that can be checked offline is checked before the first request.
	side, err := domain.SideFromQuantity(req.Qty)
	if err != nil {
		return fail(err)
	}
	res.Side = side

	inst, err := s.ticks.Instrument(req.Symbol)
	if err != nil {
		return fail(err)
	}
	res.Instrument = inst

	if err := ValidateStopLossPercent(req.StopLossPct); err != nil {
		return fail(err)
	}

	s.transition(log, res, domain.StateFetchingPrice)
	market, err := s.fetchPrice(ctx, log, inst)
	if err != nil {
		return fail(err)
	}
	res.MarketPrice = market

	s.transition(log, res, domain.StateComputing)
	limit, err := RoundPassive(market, inst.TickSize, side)
	if err != nil {
		return fail(err)
	}
	res.LimitPrice = limit

	stop, err := ComputeStopLoss(limit, side, req.StopLossPct, inst.TickSize)
	if err != nil {
		return fail(err)
	}
	res.StopLossPrice = stop
	log.Info("Prices computed",
		zap.Stringer("market", market),
		zap.Stringer("limit", limit),
		zap.Stringer("stop_loss", stop))

	s.transition(log, res, domain.StateSubmittingEntry)
	entry, err := s.orders.PlaceOrder(ctx, s.entryOrder(inst, side, req.Qty, limit))
	if err != nil {
		return fail(err)
	}
	res.Entry = entry
	log.Info("Entry order accepted", zap.String("order_id", entry.OrderID), zap.String("link_id", entry.LinkID))

	s.transition(log, res, domain.StateSubmittingStopLoss)
	sl, err := s.orders.PlaceOrder(ctx, s.stopLossOrder(inst, side, req.Qty, stop))
	if err != nil {
		return fail(&domain.UnprotectedPositionError{EntryOrderID: entry.OrderID, Err: err})
	}
	res.StopLoss = sl
	log.Info("Stop-loss order accepted", zap.String("order_id", sl.OrderID), zap.String("link_id", sl.LinkID))

	s.transition(log, res, domain.StateDone)
	return res, nil
}

func (s *QuickOrderService) transition(log *zap.Logger, res *QuickOrderResult, next domain.PipelineState) {
	log.Debug("Pipeline transition", zap.Stringer("from", res.State), zap.Stringer("to", next))
	res.State = next
}

// fetchPrice retries only transport failures of the read.
func (s *QuickOrderService) fetchPrice(ctx context.Context, log *zap.Logger, inst domain.Instrument) (decimal.Decimal, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, s.retry.MaxRetries), ctx)

	var price decimal.Decimal
	op := func() error {
		p, err := s.prices.GetCurrentPrice(ctx, inst.Category, inst.Symbol)
		if err != nil {
			if domain.IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		price = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("Price fetch failed, retrying", zap.Error(err), zap.Duration("wait", wait))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return decimal.Zero, err
	}
	return price, nil
}

func (s *QuickOrderService) entryOrder(inst domain.Instrument, side domain.Side, qty int64, limit decimal.Decimal) *domain.OrderRequest {
	return &domain.OrderRequest{
		Category: inst.Category,
		Symbol:   inst.Symbol,
		Side:     side,
		Kind:     domain.OrderKindEntry,
		Qty:      abs(qty),
		Price:    limit,
		LinkID:   s.newLinkID(),
	}
}

func (s *QuickOrderService) stopLossOrder(inst domain.Instrument, side domain.Side, qty int64, stop decimal.Decimal) *domain.OrderRequest {
	direction := domain.TriggerFall
	if side == domain.SideSell {
		direction = domain.TriggerRise
	}
	return &domain.OrderRequest{
		Category:         inst.Category,
		Symbol:           inst.Symbol,
		Side:             side.Opposite(),
		Kind:             domain.OrderKindStopLoss,
		Qty:              abs(qty),
		TriggerPrice:     stop,
		TriggerDirection: direction,
		ReduceOnly:       true,
		LinkID:           s.newLinkID(),
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
