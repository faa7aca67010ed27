// Package checkout places orders: validate, price, reserve stock, assign a
// booking id and persist, all or nothing.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/booking"
	"github.com/ariefcatur/go-storefront-orders/internal/inventory"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/pricing"
)

type Request struct {
	ExternalID  string       `json:"external_id,omitempty"`
	Buyer       orders.Buyer `json:"buyer"`
	ProductID   string       `json:"product_id"`
	ProductSize string       `json:"product_size,omitempty"`
	Quantity    int          `json:"quantity"`
	PromoCode   string       `json:"promo_code,omitempty"`
	Proof       string       `json:"proof,omitempty"`
	IsPaid      bool         `json:"is_paid"`
	TraceID     string       `json:"-"`
}

type Result struct {
	Order orders.Order
	// Idempotent is set when ExternalID matched an order placed earlier.
	Idempotent bool
}

type IDGenerator interface {
	Generate() (string, error)
}

type Events interface {
	OrderPlaced(ctx context.Context, o orders.Order, traceID string)
	CompensationFailed(ctx context.Context, p orders.StockCompensationFailedPayload, traceID string)
}

type noEvents struct{}

func (noEvents) OrderPlaced(context.Context, orders.Order, string) {}

func (noEvents) CompensationFailed(context.Context, orders.StockCompensationFailedPayload, string) {}

// Failure records the stage a placement died in. errors.Is/As see through it.
type Failure struct {
	Stage Stage
	Err   error
}

func (f *Failure) Error() string { return strings.ToLower(string(f.Stage)) + ": " + f.Err.Error() }

func (f *Failure) Unwrap() error { return f.Err }

type Service struct {
	store       orders.Store
	inventory   *inventory.Service
	ids         IDGenerator
	events      Events
	log         *zap.Logger
	maxAttempts int
}

func NewService(store orders.Store, opts ...Option) *Service {
	s := &Service{
		store:       store,
		ids:         booking.New(),
		events:      noEvents{},
		log:         zap.NewNop(),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, o := range opts {
		o(s)
	}
	if s.inventory == nil {
		s.inventory = inventory.NewService(s.log)
	}
	return s
}

type placement struct {
	s         *Service
	req       Request
	stage     Stage
	bookingID string // last id tried
}

func (p *placement) advance(to Stage) {
	if !CanTransition(p.stage, to) {
		p.s.log.DPanic("illegal stage transition", zap.String("from", string(p.stage)), zap.String("to", string(to)))
	}
	p.stage = to
}

func (p *placement) fail(err error) (Result, error) {
	from := p.stage
	p.advance(StageFailed)

	lvl := zap.InfoLevel
	if errors.Is(err, orders.ErrPersistenceFailed) || errors.Is(err, orders.ErrGenerationExhausted) {
		lvl = zap.ErrorLevel
	}
	p.s.log.Log(lvl, "order placement failed",
		zap.String("stage", string(from)),
		zap.String("product_id", p.req.ProductID),
		zap.Int("qty", p.req.Quantity),
		zap.String("trace_id", p.req.TraceID),
		zap.Error(err))
	return Result{}, &Failure{Stage: from, Err: err}
}

// PlaceOrder runs the whole placement. On any error no order exists and no
// stock is consumed.
func (s *Service) PlaceOrder(ctx context.Context, req Request) (Result, error) {
	p := &placement{s: s, req: req, stage: StageValidating}

	if err := validate(req); err != nil {
		return p.fail(err)
	}
	if req.ExternalID != "" {
		o, err := s.store.OrderByExternalID(ctx, req.ExternalID)
		switch {
		case err == nil:
			s.log.Info("order placement replayed",
				zap.String("external_id", req.ExternalID),
				zap.String("booking_trx_id", o.BookingTrxID))
			return Result{Order: o, Idempotent: true}, nil
		case !errors.Is(err, orders.ErrOrderNotFound):
			return p.fail(fmt.Errorf("%w: lookup external id: %w", orders.ErrPersistenceFailed, err))
		}
	}

	p.advance(StagePricing)
	order, err := s.price(ctx, req)
	if err != nil {
		return p.fail(err)
	}

	p.advance(StageReserving)
	err = s.store.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		res, err := s.inventory.Reserve(ctx, tx, order.ProductID, order.Quantity)
		if err != nil {
			return err
		}
		return s.persist(ctx, p, tx, res, &order)
	})
	if err != nil {
		if errors.Is(err, orders.ErrDuplicateRequest) {
			// A concurrent request with the same external id won the race.
			if o, lerr := s.store.OrderByExternalID(ctx, req.ExternalID); lerr == nil {
				return Result{Order: o, Idempotent: true}, nil
			}
		}
		return p.fail(classify(err))
	}

	p.advance(StagePlaced)
	s.events.OrderPlaced(ctx, order, req.TraceID)
	s.log.Info("order placed",
		zap.String("booking_trx_id", order.BookingTrxID),
		zap.String("product_id", order.ProductID),
		zap.Int("qty", order.Quantity),
		zap.Int64("grand_total", order.GrandTotalAmount),
		zap.String("trace_id", req.TraceID))
	return Result{Order: order}, nil
}

func validate(req Request) error {
	var v orders.ValidationError
	required := []struct{ field, value string }{
		{"name", req.Buyer.Name},
		{"email", req.Buyer.Email},
		{"phone", req.Buyer.Phone},
		{"address", req.Buyer.Address},
		{"city", req.Buyer.City},
		{"post_code", req.Buyer.PostCode},
		{"product_id", req.ProductID},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			v.Add(r.field, "is required")
		}
	}
	if req.Quantity <= 0 {
		v.Add("quantity", "must be positive")
	}
	if v.Empty() {
		return nil
	}
	return &v
}

// price resolves product and promotion and freezes the totals into a draft order.
func (s *Service) price(ctx context.Context, req Request) (orders.Order, error) {
	product, err := s.store.ProductByID(ctx, req.ProductID)
	if err != nil {
		return orders.Order{}, err
	}
	if len(product.Sizes) > 0 && !product.HasSize(req.ProductSize) {
		return orders.Order{}, &orders.ValidationError{Fields: map[string]string{
			"product_size": fmt.Sprintf("must be one of %s", strings.Join(product.Sizes, ", ")),
		}}
	}

	var (
		promo    orders.PromoCode
		discount *int64
	)
	if req.PromoCode != "" {
		promo, err = s.store.PromoCodeByCode(ctx, req.PromoCode)
		if err != nil {
			return orders.Order{}, err
		}
		discount = &promo.DiscountAmount
	}

	totals, err := pricing.ComputeTotals(product.Price, req.Quantity, discount)
	if err != nil {
		var v orders.ValidationError
		switch {
		case errors.Is(err, pricing.ErrInvalidQuantity):
			v.Add("quantity", err.Error())
		case errors.Is(err, pricing.ErrAmountOverflow):
			v.Add("quantity", "order total is too large")
		default:
			v.Add("amount", err.Error())
		}
		return orders.Order{}, &v
	}

	return orders.Order{
		ExternalID:       req.ExternalID,
		Buyer:            req.Buyer,
		ProductID:        product.ID,
		ProductSize:      req.ProductSize,
		Quantity:         req.Quantity,
		PromoCodeID:      promo.ID,
		PromoCode:        promo.Code,
		DiscountAmount:   totals.Discount,
		UnitPrice:        product.Price,
		SubTotalAmount:   totals.SubTotal,
		GrandTotalAmount: totals.GrandTotal,
		Proof:            req.Proof,
		IsPaid:           req.IsPaid,
	}, nil
}

// persist assigns a booking id and inserts the order, regenerating on
// collision up to maxAttempts times. Every failure after the reservation
// releases it again.
func (s *Service) persist(ctx context.Context, p *placement, tx orders.Tx, res inventory.Reservation, o *orders.Order) error {
	for attempt := 1; ; attempt++ {
		p.advance(StageIdentifying)
		id, err := s.ids.Generate()
		if err != nil {
			return s.compensate(ctx, p, tx, res, fmt.Errorf("%w: %w", orders.ErrGenerationExhausted, err))
		}
		o.BookingTrxID = id
		p.bookingID = id

		p.advance(StagePersisting)
		err = tx.InsertOrder(ctx, o)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, orders.ErrDuplicateBookingID):
			s.log.Warn("booking id collision",
				zap.String("booking_trx_id", id),
				zap.Int("attempt", attempt))
			if attempt >= s.maxAttempts {
				return s.compensate(ctx, p, tx, res,
					fmt.Errorf("%w after %d attempts", orders.ErrGenerationExhausted, attempt))
			}
		case errors.Is(err, orders.ErrDuplicateRequest):
			return s.compensate(ctx, p, tx, res, err)
		default:
			return s.compensate(ctx, p, tx, res, fmt.Errorf("%w: %w", orders.ErrPersistenceFailed, err))
		}
	}
}

// compensate releases the reservation. If that fails too the stock may be
// gone without an order, so the failure is escalated instead of swallowed.
func (s *Service) compensate(ctx context.Context, p *placement, tx orders.Tx, res inventory.Reservation, cause error) error {
	ctx = context.WithoutCancel(ctx)
	rbErr := s.inventory.Release(ctx, tx, res)
	if rbErr == nil {
		return cause
	}

	ce := &orders.CompensationError{
		ProductID:   res.ProductID,
		Quantity:    res.Quantity,
		Cause:       cause,
		RollbackErr: rbErr,
	}
	s.log.Error("stock compensation failed, manual reconciliation required",
		zap.String("product_id", res.ProductID),
		zap.Int("qty", res.Quantity),
		zap.String("trace_id", p.req.TraceID),
		zap.NamedError("cause", cause),
		zap.NamedError("rollback_error", rbErr))
	s.events.CompensationFailed(ctx, orders.StockCompensationFailedPayload{
		ProductID:    res.ProductID,
		Quantity:     res.Quantity,
		BookingTrxID: p.bookingID,
		Cause:        cause.Error(),
		RollbackErr:  rbErr.Error(),
	}, p.req.TraceID)
	return ce
}

// classify keeps the typed failure kinds and files everything else
// (begin/commit/driver errors) under ErrPersistenceFailed.
func classify(err error) error {
	known := []error{
		orders.ErrValidationFailed,
		orders.ErrProductNotFound,
		orders.ErrInsufficientStock,
		orders.ErrGenerationExhausted,
		orders.ErrPersistenceFailed,
		orders.ErrDuplicateRequest,
		context.Canceled,
		context.DeadlineExceeded,
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", orders.ErrPersistenceFailed, err)
}
