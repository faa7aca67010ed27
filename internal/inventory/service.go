// Package inventory owns every stock mutation on the order path.
package inventory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Stock is the slice of a unit of work the service needs; orders.Tx satisfies it.
type Stock interface {
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
	IncrementStock(ctx context.Context, productID string, qty int) (int, error)
}

type Reservation struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Remaining int    `json:"remaining"`
}

type Service struct {
	Log *zap.Logger
}

func NewService(log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{Log: log}
}

// Reserve checks and decrements stock as one conditional write. A shortfall
// returns *orders.InsufficientStockError and changes nothing.
func (s *Service) Reserve(ctx context.Context, st Stock, productID string, qty int) (Reservation, error) {
	if qty <= 0 {
		return Reservation{}, &orders.ValidationError{Fields: map[string]string{"quantity": "must be positive"}}
	}
	remaining, err := st.DecrementStock(ctx, productID, qty)
	if err != nil {
		return Reservation{}, err
	}
	if remaining < 0 {
		// A store that lets stock go negative is broken; refuse to continue.
		return Reservation{}, fmt.Errorf("product %s stock went negative (%d)", productID, remaining)
	}
	s.Log.Debug("stock reserved",
		zap.String("product_id", productID),
		zap.Int("qty", qty),
		zap.Int("remaining", remaining))
	return Reservation{ProductID: productID, Quantity: qty, Remaining: remaining}, nil
}

// Release is the compensating action for Reserve.
func (s *Service) Release(ctx context.Context, st Stock, r Reservation) error {
	stock, err := st.IncrementStock(ctx, r.ProductID, r.Quantity)
	if err != nil {
		return fmt.Errorf("release %d of product %s: %w", r.Quantity, r.ProductID, err)
	}
	s.Log.Info("stock released",
		zap.String("product_id", r.ProductID),
		zap.Int("qty", r.Quantity),
		zap.Int("stock", stock))
	return nil
}
