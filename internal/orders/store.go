package orders

import (
	"context"
	"time"
)

type Catalog interface {
	ProductByID(ctx context.Context, id string) (Product, error)
	PromoCodeByCode(ctx context.Context, code string) (PromoCode, error)
}

// Tx is the unit of work order placement runs in. Stock changes and the
// order insert become visible together or not at all.
type Tx interface {
	// DecrementStock subtracts qty only if enough stock is left and returns
	// the remaining stock. Fails with ErrProductNotFound or
	// *InsufficientStockError without mutating anything.
	DecrementStock(ctx context.Context, productID string, qty int) (int, error)
	IncrementStock(ctx context.Context, productID string, qty int) (int, error)
	// InsertOrder fails with ErrDuplicateBookingID or ErrDuplicateRequest on
	// a uniqueness collision and leaves the Tx usable.
	InsertOrder(ctx context.Context, o *Order) error
}

type Store interface {
	Catalog
	OrderByExternalID(ctx context.Context, externalID string) (Order, error)
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Trashed string

const (
	WithoutTrashed Trashed = ""
	WithTrashed    Trashed = "with"
	OnlyTrashed    Trashed = "only"
)

type ListFilter struct {
	Paid    *bool
	Trashed Trashed
	Search  string // booking id or buyer name
	Limit   int
	Offset  int
}

const DefaultListLimit = 50

func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = DefaultListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Reader is what the admin layer reads.
type Reader interface {
	GetOrder(ctx context.Context, bookingID string) (Order, error)
	ListOrders(ctx context.Context, f ListFilter) ([]Order, error)
	ListProducts(ctx context.Context) ([]Product, error)
}

// Admin holds the only mutations allowed on a placed order.
type Admin interface {
	SetPaid(ctx context.Context, bookingID string, paid bool) (Order, error)
	SoftDelete(ctx context.Context, bookingID string, at time.Time) error
	Restore(ctx context.Context, bookingID string) error
}

type IncidentStore interface {
	RecordIncident(ctx context.Context, in Incident) (created bool, err error)
	ListIncidents(ctx context.Context, status string) ([]Incident, error)
}
