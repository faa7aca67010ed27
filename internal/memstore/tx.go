package memstore

import (
	"context"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// heldRow is a product row locked by one unit of work. stock is the value
// the unit of work sees; it reaches the row only on commit.
type heldRow struct {
	r     *productRow
	stock int
	dirty bool
}

type tx struct {
	s      *Store
	rows   map[string]*heldRow
	order  []string // lock order, unlocked in reverse
	staged []orders.Order
	held   []string // keys added to s.pending
}

// InTx commits when fn returns nil and the context is still live. Anything
// else, a panic included, rolls back.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx orders.Tx) error) error {
	t := &tx{s: s, rows: map[string]*heldRow{}}
	committed := false
	defer func() {
		if !committed {
			t.rollback()
		}
	}()

	if err := fn(ctx, t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.commit()
	committed = true
	return nil
}

// hold takes the product's writer lock for the rest of the unit of work,
// like the row lock Postgres takes on UPDATE. Readers are not blocked.
func (t *tx) hold(productID string) (*heldRow, error) {
	if h, ok := t.rows[productID]; ok {
		return h, nil
	}
	r, ok := t.s.row(productID)
	if !ok {
		return nil, orders.ErrProductNotFound
	}
	r.writer.Lock()
	r.mu.Lock()
	h := &heldRow{r: r, stock: r.p.Stock}
	r.mu.Unlock()
	t.rows[productID] = h
	t.order = append(t.order, productID)
	return h, nil
}

func (t *tx) DecrementStock(_ context.Context, productID string, qty int) (int, error) {
	h, err := t.hold(productID)
	if err != nil {
		return 0, err
	}
	if h.stock < qty {
		return 0, &orders.InsufficientStockError{ProductID: productID, Required: qty, Available: h.stock}
	}
	h.stock -= qty
	h.dirty = true
	return h.stock, nil
}

func (t *tx) IncrementStock(_ context.Context, productID string, qty int) (int, error) {
	h, err := t.hold(productID)
	if err != nil {
		return 0, err
	}
	h.stock += qty
	h.dirty = true
	return h.stock, nil
}

func bookingKey(id string) string  { return "b:" + id }
func externalKey(id string) string { return "e:" + id }

func (t *tx) InsertOrder(_ context.Context, o *orders.Order) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.BookingTrxID]; ok {
		return orders.ErrDuplicateBookingID
	}
	if _, ok := s.pending[bookingKey(o.BookingTrxID)]; ok {
		return orders.ErrDuplicateBookingID
	}
	if o.ExternalID != "" {
		if _, ok := s.byExternal[o.ExternalID]; ok {
			return orders.ErrDuplicateRequest
		}
		if _, ok := s.pending[externalKey(o.ExternalID)]; ok {
			return orders.ErrDuplicateRequest
		}
		s.pending[externalKey(o.ExternalID)] = struct{}{}
		t.held = append(t.held, externalKey(o.ExternalID))
	}
	s.pending[bookingKey(o.BookingTrxID)] = struct{}{}
	t.held = append(t.held, bookingKey(o.BookingTrxID))

	now := s.now()
	o.CreatedAt, o.UpdatedAt = now, now
	t.staged = append(t.staged, *o)
	return nil
}

func (t *tx) release() {
	for _, k := range t.held {
		delete(t.s.pending, k)
	}
}

func (t *tx) unlockRows() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.rows[t.order[i]].r.writer.Unlock()
	}
}

// commit publishes stock and orders under the store lock so readers see
// both or neither.
func (t *tx) commit() {
	s := t.s
	s.mu.Lock()
	now := s.now()
	for _, id := range t.order {
		h := t.rows[id]
		if !h.dirty {
			continue
		}
		h.r.mu.Lock()
		h.r.p.Stock = h.stock
		h.r.p.UpdatedAt = now
		h.r.mu.Unlock()
	}
	t.release()
	for _, o := range t.staged {
		s.orders[o.BookingTrxID] = o
		if o.ExternalID != "" {
			s.byExternal[o.ExternalID] = o.BookingTrxID
		}
	}
	s.mu.Unlock()
	t.unlockRows()
}

// rollback drops staged work and frees held ids and rows.
func (t *tx) rollback() {
	t.s.mu.Lock()
	t.release()
	t.s.mu.Unlock()
	t.unlockRows()
}
