// Package memstore is an in-process orders.Store used by tests and by the
// API when STORE_DRIVER=memory.
//
// Each product has a writer lock that a unit of work holds from its first
// stock change until commit or rollback, so reservations of one product
// serialize and different products never contend. Stock changes stay private
// to the unit of work until commit; readers always see committed stock.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

type productRow struct {
	writer sync.Mutex // held by an open unit of work
	mu     sync.Mutex // guards p
	p      orders.Product
}

type Store struct {
	mu         sync.RWMutex
	products   map[string]*productRow
	promos     map[string]orders.PromoCode // by code
	orders     map[string]orders.Order     // by booking id
	byExternal map[string]string
	pending    map[string]struct{} // booking and external ids held by open units of work
	incidents  map[string]orders.Incident
	now        func() time.Time
}

var (
	_ orders.Store         = (*Store)(nil)
	_ orders.Reader        = (*Store)(nil)
	_ orders.Admin         = (*Store)(nil)
	_ orders.IncidentStore = (*Store)(nil)
)

func New() *Store {
	return &Store{
		products:   map[string]*productRow{},
		promos:     map[string]orders.PromoCode{},
		orders:     map[string]orders.Order{},
		byExternal: map[string]string{},
		pending:    map[string]struct{}{},
		incidents:  map[string]orders.Incident{},
		now:        time.Now,
	}
}

func (s *Store) AddProduct(p orders.Product) orders.Product {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	s.mu.Lock()
	s.products[p.ID] = &productRow{p: p}
	s.mu.Unlock()
	return p
}

func (s *Store) AddPromoCode(pc orders.PromoCode) orders.PromoCode {
	if pc.ID == "" {
		pc.ID = uuid.NewString()
	}
	pc.CreatedAt = s.now()
	s.mu.Lock()
	s.promos[pc.Code] = pc
	s.mu.Unlock()
	return pc
}

func (s *Store) row(id string) (*productRow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.products[id]
	return r, ok
}

func (s *Store) ProductByID(_ context.Context, id string) (orders.Product, error) {
	r, ok := s.row(id)
	if !ok {
		return orders.Product{}, orders.ErrProductNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.p, nil
}

func (s *Store) PromoCodeByCode(_ context.Context, code string) (orders.PromoCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.promos[code]
	if !ok {
		return orders.PromoCode{}, orders.ErrPromotionNotFound
	}
	return pc, nil
}

func (s *Store) ListProducts(_ context.Context) ([]orders.Product, error) {
	s.mu.RLock()
	rows := make([]*productRow, 0, len(s.products))
	for _, r := range s.products {
		rows = append(rows, r)
	}
	s.mu.RUnlock()

	out := make([]orders.Product, 0, len(rows))
	for _, r := range rows {
		r.mu.Lock()
		out = append(out, r.p)
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) GetOrder(_ context.Context, bookingID string) (orders.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[bookingID]
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return o, nil
}

func (s *Store) OrderByExternalID(ctx context.Context, externalID string) (orders.Order, error) {
	s.mu.RLock()
	id, ok := s.byExternal[externalID]
	s.mu.RUnlock()
	if !ok {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	return s.GetOrder(ctx, id)
}

func (s *Store) ListOrders(_ context.Context, f orders.ListFilter) ([]orders.Order, error) {
	f = f.Normalize()
	s.mu.RLock()
	var out []orders.Order
	for _, o := range s.orders {
		switch f.Trashed {
		case orders.OnlyTrashed:
			if !o.Trashed() {
				continue
			}
		case orders.WithTrashed:
		default:
			if o.Trashed() {
				continue
			}
		}
		if f.Paid != nil && o.IsPaid != *f.Paid {
			continue
		}
		if f.Search != "" {
			q := strings.ToLower(f.Search)
			if !strings.Contains(strings.ToLower(o.BookingTrxID), q) && !strings.Contains(strings.ToLower(o.Buyer.Name), q) {
				continue
			}
		}
		out = append(out, o)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].BookingTrxID > out[j].BookingTrxID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) SetPaid(_ context.Context, bookingID string, paid bool) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[bookingID]
	if !ok || o.Trashed() {
		return orders.Order{}, orders.ErrOrderNotFound
	}
	o.IsPaid = paid
	o.UpdatedAt = s.now()
	s.orders[bookingID] = o
	return o, nil
}

func (s *Store) SoftDelete(_ context.Context, bookingID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[bookingID]
	if !ok || o.Trashed() {
		return orders.ErrOrderNotFound
	}
	o.DeletedAt = &at
	s.orders[bookingID] = o
	return nil
}

func (s *Store) Restore(_ context.Context, bookingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[bookingID]
	if !ok || !o.Trashed() {
		return orders.ErrOrderNotFound
	}
	o.DeletedAt = nil
	s.orders[bookingID] = o
	return nil
}

func (s *Store) RecordIncident(_ context.Context, in orders.Incident) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.incidents[in.EventID]; ok {
		return false, nil
	}
	in.Status = orders.IncidentOpen
	in.CreatedAt = s.now()
	s.incidents[in.EventID] = in
	return true, nil
}

func (s *Store) ListIncidents(_ context.Context, status string) ([]orders.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []orders.Incident
	for _, in := range s.incidents {
		if in.Status == status {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
