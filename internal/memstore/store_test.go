package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

func seed(t *testing.T) (*Store, orders.Product) {
	t.Helper()
	s := New()
	p := s.AddProduct(orders.Product{SKU: "TEE-01", Name: "Tee", Price: 75000, Stock: 10})
	return s, p
}

func place(t *testing.T, s *Store, o orders.Order) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		return tx.InsertOrder(ctx, &o)
	})
	require.NoError(t, err)
}

func stockOf(t *testing.T, s *Store, id string) int {
	t.Helper()
	p, err := s.ProductByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestInTx_RollbackRestoresStock(t *testing.T) {
	s, p := seed(t)
	boom := errors.New("boom")

	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		left, err := tx.DecrementStock(ctx, p.ID, 4)
		require.NoError(t, err)
		assert.Equal(t, 6, left)
		require.NoError(t, tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ProductID: p.ID}))
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 10, stockOf(t, s, p.ID))
	_, err = s.GetOrder(context.Background(), "TRX-1")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestInTx_CommitPublishesOrder(t *testing.T) {
	s, p := seed(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.DecrementStock(ctx, p.ID, 2); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext", ProductID: p.ID})
	})
	require.NoError(t, err)

	assert.Equal(t, 8, stockOf(t, s, p.ID))
	o, err := s.OrderByExternalID(context.Background(), "ext")
	require.NoError(t, err)
	assert.Equal(t, "TRX-1", o.BookingTrxID)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestInTx_CancelledContextRollsBack(t *testing.T) {
	s, p := seed(t)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.DecrementStock(ctx, p.ID, 1)
		cancel()
		return err
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 10, stockOf(t, s, p.ID))
}

func TestDecrementStock_Shortfall(t *testing.T) {
	s, p := seed(t)
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		_, err := tx.DecrementStock(ctx, p.ID, 11)
		return err
	})

	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 10, ise.Available)
	assert.Equal(t, 11, ise.Required)
	assert.Equal(t, 10, stockOf(t, s, p.ID))
}

func TestInsertOrder_Duplicates(t *testing.T) {
	s, p := seed(t)
	place(t, s, orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext-1", ProductID: p.ID})

	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		err := tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ProductID: p.ID})
		assert.ErrorIs(t, err, orders.ErrDuplicateBookingID)

		err = tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-2", ExternalID: "ext-1", ProductID: p.ID})
		assert.ErrorIs(t, err, orders.ErrDuplicateRequest)

		// The unit of work stays usable after a collision.
		return tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-3", ProductID: p.ID})
	})
	require.NoError(t, err)

	_, err = s.GetOrder(context.Background(), "TRX-3")
	assert.NoError(t, err)
}

func TestInsertOrder_PendingIDsAreHeld(t *testing.T) {
	s, p := seed(t)

	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		require.NoError(t, tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext", ProductID: p.ID}))

		inner := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
			return tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ProductID: p.ID})
		})
		assert.ErrorIs(t, inner, orders.ErrDuplicateBookingID)

		inner = s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
			return tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-2", ExternalID: "ext", ProductID: p.ID})
		})
		assert.ErrorIs(t, inner, orders.ErrDuplicateRequest)
		return errors.New("abort")
	})
	require.Error(t, err)

	// Rolled back, so the ids are free again.
	place(t, s, orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext", ProductID: p.ID})
}

func TestListOrders_Filters(t *testing.T) {
	s, p := seed(t)
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	place(t, s, orders.Order{BookingTrxID: "TRX-A", Buyer: orders.Buyer{Name: "Andi"}, ProductID: p.ID})
	place(t, s, orders.Order{BookingTrxID: "TRX-B", Buyer: orders.Buyer{Name: "Budi"}, ProductID: p.ID, IsPaid: true})
	place(t, s, orders.Order{BookingTrxID: "TRX-C", Buyer: orders.Buyer{Name: "Citra"}, ProductID: p.ID})
	require.NoError(t, s.SoftDelete(context.Background(), "TRX-C", base))

	ids := func(f orders.ListFilter) []string {
		list, err := s.ListOrders(context.Background(), f)
		require.NoError(t, err)
		out := make([]string, 0, len(list))
		for _, o := range list {
			out = append(out, o.BookingTrxID)
		}
		return out
	}
	paid := true

	assert.Equal(t, []string{"TRX-B", "TRX-A"}, ids(orders.ListFilter{}))
	assert.Equal(t, []string{"TRX-C", "TRX-B", "TRX-A"}, ids(orders.ListFilter{Trashed: orders.WithTrashed}))
	assert.Equal(t, []string{"TRX-C"}, ids(orders.ListFilter{Trashed: orders.OnlyTrashed}))
	assert.Equal(t, []string{"TRX-B"}, ids(orders.ListFilter{Paid: &paid}))
	assert.Equal(t, []string{"TRX-A"}, ids(orders.ListFilter{Search: "andi"}))
	assert.Equal(t, []string{"TRX-A"}, ids(orders.ListFilter{Limit: 1, Offset: 1}))
	assert.Empty(t, ids(orders.ListFilter{Offset: 5}))
}

func TestAdminOperations(t *testing.T) {
	s, p := seed(t)
	ctx := context.Background()
	place(t, s, orders.Order{BookingTrxID: "TRX-1", ProductID: p.ID})

	o, err := s.SetPaid(ctx, "TRX-1", true)
	require.NoError(t, err)
	assert.True(t, o.IsPaid)

	require.NoError(t, s.SoftDelete(ctx, "TRX-1", time.Now()))
	assert.ErrorIs(t, s.SoftDelete(ctx, "TRX-1", time.Now()), orders.ErrOrderNotFound)
	_, err = s.SetPaid(ctx, "TRX-1", false)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)

	require.NoError(t, s.Restore(ctx, "TRX-1"))
	assert.ErrorIs(t, s.Restore(ctx, "TRX-1"), orders.ErrOrderNotFound)
	assert.ErrorIs(t, s.Restore(ctx, "missing"), orders.ErrOrderNotFound)

	got, err := s.GetOrder(ctx, "TRX-1")
	require.NoError(t, err)
	assert.False(t, got.Trashed())
	assert.True(t, got.IsPaid)
}

func TestIncidents(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.RecordIncident(ctx, orders.Incident{EventID: "evt-1", ProductID: "p", Quantity: 2})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.RecordIncident(ctx, orders.Incident{EventID: "evt-1", ProductID: "p", Quantity: 2})
	require.NoError(t, err)
	assert.False(t, created)

	open, err := s.ListIncidents(ctx, orders.IncidentOpen)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "evt-1", open[0].EventID)

	resolved, err := s.ListIncidents(ctx, orders.IncidentResolved)
	require.NoError(t, err)
	assert.Empty(t, resolved)
}

func TestListProducts_SortedBySKU(t *testing.T) {
	s := New()
	s.AddProduct(orders.Product{SKU: "B"})
	s.AddProduct(orders.Product{SKU: "A", Sizes: []string{"S", "M"}})

	list, err := s.ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].SKU)
	assert.True(t, list[0].HasSize("M"))
}

func TestInTx_UncommittedStockIsInvisible(t *testing.T) {
	s := New()
	p := s.AddProduct(orders.Product{SKU: "JKT-01", Price: 10, Stock: 3})
	ctx := context.Background()

	reserved := make(chan struct{})
	finish := make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
			if _, err := tx.DecrementStock(ctx, p.ID, 2); err != nil {
				return err
			}
			close(reserved)
			<-finish
			return errors.New("insert failed")
		})
	}()
	<-reserved

	// Readers see committed stock only.
	assert.Equal(t, 3, stockOf(t, s, p.ID))
	list, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, list[0].Stock)

	// A second reservation of the same product waits for the first to finish.
	secondDone := make(chan error, 1)
	go func() {
		secondDone <- s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
			_, err := tx.DecrementStock(ctx, p.ID, 2)
			return err
		})
	}()
	select {
	case err := <-secondDone:
		t.Fatalf("second reservation finished while the first was open: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(finish)
	require.Error(t, <-firstDone)
	require.NoError(t, <-secondDone)
	assert.Equal(t, 1, stockOf(t, s, p.ID))
}

func TestInTx_DifferentProductsDoNotWait(t *testing.T) {
	s := New()
	a := s.AddProduct(orders.Product{SKU: "A", Stock: 5})
	b := s.AddProduct(orders.Product{SKU: "B", Stock: 5})
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.DecrementStock(ctx, a.ID, 1); err != nil {
			return err
		}
		done := make(chan error, 1)
		go func() {
			done <- s.InTx(ctx, func(ctx context.Context, tx orders.Tx) error {
				_, err := tx.DecrementStock(ctx, b.ID, 1)
				return err
			})
		}()
		select {
		case err := <-done:
			return err
		case <-time.After(time.Second):
			return errors.New("product B blocked behind product A")
		}
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stockOf(t, s, a.ID))
	assert.Equal(t, 4, stockOf(t, s, b.ID))
}

func TestInTx_PanicRollsBack(t *testing.T) {
	s, p := seed(t)

	assert.Panics(t, func() {
		_ = s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
			_, _ = tx.DecrementStock(ctx, p.ID, 4)
			_ = tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext", ProductID: p.ID})
			panic("boom")
		})
	})

	assert.Equal(t, 10, stockOf(t, s, p.ID))
	// Row lock and ids are free again.
	err := s.InTx(context.Background(), func(ctx context.Context, tx orders.Tx) error {
		if _, err := tx.DecrementStock(ctx, p.ID, 1); err != nil {
			return err
		}
		return tx.InsertOrder(ctx, &orders.Order{BookingTrxID: "TRX-1", ExternalID: "ext", ProductID: p.ID})
	})
	require.NoError(t, err)
	assert.Equal(t, 9, stockOf(t, s, p.ID))
}
