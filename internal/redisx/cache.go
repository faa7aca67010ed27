package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// OrderCache is a read-through shortcut; the store stays the source of truth,
// so every method is best effort for callers.
type OrderCache struct{ R *redis.Client }

func (c *OrderCache) Get(ctx context.Context, bookingID string) (orders.Order, bool, error) {
	b, err := c.R.Get(ctx, fmt.Sprintf(KeyOrder, bookingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	var o orders.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (c *OrderCache) Put(ctx context.Context, o orders.Order) error {
	b, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, fmt.Sprintf(KeyOrder, o.BookingTrxID), b, TTLOrderCache).Err()
}

func (c *OrderCache) Invalidate(ctx context.Context, bookingID string) error {
	return c.R.Del(ctx, fmt.Sprintf(KeyOrder, bookingID)).Err()
}

func (c *OrderCache) RememberPlacement(ctx context.Context, externalID, bookingID string) error {
	return c.R.Set(ctx, fmt.Sprintf(KeyIdemOrderPlace, externalID), bookingID, TTLIdempotency).Err()
}

// PlacedBookingID returns the booking id a previous request with this
// external id produced, if Redis still remembers it.
func (c *OrderCache) PlacedBookingID(ctx context.Context, externalID string) (string, bool, error) {
	id, err := c.R.Get(ctx, fmt.Sprintf(KeyIdemOrderPlace, externalID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// Deduper marks handled event ids.
type Deduper struct {
	R       *redis.Client
	Service string
}

func (d *Deduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.R.Exists(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Mark is set after the event was handled, never before.
func (d *Deduper) Mark(ctx context.Context, eventID string) error {
	return d.R.Set(ctx, fmt.Sprintf(KeyDedup, d.Service, eventID), "1", TTLDedup).Err()
}
