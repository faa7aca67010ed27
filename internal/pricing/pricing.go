// Package pricing computes order totals. Amounts are int64 in the smallest
// currency unit, so no rounding ever happens.
package pricing

import (
	"errors"
	"math"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrNegativeAmount  = errors.New("amount must not be negative")
	ErrAmountOverflow  = errors.New("amount overflows int64")
)

type Totals struct {
	SubTotal   int64 `json:"sub_total_amount"`
	Discount   int64 `json:"discount_amount"`
	GrandTotal int64 `json:"grand_total_amount"`
}

// ComputeTotals returns price*quantity and that subtotal minus the optional
// discount, floored at zero.
func ComputeTotals(price int64, quantity int, discount *int64) (Totals, error) {
	if quantity <= 0 {
		return Totals{}, ErrInvalidQuantity
	}
	if price < 0 {
		return Totals{}, ErrNegativeAmount
	}
	q := int64(quantity)
	if price > 0 && q > math.MaxInt64/price {
		return Totals{}, ErrAmountOverflow
	}

	t := Totals{SubTotal: price * q}
	t.GrandTotal = t.SubTotal
	if discount == nil {
		return t, nil
	}
	if *discount < 0 {
		return Totals{}, ErrNegativeAmount
	}
	t.Discount = *discount
	t.GrandTotal = max(t.SubTotal-t.Discount, 0)
	return t, nil
}
