package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type pgTx struct{ tx pgx.Tx }

// InTx runs fn in a READ COMMITTED transaction. The conditional stock update
// takes the product row lock, so concurrent reservations of one product
// serialize while other products proceed.
func (r *Repo) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *pgTx) DecrementStock(ctx context.Context, productID string, qty int) (int, error) {
	var remaining int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = NOW()
		WHERE id = $1 AND stock >= $2
		RETURNING stock`, productID, qty).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, notFound(err, ErrProductNotFound)
	}

	// Nothing updated: either the product is missing or stock is short.
	var available int
	if err := t.tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&available); err != nil {
		return 0, notFound(err, ErrProductNotFound)
	}
	return 0, &InsufficientStockError{ProductID: productID, Required: qty, Available: available}
}

func (t *pgTx) IncrementStock(ctx context.Context, productID string, qty int) (int, error) {
	var stock int
	err := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING stock`, productID, qty).Scan(&stock)
	if err != nil {
		return 0, notFound(err, ErrProductNotFound)
	}
	return stock, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// InsertOrder runs inside a savepoint so a unique violation does not abort
// the surrounding transaction and the caller can retry with a new booking id.
func (t *pgTx) InsertOrder(ctx context.Context, o *Order) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	err = sp.QueryRow(ctx, `
		INSERT INTO product_transactions(
			booking_trx_id, external_id, name, email, phone, address, city, post_code,
			product_id, product_size, quantity, promo_code_id, promo_code, discount_amount,
			unit_price, sub_total_amount, grand_total_amount, proof, is_paid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		RETURNING created_at, updated_at`,
		o.BookingTrxID, nullIfEmpty(o.ExternalID), o.Buyer.Name, o.Buyer.Email, o.Buyer.Phone,
		o.Buyer.Address, o.Buyer.City, o.Buyer.PostCode, o.ProductID, o.ProductSize, o.Quantity,
		nullIfEmpty(o.PromoCodeID), o.PromoCode, o.DiscountAmount, o.UnitPrice, o.SubTotalAmount,
		o.GrandTotalAmount, o.Proof, o.IsPaid,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		_ = sp.Rollback(ctx)
		if code, constraint := pgCode(err); code == pgUniqueViolation {
			switch constraint {
			case bookingIDConstraint:
				return ErrDuplicateBookingID
			case externalIDConstraint:
				return ErrDuplicateRequest
			}
		}
		return err
	}
	return sp.Commit(ctx)
}
