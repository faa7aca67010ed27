package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation   = "23505"
	pgInvalidTextFormat = "22P02"

	bookingIDConstraint  = "product_transactions_booking_trx_id_key"
	externalIDConstraint = "product_transactions_external_id_key"
)

// Repo is the Postgres-backed Store, Reader, Admin and IncidentStore.
type Repo struct{ DB *pgxpool.Pool }

var (
	_ Store         = (*Repo)(nil)
	_ Reader        = (*Repo)(nil)
	_ Admin         = (*Repo)(nil)
	_ IncidentStore = (*Repo)(nil)
)

func pgCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

// notFound maps "no row" and malformed uuid lookups to sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	if code, _ := pgCode(err); code == pgInvalidTextFormat {
		return sentinel
	}
	return err
}

func (r *Repo) ProductByID(ctx context.Context, id string) (Product, error) {
	var p Product
	err := r.DB.QueryRow(ctx, `SELECT id, sku, name, price, stock, sizes, created_at, updated_at
	                           FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.Sizes, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, notFound(err, ErrProductNotFound)
	}
	return p, nil
}

func (r *Repo) PromoCodeByCode(ctx context.Context, code string) (PromoCode, error) {
	var pc PromoCode
	err := r.DB.QueryRow(ctx, `SELECT id, code, discount_amount, created_at FROM promo_codes WHERE code=$1`, code).
		Scan(&pc.ID, &pc.Code, &pc.DiscountAmount, &pc.CreatedAt)
	if err != nil {
		return PromoCode{}, notFound(err, ErrPromotionNotFound)
	}
	return pc, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, sku, name, price, stock, sizes, created_at, updated_at
	                              FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.Stock, &p.Sizes, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateProduct and CreatePromoCode seed the catalog; restocking and catalog
// edits belong to the admin layer.
func (r *Repo) CreateProduct(ctx context.Context, p Product) (Product, error) {
	if p.Sizes == nil {
		p.Sizes = []string{}
	}
	err := r.DB.QueryRow(ctx, `INSERT INTO products(sku, name, price, stock, sizes)
	                           VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		p.SKU, p.Name, p.Price, p.Stock, p.Sizes).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repo) CreatePromoCode(ctx context.Context, pc PromoCode) (PromoCode, error) {
	err := r.DB.QueryRow(ctx, `INSERT INTO promo_codes(code, discount_amount) VALUES ($1,$2)
	                           RETURNING id, created_at`, pc.Code, pc.DiscountAmount).Scan(&pc.ID, &pc.CreatedAt)
	return pc, err
}

const orderColumns = `booking_trx_id, external_id, name, email, phone, address, city, post_code,
	product_id, product_size, quantity, promo_code_id, promo_code, discount_amount, unit_price,
	sub_total_amount, grand_total_amount, proof, is_paid, created_at, updated_at, deleted_at`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o           Order
		externalID  *string
		promoCodeID *string
	)
	err := row.Scan(&o.BookingTrxID, &externalID, &o.Buyer.Name, &o.Buyer.Email, &o.Buyer.Phone,
		&o.Buyer.Address, &o.Buyer.City, &o.Buyer.PostCode, &o.ProductID, &o.ProductSize, &o.Quantity,
		&promoCodeID, &o.PromoCode, &o.DiscountAmount, &o.UnitPrice, &o.SubTotalAmount,
		&o.GrandTotalAmount, &o.Proof, &o.IsPaid, &o.CreatedAt, &o.UpdatedAt, &o.DeletedAt)
	if err != nil {
		return Order{}, err
	}
	if externalID != nil {
		o.ExternalID = *externalID
	}
	if promoCodeID != nil {
		o.PromoCodeID = *promoCodeID
	}
	return o, nil
}

func (r *Repo) GetOrder(ctx context.Context, bookingID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM product_transactions
	                                         WHERE booking_trx_id=$1`, bookingID))
	if err != nil {
		return Order{}, notFound(err, ErrOrderNotFound)
	}
	return o, nil
}

func (r *Repo) OrderByExternalID(ctx context.Context, externalID string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM product_transactions
	                                         WHERE external_id=$1`, externalID))
	if err != nil {
		return Order{}, notFound(err, ErrOrderNotFound)
	}
	return o, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern turns search text into a literal substring ILIKE pattern,
// same semantics as strings.Contains in memstore.
func containsPattern(q string) string {
	return "%" + likeEscaper.Replace(q) + "%"
}

func (r *Repo) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	switch f.Trashed {
	case OnlyTrashed:
		where = append(where, "deleted_at IS NOT NULL")
	case WithTrashed:
	default:
		where = append(where, "deleted_at IS NULL")
	}
	if f.Paid != nil {
		where = append(where, "is_paid = "+arg(*f.Paid))
	}
	if f.Search != "" {
		p := arg(containsPattern(f.Search))
		where = append(where, "(booking_trx_id ILIKE "+p+" OR name ILIKE "+p+")")
	}

	q := `SELECT ` + orderColumns + ` FROM product_transactions`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := r.DB.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *Repo) SetPaid(ctx context.Context, bookingID string, paid bool) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `UPDATE product_transactions SET is_paid=$2, updated_at=NOW()
	                                         WHERE booking_trx_id=$1 AND deleted_at IS NULL
	                                         RETURNING `+orderColumns, bookingID, paid))
	if err != nil {
		return Order{}, notFound(err, ErrOrderNotFound)
	}
	return o, nil
}

func (r *Repo) SoftDelete(ctx context.Context, bookingID string, at time.Time) error {
	ct, err := r.DB.Exec(ctx, `UPDATE product_transactions SET deleted_at=$2
	                           WHERE booking_trx_id=$1 AND deleted_at IS NULL`, bookingID, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *Repo) Restore(ctx context.Context, bookingID string) error {
	ct, err := r.DB.Exec(ctx, `UPDATE product_transactions SET deleted_at=NULL
	                           WHERE booking_trx_id=$1 AND deleted_at IS NOT NULL`, bookingID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrOrderNotFound
	}
	return nil
}

// RecordIncident is idempotent on event id.
func (r *Repo) RecordIncident(ctx context.Context, in Incident) (bool, error) {
	ct, err := r.DB.Exec(ctx, `INSERT INTO reconciliation_incidents(event_id, product_id, quantity, reason, status)
	                           VALUES ($1,$2,$3,$4,'OPEN') ON CONFLICT (event_id) DO NOTHING`,
		in.EventID, in.ProductID, in.Quantity, in.Reason)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (r *Repo) ListIncidents(ctx context.Context, status string) ([]Incident, error) {
	rows, err := r.DB.Query(ctx, `SELECT event_id, product_id, quantity, reason, status, created_at
	                              FROM reconciliation_incidents WHERE status=$1 ORDER BY created_at`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Incident
	for rows.Next() {
		var in Incident
		if err := rows.Scan(&in.EventID, &in.ProductID, &in.Quantity, &in.Reason, &in.Status, &in.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
