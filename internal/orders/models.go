package orders

import "time"

type Product struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	Stock     int       `json:"stock"`
	Sizes     []string  `json:"sizes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasSize reports whether size is one of the product's declared sizes.
func (p Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

type PromoCode struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	DiscountAmount int64     `json:"discount_amount"`
	CreatedAt      time.Time `json:"created_at"`
}

type Buyer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	City     string `json:"city"`
	PostCode string `json:"post_code"`
}

// Order is the transaction record. Pricing, product and quantity are frozen
// at placement; only IsPaid and DeletedAt move afterwards.
type Order struct {
	BookingTrxID     string     `json:"booking_trx_id"`
	ExternalID       string     `json:"external_id,omitempty"`
	Buyer            Buyer      `json:"buyer"`
	ProductID        string     `json:"product_id"`
	ProductSize      string     `json:"product_size,omitempty"`
	Quantity         int        `json:"quantity"`
	PromoCodeID      string     `json:"promo_code_id,omitempty"`
	PromoCode        string     `json:"promo_code,omitempty"`
	DiscountAmount   int64      `json:"discount_amount"`
	UnitPrice        int64      `json:"unit_price"`
	SubTotalAmount   int64      `json:"sub_total_amount"`
	GrandTotalAmount int64      `json:"grand_total_amount"`
	Proof            string     `json:"proof,omitempty"`
	IsPaid           bool       `json:"is_paid"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`
}

func (o Order) Trashed() bool { return o.DeletedAt != nil }

// Incident is an open compensation failure waiting for manual reconciliation.
type Incident struct {
	EventID   string    `json:"event_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"` // OPEN | RESOLVED
	CreatedAt time.Time `json:"created_at"`
}

const (
	IncidentOpen     = "OPEN"
	IncidentResolved = "RESOLVED"
)
