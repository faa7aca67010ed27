package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced             = "OrderPlaced"
	EventStockCompensationFailed = "StockCompensationFailed"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya booking_trx_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderPlacedPayload struct {
	BookingTrxID     string `json:"booking_trx_id"`
	ExternalID       string `json:"external_id,omitempty"`
	ProductID        string `json:"product_id"`
	Quantity         int    `json:"quantity"`
	PromoCode        string `json:"promo_code,omitempty"`
	SubTotalAmount   int64  `json:"sub_total_amount"`
	GrandTotalAmount int64  `json:"grand_total_amount"`
	IsPaid           bool   `json:"is_paid"`
}

type StockCompensationFailedPayload struct {
	ProductID    string `json:"product_id"`
	Quantity     int    `json:"quantity"`
	BookingTrxID string `json:"booking_trx_id,omitempty"`
	Cause        string `json:"cause"`
	RollbackErr  string `json:"rollback_error"`
}
