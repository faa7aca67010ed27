package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
)

type producer interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Publisher emits order events as v1 envelopes, one producer per topic.
type Publisher struct {
	Placed       producer // order.placed
	Compensation producer // order.stock.compensation_failed
	Service      string
}

func (p *Publisher) envelope(eventType, correlationID, traceID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      p.Service,
		TraceID:       traceID,
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

func headers(eventType string) []kafkago.Header {
	return []kafkago.Header{
		{Key: "x-event-type", Value: []byte(eventType)},
		{Key: "x-event-version", Value: []byte("1")},
	}
}

func (p *Publisher) OrderPlaced(_ context.Context, o Order, traceID string) {
	ev := p.envelope(EventOrderPlaced, o.BookingTrxID, traceID, OrderPlacedPayload{
		BookingTrxID:     o.BookingTrxID,
		ExternalID:       o.ExternalID,
		ProductID:        o.ProductID,
		Quantity:         o.Quantity,
		PromoCode:        o.PromoCode,
		SubTotalAmount:   o.SubTotalAmount,
		GrandTotalAmount: o.GrandTotalAmount,
		IsPaid:           o.IsPaid,
	})
	p.Placed.Publish(PartitionKey(o.BookingTrxID), kafkax.MustMarshal(ev), headers(EventOrderPlaced)...)
}

// CompensationFailed is keyed by product so incidents of one product stay ordered.
func (p *Publisher) CompensationFailed(_ context.Context, payload StockCompensationFailedPayload, traceID string) {
	ev := p.envelope(EventStockCompensationFailed, payload.BookingTrxID, traceID, payload)
	p.Compensation.Publish(PartitionKey(payload.ProductID), kafkax.MustMarshal(ev), headers(EventStockCompensationFailed)...)
}
