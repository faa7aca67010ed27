package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
)

// Deduper remembers handled event ids. It is only a shortcut: the incident
// insert is idempotent on event id, so a lost mark costs one extra insert.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// Reconciler turns StockCompensationFailed events into open incidents. It
// never restocks by itself: whether stock was really lost needs a human.
type Reconciler struct {
	Incidents orders.IncidentStore
	Dedup     Deduper
	Log       *zap.Logger
}

// HandleCompensationFailed is installed as the consumer handler.
func (r *Reconciler) HandleCompensationFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		r.Log.Error("drop undecodable message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil // poison message, commit it
	}
	if env.EventType != orders.EventStockCompensationFailed {
		return nil
	}

	seen, err := r.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		r.Log.Warn("dedup unavailable", zap.String("event_id", env.EventID), zap.Error(err))
	}
	if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.StockCompensationFailedPayload](env.Payload)
	if err != nil {
		r.Log.Error("drop undecodable payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	created, err := r.Incidents.RecordIncident(ctx, orders.Incident{
		EventID:   env.EventID,
		ProductID: p.ProductID,
		Quantity:  p.Quantity,
		Reason:    fmt.Sprintf("persist: %s; rollback: %s", p.Cause, p.RollbackErr),
	})
	if err != nil {
		// offset tidak di-commit -> message dikirim ulang
		return fmt.Errorf("record incident %s: %w", env.EventID, err)
	}
	// mark baru di-set setelah incident tersimpan
	if err := r.Dedup.Mark(context.WithoutCancel(ctx), env.EventID); err != nil {
		r.Log.Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
	}
	if created {
		r.Log.Error("stock reconciliation required",
			zap.String("event_id", env.EventID),
			zap.String("product_id", p.ProductID),
			zap.Int("qty", p.Quantity),
			zap.String("trace_id", env.TraceID))
	}
	return nil
}
