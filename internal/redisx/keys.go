package redisx

import "time"

const (
	// Idempotency place order: idem:order:place:{external_id} -> booking_trx_id
	KeyIdemOrderPlace = "idem:order:place:%s"

	// Cache order: order:{booking_trx_id} -> JSON order
	KeyOrder = "order:%s"

	// Dedup event processing: dedup:{service}:{event_id}, di-set setelah event sukses diproses
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
