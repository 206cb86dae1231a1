package redisx

import "time"

const (
	// Dedup of processed events: dedup:{consumer}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Idempotency for order intake: idem:order:create:{external_id} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Cache of order status: order_status:{order_id}
	KeyOrderStatus = "order_status:%s"

	// Reserved products of a saga: saga:reserved:{saga_id} (set of product ids)
	KeySagaReserved = "saga:reserved:%s"

	// Once-guard for the request-payment step: saga:payreq:{saga_id}
	KeySagaPayReq = "saga:payreq:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLSaga        = 48 * time.Hour
)
