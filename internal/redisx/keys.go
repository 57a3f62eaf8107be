package redisx

import "time"

const (
	// Cart per customer: cart:{customer_id} -> hash product_id => qty
	KeyCart = "cart:%s"

	// Cache status order: order_status:{order_id} -> {"status": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Lifetime counters kept by the analytics plugin.
	KeyOrdersCreated   = "analytics:orders:created"
	KeyOrdersCancelled = "analytics:orders:cancelled"
)

var (
	TTLCart        = 7 * 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
