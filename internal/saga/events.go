package saga

// Event types double as topic names; the .v1 suffix is the payload version.
const (
	EventOrderCreated      = "order.created.v1"
	EventOrderConfirmed    = "order.confirmed.v1"
	EventOrderFailed       = "order.failed.v1"
	EventInventoryReserved = "inventory.reserved.v1"
	EventInventoryReleased = "inventory.released.v1"
	EventOutOfStock        = "inventory.out_of_stock.v1"
	EventInventoryRelease  = "inventory.release.v1" // release command (compensation)
	EventPaymentRequested  = "payment.requested.v1"
	EventPaymentSucceeded  = "payment.succeeded.v1"
	EventPaymentFailed     = "payment.failed.v1"
	EventPaymentRefund     = "payment.refund.v1" // refund command (compensation)
)

// Failure stages reported in order.failed.v1.
const (
	StageInventoryCheck    = "inventory_check"
	StagePaymentProcessing = "payment_processing"
)

// ---- payloads ----

type OrderItem struct {
	ProductID      string `json:"product_id"`
	Qty            int    `json:"qty"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string      `json:"order_id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	TotalCents int64       `json:"total_cents"`
	Currency   string      `json:"currency"`
}

type OrderConfirmedPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type OrderFailedPayload struct {
	OrderID              string `json:"order_id"`
	Reason               string `json:"reason"`
	FailureStage         string `json:"failure_stage"`
	CompensationRequired bool   `json:"compensation_required"`
}

type InventoryReservedPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
}

type InventoryReleasedPayload struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Qty           int    `json:"qty"`
	Reason        string `json:"reason"`
}

type OutOfStockPayload struct {
	OrderID        string `json:"order_id"`
	ProductID      string `json:"product_id"`
	RequestedQty   int    `json:"requested_qty"`
	AvailableStock int    `json:"available_stock"`
}

type InventoryReleasePayload struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id,omitempty"` // empty = whole saga
	Reason        string `json:"reason"`
}

type PaymentRequestedPayload struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type PaymentSucceededPayload struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	AmountCents int64  `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Reason    string `json:"reason"`
	ErrorCode string `json:"error_code"`
}

type PaymentRefundPayload struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}
