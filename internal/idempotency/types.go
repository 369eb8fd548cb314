package idempotency

import "time"

// Status values for idempotency entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// Key namespaces sharing the idempotency table.
const (
	checkoutPrefix = "checkout#"
	eventPrefix    = "event#"
	refundPrefix   = "refund#"
)

// CheckoutKey namespaces a client supplied Idempotency-Key header.
func CheckoutKey(headerValue string) string { return checkoutPrefix + headerValue }

// RefundKey guards the single refund an order may receive.
func RefundKey(orderID string) string { return refundPrefix + orderID }

// EventKey namespaces a payment processor event id.
func EventKey(eventID string) string { return eventPrefix + eventID }

// IdempotencyRecord is the shape persisted in the idempotency DynamoDB table.
type IdempotencyRecord struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id,omitempty"`
	EventType      string    `dynamodbav:"event_type,omitempty"`
	ResponseBody   string    `dynamodbav:"response_body,omitempty"`   // small responses only
	ResponseStatus int       `dynamodbav:"response_status,omitempty"` // e.g., 201
	CreatedAt      time.Time `dynamodbav:"created_at"`
	UpdatedAt      time.Time `dynamodbav:"updated_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note           string    `dynamodbav:"note,omitempty"`
}
