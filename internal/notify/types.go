// Package notify turns order transitions into customer emails. Dispatch only
// enqueues; rendering and delivery happen in the worker.
package notify

import "github.com/imrishuroy/bitebuddy-orders/internal/orders"

// Kind selects the email template.
type Kind string

const (
	KindOrderConfirmation Kind = "order_confirmation"
	KindPaymentReceipt    Kind = "payment_receipt"
	KindStatusUpdate      Kind = "status_update"
	KindOrderCancelled    Kind = "order_cancelled"
	KindRefundProcessed   Kind = "refund_processed"
)

// Notification is the queue message consumed by the worker.
type Notification struct {
	Recipient      string        `json:"recipient"`
	Kind           Kind          `json:"kind"`
	Order          orders.Order  `json:"order"`
	PreviousStatus orders.Status `json:"previousStatus,omitempty"`
	Message        string        `json:"message,omitempty"`
	Amount         float64       `json:"amount,omitempty"`
}
