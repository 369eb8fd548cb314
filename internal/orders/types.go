package orders

import (
	"fmt"
	"time"
)

// Status is the fulfillment stage of an order.
type Status string

// Order statuses
const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusOnTheWay  Status = "on_the_way"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// AllStatuses lists statuses in fulfillment order.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusPreparing, StatusOnTheWay, StatusDelivered, StatusCancelled}

// Terminal reports whether no further status transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// ParseStatus validates a raw status value.
func ParseStatus(v string) (Status, error) {
	for _, s := range AllStatuses {
		if string(s) == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", v)
}

// PaymentStatus is the settlement stage of the order's payment.
type PaymentStatus string

// Payment statuses
const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// ParsePaymentStatus validates a raw payment status value.
func ParsePaymentStatus(v string) (PaymentStatus, error) {
	switch p := PaymentStatus(v); p {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return p, nil
	}
	return "", fmt.Errorf("unknown payment status %q", v)
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodUPI    PaymentMethod = "upi"
	MethodWallet PaymentMethod = "wallet"
	MethodCash   PaymentMethod = "cash"
)

// History entry kinds. A refund is recorded with status "cancelled" for
// compatibility with existing clients; Kind tells the two apart.
const (
	EntryKindStatus = "status"
	EntryKindRefund = "refund"
)

// Item is a single line of an order.
type Item struct {
	ItemID    string  `json:"itemId" dynamodbav:"item_id"`
	Name      string  `json:"name" dynamodbav:"name"`
	Quantity  int     `json:"quantity" dynamodbav:"quantity"`
	Size      string  `json:"size,omitempty" dynamodbav:"size,omitempty"`
	UnitPrice float64 `json:"unitPrice" dynamodbav:"unit_price"`
}

// StatusEntry is one element of the append-only status history.
type StatusEntry struct {
	Status    Status    `json:"status" dynamodbav:"status"`
	Kind      string    `json:"kind" dynamodbav:"kind"`
	Message   string    `json:"message" dynamodbav:"message"`
	Timestamp time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// Order represents the item stored in the Orders DynamoDB table.
type Order struct {
	OrderID           string        `json:"orderId" dynamodbav:"order_id"` // PK
	CustomerEmail     string        `json:"customerEmail,omitempty" dynamodbav:"customer_email,omitempty"` // sparse GSI key
	CustomerName      string        `json:"customerName" dynamodbav:"customer_name"`
	CustomerPhone     string        `json:"customerPhone" dynamodbav:"customer_phone"`
	DeliveryAddress   string        `json:"deliveryAddress" dynamodbav:"delivery_address"`
	Items             []Item        `json:"items" dynamodbav:"items"`
	TotalAmount       float64       `json:"totalAmount" dynamodbav:"total_amount"`
	Status            Status        `json:"status" dynamodbav:"status"`
	PaymentStatus     PaymentStatus `json:"paymentStatus" dynamodbav:"payment_status"`
	PaymentMethod     PaymentMethod `json:"paymentMethod" dynamodbav:"payment_method"`
	TransactionID     string        `json:"transactionId,omitempty" dynamodbav:"transaction_id,omitempty"` // sparse GSI key
	Notes             string        `json:"notes,omitempty" dynamodbav:"notes,omitempty"`
	StatusHistory     []StatusEntry `json:"statusHistory" dynamodbav:"status_history"`
	EstimatedDelivery time.Time     `json:"estimatedDelivery" dynamodbav:"estimated_delivery"`
	ActualDelivery    *time.Time    `json:"actualDelivery,omitempty" dynamodbav:"actual_delivery,omitempty"`
	CreatedAt         time.Time     `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt         time.Time     `json:"updatedAt" dynamodbav:"updated_at"`
	Version           int64         `json:"-" dynamodbav:"version"`
}

// Clone returns a copy whose slices and pointers can be mutated independently.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]Item(nil), o.Items...)
	c.StatusHistory = append([]StatusEntry(nil), o.StatusHistory...)
	if o.ActualDelivery != nil {
		t := *o.ActualDelivery
		c.ActualDelivery = &t
	}
	return c
}

// LastEntry returns the most recent history entry.
func (o *Order) LastEntry() StatusEntry {
	if len(o.StatusHistory) == 0 {
		return StatusEntry{}
	}
	return o.StatusHistory[len(o.StatusHistory)-1]
}
