package validation

// Item is a single requested order line.
type Item struct {
	ItemID    string  `json:"itemId" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Size      string  `json:"size,omitempty" validate:"max=32"`
	UnitPrice float64 `json:"unitPrice" validate:"gte=0"` // price per unit
}

// CreateOrderRequest is the payload for POST /orders
type CreateOrderRequest struct {
	CustomerEmail   string  `json:"customerEmail" validate:"omitempty,email"`
	CustomerName    string  `json:"customerName" validate:"required,notblank"`
	CustomerPhone   string  `json:"customerPhone" validate:"required,notblank"`
	DeliveryAddress string  `json:"deliveryAddress" validate:"required,notblank"`
	Items           []Item  `json:"items" validate:"required,min=1,dive"`
	TotalAmount     float64 `json:"totalAmount" validate:"gte=0"` // includes tax and delivery
	PaymentMethod   string  `json:"paymentMethod,omitempty" validate:"omitempty,payment_method"`
	Notes           string  `json:"notes,omitempty" validate:"max=500"`
}

// UpdateStatusRequest is the payload for PUT /orders/:orderId/status
type UpdateStatusRequest struct {
	Status        string `json:"status" validate:"required,order_status"`
	TransactionID string `json:"transactionId,omitempty"`
	Message       string `json:"message,omitempty" validate:"max=500"`
}

// MarkPaymentRequest is the payload for PUT /orders/:orderId/payment
type MarkPaymentRequest struct {
	TransactionID string `json:"transactionId,omitempty"`
	PaymentStatus string `json:"paymentStatus" validate:"required,payment_status"`
}

// CancelRequest is the optional payload for PUT /orders/:orderId/cancel
type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// CreateIntentRequest is the payload for POST /payments/intent
type CreateIntentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

// VerifyPaymentRequest is the payload for POST /payments/verify
type VerifyPaymentRequest struct {
	OrderID         string `json:"orderId" validate:"required"`
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
}

// RefundRequest is the payload for POST /payments/refund. A missing amount
// refunds the whole charge.
type RefundRequest struct {
	OrderID       string   `json:"orderId" validate:"required"`
	TransactionID string   `json:"transactionId,omitempty"`
	Amount        *float64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
	Reason        string   `json:"reason,omitempty" validate:"max=500"`
}
