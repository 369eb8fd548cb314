package lifecycle

import (
	"errors"
	"fmt"

	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
)

// Sentinels matched with errors.Is by callers that only need the category.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConcurrentUpdate  = errors.New("order modified concurrently")
)

// ValidationError is a user-correctable input problem. Nothing was written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown order id.
type NotFoundError struct {
	OrderID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("order %s not found", e.OrderID) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Transition axes.
const (
	AxisStatus  = "status"
	AxisPayment = "payment"
)

// InvalidTransitionError reports a move outside the transition graph.
// Current is the order's status at the time of the check.
type InvalidTransitionError struct {
	OrderID string
	Axis    string
	From    string
	To      string
	Current orders.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move %s from %s to %s", e.OrderID, e.Axis, e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// AlreadyTerminalError is returned when cancelling a delivered or cancelled order.
type AlreadyTerminalError struct {
	OrderID string
	Status  orders.Status
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("order %s: cannot cancel order with status: %s", e.OrderID, e.Status)
}

func (e *AlreadyTerminalError) Is(target error) bool { return target == ErrInvalidTransition }

// TerminalDeliveredError is returned when refunding a delivered order.
type TerminalDeliveredError struct {
	OrderID string
}

func (e *TerminalDeliveredError) Error() string {
	return fmt.Sprintf("order %s: cannot refund delivered orders", e.OrderID)
}

func (e *TerminalDeliveredError) Is(target error) bool { return target == ErrInvalidTransition }

// CurrentStatus extracts the order status carried by a transition error so
// clients can reconcile.
func CurrentStatus(err error) (orders.Status, bool) {
	var it *InvalidTransitionError
	if errors.As(err, &it) {
		return it.Current, true
	}
	var at *AlreadyTerminalError
	if errors.As(err, &at) {
		return at.Status, true
	}
	var td *TerminalDeliveredError
	if errors.As(err, &td) {
		return orders.StatusDelivered, true
	}
	return "", false
}
