package lifecycle

import (
	"time"

	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
)

var statusEdges = map[orders.Status][]orders.Status{
	orders.StatusPending:   {orders.StatusConfirmed, orders.StatusCancelled},
	orders.StatusConfirmed: {orders.StatusPreparing, orders.StatusCancelled},
	orders.StatusPreparing: {orders.StatusOnTheWay, orders.StatusCancelled},
	orders.StatusOnTheWay:  {orders.StatusDelivered, orders.StatusCancelled},
	orders.StatusDelivered: {}, // terminal
	orders.StatusCancelled: {}, // terminal
}

var paymentEdges = map[orders.PaymentStatus][]orders.PaymentStatus{
	orders.PaymentPending:   {orders.PaymentCompleted, orders.PaymentFailed},
	orders.PaymentFailed:    {orders.PaymentPending, orders.PaymentCompleted},
	orders.PaymentCompleted: {orders.PaymentRefunded},
	orders.PaymentRefunded:  {},
}

// CanTransition reports whether the status graph has an edge from -> to.
func CanTransition(from, to orders.Status) bool {
	for _, s := range statusEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the statuses reachable in one step from from.
func AllowedTransitions(from orders.Status) []orders.Status {
	allowed := statusEdges[from]
	out := make([]orders.Status, len(allowed))
	copy(out, allowed)
	return out
}

// CanTransitionPayment reports whether the payment graph has an edge from -> to.
func CanTransitionPayment(from, to orders.PaymentStatus) bool {
	for _, s := range paymentEdges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// applyTransition is the single path every status change goes through: it
// validates the edge, sets the status, appends exactly one history entry and
// stamps actual delivery.
func applyTransition(o *orders.Order, to orders.Status, message string, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{
			OrderID: o.OrderID,
			Axis:    AxisStatus,
			From:    string(o.Status),
			To:      string(to),
			Current: o.Status,
		}
	}
	o.Status = to
	o.StatusHistory = append(o.StatusHistory, orders.StatusEntry{
		Status:    to,
		Kind:      orders.EntryKindStatus,
		Message:   message,
		Timestamp: now,
	})
	if to == orders.StatusDelivered {
		t := now
		o.ActualDelivery = &t
	}
	return nil
}
