package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/idempotency"
	"github.com/imrishuroy/bitebuddy-orders/internal/notify"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
)

// CreatePaymentIntent starts a charge for the order's stored total and saves
// the intent id as the order's transaction id.
func (m *Manager) CreatePaymentIntent(ctx context.Context, orderID string) (*payment.Intent, error) {
	o, err := m.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == orders.StatusCancelled || !CanTransitionPayment(o.PaymentStatus, orders.PaymentCompleted) {
		return nil, &InvalidTransitionError{
			OrderID: o.OrderID,
			Axis:    AxisPayment,
			From:    string(o.PaymentStatus),
			To:      string(orders.PaymentCompleted),
			Current: o.Status,
		}
	}

	intent, err := m.gateway.CreateIntent(ctx, payment.IntentRequest{
		Amount:      o.TotalAmount,
		Currency:    m.currency,
		CustomerRef: o.CustomerEmail,
		Metadata: map[string]string{
			payment.MetadataOrderID: o.OrderID,
			"description":           "Food Order",
		},
	})
	if err != nil {
		return nil, err
	}

	_, _, err = m.mutate(ctx, orderID, func(cur *orders.Order) (bool, error) {
		if cur.TransactionID == intent.ID || !CanTransitionPayment(cur.PaymentStatus, orders.PaymentCompleted) {
			return false, nil
		}
		cur.TransactionID = intent.ID
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("attach intent %s: %w", intent.ID, err)
	}
	m.log.WithFields(logrus.Fields{"order_id": orderID, "intent_id": intent.ID}).Info("payment intent created")
	return intent, nil
}

// VerifyResult pairs the processor's view of an intent with the order after
// the result was applied.
type VerifyResult struct {
	Verification *payment.Verification
	Order        *orders.Order
}

// VerifyPayment asks the processor for the intent's state and applies it.
func (m *Manager) VerifyPayment(ctx context.Context, orderID, intentID string) (*VerifyResult, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, &ValidationError{Field: "paymentIntentId", Reason: "payment intent id is required"}
	}
	v, err := m.gateway.VerifyIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if ref := v.Metadata[payment.MetadataOrderID]; ref != "" && ref != orderID {
		return nil, &ValidationError{Field: "paymentIntentId", Reason: "payment intent belongs to a different order"}
	}

	var o *orders.Order
	switch v.Status {
	case payment.IntentSucceeded:
		o, err = m.RecordPayment(ctx, orderID, v.IntentID, orders.PaymentCompleted)
	case payment.IntentPaymentFailed:
		o, _, err = m.MarkPaymentFailed(ctx, orderID, v.IntentID)
	default:
		o, err = m.GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Verification: v, Order: o}, nil
}

// RefundInput describes a refund. A nil Amount refunds the full charge. A
// non-empty TransactionID must match the order's stored one.
type RefundInput struct {
	TransactionID string
	Amount        *float64
	Reason        string
}

// RefundResult is the processor's refund plus the updated order.
type RefundResult struct {
	Refund *payment.Refund
	Order  *orders.Order
}

// Refund refunds a paid order against its own transaction. Each order gets
// at most one refund: a claim on the idempotency table is taken before the
// processor is called, and the processor request carries a matching
// idempotency key so a retried claim cannot refund twice. Once the processor
// confirms, the refund is recorded regardless of concurrent status changes.
func (m *Manager) Refund(ctx context.Context, orderID string, in RefundInput) (*RefundResult, error) {
	if in.Amount != nil && *in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	o, err := m.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == orders.StatusDelivered {
		return nil, &TerminalDeliveredError{OrderID: o.OrderID}
	}
	if !CanTransitionPayment(o.PaymentStatus, orders.PaymentRefunded) {
		return nil, refundRefused(o, o.PaymentStatus)
	}
	if in.TransactionID != "" && in.TransactionID != o.TransactionID {
		return nil, &ValidationError{Field: "transactionId", Reason: "transaction does not belong to this order"}
	}
	tx := o.TransactionID
	if tx == "" {
		return nil, &ValidationError{Field: "transactionId", Reason: "order has no transaction to refund"}
	}
	reason := in.Reason
	if strings.TrimSpace(reason) == "" {
		reason = defaultRefundReason
	}

	key := idempotency.RefundKey(orderID)
	if err := m.claimRefund(ctx, key, o); err != nil {
		return nil, err
	}
	log := m.log.WithFields(logrus.Fields{"order_id": orderID, "transaction_id": tx})

	refund, err := m.gateway.RefundIntent(ctx, payment.RefundRequest{
		IntentID:       tx,
		Amount:         in.Amount,
		IdempotencyKey: "refund-" + orderID,
	})
	if err != nil {
		if merr := m.keys.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.WithError(merr).Warn("failed to release refund claim")
		}
		return nil, err
	}
	log = log.WithField("refund_id", refund.ID)
	if err := m.keys.MarkDone(ctx, key, refund.ID, 0); err != nil {
		log.WithError(err).Warn("failed to mark refund claim done")
	}

	_, after, err := m.mutate(ctx, orderID, func(o *orders.Order) (bool, error) {
		if o.PaymentStatus == orders.PaymentRefunded {
			return false, nil
		}
		if !CanTransitionPayment(o.PaymentStatus, orders.PaymentRefunded) {
			return false, refundRefused(o, o.PaymentStatus)
		}
		o.PaymentStatus = orders.PaymentRefunded
		o.StatusHistory = append(o.StatusHistory, orders.StatusEntry{
			Status:    orders.StatusCancelled,
			Kind:      orders.EntryKindRefund,
			Message:   "Refund processed: " + reason,
			Timestamp: m.now(),
		})
		return true, nil
	})
	if err != nil {
		log.WithError(err).Error("refund issued by processor but not recorded on order")
		return nil, fmt.Errorf("record refund %s: %w", refund.ID, err)
	}

	log.WithField("amount", refund.Amount).Info("refund processed")
	m.metrics.Count(ctx, "Refund", map[string]string{"Status": refund.Status})
	return &RefundResult{Refund: refund, Order: after}, nil
}

// claimRefund takes the order's refund claim. A FAILED claim is taken over;
// a DONE claim means the processor already refunded; an in-flight claim is a
// concurrent refund.
func (m *Manager) claimRefund(ctx context.Context, key string, o *orders.Order) error {
	created, err := m.keys.CreateIfNotExists(ctx, key, o.OrderID, "refund")
	if err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	if created {
		return nil
	}
	rec, err := m.keys.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load refund claim: %w", err)
	}
	if rec == nil {
		return ErrConcurrentUpdate
	}
	switch rec.Status {
	case idempotency.StatusDone:
		return refundRefused(o, orders.PaymentRefunded)
	case idempotency.StatusFailed:
		ok, err := m.keys.Reclaim(ctx, key)
		if err != nil {
			return fmt.Errorf("reclaim refund: %w", err)
		}
		if ok {
			return nil
		}
	}
	return ErrConcurrentUpdate
}

func refundRefused(o *orders.Order, from orders.PaymentStatus) error {
	return &InvalidTransitionError{
		OrderID: o.OrderID,
		Axis:    AxisPayment,
		From:    string(from),
		To:      string(orders.PaymentRefunded),
		Current: o.Status,
	}
}

// historyScan is how many recent intents the processor is asked for per
// history lookup. Stripe caps a page at 100.
const historyScan = 100

// PaymentHistory lists the processor's recent intents receipted to email.
func (m *Manager) PaymentHistory(ctx context.Context, email string) ([]payment.IntentSummary, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "email is required"}
	}
	return m.gateway.ListIntents(ctx, email, historyScan)
}

// ResolveOrderID maps a processor event to an order, preferring the order
// reference in the intent's metadata over the transaction id index. An empty
// result means the event is not ours.
func (m *Manager) ResolveOrderID(ctx context.Context, orderRef, transactionID string) (string, error) {
	if orderRef != "" {
		o, err := m.store.Get(ctx, orderRef)
		if err != nil {
			return "", fmt.Errorf("load order: %w", err)
		}
		if o != nil {
			return o.OrderID, nil
		}
	}
	if transactionID == "" {
		return "", nil
	}
	o, err := m.store.FindByTransactionID(ctx, transactionID)
	if err != nil {
		return "", fmt.Errorf("find order by transaction: %w", err)
	}
	if o == nil {
		return "", nil
	}
	return o.OrderID, nil
}

// AnnounceRefund sends the refund email for a processor-confirmed refund.
func (m *Manager) AnnounceRefund(ctx context.Context, orderID string, amount float64) error {
	o, err := m.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	m.notifier.Dispatch(notify.Notification{
		Recipient: o.CustomerEmail,
		Kind:      notify.KindRefundProcessed,
		Order:     *o,
		Message:   o.LastEntry().Message,
		Amount:    amount,
	})
	return nil
}
