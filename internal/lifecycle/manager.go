// Package lifecycle owns every mutation of an order: the status graph, the
// payment graph, refunds and the side effects each transition emits.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/idempotency"
	"github.com/imrishuroy/bitebuddy-orders/internal/notify"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
)

// OrderStore is the persistence the manager needs. Replace must fail with
// orders.ErrVersionConflict when the stored version differs from expected.
type OrderStore interface {
	Create(ctx context.Context, order orders.Order) error
	CreateWithIdempotencyTransaction(ctx context.Context, idempotencyItem interface{}, order orders.Order) error
	Get(ctx context.Context, orderID string) (*orders.Order, error)
	ListByEmail(ctx context.Context, email string) ([]orders.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*orders.Order, error)
	Replace(ctx context.Context, order orders.Order, expectedVersion int64) error
}

// Keys is the idempotency table: checkout replays and refund claims.
type Keys interface {
	NewRecord(key, status, orderID string) idempotency.IdempotencyRecord
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	CreateIfNotExists(ctx context.Context, key, orderID, eventType string) (bool, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Notifier enqueues customer emails. It must not block.
type Notifier interface {
	Dispatch(n notify.Notification)
}

// Metrics records counters. Failures are the implementation's problem.
type Metrics interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Deps groups the manager's collaborators. Notifier and Metrics may be nil.
type Deps struct {
	Store    OrderStore
	Keys     Keys
	Gateway  payment.Gateway
	Notifier Notifier
	Metrics  Metrics
	Log      *logrus.Entry
}

// Options tunes the manager. Zero values pick defaults.
type Options struct {
	Currency    string
	DeliveryETA time.Duration
	MaxAttempts int
}

const (
	defaultCurrency     = "inr"
	defaultDeliveryETA  = 45 * time.Minute
	defaultMaxAttempts  = 5
	defaultCancelReason = "User requested cancellation"
	defaultRefundReason = "Customer requested refund"
)

// Manager applies lifecycle operations with optimistic concurrency.
type Manager struct {
	store       OrderStore
	keys        Keys
	gateway     payment.Gateway
	notifier    Notifier
	metrics     Metrics
	log         *logrus.Entry
	now         func() time.Time
	newID       func() string
	currency    string
	eta         time.Duration
	maxAttempts int
}

// NewManager builds a manager from deps and opts.
func NewManager(deps Deps, opts Options) *Manager {
	m := &Manager{
		store:       deps.Store,
		keys:        deps.Keys,
		gateway:     deps.Gateway,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		log:         deps.Log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       func() string { return "ORD-" + strings.ToUpper(uuid.NewString()) },
		currency:    opts.Currency,
		eta:         opts.DeliveryETA,
		maxAttempts: opts.MaxAttempts,
	}
	if m.notifier == nil {
		m.notifier = noopNotifier{}
	}
	if m.metrics == nil {
		m.metrics = noopMetrics{}
	}
	if m.log == nil {
		m.log = logrus.NewEntry(logrus.StandardLogger())
	}
	if m.currency == "" {
		m.currency = defaultCurrency
	}
	if m.eta <= 0 {
		m.eta = defaultDeliveryETA
	}
	if m.maxAttempts <= 0 {
		m.maxAttempts = defaultMaxAttempts
	}
	return m
}

type noopNotifier struct{}

func (noopNotifier) Dispatch(notify.Notification) {}

type noopMetrics struct{}

func (noopMetrics) Count(context.Context, string, map[string]string) {}

// mutation edits a copy of the order. Returning changed=false skips the write.
type mutation func(o *orders.Order) (changed bool, err error)

// mutate runs fn against the latest stored order and commits the result
// conditioned on the version it read, re-reading on conflict. It returns the
// order as read and as committed.
func (m *Manager) mutate(ctx context.Context, orderID string, fn mutation) (before, after *orders.Order, err error) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		current, err := m.store.Get(ctx, orderID)
		if err != nil {
			return nil, nil, fmt.Errorf("load order: %w", err)
		}
		if current == nil {
			return nil, nil, &NotFoundError{OrderID: orderID}
		}

		next := current.Clone()
		changed, err := fn(&next)
		if err != nil {
			return current, nil, err
		}
		if !changed {
			return current, current, nil
		}

		expected := current.Version
		next.Version = expected + 1
		next.UpdatedAt = m.now()
		err = m.store.Replace(ctx, next, expected)
		if errors.Is(err, orders.ErrVersionConflict) {
			m.log.WithFields(logrus.Fields{"order_id": orderID, "attempt": attempt}).Debug("order changed underneath us, retrying")
			continue
		}
		if err != nil {
			return current, nil, fmt.Errorf("save order: %w", err)
		}
		return current, &next, nil
	}
	return nil, nil, ErrConcurrentUpdate
}

// committed reports whether mutate wrote a new version.
func committed(before, after *orders.Order) bool {
	return before != nil && after != nil && after.Version != before.Version
}

// CreateOrderInput is a validated checkout.
type CreateOrderInput struct {
	CustomerEmail   string
	CustomerName    string
	CustomerPhone   string
	DeliveryAddress string
	Items           []orders.Item
	TotalAmount     float64
	PaymentMethod   orders.PaymentMethod
	Notes           string
}

// CreateOrder persists a new pending order. With a non-empty idempotencyKey
// the order and key are written atomically; a repeated key returns the
// original order with replayed=true.
func (m *Manager) CreateOrder(ctx context.Context, in CreateOrderInput, idempotencyKey string) (order *orders.Order, replayed bool, err error) {
	if err := validateCreate(in); err != nil {
		return nil, false, err
	}

	method := in.PaymentMethod
	if method == "" {
		method = orders.MethodCard
	}
	now := m.now()
	o := orders.Order{
		OrderID:           m.newID(),
		CustomerEmail:     strings.TrimSpace(in.CustomerEmail),
		CustomerName:      in.CustomerName,
		CustomerPhone:     in.CustomerPhone,
		DeliveryAddress:   strings.TrimSpace(in.DeliveryAddress),
		Items:             in.Items,
		TotalAmount:       in.TotalAmount,
		Status:            orders.StatusPending,
		PaymentStatus:     orders.PaymentPending,
		PaymentMethod:     method,
		Notes:             in.Notes,
		EstimatedDelivery: now.Add(m.eta),
		StatusHistory: []orders.StatusEntry{{
			Status:    orders.StatusPending,
			Kind:      orders.EntryKindStatus,
			Message:   "Order created and awaiting confirmation",
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	if idempotencyKey == "" {
		if err := m.store.Create(ctx, o); err != nil {
			return nil, false, fmt.Errorf("create order: %w", err)
		}
	} else {
		key := idempotency.CheckoutKey(idempotencyKey)
		rec := m.keys.NewRecord(key, idempotency.StatusDone, o.OrderID)
		err := m.store.CreateWithIdempotencyTransaction(ctx, rec, o)
		if errors.Is(err, orders.ErrDuplicateRequest) {
			original, rerr := m.replayCheckout(ctx, key)
			if rerr != nil {
				return nil, false, rerr
			}
			return original, true, nil
		}
		if errors.Is(err, orders.ErrTransactionConflict) {
			return nil, false, ErrConcurrentUpdate
		}
		if err != nil {
			return nil, false, fmt.Errorf("create order: %w", err)
		}
	}

	m.log.WithFields(logrus.Fields{"order_id": o.OrderID, "total": o.TotalAmount}).Info("order created")
	m.metrics.Count(ctx, "OrderCreated", map[string]string{"PaymentMethod": string(o.PaymentMethod)})
	m.notifier.Dispatch(notify.Notification{
		Recipient: o.CustomerEmail,
		Kind:      notify.KindOrderConfirmation,
		Order:     o,
	})
	return &o, false, nil
}

func (m *Manager) replayCheckout(ctx context.Context, key string) (*orders.Order, error) {
	rec, err := m.keys.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}
	if rec == nil {
		// the winning transaction is not visible yet
		return nil, ErrConcurrentUpdate
	}
	if rec.OrderID == "" {
		return nil, fmt.Errorf("idempotency record %s has no order", key)
	}
	o, err := m.store.Get(ctx, rec.OrderID)
	if err != nil {
		return nil, fmt.Errorf("load replayed order: %w", err)
	}
	if o == nil {
		return nil, &NotFoundError{OrderID: rec.OrderID}
	}
	return o, nil
}

func validateCreate(in CreateOrderInput) error {
	if len(in.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "order must contain at least one item"}
	}
	for i, it := range in.Items {
		if it.Quantity < 1 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be at least 1"}
		}
		if it.UnitPrice < 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].unitPrice", i), Reason: "must not be negative"}
		}
	}
	if strings.TrimSpace(in.DeliveryAddress) == "" {
		return &ValidationError{Field: "deliveryAddress", Reason: "delivery address is required"}
	}
	if in.TotalAmount < 0 {
		return &ValidationError{Field: "totalAmount", Reason: "must not be negative"}
	}
	if in.PaymentMethod != "" {
		switch in.PaymentMethod {
		case orders.MethodCard, orders.MethodUPI, orders.MethodWallet, orders.MethodCash:
		default:
			return &ValidationError{Field: "paymentMethod", Reason: fmt.Sprintf("unknown payment method %q", in.PaymentMethod)}
		}
	}
	return nil
}

// GetOrder returns the stored order or a *NotFoundError.
func (m *Manager) GetOrder(ctx context.Context, orderID string) (*orders.Order, error) {
	o, err := m.store.Get(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order: %w", err)
	}
	if o == nil {
		return nil, &NotFoundError{OrderID: orderID}
	}
	return o, nil
}

// Stats counts a customer's orders per status.
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Confirmed int `json:"confirmed"`
	Preparing int `json:"preparing"`
	OnTheWay  int `json:"onTheWay"`
	Delivered int `json:"delivered"`
	Cancelled int `json:"cancelled"`
}

// OrderList is a customer's order history, newest first.
type OrderList struct {
	Orders []orders.Order `json:"orders"`
	Stats  Stats          `json:"stats"`
}

// ListOrders returns every order placed with email.
func (m *Manager) ListOrders(ctx context.Context, email string) (*OrderList, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, &ValidationError{Field: "email", Reason: "email is required"}
	}
	list, err := m.store.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	if list == nil {
		list = []orders.Order{}
	}
	out := &OrderList{Orders: list}
	for _, o := range list {
		out.Stats.Total++
		switch o.Status {
		case orders.StatusPending:
			out.Stats.Pending++
		case orders.StatusConfirmed:
			out.Stats.Confirmed++
		case orders.StatusPreparing:
			out.Stats.Preparing++
		case orders.StatusOnTheWay:
			out.Stats.OnTheWay++
		case orders.StatusDelivered:
			out.Stats.Delivered++
		case orders.StatusCancelled:
			out.Stats.Cancelled++
		}
	}
	return out, nil
}

// UpdateStatusInput moves an order along the status graph.
type UpdateStatusInput struct {
	Status        orders.Status
	TransactionID string
	Message       string
}

// UpdateStatus applies one status edge.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, in UpdateStatusInput) (*orders.Order, error) {
	to, err := orders.ParseStatus(string(in.Status))
	if err != nil {
		return nil, &ValidationError{Field: "status", Reason: err.Error()}
	}

	before, after, err := m.mutate(ctx, orderID, func(o *orders.Order) (bool, error) {
		msg := in.Message
		if msg == "" {
			msg = fmt.Sprintf("Order status updated from %s to %s", o.Status, to)
		}
		if err := applyTransition(o, to, msg, m.now()); err != nil {
			return false, err
		}
		if in.TransactionID != "" {
			o.TransactionID = in.TransactionID
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	kind := notify.KindStatusUpdate
	if to == orders.StatusCancelled {
		kind = notify.KindOrderCancelled
	}
	m.transitioned(ctx, before, after, kind)
	return after, nil
}

// RecordPayment sets the payment status. Completing payment on a pending
// order also confirms it. Repeating the current status is a no-op and never
// repoints an order that already has a transaction id.
func (m *Manager) RecordPayment(ctx context.Context, orderID, transactionID string, status orders.PaymentStatus) (*orders.Order, error) {
	ps, err := orders.ParsePaymentStatus(string(status))
	if err != nil {
		return nil, &ValidationError{Field: "paymentStatus", Reason: err.Error()}
	}

	before, after, err := m.mutate(ctx, orderID, func(o *orders.Order) (bool, error) {
		if o.PaymentStatus == ps {
			if o.TransactionID != "" || transactionID == "" {
				return false, nil
			}
			o.TransactionID = transactionID
			return true, nil
		}
		if !CanTransitionPayment(o.PaymentStatus, ps) {
			return false, &InvalidTransitionError{
				OrderID: o.OrderID,
				Axis:    AxisPayment,
				From:    string(o.PaymentStatus),
				To:      string(ps),
				Current: o.Status,
			}
		}
		o.PaymentStatus = ps
		if transactionID != "" {
			o.TransactionID = transactionID
		}
		if ps == orders.PaymentCompleted && o.Status == orders.StatusPending {
			if err := applyTransition(o, orders.StatusConfirmed, "Payment received. Order confirmed", m.now()); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if committed(before, after) && before.PaymentStatus != after.PaymentStatus {
		m.log.WithFields(logrus.Fields{
			"order_id": orderID,
			"from":     before.PaymentStatus,
			"to":       after.PaymentStatus,
		}).Info("payment status changed")
		m.metrics.Count(ctx, "PaymentTransition", map[string]string{
			"From": string(before.PaymentStatus),
			"To":   string(after.PaymentStatus),
		})
		if after.PaymentStatus == orders.PaymentCompleted {
			m.transitioned(ctx, before, after, notify.KindPaymentReceipt)
		}
	}
	return after, nil
}

// MarkPaymentFailed records a failed attempt while payment is still pending.
// applied is false when the order's payment already moved on.
func (m *Manager) MarkPaymentFailed(ctx context.Context, orderID, transactionID string) (order *orders.Order, applied bool, err error) {
	before, after, err := m.mutate(ctx, orderID, func(o *orders.Order) (bool, error) {
		if o.PaymentStatus != orders.PaymentPending {
			return false, nil
		}
		o.PaymentStatus = orders.PaymentFailed
		if o.TransactionID == "" && transactionID != "" {
			o.TransactionID = transactionID
		}
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	applied = committed(before, after)
	if applied {
		m.log.WithField("order_id", orderID).Warn("payment failed")
		m.metrics.Count(ctx, "PaymentTransition", map[string]string{
			"From": string(orders.PaymentPending),
			"To":   string(orders.PaymentFailed),
		})
	}
	return after, applied, nil
}

// CancelOrder cancels any non-terminal order.
func (m *Manager) CancelOrder(ctx context.Context, orderID, reason string) (*orders.Order, error) {
	if strings.TrimSpace(reason) == "" {
		reason = defaultCancelReason
	}
	before, after, err := m.mutate(ctx, orderID, func(o *orders.Order) (bool, error) {
		if o.Status.Terminal() {
			return false, &AlreadyTerminalError{OrderID: o.OrderID, Status: o.Status}
		}
		return true, applyTransition(o, orders.StatusCancelled, reason, m.now())
	})
	if err != nil {
		return nil, err
	}
	m.transitioned(ctx, before, after, notify.KindOrderCancelled)
	return after, nil
}

// transitioned emits the log line, metric and notification of a committed
// status change.
func (m *Manager) transitioned(ctx context.Context, before, after *orders.Order, kind notify.Kind) {
	if !committed(before, after) {
		return
	}
	if before.Status != after.Status {
		m.log.WithFields(logrus.Fields{
			"order_id": after.OrderID,
			"from":     before.Status,
			"to":       after.Status,
		}).Info("order status changed")
		m.metrics.Count(ctx, "OrderTransition", map[string]string{
			"From": string(before.Status),
			"To":   string(after.Status),
		})
	}
	m.notifier.Dispatch(notify.Notification{
		Recipient:      after.CustomerEmail,
		Kind:           kind,
		Order:          *after,
		PreviousStatus: before.Status,
		Message:        after.LastEntry().Message,
	})
}
