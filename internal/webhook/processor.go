package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/idempotency"
	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
)

// Lifecycle is the part of the order manager events drive.
type Lifecycle interface {
	ResolveOrderID(ctx context.Context, orderRef, transactionID string) (string, error)
	RecordPayment(ctx context.Context, orderID, transactionID string, status orders.PaymentStatus) (*orders.Order, error)
	MarkPaymentFailed(ctx context.Context, orderID, transactionID string) (*orders.Order, bool, error)
	AnnounceRefund(ctx context.Context, orderID string, amount float64) error
}

// Claims is the idempotency table used to deduplicate deliveries.
type Claims interface {
	CreateIfNotExists(ctx context.Context, key, orderID, eventType string) (bool, error)
	Get(ctx context.Context, key string) (*idempotency.IdempotencyRecord, error)
	Reclaim(ctx context.Context, key string) (bool, error)
	MarkDone(ctx context.Context, key, responseBody string, responseStatus int) error
	MarkFailed(ctx context.Context, key, note string) error
}

// Metrics records counters.
type Metrics interface {
	Count(ctx context.Context, name string, dims map[string]string)
}

// Outcome describes what happened to a delivery.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// Processor applies verified events.
type Processor struct {
	secret    string
	lifecycle Lifecycle
	claims    Claims
	metrics   Metrics
	log       *logrus.Entry
}

// NewProcessor builds a processor. metrics may be nil.
func NewProcessor(secret string, lc Lifecycle, claims Claims, metrics Metrics, log *logrus.Entry) *Processor {
	return &Processor{secret: secret, lifecycle: lc, claims: claims, metrics: metrics, log: log}
}

// Verify checks the delivery's signature with the configured secret.
func (p *Processor) Verify(payload []byte, header string) (*Event, error) {
	return Verify(payload, header, p.secret)
}

// Handle applies ev unless an earlier delivery already did. A returned error
// leaves the claim FAILED so the processor's redelivery can retry.
func (p *Processor) Handle(ctx context.Context, ev *Event) (Outcome, error) {
	log := p.log.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})
	key := idempotency.EventKey(ev.ID)

	claimed, err := p.claim(ctx, key, ev)
	if err != nil {
		return "", err
	}
	if !claimed {
		log.Info("duplicate delivery acknowledged")
		p.count(ctx, ev.Type, OutcomeDuplicate)
		return OutcomeDuplicate, nil
	}

	outcome, err := p.apply(ctx, ev, log)
	if err != nil {
		if merr := p.claims.MarkFailed(ctx, key, err.Error()); merr != nil {
			log.WithError(merr).Error("failed to mark event claim failed")
		}
		log.WithError(err).Error("event processing failed")
		p.count(ctx, ev.Type, "failed")
		return "", err
	}

	if err := p.claims.MarkDone(ctx, key, string(outcome), http.StatusOK); err != nil {
		log.WithError(err).Warn("failed to mark event claim done")
	}
	p.count(ctx, ev.Type, outcome)
	return outcome, nil
}

// claim reports whether this delivery owns the event.
func (p *Processor) claim(ctx context.Context, key string, ev *Event) (bool, error) {
	created, err := p.claims.CreateIfNotExists(ctx, key, ev.OrderRef, ev.Type)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	if created {
		return true, nil
	}
	rec, err := p.claims.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load event claim: %w", err)
	}
	if rec == nil || rec.Status != idempotency.StatusFailed {
		return false, nil
	}
	ok, err := p.claims.Reclaim(ctx, key)
	if err != nil {
		return false, fmt.Errorf("reclaim event: %w", err)
	}
	return ok, nil
}

func (p *Processor) apply(ctx context.Context, ev *Event, log *logrus.Entry) (Outcome, error) {
	switch ev.Type {
	case TypePaymentSucceeded, TypePaymentFailed, TypeChargeRefunded:
	default:
		log.Debug("event type not handled")
		return OutcomeIgnored, nil
	}

	orderID, err := p.lifecycle.ResolveOrderID(ctx, ev.OrderRef, ev.IntentID)
	if err != nil {
		return "", err
	}
	if orderID == "" {
		log.WithFields(logrus.Fields{"order_ref": ev.OrderRef, "intent_id": ev.IntentID}).Warn("event references unknown order")
		return OutcomeIgnored, nil
	}
	log = log.WithField("order_id", orderID)

	switch ev.Type {
	case TypePaymentSucceeded:
		_, err = p.lifecycle.RecordPayment(ctx, orderID, ev.IntentID, orders.PaymentCompleted)
	case TypePaymentFailed:
		var applied bool
		_, applied, err = p.lifecycle.MarkPaymentFailed(ctx, orderID, ev.IntentID)
		if err == nil && !applied {
			log.Info("payment failure ignored, payment already settled")
		}
	case TypeChargeRefunded:
		err = p.lifecycle.AnnounceRefund(ctx, orderID, ev.Amount)
	}

	switch {
	case err == nil:
		return OutcomeProcessed, nil
	case errors.Is(err, lifecycle.ErrNotFound):
		log.Warn("order disappeared before event was applied")
		return OutcomeIgnored, nil
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		log.WithError(err).Warn("event does not apply to current order state")
		return OutcomeIgnored, nil
	default:
		return "", err
	}
}

func (p *Processor) count(ctx context.Context, eventType string, outcome Outcome) {
	if p.metrics == nil {
		return
	}
	p.metrics.Count(ctx, "WebhookEvent", map[string]string{"Type": eventType, "Outcome": string(outcome)})
}
