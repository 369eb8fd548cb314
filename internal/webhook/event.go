// Package webhook verifies payment processor callbacks and applies each
// event at most once.
package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
)

// SignatureHeader carries the processor's signature.
const SignatureHeader = "Stripe-Signature"

// Event types the processor acts on.
const (
	TypePaymentSucceeded = "payment_intent.succeeded"
	TypePaymentFailed    = "payment_intent.payment_failed"
	TypeChargeRefunded   = "charge.refunded"
)

// Event is the subset of a processor event the order lifecycle needs.
type Event struct {
	ID       string
	Type     string
	IntentID string
	OrderRef string
	Amount   float64
}

// SignatureError means the payload was not signed with our secret, or is
// stale, or is not an event at all. Nothing is recorded for it.
type SignatureError struct {
	Err error
}

func (e *SignatureError) Error() string { return "webhook signature verification failed: " + e.Err.Error() }

func (e *SignatureError) Unwrap() error { return e.Err }

type eventObject struct {
	ID             string            `json:"id"`
	Object         string            `json:"object"`
	Metadata       map[string]string `json:"metadata"`
	PaymentIntent  json.RawMessage   `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
}

// Verify checks the signature header against secret and extracts the event.
func Verify(payload []byte, header, secret string) (*Event, error) {
	raw, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, &SignatureError{Err: err}
	}

	ev := &Event{ID: raw.ID, Type: string(raw.Type)}
	if raw.Data == nil || len(raw.Data.Raw) == 0 {
		return ev, nil
	}
	var obj eventObject
	if err := json.Unmarshal(raw.Data.Raw, &obj); err != nil {
		return nil, &SignatureError{Err: fmt.Errorf("decode event object: %w", err)}
	}
	ev.OrderRef = obj.Metadata[payment.MetadataOrderID]

	switch obj.Object {
	case "charge":
		ev.IntentID = intentRef(obj.PaymentIntent)
		ev.Amount = payment.FromMinorUnits(obj.AmountRefunded)
	default:
		ev.IntentID = obj.ID
		ev.Amount = payment.FromMinorUnits(obj.Amount)
	}
	return ev, nil
}

// intentRef accepts payment_intent as an id or as an expanded object.
func intentRef(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
