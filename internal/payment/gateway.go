// Package payment is the boundary to the external payment processor.
package payment

import (
	"context"
	"fmt"
	"time"
)

// IntentStatus is the processor's view of a payment attempt, normalised to
// the values the order lifecycle acts on.
type IntentStatus string

const (
	IntentSucceeded      IntentStatus = "succeeded"
	IntentRequiresAction IntentStatus = "requires_action"
	IntentPaymentFailed  IntentStatus = "payment_failed"
	IntentProcessing     IntentStatus = "processing"
)

// MetadataOrderID is the intent metadata key that references our order.
const MetadataOrderID = "orderId"

// IntentRequest describes a charge to start.
type IntentRequest struct {
	Amount      float64 // major currency units
	Currency    string
	CustomerRef string // receipt email
	Metadata    map[string]string
}

// Intent is a created payment intent.
type Intent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// Verification is the current state of an intent.
type Verification struct {
	IntentID string
	Status   IntentStatus
	Amount   float64
	Metadata map[string]string
}

// RefundRequest describes a refund. A nil Amount refunds the full charge.
// IdempotencyKey makes a retried request return the first refund.
type RefundRequest struct {
	IntentID       string
	Amount         *float64
	IdempotencyKey string
}

// IntentSummary is one entry of a customer's payment history.
type IntentSummary struct {
	ID       string            `json:"id"`
	Amount   float64           `json:"amount"`
	Status   string            `json:"status"`
	Created  time.Time         `json:"created"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Refund is a processed refund.
type Refund struct {
	ID     string  `json:"refundId"`
	Status string  `json:"status"`
	Amount float64 `json:"amount"`
}

// Gateway is the contract the order lifecycle consumes.
// Every error returned is a *GatewayError.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	VerifyIntent(ctx context.Context, intentID string) (*Verification, error)
	RefundIntent(ctx context.Context, req RefundRequest) (*Refund, error)
	// ListIntents returns the most recent intents receipted to customerRef.
	ListIntents(ctx context.Context, customerRef string, limit int) ([]IntentSummary, error)
}

// GatewayError wraps a processor failure. It is propagated to callers verbatim.
type GatewayError struct {
	Op   string
	Code string
	Err  error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment gateway %s failed (%s): %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ToMinorUnits converts a major-unit amount (rupees) into minor units (paise).
func ToMinorUnits(amount float64) int64 {
	if amount < 0 {
		return -int64(-amount*100 + 0.5)
	}
	return int64(amount*100 + 0.5)
}

// FromMinorUnits converts minor units back into major units.
func FromMinorUnits(minor int64) float64 {
	return float64(minor) / 100
}
