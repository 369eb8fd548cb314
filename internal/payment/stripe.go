package payment

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway implements Gateway on top of the Stripe API.
type StripeGateway struct {
	api *client.API
}

// NewStripeGateway returns a gateway authenticated with secretKey.
func NewStripeGateway(secretKey string) *StripeGateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeGateway{api: api}
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(ToMinorUnits(req.Amount)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.CustomerRef != "" {
		params.ReceiptEmail = stripe.String(req.CustomerRef)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, wrapStripe("create intent", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (g *StripeGateway) VerifyIntent(ctx context.Context, intentID string) (*Verification, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, wrapStripe("verify intent", err)
	}
	return &Verification{
		IntentID: pi.ID,
		Status:   normaliseStatus(pi),
		Amount:   FromMinorUnits(pi.Amount),
		Metadata: pi.Metadata,
	}, nil
}

func (g *StripeGateway) RefundIntent(ctx context.Context, req RefundRequest) (*Refund, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
	}
	if req.Amount != nil {
		params.Amount = stripe.Int64(ToMinorUnits(*req.Amount))
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.Context = ctx

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return nil, wrapStripe("refund intent", err)
	}
	return &Refund{ID: r.ID, Status: string(r.Status), Amount: FromMinorUnits(r.Amount)}, nil
}

// ListIntents reads one page of recent intents and keeps those receipted to
// customerRef. Stripe cannot search intents by receipt email.
func (g *StripeGateway) ListIntents(ctx context.Context, customerRef string, limit int) ([]IntentSummary, error) {
	params := &stripe.PaymentIntentListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(int64(limit))
	params.Single = true

	out := []IntentSummary{}
	it := g.api.PaymentIntents.List(params)
	for it.Next() {
		pi := it.PaymentIntent()
		if !strings.EqualFold(pi.ReceiptEmail, customerRef) {
			continue
		}
		out = append(out, IntentSummary{
			ID:       pi.ID,
			Amount:   FromMinorUnits(pi.Amount),
			Status:   string(pi.Status),
			Created:  time.Unix(pi.Created, 0).UTC(),
			Metadata: pi.Metadata,
		})
	}
	if err := it.Err(); err != nil {
		return nil, wrapStripe("list intents", err)
	}
	return out, nil
}

// normaliseStatus folds Stripe's intent states into the four the lifecycle knows.
// requires_payment_method after a confirmation attempt means the last charge failed.
func normaliseStatus(pi *stripe.PaymentIntent) IntentStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return IntentSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return IntentProcessing
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return IntentPaymentFailed
		}
		return IntentRequiresAction
	case stripe.PaymentIntentStatusCanceled:
		return IntentPaymentFailed
	default:
		return IntentRequiresAction
	}
}

func wrapStripe(op string, err error) error {
	ge := &GatewayError{Op: op, Err: errors.WithStack(err)}
	var se *stripe.Error
	if errors.As(err, &se) {
		ge.Code = string(se.Type)
		if se.Code != "" {
			ge.Code = string(se.Type) + "/" + string(se.Code)
		}
		ge.Err = errors.Wrap(err, se.Msg)
	}
	return ge
}
