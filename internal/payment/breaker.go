package payment

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// BreakerGateway guards a Gateway with a per-call timeout and a circuit breaker.
type BreakerGateway struct {
	inner   Gateway
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
}

// NewBreakerGateway wraps inner. Errors the customer can fix (card declines,
// invalid requests) do not count towards tripping the breaker.
func NewBreakerGateway(inner Gateway, timeout time.Duration, log *logrus.Entry) *BreakerGateway {
	st := gobreaker.Settings{
		Name:        "PaymentGateway",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isCustomerError(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("CircuitBreaker[%s] state changed from %s to %s", name, from, to)
		},
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BreakerGateway{inner: inner, cb: gobreaker.NewCircuitBreaker(st), timeout: timeout}
}

func (b *BreakerGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	res, err := b.execute(ctx, "create intent", func(ctx context.Context) (interface{}, error) {
		return b.inner.CreateIntent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Intent), nil
}

func (b *BreakerGateway) VerifyIntent(ctx context.Context, intentID string) (*Verification, error) {
	res, err := b.execute(ctx, "verify intent", func(ctx context.Context) (interface{}, error) {
		return b.inner.VerifyIntent(ctx, intentID)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Verification), nil
}

func (b *BreakerGateway) RefundIntent(ctx context.Context, req RefundRequest) (*Refund, error) {
	res, err := b.execute(ctx, "refund intent", func(ctx context.Context) (interface{}, error) {
		return b.inner.RefundIntent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*Refund), nil
}

func (b *BreakerGateway) ListIntents(ctx context.Context, customerRef string, limit int) ([]IntentSummary, error) {
	res, err := b.execute(ctx, "list intents", func(ctx context.Context) (interface{}, error) {
		return b.inner.ListIntents(ctx, customerRef, limit)
	})
	if err != nil {
		return nil, err
	}
	return res.([]IntentSummary), nil
}

func (b *BreakerGateway) execute(ctx context.Context, op string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	res, err := b.cb.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == nil {
		return res, nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, &GatewayError{Op: op, Code: "circuit_open", Err: err}
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return nil, ge
	}
	return nil, &GatewayError{Op: op, Err: err}
}

func isCustomerError(err error) bool {
	var ge *GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	return strings.HasPrefix(ge.Code, "card_error") || strings.HasPrefix(ge.Code, "invalid_request_error")
}
