package handlers

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"

	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
	"github.com/imrishuroy/bitebuddy-orders/internal/webhook"
)

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput, key string) (*orders.Order, bool, error) {
	args := m.Called(ctx, in, key)
	o, _ := args.Get(0).(*orders.Order)
	return o, args.Bool(1), args.Error(2)
}

func (m *MockOrderService) GetOrder(ctx context.Context, id string) (*orders.Order, error) {
	args := m.Called(ctx, id)
	o, _ := args.Get(0).(*orders.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, email string) (*lifecycle.OrderList, error) {
	args := m.Called(ctx, email)
	l, _ := args.Get(0).(*lifecycle.OrderList)
	return l, args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, id string, in lifecycle.UpdateStatusInput) (*orders.Order, error) {
	args := m.Called(ctx, id, in)
	o, _ := args.Get(0).(*orders.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) RecordPayment(ctx context.Context, id, tx string, status orders.PaymentStatus) (*orders.Order, error) {
	args := m.Called(ctx, id, tx, status)
	o, _ := args.Get(0).(*orders.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id, reason string) (*orders.Order, error) {
	args := m.Called(ctx, id, reason)
	o, _ := args.Get(0).(*orders.Order)
	return o, args.Error(1)
}

func (m *MockOrderService) CreatePaymentIntent(ctx context.Context, id string) (*payment.Intent, error) {
	args := m.Called(ctx, id)
	i, _ := args.Get(0).(*payment.Intent)
	return i, args.Error(1)
}

func (m *MockOrderService) VerifyPayment(ctx context.Context, id, intentID string) (*lifecycle.VerifyResult, error) {
	args := m.Called(ctx, id, intentID)
	r, _ := args.Get(0).(*lifecycle.VerifyResult)
	return r, args.Error(1)
}

func (m *MockOrderService) Refund(ctx context.Context, id string, in lifecycle.RefundInput) (*lifecycle.RefundResult, error) {
	args := m.Called(ctx, id, in)
	r, _ := args.Get(0).(*lifecycle.RefundResult)
	return r, args.Error(1)
}

func (m *MockOrderService) PaymentHistory(ctx context.Context, email string) ([]payment.IntentSummary, error) {
	args := m.Called(ctx, email)
	p, _ := args.Get(0).([]payment.IntentSummary)
	return p, args.Error(1)
}

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) Verify(payload []byte, header string) (*webhook.Event, error) {
	args := m.Called(payload, header)
	ev, _ := args.Get(0).(*webhook.Event)
	return ev, args.Error(1)
}

func (m *MockWebhookProcessor) Handle(ctx context.Context, ev *webhook.Event) (webhook.Outcome, error) {
	args := m.Called(ctx, ev)
	return args.Get(0).(webhook.Outcome), args.Error(1)
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
