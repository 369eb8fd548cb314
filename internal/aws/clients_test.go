package aws

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/sirupsen/logrus"
)

type mockSQS struct {
	mu   sync.Mutex
	sent []*sqs.SendMessageInput
	err  error
}

func (m *mockSQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

type mockCloudWatch struct {
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatch) PutMetricData(ctx context.Context, in *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.calls = append(m.calls, in)
	return &cloudwatch.PutMetricDataOutput{}, m.err
}

type mockSES struct {
	last *sesv2.SendEmailInput
}

func (m *mockSES) SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.last = in
	id := "msg-1"
	return &sesv2.SendEmailOutput{MessageId: &id}, nil
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func TestPublisher_SendMessage_SkipsEmptyAttributes(t *testing.T) {
	mock := &mockSQS{}
	p := NewPublisher(mock, "https://sqs.local/queue")

	err := p.SendMessage(context.Background(), `{"kind":"status_update"}`, map[string]string{
		"order_id": "ORD-1",
		"kind":     "",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mock.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.sent))
	}
	attrs := mock.sent[0].MessageAttributes
	if _, ok := attrs["kind"]; ok {
		t.Fatalf("empty attribute should not be sent")
	}
	if v := attrs["order_id"].StringValue; v == nil || *v != "ORD-1" {
		t.Fatalf("order_id attribute mismatch: %v", v)
	}
}

func TestPublisher_SendMessage_Errors(t *testing.T) {
	p := NewPublisher(&mockSQS{}, "")
	if err := p.SendMessage(context.Background(), "{}", nil); err == nil {
		t.Fatalf("expected error for missing queue url")
	}

	p = NewPublisher(&mockSQS{err: errors.New("throttled")}, "https://sqs.local/queue")
	if err := p.SendMessage(context.Background(), "{}", nil); err == nil {
		t.Fatalf("expected send error")
	}
}

func TestMetrics_Count_SortsDimensionsAndSwallowsErrors(t *testing.T) {
	cw := &mockCloudWatch{err: errors.New("denied")}
	m := NewMetrics(cw, "", quietLogger())

	m.Count(context.Background(), "OrderTransition", map[string]string{"To": "confirmed", "From": "pending"})

	if len(cw.calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(cw.calls))
	}
	in := cw.calls[0]
	if *in.Namespace != "BiteBuddy/Orders" {
		t.Fatalf("unexpected namespace %s", *in.Namespace)
	}
	dims := in.MetricData[0].Dimensions
	if *dims[0].Name != "From" || *dims[1].Name != "To" {
		t.Fatalf("dimensions not sorted: %s, %s", *dims[0].Name, *dims[1].Name)
	}

	var nilMetrics *Metrics
	nilMetrics.Count(context.Background(), "noop", nil)
}

func TestMailer_Send(t *testing.T) {
	ses := &mockSES{}
	m := NewMailer(ses, "BiteBuddy <noreply@bitebuddy.com>")

	id, err := m.Send(context.Background(), "asha@example.com", "Hello", "<p>hi</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("unexpected message id %q", id)
	}
	if got := ses.last.Destination.ToAddresses[0]; got != "asha@example.com" {
		t.Fatalf("recipient mismatch: %s", got)
	}

	if _, err := m.Send(context.Background(), "", "x", "y"); err == nil {
		t.Fatalf("expected error for empty recipient")
	}
}
