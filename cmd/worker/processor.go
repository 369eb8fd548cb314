package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/notify"
)

// sendTimeout bounds a single email delivery.
const sendTimeout = 10 * time.Second

// Processor renders queued notifications and sends them. Notifications are
// best effort: failures are logged and counted, never retried.
type Processor struct {
	mailer  Mailer
	metrics Metrics
	log     *logrus.Entry
}

// NewProcessor creates a new worker processor. metrics may be nil.
func NewProcessor(mailer Mailer, metrics Metrics, log *logrus.Entry) *Processor {
	return &Processor{mailer: mailer, metrics: metrics, log: log}
}

// Handle receives an SQS batch event and processes each message. It always
// returns nil so a failed email never redelivers the batch.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	p.log.WithField("records", len(ev.Records)).Debug("received notification batch")
	for _, rec := range ev.Records {
		log := p.log.WithField("message_id", rec.MessageId)
		if err := p.processMessage(ctx, rec, log); err != nil {
			log.WithError(err).Warn("notification dropped")
			p.count(ctx, "NotificationFailed", rec)
			continue
		}
		p.count(ctx, "NotificationSent", rec)
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage, log *logrus.Entry) error {
	var n notify.Notification
	if err := json.Unmarshal([]byte(rec.Body), &n); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if n.Recipient == "" {
		return fmt.Errorf("notification %s for order %s has no recipient", n.Kind, n.Order.OrderID)
	}

	subject, html, err := notify.Render(n)
	if err != nil {
		return fmt.Errorf("render %s: %w", n.Kind, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	id, err := p.mailer.Send(sendCtx, n.Recipient, subject, html)
	if err != nil {
		return fmt.Errorf("send %s: %w", n.Kind, err)
	}

	log.WithFields(logrus.Fields{
		"kind":        n.Kind,
		"order_id":    n.Order.OrderID,
		"provider_id": id,
	}).Info("notification sent")
	return nil
}

func (p *Processor) count(ctx context.Context, name string, rec events.SQSMessage) {
	if p.metrics == nil {
		return
	}
	kind := "unknown"
	if attr, ok := rec.MessageAttributes["kind"]; ok && attr.StringValue != nil {
		kind = *attr.StringValue
	}
	p.metrics.Count(ctx, name, map[string]string{"Kind": kind})
}
