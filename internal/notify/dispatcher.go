package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Publisher puts a message on the notifications queue.
type Publisher interface {
	SendMessage(ctx context.Context, messageBody string, attributes map[string]string) error
}

// Dispatcher publishes notifications without blocking the caller. Delivery is
// attempted once; failures are logged only.
type Dispatcher struct {
	pub     Publisher
	log     *logrus.Entry
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
}

// NewDispatcher returns a Dispatcher allowing at most maxInFlight concurrent sends.
func NewDispatcher(pub Publisher, maxInFlight int, log *logrus.Entry) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = 64
	}
	return &Dispatcher{
		pub:     pub,
		log:     log.WithField("component", "notify"),
		timeout: 5 * time.Second,
		slots:   make(chan struct{}, maxInFlight),
	}
}

// Dispatch enqueues n in the background. When all slots are busy the
// notification is dropped.
func (d *Dispatcher) Dispatch(n Notification) {
	entry := d.log.WithFields(logrus.Fields{"order_id": n.Order.OrderID, "kind": n.Kind})
	if n.Recipient == "" {
		entry.Debug("no recipient, notification skipped")
		return
	}

	select {
	case d.slots <- struct{}{}:
	default:
		entry.Warn("notification dropped: dispatcher saturated")
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.slots }()

		body, err := json.Marshal(n)
		if err != nil {
			entry.WithError(err).Error("marshal notification")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		attrs := map[string]string{
			"kind":     string(n.Kind),
			"order_id": n.Order.OrderID,
		}
		if err := d.pub.SendMessage(ctx, string(body), attrs); err != nil {
			entry.WithError(err).Error("notification publish failed")
			return
		}
		entry.Debug("notification queued")
	}()
}

// Wait blocks until in-flight dispatches finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// WaitTimeout is Wait bounded by limit. It reports whether every dispatch
// finished; sends still running keep going in the background.
func (d *Dispatcher) WaitTimeout(limit time.Duration) bool {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	t := time.NewTimer(limit)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
