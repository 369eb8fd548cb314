package lifecycle

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/idempotency"
	"github.com/imrishuroy/bitebuddy-orders/internal/notify"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
)

// memStore is an in-memory OrderStore with the same version condition as the
// DynamoDB store.
type memStore struct {
	mu     sync.Mutex
	orders map[string]orders.Order
	keys   map[string]idempotency.IdempotencyRecord

	// beforeReplace runs (outside the lock) ahead of every Replace.
	beforeReplace func(s *memStore, orderID string)
	replaces      int
	// txErr fails the next create transaction
	txErr error
}

func newMemStore() *memStore {
	return &memStore{
		orders: map[string]orders.Order{},
		keys:   map[string]idempotency.IdempotencyRecord{},
	}
}

func (s *memStore) Create(_ context.Context, o orders.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.OrderID]; ok {
		return orders.ErrOrderExists
	}
	s.orders[o.OrderID] = o.Clone()
	return nil
}

func (s *memStore) CreateWithIdempotencyTransaction(_ context.Context, item interface{}, o orders.Order) error {
	rec, ok := item.(idempotency.IdempotencyRecord)
	if !ok {
		return fmt.Errorf("unexpected idempotency item %T", item)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.txErr; err != nil {
		s.txErr = nil
		return err
	}
	if _, ok := s.keys[rec.IdempotencyKey]; ok {
		return fmt.Errorf("%w: key %s", orders.ErrDuplicateRequest, rec.IdempotencyKey)
	}
	if _, ok := s.orders[o.OrderID]; ok {
		return fmt.Errorf("%w: order %s", orders.ErrDuplicateRequest, o.OrderID)
	}
	s.keys[rec.IdempotencyKey] = rec
	s.orders[o.OrderID] = o.Clone()
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	c := o.Clone()
	return &c, nil
}

func (s *memStore) ListByEmail(_ context.Context, email string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.CustomerEmail == email {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) FindByTransactionID(_ context.Context, tx string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.TransactionID == tx {
			c := o.Clone()
			return &c, nil
		}
	}
	return nil, nil
}

func (s *memStore) Replace(_ context.Context, o orders.Order, expected int64) error {
	if s.beforeReplace != nil {
		s.beforeReplace(s, o.OrderID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaces++
	cur, ok := s.orders[o.OrderID]
	if !ok || cur.Version != expected {
		return orders.ErrVersionConflict
	}
	s.orders[o.OrderID] = o.Clone()
	return nil
}

// bump simulates a concurrent writer.
func (s *memStore) bump(id string, edit func(o *orders.Order)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if edit != nil {
		edit(&o)
	}
	o.Version++
	s.orders[id] = o
}

func (s *memStore) snapshot(id string) orders.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Clone()
}

func (s *memStore) NewRecord(key, status, orderID string) idempotency.IdempotencyRecord {
	return idempotency.IdempotencyRecord{IdempotencyKey: key, Status: status, OrderID: orderID}
}

func (s *memStore) GetKey(key string) (idempotency.IdempotencyRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.keys[key]
	return rec, ok
}

// memKeys adapts memStore to Keys, sharing its key map and lock.
type memKeys struct{ s *memStore }

func (k memKeys) NewRecord(key, status, orderID string) idempotency.IdempotencyRecord {
	return k.s.NewRecord(key, status, orderID)
}

func (k memKeys) Get(_ context.Context, key string) (*idempotency.IdempotencyRecord, error) {
	rec, ok := k.s.GetKey(key)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (k memKeys) CreateIfNotExists(_ context.Context, key, orderID, eventType string) (bool, error) {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	if _, ok := k.s.keys[key]; ok {
		return false, nil
	}
	k.s.keys[key] = idempotency.IdempotencyRecord{
		IdempotencyKey: key,
		Status:         idempotency.StatusInProgress,
		OrderID:        orderID,
		EventType:      eventType,
	}
	return true, nil
}

func (k memKeys) Reclaim(_ context.Context, key string) (bool, error) {
	return k.swap(key, idempotency.StatusFailed, idempotency.StatusInProgress, ""), nil
}

func (k memKeys) MarkDone(_ context.Context, key, body string, _ int) error {
	k.swap(key, "", idempotency.StatusDone, body)
	return nil
}

func (k memKeys) MarkFailed(_ context.Context, key, note string) error {
	k.swap(key, "", idempotency.StatusFailed, note)
	return nil
}

// swap moves key to status when its current status is from (any when empty).
func (k memKeys) swap(key, from, to, note string) bool {
	k.s.mu.Lock()
	defer k.s.mu.Unlock()
	rec, ok := k.s.keys[key]
	if !ok || (from != "" && rec.Status != from) {
		return false
	}
	rec.Status = to
	rec.Note = note
	k.s.keys[key] = rec
	return true
}

type fakeGateway struct {
	mu sync.Mutex

	intent       *payment.Intent
	verification *payment.Verification
	refund       *payment.Refund
	history      []payment.IntentSummary
	err          error
	// refundDelay holds RefundIntent open, outside the lock.
	refundDelay time.Duration

	intentReqs    []payment.IntentRequest
	refundIntents []string
	refundAmounts []*float64
	refundKeys    []string
	historyRefs   []string
}

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentReqs = append(g.intentReqs, req)
	if g.err != nil {
		return nil, g.err
	}
	return g.intent, nil
}

func (g *fakeGateway) VerifyIntent(_ context.Context, _ string) (*payment.Verification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return g.verification, nil
}

func (g *fakeGateway) RefundIntent(_ context.Context, req payment.RefundRequest) (*payment.Refund, error) {
	g.mu.Lock()
	g.refundIntents = append(g.refundIntents, req.IntentID)
	g.refundAmounts = append(g.refundAmounts, req.Amount)
	g.refundKeys = append(g.refundKeys, req.IdempotencyKey)
	delay, err, refund := g.refundDelay, g.err, g.refund
	g.mu.Unlock()

	time.Sleep(delay)
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (g *fakeGateway) ListIntents(_ context.Context, customerRef string, _ int) ([]payment.IntentSummary, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.historyRefs = append(g.historyRefs, customerRef)
	if g.err != nil {
		return nil, g.err
	}
	return g.history, nil
}

func (g *fakeGateway) refundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refundIntents)
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (c *captureNotifier) Dispatch(n notify.Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
}

func (c *captureNotifier) kinds() []notify.Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]notify.Kind, 0, len(c.sent))
	for _, n := range c.sent {
		out = append(out, n.Kind)
	}
	return out
}

type captureMetrics struct {
	mu    sync.Mutex
	names []string
	dims  []map[string]string
}

func (c *captureMetrics) Count(_ context.Context, name string, dims map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
	c.dims = append(c.dims, dims)
}

func (c *captureMetrics) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.names {
		if v == name {
			n++
		}
	}
	return n
}

type harness struct {
	m       *Manager
	store   *memStore
	gateway *fakeGateway
	notes   *captureNotifier
	metrics *captureMetrics
	clock   time.Time
}

func newHarness() *harness {
	h := &harness{
		store:   newMemStore(),
		gateway: &fakeGateway{},
		notes:   &captureNotifier{},
		metrics: &captureMetrics{},
		clock:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	h.m = NewManager(Deps{
		Store:    h.store,
		Keys:     memKeys{s: h.store},
		Gateway:  h.gateway,
		Notifier: h.notes,
		Metrics:  h.metrics,
		Log:      logrus.NewEntry(logger),
	}, Options{})
	h.m.now = func() time.Time { return h.clock }
	seq := 0
	h.m.newID = func() string {
		seq++
		return fmt.Sprintf("ORD-TEST-%d", seq)
	}
	return h
}

func sampleInput() CreateOrderInput {
	return CreateOrderInput{
		CustomerEmail:   "asha@example.com",
		CustomerName:    "Asha",
		CustomerPhone:   "+91 98765 43210",
		DeliveryAddress: "12 MG Road, Bengaluru",
		Items: []orders.Item{
			{ItemID: "pizza-1", Name: "Margherita", Quantity: 2, Size: "medium", UnitPrice: 150},
		},
		TotalAmount: 300,
	}
}
