package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hkshop/storefront/models"
	"github.com/hkshop/storefront/repository"
	"github.com/shopspring/decimal"
)

// fakeCatalog is an in-memory catalog.
type fakeCatalog struct {
	products map[int64]*models.Product
	err      error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[int64]*models.Product{
		7:  {PID: 7, Name: "Oolong Tea", Price: decimal.RequireFromString("19.99")},
		12: {PID: 12, Name: "Tea Cup", Price: decimal.RequireFromString("5.50")},
	}}
}

func (c *fakeCatalog) LookupProduct(_ context.Context, pid int64) (*models.Product, error) {
	if c.err != nil {
		return nil, c.err
	}
	p, ok := c.products[pid]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

// fakeLedger keeps the same conditional-update semantics as the real
// ledger behind a mutex.
type fakeLedger struct {
	mu          sync.Mutex
	orders      map[uuid.UUID]*models.Order
	txns        map[string]uuid.UUID
	writes      int
	getErr      error
	completeErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{orders: map[uuid.UUID]*models.Order{}, txns: map[string]uuid.UUID{}}
}

func (l *fakeLedger) Create(_ context.Context, sealed *models.SealedCommitment, owner string) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := uuid.New()
	l.orders[id] = &models.Order{
		OrderID:       id,
		OwnerIdentity: owner,
		CurrencyCode:  sealed.Input.CurrencyCode,
		PayeeIdentity: sealed.Input.PayeeIdentity,
		Salt:          sealed.Input.Salt,
		Lines:         append(models.OrderLines(nil), sealed.Input.Lines...),
		TotalPrice:    sealed.Input.TotalPrice,
		Digest:        sealed.Digest,
		DigestVersion: sealed.DigestVersion,
		Status:        models.OrderStatusPending,
		CreatedAt:     time.Now(),
	}
	return id, nil
}

func (l *fakeLedger) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getErr != nil {
		return nil, l.getErr
	}
	o, ok := l.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (l *fakeLedger) MarkCompleted(_ context.Context, id uuid.UUID, txnID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.completeErr != nil {
		return l.completeErr
	}
	o, ok := l.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != models.OrderStatusPending {
		return repository.ErrAlreadyCompleted
	}
	if _, used := l.txns[txnID]; used {
		return repository.ErrDuplicateTransaction
	}
	now := time.Now()
	o.Status = models.OrderStatusCompleted
	o.ProcessorTransactionID = &txnID
	o.CompletedAt = &now
	l.txns[txnID] = id
	l.writes++
	return nil
}

func (l *fakeLedger) SetExternalRef(_ context.Context, id uuid.UUID, ref string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	o, ok := l.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if o.Status != models.OrderStatusPending {
		return repository.ErrOrderNotPending
	}
	o.ExternalOrderRef = &ref
	return nil
}

func (l *fakeLedger) ListByOwner(_ context.Context, owner string, limit int) ([]models.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Order
	for _, o := range l.orders {
		if o.OwnerIdentity == owner {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *fakeLedger) ListAll(_ context.Context, page, limit int) ([]models.Order, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.Order
	for _, o := range l.orders {
		out = append(out, *o)
	}
	return out, int64(len(out)), nil
}

func (l *fakeLedger) writeCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

// stubVerifier answers every verification with err.
type stubVerifier struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (v *stubVerifier) Verify(context.Context, []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.err
}

type recordingEvents struct {
	mu     sync.Mutex
	events []models.OrderEvent
	err    error
}

func (r *recordingEvents) Publish(_ context.Context, e models.OrderEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{counts: map[string]int{}}
}

func (m *recordingMetrics) RecordCount(_ context.Context, name string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	return nil
}

func (m *recordingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

type fakeGateway struct {
	created    []ExternalOrderRequest
	createRef  string
	createErr  error
	capture    *CaptureResult
	captureErr error
}

func (g *fakeGateway) CreateExternalOrder(_ context.Context, req ExternalOrderRequest) (string, error) {
	g.created = append(g.created, req)
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.createRef, nil
}

func (g *fakeGateway) CaptureExternalOrder(_ context.Context, ref string) (*CaptureResult, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return g.capture, nil
}

var errStoreDown = errors.New("connection refused")

func cartLine(pid, qty string) models.CartLineRequest {
	return models.CartLineRequest{ProductID: []byte(pid), Quantity: []byte(qty)}
}
