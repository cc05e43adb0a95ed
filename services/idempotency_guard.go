package services

import "sync"

// IdempotencyGuard remembers processor transaction ids that have already
// settled an order in this process. It is a fast path in front of the
// ledger; the conditional update there remains the real guarantee.
type IdempotencyGuard struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{seen: make(map[string]struct{})}
}

func (g *IdempotencyGuard) Seen(txnID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.seen[txnID]
	return ok
}

func (g *IdempotencyGuard) Record(txnID string) {
	g.mu.Lock()
	g.seen[txnID] = struct{}{}
	g.mu.Unlock()
}
