package workflow

import (
	"sync"
	"testing"
)

// These tests are DB-free. They validate the intended consumer semantics:
// at-least-once delivery is safe under durable idempotency, and per-owner
// serialization prevents racey interleavings inside handlers. The DB-backed
// versions of both live in the docker-gated regression tests.

type fakeProcessor struct {
	muByOwner map[string]*sync.Mutex
	mu        sync.Mutex
	seen      map[string]bool
	calls     int
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		muByOwner: map[string]*sync.Mutex{},
		seen:      map[string]bool{},
	}
}

func (p *fakeProcessor) process(ownerID, handlerName, messageID string, fn func()) {
	// Serialize per owner (AcquireOwnerPostingLock).
	p.mu.Lock()
	om := p.muByOwner[ownerID]
	if om == nil {
		om = &sync.Mutex{}
		p.muByOwner[ownerID] = om
	}
	p.mu.Unlock()

	om.Lock()
	defer om.Unlock()

	// Deduplicate (IdempotencyKey).
	key := ownerID + "|" + handlerName + "|" + messageID
	p.mu.Lock()
	if p.seen[key] {
		p.mu.Unlock()
		return
	}
	p.seen[key] = true
	p.mu.Unlock()

	fn()

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
}

func TestDuplicateDeliveryIsProcessedOnce(t *testing.T) {
	p := newFakeProcessor()

	const (
		owner     = "owner-1"
		handler   = "orders"
		messageID = "123"
	)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.process(owner, handler, messageID, func() {})
		}()
	}
	wg.Wait()

	if p.calls != 1 {
		t.Fatalf("expected exactly 1 processing call, got %d", p.calls)
	}
}

func TestDeterministicUnderConcurrency(t *testing.T) {
	for run := 0; run < 100; run++ {
		p := newFakeProcessor()
		var wg sync.WaitGroup

		// same scenario, repeated concurrently
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p.process("owner-1", "orders", "1", func() {})
				p.process("owner-1", "stock_ledger_entries", "2", func() {})
				p.process("owner-1", "orders", "1", func() {}) // duplicate
			}()
		}
		wg.Wait()

		if p.calls != 2 {
			t.Fatalf("run=%d expected 2 unique calls, got %d", run, p.calls)
		}
	}
}
