// Package resultbuf is the append-only, cycle-scoped result buffer of
// spec.md §4.10: results accumulate concurrently from Phase-2 product
// tasks, then flush as a single hourly-bucket upsert batch.
package resultbuf

import (
	"context"
	"sync"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

// Buffer is safe for concurrent Add calls; flush runs only after all
// Phase-2 tasks for the cycle have returned.
type Buffer struct {
	mu      sync.Mutex
	results []domain.ExtractionResult
	sink    contract.ResultSink
}

func New(sink contract.ResultSink) *Buffer {
	return &Buffer{sink: sink}
}

// Add appends one result. Not-found results (empty ProductURL) must never
// be passed here — callers enforce that per spec.md §9.
func (b *Buffer) Add(result domain.ExtractionResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = append(b.results, result)
}

// Size returns the number of buffered results.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.results)
}

// Snapshot returns a read-only copy of the buffered results, for tests and
// baseline tooling (spec.md §9) rather than reaching into the struct.
func (b *Buffer) Snapshot() []domain.ExtractionResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.ExtractionResult, len(b.results))
	copy(out, b.results)
	return out
}

// Flush upserts every buffered result in one batch, per the hourly-bucket
// semantics of spec.md §6: (productId, shopId, hourBucket) overwrites
// price/URL/availability/timestamp and increments scanCount server-side.
func (b *Buffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	batch := b.results
	b.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := b.sink.UpsertResults(ctx, batch); err != nil {
		return errors.Wrap(err, errors.System, "result buffer flush failed")
	}
	return nil
}

// Clear empties the buffer. Called unconditionally after Flush returns,
// success or failure, to avoid re-emitting stale results next cycle.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.results = nil
}
