// Package breaker implements the per-shop circuit breaker of spec.md §4.8:
// cycle-scoped, trips at a consecutive-failure threshold, gates further
// Phase-1 work for that shop. Guarded per-shop by the teacher's
// pkg/concurrency.KeyedMutex so Phase-2 product tasks of unrelated shops
// never contend on a single cycle-wide lock.
package breaker

import (
	"sync"

	"github.com/pricewatch/scan-core/pkg/concurrency"
)

// DefaultThreshold is the consecutive-failure count that trips a shop.
const DefaultThreshold = 3

type shopState struct {
	consecutiveFailures int
	tripped             bool
}

// Breaker tracks trip state for every shop touched during one cycle.
type Breaker struct {
	threshold int
	mu        *concurrency.KeyedMutex[string]
	states    sync.Map // shopID -> *shopState
}

// New builds a breaker with the given consecutive-failure threshold. A
// non-positive threshold falls back to DefaultThreshold.
func New(threshold int) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Breaker{
		threshold: threshold,
		mu:        concurrency.NewKeyedMutex[string](),
	}
}

// RecordFailure increments the shop's consecutive-failure count and reports
// whether this call is the one that tripped it (first time reaching
// threshold).
func (b *Breaker) RecordFailure(shopID string) (justTripped bool) {
	_ = b.mu.WithLock(shopID, func() error {
		st := b.stateLocked(shopID)
		st.consecutiveFailures++
		if !st.tripped && st.consecutiveFailures >= b.threshold {
			st.tripped = true
			justTripped = true
		}
		return nil
	})
	return justTripped
}

// RecordSuccess clears the consecutive-failure count only; an existing trip
// is never cleared mid-cycle.
func (b *Breaker) RecordSuccess(shopID string) {
	_ = b.mu.WithLock(shopID, func() error {
		b.stateLocked(shopID).consecutiveFailures = 0
		return nil
	})
}

// IsTripped reports whether shopID's breaker has tripped this cycle.
func (b *Breaker) IsTripped(shopID string) bool {
	var tripped bool
	_ = b.mu.WithLock(shopID, func() error {
		tripped = b.stateLocked(shopID).tripped
		return nil
	})
	return tripped
}

// stateLocked must be called while holding the per-shop lock; sync.Map
// tolerates concurrent access from unrelated shop keys without a separate
// guard.
func (b *Breaker) stateLocked(shopID string) *shopState {
	actual, _ := b.states.LoadOrStore(shopID, &shopState{})
	return actual.(*shopState)
}
