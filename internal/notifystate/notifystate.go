// Package notifystate implements the per-(user,product,shop) notification
// state machine of spec.md §4.11: suppresses duplicate alerts, resets on
// stockout or price increase, and buffers upserts/deletes for a single
// flush at cycle end. Guarded by the teacher's
// pkg/concurrency.KeyedMutex so unrelated (user,product,shop) triples never
// contend.
package notifystate

import (
	"context"
	"sync"
	"time"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/pkg/concurrency"
)

// Clock lets tests control "now"; production code uses time.Now.
type Clock func() time.Time

// Service holds the in-memory state map loaded at cycle start plus the two
// pending-change buffers (upserts, deletes).
type Service struct {
	store contract.NotificationStateStore
	clock Clock

	mu       *concurrency.KeyedMutex[domain.StateKey]
	states   sync.Map // domain.StateKey -> domain.NotificationState
	everSeen sync.Map // domain.StateKey -> struct{}, populated once at LoadForCycle

	upsertMu sync.Mutex
	upserts  map[domain.StateKey]domain.NotificationState
	deletes  map[domain.StateKey]struct{}
}

func New(store contract.NotificationStateStore) *Service {
	return &Service{
		store:   store,
		clock:   time.Now,
		mu:      concurrency.NewKeyedMutex[domain.StateKey](),
		upserts: make(map[domain.StateKey]domain.NotificationState),
		deletes: make(map[domain.StateKey]struct{}),
	}
}

// LoadForCycle preloads state restricted to productIDs, per spec.md §4.13.
func (s *Service) LoadForCycle(ctx context.Context, productIDs []string) error {
	states, err := s.store.LoadNotificationStates(ctx, productIDs)
	if err != nil {
		return errors.Wrap(err, errors.Internal, "notification state preload failed")
	}
	for k, v := range states {
		s.states.Store(k, v)
		s.everSeen.Store(k, struct{}{})
	}
	return nil
}

// WasEverNotified reports whether (u,p,s) already had a persisted
// NotificationState at the start of this cycle -- i.e. this is not the
// very first notification ever sent for that key, even if a stockout or
// price-increase reset has since cleared its in-memory entry. Used only to
// pick a display Mark (mark.New vs. mark.Modified); it never affects
// ShouldNotify/MarkNotified/UpdateTrackedState semantics.
func (s *Service) WasEverNotified(key domain.StateKey) bool {
	_, ok := s.everSeen.Load(key)
	return ok
}

// ShouldNotify reports whether (u,p,s) has never been notified: either no
// entry exists, or its LastNotifiedAt is nil.
func (s *Service) ShouldNotify(key domain.StateKey) bool {
	var should bool
	_ = s.mu.WithLock(key, func() error {
		should = s.shouldNotifyLocked(key)
		return nil
	})
	return should
}

func (s *Service) shouldNotifyLocked(key domain.StateKey) bool {
	v, ok := s.states.Load(key)
	if !ok {
		return true
	}
	return v.(domain.NotificationState).LastNotifiedAt == nil
}

// MarkNotified sets the state to {now, result.Price, result.IsAvailable},
// cancels any pending delete, and enqueues an upsert.
func (s *Service) MarkNotified(key domain.StateKey, result domain.ExtractionResult) {
	_ = s.mu.WithLock(key, func() error {
		now := s.clock()
		state := domain.NotificationState{
			LastNotifiedAt: &now,
			LastPrice:      result.Price,
			WasAvailable:   result.IsAvailable,
		}
		s.states.Store(key, state)

		s.upsertMu.Lock()
		delete(s.deletes, key)
		s.upserts[key] = state
		s.upsertMu.Unlock()
		return nil
	})
}

// UpdateTrackedState is called for every fan-out, regardless of whether the
// notification criterion was met. If a prior notified state exists and
// either the product went out of stock or its price rose since the last
// alert, the state resets: dropped from memory, upsert cancelled, delete
// enqueued.
func (s *Service) UpdateTrackedState(key domain.StateKey, result domain.ExtractionResult) {
	_ = s.mu.WithLock(key, func() error {
		s.updateTrackedStateLocked(key, result)
		return nil
	})
}

// updateTrackedStateLocked must be called while holding key's lock.
func (s *Service) updateTrackedStateLocked(key domain.StateKey, result domain.ExtractionResult) {
	v, ok := s.states.Load(key)
	if !ok {
		return
	}
	state := v.(domain.NotificationState)
	if state.LastNotifiedAt == nil {
		return
	}

	wentOutOfStock := state.WasAvailable && !result.IsAvailable
	pricedHigher := state.LastPrice != nil && result.Price != nil && *result.Price > *state.LastPrice
	if !wentOutOfStock && !pricedHigher {
		return
	}

	s.states.Delete(key)

	s.upsertMu.Lock()
	delete(s.upserts, key)
	s.deletes[key] = struct{}{}
	s.upsertMu.Unlock()
}

// ProcessWatcher combines a fan-out's state update with its notify decision
// atomically, so a reset this very call performs (stockout or price
// increase) never lets ShouldNotify observe its own just-cleared state.
// Per spec.md §8 scenario 3's worked example, a price increase that stays
// within budget resets suppression for *future* cycles -- it must not itself
// fire a notification in the same pass that detects it. The returned
// shouldNotify reflects the state as it stood before this call's reset, not
// after.
func (s *Service) ProcessWatcher(key domain.StateKey, result domain.ExtractionResult) (shouldNotify bool) {
	_ = s.mu.WithLock(key, func() error {
		shouldNotify = s.shouldNotifyLocked(key)
		s.updateTrackedStateLocked(key, result)
		return nil
	})
	return shouldNotify
}

// FlushChanges executes the batched upserts then the batched deletes, then
// clears both buffers unconditionally (even on failure), per spec.md §4.11.
func (s *Service) FlushChanges(ctx context.Context) error {
	s.upsertMu.Lock()
	upserts := s.upserts
	deletes := s.deletes
	s.upserts = make(map[domain.StateKey]domain.NotificationState)
	s.deletes = make(map[domain.StateKey]struct{})
	s.upsertMu.Unlock()

	var firstErr error

	if len(upserts) > 0 {
		if err := s.store.UpsertNotificationStates(ctx, upserts); err != nil {
			firstErr = errors.Wrap(err, errors.System, "notification state upsert flush failed")
		}
	}
	if len(deletes) > 0 {
		keys := make([]domain.StateKey, 0, len(deletes))
		for k := range deletes {
			keys = append(keys, k)
		}
		if err := s.store.DeleteNotificationStates(ctx, keys); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.System, "notification state delete flush failed")
		}
	}

	return firstErr
}
