// Package dispatch implements the multi-user fan-out of spec.md §4.12:
// cycle-preloaded watcher/target maps (no per-scrape DB calls), synchronous
// per-result processing against the notification state machine, and a
// single batched insert at flush.
package dispatch

import (
	"context"
	"sync"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/notifystate"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/internal/pkg/mark"
	"github.com/pricewatch/scan-core/pkg/log"
)

type queuedNotification struct {
	key          domain.StateKey
	notification domain.Notification
	result       domain.ExtractionResult
}

// Dispatcher preloads watchers/targets once per cycle and fans out every
// extraction result against them with no further I/O.
type Dispatcher struct {
	watchers   contract.WatcherStore
	targets    contract.NotificationTargetStore
	sink       contract.NotificationSink
	state      *notifystate.Service
	watcherMap map[string][]domain.WatchEntry // productID -> watchers
	targetMap  map[string]domain.NotificationTarget

	mu    sync.Mutex
	queue []queuedNotification
}

func New(watchers contract.WatcherStore, targets contract.NotificationTargetStore, sink contract.NotificationSink, state *notifystate.Service) *Dispatcher {
	return &Dispatcher{watchers: watchers, targets: targets, sink: sink, state: state}
}

// PreloadForCycle performs exactly the two external reads named in
// spec.md §4.12 and returns the set of productIDs with at least one active
// subscriber.
func (d *Dispatcher) PreloadForCycle(ctx context.Context, allProductIDs []string) (map[string]bool, error) {
	watcherMap, err := d.watchers.ListActiveWatchersForProducts(ctx, allProductIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "watcher preload failed")
	}
	d.watcherMap = watcherMap

	userIDSet := make(map[string]struct{})
	for _, entries := range watcherMap {
		for _, w := range entries {
			userIDSet[w.UserID] = struct{}{}
		}
	}
	userIDs := make([]string, 0, len(userIDSet))
	for id := range userIDSet {
		userIDs = append(userIDs, id)
	}

	targetMap, err := d.targets.ListNotificationTargets(ctx, userIDs)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "notification target preload failed")
	}
	d.targetMap = targetMap

	subscribed := make(map[string]bool, len(watcherMap))
	for productID, entries := range watcherMap {
		if len(entries) > 0 {
			subscribed[productID] = true
		}
	}
	return subscribed, nil
}

// ProcessResult runs the §4.12 fan-out rules for one successfully extracted
// result; it performs no I/O.
func (d *Dispatcher) ProcessResult(product domain.Product, shop domain.ShopConfig, result domain.ExtractionResult) {
	for _, watcher := range d.watcherMap[product.ID] {
		if !watcher.IsActive {
			continue
		}
		key := domain.StateKey{UserID: watcher.UserID, ProductID: product.ID, ShopID: shop.ID}

		// ProcessWatcher updates tracked state and reports whether this
		// watcher was notify-eligible *before* that update's own reset, so a
		// same-pass price increase that resets suppression for next cycle
		// never also fires a notification this cycle (spec.md §8 scenario 3).
		shouldNotify := d.state.ProcessWatcher(key, result)

		if !result.IsAvailable || result.Price == nil {
			continue
		}
		if *result.Price > watcher.MaxPrice {
			continue
		}
		target, hasTarget := d.targetMap[watcher.UserID]
		if !hasTarget || !target.HasAnyChannel {
			continue
		}
		if !shouldNotify {
			continue
		}

		noticeMark := mark.New
		if d.state.WasEverNotified(key) {
			noticeMark = mark.Modified
		}

		notification := domain.Notification{
			UserID: watcher.UserID,
			Status: domain.PendingStatus,
			Payload: domain.NotificationPayload{
				ProductName: product.Name,
				ShopName:    shop.ID,
				ShopID:      shop.ID,
				ProductID:   product.ID,
				Price:       *result.Price,
				MaxPrice:    watcher.MaxPrice,
				ProductURL:  result.ProductURL,
				Mark:        noticeMark,
			},
			Deliveries: nil,
		}

		d.mu.Lock()
		d.queue = append(d.queue, queuedNotification{key: key, notification: notification, result: result})
		d.mu.Unlock()
	}
}

// QueueSize reports how many notifications are pending flush, for the
// cycle driver's summary log (spec.md §4.13).
func (d *Dispatcher) QueueSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// FlushNotifications inserts the enqueued notifications as a single batch,
// then marks each as notified, then clears the queue. If the batch insert
// fails, state is left untouched so the next cycle can retry.
func (d *Dispatcher) FlushNotifications(ctx context.Context) error {
	d.mu.Lock()
	batch := d.queue
	d.queue = nil
	d.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	notifications := make([]domain.Notification, len(batch))
	for i, q := range batch {
		notifications[i] = q.notification
	}

	if err := d.sink.InsertNotifications(ctx, notifications); err != nil {
		log.WithComponent("dispatch").WithError(err).Error("notification batch insert failed, state left unmarked for retry")
		return errors.Wrap(err, errors.System, "notification batch insert failed")
	}

	for _, q := range batch {
		d.state.MarkNotified(q.key, q.result)
	}
	return nil
}
