// Package monitor is the cycle driver of spec.md §4.13 (component M): the
// single entry point a cron-invoked binary calls once per invocation. It
// wires every other package's cycle-scoped instance together, runs the
// static cycle then the rendered cycle, and flushes results, notifications,
// and notification state in that fixed order.
package monitor

import (
	"context"
	"runtime"

	"github.com/pricewatch/scan-core/internal/breaker"
	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/cycle"
	"github.com/pricewatch/scan-core/internal/dispatch"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/notifystate"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/internal/resolver"
	"github.com/pricewatch/scan-core/internal/resultbuf"
	"github.com/pricewatch/scan-core/internal/setgroup"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "monitor"

// CycleResult is what RunCycle returns: enough for cmd to log a summary and
// choose an exit code, without cmd reaching into any package's internals.
type CycleResult struct {
	Resolved            int
	Skipped             int
	ShopStats           []cycle.ShopStats
	NotificationsQueued int
}

// Monitor holds every external collaborator the cycle driver reads from or
// writes to, plus the two extractor factories. All fields are read-only
// for the lifetime of a Monitor; cycle-scoped state (breaker, buffers,
// dispatcher queue) is built fresh inside RunCycle.
type Monitor struct {
	shops         contract.ShopConfigLoader
	catalog       contract.CatalogStore
	watchers      contract.WatcherStore
	targets       contract.NotificationTargetStore
	states        contract.NotificationStateStore
	resultSink    contract.ResultSink
	notifications contract.NotificationSink

	staticFactory   contract.ExtractorFactory
	renderedFactory contract.ExtractorFactory

	breakerThreshold int
}

// New builds a Monitor. breakerThreshold <= 0 falls back to
// breaker.DefaultThreshold.
func New(
	shops contract.ShopConfigLoader,
	catalog contract.CatalogStore,
	watchers contract.WatcherStore,
	targets contract.NotificationTargetStore,
	states contract.NotificationStateStore,
	resultSink contract.ResultSink,
	notifications contract.NotificationSink,
	staticFactory, renderedFactory contract.ExtractorFactory,
	breakerThreshold int,
) *Monitor {
	return &Monitor{
		shops:            shops,
		catalog:          catalog,
		watchers:         watchers,
		targets:          targets,
		states:           states,
		resultSink:       resultSink,
		notifications:    notifications,
		staticFactory:    staticFactory,
		renderedFactory:  renderedFactory,
		breakerThreshold: breakerThreshold,
	}
}

// RunCycle executes exactly one scan cycle end to end per spec.md §4.13.
func (m *Monitor) RunCycle(ctx context.Context) (CycleResult, error) {
	shopConfigs, err := m.shops.ListEnabledShops(ctx)
	if err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: shop config load failed")
	}

	products, err := m.catalog.ListActiveProducts(ctx)
	if err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: product catalog load failed")
	}

	allProductIDs := make([]string, len(products))
	for i, p := range products {
		allProductIDs[i] = p.ID
	}

	state := notifystate.New(m.states)
	dispatcher := dispatch.New(m.watchers, m.targets, m.notifications, state)

	subscribed, err := dispatcher.PreloadForCycle(ctx, allProductIDs)
	if err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: dispatcher preload failed")
	}

	subscribedIDs := make([]string, 0, len(subscribed))
	for productID := range subscribed {
		subscribedIDs = append(subscribedIDs, productID)
	}
	if err := state.LoadForCycle(ctx, subscribedIDs); err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: notification state load failed")
	}

	sets, err := m.catalog.ListProductSets(ctx)
	if err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: product set load failed")
	}
	types, err := m.catalog.ListProductTypes(ctx)
	if err != nil {
		return CycleResult{}, errors.Wrap(err, errors.Internal, "cycle aborted: product type load failed")
	}
	setsByID := indexSets(sets)
	typesByID := indexTypes(types)

	resolved, skipped := resolveProducts(products, typesByID, setsByID)
	groups, ungrouped := setgroup.Group(resolved, setsByID)

	log.WithComponentAndFields(component, log.Fields{
		"shops":     len(shopConfigs),
		"resolved":  len(resolved),
		"skipped":   skipped,
		"setGroups": len(groups),
		"ungrouped": len(ungrouped),
	}).Info("cycle resolved, starting scan")

	brk := breaker.New(m.breakerThreshold)
	results := resultbuf.New(m.resultSink)
	runner := cycle.NewRunner(m.staticFactory, m.renderedFactory, brk, results, dispatcher)

	staticShops, renderedShops := partitionShops(shopConfigs)

	shopStats := runner.RunStatic(ctx, staticShops, groups, ungrouped)

	runtime.GC()

	shopStats = append(shopStats, runner.RunRendered(ctx, renderedShops, groups, ungrouped)...)

	notificationsQueued := dispatcher.QueueSize()

	var firstErr error
	if err := results.Flush(ctx); err != nil {
		log.WithComponentAndFields(component, log.Fields{"error": err.Error()}).Error("result flush failed")
		firstErr = err
	}
	results.Clear()

	if err := dispatcher.FlushNotifications(ctx); err != nil {
		log.WithComponentAndFields(component, log.Fields{"error": err.Error()}).Error("notification flush failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := state.FlushChanges(ctx); err != nil {
		log.WithComponentAndFields(component, log.Fields{"error": err.Error()}).Error("notification state flush failed")
		if firstErr == nil {
			firstErr = err
		}
	}

	result := CycleResult{
		Resolved:            len(resolved),
		Skipped:             skipped,
		ShopStats:           shopStats,
		NotificationsQueued: notificationsQueued,
	}

	log.WithComponentAndFields(component, log.Fields{
		"resolved": result.Resolved,
		"skipped":  result.Skipped,
		"shops":    len(result.ShopStats),
	}).Info("cycle complete")

	if firstErr != nil {
		return result, errors.Wrap(firstErr, errors.Internal, "cycle completed with flush errors")
	}
	return result, nil
}

func resolveProducts(products []domain.Product, types map[string]domain.ProductType, sets map[string]domain.ProductSet) (resolved []domain.ResolvedProduct, skipped int) {
	for _, p := range products {
		if p.Disabled {
			skipped++
			continue
		}
		rp, ok := resolver.Resolve(p, types, sets)
		if !ok {
			skipped++
			continue
		}
		resolved = append(resolved, rp)
	}
	return resolved, skipped
}

func partitionShops(shops []domain.ShopConfig) (static, rendered []domain.ShopConfig) {
	for _, s := range shops {
		switch s.Engine {
		case domain.EngineRendered:
			rendered = append(rendered, s)
		default:
			static = append(static, s)
		}
	}
	return static, rendered
}

func indexSets(sets []domain.ProductSet) map[string]domain.ProductSet {
	out := make(map[string]domain.ProductSet, len(sets))
	for _, s := range sets {
		out[s.ID] = s
	}
	return out
}

func indexTypes(types []domain.ProductType) map[string]domain.ProductType {
	out := make(map[string]domain.ProductType, len(types))
	for _, t := range types {
		out[t.ID] = t
	}
	return out
}
