// Package contract names every external boundary the scan core reads from
// or writes to. No implementation lives here. Production storage drivers
// are out of scope (spec.md §1); the module's own implementations are the
// shop-config file loader (internal/shopconfig) and the JSON-file
// reference stores (internal/filestore).
package contract

import (
	"context"

	"github.com/pricewatch/scan-core/internal/domain"
)

// ShopConfigLoader reads the enabled shop configurations for a cycle.
type ShopConfigLoader interface {
	ListEnabledShops(ctx context.Context) ([]domain.ShopConfig, error)
}

// CatalogStore is the read side of the product/set/type catalog.
type CatalogStore interface {
	ListActiveProducts(ctx context.Context) ([]domain.Product, error)
	ListProductSets(ctx context.Context) ([]domain.ProductSet, error)
	ListProductTypes(ctx context.Context) ([]domain.ProductType, error)
}

// WatcherStore preloads active per-user watch entries.
type WatcherStore interface {
	// ListActiveWatchersForProducts returns only active watchers whose
	// ProductID is in productIDs, grouped by ProductID.
	ListActiveWatchersForProducts(ctx context.Context, productIDs []string) (map[string][]domain.WatchEntry, error)
}

// NotificationTargetStore preloads delivery targets for a set of users.
// Implementations must exclude users with no channel.
type NotificationTargetStore interface {
	ListNotificationTargets(ctx context.Context, userIDs []string) (map[string]domain.NotificationTarget, error)
}

// NotificationStateStore is the persistent per-(user,product,shop) state.
type NotificationStateStore interface {
	LoadNotificationStates(ctx context.Context, productIDs []string) (map[domain.StateKey]domain.NotificationState, error)
	UpsertNotificationStates(ctx context.Context, upserts map[domain.StateKey]domain.NotificationState) error
	DeleteNotificationStates(ctx context.Context, keys []domain.StateKey) error
}

// ResultSink is the hourly-aggregated ExtractionResult store.
type ResultSink interface {
	// UpsertResults applies the hourly-bucket upsert semantics of spec.md §6
	// in a single batch.
	UpsertResults(ctx context.Context, results []domain.ExtractionResult) error
}

// NotificationSink accepts the batch of newly emitted notifications.
type NotificationSink interface {
	InsertNotifications(ctx context.Context, notifications []domain.Notification) error
}
