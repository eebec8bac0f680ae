// Package filestore is a JSON-file-backed reference implementation of
// every internal/contract store, for local runs and the seed scenarios in
// spec.md §8 -- not a production driver. The catalog/watcher/notification
// stores are interfaces in internal/contract; this package is their one
// shipped implementation, so cmd/scan-core has something real to run
// against, the same way a demo would hand-roll a
// flat-file store rather than standing up a database.
package filestore

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

// CatalogDocument is the single JSON document a Catalog reads: the full
// product/set/type/watcher/target snapshot for one cycle. Owned externally
// in a real deployment; here it is just a file on disk.
type CatalogDocument struct {
	Products []domain.Product             `json:"products"`
	Sets     []domain.ProductSet          `json:"sets"`
	Types    []domain.ProductType         `json:"types"`
	Watchers []domain.WatchEntry          `json:"watchers"`
	Targets  []domain.NotificationTarget  `json:"targets"`
}

// LoadCatalogDocument reads and decodes a CatalogDocument from path.
func LoadCatalogDocument(path string) (*CatalogDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "filestore: catalog document unreadable")
	}
	var doc CatalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "filestore: catalog document malformed")
	}
	return &doc, nil
}

// Catalog implements contract.CatalogStore over an in-memory
// CatalogDocument snapshot.
type Catalog struct {
	doc *CatalogDocument
}

func NewCatalog(doc *CatalogDocument) *Catalog {
	return &Catalog{doc: doc}
}

func (c *Catalog) ListActiveProducts(_ context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, 0, len(c.doc.Products))
	for _, p := range c.doc.Products {
		if !p.Disabled {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Catalog) ListProductSets(_ context.Context) ([]domain.ProductSet, error) {
	return c.doc.Sets, nil
}

func (c *Catalog) ListProductTypes(_ context.Context) ([]domain.ProductType, error) {
	return c.doc.Types, nil
}

// Watchers implements contract.WatcherStore over the same document.
type Watchers struct {
	doc *CatalogDocument
}

func NewWatchers(doc *CatalogDocument) *Watchers {
	return &Watchers{doc: doc}
}

func (w *Watchers) ListActiveWatchersForProducts(_ context.Context, productIDs []string) (map[string][]domain.WatchEntry, error) {
	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string][]domain.WatchEntry)
	for _, w := range w.doc.Watchers {
		if !w.IsActive {
			continue
		}
		if _, ok := wanted[w.ProductID]; !ok {
			continue
		}
		out[w.ProductID] = append(out[w.ProductID], w)
	}
	return out, nil
}

// Targets implements contract.NotificationTargetStore over the same
// document.
type Targets struct {
	doc *CatalogDocument
}

func NewTargets(doc *CatalogDocument) *Targets {
	return &Targets{doc: doc}
}

func (t *Targets) ListNotificationTargets(_ context.Context, userIDs []string) (map[string]domain.NotificationTarget, error) {
	wanted := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = struct{}{}
	}

	out := make(map[string]domain.NotificationTarget, len(userIDs))
	for _, target := range t.doc.Targets {
		if !target.HasAnyChannel {
			continue
		}
		if _, ok := wanted[target.UserID]; !ok {
			continue
		}
		out[target.UserID] = target
	}
	return out, nil
}
