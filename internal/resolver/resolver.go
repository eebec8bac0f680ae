// Package resolver merges a product's own search overrides with its
// product-type and set context into a ResolvedProduct (spec.md §4.6).
package resolver

import (
	"strings"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/pkg/log"
)

// Resolve merges product, its ProductType (by typeID), and its ProductSet
// (by setID) into a ResolvedProduct. It returns (zero, false) when the
// product is unresolvable per the priority rules in spec.md §4.6.
func Resolve(product domain.Product, types map[string]domain.ProductType, sets map[string]domain.ProductSet) (domain.ResolvedProduct, bool) {
	ownPhrases, ownExclude := ownSearch(product)

	if product.ProductTypeID == "" {
		if len(ownPhrases) == 0 {
			logUnresolvable(product, "no type and no own phrases")
			return domain.ResolvedProduct{}, false
		}
		return domain.ResolvedProduct{Product: product, Phrases: dedupe(ownPhrases), Exclude: dedupe(ownExclude)}, true
	}

	pt, known := types[product.ProductTypeID]
	if !known {
		if len(ownPhrases) == 0 {
			logUnresolvable(product, "unknown product type and no own phrases")
			return domain.ResolvedProduct{}, false
		}
		return domain.ResolvedProduct{Product: product, Phrases: dedupe(ownPhrases), Exclude: dedupe(ownExclude)}, true
	}

	if product.Search != nil && product.Search.Override {
		if len(ownPhrases) == 0 {
			logUnresolvable(product, "override set but no own phrases")
			return domain.ResolvedProduct{}, false
		}
		return domain.ResolvedProduct{Product: product, Phrases: dedupe(ownPhrases), Exclude: dedupe(ownExclude)}, true
	}

	var typePhrases []string
	if product.SetID != "" {
		if set, ok := sets[product.SetID]; ok {
			for _, tp := range pt.Phrases {
				typePhrases = append(typePhrases, strings.ToLower(set.Name+" "+tp))
			}
		}
	}
	// typePhrases stays empty when the product has no set: too generic to
	// search on the bare type phrase alone (spec.md §4.6 rule 4).

	finalPhrases := dedupe(append(append([]string{}, ownPhrases...), typePhrases...))
	finalExclude := dedupe(append(append([]string{}, pt.Exclude...), ownExclude...))

	if len(finalPhrases) == 0 {
		logUnresolvable(product, "merge produced zero phrases")
		return domain.ResolvedProduct{}, false
	}

	return domain.ResolvedProduct{Product: product, Phrases: finalPhrases, Exclude: finalExclude}, true
}

func ownSearch(p domain.Product) (phrases, exclude []string) {
	if p.Search == nil {
		return nil, nil
	}
	return p.Search.Phrases, p.Search.Exclude
}

// dedupe is case-insensitive, first-occurrence wins. Applying it twice is
// idempotent (spec.md §8).
func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		key := strings.ToLower(item)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func logUnresolvable(p domain.Product, reason string) {
	log.WithComponentAndFields("resolver", log.Fields{
		"productId": p.ID,
		"reason":    reason,
	}).Warn("product unresolvable, dropping from cycle")
}
