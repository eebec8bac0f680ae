// Package setgroup partitions resolved products by set and enriches generic
// sets with sibling-set auto-excludes (spec.md §4.7).
package setgroup

import (
	"strings"

	"github.com/pricewatch/scan-core/internal/domain"
)

// Group builds one SetGroup per set referenced by a resolved product, plus
// the slice of products with no resolvable set ("ungrouped"). Members of a
// generic set (name == series) get every sibling set's lowercased name
// folded into their effective Exclude.
func Group(products []domain.ResolvedProduct, sets map[string]domain.ProductSet) (groups []domain.SetGroup, ungrouped []domain.ResolvedProduct) {
	seriesIndex := buildSeriesIndex(sets)

	bySet := make(map[string][]domain.ResolvedProduct)
	var setOrder []string

	for _, p := range products {
		set, ok := sets[p.SetID]
		if p.SetID == "" || !ok {
			ungrouped = append(ungrouped, p)
			continue
		}
		if _, seen := bySet[set.ID]; !seen {
			setOrder = append(setOrder, set.ID)
		}
		bySet[set.ID] = append(bySet[set.ID], p)
	}

	for _, setID := range setOrder {
		set := sets[setID]
		members := bySet[setID]

		if set.IsGeneric() {
			siblings := seriesIndex[set.Series]
			var siblingExcludes []string
			for _, name := range siblings {
				if strings.EqualFold(name, set.Name) {
					continue
				}
				siblingExcludes = append(siblingExcludes, strings.ToLower(name))
			}
			enriched := make([]domain.ResolvedProduct, len(members))
			for i, m := range members {
				m.Exclude = append(append([]string{}, m.Exclude...), siblingExcludes...)
				enriched[i] = m
			}
			members = enriched
		}

		groups = append(groups, domain.SetGroup{
			SetID:        set.ID,
			SearchPhrase: set.Name,
			Products:     members,
		})
	}

	return groups, ungrouped
}

func buildSeriesIndex(sets map[string]domain.ProductSet) map[string][]string {
	index := make(map[string][]string)
	for _, s := range sets {
		index[s.Series] = append(index[s.Series], s.Name)
	}
	return index
}
