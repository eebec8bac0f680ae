package setgroup

import (
	"testing"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroup_GenericSetAutoExcludesSiblings(t *testing.T) {
	sets := map[string]domain.ProductSet{
		"promos":      {ID: "promos", Name: "Promos", Series: "Promos"},
		"promos-swsh": {ID: "promos-swsh", Name: "Promos SWSH", Series: "Promos"},
	}
	products := []domain.ResolvedProduct{
		{Product: domain.Product{ID: "p1", SetID: "promos"}, Phrases: []string{"promos"}},
	}

	groups, ungrouped := Group(products, sets)
	require.Len(t, groups, 1)
	assert.Empty(t, ungrouped)
	assert.Contains(t, groups[0].Products[0].Exclude, "promos swsh")
}

func TestGroup_NonGenericSetNoAutoExclude(t *testing.T) {
	sets := map[string]domain.ProductSet{
		"base": {ID: "base", Name: "Base Set", Series: "Original"},
	}
	products := []domain.ResolvedProduct{
		{Product: domain.Product{ID: "p1", SetID: "base"}, Phrases: []string{"base set"}},
	}
	groups, _ := Group(products, sets)
	require.Len(t, groups, 1)
	assert.Empty(t, groups[0].Products[0].Exclude)
}

func TestGroup_UngroupedWhenNoSetOrUnknownSet(t *testing.T) {
	products := []domain.ResolvedProduct{
		{Product: domain.Product{ID: "p1"}},
		{Product: domain.Product{ID: "p2", SetID: "missing"}},
	}
	groups, ungrouped := Group(products, map[string]domain.ProductSet{})
	assert.Empty(t, groups)
	assert.Len(t, ungrouped, 2)
}
