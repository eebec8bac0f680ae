// Package domain holds the data model shared by every package in the scan
// core: catalog entries, shop configuration, extraction results, and the
// per-user notification state. Nothing here performs I/O.
package domain

// Product is one catalog entry. Owned by external CRUD; the core reads the
// catalog once per cycle and never writes it back.
type Product struct {
	ID            string
	Name          string
	SetID         string // empty if the product belongs to no set
	ProductTypeID string // empty if the product has no type
	Search        *ProductSearchOverride
	Disabled      bool
}

// ProductSearchOverride is a product-level search customization. When
// Override is true, the resolver uses only Phrases/Exclude and ignores the
// product's type and set entirely.
type ProductSearchOverride struct {
	Phrases  []string
	Exclude  []string
	Override bool
}

// ProductType carries the default search phrases/excludes shared by every
// product referencing it.
type ProductType struct {
	ID      string
	Phrases []string
	Exclude []string
}

// ProductSet groups products under a shared series. A set is generic when
// its Name equals its Series — such sets get sibling-set names folded into
// every member's effective excludes (see the set grouper).
type ProductSet struct {
	ID          string
	Name        string
	Series      string
	ReleaseDate string // ISO-8601 date, optional
}

// IsGeneric reports whether this set's name is indistinguishable from its
// series, the trigger for sibling-set auto-exclusion.
func (s ProductSet) IsGeneric() bool {
	return s.Name == s.Series
}

// ResolvedProduct is the cycle-local, resolver-derived view of a Product:
// guaranteed at least one search phrase, excludes merged from every source
// that applies. Unresolvable products never reach this type.
type ResolvedProduct struct {
	Product
	Phrases []string
	Exclude []string
}
