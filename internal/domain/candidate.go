package domain

// Candidate is one entry drawn from a search-results page: a title/URL pair
// plus an optional fuzzy score and optional search-page price/availability.
type Candidate struct {
	Title string
	URL   string
	Score int // [0,100], order-insensitive token-set-ratio

	// SearchPageData is non-nil when the search-results page itself exposed
	// price/availability, letting the scraper template skip the product
	// page entirely.
	SearchPageData *SearchPageData
}

// SearchPageData is the subset of an ExtractionResult a search-results page
// can supply without a product-page visit.
type SearchPageData struct {
	Price       *float64
	IsAvailable bool
	HasData     bool // explicit in-stock/out-of-stock signal was present
}

// AvailabilityTier ranks a candidate for selectBestCandidate: 0 explicit
// in-stock, 1 unknown, 2 explicit out-of-stock.
func (c Candidate) AvailabilityTier() int {
	if c.SearchPageData == nil || !c.SearchPageData.HasData {
		return 1
	}
	if c.SearchPageData.IsAvailable {
		return 0
	}
	return 2
}

// SetGroup is one set's worth of products sharing a single Phase-1 search.
type SetGroup struct {
	SetID        string
	SearchPhrase string
	Products     []ResolvedProduct
}
