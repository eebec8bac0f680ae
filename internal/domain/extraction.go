package domain

import "time"

// ExtractionResult is the outcome of scraping one (product, shop) pair.
// ProductURL is empty exactly when the product was not found; such results
// are never stored and never dispatched.
type ExtractionResult struct {
	ProductID   string
	ShopID      string
	ProductURL  string
	Price       *float64
	IsAvailable bool
	Timestamp   time.Time
}

// Found reports whether the scrape located a URL for this product at this
// shop. Not-found results carry no price/availability signal.
func (r ExtractionResult) Found() bool {
	return r.ProductURL != ""
}

// HourBucket truncates the result's timestamp to the hour, the unique key
// component for the hourly-aggregated result store.
func (r ExtractionResult) HourBucket() string {
	return r.Timestamp.UTC().Format("2006-01-02T15")
}
