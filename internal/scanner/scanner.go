// Package scanner implements the per-(product,shop) scraper template of
// spec.md §4.5: resolve a URL via internal/search, synthesize a result from
// search-page data when available, otherwise load the product page and
// extract price/availability. Any unhandled extractor error degrades to a
// "not found" result rather than propagating -- per-product errors never
// escape this package (spec.md §7).
package scanner

import (
	"context"
	"strings"
	"time"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/priceparse"
	"github.com/pricewatch/scan-core/internal/search"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "scanner"

// ScrapeProduct runs the full §4.5 flow: search for a URL, then either
// synthesize from search-page data or load the product page.
func ScrapeProduct(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, product domain.ResolvedProduct) domain.ExtractionResult {
	now := time.Now()

	nav, err := search.SearchProduct(ctx, ex, shop, product)
	if err != nil {
		log.WithComponentAndFields(component, log.Fields{"productId": product.ID, "shopId": shop.ID, "error": err.Error()}).Warn("product search failed")
		return notFound(product.ID, shop.ID, now)
	}
	if nav == nil {
		return notFound(product.ID, shop.ID, now)
	}

	if nav.SearchPageData != nil && nav.SearchPageData.HasData {
		return domain.ExtractionResult{
			ProductID:   product.ID,
			ShopID:      shop.ID,
			ProductURL:  nav.URL,
			Price:       nav.SearchPageData.Price,
			IsAvailable: nav.SearchPageData.IsAvailable,
			Timestamp:   now,
		}
	}

	if !nav.IsDirectHit {
		if err := ex.Goto(ctx, nav.URL); err != nil {
			log.WithComponentAndFields(component, log.Fields{"productId": product.ID, "shopId": shop.ID, "url": nav.URL, "error": err.Error()}).Warn("product page load failed")
			return notFound(product.ID, shop.ID, now)
		}
	}

	return extractCurrentPage(ctx, ex, shop, product.ID, nav.URL, now)
}

// ScrapeWithURL handles the Phase-2 "carried URL" path: the URL (and
// optionally search-page data) were already resolved in Phase 1, so no
// further search is needed. Passing searchData with HasData true skips the
// product-page visit entirely.
func ScrapeWithURL(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, productID, productURL string, searchData *domain.SearchPageData) domain.ExtractionResult {
	now := time.Now()

	if searchData != nil && searchData.HasData {
		return domain.ExtractionResult{
			ProductID:   productID,
			ShopID:      shop.ID,
			ProductURL:  productURL,
			Price:       searchData.Price,
			IsAvailable: searchData.IsAvailable,
			Timestamp:   now,
		}
	}

	if err := ex.Goto(ctx, productURL); err != nil {
		log.WithComponentAndFields(component, log.Fields{"productId": productID, "shopId": shop.ID, "url": productURL, "error": err.Error()}).Warn("product page load failed")
		return notFound(productID, shop.ID, now)
	}

	return extractCurrentPage(ctx, ex, shop, productID, productURL, now)
}

func extractCurrentPage(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, productID, productURL string, now time.Time) domain.ExtractionResult {
	var price *float64
	if text, ok := extractPriceText(ctx, ex, shop); ok {
		price, _ = priceparse.ParsePrice(text, localeOf(shop))
	}

	available := false
	for _, sel := range shop.Selectors.Availability {
		if ex.Exists(ctx, sel) {
			available = true
			break
		}
	}

	return domain.ExtractionResult{
		ProductID:   productID,
		ShopID:      shop.ID,
		ProductURL:  productURL,
		Price:       price,
		IsAvailable: available,
		Timestamp:   now,
	}
}

func extractPriceText(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig) (string, bool) {
	if v, ok := ex.ExtractOne(ctx, shop.Selectors.Price); ok && v != "" {
		return v, true
	}
	for _, fb := range shop.Selectors.PriceFallback {
		if v, ok := ex.ExtractOne(ctx, fb); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// notFound builds the "not found" outcome of spec.md §9: empty URL, nil
// price, unavailable. Callers must never store or dispatch this result.
func notFound(productID, shopID string, now time.Time) domain.ExtractionResult {
	return domain.ExtractionResult{ProductID: productID, ShopID: shopID, Timestamp: now}
}

func localeOf(shop domain.ShopConfig) priceparse.Locale {
	if strings.EqualFold(shop.PriceLocale, "us") {
		return priceparse.US
	}
	return priceparse.European
}
