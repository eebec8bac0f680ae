// Package search implements the search navigator of spec.md §4.3: issuing
// one search per phrase, collecting candidates off a search-results page,
// detecting direct-hit redirects, and normalizing result URLs. The
// set-level variant (SearchSet/MatchCandidate) separates the single I/O
// call per set from the pure, reusable per-product scoring step, so one
// search backs every product sharing that set (spec.md §4.3, scenario 1).
package search

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/matcher"
	"github.com/pricewatch/scan-core/internal/priceparse"
)

// MaxProductArticles caps how many search-result articles are inspected
// when searching for a single product's URL.
const MaxProductArticles = 5

// MaxSetArticles caps how many search-result articles are collected for a
// set-level search, shared across every product in the set.
const MaxSetArticles = 20

// Result is what one product search resolves to: a product URL, whether it
// was reached via a direct-hit redirect, and any price/availability the
// search-results page itself already exposed.
type Result struct {
	URL            string
	IsDirectHit    bool
	SearchPageData *domain.SearchPageData
}

// SearchProduct issues one search per product.Phrases, in order, until one
// yields a match. It returns (nil, nil) once every phrase is exhausted with
// no match -- spec.md §4.3's "returns null only after exhausting all
// phrases".
func SearchProduct(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, product domain.ResolvedProduct) (*Result, error) {
	for _, phrase := range product.Phrases {
		result, err := searchOnePhrase(ctx, ex, shop, phrase, product.Exclude)
		if err != nil {
			return nil, err
		}
		if result != nil {
			return result, nil
		}
	}
	return nil, nil
}

func searchOnePhrase(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, phrase string, exclude []string) (*Result, error) {
	if err := ex.Goto(ctx, BuildSearchURL(shop, phrase)); err != nil {
		return nil, err
	}

	if directHitMatches(shop, ex.CurrentURL()) {
		if title, ok := ex.ExtractOne(ctx, shop.Selectors.ProductTitle); ok {
			if score, valid := matcher.ValidateTitle(title, phrase, exclude); valid && score >= matcher.DirectHitScore {
				return &Result{URL: ex.CurrentURL(), IsDirectHit: true}, nil
			}
		}
		// Direct-hit rejected (below DirectHitScore, or no title found):
		// fall through to the article-list search (spec.md §4.3, scenario 5).
	}

	articles, err := ex.ExtractMany(ctx, shop.Selectors.SearchArticle)
	if err != nil {
		return nil, err
	}
	if len(articles) > MaxProductArticles {
		articles = articles[:MaxProductArticles]
	}

	var candidates []domain.Candidate
	for _, article := range articles {
		title, href := articleFields(article, shop)
		if title == "" || href == "" {
			continue
		}
		score, valid := matcher.ValidateTitle(title, phrase, exclude)
		if !valid {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Title:          title,
			URL:            NormalizeURL(shop.BaseURL, href),
			Score:          score,
			SearchPageData: deriveSearchPageData(article, shop),
		})
	}

	best, ok := matcher.SelectBestCandidate(candidates)
	if !ok {
		return nil, nil
	}
	return &Result{URL: best.URL, SearchPageData: best.SearchPageData}, nil
}

// SearchSet issues a single search for a set's phrase and returns up to
// MaxSetArticles raw candidates, unscored and unfiltered -- per-product
// matching happens afterward, with no further I/O, via MatchCandidate.
func SearchSet(ctx context.Context, ex contract.Extractor, shop domain.ShopConfig, phrase string) ([]domain.Candidate, error) {
	if err := ex.Goto(ctx, BuildSearchURL(shop, phrase)); err != nil {
		return nil, err
	}

	articles, err := ex.ExtractMany(ctx, shop.Selectors.SearchArticle)
	if err != nil {
		return nil, err
	}
	if len(articles) > MaxSetArticles {
		articles = articles[:MaxSetArticles]
	}

	var candidates []domain.Candidate
	for _, article := range articles {
		title, href := articleFields(article, shop)
		if title == "" || href == "" {
			continue
		}
		candidates = append(candidates, domain.Candidate{
			Title:          title,
			URL:            NormalizeURL(shop.BaseURL, href),
			SearchPageData: deriveSearchPageData(article, shop),
		})
	}
	return candidates, nil
}

// MatchCandidate is the pure (no-I/O) per-product scoring step that reuses
// a set-level candidate list cached across every product in the set: score
// each candidate against phrase/exclude, then rank with the same
// availability/price/score priority as a per-product search.
func MatchCandidate(candidates []domain.Candidate, phrase string, exclude []string) (domain.Candidate, bool) {
	scored := make([]domain.Candidate, 0, len(candidates))
	for _, c := range candidates {
		score, valid := matcher.ValidateTitle(c.Title, phrase, exclude)
		if !valid {
			continue
		}
		c.Score = score
		scored = append(scored, c)
	}
	return matcher.SelectBestCandidate(scored)
}

// BuildSearchURL substitutes phrase into shop.SearchURLTemplate's "{query}"
// placeholder, or appends it URL-encoded when the template has none.
func BuildSearchURL(shop domain.ShopConfig, phrase string) string {
	encoded := url.QueryEscape(phrase)
	if strings.Contains(shop.SearchURLTemplate, "{query}") {
		return strings.Replace(shop.SearchURLTemplate, "{query}", encoded, 1)
	}
	return shop.SearchURLTemplate + encoded
}

// NormalizeURL resolves href against base per spec.md §4.3: an absolute
// URL passes through, "//host/path" gains an https scheme, "/path" is
// resolved against base's scheme+host, and anything else is joined as a
// path suffix.
func NormalizeURL(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}

	baseURL, err := url.Parse(base)
	if err != nil || baseURL.Host == "" {
		return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(href, "/")
	}
	if strings.HasPrefix(href, "/") {
		return baseURL.Scheme + "://" + baseURL.Host + href
	}
	return strings.TrimSuffix(base, "/") + "/" + href
}

func directHitMatches(shop domain.ShopConfig, currentURL string) bool {
	if shop.DirectHitPattern == "" {
		return false
	}
	re, err := regexp.Compile(shop.DirectHitPattern)
	if err != nil {
		return false
	}
	return re.MatchString(currentURL)
}

func articleFields(article contract.Element, shop domain.ShopConfig) (title, href string) {
	title, _ = contract.ExtractField(article, shop.Selectors.SearchTitle)
	href, _ = contract.ExtractField(article, shop.Selectors.SearchURL)
	return title, href
}

// deriveSearchPageData reads an optional price/availability signal directly
// off a search-results article, letting the scraper template skip the
// product page entirely when present (spec.md §4.5 step 2). A shop with no
// Availability selectors configured never reports search-page data at all:
// AvailabilityTier then falls back to "unknown" rather than a false signal.
func deriveSearchPageData(article contract.Element, shop domain.ShopConfig) *domain.SearchPageData {
	if len(shop.Selectors.Availability) == 0 {
		return nil
	}

	available := false
	for _, sel := range shop.Selectors.Availability {
		if _, ok := contract.ExtractField(article, sel); ok {
			available = true
			break
		}
	}

	return &domain.SearchPageData{
		IsAvailable: available,
		HasData:     true,
		Price:       extractArticlePrice(article, shop),
	}
}

func extractArticlePrice(article contract.Element, shop domain.ShopConfig) *float64 {
	selectors := append([]domain.Selector{shop.Selectors.Price}, shop.Selectors.PriceFallback...)
	for _, sel := range selectors {
		if sel.Empty() {
			continue
		}
		text, ok := contract.ExtractField(article, sel)
		if !ok {
			continue
		}
		if price, ok := priceparse.ParsePrice(text, localeOf(shop)); ok {
			return price
		}
	}
	return nil
}

func localeOf(shop domain.ShopConfig) priceparse.Locale {
	if strings.EqualFold(shop.PriceLocale, "us") {
		return priceparse.US
	}
	return priceparse.European
}
