package contract

import (
	"context"

	"github.com/pricewatch/scan-core/internal/domain"
)

// Extractor is the capability shared by the static and rendered variants:
// load a URL, then read one/many/exists by selector. Implementations must
// enforce document order for ExtractMany (spec.md §4.4, §9).
type Extractor interface {
	Goto(ctx context.Context, url string) error
	CurrentURL() string
	ExtractOne(ctx context.Context, sel domain.Selector) (string, bool)
	ExtractMany(ctx context.Context, sel domain.Selector) ([]Element, error)
	Exists(ctx context.Context, sel domain.Selector) bool
	Close() error
}

// Element is one matched node; selector kinds map onto these the same way
// regardless of which Extractor variant produced the element.
type Element interface {
	Text() string
	Attribute(name string) (string, bool)
	Find(sel domain.Selector) (Element, bool)
	FindAll(sel domain.Selector) ([]Element, error)
	Matches(text string) bool // case-insensitive substring test, selector kind "text"
	Reduce(mode domain.ExtractMode) string
}

// ExtractorFactory builds a fresh Extractor for one shop. The static
// variant returns a cheap per-call value; the rendered variant hands out a
// page bound to a shared per-cycle browser.
type ExtractorFactory interface {
	New(ctx context.Context, shop domain.ShopConfig) (Extractor, error)
}

// ExtractField resolves sel against e (trying sel.Fallback in order on a
// miss) and reduces the match to a string, scoped to e's subtree rather
// than a whole document. Used by the search navigator to read
// title/href/price/availability off a single search-results article.
//
// css is the only selector kind with a node to Find within an element's
// subtree; xpath has no engine wired at all (see internal/extract/static),
// and json-attribute addresses a whole document's embedded script blob, not
// a per-article fragment, so it is only meaningful at the document root
// (internal/extract/static.extractJSONAttribute) and is left unsupported
// here.
func ExtractField(e Element, sel domain.Selector) (string, bool) {
	if v, ok := extractFieldOne(e, sel); ok {
		return v, true
	}
	for _, fb := range sel.Fallback {
		if v, ok := extractFieldOne(e, fb); ok {
			return v, true
		}
	}
	return "", false
}

func extractFieldOne(e Element, sel domain.Selector) (string, bool) {
	switch sel.Kind {
	case domain.SelectorCSS:
		found, ok := e.Find(sel)
		if !ok {
			return "", false
		}
		v := found.Reduce(sel.Extract)
		if v == "" {
			return "", false
		}
		return v, true
	case domain.SelectorText:
		if e.Matches(sel.Text) {
			return sel.Text, true
		}
		return "", false
	default:
		return "", false
	}
}
