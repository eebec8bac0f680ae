// Package static is the HTTP+goquery variant of internal/contract.Extractor,
// built on the fetcher/scraper middleware chain adapted from the teacher's
// internal/service/task/{fetcher,scraper}. It differs from that chain in one
// deliberate way: retries follow the fixed schedule (immediate, +2s, +5s)
// instead of fetcher.RetryFetcher's exponential backoff, because the scan
// cycle needs a bounded, predictable per-shop retry cost rather than a
// server-friendly backoff curve.
package static

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"golang.org/x/net/html"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/extract/static/fetcher"
	"github.com/pricewatch/scan-core/internal/extract/static/scraper"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "extract.static"

// fixedRetryDelays is the backoff schedule of spec.md §4.4: the first retry
// follows 2 seconds after the initial attempt, the second 5 seconds after
// that. Index i holds the wait before attempt i (attempt 0 is immediate);
// attempts past the end of the slice reuse its last entry.
var fixedRetryDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second}

// maxAttemptsEnv overrides how many attempts fixedRetryDelays is consulted
// for. Unset or invalid values keep the default.
const maxAttemptsEnv = "MAX_RETRY_ATTEMPTS"

// defaultRetryAttempts is MAX_RETRY_ATTEMPTS's implicit value (spec.md §6):
// one retry beyond the initial attempt, i.e. 2 total attempts.
const defaultRetryAttempts = 1

func maxAttempts() int {
	if v := os.Getenv(maxAttemptsEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n + 1
		}
	}
	return defaultRetryAttempts + 1
}

// fixedScheduleFetcher retries its delegate on the schedule above rather
// than fetcher.RetryFetcher's exponential backoff, reusing the delegate's
// own status/error classification (fetcher.CheckResponseStatusWithoutReconstruct
// already folds 5xx/429 into apperrors.Unavailable, which is what decides
// whether a retry is worth attempting here).
type fixedScheduleFetcher struct {
	delegate fetcher.Fetcher
}

var _ fetcher.Fetcher = (*fixedScheduleFetcher)(nil)

func (f *fixedScheduleFetcher) Do(req *http.Request) (*http.Response, error) {
	attempts := maxAttempts()
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := fixedRetryDelays[len(fixedRetryDelays)-1]
			if i < len(fixedRetryDelays) {
				delay = fixedRetryDelays[i]
			}
			timer := time.NewTimer(delay)
			select {
			case <-req.Context().Done():
				timer.Stop()
				return nil, req.Context().Err()
			case <-timer.C:
			}
		}

		resp, err := f.delegate.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !errors.Is(err, errors.Unavailable) {
			return nil, err
		}
		log.WithComponentAndFields(component, log.Fields{"attempt": i + 1, "maxAttempts": attempts, "error": err.Error()}).Warn("static fetch attempt failed, will retry on fixed schedule")
	}
	return nil, lastErr
}

func (f *fixedScheduleFetcher) Close() error {
	return f.delegate.Close()
}

// Factory builds a static Extractor per shop. It holds no per-shop state of
// its own: every shop gets an independent fetcher/scraper chain so that one
// shop's circuit breaker trip or proxy setting never leaks into another's.
type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) New(_ context.Context, shop domain.ShopConfig) (contract.Extractor, error) {
	// shop.AntiBot.UseProxy is a declared knob with no HTTPFetcher proxy
	// wiring yet -- fetcher.WithProxy exists but nothing upstream resolves a
	// proxy URL per shop, so this is recorded rather than silently ignored.
	var chain fetcher.Fetcher = fetcher.NewHTTPFetcher()
	chain = fetcher.NewMaxBytesFetcher(chain, fetcher.NoLimit)
	chain = fetcher.NewStatusCodeFetcherWithOptions(chain, 200)
	chain = &fixedScheduleFetcher{delegate: chain}
	chain = fetcher.NewUserAgentFetcher(chain, nil, true)
	chain = fetcher.NewLoggingFetcher(chain)

	return &extractor{
		shopID:  shop.ID,
		scraper: scraper.New(chain),
	}, nil
}

// extractor is a thin, stateless-between-calls Extractor: goquery documents
// are fetched fresh on every Goto, matching the teacher's scraper.FetchHTML
// one-shot-per-call model (no persistent session/cookie jar is needed for
// static shops).
type extractor struct {
	shopID     string
	scraper    scraper.Scraper
	currentURL string
	doc        *goquery.Document
}

var _ contract.Extractor = (*extractor)(nil)

func (e *extractor) Goto(ctx context.Context, url string) error {
	doc, err := e.scraper.FetchHTMLDocument(ctx, url, nil)
	if err != nil {
		return errors.Wrapf(err, errors.Unavailable, "shop %s: fetch %s", e.shopID, url)
	}
	e.doc = doc
	e.currentURL = url
	if doc.Url != nil {
		e.currentURL = doc.Url.String()
	}
	return nil
}

func (e *extractor) CurrentURL() string {
	return e.currentURL
}

func (e *extractor) ExtractOne(ctx context.Context, sel domain.Selector) (string, bool) {
	if e.doc == nil {
		return "", false
	}
	v, ok := extractFromSelection(e.doc.Selection, sel)
	if ok {
		return v, true
	}
	for _, fb := range sel.Fallback {
		if v, ok := extractFromSelection(e.doc.Selection, fb); ok {
			return v, true
		}
	}
	return "", false
}

func (e *extractor) ExtractMany(ctx context.Context, sel domain.Selector) ([]contract.Element, error) {
	if e.doc == nil {
		return nil, errors.New(errors.ExecutionFailed, "ExtractMany called before Goto")
	}
	matches, err := selectMany(e.doc.Selection, sel)
	if err != nil {
		return nil, err
	}
	// goquery.Selection.Each walks nodes in document order already, so
	// document-order (spec.md §9) is satisfied without extra bookkeeping.
	elements := make([]contract.Element, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &element{sel: s})
	})
	return elements, nil
}

func (e *extractor) Exists(ctx context.Context, sel domain.Selector) bool {
	_, ok := e.ExtractOne(ctx, sel)
	return ok
}

func (e *extractor) Close() error {
	e.doc = nil
	return nil
}

// element adapts a *goquery.Selection (always length 1, by construction in
// ExtractMany/Find) to contract.Element.
type element struct {
	sel *goquery.Selection
}

var _ contract.Element = (*element)(nil)

func (el *element) Text() string {
	return strings.TrimSpace(el.sel.Text())
}

func (el *element) Attribute(name string) (string, bool) {
	return el.sel.Attr(name)
}

func (el *element) Find(sel domain.Selector) (contract.Element, bool) {
	matches, err := selectMany(el.sel, sel)
	if err != nil || matches.Length() == 0 {
		return nil, false
	}
	return &element{sel: matches.First()}, true
}

func (el *element) FindAll(sel domain.Selector) ([]contract.Element, error) {
	matches, err := selectMany(el.sel, sel)
	if err != nil {
		return nil, err
	}
	elements := make([]contract.Element, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		elements = append(elements, &element{sel: s})
	})
	return elements, nil
}

func (el *element) Matches(text string) bool {
	return strings.Contains(strings.ToLower(el.sel.Text()), strings.ToLower(text))
}

func (el *element) Reduce(mode domain.ExtractMode) string {
	return reduce(el.sel, mode)
}

// selectMany resolves the node set a selector addresses, ahead of any
// per-node value extraction. Only css is a multi-node selector kind here;
// text/json-attribute address the whole document/subtree as one logical
// unit, so they report a single matching node when they match at all.
func selectMany(root *goquery.Selection, sel domain.Selector) (*goquery.Selection, error) {
	switch sel.Kind {
	case domain.SelectorCSS:
		return root.Find(sel.Path), nil
	case domain.SelectorXPath:
		// goquery has no native XPath support; css is the only kind wired to
		// a real CSS engine (cascadia via goquery) in this module, so xpath
		// selectors are rejected rather than silently misinterpreted as css.
		return nil, errors.New(errors.InvalidInput, "static extractor: xpath selectors are not supported, use css")
	case domain.SelectorText, domain.SelectorJSONAttr:
		if _, ok := extractFromSelection(root, sel); !ok {
			return root.FilterFunction(func(int, *goquery.Selection) bool { return false }), nil
		}
		return root, nil
	default:
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("static extractor: unknown selector kind %q", sel.Kind))
	}
}

// extractFromSelection resolves one Selector against a DOM subtree and
// reduces the match to a string per sel.Extract.
func extractFromSelection(root *goquery.Selection, sel domain.Selector) (string, bool) {
	switch sel.Kind {
	case domain.SelectorCSS:
		found := root.Find(sel.Path)
		if found.Length() == 0 {
			return "", false
		}
		return reduce(found.First(), sel.Extract), true
	case domain.SelectorText:
		if strings.Contains(strings.ToLower(root.Text()), strings.ToLower(sel.Text)) {
			return sel.Text, true
		}
		return "", false
	case domain.SelectorJSONAttr:
		return extractJSONAttribute(root, sel)
	default:
		return "", false
	}
}

// extractJSONAttribute grounds on the teacher's
// internal/service/task/provider/kurly/watch_product_price.go pattern:
// a page embeds its own data as JSON inside an inline <script> tag
// (e.g. __NEXT_DATA__), which sel.Path addresses as a CSS selector for the
// script node and sel.JSONPath then walks with gjson.
func extractJSONAttribute(root *goquery.Selection, sel domain.Selector) (string, bool) {
	script := root.Find(sel.Path)
	if script.Length() == 0 {
		return "", false
	}
	blob := script.First().Text()
	if blob == "" {
		return "", false
	}
	result := gjson.Get(blob, sel.JSONPath)
	if !result.Exists() {
		return "", false
	}

	if sel.ExpectedValue == "" {
		return result.String(), true
	}

	switch sel.Aggregator {
	case domain.AggregateAll:
		ok := true
		result.ForEach(func(_, v gjson.Result) bool {
			if v.String() != sel.ExpectedValue {
				ok = false
				return false
			}
			return true
		})
		if !ok {
			return "", false
		}
		return sel.ExpectedValue, true
	case domain.AggregateNone:
		hit := false
		result.ForEach(func(_, v gjson.Result) bool {
			if v.String() == sel.ExpectedValue {
				hit = true
				return false
			}
			return true
		})
		if hit {
			return "", false
		}
		return sel.ExpectedValue, true
	default: // AggregateAny, or unset
		if result.IsArray() {
			hit := false
			result.ForEach(func(_, v gjson.Result) bool {
				if v.String() == sel.ExpectedValue {
					hit = true
					return false
				}
				return true
			})
			if !hit {
				return "", false
			}
			return sel.ExpectedValue, true
		}
		if result.String() != sel.ExpectedValue {
			return "", false
		}
		return sel.ExpectedValue, true
	}
}

// reduce turns a matched *goquery.Selection into a string per ExtractMode.
func reduce(s *goquery.Selection, mode domain.ExtractMode) string {
	switch mode {
	case domain.ExtractHref:
		v, _ := s.Attr("href")
		return v
	case domain.ExtractInnerHTML:
		html, _ := s.Html()
		return html
	case domain.ExtractOwnText:
		return strings.TrimSpace(ownText(s))
	default: // ExtractText, or unset
		return strings.TrimSpace(s.Text())
	}
}

// ownText returns the concatenation of this node's direct text children,
// excluding descendant elements' text -- goquery has no built-in equivalent
// of jQuery's non-existent "own text" either, so this walks Nodes directly.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
			}
		}
	}
	return b.String()
}
