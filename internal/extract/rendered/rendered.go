// Package rendered is the headless-browser variant of
// internal/contract.Extractor, grounded on the retrieval pack's go-rod
// scraping reference (other_examples' purify scraper-page.go): one shared
// *rod.Browser per scan cycle, one *rod.Page per extractor. Request routing
// blocks non-essential resource types and known trackers before the first
// navigation, a JS-challenge page is detected and retried once, and bulk
// extraction walks the DOM in document order via a temporary ordering
// attribute (spec.md §9).
package rendered

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tidwall/gjson"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "extract.rendered"

// orderAttr is the scratch attribute bulk extraction uses to recover
// querySelectorAll's document order through rod's element API, per spec.md
// §9. It never survives past one ExtractMany call.
const orderAttr = "data-scancore-order"

// settleWait is how long a page is left alone after DOM-stable before
// extraction, letting client-side rendering finish painting late content.
const settleWait = 300 * time.Millisecond

// navTimeout bounds a single Goto, including an optional challenge retry.
const navTimeout = 15 * time.Second

// actionTimeout bounds a single selector query or attribute read.
const actionTimeout = time.Second

// blockedResourceTypes are never needed to read a price/title/stock
// selector and only cost bandwidth and render time.
var blockedResourceTypes = map[proto.NetworkResourceType]bool{
	proto.NetworkResourceTypeImage:      true,
	proto.NetworkResourceTypeStylesheet: true,
	proto.NetworkResourceTypeFont:       true,
	proto.NetworkResourceTypeMedia:      true,
}

// trackerHosts is a small deny-list of analytics/chat widgets that slow
// down page settle without ever affecting a scraped field.
var trackerHosts = []string{
	"google-analytics.com",
	"googletagmanager.com",
	"doubleclick.net",
	"facebook.net",
	"hotjar.com",
	"channel.io",
	"zendesk.com",
}

// Factory builds rendered Extractors that share one *rod.Browser for the
// whole cycle -- launching a new browser process per shop would dwarf the
// per-shop scrape cost, the same "one resource, many uses" shape as the
// static variant's per-shop fetcher chain.
type Factory struct {
	browser *rod.Browser
}

// NewFactory connects to (and launches, if launcher is empty) the browser
// at controlURL. Passing an empty controlURL lets rod launch its own local
// Chromium via the default launcher.
func NewFactory(controlURL string) (*Factory, error) {
	browser := rod.New()
	if controlURL != "" {
		browser = browser.ControlURL(controlURL)
	}
	if err := browser.Connect(); err != nil {
		return nil, errors.Wrap(err, errors.Unavailable, "rendered extractor: browser connect failed")
	}
	return &Factory{browser: browser}, nil
}

// Close disconnects the shared browser. Call once per cycle, after every
// rendered extractor it produced has been closed.
func (f *Factory) Close() error {
	return f.browser.Close()
}

func (f *Factory) New(_ context.Context, shop domain.ShopConfig) (contract.Extractor, error) {
	page, err := f.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.Wrap(err, errors.Unavailable, fmt.Sprintf("rendered extractor: shop %s: page create failed", shop.ID))
	}

	router := page.HijackRequests()
	mountHijack(router)
	go router.Run()

	return &extractor{shopID: shop.ID, page: page, router: router}, nil
}

// extractor binds one rod.Page (and its hijack router) to one shop for the
// duration of a cycle.
type extractor struct {
	shopID     string
	page       *rod.Page
	router     *rod.HijackRouter
	currentURL string
}

var _ contract.Extractor = (*extractor)(nil)

func (e *extractor) Goto(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()
	p := e.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return errors.Wrapf(err, errors.Unavailable, "shop %s: navigate %s", e.shopID, url)
	}
	e.waitSettled(p)

	if e.isChallenged(p) {
		log.WithComponentAndFields(component, log.Fields{"shopId": e.shopID, "url": url}).Info("js challenge detected, reloading once")
		if err := p.Reload(); err != nil {
			return errors.Wrapf(err, errors.Unavailable, "shop %s: challenge reload %s", e.shopID, url)
		}
		e.waitSettled(p)
	}

	e.currentURL = currentPageURL(p, url)
	return nil
}

func (e *extractor) waitSettled(p *rod.Page) {
	if err := p.WaitDOMStable(300*time.Millisecond, 0.1); err != nil {
		log.WithComponentAndFields(component, log.Fields{"shopId": e.shopID, "error": err.Error()}).Debug("dom did not settle before timeout")
	}
	time.Sleep(settleWait)
}

// isChallenged detects the common "one moment, please" interstitial a
// bot-mitigation service shows before its JS has finished computing a
// cookie; rod's navigation itself succeeds (the interstitial IS the page),
// so this is the only signal available without parsing vendor-specific
// markup.
func (e *extractor) isChallenged(p *rod.Page) bool {
	info, err := p.Info()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(info.Title), "one moment")
}

func currentPageURL(p *rod.Page, fallback string) string {
	info, err := p.Info()
	if err != nil || info.URL == "" {
		return fallback
	}
	return info.URL
}

func (e *extractor) CurrentURL() string {
	return e.currentURL
}

func (e *extractor) ExtractOne(ctx context.Context, sel domain.Selector) (string, bool) {
	p := e.page.Context(ctx)
	if v, ok := extractOneFromPage(p, sel); ok {
		return v, true
	}
	for _, fb := range sel.Fallback {
		if v, ok := extractOneFromPage(p, fb); ok {
			return v, true
		}
	}
	return "", false
}

func extractOneFromPage(p *rod.Page, sel domain.Selector) (string, bool) {
	switch sel.Kind {
	case domain.SelectorCSS:
		el, err := p.Timeout(actionTimeout).Element(sel.Path)
		if err != nil || el == nil {
			return "", false
		}
		v := reduceElement(el, sel.Extract)
		if v == "" {
			return "", false
		}
		return v, true
	case domain.SelectorText:
		html, err := p.Timeout(actionTimeout).HTML()
		if err != nil {
			return "", false
		}
		if strings.Contains(strings.ToLower(html), strings.ToLower(sel.Text)) {
			return sel.Text, true
		}
		return "", false
	case domain.SelectorJSONAttr:
		return extractJSONAttribute(p, sel)
	default:
		return "", false
	}
}

func (e *extractor) ExtractMany(ctx context.Context, sel domain.Selector) ([]contract.Element, error) {
	if sel.Kind != domain.SelectorCSS {
		return nil, errors.New(errors.InvalidInput, "rendered extractor: ExtractMany only supports css selectors")
	}
	p := e.page.Context(ctx)

	elements, err := orderedElements(p, sel.Path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ExecutionFailed, "shop %s: ExtractMany %s", e.shopID, sel.Path)
	}
	out := make([]contract.Element, 0, len(elements))
	for _, el := range elements {
		out = append(out, &element{el: el})
	}
	return out, nil
}

// orderedElements tags every match for selector with a scratch
// data-scancore-order attribute in querySelectorAll enumeration order, reads
// matches back out by that index, then strips the attribute -- spec.md §9's
// document-order guarantee made explicit rather than assumed of rod's
// element API.
func orderedElements(p *rod.Page, selector string) (rod.Elements, error) {
	escaped := strconv.Quote(selector)
	tagJS := fmt.Sprintf(`() => {
		const nodes = document.querySelectorAll(%s);
		nodes.forEach((n, i) => n.setAttribute(%q, String(i)));
		return nodes.length;
	}`, escaped, orderAttr)

	if _, err := p.Eval(tagJS); err != nil {
		return nil, err
	}

	matches, err := p.Elements("[" + orderAttr + "]")
	if err != nil {
		return nil, err
	}

	ordered := make(rod.Elements, len(matches))
	for _, el := range matches {
		idxStr, err := el.Attribute(orderAttr)
		if err != nil || idxStr == nil {
			continue
		}
		idx, err := strconv.Atoi(*idxStr)
		if err != nil || idx < 0 || idx >= len(ordered) {
			continue
		}
		ordered[idx] = el
		_, _ = el.Eval(fmt.Sprintf(`() => this.removeAttribute(%q)`, orderAttr))
	}

	result := make(rod.Elements, 0, len(ordered))
	for _, el := range ordered {
		if el != nil {
			result = append(result, el)
		}
	}
	return result, nil
}

func (e *extractor) Exists(ctx context.Context, sel domain.Selector) bool {
	_, ok := e.ExtractOne(ctx, sel)
	return ok
}

func (e *extractor) Close() error {
	_ = e.router.Stop()
	return e.page.Close()
}

// element adapts a *rod.Element to contract.Element.
type element struct {
	el *rod.Element
}

var _ contract.Element = (*element)(nil)

func (el *element) Text() string {
	text, err := el.el.Text()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}

func (el *element) Attribute(name string) (string, bool) {
	v, err := el.el.Attribute(name)
	if err != nil || v == nil {
		return "", false
	}
	return *v, true
}

func (el *element) Find(sel domain.Selector) (contract.Element, bool) {
	if sel.Kind != domain.SelectorCSS {
		return nil, false
	}
	found, err := el.el.Element(sel.Path)
	if err != nil || found == nil {
		return nil, false
	}
	return &element{el: found}, true
}

func (el *element) FindAll(sel domain.Selector) ([]contract.Element, error) {
	if sel.Kind != domain.SelectorCSS {
		return nil, errors.New(errors.InvalidInput, "rendered extractor: FindAll only supports css selectors")
	}
	matches, err := el.el.Elements(sel.Path)
	if err != nil {
		return nil, err
	}
	out := make([]contract.Element, 0, len(matches))
	for _, m := range matches {
		out = append(out, &element{el: m})
	}
	return out, nil
}

func (el *element) Matches(text string) bool {
	return strings.Contains(strings.ToLower(el.Text()), strings.ToLower(text))
}

func (el *element) Reduce(mode domain.ExtractMode) string {
	return reduceElement(el.el, mode)
}

func reduceElement(el *rod.Element, mode domain.ExtractMode) string {
	switch mode {
	case domain.ExtractHref:
		v, err := el.Attribute("href")
		if err != nil || v == nil {
			return ""
		}
		return *v
	case domain.ExtractInnerHTML:
		html, err := el.HTML()
		if err != nil {
			return ""
		}
		return html
	case domain.ExtractOwnText:
		v, err := el.Eval(`() => Array.from(this.childNodes).filter(n => n.nodeType === 3).map(n => n.textContent).join('')`)
		if err != nil {
			return ""
		}
		return strings.TrimSpace(v.Value.Str())
	default: // ExtractText, or unset
		text, err := el.Text()
		if err != nil {
			return ""
		}
		return strings.TrimSpace(text)
	}
}

// extractJSONAttribute mirrors internal/extract/static's
// __NEXT_DATA__-style pattern: sel.Path addresses an inline <script> node,
// sel.JSONPath walks its text content with gjson.
func extractJSONAttribute(p *rod.Page, sel domain.Selector) (string, bool) {
	el, err := p.Timeout(actionTimeout).Element(sel.Path)
	if err != nil || el == nil {
		return "", false
	}
	blob, err := el.Text()
	if err != nil || blob == "" {
		return "", false
	}
	result := gjson.Get(blob, sel.JSONPath)
	if !result.Exists() {
		return "", false
	}
	if sel.ExpectedValue == "" {
		return result.String(), true
	}
	if result.String() == sel.ExpectedValue {
		return sel.ExpectedValue, true
	}
	return "", false
}
