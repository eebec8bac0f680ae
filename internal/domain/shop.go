package domain

import "time"

// Engine selects the extractor variant a shop requires.
type Engine string

const (
	EngineStatic   Engine = "static"
	EngineRendered Engine = "rendered"
)

// ShopConfig is immutable for the duration of a cycle once loaded.
type ShopConfig struct {
	ID                string
	BaseURL           string
	SearchURLTemplate string // contains "{query}", or phrase is appended as a path suffix
	DirectHitPattern  string // optional regex tested against the post-redirect URL
	Engine            Engine
	Selectors         ShopSelectors
	AntiBot           AntiBotConfig
	// PriceLocale selects the locale grammar internal/priceparse applies to
	// this shop's price text: "european" (default) or "us".
	PriceLocale string
	Disabled    bool
}

// ShopSelectors bundles every selector the scraper template needs for a
// single shop: the search-results page and the product page.
type ShopSelectors struct {
	SearchArticle Selector   // one node per search result
	SearchTitle   Selector   // title, relative to SearchArticle or the document
	SearchURL     Selector   // href, relative to SearchArticle
	ProductTitle  Selector   // used only for direct-hit validation
	Price         Selector   // primary price selector
	PriceFallback []Selector // tried in order when Price yields nothing
	Availability  []Selector // presence of any match means in-stock
}

// AntiBotConfig holds the per-shop pacing and concurrency knobs.
type AntiBotConfig struct {
	DelayMS        int // base per-request delay, jittered +/-30%
	MaxConcurrency int // Phase-2 product pool size; 0 means use the default
	UseProxy       bool
}

// Jitter returns the configured delay as a duration, ready for the caller to
// apply its own +/-30% jitter.
func (a AntiBotConfig) Jitter() time.Duration {
	return time.Duration(a.DelayMS) * time.Millisecond
}

// SelectorKind discriminates the Selector union.
type SelectorKind string

const (
	SelectorCSS      SelectorKind = "css"
	SelectorXPath    SelectorKind = "xpath"
	SelectorText     SelectorKind = "text"
	SelectorJSONAttr SelectorKind = "json-attribute"
)

// ExtractMode controls how a matched element is turned into a string.
type ExtractMode string

const (
	ExtractText      ExtractMode = "text"
	ExtractHref      ExtractMode = "href"
	ExtractInnerHTML ExtractMode = "inner-html"
	ExtractOwnText   ExtractMode = "own-text"
)

// JSONAggregator controls how a json-attribute selector reduces a set of
// candidate nodes against an expected value.
type JSONAggregator string

const (
	AggregateAny  JSONAggregator = "any"
	AggregateAll  JSONAggregator = "all"
	AggregateNone JSONAggregator = "none"
)

// Selector is a small tagged union, decoded straight off shop-config JSON by
// internal/shopconfig. Only the fields relevant to Kind are meaningful.
type Selector struct {
	Kind SelectorKind `json:"kind"`

	// css/xpath
	Path string `json:"path,omitempty"`

	// literal text
	Text string `json:"text,omitempty"`

	// json-attribute
	Attribute      string         `json:"attribute,omitempty"`
	JSONPath       string         `json:"jsonPath,omitempty"`
	ExpectedValue  string         `json:"expectedValue,omitempty"`
	Aggregator     JSONAggregator `json:"aggregator,omitempty"`

	Extract  ExtractMode `json:"extract,omitempty"`
	Fallback []Selector  `json:"fallback,omitempty"`
}

// Empty reports whether the selector carries no addressing information at
// all (a zero-value placeholder left unset in configuration).
func (s Selector) Empty() bool {
	return s.Kind == "" && s.Path == "" && s.Text == "" && s.Attribute == ""
}
