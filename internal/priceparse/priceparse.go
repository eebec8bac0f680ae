// Package priceparse normalizes titles for matching and parses
// locale-formatted currency strings into float64. Every parse failure
// returns (nil, false) rather than an error; callers treat a missing price
// as unknown, never as a reason to abort a scrape.
package priceparse

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	dashVariants  = strings.NewReplacer("—", "-", "–", "-", "−", "-")
	hyphenOrColon = strings.NewReplacer("-", " ", ":", " ")
	whitespaceRe  = regexp.MustCompile(`\s+`)

	europeanPriceRe    = regexp.MustCompile(`(\d{1,3}(?:[.\x{00A0}\x{0020}]\d{3})*(?:,\d{1,2})?)`)
	usPriceRe          = regexp.MustCompile(`(\d{1,3}(?:,\d{3})*(?:\.\d{1,2})?)`)
	europeanSeparators = strings.NewReplacer(".", "", " ", "", "\u00a0", "")
)

// Normalize lowercases, trims, collapses whitespace, folds dash variants to
// ASCII hyphen, then turns hyphens/colons into spaces and collapses
// whitespace again. Calling it twice is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = dashVariants.Replace(s)
	s = hyphenOrColon.Replace(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Locale selects which regional price grammar ParsePrice applies.
type Locale int

const (
	European Locale = iota
	US
)

// ParsePrice extracts the first numeric run matching the given locale's
// grammar and converts it to a float64. It never panics and never returns
// an error; a non-match yields (nil, false).
func ParsePrice(s string, locale Locale) (*float64, bool) {
	switch locale {
	case US:
		return parseUS(s)
	default:
		return parseEuropean(s)
	}
}

func parseEuropean(s string) (*float64, bool) {
	m := europeanPriceRe.FindString(s)
	if m == "" {
		return nil, false
	}
	// Strip thousands separators (dot, space, NBSP), then the decimal comma
	// becomes a dot.
	cleaned := europeanSeparators.Replace(m)
	cleaned = strings.Replace(cleaned, ",", ".", 1)
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func parseUS(s string) (*float64, bool) {
	m := usPriceRe.FindString(s)
	if m == "" {
		return nil, false
	}
	cleaned := strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, false
	}
	return &v, true
}
