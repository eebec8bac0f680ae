// Package matcher implements candidate validation and ranking (spec.md
// §4.2): an exclude-list gate reusing the teacher's pkg/strutil
// case-insensitive substring matcher, then a token-set-ratio fuzzy score,
// then availability/price/score ranked selection.
package matcher

import (
	"math"
	"sort"
	"strings"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/priceparse"
	"github.com/pricewatch/scan-core/pkg/strutil"
)

// MinScore is the fuzzy-score floor for selecting among multiple candidates.
const MinScore = 95

// DirectHitScore is the floor for accepting a search->product redirect as a
// match without going through candidate ranking.
const DirectHitScore = 90

// ValidateTitle checks title against the product's excludes, then returns a
// token-set-ratio fuzzy score in [0,100]. A non-empty exclude hit returns
// (0, false) regardless of how well the title would otherwise score.
func ValidateTitle(title, phrase string, exclude []string) (int, bool) {
	if len(exclude) > 0 {
		m := strutil.NewKeywordMatcher(nil, exclude)
		if !m.Match(title) {
			return 0, false
		}
	}
	return TokenSetRatio(title, phrase), true
}

// SelectBestCandidate ranks candidates by (availability tier ascending,
// price ascending treating nil as +Inf, score descending) and returns the
// top one, provided its score clears MinScore. Returns (zero, false) for an
// empty slice or when the best score is still below MinScore.
func SelectBestCandidate(candidates []domain.Candidate) (domain.Candidate, bool) {
	if len(candidates) == 0 {
		return domain.Candidate{}, false
	}

	ranked := make([]domain.Candidate, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if ta, tb := a.AvailabilityTier(), b.AvailabilityTier(); ta != tb {
			return ta < tb
		}
		pa, pb := priceOrInf(a), priceOrInf(b)
		if pa != pb {
			return pa < pb
		}
		return a.Score > b.Score
	})

	best := ranked[0]
	if best.Score < MinScore {
		return domain.Candidate{}, false
	}
	return best, true
}

func priceOrInf(c domain.Candidate) float64 {
	if c.SearchPageData == nil || c.SearchPageData.Price == nil {
		return math.Inf(1)
	}
	return *c.SearchPageData.Price
}

// TokenSetRatio is an order-insensitive, extra-tokens-tolerant fuzzy score
// in [0,100]. No example repo in the retrieval pack ships a fuzzy-matching
// library, so this is implemented directly against normalized token sets
// (documented as a stdlib exception in DESIGN.md).
func TokenSetRatio(a, b string) int {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 100
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := intersect(ta, tb)
	sortedInter := strings.Join(sortedSlice(inter), " ")
	sortedA := strings.Join(sortedSlice(ta), " ")
	sortedB := strings.Join(sortedSlice(tb), " ")

	combinedA := strings.TrimSpace(sortedInter + " " + diffJoined(ta, inter))
	combinedB := strings.TrimSpace(sortedInter + " " + diffJoined(tb, inter))

	scores := []int{
		ratio(sortedInter, sortedA),
		ratio(sortedInter, sortedB),
		ratio(combinedA, combinedB),
	}
	best := scores[0]
	for _, s := range scores[1:] {
		if s > best {
			best = s
		}
	}
	return best
}

func tokenSet(s string) map[string]struct{} {
	norm := priceparse.Normalize(s)
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(norm) {
		set[tok] = struct{}{}
	}
	return set
}

func intersect(a, b map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func diffJoined(a, sub map[string]struct{}) string {
	var rest []string
	for k := range a {
		if _, ok := sub[k]; !ok {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return strings.Join(rest, " ")
}

func sortedSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ratio is a Levenshtein-distance-based similarity in [0,100], the same
// metric fuzzy string matchers build their ratio on top of.
func ratio(a, b string) int {
	if a == b {
		return 100
	}
	la, lb := len(a), len(b)
	if la == 0 && lb == 0 {
		return 100
	}
	dist := levenshtein(a, b)
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 100
	}
	return int((1.0 - float64(dist)/float64(maxLen)) * 100)
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost
			curr[j] = min3(del, ins, sub)
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
