// Package cycle is the scan cycle runner of spec.md §4.9, "the heart": two
// sequential cycles per invocation (static-engine shops, then
// rendered-engine shops), each running per-shop circuit breaker gating and
// the two-phase set-search-then-product-scrape flow, and feeding every
// successfully extracted result into the shared result buffer and
// dispatcher.
package cycle

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/pricewatch/scan-core/internal/breaker"
	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/dispatch"
	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/resultbuf"
	"github.com/pricewatch/scan-core/internal/scanner"
	"github.com/pricewatch/scan-core/internal/search"
	"github.com/pricewatch/scan-core/pkg/log"
)

const component = "cycle"

// DefaultShopConcurrency bounds how many static shops run in parallel.
const DefaultShopConcurrency = 10

// DefaultProductConcurrency is a static shop's Phase-2 product pool size
// when the shop config leaves AntiBot.MaxConcurrency at zero.
const DefaultProductConcurrency = 3

// ShopStats summarizes one shop's outcome for the cycle-end log line.
type ShopStats struct {
	ShopID   string
	Found    int
	NotFound int
}

// Runner owns the two extractor factories and the shared, cycle-scoped
// collaborators every scrape result flows through.
type Runner struct {
	staticFactory   contract.ExtractorFactory
	renderedFactory contract.ExtractorFactory
	breaker         *breaker.Breaker
	results         *resultbuf.Buffer
	dispatcher      *dispatch.Dispatcher

	shopConc int
	prodConc int
}

// NewRunner builds a Runner for one cycle. A fresh breaker.Breaker must be
// passed per cycle (its trip state does not survive across cycles).
func NewRunner(staticFactory, renderedFactory contract.ExtractorFactory, brk *breaker.Breaker, results *resultbuf.Buffer, dispatcher *dispatch.Dispatcher) *Runner {
	return &Runner{
		staticFactory:   staticFactory,
		renderedFactory: renderedFactory,
		breaker:         brk,
		results:         results,
		dispatcher:      dispatcher,
		shopConc:        DefaultShopConcurrency,
		prodConc:        DefaultProductConcurrency,
	}
}

// staticJob is one product carried out of a static shop's Phase 1. A job
// with a non-empty url skips straight to ScrapeWithURL in Phase 2; an
// ungrouped job (url empty) gets its own ScrapeProduct search-and-scrape,
// per the ungrouped-product policy decision in SPEC_FULL.md §4.9.
type staticJob struct {
	product     domain.ResolvedProduct
	url         string
	searchData  *domain.SearchPageData
	needsSearch bool
}

// RunStatic runs the static-engine cycle: up to DefaultShopConcurrency
// shops in parallel, each its own sequential Phase 1 followed by a bounded
// Phase-2 product pool.
func (r *Runner) RunStatic(ctx context.Context, shops []domain.ShopConfig, groups []domain.SetGroup, ungrouped []domain.ResolvedProduct) []ShopStats {
	sem := make(chan struct{}, r.shopConc)
	var wg sync.WaitGroup
	statsCh := make(chan ShopStats, len(shops))

	for _, shop := range shops {
		shop := shop
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			statsCh <- r.runStaticShop(ctx, shop, groups, ungrouped)
		}()
	}
	wg.Wait()
	close(statsCh)

	all := make([]ShopStats, 0, len(shops))
	for s := range statsCh {
		all = append(all, s)
		log.WithComponentAndFields(component, log.Fields{"shopId": s.ShopID, "found": s.Found, "notFound": s.NotFound, "engine": "static"}).Info("shop scan complete")
	}
	return all
}

func (r *Runner) runStaticShop(ctx context.Context, shop domain.ShopConfig, groups []domain.SetGroup, ungrouped []domain.ResolvedProduct) ShopStats {
	stats := ShopStats{ShopID: shop.ID}
	limiter := newShopLimiter(shop)

	jobs := r.staticPhase1(ctx, shop, limiter, groups, ungrouped, &stats)
	if len(jobs) == 0 {
		return stats
	}
	r.staticPhase2(ctx, shop, limiter, jobs, &stats)
	return stats
}

// staticPhase1 runs the sequential, single-extractor set-search phase and
// returns the product jobs Phase 2 must carry out. Per spec.md §4.9: a
// failed group search counts a breaker failure and marks the whole group
// not-found; once tripped mid-shop, every remaining group and the
// ungrouped products are marked not-found without further searches.
func (r *Runner) staticPhase1(ctx context.Context, shop domain.ShopConfig, limiter *rate.Limiter, groups []domain.SetGroup, ungrouped []domain.ResolvedProduct, stats *ShopStats) []staticJob {
	ex, err := r.staticFactory.New(ctx, shop)
	if err != nil {
		log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "error": err.Error()}).Warn("static extractor create failed, shop skipped")
		stats.NotFound += countProducts(groups) + len(ungrouped)
		return nil
	}
	defer ex.Close()
	paced := newPacedExtractor(ex, limiter, shop.AntiBot.Jitter())

	var jobs []staticJob
	tripped := false
	for _, group := range groups {
		if tripped {
			stats.NotFound += len(group.Products)
			continue
		}

		candidates, err := search.SearchSet(ctx, paced, shop, group.SearchPhrase)
		if err != nil {
			justTripped := r.breaker.RecordFailure(shop.ID)
			stats.NotFound += len(group.Products)
			log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "setId": group.SetID, "error": err.Error()}).Warn("set search failed")
			if justTripped {
				tripped = true
			}
			continue
		}
		r.breaker.RecordSuccess(shop.ID)

		for _, p := range group.Products {
			best, ok := matchProductAgainstCandidates(candidates, p)
			if !ok {
				stats.NotFound++
				continue
			}
			jobs = append(jobs, staticJob{product: p, url: best.URL, searchData: best.SearchPageData})
		}
	}

	if tripped {
		stats.NotFound += len(ungrouped)
		return jobs
	}
	for _, p := range ungrouped {
		jobs = append(jobs, staticJob{product: p, needsSearch: true})
	}
	return jobs
}

// staticPhase2 runs the bounded product pool: each task opens its own
// extractor, scrapes one product, then closes it.
func (r *Runner) staticPhase2(ctx context.Context, shop domain.ShopConfig, limiter *rate.Limiter, jobs []staticJob, stats *ShopStats) {
	conc := shop.AntiBot.MaxConcurrency
	if conc <= 0 {
		conc = r.prodConc
	}

	sem := make(chan struct{}, conc)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, job := range jobs {
		job := job
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			r.scrapeStaticJob(ctx, shop, limiter, job, &mu, stats)
		}()
	}
	wg.Wait()
}

func (r *Runner) scrapeStaticJob(ctx context.Context, shop domain.ShopConfig, limiter *rate.Limiter, job staticJob, mu *sync.Mutex, stats *ShopStats) {
	ex, err := r.staticFactory.New(ctx, shop)
	if err != nil {
		log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "productId": job.product.ID, "error": err.Error()}).Warn("static extractor create failed, product skipped")
		recordResult(mu, stats, r.results, r.dispatcher, shop, job.product.Product, domain.ExtractionResult{ProductID: job.product.ID, ShopID: shop.ID})
		return
	}
	defer ex.Close()
	paced := newPacedExtractor(ex, limiter, shop.AntiBot.Jitter())

	var result domain.ExtractionResult
	if job.needsSearch {
		result = scanner.ScrapeProduct(ctx, paced, shop, job.product)
	} else {
		result = scanner.ScrapeWithURL(ctx, paced, shop, job.product.ID, job.url, job.searchData)
	}
	recordResult(mu, stats, r.results, r.dispatcher, shop, job.product.Product, result)
}

// RunRendered runs the rendered-engine cycle: shops run strictly
// sequentially (one shared browser), and within a shop one extractor is
// reused across every set search and every product scrape.
func (r *Runner) RunRendered(ctx context.Context, shops []domain.ShopConfig, groups []domain.SetGroup, ungrouped []domain.ResolvedProduct) []ShopStats {
	all := make([]ShopStats, 0, len(shops))
	for _, shop := range shops {
		stats := r.runRenderedShop(ctx, shop, groups, ungrouped)
		all = append(all, stats)
		log.WithComponentAndFields(component, log.Fields{"shopId": stats.ShopID, "found": stats.Found, "notFound": stats.NotFound, "engine": "rendered"}).Info("shop scan complete")
	}
	return all
}

func (r *Runner) runRenderedShop(ctx context.Context, shop domain.ShopConfig, groups []domain.SetGroup, ungrouped []domain.ResolvedProduct) ShopStats {
	stats := ShopStats{ShopID: shop.ID}

	ex, err := r.renderedFactory.New(ctx, shop)
	if err != nil {
		log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "error": err.Error()}).Warn("rendered extractor create failed, shop skipped")
		stats.NotFound += countProducts(groups) + len(ungrouped)
		return stats
	}
	defer ex.Close()

	limiter := newShopLimiter(shop)
	paced := newPacedExtractor(ex, limiter, shop.AntiBot.Jitter())
	var mu sync.Mutex

	tripped := false
	for _, group := range groups {
		if tripped {
			stats.NotFound += len(group.Products)
			continue
		}

		candidates, err := search.SearchSet(ctx, paced, shop, group.SearchPhrase)
		if err != nil {
			justTripped := r.breaker.RecordFailure(shop.ID)
			stats.NotFound += len(group.Products)
			log.WithComponentAndFields(component, log.Fields{"shopId": shop.ID, "setId": group.SetID, "error": err.Error()}).Warn("set search failed")
			if justTripped {
				tripped = true
			}
			continue
		}
		r.breaker.RecordSuccess(shop.ID)

		for _, p := range group.Products {
			best, ok := matchProductAgainstCandidates(candidates, p)
			if !ok {
				stats.NotFound++
				continue
			}
			result := scanner.ScrapeWithURL(ctx, paced, shop, p.ID, best.URL, best.SearchPageData)
			recordResult(&mu, &stats, r.results, r.dispatcher, shop, p.Product, result)
		}
	}

	if tripped {
		stats.NotFound += len(ungrouped)
		return stats
	}
	for _, p := range ungrouped {
		result := scanner.ScrapeProduct(ctx, paced, shop, p)
		recordResult(&mu, &stats, r.results, r.dispatcher, shop, p.Product, result)
	}
	return stats
}

// matchProductAgainstCandidates reuses a set-level candidate list across
// every product in the set: each of the product's phrases is tried in
// order (mirroring search.SearchProduct's own fallback loop) with no
// further I/O, since the candidates were already fetched once per set.
func matchProductAgainstCandidates(candidates []domain.Candidate, product domain.ResolvedProduct) (domain.Candidate, bool) {
	for _, phrase := range product.Phrases {
		if best, ok := search.MatchCandidate(candidates, phrase, product.Exclude); ok {
			return best, true
		}
	}
	return domain.Candidate{}, false
}

// recordResult applies the storage/dispatch gate of spec.md §9: a
// not-found result (empty ProductURL) updates only the found/not-found
// tally, never the result buffer or the dispatcher.
func recordResult(mu *sync.Mutex, stats *ShopStats, results *resultbuf.Buffer, dispatcher *dispatch.Dispatcher, shop domain.ShopConfig, product domain.Product, result domain.ExtractionResult) {
	mu.Lock()
	if result.Found() {
		stats.Found++
	} else {
		stats.NotFound++
	}
	mu.Unlock()

	if !result.Found() {
		return
	}
	results.Add(result)
	dispatcher.ProcessResult(product, shop, result)
}

func countProducts(groups []domain.SetGroup) int {
	n := 0
	for _, g := range groups {
		n += len(g.Products)
	}
	return n
}
