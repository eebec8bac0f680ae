package cycle

import (
	"context"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/pricewatch/scan-core/internal/contract"
	"github.com/pricewatch/scan-core/internal/domain"
)

// jitterFactor is the +/-30% spread spec.md §3 requires around a shop's
// configured base delay.
const jitterFactor = 0.3

// newShopLimiter builds the per-shop rate limiter consulted before every
// extractor Goto (spec.md §4.9 domain-stack note): burst 1, refill interval
// = the shop's base delay. A shop with no configured delay gets an
// unlimited limiter rather than a zero-interval one, which golang.org/x/time/rate
// would otherwise treat as "never refill".
func newShopLimiter(shop domain.ShopConfig) *rate.Limiter {
	delay := shop.AntiBot.Jitter()
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

// pacedExtractor wraps a contract.Extractor so every Goto first waits on a
// shared per-shop limiter. The limiter's own rate is re-jittered on each
// call (rather than built in once) to approximate per-request +/-30% jitter
// on top of a fixed refill interval.
type pacedExtractor struct {
	contract.Extractor
	limiter *rate.Limiter
	base    time.Duration
}

func newPacedExtractor(ex contract.Extractor, limiter *rate.Limiter, base time.Duration) *pacedExtractor {
	return &pacedExtractor{Extractor: ex, limiter: limiter, base: base}
}

func (p *pacedExtractor) Goto(ctx context.Context, url string) error {
	if p.base > 0 {
		p.limiter.SetLimit(rate.Every(jitterDelay(p.base)))
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return p.Extractor.Goto(ctx, url)
}

func jitterDelay(base time.Duration) time.Duration {
	factor := 1 + (rand.Float64()*2-1)*jitterFactor
	d := time.Duration(float64(base) * factor)
	if d <= 0 {
		return time.Millisecond
	}
	return d
}
