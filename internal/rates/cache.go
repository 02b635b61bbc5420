package rates

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/shopspring/decimal"
	"github.com/tirasundara/ledger-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

type cachedRate struct {
	rate      decimal.Decimal
	published bool
}

// CachingProvider keeps one LRU entry per calendar day in front of another
// provider. Only the uncached span of a request is fetched, and concurrent
// fetches of the same span share one upstream call.
//
// Days without a rate are cached too, but only once they are in the past:
// today's rate may still be published.
type CachingProvider struct {
	next  domain.InterestRateProvider
	cache *lru.Cache[string, cachedRate]
	group singleflight.Group
	now   func() time.Time
}

// NewCachingProvider wraps next with a cache of size days
func NewCachingProvider(next domain.InterestRateProvider, size int, now func() time.Time) (*CachingProvider, error) {
	cache, err := lru.New[string, cachedRate](size)
	if err != nil {
		return nil, fmt.Errorf("creating rate cache: %w", err)
	}
	if now == nil {
		now = time.Now
	}

	return &CachingProvider{
		next:  next,
		cache: cache,
		now:   now,
	}, nil
}

func (p *CachingProvider) InterestRates(ctx context.Context, start, end time.Time) (domain.InterestRates, error) {
	first, last := domain.StartOfDay(start), domain.StartOfDay(end)
	rates := make(domain.InterestRates)

	var missFrom, missTo time.Time
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		entry, ok := p.cache.Get(domain.DayKey(day))
		if !ok {
			if missFrom.IsZero() {
				missFrom = day
			}
			missTo = day
			continue
		}
		if entry.published {
			rates.Set(day, entry.rate)
		}
	}

	if missFrom.IsZero() {
		return rates, nil
	}

	key := domain.DayKey(missFrom) + "-" + domain.DayKey(missTo)
	v, err, _ := p.group.Do(key, func() (any, error) {
		fetched, err := p.next.InterestRates(ctx, missFrom, missTo)
		if err != nil {
			return nil, err
		}
		p.store(fetched, missFrom, missTo)
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}

	fetched := v.(domain.InterestRates)
	for day := missFrom; !day.After(missTo); day = day.AddDate(0, 0, 1) {
		if rate, ok := fetched[domain.DayKey(day)]; ok {
			rates.Set(day, rate)
		}
	}

	return rates, nil
}

func (p *CachingProvider) store(fetched domain.InterestRates, from, to time.Time) {
	today := domain.StartOfDay(p.now().In(from.Location()))

	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		key := domain.DayKey(day)
		rate, ok := fetched[key]
		if !ok && !day.Before(today) {
			continue
		}
		p.cache.Add(key, cachedRate{rate: rate, published: ok})
	}
}

// Len reports how many days are cached
func (p *CachingProvider) Len() int {
	return p.cache.Len()
}
