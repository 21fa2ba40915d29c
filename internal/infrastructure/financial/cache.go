package financial

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// CachedLookup memoizes successful lookups per company for ttl and
// collapses concurrent lookups of the same company into one call.
type CachedLookup struct {
	next  ports.FinancialLookup
	cache *expirable.LRU[string, domain.Financials]
	group singleflight.Group
}

var _ ports.FinancialLookup = (*CachedLookup)(nil)

func NewCachedLookup(next ports.FinancialLookup, size int, ttl time.Duration) *CachedLookup {
	if size <= 0 {
		size = 256
	}
	return &CachedLookup{
		next:  next,
		cache: expirable.NewLRU[string, domain.Financials](size, nil, ttl),
	}
}

func (c *CachedLookup) Lookup(ctx context.Context, company string) (domain.Financials, error) {
	key := strings.ToLower(strings.Join(strings.Fields(company), " "))
	if fin, ok := c.cache.Get(key); ok {
		return fin, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fin, err := c.next.Lookup(ctx, company)
		if err != nil {
			return domain.Financials{}, err
		}
		c.cache.Add(key, fin)
		return fin, nil
	})
	if err != nil {
		return domain.Financials{}, err
	}
	return v.(domain.Financials), nil
}
