package financial

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DisclosureMonitor/internal/domain"
)

type countingLookup struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (c *countingLookup) Lookup(_ context.Context, company string) (domain.Financials, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	if c.err != nil {
		return domain.Financials{}, c.err
	}
	return domain.Financials{Company: company, Revenue: "100"}, nil
}

func TestCachedLookupMemoizes(t *testing.T) {
	t.Parallel()

	next := &countingLookup{}
	cached := NewCachedLookup(next, 10, time.Hour)

	for range 3 {
		fin, err := cached.Lookup(context.Background(), "Acme  Ltd")
		require.NoError(t, err)
		assert.Equal(t, "100", fin.Revenue)
	}
	_, err := cached.Lookup(context.Background(), "acme ltd")
	require.NoError(t, err)

	assert.EqualValues(t, 1, next.calls.Load())
}

func TestCachedLookupDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	next := &countingLookup{err: errors.New("boom")}
	cached := NewCachedLookup(next, 10, time.Hour)

	_, err := cached.Lookup(context.Background(), "Acme")
	assert.Error(t, err)
	_, err = cached.Lookup(context.Background(), "Acme")
	assert.Error(t, err)
	assert.EqualValues(t, 2, next.calls.Load())
}

func TestCachedLookupCollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	next := &countingLookup{delay: 50 * time.Millisecond}
	cached := NewCachedLookup(next, 10, time.Hour)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Lookup(context.Background(), "Acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, next.calls.Load())
}
