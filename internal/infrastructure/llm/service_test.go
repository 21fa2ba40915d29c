package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", nil
}

func fastService(gen Generator) *Service {
	return NewService(gen, ServiceOptions{MaxTries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
}

func TestSummarizeRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{
		errs:    []error{errors.New("503 unavailable"), nil},
		replies: []string{"", "SUMMARY: Acme bagged an order."},
	}

	got, err := fastService(gen).Summarize(context.Background(), "filing text")
	require.NoError(t, err)
	assert.Equal(t, "Acme bagged an order.", got.Text)
	require.Len(t, gen.prompts, 2)
	assert.Contains(t, gen.prompts[0], "filing text")
}

func TestSummarizeStopsOnPermanentError(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{errs: []error{permanent(errors.New("invalid api key"))}}

	_, err := fastService(gen).Summarize(context.Background(), "filing text")
	assert.ErrorIs(t, err, ErrSummary)
	assert.ErrorContains(t, err, "invalid api key")
	assert.Len(t, gen.prompts, 1)
}

func TestSummarizeGivesUpAfterMaxTries(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{}

	_, err := fastService(gen).Summarize(context.Background(), "filing text")
	assert.ErrorIs(t, err, ErrSummary)
	assert.Len(t, gen.prompts, 3)
}

func TestSummarizeRejectsEmptyText(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{}
	_, err := fastService(gen).Summarize(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrSummary)
	assert.Empty(t, gen.prompts)
}

func TestLookupParsesFigures(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"AUDITED: FY25 | 100 | 450 | 4.5x\nPROVISIONAL: N/A | N/A | N/A"}}

	got, err := fastService(gen).Lookup(context.Background(), "Acme Ltd")
	require.NoError(t, err)
	assert.Equal(t, "4.5x", got.Ratio)
	assert.False(t, got.HasProvisional())
	assert.Contains(t, gen.prompts[0], `"Acme Ltd"`)
}

func TestLookupUnparseableReply(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{replies: []string{"no idea"}}
	_, err := fastService(gen).Lookup(context.Background(), "Acme Ltd")
	assert.ErrorIs(t, err, ErrLookup)
}

func TestRetryableGeminiError(t *testing.T) {
	t.Parallel()

	assert.True(t, retryableGeminiError("Error 429, Message: Resource has been exhausted"))
	assert.True(t, retryableGeminiError("Error 503: The model is overloaded. UNAVAILABLE"))
	assert.False(t, retryableGeminiError("Error 429: generate_content_free_tier_requests limit: 20"))
	assert.False(t, retryableGeminiError("Error 400: API key not valid"))
}
