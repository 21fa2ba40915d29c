package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DisclosureMonitor/internal/domain"
)

func newTestEnricher(deps EnricherDeps) *Enricher {
	deps.Clock = fixedClock
	deps.Logger = slog.New(slog.DiscardHandler)
	return NewEnricher(deps)
}

func TestEnrichAllSteps(t *testing.T) {
	t.Parallel()

	e := newTestEnricher(EnricherDeps{PDF: &fakeExtractor{}, Summarizer: &fakeSummarizer{}, Financials: &fakeFinancials{}})
	got := e.Enrich(context.Background(), itemA)

	assert.Equal(t, domain.StatusEnriched, got.Status)
	assert.Equal(t, testNow, got.EnrichedAt)
	require.NotNil(t, got.Summary)
	assert.Equal(t, "summary: text of https://example.com/a.pdf", got.Summary.Text)
	require.NotNil(t, got.Financials)
	assert.Equal(t, "FY25", got.Financials.FiscalYear)
	assert.Empty(t, got.Annotations)
}

func TestEnrichFailuresBecomeAnnotations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		deps        EnricherDeps
		item        domain.Item
		annotations []string
		summary     bool
		financials  bool
	}{
		{
			name:        "no pdf link",
			deps:        EnricherDeps{PDF: &fakeExtractor{}, Summarizer: &fakeSummarizer{}, Financials: &fakeFinancials{}},
			item:        domain.Item{Fingerprint: "x", Title: "Acme Limited bags order"},
			annotations: []string{AnnotationPDFMissing},
			financials:  true,
		},
		{
			name:        "extraction fails",
			deps:        EnricherDeps{PDF: &fakeExtractor{err: errors.New("scanned image")}, Summarizer: &fakeSummarizer{}, Financials: &fakeFinancials{}},
			item:        itemA,
			annotations: []string{AnnotationPDFFailed + ": scanned image"},
			financials:  true,
		},
		{
			name:        "summary fails",
			deps:        EnricherDeps{PDF: &fakeExtractor{}, Summarizer: &fakeSummarizer{err: errors.New("quota")}, Financials: &fakeFinancials{}},
			item:        itemA,
			annotations: []string{AnnotationSummaryFailed + ": quota"},
			financials:  true,
		},
		{
			name:        "financials fail",
			deps:        EnricherDeps{PDF: &fakeExtractor{}, Summarizer: &fakeSummarizer{}, Financials: &fakeFinancials{err: errors.New("timeout")}},
			item:        itemA,
			annotations: []string{AnnotationFinancialsFailed + ": timeout"},
			summary:     true,
		},
		{
			name:        "everything disabled",
			deps:        EnricherDeps{},
			item:        itemA,
			annotations: []string{AnnotationPDFFailed + ": extractor disabled"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := newTestEnricher(tt.deps).Enrich(context.Background(), tt.item)
			assert.Equal(t, domain.StatusEnriched, got.Status)
			assert.Equal(t, tt.annotations, got.Annotations)
			assert.Equal(t, tt.summary, got.Summary != nil)
			assert.Equal(t, tt.financials, got.Financials != nil)
		})
	}
}

func TestEnrichFillsMissingCompany(t *testing.T) {
	t.Parallel()

	item := itemA
	item.Company = ""
	got := newTestEnricher(EnricherDeps{Financials: &fakeFinancials{}}).Enrich(context.Background(), item)
	assert.Equal(t, "Alpha Infra Limited", got.Company)
	require.NotNil(t, got.Financials)
	assert.Equal(t, "Alpha Infra Limited", got.Financials.Company)
}

type slowExtractor struct {
	active  atomic.Int32
	maxSeen atomic.Int32
	mu      sync.Mutex
}

func (s *slowExtractor) ExtractText(context.Context, string) (string, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	s.mu.Lock()
	if n > s.maxSeen.Load() {
		s.maxSeen.Store(n)
	}
	s.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return "text", nil
}

func TestEnrichAllKeepsOrderAndLimit(t *testing.T) {
	t.Parallel()

	ext := &slowExtractor{}
	e := newTestEnricher(EnricherDeps{PDF: ext, Summarizer: &fakeSummarizer{}, Concurrency: 2})

	done := itemB
	done.EnrichedAt = testNow.Add(-time.Hour)
	done.Status = domain.StatusFailed

	items := []domain.Item{itemA, done, itemC, newItem("Theta Ltd bags order", "https://example.com/t", time.Minute)}
	got := e.EnrichAll(context.Background(), items)

	require.Len(t, got, len(items))
	for i := range items {
		assert.Equal(t, items[i].Fingerprint, got[i].Fingerprint)
	}
	assert.Equal(t, done, got[1], "already enriched items are untouched")
	assert.Equal(t, testNow, got[0].EnrichedAt)
	assert.LessOrEqual(t, ext.maxSeen.Load(), int32(2))
}
