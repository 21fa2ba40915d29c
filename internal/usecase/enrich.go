package usecase

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/metrics"
	"DisclosureMonitor/internal/ports"
)

// Annotation prefixes attached to items whose enrichment was partial.
const (
	AnnotationPDFMissing       = "pdf_missing"
	AnnotationPDFFailed        = "pdf_extract_failed"
	AnnotationSummaryFailed    = "summary_failed"
	AnnotationFinancialsFailed = "financials_failed"
)

// EnricherDeps wires the best-effort collaborators. Any of them may be nil.
type EnricherDeps struct {
	PDF         ports.PDFExtractor
	Summarizer  ports.Summarizer
	Financials  ports.FinancialLookup
	Concurrency int
	Clock       func() time.Time
	Logger      *slog.Logger
}

// Enricher attaches summary and financial context to matched items.
type Enricher struct {
	pdf         ports.PDFExtractor
	summarizer  ports.Summarizer
	financials  ports.FinancialLookup
	concurrency int
	clock       func() time.Time
	logger      *slog.Logger
}

// NewEnricher constructs the enrichment step.
func NewEnricher(deps EnricherDeps) *Enricher {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		pdf:         deps.PDF,
		summarizer:  deps.Summarizer,
		financials:  deps.Financials,
		concurrency: concurrency,
		clock:       clock,
		logger:      logger,
	}
}

// Enrich runs every step it can and records failures as annotations.
// It never fails: the returned item is always ENRICHED.
func (e *Enricher) Enrich(ctx context.Context, item domain.Item) domain.Item {
	item.Summary = nil
	item.Financials = nil
	item.Annotations = nil
	log := e.logger.With("fingerprint", item.Fingerprint)

	if item.Company == "" {
		item.Company = domain.ExtractCompany(item.Title)
	}

	switch {
	case item.PDFURL == "":
		item.Annotations = append(item.Annotations, AnnotationPDFMissing)
	case e.pdf == nil:
		item.Annotations = append(item.Annotations, AnnotationPDFFailed+": extractor disabled")
	default:
		text, err := e.pdf.ExtractText(ctx, item.PDFURL)
		if err != nil {
			log.Warn("pdf extraction failed", "url", item.PDFURL, "error", err)
			metrics.RecordEnrichFailure(AnnotationPDFFailed)
			item.Annotations = append(item.Annotations, AnnotationPDFFailed+": "+err.Error())
			break
		}
		item.Summary = e.summarize(ctx, log, &item, text)
	}

	if item.Company != "" && e.financials != nil {
		fin, err := e.financials.Lookup(ctx, item.Company)
		if err != nil {
			log.Warn("financial lookup failed", "company", item.Company, "error", err)
			metrics.RecordEnrichFailure(AnnotationFinancialsFailed)
			item.Annotations = append(item.Annotations, AnnotationFinancialsFailed+": "+err.Error())
		} else {
			item.Financials = &fin
		}
	}

	item.EnrichedAt = e.clock().UTC()
	item.Status = domain.StatusEnriched
	return item
}

func (e *Enricher) summarize(ctx context.Context, log *slog.Logger, item *domain.Item, text string) *domain.Summary {
	if e.summarizer == nil {
		item.Annotations = append(item.Annotations, AnnotationSummaryFailed+": summarizer disabled")
		return nil
	}
	summary, err := e.summarizer.Summarize(ctx, text)
	if err != nil {
		log.Warn("summary failed", "error", err)
		metrics.RecordEnrichFailure(AnnotationSummaryFailed)
		item.Annotations = append(item.Annotations, AnnotationSummaryFailed+": "+err.Error())
		return nil
	}
	return &summary
}

// EnrichAll enriches items concurrently, keeping input order. Items that
// already carry enrichment from an earlier cycle are returned untouched.
func (e *Enricher) EnrichAll(ctx context.Context, items []domain.Item) []domain.Item {
	out := make([]domain.Item, len(items))
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for i, item := range items {
		if item.Enriched() {
			out[i] = item
			continue
		}
		g.Go(func() error {
			out[i] = e.Enrich(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
