package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"DisclosureMonitor/internal/ports"
)

// PruneReport counts removed records.
type PruneReport struct {
	Cutoff   time.Time `json:"cutoff"`
	Hashes   int       `json:"hashes"`
	Articles int       `json:"articles"`
}

// Pruner drops hash and article records older than the retention period.
type Pruner struct {
	hashes    ports.HashStore
	articles  ports.ArticleStore
	retention time.Duration
	clock     func() time.Time
	logger    *slog.Logger
}

// NewPruner builds the retention job.
func NewPruner(hashes ports.HashStore, articles ports.ArticleStore, retention time.Duration, clock func() time.Time, logger *slog.Logger) *Pruner {
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{hashes: hashes, articles: articles, retention: retention, clock: clock, logger: logger}
}

// Prune removes everything older than now minus retention.
func (p *Pruner) Prune(ctx context.Context) (PruneReport, error) {
	report := PruneReport{Cutoff: p.clock().Add(-p.retention)}

	n, err := p.hashes.Prune(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("prune hashes: %w", err)
	}
	report.Hashes = n

	n, err = p.articles.Prune(ctx, report.Cutoff)
	if err != nil {
		return report, fmt.Errorf("prune articles: %w", err)
	}
	report.Articles = n

	p.logger.Info("pruned old records", "cutoff", report.Cutoff, "hashes", report.Hashes, "articles", report.Articles)
	return report, nil
}
