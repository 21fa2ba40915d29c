package ports

import (
	"context"
	"iter"
	"time"

	"DisclosureMonitor/internal/domain"
)

// FeedFetcher pulls the current entries of the disclosure feed.
type FeedFetcher interface {
	Fetch(ctx context.Context) ([]domain.Item, error)
}

// HashStore remembers which fingerprints were already alerted.
type HashStore interface {
	Contains(ctx context.Context, fingerprint string) (bool, error)
	Mark(ctx context.Context, record domain.HashRecord) error
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Stats(ctx context.Context, now time.Time) (domain.HashStats, error)
}

// ArticleStore persists feed items and their processing status.
type ArticleStore interface {
	Upsert(ctx context.Context, item domain.Item) error
	Get(ctx context.Context, fingerprint string) (domain.Item, error)
	MarkStatus(ctx context.Context, fingerprint string, status domain.Status) error
	ListUnprocessed(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error]
	ListRetryable(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error]
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// HeartbeatStore keeps the single liveness timestamp of the monitor.
// LastHeartbeat returns the zero time when no heartbeat was ever written.
type HeartbeatStore interface {
	LastHeartbeat(ctx context.Context) (time.Time, error)
	Beat(ctx context.Context, at time.Time) error
}

// PDFExtractor downloads a filing and returns its plain text.
type PDFExtractor interface {
	ExtractText(ctx context.Context, url string) (string, error)
}

// Summarizer condenses filing text into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (domain.Summary, error)
}

// FinancialLookup returns revenue and order book context for a company.
type FinancialLookup interface {
	Lookup(ctx context.Context, company string) (domain.Financials, error)
}

// Notifier turns an enriched item into exactly one outbound alert.
type Notifier interface {
	Notify(ctx context.Context, item domain.Item) error
}

// Transport delivers a rendered alert over one channel (SMTP, Telegram).
type Transport interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Scheduler controls when jobs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
