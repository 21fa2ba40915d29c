package usecase

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/filter"
	"DisclosureMonitor/internal/metrics"
	"DisclosureMonitor/internal/ports"
)

// Trigger names what started a cycle.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerCatchUp   Trigger = "catch_up"
	TriggerManual    Trigger = "manual"
)

// CycleRequest asks for one cycle. A positive Lookback widens the filter
// window up to the configured maximum.
type CycleRequest struct {
	Trigger  Trigger
	Lookback time.Duration
}

// CycleReport summarises one run.
type CycleReport struct {
	ID         string        `json:"id"`
	Trigger    Trigger       `json:"trigger"`
	Window     time.Duration `json:"window"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Fetched    int           `json:"fetched"`
	Matched    int           `json:"matched"`
	Retried    int           `json:"retried"`
	Candidates int           `json:"candidates"`
	Duplicates int           `json:"duplicates"`
	Notified   int           `json:"notified"`
	Failed     int           `json:"failed"`
	Errors     int           `json:"errors"`
	Error      string        `json:"error,omitempty"`
}

// CycleDeps wires all driven adapters into the cycle.
type CycleDeps struct {
	Fetcher   ports.FeedFetcher
	Filter    *filter.Engine
	Hashes    ports.HashStore
	Articles  ports.ArticleStore
	Heartbeat ports.HeartbeatStore
	Enricher  *Enricher
	Notifier  ports.Notifier
	Clock     func() time.Time
	Logger    *slog.Logger
}

// CycleOptions tunes window sizes and per-item limits. RetryWindow bounds
// how far back enriched and failed items are offered for another send.
type CycleOptions struct {
	DateWindow  time.Duration
	MaxLookback time.Duration
	RetryWindow time.Duration
	ItemTimeout time.Duration
	BatchSize   int
}

// Cycle is the fetch, filter, enrich, notify and mark workflow.
type Cycle struct {
	fetcher   ports.FeedFetcher
	filter    *filter.Engine
	hashes    ports.HashStore
	articles  ports.ArticleStore
	heartbeat ports.HeartbeatStore
	enricher  *Enricher
	notifier  ports.Notifier
	clock     func() time.Time
	logger    *slog.Logger
	opts      CycleOptions
}

// NewCycle constructs the orchestration component.
func NewCycle(deps CycleDeps, opts CycleOptions) *Cycle {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Enricher == nil {
		deps.Enricher = NewEnricher(EnricherDeps{Clock: deps.Clock, Logger: deps.Logger})
	}
	if opts.DateWindow <= 0 {
		opts.DateWindow = 6 * time.Hour
	}
	if opts.MaxLookback <= 0 {
		opts.MaxLookback = 24 * time.Hour
	}
	if opts.RetryWindow <= 0 {
		opts.RetryWindow = 7 * 24 * time.Hour
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = deps.Enricher.concurrency
	}
	return &Cycle{
		fetcher:   deps.Fetcher,
		filter:    deps.Filter,
		hashes:    deps.Hashes,
		articles:  deps.Articles,
		heartbeat: deps.Heartbeat,
		enricher:  deps.Enricher,
		notifier:  deps.Notifier,
		clock:     deps.Clock,
		logger:    deps.Logger,
		opts:      opts,
	}
}

// Window returns the filter window used for a request.
func (c *Cycle) Window(lookback time.Duration) time.Duration {
	return max(c.opts.DateWindow, min(lookback, c.opts.MaxLookback))
}

// Run executes one cycle. The heartbeat is written whatever the outcome.
func (c *Cycle) Run(ctx context.Context, req CycleRequest) (report CycleReport, err error) {
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	start := c.clock()
	report = CycleReport{
		ID:        uuid.NewString(),
		Trigger:   req.Trigger,
		Window:    c.Window(req.Lookback),
		StartedAt: start,
	}
	log := c.logger.With("cycle_id", report.ID, "trigger", req.Trigger)
	log.Info("cycle started", "window", report.Window)

	defer func() {
		c.beat(context.WithoutCancel(ctx), log)
		report.Duration = c.clock().Sub(start)
		if err != nil {
			report.Error = err.Error()
		}
		metrics.RecordCycle(string(req.Trigger), err, report.Duration)
		log.Info("cycle finished",
			"duration", report.Duration,
			"fetched", report.Fetched,
			"matched", report.Matched,
			"retried", report.Retried,
			"duplicates", report.Duplicates,
			"notified", report.Notified,
			"failed", report.Failed,
			"errors", report.Errors,
		)
	}()

	if c.fetcher == nil || c.filter == nil || c.hashes == nil || c.articles == nil || c.notifier == nil {
		return report, errors.New("cycle misconfigured")
	}

	fetched, err := c.fetcher.Fetch(ctx)
	if err != nil {
		metrics.RecordError("fetch")
		log.Error("fetch failed", "error", err)
		return report, fmt.Errorf("fetch feed: %w", err)
	}
	report.Fetched = len(fetched)
	metrics.AddItems(metrics.StageFetched, len(fetched))

	for _, item := range fetched {
		item.Status = domain.StatusFetched
		if err := c.articles.Upsert(ctx, item); err != nil {
			c.storeError(&report, log, "upsert fetched", item.Fingerprint, err)
		}
	}

	pool, err := c.pool(ctx, fetched, start.Add(-report.Window))
	if err != nil {
		c.storeError(&report, log, "list unprocessed", "", err)
	}

	matched := c.filter.Apply(pool, report.Window, start)
	report.Matched = len(matched)
	metrics.AddItems(metrics.StageMatched, len(matched))
	for i := range matched {
		matched[i].Status = domain.StatusMatched
		if err := c.articles.Upsert(ctx, matched[i]); err != nil {
			c.storeError(&report, log, "upsert matched", matched[i].Fingerprint, err)
		}
	}

	retry, err := c.retryable(ctx, matched, start.Add(-max(c.opts.RetryWindow, report.Window)))
	if err != nil {
		c.storeError(&report, log, "list retryable", "", err)
	}
	report.Retried = len(retry)

	candidates := c.candidates(ctx, &report, log, append(matched, retry...))
	report.Candidates = len(candidates)

	for batch := range slices.Chunk(candidates, c.opts.BatchSize) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch = c.enrich(ctx, batch)
		for i, item := range batch {
			if err := ctx.Err(); err != nil {
				c.park(ctx, &report, log, batch[i:])
				return report, err
			}
			c.deliver(ctx, &report, log, item)
		}
	}

	return report, nil
}

// retryable lists stored items that matched earlier but were never alerted,
// leaving out those already in matched. They skip the filter date cut so an
// outage longer than the window does not strand them.
func (c *Cycle) retryable(ctx context.Context, matched []domain.Item, since time.Time) ([]domain.Item, error) {
	seen := make(map[string]struct{}, len(matched))
	for _, m := range matched {
		seen[m.Fingerprint] = struct{}{}
	}

	var out []domain.Item
	for item, err := range c.articles.ListRetryable(ctx, since) {
		if err != nil {
			return out, err
		}
		if _, ok := seen[item.Fingerprint]; ok {
			continue
		}
		seen[item.Fingerprint] = struct{}{}
		out = append(out, item)
	}
	return out, nil
}

// pool merges the fresh fetch with stored items that never reached a
// decision, so leftovers of an interrupted cycle are filtered again.
func (c *Cycle) pool(ctx context.Context, fetched []domain.Item, since time.Time) ([]domain.Item, error) {
	seen := make(map[string]struct{}, len(fetched))
	pool := make([]domain.Item, 0, len(fetched))
	for _, item := range fetched {
		if _, ok := seen[item.Fingerprint]; ok {
			continue
		}
		seen[item.Fingerprint] = struct{}{}
		pool = append(pool, item)
	}

	for item, err := range c.articles.ListUnprocessed(ctx, since) {
		if err != nil {
			return pool, err
		}
		if _, ok := seen[item.Fingerprint]; ok {
			continue
		}
		seen[item.Fingerprint] = struct{}{}
		pool = append(pool, item)
	}
	return pool, nil
}

// candidates reloads matched items from the store and drops those already
// alerted. The result is ordered oldest first.
func (c *Cycle) candidates(ctx context.Context, report *CycleReport, log *slog.Logger, matched []domain.Item) []domain.Item {
	seen := make(map[string]struct{}, len(matched))
	out := make([]domain.Item, 0, len(matched))

	for _, m := range matched {
		if _, ok := seen[m.Fingerprint]; ok {
			continue
		}
		seen[m.Fingerprint] = struct{}{}

		done, err := c.hashes.Contains(ctx, m.Fingerprint)
		if err != nil {
			c.storeError(report, log, "hash lookup", m.Fingerprint, err)
			continue
		}

		item, err := c.articles.Get(ctx, m.Fingerprint)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			item = m
		case err != nil:
			c.storeError(report, log, "load item", m.Fingerprint, err)
			continue
		}

		if done {
			report.Duplicates++
			metrics.AddItems(metrics.StageDuplicate, 1)
			if item.Status != domain.StatusNotified {
				if err := c.articles.MarkStatus(ctx, item.Fingerprint, domain.StatusNotified); err != nil {
					c.storeError(report, log, "mark status", item.Fingerprint, err)
				}
			}
			continue
		}
		out = append(out, item)
	}

	slices.SortStableFunc(out, func(a, b domain.Item) int {
		return cmp.Or(a.Timestamp().Compare(b.Timestamp()), cmp.Compare(a.Fingerprint, b.Fingerprint))
	})
	return out
}

func (c *Cycle) enrich(ctx context.Context, batch []domain.Item) []domain.Item {
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ItemTimeout)
	defer cancel()
	return c.enricher.EnrichAll(ectx, batch)
}

// deliver persists the enriched item, sends the alert and marks it. The
// send and the mark run on a detached context so shutdown never splits them.
func (c *Cycle) deliver(ctx context.Context, report *CycleReport, log *slog.Logger, item domain.Item) {
	ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ItemTimeout)
	defer cancel()
	log = log.With("fingerprint", item.Fingerprint, "company", item.Company)

	item.Status = domain.StatusEnriched
	if err := c.articles.Upsert(ictx, item); err != nil {
		c.storeError(report, log, "upsert enriched", item.Fingerprint, err)
		return
	}

	if err := c.notifier.Notify(ictx, item); err != nil {
		report.Failed++
		metrics.AddItems(metrics.StageFailed, 1)
		metrics.RecordError("notify")
		log.Error("notify failed", "error", err)
		if err := c.articles.MarkStatus(ictx, item.Fingerprint, domain.StatusFailed); err != nil {
			c.storeError(report, log, "mark failed", item.Fingerprint, err)
		}
		return
	}

	if err := c.hashes.Mark(ictx, domain.NewHashRecord(item, c.clock())); err != nil {
		// The alert is out but not remembered: the next cycle may repeat it.
		c.storeError(report, log, "mark hash", item.Fingerprint, err)
		return
	}
	report.Notified++
	metrics.AddItems(metrics.StageNotified, 1)

	if err := c.articles.MarkStatus(ictx, item.Fingerprint, domain.StatusNotified); err != nil {
		c.storeError(report, log, "mark notified", item.Fingerprint, err)
	}
}

// park stores enriched items left unsent by a cancelled cycle so the next
// cycle sends them without repeating enrichment.
func (c *Cycle) park(ctx context.Context, report *CycleReport, log *slog.Logger, items []domain.Item) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.ItemTimeout)
	defer cancel()
	for _, item := range items {
		if !item.Enriched() {
			continue
		}
		item.Status = domain.StatusEnriched
		if err := c.articles.Upsert(pctx, item); err != nil {
			c.storeError(report, log, "upsert enriched", item.Fingerprint, err)
		}
	}
}

func (c *Cycle) storeError(report *CycleReport, log *slog.Logger, op, fingerprint string, err error) {
	report.Errors++
	metrics.RecordError("store")
	if fingerprint != "" {
		log = log.With("fingerprint", fingerprint)
	}
	log.Error(op+" failed", "error", err)
}

func (c *Cycle) beat(ctx context.Context, log *slog.Logger) {
	if c.heartbeat == nil {
		return
	}
	now := c.clock()
	if err := c.heartbeat.Beat(ctx, now); err != nil {
		metrics.RecordError("heartbeat")
		log.Error("heartbeat write failed", "error", err)
		return
	}
	metrics.SetHeartbeat(now)
}
