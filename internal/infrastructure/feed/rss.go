package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// ErrFetch marks a failed feed retrieval; the cycle retries on the next tick.
var ErrFetch = errors.New("feed fetch failed")

const maxFeedBytes = 16 << 20

// DefaultHeaders mimic a desktop browser; the exchange archive rejects bare clients.
var DefaultHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "application/rss+xml, application/xml, text/xml, */*",
	"Accept-Language": "en-US,en;q=0.9",
}

// fallbackLayouts cover dates gofeed does not understand, NSE's first.
var fallbackLayouts = []string{
	"02-Jan-2006 15:04:05",
	"Mon, 02 Jan 2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Options configures the RSS fetcher.
type Options struct {
	URL      string
	Timeout  time.Duration
	Headers  map[string]string
	Location *time.Location
	Client   *http.Client
	Clock    func() time.Time
	Logger   *slog.Logger
}

// RSSFetcher downloads and parses the disclosure feed.
type RSSFetcher struct {
	url      string
	headers  map[string]string
	client   *http.Client
	parser   *gofeed.Parser
	location *time.Location
	clock    func() time.Time
	locator  *PDFLocator
	logger   *slog.Logger
}

var _ ports.FeedFetcher = (*RSSFetcher)(nil)

// NewRSSFetcher builds a fetcher for one feed URL.
func NewRSSFetcher(opts Options) *RSSFetcher {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	headers := opts.Headers
	if len(headers) == 0 {
		headers = DefaultHeaders
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RSSFetcher{
		url:      opts.URL,
		headers:  headers,
		client:   client,
		parser:   gofeed.NewParser(),
		location: loc,
		clock:    clock,
		locator:  NewPDFLocator(),
		logger:   logger,
	}
}

// Fetch returns the current feed entries as FETCHED items.
func (f *RSSFetcher) Fetch(ctx context.Context) ([]domain.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}

	parsed, err := f.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse: %w", ErrFetch, err)
	}

	now := f.clock()
	items := make([]domain.Item, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}
		item, ok := f.convert(entry, now)
		if !ok {
			continue
		}
		items = append(items, item)
	}

	f.logger.Debug("feed fetched", "url", f.url, "entries", len(parsed.Items), "items", len(items))
	return items, nil
}

func (f *RSSFetcher) convert(entry *gofeed.Item, now time.Time) (domain.Item, bool) {
	title := strings.TrimSpace(entry.Title)
	link := strings.TrimSpace(entry.Link)
	guid := strings.TrimSpace(entry.GUID)
	if title == "" && link == "" {
		return domain.Item{}, false
	}

	item := domain.Item{
		Fingerprint: domain.Fingerprint(title, link, guid),
		GUID:        guid,
		Title:       title,
		Link:        link,
		Description: strings.TrimSpace(entry.Description),
		Company:     domain.ExtractCompany(title),
		PublishedAt: f.publishedAt(entry, now),
		Status:      domain.StatusFetched,
		FirstSeenAt: now,
		UpdatedAt:   now,
	}
	item.PDFURL = f.locator.Locate(item, enclosureURLs(entry))
	return item, true
}

func (f *RSSFetcher) publishedAt(entry *gofeed.Item, now time.Time) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}

	raw := strings.TrimSpace(entry.Published)
	if raw == "" {
		raw = strings.TrimSpace(entry.Updated)
	}
	if raw != "" {
		for _, layout := range fallbackLayouts {
			if ts, err := time.ParseInLocation(layout, raw, f.location); err == nil {
				return ts.UTC()
			}
		}
		f.logger.Warn("unparseable publication date", "value", raw, "title", entry.Title)
	}
	return now
}

func enclosureURLs(entry *gofeed.Item) []string {
	var urls []string
	for _, enc := range entry.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if enc.Type == "" || strings.Contains(strings.ToLower(enc.Type), "pdf") {
			urls = append(urls, enc.URL)
		}
	}
	return urls
}
