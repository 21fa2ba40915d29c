package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a fingerprint has no record.
var ErrNotFound = errors.New("not found")

// Status enumerates the processing milestones of a feed item.
type Status string

const (
	StatusFetched  Status = "fetched"
	StatusMatched  Status = "matched"
	StatusEnriched Status = "enriched"
	StatusNotified Status = "notified"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusFetched, StatusMatched, StatusEnriched, StatusNotified, StatusFailed:
		return true
	}
	return false
}

// Unprocessed reports whether an item in this status still awaits an alert decision.
func (s Status) Unprocessed() bool {
	return s == StatusFetched || s == StatusMatched
}

// Retryable reports whether an item in this status matched but its alert
// never went out: the send failed, or the process stopped before it.
func (s Status) Retryable() bool {
	return s == StatusEnriched || s == StatusFailed
}

// Item is one disclosure entry taken from the feed together with its processing state.
type Item struct {
	Fingerprint     string      `json:"fingerprint"`
	GUID            string      `json:"guid,omitempty"`
	Title           string      `json:"title"`
	Link            string      `json:"link"`
	Description     string      `json:"description,omitempty"`
	Company         string      `json:"company,omitempty"`
	PDFURL          string      `json:"pdf_url,omitempty"`
	PublishedAt     time.Time   `json:"published_at"`
	MatchedKeywords []string    `json:"matched_keywords,omitempty"`
	MatchedRule     string      `json:"matched_rule,omitempty"`
	Status          Status      `json:"status"`
	Summary         *Summary    `json:"summary,omitempty"`
	Financials      *Financials `json:"financials,omitempty"`
	Annotations     []string    `json:"annotations,omitempty"`
	EnrichedAt      time.Time   `json:"enriched_at,omitempty"`
	FirstSeenAt     time.Time   `json:"first_seen_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Enriched reports whether enrichment was already attempted for the item.
func (i Item) Enriched() bool {
	return !i.EnrichedAt.IsZero()
}

// Timestamp returns the publication time, falling back to the first-seen time.
func (i Item) Timestamp() time.Time {
	if !i.PublishedAt.IsZero() {
		return i.PublishedAt
	}
	return i.FirstSeenAt
}

// Summary is the structured AI digest of the attached filing.
type Summary struct {
	OrderValue string `json:"order_value,omitempty"`
	Client     string `json:"client,omitempty"`
	Timeline   string `json:"timeline,omitempty"`
	Sector     string `json:"sector,omitempty"`
	Text       string `json:"text"`
}

// Financials carries revenue and order book context for the announcing company.
type Financials struct {
	Company              string `json:"company,omitempty"`
	FiscalYear           string `json:"fiscal_year,omitempty"`
	Revenue              string `json:"revenue,omitempty"`
	OrderBook            string `json:"order_book,omitempty"`
	Ratio                string `json:"ratio,omitempty"`
	ProvisionalYear      string `json:"provisional_year,omitempty"`
	ProvisionalRevenue   string `json:"provisional_revenue,omitempty"`
	ProvisionalOrderBook string `json:"provisional_order_book,omitempty"`
}

// HasProvisional reports whether an unaudited row is present.
func (f Financials) HasProvisional() bool {
	return f.ProvisionalYear != "" || f.ProvisionalRevenue != "" || f.ProvisionalOrderBook != ""
}

// HashRecord marks a fingerprint as already alerted.
type HashRecord struct {
	Fingerprint string    `json:"fingerprint"`
	Title       string    `json:"title,omitempty"`
	Company     string    `json:"company,omitempty"`
	Link        string    `json:"link,omitempty"`
	MarkedAt    time.Time `json:"marked_at"`
}

// NewHashRecord builds the record written after a successful alert.
func NewHashRecord(item Item, at time.Time) HashRecord {
	title := item.Title
	if len(title) > 200 {
		title = title[:200]
	}
	return HashRecord{
		Fingerprint: item.Fingerprint,
		Title:       title,
		Company:     item.Company,
		Link:        item.Link,
		MarkedAt:    at,
	}
}

// HashStats summarises the alert history.
type HashStats struct {
	Total        int       `json:"total"`
	Today        int       `json:"today"`
	Last24h      int       `json:"last_24h"`
	LastMarkedAt time.Time `json:"last_marked_at,omitempty"`
}

// Merge folds an incoming snapshot of an item into the stored record.
//
// Display metadata is refreshed from the feed. Enrichment results are kept
// unless the incoming snapshot carries its own. Ingest statuses (fetched,
// matched) never move an item backwards: fetched never overwrites an
// existing status and matched only replaces fetched, matched or failed.
// Any other status is last-write-wins.
func Merge(existing, incoming Item) Item {
	merged := incoming
	merged.FirstSeenAt = existing.FirstSeenAt
	if merged.FirstSeenAt.IsZero() {
		merged.FirstSeenAt = incoming.FirstSeenAt
	}

	if merged.GUID == "" {
		merged.GUID = existing.GUID
	}
	if merged.Description == "" {
		merged.Description = existing.Description
	}
	if merged.Company == "" {
		merged.Company = existing.Company
	}
	if merged.PDFURL == "" {
		merged.PDFURL = existing.PDFURL
	}
	if merged.PublishedAt.IsZero() {
		merged.PublishedAt = existing.PublishedAt
	}
	if len(merged.MatchedKeywords) == 0 {
		merged.MatchedKeywords = existing.MatchedKeywords
		if merged.MatchedRule == "" {
			merged.MatchedRule = existing.MatchedRule
		}
	}
	if !merged.Enriched() {
		merged.Summary = existing.Summary
		merged.Financials = existing.Financials
		merged.Annotations = existing.Annotations
		merged.EnrichedAt = existing.EnrichedAt
	}

	merged.Status = mergeStatus(existing.Status, incoming.Status)
	return merged
}

func mergeStatus(existing, incoming Status) Status {
	if existing == "" {
		return incoming
	}
	switch incoming {
	case StatusFetched, "":
		return existing
	case StatusMatched:
		if existing == StatusFetched || existing == StatusMatched || existing == StatusFailed {
			return StatusMatched
		}
		return existing
	default:
		return incoming
	}
}
