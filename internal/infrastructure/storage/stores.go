package storage

import (
	"io"
	"strings"
	"time"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// Stores bundles the persisted collections of one backend.
type Stores struct {
	Hashes    ports.HashStore
	Articles  ports.ArticleStore
	Heartbeat ports.HeartbeatStore

	closer io.Closer
}

// Close releases the backend.
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// prepareUpsert stamps bookkeeping timestamps on an incoming item.
func prepareUpsert(item domain.Item, now time.Time) domain.Item {
	if item.FirstSeenAt.IsZero() {
		item.FirstSeenAt = now
	}
	if item.Status == "" {
		item.Status = domain.StatusFetched
	}
	item.UpdatedAt = now
	return item
}

func compareChronological(a, b domain.Item) int {
	if c := a.Timestamp().Compare(b.Timestamp()); c != 0 {
		return c
	}
	return strings.Compare(a.Fingerprint, b.Fingerprint)
}

func accumulateStats(stats *domain.HashStats, rec domain.HashRecord, now time.Time) {
	stats.Total++
	y, m, d := now.Date()
	if !rec.MarkedAt.Before(time.Date(y, m, d, 0, 0, 0, 0, now.Location())) {
		stats.Today++
	}
	if !rec.MarkedAt.Before(now.Add(-24 * time.Hour)) {
		stats.Last24h++
	}
	if rec.MarkedAt.After(stats.LastMarkedAt) {
		stats.LastMarkedAt = rec.MarkedAt
	}
}

