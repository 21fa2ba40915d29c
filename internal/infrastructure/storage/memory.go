package storage

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// NewMemory returns stores that keep all state in process memory.
func NewMemory() *Stores {
	return &Stores{
		Hashes:    NewMemoryHashStore(),
		Articles:  NewMemoryArticleStore(time.Now),
		Heartbeat: &MemoryHeartbeatStore{},
	}
}

// MemoryHashStore is a map-backed HashStore.
type MemoryHashStore struct {
	mu      sync.RWMutex
	records map[string]domain.HashRecord
}

var _ ports.HashStore = (*MemoryHashStore)(nil)

func NewMemoryHashStore() *MemoryHashStore {
	return &MemoryHashStore{records: make(map[string]domain.HashRecord)}
}

func (m *MemoryHashStore) Contains(_ context.Context, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[fingerprint]
	return ok, nil
}

func (m *MemoryHashStore) Mark(_ context.Context, record domain.HashRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[record.Fingerprint]; !ok {
		m.records[record.Fingerprint] = record
	}
	return nil
}

func (m *MemoryHashStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for fp, rec := range m.records {
		if rec.MarkedAt.Before(olderThan) {
			delete(m.records, fp)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryHashStore) Stats(_ context.Context, now time.Time) (domain.HashStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats domain.HashStats
	for _, rec := range m.records {
		accumulateStats(&stats, rec, now)
	}
	return stats, nil
}

// MemoryArticleStore is a map-backed ArticleStore.
type MemoryArticleStore struct {
	mu    sync.RWMutex
	items map[string]domain.Item
	now   func() time.Time
}

var _ ports.ArticleStore = (*MemoryArticleStore)(nil)

func NewMemoryArticleStore(now func() time.Time) *MemoryArticleStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryArticleStore{items: make(map[string]domain.Item), now: now}
}

func (m *MemoryArticleStore) Upsert(_ context.Context, item domain.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item = prepareUpsert(item, m.now())
	if existing, ok := m.items[item.Fingerprint]; ok {
		item = domain.Merge(existing, item)
	}
	m.items[item.Fingerprint] = item
	return nil
}

func (m *MemoryArticleStore) Get(_ context.Context, fingerprint string) (domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.items[fingerprint]
	if !ok {
		return domain.Item{}, domain.ErrNotFound
	}
	return item, nil
}

func (m *MemoryArticleStore) MarkStatus(_ context.Context, fingerprint string, status domain.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[fingerprint]
	if !ok {
		return domain.ErrNotFound
	}
	item.Status = status
	item.UpdatedAt = m.now()
	m.items[fingerprint] = item
	return nil
}

func (m *MemoryArticleStore) ListUnprocessed(_ context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return m.list(since, domain.Status.Unprocessed)
}

func (m *MemoryArticleStore) ListRetryable(_ context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return m.list(since, domain.Status.Retryable)
}

func (m *MemoryArticleStore) list(since time.Time, want func(domain.Status) bool) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		m.mu.RLock()
		var pending []domain.Item
		for _, item := range m.items {
			if want(item.Status) && !item.Timestamp().Before(since) {
				pending = append(pending, item)
			}
		}
		m.mu.RUnlock()

		slices.SortFunc(pending, compareChronological)
		for _, item := range pending {
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Prune deletes items first seen before olderThan.
func (m *MemoryArticleStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for fp, item := range m.items {
		if item.FirstSeenAt.Before(olderThan) {
			delete(m.items, fp)
			removed++
		}
	}
	return removed, nil
}

// MemoryHeartbeatStore holds the heartbeat in a variable.
type MemoryHeartbeatStore struct {
	mu sync.RWMutex
	at time.Time
}

var _ ports.HeartbeatStore = (*MemoryHeartbeatStore)(nil)

func (m *MemoryHeartbeatStore) LastHeartbeat(context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.at, nil
}

func (m *MemoryHeartbeatStore) Beat(_ context.Context, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.at = at
	return nil
}
