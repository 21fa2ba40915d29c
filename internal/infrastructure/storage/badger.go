package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
	"DisclosureMonitor/pkg/logger"
)

const (
	schemaVersion = "1"

	hashPrefix = "hash/"
	itemPrefix = "item/"
	pubPrefix  = "pub/"

	heartbeatKey = "meta/heartbeat"
	schemaKey    = "meta/schema_version"

	defaultPageSize = 100
)

// ErrSchemaMismatch is returned when the on-disk layout was written by an
// incompatible version.
var ErrSchemaMismatch = errors.New("badger schema version mismatch")

// BadgerConfig holds configuration for the local badger database.
type BadgerConfig struct {
	// Path is the directory for database files. Ignored when InMemory is set.
	Path       string
	InMemory   bool
	SyncWrites bool
	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval     time.Duration
	GCDiscardRatio float64
	PageSize       int
	Logger         *slog.Logger
}

// DefaultBadgerConfig returns durable settings for the given directory.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
		PageSize:       defaultPageSize,
	}
}

// InMemoryBadgerConfig returns settings for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true, PageSize: defaultPageSize}
}

// BadgerDB owns the database handle and its GC loop.
type BadgerDB struct {
	db       *badger.DB
	pageSize int
	now      func() time.Time
	logger   *slog.Logger
	stopGC   chan struct{}
	gcDone   chan struct{}
}

// OpenBadger opens the database, verifies the schema version and returns
// the three stores backed by it.
func OpenBadger(cfg BadgerConfig) (*Stores, *BadgerDB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, nil, errors.New("badger path is required")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create state directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(logger.New(cfg.Logger, "badger"))
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open badger database: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	bdb := &BadgerDB{db: db, pageSize: pageSize, now: time.Now, logger: log}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		bdb.startGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	stores := &Stores{
		Hashes:    &BadgerHashStore{db: bdb},
		Articles:  &BadgerArticleStore{db: bdb},
		Heartbeat: &BadgerHeartbeatStore{db: bdb},
		closer:    bdb,
	}
	return stores, bdb, nil
}

func ensureSchema(db *badger.DB) error {
	return db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(schemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(schemaKey), []byte(schemaVersion))
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		return item.Value(func(val []byte) error {
			if string(val) != schemaVersion {
				return fmt.Errorf("%w: found %q, want %q", ErrSchemaMismatch, val, schemaVersion)
			}
			return nil
		})
	})
}

func (b *BadgerDB) startGC(interval time.Duration, ratio float64) {
	b.stopGC = make(chan struct{})
	b.gcDone = make(chan struct{})
	go func() {
		defer close(b.gcDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopGC:
				return
			case <-ticker.C:
				err := b.db.RunValueLogGC(ratio)
				if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
					b.logger.Warn("badger value log gc failed", "error", err)
				}
			}
		}
	}()
}

// Close stops the GC loop and closes the database.
func (b *BadgerDB) Close() error {
	if b.stopGC != nil {
		close(b.stopGC)
		<-b.gcDone
		b.stopGC = nil
	}
	return b.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

// BadgerHashStore implements ports.HashStore on badger.
type BadgerHashStore struct {
	db *BadgerDB
}

var _ ports.HashStore = (*BadgerHashStore)(nil)

func hashKey(fp string) []byte { return []byte(hashPrefix + fp) }

func (s *BadgerHashStore) Contains(_ context.Context, fingerprint string) (bool, error) {
	err := s.db.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(hashKey(fingerprint))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup hash: %w", err)
	}
	return true, nil
}

func (s *BadgerHashStore) Mark(_ context.Context, record domain.HashRecord) error {
	err := s.db.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(hashKey(record.Fingerprint))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return setJSON(txn, hashKey(record.Fingerprint), record)
	})
	if err != nil {
		return fmt.Errorf("mark hash: %w", err)
	}
	return nil
}

func (s *BadgerHashStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	var stale [][]byte
	err := s.db.db.View(func(txn *badger.Txn) error {
		return scanHashes(txn, func(key []byte, rec domain.HashRecord) {
			if rec.MarkedAt.Before(olderThan) {
				stale = append(stale, key)
			}
		})
	})
	if err != nil {
		return 0, fmt.Errorf("scan hashes: %w", err)
	}
	if err := deleteKeys(s.db.db, stale); err != nil {
		return 0, fmt.Errorf("delete hashes: %w", err)
	}
	return len(stale), nil
}

func (s *BadgerHashStore) Stats(_ context.Context, now time.Time) (domain.HashStats, error) {
	var stats domain.HashStats
	err := s.db.db.View(func(txn *badger.Txn) error {
		return scanHashes(txn, func(_ []byte, rec domain.HashRecord) {
			accumulateStats(&stats, rec, now)
		})
	})
	if err != nil {
		return domain.HashStats{}, fmt.Errorf("scan hashes: %w", err)
	}
	return stats, nil
}

func scanHashes(txn *badger.Txn, fn func(key []byte, rec domain.HashRecord)) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(hashPrefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(hashPrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var rec domain.HashRecord
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
		if err != nil {
			return err
		}
		fn(it.Item().KeyCopy(nil), rec)
	}
	return nil
}

func deleteKeys(db *badger.DB, keys [][]byte) error {
	if len(keys) == 0 {
		return nil
	}
	wb := db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// BadgerArticleStore implements ports.ArticleStore on badger. Items live
// under item/<fp>; pub/<unix nanos>/<fp> orders them by publication time.
type BadgerArticleStore struct {
	db *BadgerDB
}

var _ ports.ArticleStore = (*BadgerArticleStore)(nil)

func itemKey(fp string) []byte { return []byte(itemPrefix + fp) }

func pubKey(at time.Time, fp string) []byte {
	key := make([]byte, 0, len(pubPrefix)+9+len(fp))
	key = append(key, pubPrefix...)
	key = binary.BigEndian.AppendUint64(key, sortableNanos(at))
	key = append(key, '/')
	return append(key, fp...)
}

func sortableNanos(at time.Time) uint64 {
	if at.IsZero() || at.Unix() < 0 {
		return 0
	}
	return uint64(at.UnixNano())
}

func fingerprintFromPubKey(key []byte) string {
	return string(key[len(pubPrefix)+9:])
}

func (s *BadgerArticleStore) Upsert(_ context.Context, item domain.Item) error {
	item = prepareUpsert(item, s.db.now())
	err := s.db.db.Update(func(txn *badger.Txn) error {
		var existing domain.Item
		err := getJSON(txn, itemKey(item.Fingerprint), &existing)
		switch {
		case err == nil:
			if err := txn.Delete(pubKey(existing.Timestamp(), existing.Fingerprint)); err != nil {
				return err
			}
			item = domain.Merge(existing, item)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		if err := setJSON(txn, itemKey(item.Fingerprint), item); err != nil {
			return err
		}
		return txn.Set(pubKey(item.Timestamp(), item.Fingerprint), nil)
	})
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.Fingerprint, err)
	}
	return nil
}

func (s *BadgerArticleStore) Get(_ context.Context, fingerprint string) (domain.Item, error) {
	var item domain.Item
	err := s.db.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, itemKey(fingerprint), &item)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("get item %s: %w", fingerprint, err)
	}
	return item, nil
}

func (s *BadgerArticleStore) MarkStatus(_ context.Context, fingerprint string, status domain.Status) error {
	err := s.db.db.Update(func(txn *badger.Txn) error {
		var item domain.Item
		if err := getJSON(txn, itemKey(fingerprint), &item); err != nil {
			return err
		}
		item.Status = status
		item.UpdatedAt = s.db.now()
		return setJSON(txn, itemKey(fingerprint), item)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("mark status %s: %w", fingerprint, err)
	}
	return nil
}

// ListUnprocessed walks the publication index one page per read
// transaction, so no transaction stays open while the consumer works.
func (s *BadgerArticleStore) ListUnprocessed(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return s.list(ctx, since, "list unprocessed", domain.Status.Unprocessed)
}

// ListRetryable walks the same index for enriched and failed items.
func (s *BadgerArticleStore) ListRetryable(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return s.list(ctx, since, "list retryable", domain.Status.Retryable)
}

func (s *BadgerArticleStore) list(ctx context.Context, since time.Time, op string, want func(domain.Status) bool) iter.Seq2[domain.Item, error] {
	return func(yield func(domain.Item, error) bool) {
		cursor := pubKey(since, "")
		for {
			if err := ctx.Err(); err != nil {
				yield(domain.Item{}, err)
				return
			}

			page, next, err := s.page(cursor, want)
			if err != nil {
				yield(domain.Item{}, fmt.Errorf("%s: %w", op, err))
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			if next == nil {
				return
			}
			cursor = next
		}
	}
}

func (s *BadgerArticleStore) page(cursor []byte, want func(domain.Status) bool) ([]domain.Item, []byte, error) {
	var (
		items []domain.Item
		next  []byte
	)
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(pubPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		scanned := 0
		for it.Seek(cursor); it.ValidForPrefix(opts.Prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			if scanned == s.db.pageSize {
				next = key
				return nil
			}
			scanned++

			var item domain.Item
			err := getJSON(txn, itemKey(fingerprintFromPubKey(key)), &item)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if want(item.Status) {
				items = append(items, item)
			}
		}
		return nil
	})
	return items, next, err
}

// Prune deletes items first seen before olderThan together with their index keys.
func (s *BadgerArticleStore) Prune(_ context.Context, olderThan time.Time) (int, error) {
	var stale [][]byte
	removed := 0
	err := s.db.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(itemPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			var item domain.Item
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &item)
			})
			if err != nil {
				return err
			}
			if item.FirstSeenAt.Before(olderThan) {
				stale = append(stale, it.Item().KeyCopy(nil), pubKey(item.Timestamp(), item.Fingerprint))
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan items: %w", err)
	}
	if err := deleteKeys(s.db.db, stale); err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return removed, nil
}

// BadgerHeartbeatStore keeps the heartbeat under a single meta key.
type BadgerHeartbeatStore struct {
	db *BadgerDB
}

var _ ports.HeartbeatStore = (*BadgerHeartbeatStore)(nil)

func (s *BadgerHeartbeatStore) LastHeartbeat(context.Context) (time.Time, error) {
	var at time.Time
	err := s.db.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(heartbeatKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return at.UnmarshalText(bytes.TrimSpace(val))
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read heartbeat: %w", err)
	}
	return at, nil
}

func (s *BadgerHeartbeatStore) Beat(_ context.Context, at time.Time) error {
	raw, err := at.UTC().MarshalText()
	if err != nil {
		return fmt.Errorf("encode heartbeat: %w", err)
	}
	err = s.db.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(heartbeatKey), raw)
	})
	if err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}
