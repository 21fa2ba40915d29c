package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// PgxIface is the subset of *pgxpool.Pool the stores use.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS processed_hashes (
		fingerprint TEXT PRIMARY KEY,
		title       TEXT NOT NULL DEFAULT '',
		company     TEXT NOT NULL DEFAULT '',
		link        TEXT NOT NULL DEFAULT '',
		marked_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS processed_hashes_marked_at_idx ON processed_hashes (marked_at)`,
	`CREATE TABLE IF NOT EXISTS articles (
		fingerprint   TEXT PRIMARY KEY,
		guid          TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL,
		link          TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		published_at  TIMESTAMPTZ NOT NULL,
		first_seen_at TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL,
		payload       JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS articles_unprocessed_idx ON articles (published_at, fingerprint) WHERE status IN ('fetched', 'matched')`,
	`CREATE TABLE IF NOT EXISTS heartbeat (
		id      SMALLINT PRIMARY KEY CHECK (id = 1),
		beat_at TIMESTAMPTZ NOT NULL
	)`,
}

// OpenPostgres connects to the database, applies migrations and returns the
// stores backed by it.
func OpenPostgres(ctx context.Context, dsn string) (*Stores, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return NewPostgres(pool, time.Now), nil
}

// NewPostgres builds stores on an existing pool.
func NewPostgres(pool PgxIface, now func() time.Time) *Stores {
	if now == nil {
		now = time.Now
	}
	return &Stores{
		Hashes:    &PostgresHashStore{pool: pool},
		Articles:  &PostgresArticleStore{pool: pool, now: now, pageSize: defaultPageSize},
		Heartbeat: &PostgresHeartbeatStore{pool: pool},
		closer:    poolCloser{pool},
	}
}

type poolCloser struct{ pool PgxIface }

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, pool PgxIface) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// PostgresHashStore persists alerted fingerprints in processed_hashes.
type PostgresHashStore struct {
	pool PgxIface
}

var _ ports.HashStore = (*PostgresHashStore)(nil)

func (s *PostgresHashStore) Contains(ctx context.Context, fingerprint string) (bool, error) {
	query, args, err := psql.Select("1").From("processed_hashes").
		Where(sq.Eq{"fingerprint": fingerprint}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup hash: %w", err)
	}
	return true, nil
}

func (s *PostgresHashStore) Mark(ctx context.Context, record domain.HashRecord) error {
	query, args, err := psql.Insert("processed_hashes").
		Columns("fingerprint", "title", "company", "link", "marked_at").
		Values(record.Fingerprint, record.Title, record.Company, record.Link, record.MarkedAt).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark hash: %w", err)
	}
	return nil
}

func (s *PostgresHashStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	query, args, err := psql.Delete("processed_hashes").
		Where(sq.Lt{"marked_at": olderThan}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune hashes: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresHashStore) Stats(ctx context.Context, now time.Time) (domain.HashStats, error) {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	query, args, err := psql.Select("COUNT(*)").
		Column(sq.Expr("COUNT(*) FILTER (WHERE marked_at >= ?)", today)).
		Column(sq.Expr("COUNT(*) FILTER (WHERE marked_at >= ?)", now.Add(-24*time.Hour))).
		Column("MAX(marked_at)").
		From("processed_hashes").ToSql()
	if err != nil {
		return domain.HashStats{}, fmt.Errorf("build query: %w", err)
	}

	var (
		total, todayCount, dayCount int64
		last                        *time.Time
	)
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total, &todayCount, &dayCount, &last); err != nil {
		return domain.HashStats{}, fmt.Errorf("hash stats: %w", err)
	}

	stats := domain.HashStats{Total: int(total), Today: int(todayCount), Last24h: int(dayCount)}
	if last != nil {
		stats.LastMarkedAt = *last
	}
	return stats, nil
}

// PostgresArticleStore keeps items in the articles table. The full item is
// stored as JSONB; indexed columns mirror the fields used for lookups.
type PostgresArticleStore struct {
	pool     PgxIface
	now      func() time.Time
	pageSize int
}

var _ ports.ArticleStore = (*PostgresArticleStore)(nil)

func (s *PostgresArticleStore) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresArticleStore) Upsert(ctx context.Context, item domain.Item) error {
	item = prepareUpsert(item, s.now())

	err := s.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Select("payload").From("articles").
			Where(sq.Eq{"fingerprint": item.Fingerprint}).Suffix("FOR UPDATE").ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}

		var raw []byte
		err = tx.QueryRow(ctx, query, args...).Scan(&raw)
		switch {
		case err == nil:
			var existing domain.Item
			if err := json.Unmarshal(raw, &existing); err != nil {
				return fmt.Errorf("decode stored item: %w", err)
			}
			item = domain.Merge(existing, item)
		case !errors.Is(err, pgx.ErrNoRows):
			return fmt.Errorf("load item: %w", err)
		}

		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode item: %w", err)
		}

		query, args, err = psql.Insert("articles").
			Columns("fingerprint", "guid", "title", "link", "status", "published_at", "first_seen_at", "updated_at", "payload").
			Values(item.Fingerprint, item.GUID, item.Title, item.Link, string(item.Status),
				item.Timestamp(), item.FirstSeenAt, item.UpdatedAt, string(payload)).
			Suffix(`ON CONFLICT (fingerprint) DO UPDATE SET
				guid = EXCLUDED.guid,
				title = EXCLUDED.title,
				link = EXCLUDED.link,
				status = EXCLUDED.status,
				published_at = EXCLUDED.published_at,
				updated_at = EXCLUDED.updated_at,
				payload = EXCLUDED.payload`).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		_, err = tx.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", item.Fingerprint, err)
	}
	return nil
}

func (s *PostgresArticleStore) Get(ctx context.Context, fingerprint string) (domain.Item, error) {
	query, args, err := psql.Select("payload").From("articles").
		Where(sq.Eq{"fingerprint": fingerprint}).ToSql()
	if err != nil {
		return domain.Item{}, fmt.Errorf("build query: %w", err)
	}

	var raw []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Item{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Item{}, fmt.Errorf("get item %s: %w", fingerprint, err)
	}

	var item domain.Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return domain.Item{}, fmt.Errorf("decode item %s: %w", fingerprint, err)
	}
	return item, nil
}

func (s *PostgresArticleStore) MarkStatus(ctx context.Context, fingerprint string, status domain.Status) error {
	now := s.now()
	query, args, err := psql.Update("articles").
		Set("status", string(status)).
		Set("updated_at", now).
		Set("payload", sq.Expr(
			"jsonb_set(jsonb_set(payload, '{status}', to_jsonb(?::text)), '{updated_at}', to_jsonb(?::timestamptz))",
			string(status), now)).
		Where(sq.Eq{"fingerprint": fingerprint}).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark status %s: %w", fingerprint, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListUnprocessed pages through the table with a (published_at, fingerprint)
// keyset; each page is a separate statement.
func (s *PostgresArticleStore) ListUnprocessed(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return s.list(ctx, since, "list unprocessed", domain.StatusFetched, domain.StatusMatched)
}

// ListRetryable returns enriched and failed items with the same keyset paging.
func (s *PostgresArticleStore) ListRetryable(ctx context.Context, since time.Time) iter.Seq2[domain.Item, error] {
	return s.list(ctx, since, "list retryable", domain.StatusEnriched, domain.StatusFailed)
}

func (s *PostgresArticleStore) list(ctx context.Context, since time.Time, op string, statuses ...domain.Status) iter.Seq2[domain.Item, error] {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}
	return func(yield func(domain.Item, error) bool) {
		var last *domain.Item
		for {
			page, err := s.page(ctx, names, since, last)
			if err != nil {
				yield(domain.Item{}, fmt.Errorf("%s: %w", op, err))
				return
			}
			for _, item := range page {
				if !yield(item, nil) {
					return
				}
			}
			if len(page) < s.pageSize {
				return
			}
			last = &page[len(page)-1]
		}
	}
}

func (s *PostgresArticleStore) page(ctx context.Context, statuses []string, since time.Time, after *domain.Item) ([]domain.Item, error) {
	q := psql.Select("payload").From("articles").
		Where(sq.Eq{"status": statuses}).
		Where(sq.GtOrEq{"published_at": since})
	if after != nil {
		q = q.Where(sq.Expr("(published_at, fingerprint) > (?, ?)", after.Timestamp(), after.Fingerprint))
	}
	query, args, err := q.OrderBy("published_at ASC", "fingerprint ASC").
		Limit(uint64(s.pageSize)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		var item domain.Item
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Prune deletes items first seen before olderThan.
func (s *PostgresArticleStore) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	query, args, err := psql.Delete("articles").
		Where(sq.Lt{"first_seen_at": olderThan}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PostgresHeartbeatStore keeps the heartbeat in a single-row table.
type PostgresHeartbeatStore struct {
	pool PgxIface
}

var _ ports.HeartbeatStore = (*PostgresHeartbeatStore)(nil)

func (s *PostgresHeartbeatStore) LastHeartbeat(ctx context.Context) (time.Time, error) {
	query, args, err := psql.Select("beat_at").From("heartbeat").Where(sq.Eq{"id": 1}).ToSql()
	if err != nil {
		return time.Time{}, fmt.Errorf("build query: %w", err)
	}

	var at time.Time
	err = s.pool.QueryRow(ctx, query, args...).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read heartbeat: %w", err)
	}
	return at, nil
}

func (s *PostgresHeartbeatStore) Beat(ctx context.Context, at time.Time) error {
	query, args, err := psql.Insert("heartbeat").Columns("id", "beat_at").Values(1, at).
		Suffix("ON CONFLICT (id) DO UPDATE SET beat_at = EXCLUDED.beat_at").ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	return nil
}
