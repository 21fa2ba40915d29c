package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DisclosureMonitor/internal/config"
)

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	published := time.Now().Add(-time.Hour).Format(time.RFC1123Z)
	body := fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>announcements</title>
<item>
  <title>Acme Infra Limited has informed the Exchange about bagging of order</title>
  <link>https://example.com/acme</link>
  <pubDate>%s</pubDate>
</item>
<item>
  <title>Beta Ltd - Board meeting outcome</title>
  <link>https://example.com/beta</link>
  <pubDate>%s</pubDate>
</item>
</channel></rss>`, published, published)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(feedURL, telegramURL string) config.Config {
	return config.Config{
		Feed:   config.FeedConfig{URL: feedURL, Timeout: 5 * time.Second},
		Filter: config.FilterConfig{Presets: []string{"awards", "contracts"}, DateWindow: 6 * time.Hour},
		Scheduler: config.SchedulerConfig{
			Interval:          time.Hour,
			HeartbeatInterval: time.Minute,
			SleepThreshold:    5 * time.Minute,
			MaxLookback:       24 * time.Hour,
		},
		Storage:    config.StorageConfig{Backend: "memory", Retention: 90 * 24 * time.Hour},
		AI:         config.AIConfig{Provider: "none"},
		Financials: config.FinancialsConfig{Provider: "none"},
		Enrich: config.EnrichConfig{
			Concurrency: 1,
			PDFTimeout:  time.Second,
			MaxPDFBytes: 1 << 20,
			MaxChars:    1000,
			ItemTimeout: 10 * time.Second,
		},
		Notifications: config.NotificationConfig{
			Transport: "telegram",
			Telegram:  config.TelegramConfig{APIBase: telegramURL, BotToken: "token", ChatID: "1"},
		},
	}
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()

	var posts atomic.Int32
	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts.Add(1)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer tg.Close()

	ctx := context.Background()
	application, err := New(ctx, testConfig(feedServer(t).URL, tg.URL), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer application.Close()

	report, err := application.RunOnce(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, int32(1), posts.Load())

	report, err = application.RunOnce(ctx, 12*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Notified)
	assert.Equal(t, 1, report.Duplicates)
	assert.Equal(t, int32(1), posts.Load())

	status, err := application.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Alerts.Total)
	assert.False(t, status.LastHeartbeat.IsZero())

	pruned, err := application.Prune(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned.Hashes)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	tg := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer tg.Close()

	application, err := New(context.Background(), testConfig(feedServer(t).URL, tg.URL), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	assert.Eventually(t, func() bool {
		status, err := application.Status(context.Background())
		return err == nil && status.Alerts.Total == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpenStoresBadger(t *testing.T) {
	t.Parallel()

	cfg := testConfig("http://unused", "http://unused")
	cfg.Storage.Backend = "badger"
	cfg.Storage.Path = filepath.Join(t.TempDir(), "state")

	stores, err := OpenStores(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	require.NoError(t, stores.Heartbeat.Beat(context.Background(), time.Now()))
	require.NoError(t, stores.Close())
}

func TestBuildFilterRejectsUnknownPreset(t *testing.T) {
	t.Parallel()

	_, err := buildFilter(config.FilterConfig{Presets: []string{"nope"}})
	assert.Error(t, err)
}
