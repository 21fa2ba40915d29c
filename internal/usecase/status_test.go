package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/infrastructure/storage"
)

func TestStatusReader(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	stores := storage.NewMemory()
	require.NoError(t, stores.Hashes.Mark(ctx, domain.NewHashRecord(itemA, testNow.Add(-time.Hour))))
	require.NoError(t, stores.Heartbeat.Beat(ctx, testNow.Add(-90*time.Second)))

	report, err := NewStatusReader(stores.Hashes, stores.Heartbeat, nil, fixedClock).Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Alerts.Total)
	assert.Equal(t, 1, report.Alerts.Last24h)
	assert.Equal(t, "1m30s", report.HeartbeatAge)
	assert.Nil(t, report.Scheduler)
}
