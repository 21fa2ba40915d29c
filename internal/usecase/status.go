package usecase

import (
	"context"
	"fmt"
	"time"

	"DisclosureMonitor/internal/domain"
	"DisclosureMonitor/internal/ports"
)

// StatusReport is what the status command and endpoint print.
type StatusReport struct {
	Now           time.Time          `json:"now"`
	LastHeartbeat time.Time          `json:"last_heartbeat,omitempty"`
	HeartbeatAge  string             `json:"heartbeat_age,omitempty"`
	Alerts        domain.HashStats   `json:"alerts"`
	Scheduler     *SchedulerSnapshot `json:"scheduler,omitempty"`
}

// StatusReader assembles a StatusReport from the stores and, when the
// monitor runs in this process, the scheduler.
type StatusReader struct {
	hashes    ports.HashStore
	heartbeat ports.HeartbeatStore
	scheduler *Scheduler
	clock     func() time.Time
}

// NewStatusReader builds a reader. scheduler may be nil.
func NewStatusReader(hashes ports.HashStore, heartbeat ports.HeartbeatStore, scheduler *Scheduler, clock func() time.Time) *StatusReader {
	if clock == nil {
		clock = time.Now
	}
	return &StatusReader{hashes: hashes, heartbeat: heartbeat, scheduler: scheduler, clock: clock}
}

// Status reads a consistent snapshot of alert history and liveness.
func (r *StatusReader) Status(ctx context.Context) (StatusReport, error) {
	report := StatusReport{Now: r.clock()}

	stats, err := r.hashes.Stats(ctx, report.Now)
	if err != nil {
		return report, fmt.Errorf("hash stats: %w", err)
	}
	report.Alerts = stats

	last, err := r.heartbeat.LastHeartbeat(ctx)
	if err != nil {
		return report, fmt.Errorf("last heartbeat: %w", err)
	}
	report.LastHeartbeat = last
	if !last.IsZero() {
		report.HeartbeatAge = report.Now.Sub(last).Round(time.Second).String()
	}

	if r.scheduler != nil {
		snap := r.scheduler.Snapshot()
		report.Scheduler = &snap
	}
	return report, nil
}
