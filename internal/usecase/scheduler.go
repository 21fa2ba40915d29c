package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"DisclosureMonitor/internal/metrics"
	"DisclosureMonitor/internal/ports"
)

// CycleRunner executes one monitoring cycle.
type CycleRunner interface {
	Run(ctx context.Context, req CycleRequest) (CycleReport, error)
}

// SchedulerDeps wires the timers and the cycle together.
type SchedulerDeps struct {
	Cycle           CycleRunner
	Heartbeat       ports.HeartbeatStore
	CycleDriver     ports.Scheduler
	HeartbeatDriver ports.Scheduler
	PruneDriver     ports.Scheduler
	Pruner          *Pruner
	Clock           func() time.Time
	Logger          *slog.Logger
}

// SchedulerOptions sets the suspension detector.
type SchedulerOptions struct {
	SleepThreshold time.Duration
	MaxLookback    time.Duration
}

// SchedulerSnapshot is the externally visible scheduler state.
type SchedulerSnapshot struct {
	Running       bool          `json:"running"`
	Pending       *CycleRequest `json:"pending,omitempty"`
	LastReport    *CycleReport  `json:"last_report,omitempty"`
	LastHeartbeat time.Time     `json:"last_heartbeat,omitempty"`
	CatchUps      int           `json:"catch_ups"`
	Skipped       int           `json:"skipped"`
}

// Scheduler guarantees at most one cycle at a time, detects host
// suspension through heartbeat gaps and requests catch-up cycles.
type Scheduler struct {
	cycle           CycleRunner
	heartbeat       ports.HeartbeatStore
	cycleDriver     ports.Scheduler
	heartbeatDriver ports.Scheduler
	pruneDriver     ports.Scheduler
	pruner          *Pruner
	clock           func() time.Time
	logger          *slog.Logger
	opts            SchedulerOptions

	gapMu sync.Mutex

	mu            sync.Mutex
	running       bool
	pending       *CycleRequest
	last          *CycleReport
	lastHeartbeat time.Time
	catchUps      int
	skipped       int

	stopping atomic.Bool
	wg       sync.WaitGroup
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(deps SchedulerDeps, opts SchedulerOptions) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.SleepThreshold <= 0 {
		opts.SleepThreshold = 5 * time.Minute
	}
	if opts.MaxLookback <= 0 {
		opts.MaxLookback = 24 * time.Hour
	}
	return &Scheduler{
		cycle:           deps.Cycle,
		heartbeat:       deps.Heartbeat,
		cycleDriver:     deps.CycleDriver,
		heartbeatDriver: deps.HeartbeatDriver,
		pruneDriver:     deps.PruneDriver,
		pruner:          deps.Pruner,
		clock:           deps.Clock,
		logger:          deps.Logger,
		opts:            opts,
	}
}

// Start decides the first run from the stored heartbeat, then registers
// the cycle, heartbeat and prune jobs with their drivers.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cycle == nil || s.cycleDriver == nil {
		return errors.New("scheduler misconfigured")
	}
	s.stopping.Store(false)

	initial := CycleRequest{Trigger: TriggerStartup}
	if s.heartbeat != nil {
		if req, ok := s.detectGap(ctx, s.clock()); ok {
			initial = req
		}
	}

	first := true
	err := s.cycleDriver.Start(ctx, func(time.Time) {
		req := CycleRequest{Trigger: TriggerScheduled}
		switch {
		case first:
			req, first = initial, false
		case s.heartbeat != nil:
			// After a wake the cycle tick may beat the heartbeat tick; its
			// own heartbeat write would hide the gap.
			if gap, ok := s.detectGap(ctx, s.clock()); ok {
				req = gap
			}
		}
		_, _, _ = s.Trigger(ctx, req)
	})
	if err != nil {
		return err
	}

	if s.heartbeatDriver != nil && s.heartbeat != nil {
		if err := s.heartbeatDriver.Start(ctx, func(time.Time) { s.CheckHeartbeat(ctx) }); err != nil {
			return err
		}
	}

	if s.pruneDriver != nil && s.pruner != nil {
		err := s.pruneDriver.Start(ctx, func(time.Time) {
			if _, err := s.pruner.Prune(ctx); err != nil {
				metrics.RecordError("prune")
				s.logger.Error("prune failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Stop halts the timers and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopping.Store(true)

	var errs []error
	for _, d := range []ports.Scheduler{s.heartbeatDriver, s.pruneDriver, s.cycleDriver} {
		if d == nil {
			continue
		}
		if err := d.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// Trigger runs a cycle unless one is already in flight. A busy scheduler
// skips normal requests and folds catch-up requests into one pending
// catch-up, keeping the largest lookback, which runs right after the
// current cycle. The bool result reports whether req itself ran.
func (s *Scheduler) Trigger(ctx context.Context, req CycleRequest) (CycleReport, bool, error) {
	s.mu.Lock()
	if s.running {
		if req.Trigger == TriggerCatchUp {
			if s.pending == nil || req.Lookback > s.pending.Lookback {
				s.pending = &req
			}
			s.mu.Unlock()
			s.logger.Info("catch-up queued behind running cycle", "lookback", req.Lookback)
			return CycleReport{}, false, nil
		}
		s.skipped++
		s.mu.Unlock()
		metrics.RecordSkippedTrigger()
		s.logger.Info("cycle already running, trigger skipped", "trigger", req.Trigger)
		return CycleReport{}, false, nil
	}
	s.running = true
	s.mu.Unlock()

	settled := false
	defer func() {
		if settled {
			return
		}
		// Run panicked: release the flag so later triggers are not skipped.
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	var (
		firstReport CycleReport
		firstErr    error
	)
	for i := 0; ; i++ {
		report, err := s.cycle.Run(ctx, req)
		if err != nil {
			s.logger.Error("cycle failed", "cycle_id", report.ID, "error", err)
		}
		if i == 0 {
			firstReport, firstErr = report, err
		}

		s.mu.Lock()
		s.last = &report
		next := s.pending
		s.pending = nil
		if next == nil || ctx.Err() != nil || s.stopping.Load() {
			s.running = false
			s.mu.Unlock()
			settled = true
			return firstReport, true, firstErr
		}
		s.mu.Unlock()
		req = *next
	}
}

// CheckHeartbeat compares the stored heartbeat with now, requests a
// catch-up when the gap exceeds the sleep threshold and writes a new
// heartbeat.
func (s *Scheduler) CheckHeartbeat(ctx context.Context) {
	if req, ok := s.detectGap(ctx, s.clock()); ok && !s.stopping.Load() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			_, _, _ = s.Trigger(ctx, req)
		}()
	}
}

// detectGap reads the stored heartbeat and replaces it with now. Both timers
// call it, so one suspension yields one catch-up request.
func (s *Scheduler) detectGap(ctx context.Context, now time.Time) (CycleRequest, bool) {
	s.gapMu.Lock()
	defer s.gapMu.Unlock()

	req, ok := s.gapRequest(ctx, now)
	s.beat(ctx, now)
	return req, ok
}

func (s *Scheduler) gapRequest(ctx context.Context, now time.Time) (CycleRequest, bool) {
	last, err := s.heartbeat.LastHeartbeat(ctx)
	if err != nil {
		metrics.RecordError("heartbeat")
		s.logger.Error("heartbeat read failed", "error", err)
		return CycleRequest{}, false
	}
	if last.IsZero() {
		return CycleRequest{}, false
	}
	gap := now.Sub(last)
	if gap <= s.opts.SleepThreshold {
		return CycleRequest{}, false
	}

	lookback := min(gap, s.opts.MaxLookback)
	s.mu.Lock()
	s.catchUps++
	s.mu.Unlock()
	metrics.RecordCatchUp()
	s.logger.Warn("heartbeat gap detected, scheduling catch-up", "gap", gap, "lookback", lookback)
	return CycleRequest{Trigger: TriggerCatchUp, Lookback: lookback}, true
}

func (s *Scheduler) beat(ctx context.Context, now time.Time) {
	if err := s.heartbeat.Beat(ctx, now); err != nil {
		metrics.RecordError("heartbeat")
		s.logger.Error("heartbeat write failed", "error", err)
		return
	}
	metrics.SetHeartbeat(now)
	s.mu.Lock()
	s.lastHeartbeat = now
	s.mu.Unlock()
}

// Snapshot returns the current state for status reporting.
func (s *Scheduler) Snapshot() SchedulerSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SchedulerSnapshot{
		Running:       s.running,
		LastHeartbeat: s.lastHeartbeat,
		CatchUps:      s.catchUps,
		Skipped:       s.skipped,
	}
	if s.pending != nil {
		p := *s.pending
		snap.Pending = &p
	}
	if s.last != nil {
		r := *s.last
		snap.LastReport = &r
	}
	return snap
}
