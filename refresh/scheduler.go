package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/ragkb"
	"github.com/robfig/cron/v3"
)

// Runner runs one refresh pass.
type Runner interface {
	Run(ctx context.Context) (*Report, error)
}

// Scheduler runs a Runner on a cron schedule. Scheduled and manual runs
// never overlap.
type Scheduler struct {
	runner   Runner
	schedule cron.Schedule
	cron     *cron.Cron
	logger   *slog.Logger

	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec as a standard five-field cron expression.
// Returns EINVALID if the expression does not parse.
func NewScheduler(runner Runner, spec string, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, ragkb.Errorf(ragkb.EINVALID, "invalid refresh schedule %q: %v", spec, err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{runner: runner, schedule: schedule, logger: logger}, nil
}

// Start begins running on schedule. Scheduled runs use a context derived
// from ctx and stop when it is canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New()
	s.cron.Schedule(s.schedule, cron.FuncJob(s.scheduled))
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "next", s.NextRun(time.Now()))
}

// Stop halts the schedule and waits for a running job to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped")
}

// RunNow runs a refresh immediately.
// Returns ECONFLICT if a run is already in progress.
func (s *Scheduler) RunNow(ctx context.Context) (*Report, error) {
	if !s.mu.TryLock() {
		return nil, ragkb.Errorf(ragkb.ECONFLICT, "a refresh is already running")
	}
	defer s.mu.Unlock()
	return s.runner.Run(ctx)
}

// NextRun returns the first scheduled time after now.
func (s *Scheduler) NextRun(now time.Time) time.Time {
	return s.schedule.Next(now)
}

func (s *Scheduler) scheduled() {
	report, err := s.RunNow(s.ctx)
	if err != nil {
		if ragkb.ErrorCode(err) == ragkb.ECONFLICT {
			s.logger.Info("skipping scheduled refresh, previous run still active")
			return
		}
		s.logger.Error("scheduled refresh failed", "err", err)
		return
	}
	s.logger.Info("scheduled refresh complete", "updated", report.Updated, "failed", report.Failed)
}
