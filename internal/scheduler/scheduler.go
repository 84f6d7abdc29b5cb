package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rxtech-lab/safebet-mcp/internal/cache"
	"github.com/rxtech-lab/safebet-mcp/internal/config"
	"github.com/rxtech-lab/safebet-mcp/internal/services"
	"go.uber.org/zap"
)

const (
	JobMirrorReconcile = "mirror-reconcile"
	JobDrawRecovery    = "draw-recovery"
)

var ErrUnknownJob = errors.New("unknown job")

type job struct {
	spec string
	run  func(context.Context) error
}

// Scheduler runs maintenance jobs on cron specs. Each run holds a lock so only
// one replica executes a job at a time.
type Scheduler struct {
	cron    *cron.Cron
	locker  cache.Locker
	lockTTL time.Duration
	logger  *zap.Logger
	baseCtx context.Context
	jobs    map[string]job
}

func New(baseCtx context.Context, locker cache.Locker, lockTTL time.Duration, logger *zap.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = cache.NewMemoryLocker()
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds()),
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
		baseCtx: baseCtx,
		jobs:    map[string]job{},
	}
}

// Add registers run under name. An empty spec registers the job for RunNow only.
func (s *Scheduler) Add(name, spec string, run func(context.Context) error) error {
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = job{spec: spec, run: run}
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() {
		if err := s.RunNow(s.baseCtx, name); err != nil && !errors.Is(err, cache.ErrLockHeld) {
			s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err))
		}
	}); err != nil {
		delete(s.jobs, name)
		return fmt.Errorf("invalid spec %q for job %s: %w", spec, name, err)
	}
	return nil
}

// RunNow runs the named job once under its lock.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.Locked(ctx, name, j.run)
}

// Locked runs fn while holding the lock of the named job, so an on-demand run
// never overlaps a scheduled one.
func (s *Scheduler) Locked(ctx context.Context, name string, fn func(context.Context) error) error {
	release, err := s.locker.Acquire(ctx, "job:"+name, s.lockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			s.logger.Debug("job already running elsewhere", zap.String("job", name))
		}
		return err
	}
	defer release()

	start := time.Now()
	err = fn(ctx)
	s.logger.Info("job finished",
		zap.String("job", name),
		zap.Duration("took", time.Since(start)),
		zap.Bool("ok", err == nil),
	)
	return err
}

func (s *Scheduler) Start() {
	s.logger.Info("cron started", zap.Int("jobs", len(s.cron.Entries())))
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("cron stopped")
}

// RegisterMaintenance adds the mirror reconciliation and draw recovery jobs.
func RegisterMaintenance(s *Scheduler, cfg config.CronConfig, mirrorSync services.MirrorSyncService, draws services.DrawService) error {
	if err := s.Add(JobMirrorReconcile, cfg.MirrorReconcile, func(ctx context.Context) error {
		_, err := mirrorSync.Reconcile(ctx)
		return err
	}); err != nil {
		return err
	}
	return s.Add(JobDrawRecovery, cfg.DrawRecovery, func(ctx context.Context) error {
		reports, err := draws.ResumeSettlements(ctx)
		if err != nil {
			return err
		}
		for _, report := range reports {
			if report.Outcome != nil && !report.Outcome.Succeeded() {
				s.logger.Warn("settlement not completed",
					zap.String("pool", report.PoolAddress),
					zap.String("status", string(report.Outcome.Status)),
					zap.String("kind", string(report.Outcome.Kind)),
					zap.String("message", report.Outcome.Message),
				)
			}
		}
		return nil
	})
}
