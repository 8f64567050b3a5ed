package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/paymentbridge"
	"github.com/smallbiznis/carbonmarket/internal/reconciler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// PendingSweeper re-drives purchase requests that never settled.
type PendingSweeper interface {
	SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// SessionFulfiller fills payment secrets into waiting checkout sessions.
type SessionFulfiller interface {
	Enabled() bool
	FulfillPending(ctx context.Context, limit int) (int, error)
}

type Params struct {
	fx.In

	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Reconciler *reconciler.Reconciler
	Fulfiller  *paymentbridge.Fulfiller     `optional:"true"`
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
	Config     Config                       `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	metrics   *obsmetrics.SchedulerMetrics
	sweeper   PendingSweeper
	fulfiller SessionFulfiller
}

func New(p Params) (*Scheduler, error) {
	if p.Reconciler == nil {
		return nil, ErrInvalidConfig
	}
	var fulfiller SessionFulfiller
	if p.Fulfiller != nil {
		fulfiller = p.Fulfiller
	}
	return newScheduler(p.Log, p.GenID, p.Clock, p.Metrics, p.Config, p.Reconciler, fulfiller)
}

func newScheduler(
	log *zap.Logger,
	genID *snowflake.Node,
	clk clock.Clock,
	metrics *obsmetrics.SchedulerMetrics,
	cfg Config,
	sweeper PendingSweeper,
	fulfiller SessionFulfiller,
) (*Scheduler, error) {
	if log == nil || genID == nil || clk == nil || sweeper == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       cfg.withDefaults(),
		genID:     genID,
		clock:     clk,
		metrics:   metrics,
		sweeper:   sweeper,
		fulfiller: fulfiller,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.startRun(ctx, name, batchSize)
	err := fn(ctx, run)
	s.metrics.ObserveJobRun(name, s.clock.Now().Sub(run.startedAt))
	if err != nil && run.failures == 0 {
		run.fail(err)
	}
	run.finish(s.clock.Now())
	if err == nil {
		return nil
	}

	s.metrics.IncJobError(name, err)
	// deadline is a soft timeout; the next tick picks up the rest
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		run.log.Warn("job timed out", zap.Duration("timeout", timeout))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job a single time and joins their errors.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(ctx context.Context, run *jobRun) error
	}{
		{JobFulfillSessions, s.isJobEnabled(JobFulfillSessions) && s.fulfiller != nil && s.fulfiller.Enabled(), s.fulfillSessionsJob},
		{JobReconcilePending, s.isJobEnabled(JobReconcilePending), s.reconcilePendingJob},
	}

	for _, job := range jobs {
		if !job.Enabled {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.BatchSize, s.cfg.JobTimeout, job.Run))
	}

	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)

	for {
		if runLag := s.clock.Now().Sub(nextRun); runLag > 0 {
			s.metrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(strings.TrimSpace(enabled), jobName) {
			return true
		}
	}
	return false
}

func (s *Scheduler) reconcilePendingJob(ctx context.Context, run *jobRun) error {
	processed, err := s.sweeper.SweepPending(ctx, s.cfg.PendingThreshold, s.cfg.BatchSize)
	run.add(processed)
	s.metrics.AddBatchProcessed(JobReconcilePending, "purchase_requests", processed)
	run.fail(err)
	return err
}

func (s *Scheduler) fulfillSessionsJob(ctx context.Context, run *jobRun) error {
	processed, err := s.fulfiller.FulfillPending(ctx, s.cfg.BatchSize)
	run.add(processed)
	s.metrics.AddBatchProcessed(JobFulfillSessions, "checkout_sessions", processed)
	run.fail(err)
	return err
}
