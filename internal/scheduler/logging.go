package scheduler

import (
	"context"
	"time"

	obslogger "github.com/smallbiznis/carbonmarket/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of one job. Every line it logs carries the
// job name and a snowflake run id so a sweep can be followed end to end.
type jobRun struct {
	job       string
	runID     string
	startedAt time.Time
	processed int
	failures  int
	log       *zap.Logger
}

type runIDKey struct{}

func (s *Scheduler) startRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	run := &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		startedAt: s.clock.Now(),
	}
	ctx = context.WithValue(ctx, runIDKey{}, run.runID)
	run.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("job", job),
		zap.String("run_id", run.runID),
	)
	run.log.Debug("scheduler.job.start", zap.Int("batch_size", batchSize))
	return ctx, run
}

// RunIDFromContext returns the id of the scheduler run driving ctx, if any.
func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

func (r *jobRun) add(n int) {
	if n > 0 {
		r.processed += n
	}
}

func (r *jobRun) fail(err error) {
	if err == nil {
		return
	}
	r.failures++
	r.log.Error("scheduler.job.error",
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Error(err),
	)
}

// finish logs the outcome. Quiet runs stay at debug so an idle scheduler
// does not fill the log every tick.
func (r *jobRun) finish(now time.Time) {
	fields := []zap.Field{
		zap.Duration("duration", now.Sub(r.startedAt)),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failures),
	}
	switch {
	case r.failures > 0:
		r.log.Warn("scheduler.job.finish", fields...)
	case r.processed == 0:
		r.log.Debug("scheduler.job.finish", fields...)
	default:
		r.log.Info("scheduler.job.finish", fields...)
	}
}
