package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSweeper struct {
	mu        sync.Mutex
	calls     int
	olderThan time.Duration
	limit     int
	processed int
	err       error
	block     bool
}

func (f *fakeSweeper) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	f.mu.Lock()
	f.calls++
	f.olderThan = olderThan
	f.limit = limit
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.processed, f.err
}

type fakeFulfiller struct {
	enabled bool
	calls   int
	limit   int
	err     error
}

func (f *fakeFulfiller) Enabled() bool { return f.enabled }

func (f *fakeFulfiller) FulfillPending(ctx context.Context, limit int) (int, error) {
	f.calls++
	f.limit = limit
	return 1, f.err
}

func newTestScheduler(t *testing.T, cfg Config, sweeper PendingSweeper, fulfiller SessionFulfiller) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s, err := newScheduler(zap.NewNop(), node, clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)), nil, cfg, sweeper, fulfiller)
	require.NoError(t, err)
	return s
}

func TestRunOnceRunsEnabledJobs(t *testing.T) {
	sweeper := &fakeSweeper{processed: 2}
	fulfiller := &fakeFulfiller{enabled: true}
	s := newTestScheduler(t, Config{BatchSize: 7, PendingThreshold: 5 * time.Minute}, sweeper, fulfiller)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, sweeper.calls)
	assert.Equal(t, 5*time.Minute, sweeper.olderThan)
	assert.Equal(t, 7, sweeper.limit)
	assert.Equal(t, 1, fulfiller.calls)
	assert.Equal(t, 7, fulfiller.limit)
}

func TestRunOnceSkipsIdleFulfiller(t *testing.T) {
	sweeper := &fakeSweeper{}
	fulfiller := &fakeFulfiller{enabled: false}
	s := newTestScheduler(t, Config{}, sweeper, fulfiller)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Equal(t, 1, sweeper.calls)
	assert.Zero(t, fulfiller.calls)
}

func TestRunOnceWithoutFulfiller(t *testing.T) {
	sweeper := &fakeSweeper{}
	s := newTestScheduler(t, Config{}, sweeper, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestRunOnceHonoursEnabledJobs(t *testing.T) {
	sweeper := &fakeSweeper{}
	fulfiller := &fakeFulfiller{enabled: true}
	s := newTestScheduler(t, Config{EnabledJobs: []string{" FULFILL_SESSIONS "}}, sweeper, fulfiller)

	require.NoError(t, s.RunOnce(context.Background()))

	assert.Zero(t, sweeper.calls)
	assert.Equal(t, 1, fulfiller.calls)
}

func TestRunOnceJoinsJobErrors(t *testing.T) {
	sweepErr := errors.New("sweep failed")
	fulfillErr := errors.New("stripe down")
	s := newTestScheduler(t, Config{}, &fakeSweeper{err: sweepErr}, &fakeFulfiller{enabled: true, err: fulfillErr})

	err := s.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, sweepErr)
	assert.ErrorIs(t, err, fulfillErr)
	assert.Contains(t, err.Error(), JobReconcilePending)
	assert.Contains(t, err.Error(), JobFulfillSessions)
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	sweeper := &fakeSweeper{block: true}
	s := newTestScheduler(t, Config{JobTimeout: 5 * time.Millisecond}, sweeper, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestNewRequiresReconciler(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: -1}.withDefaults()
	assert.Equal(t, DefaultConfig(), cfg)
}

type ctxCapturingSweeper struct {
	runID string
}

func (c *ctxCapturingSweeper) SweepPending(ctx context.Context, _ time.Duration, _ int) (int, error) {
	c.runID = RunIDFromContext(ctx)
	return 0, nil
}

func TestRunOnceTagsContextWithRunID(t *testing.T) {
	sweeper := &ctxCapturingSweeper{}
	s := newTestScheduler(t, Config{}, sweeper, nil)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.NotEmpty(t, sweeper.runID)
	assert.Empty(t, RunIDFromContext(context.Background()))
}
