package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ReelRelay/internal/domain"
)

type fakeDriver struct {
	job     func(time.Time)
	stopped bool
}

func (d *fakeDriver) Start(_ context.Context, job func(time.Time)) error {
	d.job = job
	return nil
}

func (d *fakeDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []int
	result domain.RunSummary
	err    error
}

func (r *fakeRunner) Run(_ context.Context, count int) (domain.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, count)
	return r.result, r.err
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestSchedulerTriggerRecordsSummary(t *testing.T) {
	t.Parallel()
	driver := &fakeDriver{}
	runner := &fakeRunner{result: domain.RunSummary{RunID: "r1", Processed: 2, Succeeded: 2}}
	s := NewScheduler(driver, runner, SchedulerOptions{Expression: "0 */4 * * *", VideosPerRun: 3, Logger: zerolog.Nop()})

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, driver.job)
	assert.True(t, s.Status().Scheduled)

	driver.job(time.Now())

	status := s.Status()
	assert.Equal(t, []int{3}, runner.calls)
	assert.False(t, status.Running)
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, "r1", status.LastSummary.RunID)
	assert.Empty(t, status.LastError)
	assert.Equal(t, "0 */4 * * *", status.Expression)

	require.NoError(t, s.Stop(context.Background()))
	assert.True(t, driver.stopped)
	assert.False(t, s.Status().Scheduled)
}

func TestSchedulerSkipsOverlappingTrigger(t *testing.T) {
	t.Parallel()
	driver := &fakeDriver{}
	runner := &fakeRunner{err: ErrRunInProgress}
	s := NewScheduler(driver, runner, SchedulerOptions{VideosPerRun: 1, Logger: zerolog.Nop()})

	require.NoError(t, s.Start(context.Background()))
	driver.job(time.Now())

	status := s.Status()
	assert.Nil(t, status.LastSummary, "skipped trigger leaves no summary")
	assert.Empty(t, status.LastError)
}

func TestSchedulerRecordsRunError(t *testing.T) {
	t.Parallel()
	driver := &fakeDriver{}
	runner := &fakeRunner{err: errors.New("discover candidates: boom")}
	s := NewScheduler(driver, runner, SchedulerOptions{VideosPerRun: 1, Logger: zerolog.Nop()})

	require.NoError(t, s.Start(context.Background()))
	driver.job(time.Now())

	assert.Equal(t, "discover candidates: boom", s.Status().LastError)
}

func TestSchedulerRunOnStart(t *testing.T) {
	t.Parallel()
	driver := &fakeDriver{}
	runner := &fakeRunner{}
	s := NewScheduler(driver, runner, SchedulerOptions{VideosPerRun: 2, RunOnStart: true, Logger: zerolog.Nop()})

	require.NoError(t, s.Start(context.Background()))
	// Stop waits for the immediate run
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, 1, runner.callCount())
}

func TestSchedulerIgnoresTriggerAfterCancel(t *testing.T) {
	t.Parallel()
	driver := &fakeDriver{}
	runner := &fakeRunner{}
	s := NewScheduler(driver, runner, SchedulerOptions{VideosPerRun: 1, Logger: zerolog.Nop()})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))
	cancel()
	driver.job(time.Now())

	assert.Zero(t, runner.callCount())
}
