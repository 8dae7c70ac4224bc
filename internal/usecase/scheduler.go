package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ReelRelay/internal/domain"
	"ReelRelay/internal/ports"
)

// Runner is the part of Pipeline the scheduler depends on.
type Runner interface {
	Run(ctx context.Context, count int) (domain.RunSummary, error)
}

// SchedulerOptions configures the recurring trigger.
type SchedulerOptions struct {
	Expression   string
	VideosPerRun int
	RunOnStart   bool
	Logger       zerolog.Logger
}

// SchedulerStatus is a point-in-time view of the trigger.
type SchedulerStatus struct {
	Running      bool
	Scheduled    bool
	Expression   string
	VideosPerRun int
	LastSummary  *domain.RunSummary
	LastError    string
}

// Scheduler wires the cron-like driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline Runner
	opts     SchedulerOptions

	mu          sync.Mutex
	scheduled   bool
	running     bool
	lastSummary *domain.RunSummary
	lastError   string
	inflight    sync.WaitGroup
}

// NewScheduler returns a helper to start/stop recurring jobs.
func NewScheduler(driver ports.Scheduler, pipeline Runner, opts SchedulerOptions) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts}
}

// Start registers the pipeline with the driver. Triggers that fire while a
// run is active are skipped, not queued.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.inflight.Add(1)
		defer s.inflight.Done()
		s.trigger(ctx, trigger)
	}
	if err := s.driver.Start(ctx, job); err != nil {
		return err
	}

	s.mu.Lock()
	s.scheduled = true
	s.mu.Unlock()

	if s.opts.RunOnStart {
		s.opts.Logger.Info().Msg("running pipeline immediately on start")
		s.inflight.Add(1)
		go func() {
			defer s.inflight.Done()
			s.trigger(ctx, time.Now())
		}()
	}
	return nil
}

// Stop tears down the driver and waits for runs already in progress,
// bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	s.mu.Lock()
	s.scheduled = false
	s.mu.Unlock()

	err := s.driver.Stop(ctx)

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

// Status reports whether a run is active and the outcome of the last run.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SchedulerStatus{
		Running:      s.running,
		Scheduled:    s.scheduled,
		Expression:   s.opts.Expression,
		VideosPerRun: s.opts.VideosPerRun,
		LastSummary:  s.lastSummary,
		LastError:    s.lastError,
	}
}

func (s *Scheduler) trigger(ctx context.Context, at time.Time) {
	if ctx.Err() != nil {
		return
	}
	logger := s.opts.Logger.With().Time("trigger", at).Logger()

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	summary, err := s.pipeline.Run(ctx, s.opts.VideosPerRun)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, ErrRunInProgress):
		logger.Warn().Msg("previous run still active, skipping trigger")
		return
	case err != nil:
		logger.Error().Err(err).Msg("scheduled run failed")
		s.lastError = err.Error()
	default:
		s.lastError = ""
	}
	s.running = false
	s.lastSummary = &summary
}
