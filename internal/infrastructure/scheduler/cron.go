package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ReelRelay/internal/ports"
)

// CronScheduler triggers jobs on a standard five-field cron expression.
type CronScheduler struct {
	spec     string
	location *time.Location
	logger   zerolog.Logger

	mu      sync.Mutex
	engine  *cron.Cron
	stopped chan struct{}
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler validates the expression up front so misconfiguration
// surfaces before Start.
func NewCronScheduler(spec string, location *time.Location, logger zerolog.Logger) (*CronScheduler, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	if location == nil {
		location = time.UTC
	}
	return &CronScheduler{spec: spec, location: location, logger: logger}, nil
}

// Start registers job and begins triggering. Starting twice is a no-op. The
// engine stops on its own once ctx is done.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.engine != nil {
		return nil
	}

	engine := cron.New(cron.WithLocation(c.location))
	if _, err := engine.AddFunc(c.spec, func() { job(time.Now().In(c.location)) }); err != nil {
		return fmt.Errorf("schedule %q: %w", c.spec, err)
	}
	engine.Start()
	stopped := make(chan struct{})
	c.engine, c.stopped = engine, stopped

	c.logger.Info().Str("cron", c.spec).Str("schedule", Describe(c.spec)).
		Str("timezone", c.location.String()).Msg("scheduler started")

	go func() {
		select {
		case <-ctx.Done():
			_ = c.stopEngine(context.Background(), engine)
		case <-stopped:
		}
	}()
	return nil
}

// Stop prevents further triggers and waits for a running job to return, or
// for ctx to expire.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()

	if engine == nil {
		return nil
	}
	return c.stopEngine(ctx, engine)
}

// stopEngine stops engine only if it is still the current one, so a watcher
// left over from an earlier Start never stops a newer engine.
func (c *CronScheduler) stopEngine(ctx context.Context, engine *cron.Cron) error {
	c.mu.Lock()
	if c.engine != engine {
		c.mu.Unlock()
		return nil
	}
	close(c.stopped)
	c.engine, c.stopped = nil, nil
	c.mu.Unlock()

	done := engine.Stop()
	select {
	case <-done.Done():
		c.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether triggers are registered.
func (c *CronScheduler) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil
}

// Describe renders "*/N" hour or minute shapes as text and returns any other
// expression unchanged.
func Describe(spec string) string {
	fields := strings.Fields(spec)
	if len(fields) != 5 {
		return spec
	}
	minute, hour := fields[0], fields[1]
	if n, ok := strings.CutPrefix(hour, "*/"); ok {
		return fmt.Sprintf("Every %s hours", n)
	}
	if n, ok := strings.CutPrefix(minute, "*/"); ok {
		return fmt.Sprintf("Every %s minutes", n)
	}
	return spec
}
