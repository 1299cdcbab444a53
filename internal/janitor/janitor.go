// Package janitor runs periodic housekeeping: expiring job logs and,
// when enabled, dropping registry entries whose dev server died.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every ten minutes
const DefaultSchedule = "@every 10m"

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a five field cron expression or a descriptor such
// as "@hourly" or "@every 5m".
func ParseSchedule(expr string) (cron.Schedule, error) {
	return parser.Parse(expr)
}

// LogExpirer deletes job logs past their expiry
type LogExpirer interface {
	ExpireLogs(ctx context.Context, now time.Time) (int64, error)
}

// Pruner drops registry entries for dead processes
type Pruner interface {
	PruneDead() []string
}

// Result summarizes one sweep
type Result struct {
	LogsExpired int64
	Pruned      []string
}

// Janitor runs sweeps on a cron schedule
type Janitor struct {
	schedule string
	logs     LogExpirer
	pruner   Pruner
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sweeping bool
}

// New creates a janitor. pruner may be nil to leave the registry alone.
func New(schedule string, logs LogExpirer, pruner Pruner, logger *slog.Logger) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if _, err := ParseSchedule(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		schedule: schedule,
		logs:     logs,
		pruner:   pruner,
		logger:   logger.With("component", "janitor"),
		now:      time.Now,
	}, nil
}

// Sweep runs one housekeeping pass. Overlapping calls are skipped.
func (j *Janitor) Sweep(ctx context.Context) (*Result, error) {
	j.mu.Lock()
	if j.sweeping {
		j.mu.Unlock()
		return &Result{}, nil
	}
	j.sweeping = true
	j.mu.Unlock()

	defer func() {
		j.mu.Lock()
		j.sweeping = false
		j.mu.Unlock()
	}()

	res := &Result{}
	if j.logs != nil {
		n, err := j.logs.ExpireLogs(ctx, j.now())
		if err != nil {
			return res, fmt.Errorf("expiring job logs: %w", err)
		}
		res.LogsExpired = n
	}
	if j.pruner != nil {
		res.Pruned = j.pruner.PruneDead()
	}
	return res, nil
}

// Run schedules sweeps until ctx is done
func (j *Janitor) Run(ctx context.Context) error {
	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(j.schedule, func() {
		res, err := j.Sweep(ctx)
		if err != nil {
			j.logger.Error("sweep failed", "error", err)
			return
		}
		if res.LogsExpired > 0 || len(res.Pruned) > 0 {
			j.logger.Info("sweep done", "logs_expired", res.LogsExpired, "pruned", len(res.Pruned))
		}
	})
	if err != nil {
		return err
	}

	j.logger.Info("janitor started", "schedule", j.schedule)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
