// Package scheduler runs the API's periodic housekeeping on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crucial707/spendflow/internal/metrics"
	"github.com/robfig/cron/v3"
)

// PruneSpec is when old activity entries are removed.
const PruneSpec = "@daily"

type UserCounter interface {
	Count(ctx context.Context) (int, error)
}

type ActivityPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs holds the housekeeping tasks. Activity may be nil, which disables pruning.
type Jobs struct {
	Users     UserCounter
	Activity  ActivityPruner
	Retention time.Duration

	// StatsSpec is the cron spec for RefreshUsers, e.g. "@every 1m".
	StatsSpec string

	now func() time.Time
}

func (j *Jobs) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

// RefreshUsers updates the registered users gauge.
func (j *Jobs) RefreshUsers(ctx context.Context) error {
	n, err := j.Users.Count(ctx)
	if err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	metrics.SetUsers(n)
	return nil
}

// PruneActivity deletes activity entries older than the retention window.
func (j *Jobs) PruneActivity(ctx context.Context) (int64, error) {
	if j.Activity == nil || j.Retention <= 0 {
		return 0, nil
	}
	n, err := j.Activity.PruneBefore(ctx, j.clock().Add(-j.Retention))
	if err != nil {
		return 0, fmt.Errorf("prune activity: %w", err)
	}
	return n, nil
}

// Run registers the jobs, refreshes the users gauge once, and runs until ctx is done.
// It waits for running jobs to finish before returning.
func Run(ctx context.Context, j *Jobs) error {
	c := cron.New()

	if _, err := c.AddFunc(j.StatsSpec, func() {
		if err := j.RefreshUsers(ctx); err != nil {
			slog.Warn("scheduler: refresh users", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduler: invalid stats spec %q: %w", j.StatsSpec, err)
	}

	if j.Activity != nil && j.Retention > 0 {
		if _, err := c.AddFunc(PruneSpec, func() {
			n, err := j.PruneActivity(ctx)
			if err != nil {
				slog.Warn("scheduler: prune activity", "error", err)
				return
			}
			slog.Info("scheduler: pruned activity", "removed", n)
		}); err != nil {
			return fmt.Errorf("scheduler: add prune job: %w", err)
		}
	}

	if err := j.RefreshUsers(ctx); err != nil {
		slog.Warn("scheduler: initial refresh users", "error", err)
	}

	c.Start()
	slog.Info("scheduler started", "stats", j.StatsSpec, "entries", len(c.Entries()))

	<-ctx.Done()
	<-c.Stop().Done()
	slog.Info("scheduler stopped")
	return nil
}
