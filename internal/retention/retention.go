// Package retention periodically deletes history past its maximum age.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/memohai/lexdesk/internal/conversation"
)

const DefaultSchedule = "@daily"

// Config configures a Job. A zero MaxAge disables purging.
type Config struct {
	Schedule string
	MaxAge   time.Duration
}

// Job runs history purges on a cron schedule.
type Job struct {
	purger conversation.Purger
	maxAge time.Duration
	cron   *cron.Cron
	now    func() time.Time
	logger *slog.Logger
}

// New parses the schedule and registers the purge. Start must be called to
// begin running it.
func New(log *slog.Logger, purger conversation.Purger, cfg Config) (*Job, error) {
	if purger == nil {
		return nil, errors.New("purger is required")
	}
	if log == nil {
		log = slog.Default()
	}
	schedule := strings.TrimSpace(cfg.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}
	j := &Job{
		purger: purger,
		maxAge: cfg.MaxAge,
		cron:   cron.New(),
		now:    time.Now,
		logger: log.With(slog.String("service", "retention")),
	}
	if _, err := j.cron.AddFunc(schedule, func() { _, _ = j.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Enabled reports whether purging is configured.
func (j *Job) Enabled() bool { return j.maxAge > 0 }

// Start runs the scheduler in the background.
func (j *Job) Start() {
	if !j.Enabled() {
		j.logger.Info("history retention disabled")
		return
	}
	j.cron.Start()
}

// Stop stops scheduling and waits for a running purge or ctx.
func (j *Job) Stop(ctx context.Context) error {
	done := j.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce purges entries older than the configured age.
func (j *Job) RunOnce(ctx context.Context) (int64, error) {
	if !j.Enabled() {
		return 0, nil
	}
	cutoff := j.now().Add(-j.maxAge)
	n, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("history purge failed", slog.Any("error", err))
		return 0, err
	}
	j.logger.Info("history purged", slog.Int64("removed", n), slog.Time("cutoff", cutoff))
	return n, nil
}
