// Package scheduler runs periodic background jobs on a cron runner.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/channelgate/core/logger"
	"github.com/robfig/cron/v3"
)

const component = "scheduler"

// Job is a named unit of periodic work.
type Job struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Service wraps cron-based jobs.
type Service struct {
	cron *cron.Cron
}

// New creates a Service evaluating schedules in loc with second precision.
func New(loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		cron: cron.New(cron.WithLocation(loc), cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger{}))),
	}
}

// Every registers job to run at a fixed interval. Failures are logged and the
// job keeps its schedule.
func (s *Service) Every(interval time.Duration, job Job) (cron.EntryID, error) {
	spec, err := intervalSpec(interval)
	if err != nil {
		return 0, err
	}
	return s.cron.AddFunc(spec, func() { runJob(job) })
}

// Start launches the cron loop in its own goroutine.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs or ctx, whichever ends first.
func (s *Service) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries reports the number of registered jobs.
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

func intervalSpec(interval time.Duration) (string, error) {
	if interval <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	seconds := int(interval.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	return fmt.Sprintf("@every %ds", seconds), nil
}

func runJob(job Job) {
	ctx := context.Background()
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := job.Run(ctx)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("job", job.Name),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
		logger.Error(ctx, component, "job", attrs...)
		return
	}
	logger.Debug(ctx, component, "job", attrs...)
}

// cronLogger adapts cron's logger interface to the structured logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(context.Background(), component, "cron",
		slog.String("payload", msg),
		slog.Any("kv", keysAndValues),
	)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error(context.Background(), component, "cron",
		slog.String("payload", msg),
		slog.String("err", fmt.Sprint(err)),
		slog.Any("kv", keysAndValues),
	)
}
