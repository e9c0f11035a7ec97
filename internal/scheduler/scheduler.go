// Package scheduler triggers periodic update cycles.
package scheduler

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler wraps a gocron scheduler for periodic update checks.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates a scheduler instance. It does not run jobs until Start.
func New(logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting update scheduler")
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for a running task to return.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping update scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleUpdates runs fn on spec: "@every <duration>" or a five-field cron expression.
// Overlapping runs are skipped. It returns the gocron job ID.
func (s *Scheduler) ScheduleUpdates(spec string, fn func()) (string, error) {
	def, err := Definition(spec)
	if err != nil {
		return "", err
	}
	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func() {
			s.logger.Info("Scheduled update check", slog.String("schedule", spec))
			fn()
		}),
		gocron.WithName("stepd-update"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create update job: %w", err)
	}
	return job.ID().String(), nil
}

// Definition parses a schedule spec into a gocron job definition.
func Definition(spec string) (gocron.JobDefinition, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid schedule interval %q", rest)
		}
		return gocron.DurationJob(d), nil
	}
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	return gocron.CronJob(spec, false), nil
}
