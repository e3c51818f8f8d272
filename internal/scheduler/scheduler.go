// Package scheduler runs the service's periodic background jobs on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raaihank/compliance-sentinel/internal/logger"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of periodic work.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Scheduler runs jobs with standard cron expressions or @every descriptors.
type Scheduler struct {
	cron    *cron.Cron
	entries map[string]cron.EntryID
	logger  *logger.Logger
	mu      sync.Mutex
	running bool
}

// New creates an empty scheduler.
func New(log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
		logger:  log.WithComponent("scheduler"),
	}
}

// Add registers a job. A job with an empty schedule is skipped.
func (s *Scheduler) Add(ctx context.Context, job Job) error {
	if job.Schedule == "" {
		s.logger.Info("Job schedule not configured, skipping", zap.String("job", job.Name))
		return nil
	}

	if _, err := cron.ParseStandard(job.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q for %s: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[job.Name]; exists {
		return fmt.Errorf("job %s already scheduled", job.Name)
	}

	id, err := s.cron.AddFunc(job.Schedule, func() { s.run(ctx, job) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
	}
	s.entries[job.Name] = id

	s.logger.Info("Job scheduled",
		zap.String("job", job.Name),
		zap.String("schedule", job.Schedule))
	return nil
}

func (s *Scheduler) run(ctx context.Context, job Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", job.Name),
			zap.Error(err))
		return
	}
	s.logger.Debug("Scheduled job completed",
		zap.String("job", job.Name),
		zap.Duration("duration", time.Since(start)))
}

// Start runs the scheduler until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.cron.Start()
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("Scheduler stopped")
}

// IsRunning reports whether the scheduler has been started and not stopped.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns when the named job runs next. The time is zero until the
// scheduler is started.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}
