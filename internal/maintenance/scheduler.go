package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Scheduler runs optimize and backup jobs on fixed intervals.
type Scheduler struct {
	svc       *Service
	scheduler gocron.Scheduler
}

// NewScheduler registers jobs for svc. A non-positive interval leaves that
// job out.
func NewScheduler(svc *Service, optimizeEvery, backupEvery time.Duration) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create maintenance scheduler: %w", err)
	}
	sch := &Scheduler{svc: svc, scheduler: s}

	if optimizeEvery > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(optimizeEvery),
			gocron.NewTask(sch.optimize),
			gocron.WithName("db-optimize"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("create optimize job: %w", err)
		}
	}
	if backupEvery > 0 && svc.backupDir != "" {
		if _, err := s.NewJob(
			gocron.DurationJob(backupEvery),
			gocron.NewTask(sch.backup),
			gocron.WithName("db-backup"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return nil, fmt.Errorf("create backup job: %w", err)
		}
	}
	return sch, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.scheduler.Start()
	s.svc.logger.Info("maintenance scheduler started", slog.Int("jobs", len(s.scheduler.Jobs())))
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() error {
	return s.scheduler.Shutdown()
}

func (s *Scheduler) optimize() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.svc.Optimize(ctx); err != nil {
		s.svc.logger.Error("scheduled optimize failed", slog.Any("error", err))
	}
}

func (s *Scheduler) backup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := s.svc.Backup(ctx); err != nil {
		s.svc.logger.Error("scheduled backup failed", slog.Any("error", err))
		return
	}
	if _, err := s.svc.Prune(); err != nil {
		s.svc.logger.Error("backup prune failed", slog.Any("error", err))
	}
}
