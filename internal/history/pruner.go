package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sydlexius/tracksignal/internal/logging"
)

// Pruner defaults.
const (
	DefaultRetention     = 30 * 24 * time.Hour
	DefaultPruneInterval = time.Hour
)

// Pruner periodically removes plays older than the retention period.
type Pruner struct {
	svc       *Service
	retention time.Duration
	interval  time.Duration
	scheduler gocron.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a pruner. Non-positive durations select the defaults.
func NewPruner(svc *Service, retention, interval time.Duration, logger *slog.Logger) (*Pruner, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create prune scheduler: %w", err)
	}
	return &Pruner{
		svc:       svc,
		retention: retention,
		interval:  interval,
		scheduler: s,
		logger:    logging.OrDiscard(logger).With("component", "history-pruner"),
		now:       time.Now,
	}, nil
}

// Start schedules the prune job, running it once immediately.
func (p *Pruner) Start() error {
	_, err := p.scheduler.NewJob(
		gocron.DurationJob(p.interval),
		gocron.NewTask(p.run),
		gocron.WithName("history-prune"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("create prune job: %w", err)
	}
	p.scheduler.Start()
	p.logger.Info("history pruner started", "retention", p.retention, "interval", p.interval)
	return nil
}

// Stop shuts down the scheduler and waits for a running prune to finish.
func (p *Pruner) Stop() error {
	return p.scheduler.Shutdown()
}

// RunOnce prunes immediately and returns the number of removed plays.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	return p.svc.Prune(ctx, p.now().Add(-p.retention))
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	n, err := p.RunOnce(ctx)
	if err != nil {
		p.logger.Warn("pruning history", "error", err)
		return
	}
	if n > 0 {
		p.logger.Info("pruned play history", "removed", n)
	}
}
