package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/matchgenius-api/internal/metrics"
)

// Resyncer refreshes subscriptions whose renewal webhook appears to be missing.
type Resyncer interface {
	ResyncStale(ctx context.Context, grace time.Duration) (int, error)
}

// CatalogSyncer mirrors the processor product catalog.
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context) (int, error)
}

// EventPruner deletes archived payloads past retention.
type EventPruner interface {
	DeleteOldEvents(ctx context.Context, maxAge time.Duration) (int, error)
}

// SchedulerConfig holds cron specs and job parameters.
// An empty spec disables the job.
type SchedulerConfig struct {
	ResyncSchedule  string
	ResyncGrace     time.Duration
	CatalogSchedule string
	PruneSchedule   string
	Retention       time.Duration
	JobTimeout      time.Duration
}

// Scheduler runs the periodic billing jobs.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	jobs    map[string]func(ctx context.Context) (int, error)

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	logger *slog.Logger
}

// NewScheduler creates a scheduler. Nil dependencies disable their jobs.
func NewScheduler(resync Resyncer, catalog CatalogSyncer, pruner EventPruner, cfg SchedulerConfig, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 5 * time.Minute
	}
	logger = logger.With("component", "scheduler")

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		timeout: cfg.JobTimeout,
		jobs:    make(map[string]func(ctx context.Context) (int, error)),
		logger:  logger,
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if resync != nil {
		if err := s.add("resync_stale", cfg.ResyncSchedule, func(ctx context.Context) (int, error) {
			return resync.ResyncStale(ctx, cfg.ResyncGrace)
		}); err != nil {
			return nil, err
		}
	}
	if catalog != nil {
		if err := s.add("sync_catalog", cfg.CatalogSchedule, catalog.SyncCatalog); err != nil {
			return nil, err
		}
	}
	if pruner != nil && cfg.Retention > 0 {
		if err := s.add("prune_archive", cfg.PruneSchedule, func(ctx context.Context) (int, error) {
			return pruner.DeleteOldEvents(ctx, cfg.Retention)
		}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) add(name, spec string, fn func(ctx context.Context) (int, error)) error {
	if spec == "" {
		s.logger.Info("job disabled", "job", name)
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(name) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}
	s.jobs[name] = fn
	return nil
}

// Jobs returns the names of the scheduled jobs.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	return names
}

// Start begins running jobs on their schedules.
func (s *Scheduler) Start() {
	s.logger.Info("starting", "jobs", len(s.jobs))
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		<-s.cron.Stop().Done()
		s.logger.Info("stopped")
	})
}

// Run executes a job once. It returns false if no job has that name.
func (s *Scheduler) Run(name string) bool {
	fn, ok := s.jobs[name]
	if !ok {
		return false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	n, err := fn(ctx)
	if err != nil {
		metrics.JobRunsTotal.WithLabelValues(name, "error").Inc()
		s.logger.Error("job failed", "job", name, "affected", n, "duration", time.Since(start), "error", err)
		return true
	}
	metrics.JobRunsTotal.WithLabelValues(name, "success").Inc()
	s.logger.Info("job completed", "job", name, "affected", n, "duration", time.Since(start))
	return true
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
