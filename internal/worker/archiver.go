// Package worker runs background work outside the request path: archiving
// webhook deliveries and the scheduled billing jobs.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/matchgenius-api/internal/metrics"
	"github.com/jmylchreest/matchgenius-api/internal/models"
	"github.com/jmylchreest/matchgenius-api/internal/service"
)

// EventRecorder persists delivery log entries.
type EventRecorder interface {
	Record(ctx context.Context, event *models.WebhookEvent) error
}

// PayloadStore stores encrypted raw event payloads.
type PayloadStore interface {
	IsEnabled() bool
	StoreEvent(ctx context.Context, eventID string, receivedAt time.Time, payload []byte) (string, error)
}

// ArchiverConfig holds archive worker configuration.
type ArchiverConfig struct {
	QueueSize   int
	Concurrency int
	// WriteTimeout bounds each record's storage and database writes.
	WriteTimeout time.Duration
}

// Archiver records webhook deliveries off the request path.
// Enqueue never blocks; records are dropped when the queue is full.
type Archiver struct {
	events      EventRecorder
	store       PayloadStore
	queue       chan service.ArchiveRecord
	concurrency int
	timeout     time.Duration

	mu      sync.RWMutex
	stopped bool
	active  atomic.Int32
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// NewArchiver creates an archive worker. store may be nil.
func NewArchiver(events EventRecorder, store PayloadStore, cfg ArchiverConfig, logger *slog.Logger) *Archiver {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		events:      events,
		store:       store,
		queue:       make(chan service.ArchiveRecord, cfg.QueueSize),
		concurrency: cfg.Concurrency,
		timeout:     cfg.WriteTimeout,
		logger:      logger.With("component", "archiver"),
	}
}

// Enqueue hands a record to the workers. It returns false if the record was dropped.
func (a *Archiver) Enqueue(rec service.ArchiveRecord) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		metrics.ArchiveResultsTotal.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case a.queue <- rec:
		metrics.ArchiveQueueDepth.Set(float64(len(a.queue)))
		return true
	default:
		metrics.ArchiveResultsTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Pending returns the number of queued records plus those being written.
func (a *Archiver) Pending() int {
	return len(a.queue) + int(a.active.Load())
}

// Start launches the workers. They drain the queue until Stop is called.
func (a *Archiver) Start(ctx context.Context) {
	a.logger.Info("starting", "concurrency", a.concurrency, "queue_size", cap(a.queue))
	for i := 0; i < a.concurrency; i++ {
		a.wg.Add(1)
		go a.run(context.WithoutCancel(ctx), i)
	}
}

// Stop closes the queue and waits for queued records to be written.
func (a *Archiver) Stop() {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	a.logger.Info("stopping")
	a.wg.Wait()
	a.logger.Info("stopped")
}

func (a *Archiver) run(ctx context.Context, workerID int) {
	defer a.wg.Done()
	for rec := range a.queue {
		a.active.Add(1)
		metrics.ArchiveQueueDepth.Set(float64(len(a.queue)))
		a.process(ctx, workerID, rec)
		a.active.Add(-1)
	}
}

func (a *Archiver) process(ctx context.Context, workerID int, rec service.ArchiveRecord) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ev := rec.Event
	logger := a.logger.With("worker_id", workerID, "event_id", ev.ID, "event_type", ev.Type)

	// Ignored types are logged but their payloads are not kept.
	if ev.Outcome != models.WebhookOutcomeIgnored && len(rec.Payload) > 0 && a.store != nil && a.store.IsEnabled() {
		key, err := a.store.StoreEvent(ctx, ev.ID, ev.LastSeenAt, rec.Payload)
		if err != nil {
			logger.Warn("failed to archive event payload", "error", err)
		} else {
			ev.ArchiveKey = key
			metrics.ArchiveResultsTotal.WithLabelValues("stored").Inc()
		}
	}

	if err := a.events.Record(ctx, &ev); err != nil {
		metrics.ArchiveResultsTotal.WithLabelValues("failed").Inc()
		logger.Error("failed to record webhook delivery", "error", err)
		return
	}
	metrics.ArchiveResultsTotal.WithLabelValues("logged").Inc()
	logger.Debug("webhook delivery recorded", "outcome", ev.Outcome, "archived", ev.ArchiveKey != "")
}
