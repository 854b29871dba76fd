package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"finfix/internal/storage"
)

// ExportStore is the durable queue the processor drains.
type ExportStore interface {
	ResetStaleExports(ctx context.Context) error
	DequeueExportBatch(ctx context.Context, limit int) ([]storage.ExportJob, error)
	MarkExportProcessing(ctx context.Context, id int64) error
	MarkExportComplete(ctx context.Context, id int64) error
	RetryExportLater(ctx context.Context, id int64, lastErr string, delay time.Duration) error
	MarkExportFailed(ctx context.Context, id int64, lastErr string) error
	CleanupCompletedExports(ctx context.Context, before time.Time) error
	ExportQueueStats(ctx context.Context) (storage.ExportQueueStats, error)
	RetryFailedExports(ctx context.Context) (int64, error)
}

// UserExporter performs one export.
type UserExporter interface {
	ExportUser(ctx context.Context, userID string) error
}

type ExportProcessorConfig struct {
	// PollInterval is how often to check for pending jobs (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of jobs per poll (default: 10)
	BatchSize int

	// MaxRetries is the number of attempts before a job is failed (default: 5)
	MaxRetries int

	// RetryInterval is the first retry delay; it doubles per attempt (default: 30s)
	RetryInterval time.Duration

	// CleanupInterval is how often completed jobs are purged (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed jobs must be before purging (default: 24h)
	CleanupAge time.Duration
}

func DefaultExportProcessorConfig() ExportProcessorConfig {
	return ExportProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      5,
		RetryInterval:   30 * time.Second,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// ExportProcessor drains the SQLite export queue into the exporter.
type ExportProcessor struct {
	store    ExportStore
	exporter UserExporter
	config   ExportProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewExportProcessor(store ExportStore, exporter UserExporter, config ExportProcessorConfig) *ExportProcessor {
	return &ExportProcessor{
		store:    store,
		exporter: exporter,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *ExportProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("export processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// jobs left in processing by a crash would otherwise never run
	if err := p.store.ResetStaleExports(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale export jobs", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Export processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop signals the loop and waits for it to finish or for ctx to expire.
func (p *ExportProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Export processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Export processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *ExportProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *ExportProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.ProcessBatch(ctx)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// ProcessBatch runs one poll cycle and returns how many jobs were exported.
func (p *ExportProcessor) ProcessBatch(ctx context.Context) int {
	jobs, err := p.store.DequeueExportBatch(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue export batch", "error", err)
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	slog.DebugContext(ctx, "Processing export batch", "count", len(jobs))

	done := 0
	for _, job := range jobs {
		if ctx.Err() != nil {
			return done
		}

		if err := p.store.MarkExportProcessing(ctx, job.ID); err != nil {
			if !errors.Is(err, storage.ErrNoRows) {
				slog.ErrorContext(ctx, "Failed to claim export job", "id", job.ID, "error", err)
			}
			continue
		}

		if err := p.exporter.ExportUser(ctx, job.UserID); err != nil {
			p.handleFailure(ctx, job, err)
			continue
		}

		if err := p.store.MarkExportComplete(ctx, job.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export complete", "id", job.ID, "error", err)
		}
		done++
	}
	return done
}

func (p *ExportProcessor) handleFailure(ctx context.Context, job storage.ExportJob, exportErr error) {
	attempt := job.Attempts + 1
	slog.WarnContext(ctx, "Export failed",
		"id", job.ID,
		"user_id", job.UserID,
		"attempt", attempt,
		"error", exportErr)

	if attempt >= int64(p.config.MaxRetries) {
		if err := p.store.MarkExportFailed(ctx, job.ID, exportErr.Error()); err != nil {
			slog.ErrorContext(ctx, "Failed to mark export as failed", "id", job.ID, "error", err)
		}
		slog.ErrorContext(ctx, "Export failed permanently after max retries",
			"id", job.ID, "user_id", job.UserID, "attempts", attempt)
		return
	}

	if err := p.store.RetryExportLater(ctx, job.ID, exportErr.Error(), p.retryDelay(job.Attempts)); err != nil {
		slog.ErrorContext(ctx, "Failed to schedule export retry", "id", job.ID, "error", err)
	}
}

// retryDelay doubles RetryInterval per previous attempt, capped at one hour.
func (p *ExportProcessor) retryDelay(attempts int64) time.Duration {
	d := p.config.RetryInterval
	for i := int64(0); i < attempts && d < time.Hour; i++ {
		d *= 2
	}
	return min(d, time.Hour)
}

func (p *ExportProcessor) cleanupCompleted(ctx context.Context) {
	if err := p.store.CleanupCompletedExports(ctx, time.Now().Add(-p.config.CleanupAge)); err != nil {
		slog.ErrorContext(ctx, "Failed to cleanup completed exports", "error", err)
	}
}

func (p *ExportProcessor) Stats(ctx context.Context) (storage.ExportQueueStats, error) {
	return p.store.ExportQueueStats(ctx)
}

// RetryFailed puts every failed job back in the queue.
func (p *ExportProcessor) RetryFailed(ctx context.Context) error {
	n, err := p.store.RetryFailedExports(ctx)
	if err != nil {
		return fmt.Errorf("retry failed exports: %w", err)
	}
	slog.InfoContext(ctx, "Requeued failed exports", "count", n)
	return nil
}
