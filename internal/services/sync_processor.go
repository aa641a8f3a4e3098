package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"moneta/internal/cloud"
	"moneta/internal/log"
	"moneta/internal/storage"
)

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending requests (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of requests to process per poll cycle (default: 10)
	BatchSize int

	// MaxRetries is the maximum attempts before a request is marked as failed (default: 3)
	MaxRetries int

	// CleanupInterval is how often to clean up completed requests (default: 1h)
	CleanupInterval time.Duration

	// CleanupAge is how old completed requests must be before cleanup (default: 24h)
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncQueue is the persistent queue of sync requests.
type SyncQueue interface {
	DequeueSyncBatch(ctx context.Context, limit int64) ([]storage.SyncRequest, error)
	MarkSyncProcessing(ctx context.Context, id string) error
	MarkSyncComplete(ctx context.Context, id string) error
	MarkSyncFailed(ctx context.Context, id, lastError string) error
	IncrementSyncAttempt(ctx context.Context, id string, attempts int64, lastError string) error
	CleanupCompletedSyncs(ctx context.Context, before time.Time) error
	RetryFailedSyncs(ctx context.Context) error
	ResetStaleProcessing(ctx context.Context) error
	GetSyncQueueStats(ctx context.Context) (storage.SyncRequestStats, error)
}

// SyncRunner performs one sync run. *Engine implements it.
type SyncRunner interface {
	Run(ctx context.Context, mode Mode) (Report, error)
}

// SyncProcessor drains the sync request queue, running the engine once per
// request.
type SyncProcessor struct {
	queue  SyncQueue
	runner SyncRunner
	config SyncProcessorConfig
	logger *log.Logger

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	wakeCh  chan struct{}

	last   *Report
	lastMu sync.RWMutex
}

// NewSyncProcessor creates a new sync processor
func NewSyncProcessor(queue SyncQueue, runner SyncRunner, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	if logger == nil {
		logger = log.Default(log.ComponentWorker)
	}
	return &SyncProcessor{
		queue:  queue,
		runner: runner,
		config: config,
		logger: logger,
		wakeCh: make(chan struct{}, 1),
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stop, done := p.stopCh, p.doneCh
	p.mu.Unlock()

	// Reset any stale processing requests from previous crashes
	if err := p.queue.ResetStaleProcessing(ctx); err != nil {
		p.logger.WarnContext(ctx, "Failed to reset stale processing requests", log.FieldError, err)
	}

	go p.runLoop(ctx, stop, done)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion. The
// processor counts as stopped once Stop is called, even if ctx expires before
// the loop finishes, so a repeated Stop is a no-op.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
		return nil
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Trigger wakes the loop to process pending requests without waiting for the
// next poll. It never blocks.
func (p *SyncProcessor) Trigger() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

// NotifySyncRequested lets an in-process processor act as the SyncNotifier.
func (p *SyncProcessor) NotifySyncRequested(context.Context, string, Mode) error {
	p.Trigger()
	return nil
}

// LastReport returns the report of the most recent run, if any.
func (p *SyncProcessor) LastReport() (Report, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

func (p *SyncProcessor) runLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx, stop)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx, stop)
		case <-p.wakeCh:
			p.processBatch(ctx, stop)
		case <-cleanupTicker.C:
			p.cleanupCompleted(ctx)
		}
	}
}

// processBatch processes a single batch of pending requests, checking stop
// between requests. A nil stop never fires.
func (p *SyncProcessor) processBatch(ctx context.Context, stop <-chan struct{}) {
	items, err := p.queue.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to dequeue sync batch", log.FieldError, err)
		return
	}

	if len(items) == 0 {
		return
	}

	p.logger.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.queue.MarkSyncProcessing(ctx, item.ID); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark request as processing",
				log.FieldRequest, item.ID, log.FieldError, err)
			continue
		}

		if err := p.process(ctx, item); err != nil {
			p.handleFailure(ctx, item, err)
		} else {
			p.handleSuccess(ctx, item)
		}
	}
}

func (p *SyncProcessor) process(ctx context.Context, item storage.SyncRequest) error {
	mode, err := ParseMode(item.Mode)
	if err != nil {
		return err
	}
	rep, err := p.runner.Run(ctx, mode)

	p.lastMu.Lock()
	p.last = &rep
	p.lastMu.Unlock()

	if err != nil {
		return fmt.Errorf("run %s sync: %w", mode, err)
	}
	return nil
}

func (p *SyncProcessor) handleSuccess(ctx context.Context, item storage.SyncRequest) {
	if err := p.queue.MarkSyncComplete(ctx, item.ID); err != nil {
		p.logger.ErrorContext(ctx, "Failed to mark sync complete",
			log.FieldRequest, item.ID, log.FieldError, err)
	}
}

// retryable reports whether a failed run is worth another attempt.
func retryable(err error) bool {
	return errors.Is(err, ErrNotConverged) || cloud.Retryable(err)
}

// handleFailure schedules a retry with backoff or marks the request failed
// once MaxRetries is reached or the error is permanent.
func (p *SyncProcessor) handleFailure(ctx context.Context, item storage.SyncRequest, processErr error) {
	p.logger.WarnContext(ctx, "Sync processing failed",
		log.FieldRequest, item.ID,
		log.FieldMode, item.Mode,
		log.FieldAttempt, item.Attempts+1,
		log.FieldErrorType, errorType(processErr),
		log.FieldError, processErr)

	if item.Attempts+1 >= int64(p.config.MaxRetries) || !retryable(processErr) {
		if err := p.queue.MarkSyncFailed(ctx, item.ID, processErr.Error()); err != nil {
			p.logger.ErrorContext(ctx, "Failed to mark sync as failed",
				log.FieldRequest, item.ID, log.FieldError, err)
		}
		p.logger.ErrorContext(ctx, "Sync request failed permanently",
			log.FieldRequest, item.ID,
			"attempts", item.Attempts+1)
		return
	}

	if err := p.queue.IncrementSyncAttempt(ctx, item.ID, item.Attempts, processErr.Error()); err != nil {
		p.logger.ErrorContext(ctx, "Failed to increment sync attempt",
			log.FieldRequest, item.ID, log.FieldError, err)
	}
}

func (p *SyncProcessor) cleanupCompleted(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.CleanupAge)
	if err := p.queue.CleanupCompletedSyncs(ctx, cutoff); err != nil {
		p.logger.ErrorContext(ctx, "Failed to cleanup completed syncs", log.FieldError, err)
	}
}

// Stats returns current queue statistics
func (p *SyncProcessor) Stats(ctx context.Context) (storage.SyncRequestStats, error) {
	return p.queue.GetSyncQueueStats(ctx)
}

// RetryFailed resets all failed requests for retry
func (p *SyncProcessor) RetryFailed(ctx context.Context) error {
	if err := p.queue.RetryFailedSyncs(ctx); err != nil {
		return err
	}
	p.Trigger()
	return nil
}

// ProcessPending drains the queue once in the caller's goroutine. Used by
// one-shot commands that do not start the loop.
func (p *SyncProcessor) ProcessPending(ctx context.Context) {
	p.processBatch(ctx, nil)
}
