package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"moneta/internal/core"
)

// Backoff applied between processor retries of the same sync request.
const (
	retryBaseDelay = 10 * time.Second
	retryMaxDelay  = 10 * time.Minute
)

// EnqueueSyncRequest adds a pending request for the given mode. If a pending
// request for the same mode already exists its id is returned instead.
func (r *SQLiteRepository) EnqueueSyncRequest(ctx context.Context, mode string) (string, bool, error) {
	if mode != "pull" && mode != "push" {
		return "", false, fmt.Errorf("enqueue sync request: %w: mode %q", core.ErrInvalidField, mode)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		id      string
		created bool
	)
	err := r.inTx(ctx, func(q *Queries) error {
		existing, err := q.FindPendingSyncRequest(ctx, mode)
		if err == nil {
			id = existing.ID
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return classify(err)
		}
		id = core.NewID()
		created = true
		return classify(q.InsertSyncRequest(ctx, id, mode, r.now().Unix()))
	})
	if err != nil {
		return "", false, fmt.Errorf("enqueue sync request: %w", err)
	}
	if created {
		slog.InfoContext(ctx, "Sync request enqueued", "id", id, "mode", mode)
	}
	return id, created, nil
}

func (r *SQLiteRepository) GetSyncRequest(ctx context.Context, id string) (SyncRequest, error) {
	req, err := r.queries.GetSyncRequest(ctx, id)
	if err != nil {
		return SyncRequest{}, fmt.Errorf("get sync request %s: %w", id, classify(err))
	}
	return req, nil
}

// DequeueSyncBatch returns pending requests whose retry time has passed.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncRequest, error) {
	items, err := r.queries.DequeueSyncBatch(ctx, r.now().Unix(), limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", classify(err))
	}
	return items, nil
}

func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.queries.SetSyncStatus(ctx, id, SyncStatusProcessing, sql.NullInt64{}); err != nil {
		return fmt.Errorf("mark sync processing: %w", classify(err))
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncComplete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := sql.NullInt64{Int64: r.now().Unix(), Valid: true}
	if err := r.queries.SetSyncStatus(ctx, id, SyncStatusCompleted, now); err != nil {
		return fmt.Errorf("mark sync complete: %w", classify(err))
	}
	return nil
}

func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.queries.MarkSyncFailed(ctx, id, lastError, r.now().Unix()); err != nil {
		return fmt.Errorf("mark sync failed: %w", classify(err))
	}
	slog.WarnContext(ctx, "Sync request marked as failed", "id", id)
	return nil
}

// IncrementSyncAttempt puts the request back in the queue with an exponential
// delay based on the number of attempts already made.
func (r *SQLiteRepository) IncrementSyncAttempt(ctx context.Context, id string, attempts int64, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.now().Add(RetryDelay(attempts)).Unix()
	if err := r.queries.IncrementSyncAttempt(ctx, id, lastError, next); err != nil {
		return fmt.Errorf("increment sync attempt: %w", classify(err))
	}
	return nil
}

// RetryDelay returns the wait before retry number attempts+1.
func RetryDelay(attempts int64) time.Duration {
	d := retryBaseDelay
	for i := int64(0); i < attempts; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

func (r *SQLiteRepository) CleanupCompletedSyncs(ctx context.Context, before time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.queries.CleanupCompletedSyncs(ctx, before.Unix())
	if err != nil {
		return fmt.Errorf("cleanup completed syncs: %w", classify(err))
	}
	if n > 0 {
		slog.InfoContext(ctx, "Cleaned up completed sync requests", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) RetryFailedSyncs(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.queries.RetryFailedSyncs(ctx)
	if err != nil {
		return fmt.Errorf("retry failed syncs: %w", classify(err))
	}
	slog.InfoContext(ctx, "Failed sync requests reset for retry", "count", n)
	return nil
}

// ResetStaleProcessing returns requests left in processing by a crash to pending.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, err := r.queries.ResetStaleProcessing(ctx)
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", classify(err))
	}
	if n > 0 {
		slog.InfoContext(ctx, "Reset stale sync requests", "count", n)
	}
	return nil
}

func (r *SQLiteRepository) GetSyncQueueStats(ctx context.Context) (SyncRequestStats, error) {
	s, err := r.queries.GetSyncQueueStats(ctx)
	if err != nil {
		return SyncRequestStats{}, fmt.Errorf("get sync queue stats: %w", classify(err))
	}
	return s, nil
}
