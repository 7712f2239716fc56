// cleanup_reconciler.go implements the CleanupReconciler background job. Document
// uploads and deletes touch object storage and the database in two steps; when
// the second step fails the storage path is left in document_cleanup_queue.
// The reconciler drains that queue: objects no row references are deleted, and
// rows whose object is already gone are dropped. Entries that keep failing are
// retried up to jobs.cleanup_max_tries times and then left for an operator.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/diligence-portal/portal/internal/config"
	"github.com/diligence-portal/portal/internal/db/models"
	"github.com/diligence-portal/portal/internal/db/repositories"
	"github.com/diligence-portal/portal/internal/storage"
	"github.com/diligence-portal/portal/internal/telemetry"
)

// CleanupReconciler periodically reconciles the document cleanup queue
// against object storage.
type CleanupReconciler struct {
	queue     *repositories.CleanupRepository
	documents *repositories.DocumentRepository
	storage   storage.Storage
	interval  time.Duration
	batch     int
	maxTries  int
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewCleanupReconciler creates a new CleanupReconciler. Zero config values
// default to a 10 minute interval, batches of 100 and 10 attempts.
func NewCleanupReconciler(
	queue *repositories.CleanupRepository,
	documents *repositories.DocumentRepository,
	storageBackend storage.Storage,
	cfg *config.JobsConfig,
) *CleanupReconciler {
	r := &CleanupReconciler{
		queue:     queue,
		documents: documents,
		storage:   storageBackend,
		interval:  cfg.CleanupInterval,
		batch:     cfg.CleanupBatch,
		maxTries:  cfg.CleanupMaxTries,
		stopChan:  make(chan struct{}),
	}
	if r.interval <= 0 {
		r.interval = 10 * time.Minute
	}
	if r.batch <= 0 {
		r.batch = 100
	}
	if r.maxTries <= 0 {
		r.maxTries = 10
	}
	return r
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (r *CleanupReconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("document cleanup reconciler started",
		"interval", r.interval, "batch", r.batch, "max_tries", r.maxTries)

	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopChan:
			slog.Info("document cleanup reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("document cleanup reconciler context cancelled")
			return
		}
	}
}

// Stop signals the loop to exit. It is safe to call more than once.
func (r *CleanupReconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// RunOnce processes one batch of queue entries and returns how many were
// reconciled.
func (r *CleanupReconciler) RunOnce(ctx context.Context) int {
	entries, err := r.queue.ListPending(ctx, r.batch, r.maxTries)
	if err != nil {
		slog.Error("cleanup reconciler: failed to list queue", "error", err)
		return 0
	}

	done := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if err := r.reconcile(ctx, e); err != nil {
			slog.Warn("cleanup reconciler: entry failed",
				"path", e.StoragePath, "reason", e.Reason, "attempt", e.Attempts+1, "error", err)
			if rerr := r.queue.RecordFailure(ctx, e.StoragePath, err.Error()); rerr != nil {
				slog.Error("cleanup reconciler: failed to record failure", "path", e.StoragePath, "error", rerr)
			}
			continue
		}
		if err := r.queue.Dequeue(ctx, e.StoragePath); err != nil {
			slog.Error("cleanup reconciler: failed to dequeue", "path", e.StoragePath, "error", err)
			continue
		}
		done++
	}

	if depth, err := r.queue.Count(ctx); err == nil {
		telemetry.CleanupQueueDepth.Set(float64(depth))
	}
	if done > 0 {
		slog.Info("cleanup reconciler: pass complete", "reconciled", done, "seen", len(entries))
	}
	return done
}

// reconcile brings one path into agreement: an unreferenced object is
// deleted, a row pointing at a missing object is dropped, and a referenced
// object that still exists is left alone.
func (r *CleanupReconciler) reconcile(ctx context.Context, e *models.CleanupEntry) error {
	referenced, err := r.documents.ReferencesPath(ctx, e.StoragePath)
	if err != nil {
		return fmt.Errorf("check references: %w", err)
	}

	if !referenced {
		if err := r.storage.Delete(ctx, e.StoragePath); err != nil {
			return fmt.Errorf("delete object: %w", err)
		}
		return nil
	}

	exists, err := r.storage.Exists(ctx, e.StoragePath)
	if err != nil {
		return fmt.Errorf("check object: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.documents.DeleteByPath(ctx, e.StoragePath); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	return nil
}
