package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/shared"
)

// LookupCleanupJob purges the serial lookup cache so stale external
// state does not survive past the cache TTL policy.
type LookupCleanupJob struct {
	cache  *erp.LookupCache
	logger *slog.Logger
}

// NewLookupCleanupJob constructs the job.
func NewLookupCleanupJob(cache *erp.LookupCache, logger *slog.Logger) *LookupCleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupCleanupJob{cache: cache, logger: logger}
}

// Handle processes TaskLookupCleanup tasks.
func (j *LookupCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	purged, err := j.cache.Purge(ctx)
	if err != nil {
		j.logger.Warn("lookup cache purge", slog.Any("error", err))
		return err
	}
	j.logger.Info("lookup cache purged", slog.Int64("entries", purged))
	return nil
}

// IdempotencyCleanupJob prunes processed idempotency keys past their
// retention window. Keys for successfully posted documents stay useless
// after that window because reconciliation consults the remote side.
type IdempotencyCleanupJob struct {
	store     *shared.IdempotencyStore
	retention time.Duration
	logger    *slog.Logger
}

// NewIdempotencyCleanupJob constructs the job.
func NewIdempotencyCleanupJob(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) *IdempotencyCleanupJob {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdempotencyCleanupJob{store: store, retention: retention, logger: logger}
}

// Handle processes TaskIdempotencyCleanup tasks.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if err := j.store.Cleanup(ctx, j.retention); err != nil {
		j.logger.Warn("idempotency cleanup", slog.Any("error", err))
		return err
	}
	return nil
}
