// Package jobs wires background processing: delayed posting retries and
// periodic maintenance of the lookup cache and idempotency keys.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPostingRetry re-drives a post-failed document.
	TaskPostingRetry = "posting:retry"
	// TaskLookupCleanup purges the serial lookup cache.
	TaskLookupCleanup = "lookup:cleanup"
	// TaskIdempotencyCleanup prunes aged idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// PostingRetryPayload identifies the document and the attempt that
// scheduled this retry.
type PostingRetryPayload struct {
	DocumentID int64 `json:"document_id"`
	Attempt    int   `json:"attempt"`
}

// NewPostingRetryTask constructs an Asynq task.
func NewPostingRetryTask(payload PostingRetryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPostingRetry, data), nil
}

// NewLookupCleanupTask constructs the cache purge task.
func NewLookupCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskLookupCleanup, nil)
}

// NewIdempotencyCleanupTask constructs the key prune task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
