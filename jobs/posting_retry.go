package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/posting"
	"github.com/stockbridge/stockbridge/internal/shared"
)

// enqueuer is the slice of *asynq.Client the scheduler needs.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Scheduler enqueues delayed posting retries with exponential backoff.
// It implements the coordinator's RetryScheduler port.
type Scheduler struct {
	client  enqueuer
	backoff time.Duration
}

// NewScheduler constructs a Scheduler. backoff is the delay before the
// first retry; each further retry doubles it.
func NewScheduler(client *asynq.Client, backoff time.Duration) *Scheduler {
	if backoff <= 0 {
		backoff = time.Minute
	}
	return &Scheduler{client: client, backoff: backoff}
}

// ScheduleRetry enqueues a retry for the document after the attempt's
// backoff delay.
func (s *Scheduler) ScheduleRetry(ctx context.Context, documentID int64, attempt int) error {
	task, err := NewPostingRetryTask(PostingRetryPayload{DocumentID: documentID, Attempt: attempt})
	if err != nil {
		return err
	}
	delay := s.backoff << (attempt - 1)
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueDefault),
		asynq.ProcessIn(delay),
		asynq.MaxRetry(0))
	return err
}

// PostingRetryJob drives scheduled retries through the coordinator.
type PostingRetryJob struct {
	coordinator *posting.Coordinator
	logger      *slog.Logger
}

// NewPostingRetryJob constructs the job.
func NewPostingRetryJob(coordinator *posting.Coordinator, logger *slog.Logger) *PostingRetryJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostingRetryJob{coordinator: coordinator, logger: logger}
}

// Handle processes TaskPostingRetry tasks. The coordinator schedules the
// follow-up retry itself, so the task never returns a retryable error to
// Asynq; doing both would double the retry stream.
func (j *PostingRetryJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload PostingRetryPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	log := j.logger.With(slog.Int64("document_id", payload.DocumentID), slog.Int("attempt", payload.Attempt))

	doc, err := j.coordinator.Retry(ctx, payload.DocumentID)
	switch {
	case err == nil:
		log.Info("posting retry succeeded", slog.String("state", string(doc.State)))
	case errors.Is(err, posting.ErrPostingInFlight):
		log.Info("posting retry skipped, already in flight")
	case errors.Is(err, posting.ErrAttemptsExhausted):
		log.Warn("posting retries exhausted, awaiting operator decision")
	case errors.Is(err, erp.ErrRejected):
		log.Warn("posting rejected by remote", slog.Any("error", err))
	case errors.Is(err, shared.ErrGuardViolation):
		// The document moved on, typically posted via reconciliation.
		log.Info("posting retry no longer applies", slog.String("state", string(doc.State)))
	default:
		log.Warn("posting retry failed", slog.Any("error", err))
	}
	return nil
}
