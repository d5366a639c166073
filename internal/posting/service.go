package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/shared"
)

// DocumentsPort is the slice of the document service the coordinator
// needs to feed outcomes back into the lifecycle.
type DocumentsPort interface {
	Get(ctx context.Context, id int64) (documents.Document, error)
	MarkPosted(ctx context.Context, documentID, version int64, remoteDocEntry int64, remoteDocNum string) (documents.Document, error)
	MarkPostFailed(ctx context.Context, documentID, version int64, detail string) (documents.Document, error)
	RejectRemote(ctx context.Context, documentID, version int64, detail string) (documents.Document, error)
}

// AttemptStore persists posting attempts.
type AttemptStore interface {
	InsertAttempt(ctx context.Context, attempt Attempt) (Attempt, error)
	CompleteAttempt(ctx context.Context, id int64, status AttemptStatus, remoteDocEntry int64, remoteDocNum, errorDetail string) error
	FirstKey(ctx context.Context, documentID int64) (uuid.UUID, error)
	CountAttempts(ctx context.Context, documentID int64) (int, error)
	ListAttempts(ctx context.Context, documentID int64) ([]Attempt, error)
	HasPending(ctx context.Context, documentID int64) (bool, error)
}

// ReservationStore guards against two workers posting the same document.
type ReservationStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// RetryScheduler enqueues a delayed retry after an ambiguous or
// unavailable outcome.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, documentID int64, attempt int) error
}

const reservationModule = "posting"

// Coordinator drives approved documents to the external system exactly
// once. Every attempt is recorded before the call goes out; unknown
// outcomes are reconciled against the remote side before any retry.
type Coordinator struct {
	docs        DocumentsPort
	remote      erp.Client
	attempts    AttemptStore
	reservation ReservationStore
	scheduler   RetryScheduler
	metrics     *Metrics
	maxAttempts int
	logger      *slog.Logger
}

// Config collects Coordinator dependencies.
type Config struct {
	Documents   DocumentsPort
	Remote      erp.Client
	Attempts    AttemptStore
	Reservation ReservationStore
	Scheduler   RetryScheduler
	Metrics     *Metrics
	MaxAttempts int
	Logger      *slog.Logger
}

// NewCoordinator constructs the coordinator.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		docs:        cfg.Documents,
		remote:      cfg.Remote,
		attempts:    cfg.Attempts,
		reservation: cfg.Reservation,
		scheduler:   cfg.Scheduler,
		metrics:     cfg.Metrics,
		maxAttempts: cfg.MaxAttempts,
		logger:      cfg.Logger,
	}
}

// DocumentApproved implements the documents posting trigger. Errors are
// logged, not returned: the document sits in approved or post_failed and
// the retry path takes over.
func (c *Coordinator) DocumentApproved(ctx context.Context, documentID int64) {
	if _, err := c.Post(ctx, documentID); err != nil {
		c.logger.Warn("initial posting failed",
			slog.Int64("document_id", documentID),
			slog.Any("error", err))
	}
}

// Post sends an approved or post-failed document to the external system.
// The returned document reflects the outcome transition.
func (c *Coordinator) Post(ctx context.Context, documentID int64) (documents.Document, error) {
	doc, err := c.docs.Get(ctx, documentID)
	if err != nil {
		return documents.Document{}, err
	}
	if doc.State != documents.StateApproved && doc.State != documents.StatePostFailed {
		return doc, fmt.Errorf("posting: document is %s: %w", doc.State, shared.ErrGuardViolation)
	}

	key, err := c.attempts.FirstKey(ctx, documentID)
	if err != nil {
		return doc, err
	}
	firstAttempt := key == uuid.Nil
	if firstAttempt {
		key = shared.PostingKey(doc.ID, doc.Version)
	}

	if err := c.reservation.CheckAndInsert(ctx, key.String(), reservationModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return doc, ErrPostingInFlight
		}
		return doc, err
	}
	defer func() {
		// Successful postings keep the reservation as a permanent
		// processed marker; anything else releases it for the retry.
		if !doc.Posted() {
			if err := c.reservation.Delete(context.WithoutCancel(ctx), key.String()); err != nil {
				c.logger.Warn("release posting reservation", slog.Any("error", err))
			}
		}
	}()

	// A retry, or a pending attempt left by a crashed worker, means the
	// remote side may already hold the document under this key.
	pending, err := c.attempts.HasPending(ctx, documentID)
	if err != nil {
		return doc, err
	}
	if !firstAttempt || pending {
		adopted, reconciled, err := c.reconcile(ctx, doc, key)
		if err != nil {
			return doc, err
		}
		if reconciled {
			doc = adopted
			return doc, nil
		}
	}

	count, err := c.attempts.CountAttempts(ctx, documentID)
	if err != nil {
		return doc, err
	}
	if count >= c.maxAttempts {
		return doc, fmt.Errorf("posting: document %d used %d attempts: %w", documentID, count, ErrAttemptsExhausted)
	}

	payload, err := BuildPayload(doc, time.Now())
	if err != nil {
		return doc, err
	}
	attempt, err := c.attempts.InsertAttempt(ctx, Attempt{
		DocumentID:     doc.ID,
		IdempotencyKey: key,
		Payload:        payload.Body,
	})
	if err != nil {
		return doc, err
	}

	remote, postErr := c.remote.PostDocument(ctx, payload, key)
	doc, err = c.settle(ctx, doc, attempt, remote, postErr)
	return doc, err
}

// reconcile asks the remote side whether a previous attempt under this
// key actually landed. When it did, the document adopts the remote
// identity instead of posting again.
func (c *Coordinator) reconcile(ctx context.Context, doc documents.Document, key uuid.UUID) (documents.Document, bool, error) {
	remote, err := c.remote.FindPostedDocument(ctx, key)
	if errors.Is(err, erp.ErrNotFound) {
		return doc, false, nil
	}
	if err != nil {
		return doc, false, fmt.Errorf("posting: reconcile: %w", err)
	}

	c.logger.Info("reconciled ambiguous posting",
		slog.Int64("document_id", doc.ID),
		slog.Int64("remote_doc_entry", remote.DocEntry))
	c.metrics.Reconciled()

	attempts, listErr := c.attempts.ListAttempts(ctx, doc.ID)
	if listErr == nil {
		for _, a := range attempts {
			if a.Status == AttemptPending {
				_ = c.attempts.CompleteAttempt(ctx, a.ID, AttemptSuccess, remote.DocEntry, remote.DocNum, "")
			}
		}
	}

	updated, err := c.docs.MarkPosted(ctx, doc.ID, doc.Version, remote.DocEntry, remote.DocNum)
	if err != nil {
		return doc, false, err
	}
	return updated, true, nil
}

// settle maps the remote outcome onto the attempt record and the
// document lifecycle.
func (c *Coordinator) settle(ctx context.Context, doc documents.Document, attempt Attempt, remote erp.RemoteID, postErr error) (documents.Document, error) {
	switch {
	case postErr == nil:
		if err := c.attempts.CompleteAttempt(ctx, attempt.ID, AttemptSuccess, remote.DocEntry, remote.DocNum, ""); err != nil {
			return doc, err
		}
		c.metrics.Attempt("success")
		return c.docs.MarkPosted(ctx, doc.ID, doc.Version, remote.DocEntry, remote.DocNum)

	case errors.Is(postErr, erp.ErrRejected):
		// Non-retryable: the remote understood the request and said no.
		if err := c.attempts.CompleteAttempt(ctx, attempt.ID, AttemptFailed, 0, "", postErr.Error()); err != nil {
			return doc, err
		}
		c.metrics.Attempt("rejected")
		updated, err := c.docs.RejectRemote(ctx, doc.ID, doc.Version, postErr.Error())
		if err != nil {
			return doc, err
		}
		return updated, postErr

	default:
		// Ambiguous or unavailable: record the failure, park the
		// document in post_failed and let the scheduler retry.
		if err := c.attempts.CompleteAttempt(ctx, attempt.ID, AttemptFailed, 0, "", postErr.Error()); err != nil {
			return doc, err
		}
		c.metrics.Attempt("failed")
		updated, err := c.docs.MarkPostFailed(ctx, doc.ID, doc.Version, postErr.Error())
		if err != nil {
			return doc, err
		}
		if c.scheduler != nil && attempt.AttemptNumber < c.maxAttempts {
			if err := c.scheduler.ScheduleRetry(ctx, doc.ID, attempt.AttemptNumber); err != nil {
				c.logger.Warn("schedule posting retry", slog.Any("error", err))
			}
		}
		return updated, postErr
	}
}

// Retry re-drives a post-failed document. Manual retries and scheduled
// retries share this path, reconciliation included.
func (c *Coordinator) Retry(ctx context.Context, documentID int64) (documents.Document, error) {
	return c.Post(ctx, documentID)
}

// Attempts lists the posting history for one document.
func (c *Coordinator) Attempts(ctx context.Context, documentID int64) ([]Attempt, error) {
	if _, err := c.docs.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return c.attempts.ListAttempts(ctx, documentID)
}
