package posting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists posting attempts.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const attemptColumns = `id, document_id, attempt_number, status, idempotency_key, payload,
	COALESCE(remote_doc_entry, 0), COALESCE(remote_doc_num, ''), COALESCE(error_detail, ''),
	created_at, COALESCE(completed_at, 'epoch'::timestamptz)`

// InsertAttempt records a pending attempt before the remote call. The
// attempt number continues the document's sequence.
func (r *Repository) InsertAttempt(ctx context.Context, attempt Attempt) (Attempt, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO posting_attempts
		(document_id, attempt_number, status, idempotency_key, payload, created_at)
	VALUES ($1, COALESCE((SELECT MAX(attempt_number) FROM posting_attempts WHERE document_id = $1), 0) + 1,
		$2, $3, $4, $5)
	RETURNING id, attempt_number`,
		attempt.DocumentID, string(AttemptPending), attempt.IdempotencyKey, attempt.Payload, time.Now())
	if err := row.Scan(&attempt.ID, &attempt.AttemptNumber); err != nil {
		return Attempt{}, err
	}
	attempt.Status = AttemptPending
	return attempt, nil
}

// CompleteAttempt finalises an attempt with its outcome.
func (r *Repository) CompleteAttempt(ctx context.Context, id int64, status AttemptStatus, remoteDocEntry int64, remoteDocNum, errorDetail string) error {
	_, err := r.pool.Exec(ctx, `UPDATE posting_attempts SET
		status = $1, remote_doc_entry = NULLIF($2::bigint, 0), remote_doc_num = NULLIF($3, ''),
		error_detail = NULLIF($4, ''), completed_at = $5
	WHERE id = $6`,
		string(status), remoteDocEntry, remoteDocNum, errorDetail, time.Now(), id)
	return err
}

// FirstKey returns the idempotency key fixed by the document's first
// attempt, or uuid.Nil when no attempt exists yet.
func (r *Repository) FirstKey(ctx context.Context, documentID int64) (uuid.UUID, error) {
	var key uuid.UUID
	err := r.pool.QueryRow(ctx, `SELECT idempotency_key FROM posting_attempts
		WHERE document_id = $1 ORDER BY attempt_number ASC LIMIT 1`, documentID).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return key, nil
}

// CountAttempts returns how many attempts the document has consumed.
func (r *Repository) CountAttempts(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posting_attempts WHERE document_id = $1`, documentID).Scan(&count)
	return count, err
}

// ListAttempts returns the document's attempts, oldest first.
func (r *Repository) ListAttempts(ctx context.Context, documentID int64) ([]Attempt, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+attemptColumns+` FROM posting_attempts
		WHERE document_id = $1 ORDER BY attempt_number ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		var status string
		if err := rows.Scan(&a.ID, &a.DocumentID, &a.AttemptNumber, &status, &a.IdempotencyKey,
			&a.Payload, &a.RemoteDocEntry, &a.RemoteDocNum, &a.ErrorDetail,
			&a.CreatedAt, &a.CompletedAt); err != nil {
			return nil, err
		}
		a.Status = AttemptStatus(status)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// HasPending reports whether an unfinished attempt exists for the
// document. A crashed worker leaves one behind; its outcome is unknown
// and must be reconciled before anything new goes out.
func (r *Repository) HasPending(ctx context.Context, documentID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM posting_attempts
		WHERE document_id = $1 AND status = $2)`, documentID, string(AttemptPending)).Scan(&exists)
	return exists, err
}
