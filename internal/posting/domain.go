// Package posting coordinates document submission to the external system.
// Posting is the one operation here that is not idempotent on the remote
// side, so every attempt carries a deterministic idempotency key and an
// unknown outcome is reconciled before any retry.
package posting

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the lifecycle of one posting attempt.
type AttemptStatus string

const (
	// AttemptPending is recorded before the remote call goes out.
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
)

// Attempt is one recorded try against the external system. The
// idempotency key is fixed by the first attempt and reused by every
// retry for the same document.
type Attempt struct {
	ID             int64
	DocumentID     int64
	AttemptNumber  int
	Status         AttemptStatus
	IdempotencyKey uuid.UUID
	Payload        []byte
	RemoteDocEntry int64
	RemoteDocNum   string
	ErrorDetail    string
	CreatedAt      time.Time
	CompletedAt    time.Time
}

var (
	// ErrAttemptsExhausted indicates the retry budget is spent; an
	// operator decides between another manual retry and abandoning.
	ErrAttemptsExhausted = errors.New("posting: attempts exhausted")
	// ErrPostingInFlight indicates another worker holds the posting
	// reservation for this document.
	ErrPostingInFlight = errors.New("posting: already in flight")
)
