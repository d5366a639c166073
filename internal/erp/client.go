// Package erp defines the narrow boundary to the external ERP system.
// The core only needs three operations: bulk serial validation, document
// posting with an idempotency key, and lookup of an already posted
// document for reconciliation after an ambiguous outcome.
package erp

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAmbiguous indicates the outcome of a remote call is unknown
	// (timeout, connection reset). The caller must not assume the
	// document was not posted; reconciliation is required before retry.
	ErrAmbiguous = errors.New("erp: ambiguous outcome")
	// ErrRejected indicates the external system rejected the document.
	// Non-retryable; the document moves to rejected for operator review.
	ErrRejected = errors.New("erp: document rejected")
	// ErrNotFound indicates no posted document matches the idempotency key.
	ErrNotFound = errors.New("erp: not found")
	// ErrUnavailable indicates a retryable remote failure (5xx-equivalent).
	ErrUnavailable = errors.New("erp: service unavailable")
)

// SerialLookup holds the per-serial details returned by remote validation.
type SerialLookup struct {
	Serial        string
	ItemCode      string
	ItemName      string
	WarehouseCode string
	WarehouseName string
	BranchID      int64
	BranchName    string
	InStock       bool
}

// RemoteID identifies a document on the external side.
type RemoteID struct {
	DocEntry int64
	DocNum   string
}

// DocumentPayload is the serialised document body sent to the external system.
type DocumentPayload struct {
	Type string
	Body []byte
}

// Client is the opaque RPC boundary to the external ERP.
type Client interface {
	// ValidateSerials validates one chunk of serial numbers. Serials
	// absent from the returned map are unknown to the external system.
	// The chunk must not exceed the configured chunk size.
	ValidateSerials(ctx context.Context, serials []string) (map[string]SerialLookup, error)

	// PostDocument submits a document. Returns ErrAmbiguous when the
	// outcome cannot be determined locally, ErrRejected on validation
	// rejection by the external system and ErrUnavailable on retryable
	// failures.
	PostDocument(ctx context.Context, payload DocumentPayload, idempotencyKey uuid.UUID) (RemoteID, error)

	// FindPostedDocument looks up an already accepted document by its
	// idempotency key. Returns ErrNotFound when no match exists.
	FindPostedDocument(ctx context.Context, idempotencyKey uuid.UUID) (RemoteID, error)
}
