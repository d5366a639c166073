// Package documents models the lifecycle of warehouse documents from draft
// through QC review to posting against the external system.
package documents

import (
	"fmt"
	"time"

	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
)

// DocumentType enumerates supported warehouse documents.
type DocumentType string

const (
	// TypeGRPO is a goods receipt against a purchase order.
	TypeGRPO DocumentType = "GRPO"
	// TypeTransfer is an inventory transfer between warehouses.
	TypeTransfer DocumentType = "TRANSFER"
	// TypeInvoice is an outbound AR invoice.
	TypeInvoice DocumentType = "INVOICE"
)

// State is the lifecycle state of a document.
type State string

const (
	StateDraft      State = "draft"
	StateSubmitted  State = "submitted"
	StateQCPending  State = "qc_pending"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StatePosted     State = "posted"
	StatePostFailed State = "post_failed"
)

// Document is the aggregate root. It exclusively owns its lines and their
// serial numbers. Version increments on every mutating transition and
// serialises concurrent writers.
type Document struct {
	ID      int64
	Number  string
	Type    DocumentType
	State   State
	Version int64

	BranchID   int64
	BranchName string

	// PartnerCode/PartnerName hold the supplier (GRPO) or customer (invoice).
	PartnerCode string
	PartnerName string

	// AllowDuplicateSerials is the per-document duplicate override. Only
	// actors with QC authority may set it; the override is audit-logged.
	AllowDuplicateSerials bool

	// RemoteDocEntry/RemoteDocNum are set exactly when State == posted.
	RemoteDocEntry int64
	RemoteDocNum   string

	RejectReason string
	Notes        string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Lines []LineItem
}

// LineItem is one document line. For serial-tracked items the number of
// serials must equal the quantity.
type LineItem struct {
	ID              int64
	DocumentID      int64
	LineNumber      int
	ItemCode        string
	ItemDescription string
	Quantity        float64
	WarehouseCode   string
	BinCode         string
	SerialTracked   bool
	Serials         []SerialNumber
}

// SerialNumber is a scanned or imported serial on one line.
type SerialNumber struct {
	ID            int64
	LineID        int64
	Value         string
	Status        validation.Status
	Source        string
	ItemCode      string
	WarehouseCode string
	// Detail carries the validation failure reason when Status is not valid.
	Detail string
}

// Package sentinels wrap the shared taxonomy so transport code can map
// them without importing this package.
var (
	// ErrNotFound indicates the document does not exist.
	ErrNotFound = fmt.Errorf("documents: %w", shared.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("documents: %w", shared.ErrValidation)
)

// SerialValues returns every serial value across all lines in line order.
func (d *Document) SerialValues() []string {
	var values []string
	for _, line := range d.Lines {
		for _, serial := range line.Serials {
			values = append(values, serial.Value)
		}
	}
	return values
}

// Posted reports whether the document reached the external system.
func (d *Document) Posted() bool {
	return d.State == StatePosted
}

// Terminal reports whether no further transitions apply.
func (d *Document) Terminal() bool {
	return d.State == StatePosted || d.State == StateRejected
}

// checkLineInvariants verifies the quantity/serial invariant for
// serial-tracked lines.
func checkLineInvariants(lines []LineItem) error {
	for _, line := range lines {
		if line.ItemCode == "" || line.Quantity <= 0 {
			return ErrValidation
		}
		if line.SerialTracked && float64(len(line.Serials)) != line.Quantity {
			return ErrValidation
		}
	}
	return nil
}
