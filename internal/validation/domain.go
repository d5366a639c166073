package validation

import (
	"github.com/stockbridge/stockbridge/internal/erp"
)

// Status is the validation state of a single serial number.
type Status string

const (
	// StatusUnchecked means the serial has not been validated remotely,
	// either because validation has not run or because its chunk failed.
	StatusUnchecked Status = "unchecked"
	// StatusValid means the external system confirmed the serial.
	StatusValid Status = "valid"
	// StatusInvalid means the external system does not know the serial
	// or it has no available quantity.
	StatusInvalid Status = "invalid"
	// StatusDuplicate marks a repeated occurrence within one input set.
	StatusDuplicate Status = "duplicate"
)

// BatchStatus is the overall outcome of one validation run.
type BatchStatus string

const (
	// BatchComplete means every chunk resolved.
	BatchComplete BatchStatus = "complete"
	// BatchPartial means at least one chunk failed or was abandoned;
	// its serials remain unchecked.
	BatchPartial BatchStatus = "partial"
)

// Result holds the outcome for one input serial. Results are positional:
// Batch.Results[i] always corresponds to the i-th input serial, regardless
// of chunk completion order.
type Result struct {
	Serial string
	Status Status
	Lookup erp.SerialLookup
}

// Batch is the ephemeral outcome of one validation request. It is not
// persisted; callers copy the per-serial statuses onto their own records.
type Batch struct {
	ChunkSize int
	Chunks    int
	Results   []Result
	// Errors maps chunk index to the failure that left its serials
	// unchecked. Empty when Status is BatchComplete.
	Errors map[int]error
	Status BatchStatus
}

// Complete reports whether every chunk resolved.
func (b Batch) Complete() bool {
	return b.Status == BatchComplete
}

// StatusCounts tallies results per status, useful for logs and guards.
func (b Batch) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, res := range b.Results {
		counts[res.Status]++
	}
	return counts
}
