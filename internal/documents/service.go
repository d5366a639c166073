package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, id int64) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	InsertDocument(ctx context.Context, doc Document) (int64, error)
	ReplaceLines(ctx context.Context, documentID int64, lines []LineItem) error
	// UpdateDocument persists header mutations conditionally on
	// expectedVersion and returns shared.ErrStaleWrite when the row
	// moved on.
	UpdateDocument(ctx context.Context, doc Document, expectedVersion int64) error
	UpdateSerial(ctx context.Context, serial SerialNumber) error
}

// ValidatorPort is the serial validation batcher.
type ValidatorPort interface {
	Validate(ctx context.Context, serials []string) validation.Batch
}

// AuditPort records transition history.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingTrigger is notified when a document reaches approved. The
// posting coordinator feeds its outcome back through MarkPosted /
// MarkPostFailed / RejectRemote.
type PostingTrigger interface {
	DocumentApproved(ctx context.Context, documentID int64)
}

// ListFilter narrows document listings.
type ListFilter struct {
	State   State
	Type    DocumentType
	Partner string
	Search  string
	From    time.Time
	To      time.Time
	Page    int
	Limit   int
}

// Service orchestrates the document lifecycle.
type Service struct {
	repo      RepositoryPort
	validator ValidatorPort
	audit     AuditPort
	trigger   PostingTrigger
	logger    *slog.Logger
}

// NewService constructs the document service.
func NewService(repo RepositoryPort, validator ValidatorPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: validator, audit: audit, logger: logger}
}

// SetPostingTrigger wires the posting coordinator after construction;
// the coordinator itself depends on this service.
func (s *Service) SetPostingTrigger(trigger PostingTrigger) {
	s.trigger = trigger
}

// CreateInput describes a new document.
type CreateInput struct {
	Type        DocumentType
	Number      string
	BranchID    int64
	BranchName  string
	PartnerCode string
	PartnerName string
	Notes       string
	Lines       []LineInput
}

// LineInput describes one line of a new document.
type LineInput struct {
	ItemCode        string
	ItemDescription string
	Quantity        float64
	WarehouseCode   string
	BinCode         string
	SerialTracked   bool
	Serials         []SerialInput
}

// SerialInput is one scanned serial.
type SerialInput struct {
	Value  string
	Source string
}

// Create persists a new draft document with its lines and serials.
func (s *Service) Create(ctx context.Context, actor shared.Actor, input CreateInput) (Document, error) {
	if input.Type != TypeGRPO && input.Type != TypeTransfer && input.Type != TypeInvoice {
		return Document{}, fmt.Errorf("documents: unknown type %q: %w", input.Type, ErrValidation)
	}
	if len(input.Lines) == 0 {
		return Document{}, fmt.Errorf("documents: minimal 1 line: %w", ErrValidation)
	}
	lines := buildLines(input.Lines)
	if err := checkLineInvariants(lines); err != nil {
		return Document{}, err
	}
	number := input.Number
	if number == "" {
		number = generateNumber(input.Type)
	}
	now := time.Now()
	doc := Document{
		Number:      number,
		Type:        input.Type,
		State:       StateDraft,
		Version:     1,
		BranchID:    input.BranchID,
		BranchName:  input.BranchName,
		PartnerCode: input.PartnerCode,
		PartnerName: input.PartnerName,
		Notes:       input.Notes,
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
		Lines:       lines,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertDocument(ctx, doc)
		if err != nil {
			return err
		}
		doc.ID = id
		return tx.ReplaceLines(ctx, id, doc.Lines)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, doc.ID, actor, "", StateDraft, map[string]any{"number": doc.Number, "type": doc.Type})
	return s.repo.GetDocument(ctx, doc.ID)
}

// Get loads one document with lines and serials.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// List returns documents matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	return s.repo.ListDocuments(ctx, filter)
}

// UpdateLines replaces the lines of a draft. Serial statuses reset to
// unchecked; the version bumps so concurrent editors are detected.
func (s *Service) UpdateLines(ctx context.Context, actor shared.Actor, documentID, version int64, input []LineInput) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.State != StateDraft {
		return Document{}, fmt.Errorf("documents: lines editable in draft only: %w", shared.ErrGuardViolation)
	}
	if doc.Version != version {
		return Document{}, staleErr(doc.Version, version)
	}
	lines := buildLines(input)
	if err := checkLineInvariants(lines); err != nil {
		return Document{}, err
	}
	doc.Lines = lines
	doc.Version++
	doc.UpdatedAt = time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateDocument(ctx, doc, version); err != nil {
			return err
		}
		return tx.ReplaceLines(ctx, doc.ID, doc.Lines)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, doc.ID, actor, doc.State, doc.State, map[string]any{"action": "update_lines", "lines": len(doc.Lines)})
	return s.repo.GetDocument(ctx, doc.ID)
}

// SetDuplicateOverride flips the per-document duplicate acceptance flag.
// Requires QC authority; the change is audit-logged.
func (s *Service) SetDuplicateOverride(ctx context.Context, actor shared.Actor, documentID, version int64, allow bool) (Document, error) {
	if !actor.QCAuthority {
		return Document{}, fmt.Errorf("documents: duplicate override requires QC authority: %w", shared.ErrGuardViolation)
	}
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.State != StateDraft && doc.State != StateSubmitted {
		return Document{}, fmt.Errorf("documents: override only before QC: %w", shared.ErrGuardViolation)
	}
	if doc.Version != version {
		return Document{}, staleErr(doc.Version, version)
	}
	doc.AllowDuplicateSerials = allow
	doc.Version++
	doc.UpdatedAt = time.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDocument(ctx, doc, version)
	})
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, doc.ID, actor, doc.State, doc.State, map[string]any{"duplicate_override": allow})
	return doc, nil
}

// Check reports conflicts that would block submission.
func (s *Service) Check(ctx context.Context, documentID, lastReadVersion int64) ([]Conflict, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return Check(doc, lastReadVersion), nil
}

// Submit takes a draft through submission and serial validation. On full
// validation the document lands in qc_pending; a partial batch leaves it
// submitted with ErrValidationPartial so the user can revalidate.
func (s *Service) Submit(ctx context.Context, actor shared.Actor, documentID, version int64) (Document, []Conflict, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, nil, err
	}
	if doc.Version != version {
		return doc, nil, staleErr(doc.Version, version)
	}
	conflicts := Check(doc, version)
	if dups := duplicateConflicts(conflicts); len(dups) > 0 && !doc.AllowDuplicateSerials {
		return doc, conflicts, fmt.Errorf("documents: %d duplicate serials: %w", len(dups), shared.ErrGuardViolation)
	}

	doc, err = s.applyTransition(ctx, actor, doc, EventSubmit, map[string]any{
		"duplicate_override": doc.AllowDuplicateSerials,
	})
	if err != nil {
		return doc, conflicts, err
	}

	doc, err = s.validateSerials(ctx, actor, doc)
	return doc, conflicts, err
}

// Revalidate re-runs serial validation for a submitted document. Retries
// are always safe: validation is idempotent for unchanged external state.
func (s *Service) Revalidate(ctx context.Context, actor shared.Actor, documentID, version int64) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.State != StateSubmitted {
		return Document{}, fmt.Errorf("documents: revalidate applies to submitted documents: %w", shared.ErrGuardViolation)
	}
	if doc.Version != version {
		return Document{}, staleErr(doc.Version, version)
	}
	return s.validateSerials(ctx, actor, doc)
}

// validateSerials runs the batcher, persists per-serial statuses and
// promotes the document to qc_pending when the guard passes.
func (s *Service) validateSerials(ctx context.Context, actor shared.Actor, doc Document) (Document, error) {
	batch := s.validator.Validate(ctx, doc.SerialValues())

	idx := 0
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for li := range doc.Lines {
			for si := range doc.Lines[li].Serials {
				serial := &doc.Lines[li].Serials[si]
				result := batch.Results[idx]
				idx++
				serial.Status = result.Status
				serial.ItemCode = result.Lookup.ItemCode
				serial.WarehouseCode = result.Lookup.WarehouseCode
				serial.Detail = ""
				if result.Status == validation.StatusInvalid {
					serial.Detail = "serial not found or has no available quantity"
				}
				if result.Status == validation.StatusUnchecked {
					serial.Detail = "validation did not complete"
				}
				if err := tx.UpdateSerial(ctx, *serial); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return doc, err
	}

	if !batch.Complete() {
		s.logger.Warn("serial validation incomplete",
			slog.Int64("document_id", doc.ID),
			slog.Int("failed_chunks", len(batch.Errors)))
		return doc, fmt.Errorf("documents: %d of %d chunks failed: %w", len(batch.Errors), batch.Chunks, shared.ErrValidationPartial)
	}

	return s.applyTransition(ctx, actor, doc, EventBeginQC, map[string]any{
		"serials": len(batch.Results),
	})
}

// Reopen returns a submitted document to draft for editing.
func (s *Service) Reopen(ctx context.Context, actor shared.Actor, documentID, version int64) (Document, error) {
	return s.transitionAt(ctx, actor, documentID, version, EventReopen, nil, nil)
}

// Approve passes QC. Requires QC authority; on success the posting
// coordinator is triggered.
func (s *Service) Approve(ctx context.Context, actor shared.Actor, documentID, version int64) (Document, error) {
	doc, err := s.transitionAt(ctx, actor, documentID, version, EventApprove, nil, nil)
	if err != nil {
		return doc, err
	}
	if s.trigger != nil {
		s.trigger.DocumentApproved(ctx, doc.ID)
		// Posting may already have advanced the document.
		return s.repo.GetDocument(ctx, doc.ID)
	}
	return doc, nil
}

// Reject fails QC with a reason.
func (s *Service) Reject(ctx context.Context, actor shared.Actor, documentID, version int64, reason string) (Document, error) {
	return s.transitionAt(ctx, actor, documentID, version, EventReject,
		func(d *Document) { d.RejectReason = reason },
		map[string]any{"reason": reason})
}

// Abandon gives up on a post-failed document.
func (s *Service) Abandon(ctx context.Context, actor shared.Actor, documentID, version int64, reason string) (Document, error) {
	return s.transitionAt(ctx, actor, documentID, version, EventAbandon,
		func(d *Document) { d.RejectReason = reason },
		map[string]any{"reason": reason})
}

// Clone copies a rejected document into a fresh draft. The original is
// never resurrected in place.
func (s *Service) Clone(ctx context.Context, actor shared.Actor, documentID int64) (Document, error) {
	source, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if source.State != StateRejected {
		return Document{}, fmt.Errorf("documents: only rejected documents can be cloned: %w", shared.ErrGuardViolation)
	}
	input := CreateInput{
		Type:        source.Type,
		BranchID:    source.BranchID,
		BranchName:  source.BranchName,
		PartnerCode: source.PartnerCode,
		PartnerName: source.PartnerName,
		Notes:       source.Notes,
	}
	for _, line := range source.Lines {
		lineInput := LineInput{
			ItemCode:        line.ItemCode,
			ItemDescription: line.ItemDescription,
			Quantity:        line.Quantity,
			WarehouseCode:   line.WarehouseCode,
			BinCode:         line.BinCode,
			SerialTracked:   line.SerialTracked,
		}
		for _, serial := range line.Serials {
			lineInput.Serials = append(lineInput.Serials, SerialInput{Value: serial.Value, Source: serial.Source})
		}
		input.Lines = append(input.Lines, lineInput)
	}
	clone, err := s.Create(ctx, actor, input)
	if err != nil {
		return Document{}, err
	}
	s.recordAudit(ctx, clone.ID, actor, "", StateDraft, map[string]any{"cloned_from": source.ID})
	return clone, nil
}

// MarkPosted records a successful posting outcome. Coordinator only.
func (s *Service) MarkPosted(ctx context.Context, documentID, version int64, remoteDocEntry int64, remoteDocNum string) (Document, error) {
	return s.transitionAt(ctx, shared.SystemActor, documentID, version, EventMarkPosted,
		func(d *Document) {
			d.RemoteDocEntry = remoteDocEntry
			d.RemoteDocNum = remoteDocNum
		},
		map[string]any{"remote_doc_entry": remoteDocEntry, "remote_doc_num": remoteDocNum})
}

// MarkPostFailed records a retryable posting failure. Coordinator only.
func (s *Service) MarkPostFailed(ctx context.Context, documentID, version int64, detail string) (Document, error) {
	return s.transitionAt(ctx, shared.SystemActor, documentID, version, EventMarkPostFailed,
		nil, map[string]any{"error": detail})
}

// RejectRemote records a non-retryable rejection by the external system.
func (s *Service) RejectRemote(ctx context.Context, documentID, version int64, detail string) (Document, error) {
	return s.transitionAt(ctx, shared.SystemActor, documentID, version, EventReject,
		func(d *Document) { d.RejectReason = detail },
		map[string]any{"reason": detail})
}

// AllowedActionsFor exposes the pure action function for one document.
func (s *Service) AllowedActionsFor(ctx context.Context, documentID int64, actor shared.Actor) ([]Action, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	return AllowedActions(doc.State, actor), nil
}

func (s *Service) transitionAt(ctx context.Context, actor shared.Actor, documentID, version int64, event Event, mutate func(*Document), meta map[string]any) (Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return Document{}, err
	}
	if doc.Version != version {
		return doc, staleErr(doc.Version, version)
	}
	if mutate != nil {
		mutate(&doc)
	}
	return s.applyTransition(ctx, actor, doc, event, meta)
}

// applyTransition applies the event and persists conditionally on the
// prior version; losers of a concurrent race get shared.ErrStaleWrite
// from the repository even when the in-memory check passed.
func (s *Service) applyTransition(ctx context.Context, actor shared.Actor, doc Document, event Event, meta map[string]any) (Document, error) {
	from := doc.State
	expected := doc.Version
	if err := Transition(&doc, event, actor); err != nil {
		return doc, err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateDocument(ctx, doc, expected)
	})
	if err != nil {
		return doc, err
	}
	s.recordAudit(ctx, doc.ID, actor, from, doc.State, meta)
	return doc, nil
}

func (s *Service) recordAudit(ctx context.Context, documentID int64, actor shared.Actor, from, to State, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		DocumentID: documentID,
		ActorID:    actor.ID,
		ActorName:  actor.Name,
		FromState:  string(from),
		ToState:    string(to),
		Meta:       meta,
		At:         time.Now(),
	})
	if err != nil {
		s.logger.Error("record audit", slog.Int64("document_id", documentID), slog.Any("error", err))
	}
}

func buildLines(input []LineInput) []LineItem {
	lines := make([]LineItem, 0, len(input))
	for i, in := range input {
		line := LineItem{
			LineNumber:      i + 1,
			ItemCode:        in.ItemCode,
			ItemDescription: in.ItemDescription,
			Quantity:        in.Quantity,
			WarehouseCode:   in.WarehouseCode,
			BinCode:         in.BinCode,
			SerialTracked:   in.SerialTracked,
		}
		for _, serial := range in.Serials {
			line.Serials = append(line.Serials, SerialNumber{
				Value:  serial.Value,
				Status: validation.StatusUnchecked,
				Source: serial.Source,
			})
		}
		lines = append(lines, line)
	}
	return lines
}

func staleErr(current, read int64) error {
	return fmt.Errorf("documents: version %d, caller read %d: %w", current, read, shared.ErrStaleWrite)
}

func generateNumber(docType DocumentType) string {
	return fmt.Sprintf("%s-%d", docType, time.Now().UnixNano())
}
