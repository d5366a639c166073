package posting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge/internal/documents"
	"github.com/stockbridge/stockbridge/internal/erp"
	"github.com/stockbridge/stockbridge/internal/shared"
)

type fakeDocs struct {
	mu   sync.Mutex
	docs map[int64]*documents.Document
}

func newFakeDocs(docs ...documents.Document) *fakeDocs {
	f := &fakeDocs{docs: make(map[int64]*documents.Document)}
	for i := range docs {
		doc := docs[i]
		f.docs[doc.ID] = &doc
	}
	return f
}

func (f *fakeDocs) Get(ctx context.Context, id int64) (documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return documents.Document{}, documents.ErrNotFound
	}
	return *doc, nil
}

func (f *fakeDocs) apply(id, version int64, state documents.State, mutate func(*documents.Document)) (documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return documents.Document{}, documents.ErrNotFound
	}
	if doc.Version != version {
		return documents.Document{}, fmt.Errorf("version moved: %w", shared.ErrStaleWrite)
	}
	doc.State = state
	doc.Version++
	if mutate != nil {
		mutate(doc)
	}
	return *doc, nil
}

func (f *fakeDocs) MarkPosted(ctx context.Context, id, version int64, remoteDocEntry int64, remoteDocNum string) (documents.Document, error) {
	return f.apply(id, version, documents.StatePosted, func(d *documents.Document) {
		d.RemoteDocEntry = remoteDocEntry
		d.RemoteDocNum = remoteDocNum
	})
}

func (f *fakeDocs) MarkPostFailed(ctx context.Context, id, version int64, detail string) (documents.Document, error) {
	return f.apply(id, version, documents.StatePostFailed, nil)
}

func (f *fakeDocs) RejectRemote(ctx context.Context, id, version int64, detail string) (documents.Document, error) {
	return f.apply(id, version, documents.StateRejected, func(d *documents.Document) {
		d.RejectReason = detail
	})
}

type memAttempts struct {
	mu       sync.Mutex
	attempts []Attempt
	nextID   int64
}

func (m *memAttempts) InsertAttempt(ctx context.Context, attempt Attempt) (Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	attempt.ID = m.nextID
	attempt.Status = AttemptPending
	attempt.CreatedAt = time.Now()
	number := 0
	for _, a := range m.attempts {
		if a.DocumentID == attempt.DocumentID && a.AttemptNumber > number {
			number = a.AttemptNumber
		}
	}
	attempt.AttemptNumber = number + 1
	m.attempts = append(m.attempts, attempt)
	return attempt, nil
}

func (m *memAttempts) CompleteAttempt(ctx context.Context, id int64, status AttemptStatus, remoteDocEntry int64, remoteDocNum, errorDetail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.attempts {
		if m.attempts[i].ID == id {
			m.attempts[i].Status = status
			m.attempts[i].RemoteDocEntry = remoteDocEntry
			m.attempts[i].RemoteDocNum = remoteDocNum
			m.attempts[i].ErrorDetail = errorDetail
			m.attempts[i].CompletedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("attempt %d not found", id)
}

func (m *memAttempts) FirstKey(ctx context.Context, documentID int64) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.DocumentID == documentID {
			return a.IdempotencyKey, nil
		}
	}
	return uuid.Nil, nil
}

func (m *memAttempts) CountAttempts(ctx context.Context, documentID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, a := range m.attempts {
		if a.DocumentID == documentID {
			count++
		}
	}
	return count, nil
}

func (m *memAttempts) ListAttempts(ctx context.Context, documentID int64) ([]Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Attempt
	for _, a := range m.attempts {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttempts) HasPending(ctx context.Context, documentID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.DocumentID == documentID && a.Status == AttemptPending {
			return true, nil
		}
	}
	return false, nil
}

type memReservation struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemReservation() *memReservation {
	return &memReservation{keys: make(map[string]bool)}
}

func (r *memReservation) CheckAndInsert(ctx context.Context, key, module string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	r.keys[key] = true
	return nil
}

func (r *memReservation) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	return nil
}

type stubERP struct {
	mu        sync.Mutex
	postErrs  []error
	postCalls int
	postKeys  []uuid.UUID
	found     map[uuid.UUID]erp.RemoteID
	nextEntry int64
}

func (s *stubERP) ValidateSerials(ctx context.Context, serials []string) (map[string]erp.SerialLookup, error) {
	return nil, nil
}

func (s *stubERP) PostDocument(ctx context.Context, payload erp.DocumentPayload, key uuid.UUID) (erp.RemoteID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	call := s.postCalls
	s.postCalls++
	s.postKeys = append(s.postKeys, key)
	if call < len(s.postErrs) && s.postErrs[call] != nil {
		return erp.RemoteID{}, s.postErrs[call]
	}
	s.nextEntry++
	return erp.RemoteID{DocEntry: 1000 + s.nextEntry, DocNum: fmt.Sprintf("GR-%d", s.nextEntry)}, nil
}

func (s *stubERP) FindPostedDocument(ctx context.Context, key uuid.UUID) (erp.RemoteID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if remote, ok := s.found[key]; ok {
		return remote, nil
	}
	return erp.RemoteID{}, erp.ErrNotFound
}

type recordScheduler struct {
	mu      sync.Mutex
	retries []int
}

func (r *recordScheduler) ScheduleRetry(ctx context.Context, documentID int64, attempt int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retries = append(r.retries, attempt)
	return nil
}

func approvedDoc() documents.Document {
	return documents.Document{
		ID:          42,
		Number:      "GRPO-1",
		Type:        documents.TypeGRPO,
		State:       documents.StateApproved,
		Version:     4,
		BranchID:    5,
		PartnerCode: "V100",
		Lines: []documents.LineItem{{
			LineNumber:    1,
			ItemCode:      "ITM-1",
			Quantity:      1,
			WarehouseCode: "WH1",
			SerialTracked: true,
			Serials:       []documents.SerialNumber{{Value: "SN-1"}},
		}},
	}
}

func newTestCoordinator(docs DocumentsPort, remote erp.Client, maxAttempts int) (*Coordinator, *memAttempts, *memReservation, *recordScheduler) {
	attempts := &memAttempts{}
	reservation := newMemReservation()
	scheduler := &recordScheduler{}
	c := NewCoordinator(Config{
		Documents:   docs,
		Remote:      remote,
		Attempts:    attempts,
		Reservation: reservation,
		Scheduler:   scheduler,
		MaxAttempts: maxAttempts,
	})
	return c, attempts, reservation, scheduler
}

func TestPostSuccess(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{}
	c, attempts, reservation, scheduler := newTestCoordinator(docs, remote, 3)

	doc, err := c.Post(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, documents.StatePosted, doc.State)
	require.NotZero(t, doc.RemoteDocEntry)
	require.NotEmpty(t, doc.RemoteDocNum)

	recorded, err := attempts.ListAttempts(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, AttemptSuccess, recorded[0].Status)
	require.Equal(t, doc.RemoteDocEntry, recorded[0].RemoteDocEntry)
	require.NotEmpty(t, recorded[0].Payload)

	// The processed marker stays so a duplicate trigger cannot repost.
	require.Len(t, reservation.keys, 1)
	require.Empty(t, scheduler.retries)
}

func TestPostOnlyFromApprovedOrPostFailed(t *testing.T) {
	doc := approvedDoc()
	doc.State = documents.StateQCPending
	c, _, _, _ := newTestCoordinator(newFakeDocs(doc), &stubERP{}, 3)

	_, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, shared.ErrGuardViolation)
}

func TestPostInFlightReservation(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	c, _, reservation, _ := newTestCoordinator(docs, &stubERP{}, 3)

	key := shared.PostingKey(42, 4)
	require.NoError(t, reservation.CheckAndInsert(context.Background(), key.String(), "posting"))

	_, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, ErrPostingInFlight)
}

func TestPostRejectedIsTerminal(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{postErrs: []error{fmt.Errorf("item ITM-1 missing: %w", erp.ErrRejected)}}
	c, attempts, _, scheduler := newTestCoordinator(docs, remote, 3)

	doc, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrRejected)
	require.Equal(t, documents.StateRejected, doc.State)
	require.Contains(t, doc.RejectReason, "ITM-1")

	recorded, _ := attempts.ListAttempts(context.Background(), 42)
	require.Len(t, recorded, 1)
	require.Equal(t, AttemptFailed, recorded[0].Status)
	require.Empty(t, scheduler.retries, "non-retryable outcomes must not schedule retries")
}

func TestPostAmbiguousSchedulesRetry(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{postErrs: []error{fmt.Errorf("read timeout: %w", erp.ErrAmbiguous)}}
	c, _, reservation, scheduler := newTestCoordinator(docs, remote, 3)

	doc, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrAmbiguous)
	require.Equal(t, documents.StatePostFailed, doc.State)
	require.Equal(t, []int{1}, scheduler.retries)

	// Reservation released so the retry can reserve again.
	require.Empty(t, reservation.keys)
}

func TestRetryReconcilesAmbiguousOutcome(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{postErrs: []error{fmt.Errorf("read timeout: %w", erp.ErrAmbiguous)}}
	c, _, _, _ := newTestCoordinator(docs, remote, 3)

	_, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrAmbiguous)

	// The first call actually landed remotely.
	key := shared.PostingKey(42, 4)
	remote.mu.Lock()
	remote.found = map[uuid.UUID]erp.RemoteID{key: {DocEntry: 7001, DocNum: "GR-77"}}
	remote.mu.Unlock()

	doc, err := c.Retry(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, documents.StatePosted, doc.State)
	require.Equal(t, int64(7001), doc.RemoteDocEntry)
	require.Equal(t, "GR-77", doc.RemoteDocNum)
	require.Equal(t, 1, remote.postCalls, "adopted documents must not be posted again")
}

func TestRetryReusesFirstAttemptKey(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{postErrs: []error{fmt.Errorf("service unavailable: %w", erp.ErrUnavailable)}}
	c, _, _, _ := newTestCoordinator(docs, remote, 3)

	_, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrUnavailable)

	// MarkPostFailed bumped the version; the key must not follow it.
	doc, err := c.Retry(context.Background(), 42)
	require.NoError(t, err)
	require.Equal(t, documents.StatePosted, doc.State)

	require.Len(t, remote.postKeys, 2)
	require.Equal(t, remote.postKeys[0], remote.postKeys[1])
	require.Equal(t, shared.PostingKey(42, 4), remote.postKeys[0])
}

func TestAttemptsExhausted(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	remote := &stubERP{postErrs: []error{
		fmt.Errorf("down: %w", erp.ErrUnavailable),
		fmt.Errorf("down: %w", erp.ErrUnavailable),
	}}
	c, _, _, scheduler := newTestCoordinator(docs, remote, 2)

	_, err := c.Post(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrUnavailable)
	_, err = c.Retry(context.Background(), 42)
	require.ErrorIs(t, err, erp.ErrUnavailable)

	_, err = c.Retry(context.Background(), 42)
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	require.Equal(t, 2, remote.postCalls)

	// The final attempt consumed the budget, so no retry was queued.
	require.Equal(t, []int{1}, scheduler.retries)
}

func TestPayloadIsStoredOnAttempt(t *testing.T) {
	docs := newFakeDocs(approvedDoc())
	c, attempts, _, _ := newTestCoordinator(docs, &stubERP{}, 3)

	_, err := c.Post(context.Background(), 42)
	require.NoError(t, err)

	recorded, _ := attempts.ListAttempts(context.Background(), 42)
	require.Len(t, recorded, 1)
	require.Contains(t, string(recorded[0].Payload), `"ItemCode":"ITM-1"`)
	require.Contains(t, string(recorded[0].Payload), `"InternalSerialNumber":"SN-1"`)
	require.Contains(t, string(recorded[0].Payload), `"CardCode":"V100"`)
}
