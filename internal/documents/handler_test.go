package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/stockbridge/stockbridge/internal/shared"
)

func (a *recordingAudit) List(ctx context.Context, documentID int64) ([]shared.AuditLog, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []shared.AuditLog
	for _, log := range a.logs {
		if log.DocumentID == documentID {
			out = append(out, log)
		}
	}
	return out, nil
}

// newTestRouter mounts the handler behind a middleware that injects the
// given actor, mirroring what the actor middleware does in production.
func newTestRouter(t *testing.T, actor shared.Actor) (http.Handler, *Service) {
	t.Helper()
	service, _, audit := newTestService(nil)
	handler := NewHandler(slog.Default(), service, audit)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithActor(req.Context(), actor)))
		})
	})
	handler.MountRoutes(r)
	return r, service
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func createRequestBody(serials ...string) CreateDocumentRequest {
	line := LineItemRequest{
		ItemCode:      "ITM-1",
		Quantity:      float64(len(serials)),
		WarehouseCode: "WH1",
		SerialTracked: true,
	}
	for _, s := range serials {
		line.Serials = append(line.Serials, SerialRequest{Value: s})
	}
	return CreateDocumentRequest{
		Type:     "GRPO",
		BranchID: 1,
		Lines:    []LineItemRequest{line},
	}
}

func TestHandlerCreateThenGet(t *testing.T) {
	router, _ := newTestRouter(t, clerk)

	rec := doJSON(t, router, http.MethodPost, "/documents", createRequestBody("SN-1", "SN-2"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "draft", created.State)
	require.Equal(t, clerk.ID, created.CreatedBy)
	require.NotEmpty(t, created.Actions)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/documents/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fetched DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fetched))
	require.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.Lines, 1)
	require.Len(t, fetched.Lines[0].Serials, 2)
}

func TestHandlerCreateRejectsUnknownType(t *testing.T) {
	router, _ := newTestRouter(t, clerk)

	body := createRequestBody("SN-1")
	body.Type = "QUOTE"
	rec := doJSON(t, router, http.MethodPost, "/documents", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSubmitReachesQCPending(t *testing.T) {
	router, service := newTestRouter(t, clerk)
	doc, err := service.Create(context.Background(), clerk, createInput("SN-1", "SN-2"))
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/documents/%d/submit", doc.ID),
		VersionedRequest{Version: doc.Version})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.ValidationComplete)
	require.Equal(t, "qc_pending", resp.Document.State)
	require.Empty(t, resp.Conflicts)
}

func TestHandlerSubmitStaleVersionConflicts(t *testing.T) {
	router, service := newTestRouter(t, clerk)
	doc, err := service.Create(context.Background(), clerk, createInput("SN-1"))
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/documents/%d/submit", doc.ID),
		VersionedRequest{Version: doc.Version + 5})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerGetUnknownDocument(t *testing.T) {
	router, _ := newTestRouter(t, clerk)

	rec := doJSON(t, router, http.MethodGet, "/documents/9999", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerRejectRequiresReason(t *testing.T) {
	router, service := newTestRouter(t, inspector)
	ctx := context.Background()
	doc, err := service.Create(ctx, clerk, createInput("SN-1"))
	require.NoError(t, err)
	doc, _, err = service.Submit(ctx, clerk, doc.ID, doc.Version)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/documents/%d/reject", doc.ID),
		VersionedRequest{Version: doc.Version})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, fmt.Sprintf("/documents/%d/reject", doc.ID),
		ReasonedRequest{Version: doc.Version, Reason: "wrong partner"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp DocumentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "rejected", resp.State)
	require.Equal(t, "wrong partner", resp.RejectReason)
}

func TestHandlerAuditTrail(t *testing.T) {
	router, service := newTestRouter(t, clerk)
	ctx := context.Background()
	doc, err := service.Create(ctx, clerk, createInput("SN-1"))
	require.NoError(t, err)
	_, _, err = service.Submit(ctx, clerk, doc.ID, doc.Version)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodGet, fmt.Sprintf("/documents/%d/audit", doc.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Entries []shared.AuditLog `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Entries)
}
