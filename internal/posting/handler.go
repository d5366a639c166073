package posting

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockbridge/stockbridge/internal/platform/httpx"
)

// Handler manages posting endpoints.
type Handler struct {
	logger      *slog.Logger
	coordinator *Coordinator
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, coordinator *Coordinator) *Handler {
	return &Handler{logger: logger, coordinator: coordinator}
}

// MountRoutes registers posting routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/postings/{documentID}/attempts", h.handleAttempts)
	r.Post("/postings/{documentID}/retry", h.handleRetry)
}

// AttemptResponse is the JSON shape of one posting attempt.
type AttemptResponse struct {
	ID             int64     `json:"id"`
	AttemptNumber  int       `json:"attempt_number"`
	Status         string    `json:"status"`
	IdempotencyKey string    `json:"idempotency_key"`
	RemoteDocEntry int64     `json:"remote_doc_entry,omitempty"`
	RemoteDocNum   string    `json:"remote_doc_num,omitempty"`
	ErrorDetail    string    `json:"error_detail,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
}

func (h *Handler) handleAttempts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	attempts, err := h.coordinator.Attempts(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := []AttemptResponse{}
	for _, a := range attempts {
		resp := AttemptResponse{
			ID:             a.ID,
			AttemptNumber:  a.AttemptNumber,
			Status:         string(a.Status),
			IdempotencyKey: a.IdempotencyKey.String(),
			RemoteDocEntry: a.RemoteDocEntry,
			RemoteDocNum:   a.RemoteDocNum,
			ErrorDetail:    a.ErrorDetail,
			CreatedAt:      a.CreatedAt,
		}
		if !a.CompletedAt.IsZero() && a.CompletedAt.Unix() != 0 {
			resp.CompletedAt = a.CompletedAt
		}
		out = append(out, resp)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"attempts": out})
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.coordinator.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrPostingInFlight):
			httpx.Problem(w, http.StatusConflict, "Posting In Flight", err.Error())
			return
		case errors.Is(err, ErrAttemptsExhausted):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Attempts Exhausted", err.Error())
			return
		}
		h.logger.Warn("manual retry", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"document_id":      doc.ID,
		"state":            string(doc.State),
		"remote_doc_entry": doc.RemoteDocEntry,
		"remote_doc_num":   doc.RemoteDocNum,
	})
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a positive integer")
		return 0, false
	}
	return id, true
}
