package documents

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/stockbridge/stockbridge/internal/platform/httpx"
	"github.com/stockbridge/stockbridge/internal/shared"
)

// AuditLister reads transition history for one document.
type AuditLister interface {
	List(ctx context.Context, documentID int64) ([]shared.AuditLog, error)
}

// Handler manages document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	audit    AuditLister
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, audit AuditLister) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		audit:    audit,
		validate: validator.New(),
	}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/documents", h.handleList)
	r.Post("/documents", h.handleCreate)
	r.Get("/documents/{id}", h.handleGet)
	r.Get("/documents/{id}/audit", h.handleAudit)
	r.Get("/documents/{id}/conflicts", h.handleConflicts)
	r.Put("/documents/{id}/lines", h.handleUpdateLines)
	r.Post("/documents/{id}/override", h.handleOverride)
	r.Post("/documents/{id}/submit", h.handleSubmit)
	r.Post("/documents/{id}/revalidate", h.handleRevalidate)
	r.Post("/documents/{id}/reopen", h.handleReopen)
	r.Post("/documents/{id}/approve", h.handleApprove)
	r.Post("/documents/{id}/reject", h.handleReject)
	r.Post("/documents/{id}/abandon", h.handleAbandon)
	r.Post("/documents/{id}/clone", h.handleClone)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.Create(r.Context(), actor, toCreateInput(req))
	if err != nil {
		h.logger.Error("create document", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := toDocumentResponse(doc)
	resp.Actions = AllowedActions(doc.State, actor)
	httpx.JSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	filter := ListFilter{
		State:   State(q.Get("state")),
		Type:    DocumentType(q.Get("type")),
		Partner: q.Get("partner"),
		Search:  q.Get("search"),
		From:    parseDate(q.Get("from")),
		To:      parseDate(q.Get("to")),
		Page:    page,
		Limit:   limit,
	}
	docs, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list documents", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	resp := ListResponse{Documents: []DocumentResponse{}, Total: total, Page: page, Limit: limit}
	for _, doc := range docs {
		resp.Documents = append(resp.Documents, toDocumentResponse(doc))
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	resp := toDocumentResponse(doc)
	resp.Actions = AllowedActions(doc.State, actor)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Get(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	logs, err := h.audit.List(r.Context(), id)
	if err != nil {
		h.logger.Error("list audit", slog.Int64("document_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": logs})
}

func (h *Handler) handleConflicts(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	version, _ := strconv.ParseInt(r.URL.Query().Get("version"), 10, 64)
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if version == 0 {
		version = doc.Version
	}
	conflicts, err := h.service.Check(r.Context(), id, version)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conflicts": toConflictResponses(conflicts)})
}

func (h *Handler) handleUpdateLines(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req UpdateLinesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.UpdateLines(r.Context(), actor, id, req.Version, toLineInputs(req.Lines))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req OverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.SetDuplicateOverride(r.Context(), actor, id, req.Version, req.Allow)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeVersioned(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, conflicts, err := h.service.Submit(r.Context(), actor, id, req.Version)
	h.respondSubmit(w, doc, conflicts, err)
}

func (h *Handler) handleRevalidate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	req, ok := h.decodeVersioned(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.Revalidate(r.Context(), actor, id, req.Version)
	h.respondSubmit(w, doc, nil, err)
}

// respondSubmit distinguishes partial validation, which is not a failure:
// the document sticks in submitted and the client retries.
func (h *Handler) respondSubmit(w http.ResponseWriter, doc Document, conflicts []Conflict, err error) {
	if err != nil {
		if errors.Is(err, shared.ErrValidationPartial) {
			httpx.JSON(w, http.StatusAccepted, SubmitResponse{
				Document:           toDocumentResponse(doc),
				Conflicts:          toConflictResponses(conflicts),
				ValidationComplete: false,
			})
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, SubmitResponse{
		Document:           toDocumentResponse(doc),
		Conflicts:          toConflictResponses(conflicts),
		ValidationComplete: true,
	})
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor shared.Actor, id, version int64, _ string) (Document, error) {
		return h.service.Reopen(ctx, actor, id, version)
	}, false)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor shared.Actor, id, version int64, _ string) (Document, error) {
		return h.service.Approve(ctx, actor, id, version)
	}, false)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor shared.Actor, id, version int64, reason string) (Document, error) {
		return h.service.Reject(ctx, actor, id, version, reason)
	}, true)
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, actor shared.Actor, id, version int64, reason string) (Document, error) {
		return h.service.Abandon(ctx, actor, id, version, reason)
	}, true)
}

func (h *Handler) handleClone(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := h.service.Clone(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

type transitionFn func(ctx context.Context, actor shared.Actor, id, version int64, reason string) (Document, error)

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn transitionFn, needReason bool) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var version int64
	var reason string
	if needReason {
		var req ReasonedRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		version, reason = req.Version, req.Reason
	} else {
		req, ok := h.decodeVersioned(w, r)
		if !ok {
			return
		}
		version = req.Version
	}
	actor, _ := shared.ActorFromContext(r.Context())
	doc, err := fn(r.Context(), actor, id, version, reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := toDocumentResponse(doc)
	resp.Actions = AllowedActions(doc.State, actor)
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) decodeVersioned(w http.ResponseWriter, r *http.Request) (VersionedRequest, bool) {
	var req VersionedRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, false
	}
	return req, true
}

func parseDate(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}
	}
	return t
}
