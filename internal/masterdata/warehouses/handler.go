package warehouses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stockbridge/stockbridge/internal/platform/httpx"
)

// Handler manages warehouse endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/warehouses", h.handleList)
	r.Post("/warehouses", h.handleCreate)
	r.Get("/warehouses/{id}", h.handleGet)
	r.Put("/warehouses/{id}", h.handleUpdate)
	r.Get("/warehouses/{id}/bins", h.handleListBins)
	r.Post("/warehouses/{id}/bins", h.handleCreateBin)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	branchID, _ := strconv.ParseInt(q.Get("branch_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	items, total, err := h.service.List(r.Context(), ListFilters{
		BranchID: branchID,
		Search:   q.Get("search"),
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		h.logger.Error("list warehouses", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"warehouses": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := warehouseID(w, r)
	if !ok {
		return
	}
	warehouse, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, warehouse)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var warehouse Warehouse
	if err := httpx.DecodeJSON(r, &warehouse); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), warehouse)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := warehouseID(w, r)
	if !ok {
		return
	}
	var warehouse Warehouse
	if err := httpx.DecodeJSON(r, &warehouse); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, warehouse); err != nil {
		h.respondError(w, err)
		return
	}
	updated, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleListBins(w http.ResponseWriter, r *http.Request) {
	id, ok := warehouseID(w, r)
	if !ok {
		return
	}
	bins, err := h.service.ListBins(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bins": bins})
}

func (h *Handler) handleCreateBin(w http.ResponseWriter, r *http.Request) {
	id, ok := warehouseID(w, r)
	if !ok {
		return
	}
	var bin BinLocation
	if err := httpx.DecodeJSON(r, &bin); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	bin.WarehouseID = id
	created, err := h.service.CreateBin(r.Context(), bin)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		return
	}
	httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
}

func warehouseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "warehouse id must be a positive integer")
		return 0, false
	}
	return id, true
}
