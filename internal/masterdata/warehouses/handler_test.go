package warehouses

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	warehouses map[int64]Warehouse
	bins       map[int64][]BinLocation
	nextID     int64
	nextBinID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		warehouses: make(map[int64]Warehouse),
		bins:       make(map[int64][]BinLocation),
	}
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	var out []Warehouse
	for _, w := range r.warehouses {
		if filters.BranchID > 0 && w.BranchID != filters.BranchID {
			continue
		}
		if filters.Search != "" && !strings.Contains(w.Name, filters.Search) && !strings.Contains(w.Code, filters.Search) {
			continue
		}
		out = append(out, w)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Warehouse, error) {
	w, ok := r.warehouses[id]
	if !ok {
		return Warehouse{}, ErrNotFound
	}
	return w, nil
}

func (r *memoryRepo) GetByCode(ctx context.Context, code string) (Warehouse, error) {
	for _, w := range r.warehouses {
		if w.Code == code {
			return w, nil
		}
	}
	return Warehouse{}, ErrNotFound
}

func (r *memoryRepo) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	r.nextID++
	warehouse.ID = r.nextID
	warehouse.CreatedAt = time.Now()
	warehouse.UpdatedAt = warehouse.CreatedAt
	r.warehouses[warehouse.ID] = warehouse
	return warehouse, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	existing, ok := r.warehouses[id]
	if !ok {
		return ErrNotFound
	}
	existing.BranchID = warehouse.BranchID
	existing.Name = warehouse.Name
	existing.Address = warehouse.Address
	existing.Active = warehouse.Active
	existing.UpdatedAt = time.Now()
	r.warehouses[id] = existing
	return nil
}

func (r *memoryRepo) ListBins(ctx context.Context, warehouseID int64) ([]BinLocation, error) {
	return r.bins[warehouseID], nil
}

func (r *memoryRepo) CreateBin(ctx context.Context, bin BinLocation) (BinLocation, error) {
	r.nextBinID++
	bin.ID = r.nextBinID
	r.bins[bin.WarehouseID] = append(r.bins[bin.WarehouseID], bin)
	return bin, nil
}

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	repo := newMemoryRepo()
	handler := NewHandler(slog.Default(), NewService(repo))
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateNormalisesCode(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/warehouses", Warehouse{
		BranchID: 1, Code: " wh1 ", Name: "Main",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created Warehouse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "WH1", created.Code)
	require.True(t, created.Active)
}

func TestCreateRequiresNameAndBranch(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/warehouses", Warehouse{BranchID: 1, Code: "WH1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/warehouses", Warehouse{Code: "WH1", Name: "Main"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListFiltersByBranch(t *testing.T) {
	router, repo := newTestRouter(t)
	_, _ = repo.Create(context.Background(), Warehouse{BranchID: 1, Code: "WH1", Name: "Main", Active: true})
	_, _ = repo.Create(context.Background(), Warehouse{BranchID: 2, Code: "WH2", Name: "North", Active: true})

	rec := doJSON(t, router, http.MethodGet, "/warehouses?branch_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Warehouses []Warehouse `json:"warehouses"`
		Total      int         `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	require.Equal(t, "WH2", resp.Warehouses[0].Code)
}

func TestGetUnknownWarehouse(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/warehouses/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateDeactivatesWarehouse(t *testing.T) {
	router, repo := newTestRouter(t)
	created, _ := repo.Create(context.Background(), Warehouse{BranchID: 1, Code: "WH1", Name: "Main", Active: true})

	rec := doJSON(t, router, http.MethodPut, fmt.Sprintf("/warehouses/%d", created.ID), Warehouse{
		BranchID: 1, Code: "WH1", Name: "Main", Active: false,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var updated Warehouse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	require.False(t, updated.Active)
}

func TestBinsBelongToWarehouse(t *testing.T) {
	router, repo := newTestRouter(t)
	created, _ := repo.Create(context.Background(), Warehouse{BranchID: 1, Code: "WH1", Name: "Main", Active: true})

	rec := doJSON(t, router, http.MethodPost, fmt.Sprintf("/warehouses/%d/bins", created.ID),
		BinLocation{Code: "a-01-01"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var bin BinLocation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bin))
	require.Equal(t, "A-01-01", bin.Code)
	require.Equal(t, created.ID, bin.WarehouseID)

	rec = doJSON(t, router, http.MethodGet, fmt.Sprintf("/warehouses/%d/bins", created.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bins []BinLocation `json:"bins"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Bins, 1)

	rec = doJSON(t, router, http.MethodPost, "/warehouses/99/bins", BinLocation{Code: "B-01"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}
