package warehouses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides warehouse persistence.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error)
	Get(ctx context.Context, id int64) (Warehouse, error)
	GetByCode(ctx context.Context, code string) (Warehouse, error)
	Create(ctx context.Context, warehouse Warehouse) (Warehouse, error)
	Update(ctx context.Context, id int64, warehouse Warehouse) error
	ListBins(ctx context.Context, warehouseID int64) ([]BinLocation, error)
	CreateBin(ctx context.Context, bin BinLocation) (BinLocation, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	query := `SELECT id, branch_id, code, name, COALESCE(address, ''), active, created_at, updated_at
	FROM warehouses WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM warehouses WHERE 1=1`
	args := []any{}
	argCount := 0

	clause := ""
	if filters.BranchID > 0 {
		argCount++
		clause += ` AND branch_id = $` + strconv.Itoa(argCount)
		args = append(args, filters.BranchID)
	}
	if filters.Search != "" {
		argCount++
		clause += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += clause + ` ORDER BY code ASC`
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Warehouse
	for rows.Next() {
		var w Warehouse
		if err := rows.Scan(&w.ID, &w.BranchID, &w.Code, &w.Name, &w.Address, &w.Active, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, w)
	}
	return out, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Warehouse, error) {
	return r.get(ctx, `WHERE id = $1`, id)
}

func (r *repository) GetByCode(ctx context.Context, code string) (Warehouse, error) {
	return r.get(ctx, `WHERE code = $1`, code)
}

func (r *repository) get(ctx context.Context, where string, arg any) (Warehouse, error) {
	var w Warehouse
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, code, name, COALESCE(address, ''), active, created_at, updated_at
	FROM warehouses `+where, arg).
		Scan(&w.ID, &w.BranchID, &w.Code, &w.Name, &w.Address, &w.Active, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrNotFound
	}
	if err != nil {
		return Warehouse{}, err
	}
	return w, nil
}

func (r *repository) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	now := time.Now()
	err := r.pool.QueryRow(ctx, `INSERT INTO warehouses (branch_id, code, name, address, active, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$6) RETURNING id`,
		warehouse.BranchID, warehouse.Code, warehouse.Name, warehouse.Address, warehouse.Active, now).
		Scan(&warehouse.ID)
	if err != nil {
		return Warehouse{}, err
	}
	warehouse.CreatedAt = now
	warehouse.UpdatedAt = now
	return warehouse, nil
}

func (r *repository) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	tag, err := r.pool.Exec(ctx, `UPDATE warehouses SET branch_id = $1, name = $2, address = $3, active = $4, updated_at = $5
	WHERE id = $6`,
		warehouse.BranchID, warehouse.Name, warehouse.Address, warehouse.Active, time.Now(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListBins(ctx context.Context, warehouseID int64) ([]BinLocation, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, warehouse_id, code, COALESCE(description, ''), active
	FROM bin_locations WHERE warehouse_id = $1 ORDER BY code ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bins []BinLocation
	for rows.Next() {
		var b BinLocation
		if err := rows.Scan(&b.ID, &b.WarehouseID, &b.Code, &b.Description, &b.Active); err != nil {
			return nil, err
		}
		bins = append(bins, b)
	}
	return bins, rows.Err()
}

func (r *repository) CreateBin(ctx context.Context, bin BinLocation) (BinLocation, error) {
	err := r.pool.QueryRow(ctx, `INSERT INTO bin_locations (warehouse_id, code, description, active)
	VALUES ($1,$2,$3,$4) RETURNING id`,
		bin.WarehouseID, bin.Code, bin.Description, bin.Active).
		Scan(&bin.ID)
	if err != nil {
		return BinLocation{}, err
	}
	return bin, nil
}
