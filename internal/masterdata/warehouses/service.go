package warehouses

import (
	"context"
	"errors"
	"strings"
)

// Service applies master data rules on top of the repository.
type Service struct {
	repo Repository
}

// NewService constructs the warehouse service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Warehouse, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Warehouse, error) {
	if id <= 0 {
		return Warehouse{}, errors.New("invalid warehouse ID")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Warehouse, error) {
	if code == "" {
		return Warehouse{}, errors.New("warehouse code required")
	}
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, warehouse Warehouse) (Warehouse, error) {
	if err := s.validate(warehouse); err != nil {
		return Warehouse{}, err
	}
	warehouse.Code = strings.ToUpper(strings.TrimSpace(warehouse.Code))
	warehouse.Active = true
	return s.repo.Create(ctx, warehouse)
}

func (s *Service) Update(ctx context.Context, id int64, warehouse Warehouse) error {
	if id <= 0 {
		return errors.New("invalid warehouse ID")
	}
	if err := s.validate(warehouse); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, warehouse)
}

func (s *Service) ListBins(ctx context.Context, warehouseID int64) ([]BinLocation, error) {
	if _, err := s.Get(ctx, warehouseID); err != nil {
		return nil, err
	}
	return s.repo.ListBins(ctx, warehouseID)
}

func (s *Service) CreateBin(ctx context.Context, bin BinLocation) (BinLocation, error) {
	if _, err := s.Get(ctx, bin.WarehouseID); err != nil {
		return BinLocation{}, err
	}
	if strings.TrimSpace(bin.Code) == "" {
		return BinLocation{}, errors.New("bin code required")
	}
	bin.Code = strings.ToUpper(strings.TrimSpace(bin.Code))
	bin.Active = true
	return s.repo.CreateBin(ctx, bin)
}

func (s *Service) validate(warehouse Warehouse) error {
	if strings.TrimSpace(warehouse.Code) == "" {
		return errors.New("warehouse code required")
	}
	if strings.TrimSpace(warehouse.Name) == "" {
		return errors.New("warehouse name required")
	}
	if warehouse.BranchID <= 0 {
		return errors.New("branch required")
	}
	return nil
}
