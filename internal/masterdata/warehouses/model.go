// Package warehouses holds warehouse and bin location master data used
// when capturing document lines.
package warehouses

import (
	"errors"
	"time"
)

// Warehouse represents a warehouse entity.
type Warehouse struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branch_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BinLocation is one storage bin within a warehouse.
type BinLocation struct {
	ID          int64  `json:"id"`
	WarehouseID int64  `json:"warehouse_id"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
	Active      bool   `json:"active"`
}

// ErrNotFound indicates the warehouse or bin does not exist.
var ErrNotFound = errors.New("warehouses: not found")

// ListFilters narrows warehouse listings.
type ListFilters struct {
	BranchID int64
	Search   string
	Page     int
	Limit    int
}
