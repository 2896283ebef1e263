package inventory

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Entry is one drug's stock-ledger row: the available quantity and the current selling price.
type Entry struct {
	ID                string          `json:"id"`
	DisplayName       string          `json:"displayName"`
	GenericName       string          `json:"genericName,omitempty"`
	AvailableQuantity int             `json:"availableQuantity"`
	UnitSellingPrice  decimal.Decimal `json:"unitSellingPrice"`
	ReorderLevel      int             `json:"reorderLevel"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// IsLow reports whether the entry is at or below its reorder level.
func (e Entry) IsLow() bool {
	return e.AvailableQuantity <= e.ReorderLevel
}

// ListFilter narrows catalog listings.
type ListFilter struct {
	Search       string
	LowStockOnly bool
	Limit        int
	Offset       int
}

// CreateEntryInput registers a new drug in the catalog.
type CreateEntryInput struct {
	DisplayName     string          `json:"displayName" validate:"required,max=200"`
	GenericName     string          `json:"genericName" validate:"omitempty,max=200"`
	InitialQuantity int             `json:"initialQuantity" validate:"gte=0"`
	UnitPrice       decimal.Decimal `json:"unitSellingPrice"`
	ReorderLevel    *int            `json:"reorderLevel,omitempty" validate:"omitempty,gte=0"`
}

// UpdateEntryInput changes descriptive fields. Quantity is never set directly;
// it only moves through restock and sales.
type UpdateEntryInput struct {
	DisplayName  *string          `json:"displayName,omitempty" validate:"omitempty,min=1,max=200"`
	GenericName  *string          `json:"genericName,omitempty" validate:"omitempty,max=200"`
	UnitPrice    *decimal.Decimal `json:"unitSellingPrice,omitempty"`
	ReorderLevel *int             `json:"reorderLevel,omitempty" validate:"omitempty,gte=0"`
}

// RestockInput returns stock to an entry (goods received, returns from wards).
type RestockInput struct {
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Note     string `json:"note" validate:"omitempty,max=500"`
}

var (
	// ErrEntryNotFound indicates the ledger has no entry with the given id.
	ErrEntryNotFound = errors.New("inventory: entry not found")
	// ErrInsufficientStock is returned by a guarded decrement that found less than requested.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInvalidAmount indicates a non-positive ledger movement.
	ErrInvalidAmount = errors.New("inventory: amount must be positive")
	// ErrInvalidEntry indicates catalog input failed validation.
	ErrInvalidEntry = errors.New("inventory: invalid entry")
)
