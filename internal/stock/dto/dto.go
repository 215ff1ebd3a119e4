package dto

import (
	"time"

	"github.com/shopkit/inventory-service/internal/model"
)

type BulkItemStatus string

const (
	BulkItemApplied BulkItemStatus = "applied"
	BulkItemSkipped BulkItemStatus = "skipped"
	BulkItemFailed  BulkItemStatus = "failed"
)

// BulkItemResult reports the per-item outcome of a bulk adjustment. A missing
// variant is skipped, not silently dropped.
type BulkItemResult struct {
	VariantID string
	Status    BulkItemStatus
	Reason    string
	Movement  *model.StockMovement
}

type StockReport struct {
	TotalProducts   int     `db:"total_products"`
	TotalVariants   int     `db:"total_variants"`
	TotalStock      int     `db:"total_stock"`
	TotalValue      float64 `db:"total_value"`
	LowStockCount   int     `db:"low_stock_count"`
	OutOfStockCount int     `db:"out_of_stock_count"`
}

type MovementFilters struct {
	VariantID string
	ProductID string
	Kind      model.MovementKind
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
