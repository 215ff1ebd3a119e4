package stock

import (
	"context"
	"time"

	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/stock/dto"
)

type UseCase interface {
	// Reads (cache-through)
	GetVariantStock(ctx context.Context, variantID string) (int, error)
	GetProductStock(ctx context.Context, productID string) (int, error)

	// Core ledger mutations
	UpdateStock(ctx context.Context, input *dto.UpdateStockInput) (*model.StockMovement, error)
	BulkUpdateStock(ctx context.Context, input *dto.BulkUpdateInput) ([]dto.BulkItemResult, error)

	// Audit-only movement (previous stock == new stock)
	RecordMovement(ctx context.Context, input *dto.RecordMovementInput) (*model.StockMovement, error)

	// Reporting
	GetStockReport(ctx context.Context) (*dto.StockReport, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}

type Repository interface {
	// GetVariant returns nil when the variant does not exist.
	GetVariant(ctx context.Context, variantID string) (*model.ProductVariant, error)
	SumStockByProduct(ctx context.Context, productID string) (int, error)

	// ApplyMovement writes the new stock value and appends the movement in
	// one transaction.
	ApplyMovement(ctx context.Context, variantID string, newStock int, movement *model.StockMovement) error

	// BulkAdjust applies every item in one transaction with per-row locks.
	// Missing variants are skipped, bad items fail; both are reported in the
	// per-item results rather than aborting the batch.
	BulkAdjust(ctx context.Context, input *dto.BulkUpdateInput) ([]dto.BulkItemResult, error)

	LogMovement(ctx context.Context, movement *model.StockMovement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)

	GetStockReport(ctx context.Context, lowStockThreshold int) (*dto.StockReport, error)
}

// Cache is the slice of the redis client the ledger needs. Cache failures are
// never fatal to a stock read.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, pattern string) error
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}
