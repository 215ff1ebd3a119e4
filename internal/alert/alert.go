package alert

import (
	"context"
	"errors"
	"time"

	"github.com/shopkit/inventory-service/internal/alert/dto"
	"github.com/shopkit/inventory-service/internal/model"
)

var ErrAlertNotFound = errors.New("alert not found")

type UseCase interface {
	// CheckLowStock scans variants and classifies them against the threshold
	// without persisting anything.
	CheckLowStock(ctx context.Context, threshold int) ([]model.StockAlert, error)

	// CheckStockAlerts persists (and publishes) only alerts that do not
	// already exist unresolved for the same variant and type.
	CheckStockAlerts(ctx context.Context) ([]model.StockAlert, error)

	CreateAlert(ctx context.Context, input *dto.CreateAlertInput) (*model.StockAlert, error)
	ResolveAlert(ctx context.Context, alertID string) error
	ListAlerts(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error)
}

type Repository interface {
	// ListVariantsAtOrBelow returns active variants whose stock is at or
	// below the given threshold or their own configured one.
	ListVariantsAtOrBelow(ctx context.Context, threshold int) ([]model.ProductVariant, error)

	ListUnresolved(ctx context.Context) ([]model.StockAlert, error)
	Create(ctx context.Context, alert *model.StockAlert) error
	Resolve(ctx context.Context, alertID string, at time.Time) error
	List(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error)
}
