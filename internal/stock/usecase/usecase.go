package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"github.com/shopkit/inventory-service/internal/stock"
	"github.com/shopkit/inventory-service/internal/stock/dto"
	"go.uber.org/zap"
)

type stockUseCase struct {
	repo              stock.Repository
	cache             stock.Cache
	logger            logger.ZapLogger
	cacheTTL          time.Duration
	lowStockThreshold int
}

func NewStockUseCase(repo stock.Repository, cache stock.Cache, log logger.ZapLogger, cacheTTL time.Duration, lowStockThreshold int) stock.UseCase {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	return &stockUseCase{
		repo:              repo,
		cache:             cache,
		logger:            log,
		cacheTTL:          cacheTTL,
		lowStockThreshold: lowStockThreshold,
	}
}

func variantStockKey(variantID string) string { return "stock:variant:" + variantID }
func productStockKey(productID string) string { return "stock:product:" + productID }

func (uc *stockUseCase) GetVariantStock(ctx context.Context, variantID string) (int, error) {
	if variantID == "" {
		return 0, stock.ErrMissingVariantID
	}

	key := variantStockKey(variantID)
	var cached int
	if hit, err := uc.cache.Get(ctx, key, &cached); err != nil {
		// Cache failures degrade to a miss, never block a stock read.
		uc.logger.Debug("stock cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	v, err := uc.repo.GetVariant(ctx, variantID)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, stock.ErrVariantNotFound
	}

	if err := uc.cache.Set(ctx, key, v.Stock, uc.cacheTTL); err != nil {
		uc.logger.Debug("stock cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v.Stock, nil
}

func (uc *stockUseCase) GetProductStock(ctx context.Context, productID string) (int, error) {
	key := productStockKey(productID)
	var cached int
	if hit, err := uc.cache.Get(ctx, key, &cached); err != nil {
		uc.logger.Debug("stock cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return cached, nil
	}

	total, err := uc.repo.SumStockByProduct(ctx, productID)
	if err != nil {
		return 0, err
	}

	if err := uc.cache.Set(ctx, key, total, uc.cacheTTL); err != nil {
		uc.logger.Debug("stock cache write failed", zap.String("key", key), zap.Error(err))
	}
	return total, nil
}

func (uc *stockUseCase) UpdateStock(ctx context.Context, input *dto.UpdateStockInput) (*model.StockMovement, error) {
	if input.VariantID == "" {
		return nil, stock.ErrMissingVariantID
	}
	if input.Quantity < 0 {
		return nil, stock.ErrInvalidQuantity
	}
	if !input.Operation.Valid() {
		return nil, model.ErrUnknownOperation
	}

	unlock, err := uc.lockVariant(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, err := uc.repo.GetVariant(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, stock.ErrVariantNotFound
	}

	newStock, kind, err := model.ApplyStockOperation(v.Stock, input.Quantity, input.Operation)
	if err != nil {
		return nil, err
	}
	if input.Kind != "" {
		kind = input.Kind
	}

	movement := buildMovement(v, kind, newStock, input.Reason, input.ReferenceID, input.ReferenceType, input.ActorID)
	if err := uc.repo.ApplyMovement(ctx, v.ID, newStock, movement); err != nil {
		return nil, fmt.Errorf("failed to apply stock movement: %w", err)
	}

	uc.invalidateStockCache(ctx, v.ID, v.ProductID)
	return movement, nil
}

func (uc *stockUseCase) BulkUpdateStock(ctx context.Context, input *dto.BulkUpdateInput) ([]dto.BulkItemResult, error) {
	if len(input.Items) == 0 {
		return nil, stock.ErrEmptyBatch
	}

	results, err := uc.repo.BulkAdjust(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("bulk stock adjustment failed: %w", err)
	}

	for _, res := range results {
		switch res.Status {
		case dto.BulkItemApplied:
			uc.invalidateStockCache(ctx, res.VariantID, res.Movement.ProductID)
		case dto.BulkItemSkipped, dto.BulkItemFailed:
			uc.logger.Warn("bulk stock item not applied",
				zap.String("variant_id", res.VariantID),
				zap.String("status", string(res.Status)),
				zap.String("reason", res.Reason),
			)
		}
	}
	return results, nil
}

func (uc *stockUseCase) RecordMovement(ctx context.Context, input *dto.RecordMovementInput) (*model.StockMovement, error) {
	if input.VariantID == "" {
		return nil, stock.ErrMissingVariantID
	}
	if input.Quantity < 0 {
		return nil, stock.ErrInvalidQuantity
	}

	v, err := uc.repo.GetVariant(ctx, input.VariantID)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, stock.ErrVariantNotFound
	}

	// Audit-only: stock is untouched, previous == new.
	movement := buildMovement(v, input.Kind, v.Stock, input.Reason, input.ReferenceID, input.ReferenceType, input.ActorID)
	movement.Quantity = input.Quantity
	if err := uc.repo.LogMovement(ctx, movement); err != nil {
		return nil, fmt.Errorf("failed to log movement: %w", err)
	}
	return movement, nil
}

func (uc *stockUseCase) GetStockReport(ctx context.Context) (*dto.StockReport, error) {
	return uc.repo.GetStockReport(ctx, uc.lowStockThreshold)
}

func (uc *stockUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return uc.repo.ListMovements(ctx, filters)
}

// lockVariant serializes read-modify-write cycles on a single variant across
// instances. Lock failures are retried briefly before giving up.
func (uc *stockUseCase) lockVariant(ctx context.Context, variantID string) (func(), error) {
	lockKey := "lock:stock:" + variantID
	lockValue := uuid.New().String()

	acquired := false
	for i := 0; i < 3; i++ {
		ok, err := uc.cache.AcquireLock(ctx, lockKey, lockValue, 5*time.Second)
		if err != nil {
			uc.logger.Error("failed to acquire stock lock", zap.String("key", lockKey), zap.Error(err))
		}
		if ok {
			acquired = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !acquired {
		return nil, stock.ErrLockNotAcquired
	}

	return func() {
		if err := uc.cache.ReleaseLock(ctx, lockKey, lockValue); err != nil {
			uc.logger.Error("failed to release stock lock", zap.String("key", lockKey), zap.Error(err))
		}
	}, nil
}

func (uc *stockUseCase) invalidateStockCache(ctx context.Context, variantID, productID string) {
	for _, pattern := range []string{variantStockKey(variantID), productStockKey(productID)} {
		if err := uc.cache.Invalidate(ctx, pattern); err != nil {
			uc.logger.Debug("stock cache invalidation failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}
}

func buildMovement(v *model.ProductVariant, kind model.MovementKind, newStock int, reason, refID, refType, actorID string) *model.StockMovement {
	delta := newStock - v.Stock
	if delta < 0 {
		delta = -delta
	}

	m := &model.StockMovement{
		ID:            uuid.New().String(),
		VariantID:     v.ID,
		ProductID:     v.ProductID,
		Kind:          kind,
		Quantity:      delta,
		PreviousStock: v.Stock,
		NewStock:      newStock,
		Reason:        reason,
		CreatedAt:     time.Now(),
	}
	if refID != "" {
		m.ReferenceID = &refID
	}
	if refType != "" {
		m.ReferenceType = &refType
	}
	if actorID != "" && actorID != "unknown" {
		m.CreatedBy = &actorID
	}
	return m
}
