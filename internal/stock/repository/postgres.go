package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/stock/dto"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetVariant(ctx context.Context, variantID string) (*model.ProductVariant, error) {
	var v model.ProductVariant
	query := `SELECT * FROM product_variants WHERE id = $1`
	err := r.DB.GetContext(ctx, &v, query, variantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Return nil if no record found (caller decides)
		}
		return nil, err
	}
	return &v, nil
}

func (r *PGRepository) SumStockByProduct(ctx context.Context, productID string) (int, error) {
	var total int
	query := `SELECT COALESCE(SUM(stock), 0) FROM product_variants WHERE product_id = $1`
	err := r.DB.GetContext(ctx, &total, query, productID)
	return total, err
}

const insertMovementQuery = `
    INSERT INTO stock_movements (
        id, variant_id, product_id, kind, quantity,
        previous_stock, new_stock, reason,
        reference_id, reference_type, created_by, created_at
    )
    VALUES (
        :id, :variant_id, :product_id, :kind, :quantity,
        :previous_stock, :new_stock, :reason,
        :reference_id, :reference_type, :created_by, :created_at
    )
`

func (r *PGRepository) ApplyMovement(ctx context.Context, variantID string, newStock int, movement *model.StockMovement) error {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE product_variants SET stock = $1, updated_at = $2 WHERE id = $3`,
		newStock, time.Now(), variantID,
	)
	if err != nil {
		return fmt.Errorf("failed to update variant stock: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("variant %s disappeared during stock update", variantID)
	}

	if _, err := tx.NamedExecContext(ctx, insertMovementQuery, movement); err != nil {
		return fmt.Errorf("failed to log movement: %w", err)
	}

	return tx.Commit()
}

// BulkAdjust applies every item in one transaction. Each row is locked with
// SELECT ... FOR UPDATE before its read-modify-write; items referencing a
// missing variant are reported as skipped and the batch keeps going.
func (r *PGRepository) BulkAdjust(ctx context.Context, input *dto.BulkUpdateInput) ([]dto.BulkItemResult, error) {
	tx, err := r.DB.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := time.Now()
	results := make([]dto.BulkItemResult, 0, len(input.Items))

	for _, item := range input.Items {
		if item.VariantID == "" {
			results = append(results, dto.BulkItemResult{
				VariantID: item.VariantID,
				Status:    dto.BulkItemFailed,
				Reason:    "variant id is required",
			})
			continue
		}
		if item.Quantity < 0 {
			results = append(results, dto.BulkItemResult{
				VariantID: item.VariantID,
				Status:    dto.BulkItemFailed,
				Reason:    "quantity must not be negative",
			})
			continue
		}

		var v model.ProductVariant
		err := tx.GetContext(ctx, &v,
			`SELECT * FROM product_variants WHERE id = $1 FOR UPDATE`, item.VariantID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				results = append(results, dto.BulkItemResult{
					VariantID: item.VariantID,
					Status:    dto.BulkItemSkipped,
					Reason:    "variant not found",
				})
				continue
			}
			return nil, err
		}

		newStock, kind, err := model.ApplyStockOperation(v.Stock, item.Quantity, item.Operation)
		if err != nil {
			results = append(results, dto.BulkItemResult{
				VariantID: item.VariantID,
				Status:    dto.BulkItemFailed,
				Reason:    err.Error(),
			})
			continue
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE product_variants SET stock = $1, updated_at = $2 WHERE id = $3`,
			newStock, now, v.ID,
		); err != nil {
			return nil, fmt.Errorf("failed to update variant %s: %w", v.ID, err)
		}

		delta := newStock - v.Stock
		if delta < 0 {
			delta = -delta
		}
		movement := &model.StockMovement{
			ID:            uuid.New().String(),
			VariantID:     v.ID,
			ProductID:     v.ProductID,
			Kind:          kind,
			Quantity:      delta,
			PreviousStock: v.Stock,
			NewStock:      newStock,
			Reason:        input.Reason,
			CreatedAt:     now,
		}
		if input.ActorID != "" {
			actor := input.ActorID
			movement.CreatedBy = &actor
		}

		if _, err := tx.NamedExecContext(ctx, insertMovementQuery, movement); err != nil {
			return nil, fmt.Errorf("failed to log movement for variant %s: %w", v.ID, err)
		}

		results = append(results, dto.BulkItemResult{
			VariantID: v.ID,
			Status:    dto.BulkItemApplied,
			Movement:  movement,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *PGRepository) LogMovement(ctx context.Context, movement *model.StockMovement) error {
	_, err := r.DB.NamedExecContext(ctx, insertMovementQuery, movement)
	return err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	var items []model.StockMovement
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.VariantID != "" {
		conditions = append(conditions, "variant_id = :variant_id")
		args["variant_id"] = f.VariantID
	}
	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.Kind != "" {
		conditions = append(conditions, "kind = :kind")
		args["kind"] = f.Kind
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at <= :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM stock_movements" + whereClause
	rows, err := r.DB.NamedQueryContext(ctx, countQuery, args)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			return nil, 0, err
		}
	}

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC"
	if f.PageSize > 0 {
		offset := (f.Page - 1) * f.PageSize
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, offset)
	}

	nstmt, err := r.DB.PrepareNamedContext(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	defer nstmt.Close()

	err = nstmt.SelectContext(ctx, &items, args)
	return items, count, err
}

func (r *PGRepository) GetStockReport(ctx context.Context, lowStockThreshold int) (*dto.StockReport, error) {
	var report dto.StockReport
	query := `
        SELECT
            COUNT(DISTINCT product_id)                  AS total_products,
            COUNT(*)                                    AS total_variants,
            COALESCE(SUM(stock), 0)                     AS total_stock,
            COALESCE(SUM(stock * price), 0)             AS total_value,
            COUNT(*) FILTER (
                WHERE stock > 0
                  AND stock <= GREATEST(low_stock_threshold, $1)
            )                                           AS low_stock_count,
            COUNT(*) FILTER (WHERE stock = 0)           AS out_of_stock_count
        FROM product_variants
        WHERE is_active = TRUE
    `
	if err := r.DB.GetContext(ctx, &report, query, lowStockThreshold); err != nil {
		return nil, err
	}
	return &report, nil
}
