package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopkit/inventory-service/internal/alert"
	"github.com/shopkit/inventory-service/internal/alert/dto"
	"github.com/shopkit/inventory-service/internal/model"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) ListVariantsAtOrBelow(ctx context.Context, threshold int) ([]model.ProductVariant, error) {
	var variants []model.ProductVariant
	query := `
        SELECT * FROM product_variants
        WHERE is_active = TRUE
          AND stock <= GREATEST(low_stock_threshold, $1)
        ORDER BY stock ASC
    `
	err := r.DB.SelectContext(ctx, &variants, query, threshold)
	return variants, err
}

func (r *PGRepository) ListUnresolved(ctx context.Context) ([]model.StockAlert, error) {
	var alerts []model.StockAlert
	query := `SELECT * FROM stock_alerts WHERE resolved = FALSE`
	err := r.DB.SelectContext(ctx, &alerts, query)
	return alerts, err
}

func (r *PGRepository) Create(ctx context.Context, a *model.StockAlert) error {
	query := `
        INSERT INTO stock_alerts (
            id, variant_id, product_id, variant_name,
            current_stock, threshold, alert_type,
            resolved, resolved_at, created_at
        )
        VALUES (
            :id, :variant_id, :product_id, :variant_name,
            :current_stock, :threshold, :alert_type,
            :resolved, :resolved_at, :created_at
        )
    `
	_, err := r.DB.NamedExecContext(ctx, query, a)
	return err
}

func (r *PGRepository) Resolve(ctx context.Context, alertID string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE stock_alerts SET resolved = TRUE, resolved_at = $1 WHERE id = $2 AND resolved = FALSE`,
		at, alertID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return alert.ErrAlertNotFound
	}
	return nil
}

func (r *PGRepository) List(ctx context.Context, f *dto.AlertFilters) ([]model.StockAlert, int, error) {
	var items []model.StockAlert
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
	if f.Type != "" {
		conditions = append(conditions, "alert_type = :alert_type")
		args["alert_type"] = f.Type
	}
	if f.Resolved != nil {
		conditions = append(conditions, "resolved = :resolved")
		args["resolved"] = *f.Resolved
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT count(*) FROM stock_alerts" + whereClause
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

	query := "SELECT * FROM stock_alerts" + whereClause + " ORDER BY created_at DESC"
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
