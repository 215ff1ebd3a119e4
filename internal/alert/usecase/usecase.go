package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopkit/inventory-service/internal/alert"
	"github.com/shopkit/inventory-service/internal/alert/dto"
	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/broker"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"go.uber.org/zap"
)

type alertUseCase struct {
	repo             alert.Repository
	publisher        *broker.KafkaPublisher // optional; nil disables publishing
	logger           logger.ZapLogger
	defaultThreshold int
}

func NewAlertUseCase(repo alert.Repository, publisher *broker.KafkaPublisher, log logger.ZapLogger, defaultThreshold int) alert.UseCase {
	if defaultThreshold <= 0 {
		defaultThreshold = 10
	}
	return &alertUseCase{
		repo:             repo,
		publisher:        publisher,
		logger:           log,
		defaultThreshold: defaultThreshold,
	}
}

func (uc *alertUseCase) CheckLowStock(ctx context.Context, threshold int) ([]model.StockAlert, error) {
	if threshold <= 0 {
		threshold = uc.defaultThreshold
	}

	variants, err := uc.repo.ListVariantsAtOrBelow(ctx, threshold)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	alerts := make([]model.StockAlert, 0, len(variants))
	for _, v := range variants {
		effective := threshold
		if v.LowStockThreshold > 0 {
			effective = v.LowStockThreshold
		}

		var alertType model.AlertType
		switch {
		case v.IsOutOfStock():
			alertType = model.AlertOutOfStock
		case v.IsLowStock(effective):
			alertType = model.AlertLowStock
		default:
			continue
		}

		alerts = append(alerts, model.StockAlert{
			VariantID:    v.ID,
			ProductID:    v.ProductID,
			VariantName:  v.Name,
			CurrentStock: v.Stock,
			Threshold:    effective,
			Type:         alertType,
			CreatedAt:    now,
		})
	}
	return alerts, nil
}

// CheckStockAlerts is idempotent: a variant already flagged with an
// unresolved alert of the same type is not flagged again.
func (uc *alertUseCase) CheckStockAlerts(ctx context.Context) ([]model.StockAlert, error) {
	candidates, err := uc.CheckLowStock(ctx, uc.defaultThreshold)
	if err != nil {
		return nil, err
	}

	existing, err := uc.repo.ListUnresolved(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		seen[alertKey(a.VariantID, a.Type)] = struct{}{}
	}

	created := make([]model.StockAlert, 0)
	for _, cand := range candidates {
		if _, ok := seen[alertKey(cand.VariantID, cand.Type)]; ok {
			continue
		}
		cand.ID = uuid.New().String()
		if err := uc.repo.Create(ctx, &cand); err != nil {
			return created, fmt.Errorf("failed to create stock alert: %w", err)
		}
		uc.publishAlert(ctx, &cand)
		created = append(created, cand)
	}
	return created, nil
}

func (uc *alertUseCase) CreateAlert(ctx context.Context, input *dto.CreateAlertInput) (*model.StockAlert, error) {
	a := &model.StockAlert{
		ID:           uuid.New().String(),
		VariantID:    input.VariantID,
		ProductID:    input.ProductID,
		VariantName:  input.VariantName,
		CurrentStock: input.CurrentStock,
		Threshold:    input.Threshold,
		Type:         input.Type,
		CreatedAt:    time.Now(),
	}
	if err := uc.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (uc *alertUseCase) ResolveAlert(ctx context.Context, alertID string) error {
	return uc.repo.Resolve(ctx, alertID, time.Now())
}

func (uc *alertUseCase) ListAlerts(ctx context.Context, filters *dto.AlertFilters) ([]model.StockAlert, int, error) {
	return uc.repo.List(ctx, filters)
}

type alertEvent struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Payload   *model.StockAlert `json:"payload"`
	Timestamp time.Time         `json:"timestamp"`
}

func (uc *alertUseCase) publishAlert(ctx context.Context, a *model.StockAlert) {
	if uc.publisher == nil {
		return
	}
	data, err := json.Marshal(alertEvent{
		EventID:   uuid.New().String(),
		EventType: "StockAlertRaised",
		Payload:   a,
		Timestamp: time.Now(),
	})
	if err != nil {
		uc.logger.Error("failed to marshal alert event", zap.Error(err))
		return
	}
	if err := uc.publisher.Publish(ctx, []byte(a.VariantID), data); err != nil {
		// Notification delivery is best effort; the alert row is the record.
		uc.logger.Error("failed to publish alert event", zap.String("alert_id", a.ID), zap.Error(err))
	}
}

func alertKey(variantID string, t model.AlertType) string {
	return variantID + "|" + string(t)
}
