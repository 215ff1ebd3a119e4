package listener

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/broker"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"github.com/shopkit/inventory-service/internal/stock"
	"github.com/shopkit/inventory-service/internal/stock/dto"
	"go.uber.org/zap"
)

// SupplierListener consumes supplier stock feeds and applies them to the
// ledger as absolute 'set' adjustments.
type SupplierListener struct {
	consumer *broker.KafkaConsumer
	uc       stock.UseCase
	logger   logger.ZapLogger
}

func NewSupplierListener(consumer *broker.KafkaConsumer, uc stock.UseCase, logger logger.ZapLogger) *SupplierListener {
	return &SupplierListener{
		consumer: consumer,
		uc:       uc,
		logger:   logger,
	}
}

func (l *SupplierListener) Start(ctx context.Context) {
	l.logger.Info("Starting Supplier Stock Listener")
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping Supplier Stock Listener")
			return
		default:
			msg, err := l.consumer.ReadMessage(ctx)
			if err != nil {
				// Don't log context canceled error as error
				if ctx.Err() != nil {
					return
				}
				l.logger.Error("Failed to read kafka message", zap.Error(err))
				time.Sleep(1 * time.Second)
				continue
			}
			l.processMessage(ctx, msg.Value)
		}
	}
}

type SupplierStockEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   SupplierPayload `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type SupplierPayload struct {
	SupplierID string             `json:"supplier_id"`
	Items      []SupplierFeedItem `json:"items"`
}

type SupplierFeedItem struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func (l *SupplierListener) processMessage(ctx context.Context, value []byte) {
	var event SupplierStockEvent
	if err := json.Unmarshal(value, &event); err != nil {
		l.logger.Error("Failed to unmarshal event", zap.Error(err))
		return
	}

	if event.EventType != "SupplierStockSync" {
		return
	}

	l.logger.Info("Processing SupplierStockSync event",
		zap.String("supplier_id", event.Payload.SupplierID),
		zap.Int("items", len(event.Payload.Items)),
	)

	items := make([]dto.BulkUpdateItem, 0, len(event.Payload.Items))
	for _, item := range event.Payload.Items {
		items = append(items, dto.BulkUpdateItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Operation: model.OperationSet,
		})
	}

	results, err := l.uc.BulkUpdateStock(ctx, &dto.BulkUpdateInput{
		Items:   items,
		Reason:  "Supplier sync: " + event.Payload.SupplierID,
		ActorID: "system",
	})
	if err != nil {
		l.logger.Error("Failed to apply supplier stock sync",
			zap.String("supplier_id", event.Payload.SupplierID),
			zap.Error(err),
		)
		return
	}

	for _, res := range results {
		if res.Status != dto.BulkItemApplied {
			l.logger.Warn("Supplier feed item not applied",
				zap.String("variant_id", res.VariantID),
				zap.String("status", string(res.Status)),
				zap.String("reason", res.Reason),
			)
		}
	}
}
