package listener

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"github.com/shopkit/inventory-service/internal/stock/dto"
)

type fakeStockUseCase struct {
	bulkInputs []*dto.BulkUpdateInput
	results    []dto.BulkItemResult
}

func (f *fakeStockUseCase) GetVariantStock(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (f *fakeStockUseCase) GetProductStock(_ context.Context, _ string) (int, error) {
	return 0, nil
}

func (f *fakeStockUseCase) UpdateStock(_ context.Context, _ *dto.UpdateStockInput) (*model.StockMovement, error) {
	return nil, nil
}

func (f *fakeStockUseCase) BulkUpdateStock(_ context.Context, input *dto.BulkUpdateInput) ([]dto.BulkItemResult, error) {
	f.bulkInputs = append(f.bulkInputs, input)
	return f.results, nil
}

func (f *fakeStockUseCase) RecordMovement(_ context.Context, _ *dto.RecordMovementInput) (*model.StockMovement, error) {
	return nil, nil
}

func (f *fakeStockUseCase) GetStockReport(_ context.Context) (*dto.StockReport, error) {
	return nil, nil
}

func (f *fakeStockUseCase) ListMovements(_ context.Context, _ *dto.MovementFilters) ([]model.StockMovement, int, error) {
	return nil, 0, nil
}

func TestProcessMessage_AppliesSupplierSync(t *testing.T) {
	uc := &fakeStockUseCase{}
	l := &SupplierListener{uc: uc, logger: logger.NewNop()}

	data, _ := json.Marshal(SupplierStockEvent{
		EventID:   "evt-1",
		EventType: "SupplierStockSync",
		Payload: SupplierPayload{
			SupplierID: "sup-42",
			Items: []SupplierFeedItem{
				{VariantID: "v1", Quantity: 100},
				{VariantID: "v2", Quantity: 0},
			},
		},
		Timestamp: time.Now(),
	})

	l.processMessage(context.Background(), data)

	if len(uc.bulkInputs) != 1 {
		t.Fatalf("Expected 1 bulk update, got %d", len(uc.bulkInputs))
	}
	input := uc.bulkInputs[0]
	if len(input.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(input.Items))
	}
	for _, item := range input.Items {
		if item.Operation != model.OperationSet {
			t.Errorf("Expected set operation, got %s", item.Operation)
		}
	}
	if input.Items[0].VariantID != "v1" || input.Items[0].Quantity != 100 {
		t.Errorf("Unexpected first item: %+v", input.Items[0])
	}
	if input.Reason != "Supplier sync: sup-42" {
		t.Errorf("Unexpected reason: %q", input.Reason)
	}
	if input.ActorID != "system" {
		t.Errorf("Expected system actor, got %q", input.ActorID)
	}
}

func TestProcessMessage_IgnoresOtherEventTypes(t *testing.T) {
	uc := &fakeStockUseCase{}
	l := &SupplierListener{uc: uc, logger: logger.NewNop()}

	data, _ := json.Marshal(SupplierStockEvent{
		EventID:   "evt-2",
		EventType: "ProductCreated",
	})

	l.processMessage(context.Background(), data)

	if len(uc.bulkInputs) != 0 {
		t.Errorf("Expected no bulk updates, got %d", len(uc.bulkInputs))
	}
}

func TestProcessMessage_ToleratesMalformedPayload(t *testing.T) {
	uc := &fakeStockUseCase{}
	l := &SupplierListener{uc: uc, logger: logger.NewNop()}

	l.processMessage(context.Background(), []byte("not json"))

	if len(uc.bulkInputs) != 0 {
		t.Errorf("Expected no bulk updates, got %d", len(uc.bulkInputs))
	}
}
