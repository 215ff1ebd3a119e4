package dto

import "github.com/shopkit/inventory-service/internal/model"

type UpdateStockInput struct {
	VariantID     string
	Quantity      int
	Operation     model.StockOperation
	Kind          model.MovementKind // optional; derived from Operation when empty (e.g. RETURN for a customer return)
	Reason        string
	ReferenceID   string
	ReferenceType string // 'order', 'reservation', 'supplier', 'manual_adjustment'
	ActorID       string
}

type BulkUpdateItem struct {
	VariantID string               `json:"variant_id"`
	Quantity  int                  `json:"quantity"`
	Operation model.StockOperation `json:"operation"`
}

type BulkUpdateInput struct {
	Items   []BulkUpdateItem
	Reason  string
	ActorID string
}

type RecordMovementInput struct {
	VariantID     string
	Kind          model.MovementKind
	Quantity      int
	Reason        string
	ReferenceID   string
	ReferenceType string
	ActorID       string
}
