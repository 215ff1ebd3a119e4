package model

import (
	"errors"
	"time"
)

type ProductVariant struct {
	ID                string    `db:"id"`
	ProductID         string    `db:"product_id"`
	SKU               string    `db:"sku"`
	Name              string    `db:"name"`
	Price             float64   `db:"price"`
	Stock             int       `db:"stock"`
	LowStockThreshold int       `db:"low_stock_threshold"`
	IsActive          bool      `db:"is_active"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// IsLowStock reports whether stock is positive but at or below the threshold.
func (v *ProductVariant) IsLowStock(threshold int) bool {
	return v.Stock > 0 && v.Stock <= threshold
}

func (v *ProductVariant) IsOutOfStock() bool {
	return v.Stock <= 0
}

// StockMovement is an append-only audit record. One row is written for every
// stock change; audit-only kinds (RELEASED) carry previous == new stock.
type StockMovement struct {
	ID            string       `db:"id"`
	VariantID     string       `db:"variant_id"`
	ProductID     string       `db:"product_id"`
	Kind          MovementKind `db:"kind"`
	Quantity      int          `db:"quantity"`
	PreviousStock int          `db:"previous_stock"`
	NewStock      int          `db:"new_stock"`
	Reason        string       `db:"reason"`
	ReferenceID   *string      `db:"reference_id"`
	ReferenceType *string      `db:"reference_type"`
	CreatedBy     *string      `db:"created_by"`
	CreatedAt     time.Time    `db:"created_at"`
}

type MovementKind string

const (
	MovementInbound    MovementKind = "INBOUND"
	MovementOutbound   MovementKind = "OUTBOUND"
	MovementAdjustment MovementKind = "ADJUSTMENT"
	MovementReturn     MovementKind = "RETURN"
	MovementReserved   MovementKind = "RESERVED"
	MovementReleased   MovementKind = "RELEASED"
)

type StockOperation string

const (
	OperationSet       StockOperation = "set"
	OperationIncrement StockOperation = "increment"
	OperationDecrement StockOperation = "decrement"
)

var ErrUnknownOperation = errors.New("unknown stock operation")

func (op StockOperation) Valid() bool {
	switch op {
	case OperationSet, OperationIncrement, OperationDecrement:
		return true
	}
	return false
}

// ApplyStockOperation computes the stock after applying op and the movement
// kind derived from it. Decrement floors at zero, it never drives stock
// negative. The movement quantity to record is |newStock - current|.
func ApplyStockOperation(current, quantity int, op StockOperation) (newStock int, kind MovementKind, err error) {
	switch op {
	case OperationSet:
		return quantity, MovementAdjustment, nil
	case OperationIncrement:
		return current + quantity, MovementInbound, nil
	case OperationDecrement:
		newStock = current - quantity
		if newStock < 0 {
			newStock = 0
		}
		return newStock, MovementOutbound, nil
	default:
		return 0, "", ErrUnknownOperation
	}
}

type StockAlert struct {
	ID           string     `db:"id"`
	VariantID    string     `db:"variant_id"`
	ProductID    string     `db:"product_id"`
	VariantName  string     `db:"variant_name"`
	CurrentStock int        `db:"current_stock"`
	Threshold    int        `db:"threshold"`
	Type         AlertType  `db:"alert_type"`
	Resolved     bool       `db:"resolved"`
	ResolvedAt   *time.Time `db:"resolved_at"`
	CreatedAt    time.Time  `db:"created_at"`
}

type AlertType string

const (
	AlertLowStock   AlertType = "LOW_STOCK"
	AlertOutOfStock AlertType = "OUT_OF_STOCK"
	AlertOverstock  AlertType = "OVERSTOCK"
)
