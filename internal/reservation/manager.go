package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"github.com/shopkit/inventory-service/internal/stock"
	"github.com/shopkit/inventory-service/internal/stock/dto"
	"go.uber.org/zap"
)

const DefaultTTL = 15 * time.Minute

var ErrNoLines = errors.New("reservation requires at least one line")

// StockLedger is the slice of the stock use case the manager depends on.
type StockLedger interface {
	GetVariantStock(ctx context.Context, variantID string) (int, error)
	UpdateStock(ctx context.Context, input *dto.UpdateStockInput) (*model.StockMovement, error)
	RecordMovement(ctx context.Context, input *dto.RecordMovementInput) (*model.StockMovement, error)
}

type Line struct {
	ProductID string
	VariantID string
	Quantity  int
}

// LineResult is the per-line outcome of a reservation attempt. A batch can be
// partially fulfilled; callers must check Reserved on every line.
type LineResult struct {
	ProductID string
	VariantID string
	Quantity  int
	Reserved  bool
	Reason    string
}

type Reservation struct {
	ID        string
	Items     []LineResult
	ExpiresAt time.Time
}

type hold struct {
	reservationID string
	productID     string
	variantID     string
	quantity      int
	expiresAt     time.Time
}

// Manager tracks short-lived holds against available stock. Holds live only
// in this process; they reduce computed availability and never touch the
// ledger until confirmed. All state is guarded by one mutex so an
// availability check and the hold it justifies are atomic.
type Manager struct {
	ledger     StockLedger
	logger     logger.ZapLogger
	defaultTTL time.Duration
	now        func() time.Time

	mu      sync.Mutex
	holds   map[string][]*hold // variant id -> active holds
	batches map[string][]*hold // reservation id -> its holds
}

func NewManager(ledger StockLedger, log logger.ZapLogger, defaultTTL time.Duration) *Manager {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Manager{
		ledger:     ledger,
		logger:     log,
		defaultTTL: defaultTTL,
		now:        time.Now,
		holds:      make(map[string][]*hold),
		batches:    make(map[string][]*hold),
	}
}

// Reserve attempts to hold stock for every line. Lines with enough available
// stock get a hold; the rest come back Reserved:false with a reason. No
// ledger write happens here.
func (m *Manager) Reserve(ctx context.Context, lines []Line, ttl time.Duration) (*Reservation, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	// Ledger reads happen before taking the mutex; reservation state is the
	// only thing the lock has to protect.
	stocks := make([]int, len(lines))
	missing := make([]bool, len(lines))
	for i, line := range lines {
		qty, err := m.ledger.GetVariantStock(ctx, line.VariantID)
		if err != nil {
			if errors.Is(err, stock.ErrVariantNotFound) || errors.Is(err, stock.ErrMissingVariantID) {
				missing[i] = true
				continue
			}
			return nil, err
		}
		stocks[i] = qty
	}

	reservationID := uuid.New().String()
	expiresAt := m.now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	items := make([]LineResult, 0, len(lines))
	for i, line := range lines {
		result := LineResult{
			ProductID: line.ProductID,
			VariantID: line.VariantID,
			Quantity:  line.Quantity,
		}

		switch {
		case missing[i]:
			result.Reason = "Variant not found"
		case line.Quantity <= 0:
			result.Reason = "Quantity must be positive"
		default:
			available := stocks[i] - m.reservedLocked(line.VariantID)
			if available < line.Quantity {
				result.Reason = fmt.Sprintf("Insufficient stock. Requested: %d, Available: %d", line.Quantity, available)
				break
			}
			h := &hold{
				reservationID: reservationID,
				productID:     line.ProductID,
				variantID:     line.VariantID,
				quantity:      line.Quantity,
				expiresAt:     expiresAt,
			}
			m.holds[line.VariantID] = append(m.holds[line.VariantID], h)
			m.batches[reservationID] = append(m.batches[reservationID], h)
			result.Reserved = true
		}
		items = append(items, result)
	}

	return &Reservation{
		ID:        reservationID,
		Items:     items,
		ExpiresAt: expiresAt,
	}, nil
}

// Release drops every hold of the batch and writes a RELEASED audit movement
// per line. Stock itself is unchanged. Unknown ids are a no-op.
func (m *Manager) Release(ctx context.Context, reservationID string) error {
	held := m.takeBatch(reservationID)

	for _, h := range held {
		_, err := m.ledger.RecordMovement(ctx, &dto.RecordMovementInput{
			VariantID:     h.variantID,
			Kind:          model.MovementReleased,
			Quantity:      h.quantity,
			Reason:        "Reservation released",
			ReferenceID:   reservationID,
			ReferenceType: "reservation",
		})
		if err != nil {
			// Audit-only write; the hold is gone either way.
			m.logger.Error("failed to record release movement",
				zap.String("reservation_id", reservationID),
				zap.String("variant_id", h.variantID),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Confirm converts every hold of the batch into a permanent ledger decrement.
// This is the only path from a reservation to a stock change. Each hold is
// dropped only after its decrement commits, so availability never counts the
// same units twice while a confirm is in flight. Lines whose decrement fails
// stay held under the same id and are drained by a retry; confirming an
// already-drained id is a no-op.
func (m *Manager) Confirm(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	held, ok := m.batches[reservationID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.batches, reservationID)
	m.mu.Unlock()

	var failed []*hold
	var firstErr error
	for _, h := range held {
		_, err := m.ledger.UpdateStock(ctx, &dto.UpdateStockInput{
			VariantID:     h.variantID,
			Quantity:      h.quantity,
			Operation:     model.OperationDecrement,
			Reason:        "Order confirmed",
			ReferenceID:   reservationID,
			ReferenceType: "order",
		})
		if err != nil {
			m.logger.Error("failed to confirm reserved stock",
				zap.String("reservation_id", reservationID),
				zap.String("variant_id", h.variantID),
				zap.Int("quantity", h.quantity),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			failed = append(failed, h)
			continue
		}
		m.mu.Lock()
		m.dropHoldLocked(h)
		m.mu.Unlock()
	}

	if len(failed) > 0 {
		m.mu.Lock()
		m.batches[reservationID] = failed
		m.mu.Unlock()
	}
	return firstErr
}

// AvailableStock returns ledger stock minus active holds, floored at zero.
// Expired holds are filtered out live, without waiting for a cleanup sweep.
func (m *Manager) AvailableStock(ctx context.Context, variantID string) (int, error) {
	qty, err := m.ledger.GetVariantStock(ctx, variantID)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	reserved := m.reservedLocked(variantID)
	m.mu.Unlock()

	available := qty - reserved
	if available < 0 {
		available = 0
	}
	return available, nil
}

// ReservedQuantity returns the active (non-expired) held quantity for a variant.
func (m *Manager) ReservedQuantity(variantID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservedLocked(variantID)
}

// PurgeExpired drops all expired holds and their batch records. Expired
// quantity silently becomes available again; no movement is written, unlike
// an explicit release.
func (m *Manager) PurgeExpired() int {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for variantID, hs := range m.holds {
		kept := hs[:0]
		for _, h := range hs {
			if h.expiresAt.After(now) {
				kept = append(kept, h)
				continue
			}
			removed++
			m.dropFromBatchLocked(h)
		}
		if len(kept) == 0 {
			delete(m.holds, variantID)
		} else {
			m.holds[variantID] = kept
		}
	}
	return removed
}

func (m *Manager) reservedLocked(variantID string) int {
	now := m.now()
	total := 0
	for _, h := range m.holds[variantID] {
		if h.expiresAt.After(now) {
			total += h.quantity
		}
	}
	return total
}

// takeBatch atomically removes and returns the batch's holds.
func (m *Manager) takeBatch(reservationID string) []*hold {
	m.mu.Lock()
	defer m.mu.Unlock()

	held, ok := m.batches[reservationID]
	if !ok {
		return nil
	}
	delete(m.batches, reservationID)
	for _, h := range held {
		m.dropHoldLocked(h)
	}
	return held
}

func (m *Manager) dropHoldLocked(target *hold) {
	hs := m.holds[target.variantID]
	for i, h := range hs {
		if h == target {
			m.holds[target.variantID] = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(m.holds[target.variantID]) == 0 {
		delete(m.holds, target.variantID)
	}
}

func (m *Manager) dropFromBatchLocked(target *hold) {
	batch := m.batches[target.reservationID]
	for i, h := range batch {
		if h == target {
			batch = append(batch[:i], batch[i+1:]...)
			break
		}
	}
	if len(batch) == 0 {
		delete(m.batches, target.reservationID)
	} else {
		m.batches[target.reservationID] = batch
	}
}
