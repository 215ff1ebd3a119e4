package reservation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopkit/inventory-service/internal/model"
	"github.com/shopkit/inventory-service/internal/pkg/logger"
	"github.com/shopkit/inventory-service/internal/stock"
	"github.com/shopkit/inventory-service/internal/stock/dto"
)

type fakeLedger struct {
	mu          sync.Mutex
	stocks      map[string]int
	movements   []*model.StockMovement
	updateCalls int
	failUpdates int // fail this many UpdateStock calls before recovering

	// When set, UpdateStock signals updateStarted and parks until
	// updateRelease is closed. Lets a test observe mid-write state.
	updateStarted chan struct{}
	updateRelease chan struct{}
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{stocks: make(map[string]int)}
}

func (f *fakeLedger) GetVariantStock(_ context.Context, variantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	qty, ok := f.stocks[variantID]
	if !ok {
		return 0, stock.ErrVariantNotFound
	}
	return qty, nil
}

func (f *fakeLedger) UpdateStock(_ context.Context, input *dto.UpdateStockInput) (*model.StockMovement, error) {
	if f.updateStarted != nil {
		f.updateStarted <- struct{}{}
		<-f.updateRelease
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	if f.failUpdates > 0 {
		f.failUpdates--
		return nil, errors.New("ledger unavailable")
	}

	current, ok := f.stocks[input.VariantID]
	if !ok {
		return nil, stock.ErrVariantNotFound
	}
	newStock, kind, err := model.ApplyStockOperation(current, input.Quantity, input.Operation)
	if err != nil {
		return nil, err
	}
	f.stocks[input.VariantID] = newStock

	delta := newStock - current
	if delta < 0 {
		delta = -delta
	}
	m := &model.StockMovement{
		VariantID:     input.VariantID,
		Kind:          kind,
		Quantity:      delta,
		PreviousStock: current,
		NewStock:      newStock,
		Reason:        input.Reason,
	}
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeLedger) RecordMovement(_ context.Context, input *dto.RecordMovementInput) (*model.StockMovement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.stocks[input.VariantID]
	if !ok {
		return nil, stock.ErrVariantNotFound
	}
	m := &model.StockMovement{
		VariantID:     input.VariantID,
		Kind:          input.Kind,
		Quantity:      input.Quantity,
		PreviousStock: current,
		NewStock:      current,
		Reason:        input.Reason,
	}
	f.movements = append(f.movements, m)
	return m, nil
}

func (f *fakeLedger) movementsOfKind(kind model.MovementKind) []*model.StockMovement {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.StockMovement
	for _, m := range f.movements {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func newTestManager(ledger *fakeLedger) *Manager {
	return NewManager(ledger, logger.NewNop(), DefaultTTL)
}

func TestReserve_HoldsAvailableStock(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	res, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.ID == "" {
		t.Error("Expected a reservation id")
	}
	if !res.Items[0].Reserved {
		t.Fatalf("Expected line to be reserved, reason: %s", res.Items[0].Reason)
	}

	available, err := m.AvailableStock(ctx, "v1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if available != 6 {
		t.Errorf("Expected available stock 6, got %d", available)
	}
	if got := m.ReservedQuantity("v1"); got != 4 {
		t.Errorf("Expected reserved quantity 4, got %d", got)
	}
	if ledger.updateCalls != 0 {
		t.Error("Expected no ledger write at reservation time")
	}
}

func TestReserve_InsufficientStock(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	if _, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	res, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 7}}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Items[0].Reserved {
		t.Fatal("Expected second reservation to fail")
	}
	if !strings.Contains(res.Items[0].Reason, "Available: 6") {
		t.Errorf("Expected reason to mention available quantity, got: %q", res.Items[0].Reason)
	}
}

func TestReserve_PartialBatch(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	ledger.stocks["v2"] = 1
	m := newTestManager(ledger)

	res, err := m.Reserve(context.Background(), []Line{
		{ProductID: "p1", VariantID: "v1", Quantity: 2},
		{ProductID: "p1", VariantID: "v2", Quantity: 5},
	}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Items[0].Reserved {
		t.Error("Expected first line reserved")
	}
	if res.Items[1].Reserved {
		t.Error("Expected second line rejected")
	}
}

func TestReserve_UnknownVariant(t *testing.T) {
	m := newTestManager(newFakeLedger())

	res, err := m.Reserve(context.Background(), []Line{{ProductID: "p1", VariantID: "ghost", Quantity: 1}}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if res.Items[0].Reserved {
		t.Error("Expected unknown variant not to be reserved")
	}
	if res.Items[0].Reason != "Variant not found" {
		t.Errorf("Unexpected reason: %q", res.Items[0].Reason)
	}
}

func TestReserve_NoLines(t *testing.T) {
	m := newTestManager(newFakeLedger())
	if _, err := m.Reserve(context.Background(), nil, 0); !errors.Is(err, ErrNoLines) {
		t.Errorf("Expected ErrNoLines, got: %v", err)
	}
}

func TestConfirm_DrainsReservationIntoLedger(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	res, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := m.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if ledger.stocks["v1"] != 6 {
		t.Errorf("Expected ledger stock 6 after confirm, got %d", ledger.stocks["v1"])
	}
	outbound := ledger.movementsOfKind(model.MovementOutbound)
	if len(outbound) != 1 {
		t.Fatalf("Expected exactly one OUTBOUND movement, got %d", len(outbound))
	}
	if outbound[0].PreviousStock != 10 || outbound[0].NewStock != 6 {
		t.Errorf("Expected movement 10 -> 6, got %d -> %d", outbound[0].PreviousStock, outbound[0].NewStock)
	}

	available, err := m.AvailableStock(ctx, "v1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if available != 6 {
		t.Errorf("Expected available stock 6 after confirm, got %d", available)
	}
}

func TestConfirm_SecondCallIsNoOp(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	res, _ := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)
	if err := m.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := m.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Expected second confirm to be a no-op, got: %v", err)
	}

	if ledger.updateCalls != 1 {
		t.Errorf("Expected exactly one ledger write, got %d", ledger.updateCalls)
	}
	if ledger.stocks["v1"] != 6 {
		t.Errorf("Expected stock 6, got %d", ledger.stocks["v1"])
	}
}

func TestConfirm_RetryAfterFailureDrainsHold(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	ledger.failUpdates = 1
	m := newTestManager(ledger)
	ctx := context.Background()

	res, _ := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)
	if err := m.Confirm(ctx, res.ID); err == nil {
		t.Fatal("Expected confirm to fail while the ledger is down")
	}

	// The failed line stays held: stock untouched, quantity still reserved.
	if ledger.stocks["v1"] != 10 {
		t.Errorf("Expected stock untouched at 10, got %d", ledger.stocks["v1"])
	}
	if got := m.ReservedQuantity("v1"); got != 4 {
		t.Errorf("Expected reserved quantity 4 after failed confirm, got %d", got)
	}

	if err := m.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Expected retry to drain the hold, got: %v", err)
	}
	if ledger.stocks["v1"] != 6 {
		t.Errorf("Expected stock 6 after retry, got %d", ledger.stocks["v1"])
	}
	if got := m.ReservedQuantity("v1"); got != 0 {
		t.Errorf("Expected reserved quantity 0 after retry, got %d", got)
	}
	if ledger.updateCalls != 2 {
		t.Errorf("Expected 2 ledger write attempts, got %d", ledger.updateCalls)
	}
}

func TestConfirm_HoldCountsUntilDecrementCommits(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	ledger.updateStarted = make(chan struct{})
	ledger.updateRelease = make(chan struct{})
	m := newTestManager(ledger)
	ctx := context.Background()

	res, _ := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)

	done := make(chan error, 1)
	go func() { done <- m.Confirm(ctx, res.ID) }()
	<-ledger.updateStarted

	// The decrement has not committed yet, so the hold must still count.
	available, err := m.AvailableStock(ctx, "v1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if available != 6 {
		t.Errorf("Expected available 6 mid-confirm, got %d", available)
	}

	racing, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 10}}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if racing.Items[0].Reserved {
		t.Error("Expected reservation racing a confirm to be rejected")
	}

	close(ledger.updateRelease)
	if err := <-done; err != nil {
		t.Fatalf("Expected confirm to succeed, got: %v", err)
	}

	if ledger.stocks["v1"] != 6 {
		t.Errorf("Expected stock 6 after confirm, got %d", ledger.stocks["v1"])
	}
	available, _ = m.AvailableStock(ctx, "v1")
	if available != 6 {
		t.Errorf("Expected available 6 after confirm, got %d", available)
	}
}

func TestRelease_RestoresAvailability(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	res, _ := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 0)
	if err := m.Release(ctx, res.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	available, _ := m.AvailableStock(ctx, "v1")
	if available != 10 {
		t.Errorf("Expected availability restored to 10, got %d", available)
	}
	if ledger.stocks["v1"] != 10 {
		t.Errorf("Expected ledger stock untouched at 10, got %d", ledger.stocks["v1"])
	}

	released := ledger.movementsOfKind(model.MovementReleased)
	if len(released) != 1 {
		t.Fatalf("Expected one RELEASED audit movement, got %d", len(released))
	}
	if released[0].Quantity != 4 {
		t.Errorf("Expected released quantity 4, got %d", released[0].Quantity)
	}

	// Releasing again must not write another audit row.
	if err := m.Release(ctx, res.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(ledger.movementsOfKind(model.MovementReleased)) != 1 {
		t.Error("Expected second release to be a no-op")
	}
}

func TestReserve_ExpiredHoldIgnoredWithoutCleanup(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)

	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	ctx := context.Background()
	res, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !res.Items[0].Reserved {
		t.Fatal("Expected line to be reserved")
	}

	available, _ := m.AvailableStock(ctx, "v1")
	if available != 6 {
		t.Fatalf("Expected available 6 before expiry, got %d", available)
	}

	// Past the TTL the hold no longer counts, even though no cleanup ran.
	now = base.Add(150 * time.Millisecond)
	available, _ = m.AvailableStock(ctx, "v1")
	if available != 10 {
		t.Errorf("Expected available 10 after expiry, got %d", available)
	}
	if got := m.ReservedQuantity("v1"); got != 0 {
		t.Errorf("Expected reserved quantity 0 after expiry, got %d", got)
	}
}

func TestPurgeExpired(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)

	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	ctx := context.Background()
	res, _ := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 4}}, 50*time.Millisecond)

	now = base.Add(time.Second)
	if removed := m.PurgeExpired(); removed != 1 {
		t.Errorf("Expected 1 expired hold purged, got %d", removed)
	}

	// The batch is gone; confirming it must not touch the ledger.
	if err := m.Confirm(ctx, res.ID); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if ledger.updateCalls != 0 {
		t.Errorf("Expected no ledger writes after expiry, got %d", ledger.updateCalls)
	}
	if len(ledger.movements) != 0 {
		t.Errorf("Expected expiry to emit no movement, got %d", len(ledger.movements))
	}
}

func TestReserve_ConcurrentDoesNotOversell(t *testing.T) {
	ledger := newFakeLedger()
	ledger.stocks["v1"] = 10
	m := newTestManager(ledger)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*Reservation, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := m.Reserve(ctx, []Line{{ProductID: "p1", VariantID: "v1", Quantity: 6}}, 0)
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	reservedCount := 0
	for _, res := range results {
		if res != nil && res.Items[0].Reserved {
			reservedCount++
		}
	}
	if reservedCount != 1 {
		t.Errorf("Expected exactly one of two racing reservations to win, got %d", reservedCount)
	}
	if got := m.ReservedQuantity("v1"); got != 6 {
		t.Errorf("Expected reserved quantity 6, got %d", got)
	}
}
