package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/allocation"
	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/internal/locks"
	dbpkg "github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
)

type harness struct {
	t         *testing.T
	db        *gorm.DB
	svc       Service
	tenantID  uuid.UUID
	warehouse models.Warehouse
	productID uuid.UUID
}

func newHarness(t *testing.T, locker locks.KeyedLocker) *harness {
	t.Helper()
	return newHarnessWithAllocator(t, locker, nil)
}

// newHarnessWithAllocator lets a test wrap the real allocation service.
func newHarnessWithAllocator(t *testing.T, locker locks.KeyedLocker, wrap func(Allocator) Allocator) *harness {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	records := allocation.NewRepository(db)
	engine, err := allocation.NewEngine(inventory.NewRepository(db), records, nil, nil)
	require.NoError(t, err)
	publisher := outbox.NewService(outbox.NewRepository(db), nil)
	allocSvc, err := allocation.NewService(records, engine, dbpkg.Wrap(db), publisher, nil, nil)
	require.NoError(t, err)
	var allocator Allocator = allocSvc
	if wrap != nil {
		allocator = wrap(allocSvc)
	}
	svc, err := NewService(NewRepository(db), records, allocator, dbpkg.Wrap(db), publisher, locker, nil)
	require.NoError(t, err)

	h := &harness{t: t, db: db, svc: svc, tenantID: uuid.New(), productID: uuid.New()}
	h.warehouse = models.Warehouse{TenantID: h.tenantID, Code: "WH1", Name: "Main", Active: true}
	require.NoError(t, db.Create(&h.warehouse).Error)
	return h
}

func (h *harness) seedLot(number string, qty int64) models.Lot {
	h.t.Helper()
	q := decimal.NewFromInt(qty)
	lot := models.Lot{
		ProductID:         h.productID,
		WarehouseID:       h.warehouse.ID,
		LotNumber:         number,
		PurchaseDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Status:            enums.LotStatusActive,
		QuantityReceived:  q,
		QuantityRemaining: q,
	}
	require.NoError(h.t, h.db.Create(&lot).Error)
	return lot
}

func (h *harness) remaining(lotID uuid.UUID) decimal.Decimal {
	h.t.Helper()
	var lot models.Lot
	require.NoError(h.t, h.db.First(&lot, "id = ?", lotID).Error)
	return lot.QuantityRemaining
}

func (h *harness) records(orderID uuid.UUID) []models.AllocationRecord {
	h.t.Helper()
	var out []models.AllocationRecord
	require.NoError(h.t, h.db.Where("order_id = ?", orderID).Find(&out).Error)
	return out
}

func (h *harness) createOrder(number string, qty int64) *OrderDetail {
	h.t.Helper()
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		TenantID:    h.tenantID,
		OrderNumber: number,
		Lines:       []LineInput{{ProductID: h.productID, Quantity: decimal.NewFromInt(qty)}},
	})
	require.NoError(h.t, err)
	return order
}

func (h *harness) moveTo(orderID uuid.UUID, status enums.OrderStatus) (*StatusChangeResult, error) {
	input := UpdateStatusInput{TenantID: h.tenantID, OrderID: orderID, Status: status}
	if status == enums.OrderStatusPicking {
		input.WarehouseID = &h.warehouse.ID
	}
	return h.svc.UpdateStatus(context.Background(), input)
}

func TestCreateOrderSeedsRecordsForStockLines(t *testing.T) {
	h := newHarness(t, nil)
	order, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		TenantID:    h.tenantID,
		OrderNumber: " SO-1 ",
		Lines: []LineInput{
			{ProductID: h.productID, Quantity: decimal.NewFromInt(4)},
			{ProductID: uuid.New(), Quantity: decimal.NewFromInt(1), IsFreebie: true},
			{ProductID: uuid.New(), Quantity: decimal.NewFromInt(1), IsPromotional: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "SO-1", order.OrderNumber)
	assert.Equal(t, enums.OrderStatusDraft, order.Status)
	assert.Len(t, order.Lines, 3)

	records := h.records(order.ID)
	require.Len(t, records, 1)
	assert.Equal(t, h.productID, records[0].ProductID)
	assert.Equal(t, enums.AllocationStatusPending, records[0].Status)
	assert.True(t, records[0].RequiredQuantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, records[0].AllocatedQuantity.IsZero())
	assert.Equal(t, order.Lines[0].ID, records[0].OrderLineID)
}

func TestCreateOrderValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	line := LineInput{ProductID: h.productID, Quantity: decimal.NewFromInt(1)}

	cases := map[string]CreateOrderInput{
		"missing tenant": {OrderNumber: "SO-1", Lines: []LineInput{line}},
		"blank number":   {TenantID: h.tenantID, OrderNumber: "  ", Lines: []LineInput{line}},
		"no lines":       {TenantID: h.tenantID, OrderNumber: "SO-1"},
		"zero quantity":  {TenantID: h.tenantID, OrderNumber: "SO-1", Lines: []LineInput{{ProductID: h.productID}}},
		"missing product": {TenantID: h.tenantID, OrderNumber: "SO-1", Lines: []LineInput{
			{Quantity: decimal.NewFromInt(1)},
		}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.CreateOrder(ctx, input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
		})
	}
}

func TestCreateOrderDuplicateNumberConflicts(t *testing.T) {
	h := newHarness(t, nil)
	h.createOrder("SO-1", 1)

	_, err := h.svc.CreateOrder(context.Background(), CreateOrderInput{
		TenantID:    h.tenantID,
		OrderNumber: "SO-1",
		Lines:       []LineInput{{ProductID: h.productID, Quantity: decimal.NewFromInt(1)}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestGetOrderScopedToTenant(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder("SO-1", 1)

	got, err := h.svc.GetOrder(context.Background(), h.tenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.Len(t, got.Lines, 1)

	_, err = h.svc.GetOrder(context.Background(), uuid.New(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestUpdateStatusPickingAllocatesStock(t *testing.T) {
	h := newHarness(t, nil)
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)

	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	res, err := h.moveTo(order.ID, enums.OrderStatusPicking)
	require.NoError(t, err)

	assert.Equal(t, enums.OrderStatusPicking, res.Order.Status)
	require.Len(t, res.Allocations, 1)
	require.NotNil(t, res.Allocations[0].LotNumber)
	assert.Equal(t, "L1", *res.Allocations[0].LotNumber)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(6)))

	var events []models.OutboxEvent
	require.NoError(t, h.db.Where("aggregate_id = ?", order.ID).Order("created_at, id").Find(&events).Error)
	types := make([]enums.OutboxEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, enums.EventOrderStatusChanged)
	assert.Contains(t, types, enums.EventOrderAllocated)
}

func TestUpdateStatusPickingRollsBackOnShortage(t *testing.T) {
	h := newHarness(t, nil)
	lot := h.seedLot("L1", 3)
	order := h.createOrder("SO-1", 4)
	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)

	_, err = h.moveTo(order.ID, enums.OrderStatusPicking)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	got, err := h.svc.GetOrder(context.Background(), h.tenantID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, got.Status)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(3)))
	for _, r := range h.records(order.ID) {
		assert.Equal(t, enums.AllocationStatusPending, r.Status)
	}
}

func TestUpdateStatusRejectsInvalidTransitions(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder("SO-1", 1)

	_, err := h.moveTo(order.ID, enums.OrderStatusShipped)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = h.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TenantID: h.tenantID, OrderID: order.ID, Status: enums.OrderStatusPicking,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		TenantID: h.tenantID, OrderID: order.ID, Status: enums.OrderStatus("lost"),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusSameStatusIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	order := h.createOrder("SO-1", 1)

	res, err := h.moveTo(order.ID, enums.OrderStatusDraft)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDraft, res.Order.Status)

	var count int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCancelReleasesCommittedStock(t *testing.T) {
	h := newHarness(t, nil)
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)
	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	_, err = h.moveTo(order.ID, enums.OrderStatusPicking)
	require.NoError(t, err)

	res, err := h.moveTo(order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, res.Order.Status)
	require.Len(t, res.Releases, 1)
	assert.True(t, res.Releases[0].ReleasedQuantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(10)))
	for _, r := range h.records(order.ID) {
		assert.Equal(t, enums.AllocationStatusCancelled, r.Status)
	}

	_, err = h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestReplaceLinesReleasesAndReseeds(t *testing.T) {
	h := newHarness(t, nil)
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)
	_, err := h.svc.AllocateOrder(context.Background(), h.tenantID, order.ID, h.warehouse.ID)
	require.NoError(t, err)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(6)))

	detail, err := h.svc.ReplaceLines(context.Background(), ReplaceLinesInput{
		TenantID: h.tenantID,
		OrderID:  order.ID,
		Lines:    []LineInput{{ProductID: h.productID, Quantity: decimal.NewFromInt(7)}},
	})
	require.NoError(t, err)
	require.Len(t, detail.Lines, 1)
	assert.True(t, detail.Lines[0].Quantity.Equal(decimal.NewFromInt(7)))
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(10)))

	records := h.records(order.ID)
	require.Len(t, records, 1)
	assert.Equal(t, enums.AllocationStatusPending, records[0].Status)
	assert.True(t, records[0].RequiredQuantity.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, detail.Lines[0].ID, records[0].OrderLineID)
}

func TestReplaceLinesRejectedOnceShipped(t *testing.T) {
	h := newHarness(t, nil)
	h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 1)
	for _, status := range []enums.OrderStatus{enums.OrderStatusConfirmed, enums.OrderStatusPicking, enums.OrderStatusShipped} {
		_, err := h.moveTo(order.ID, status)
		require.NoError(t, err)
	}

	_, err := h.svc.ReplaceLines(context.Background(), ReplaceLinesInput{
		TenantID: h.tenantID,
		OrderID:  order.ID,
		Lines:    []LineInput{{ProductID: h.productID, Quantity: decimal.NewFromInt(2)}},
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestAllocateAndReleaseOrder(t *testing.T) {
	h := newHarness(t, nil)
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)
	ctx := context.Background()

	results, err := h.svc.AllocateOrder(ctx, h.tenantID, order.ID, h.warehouse.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	summaries, err := h.svc.ReleaseOrder(ctx, h.tenantID, order.ID)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(10)))

	_, err = h.svc.AllocateOrder(ctx, uuid.New(), order.ID, h.warehouse.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = h.svc.ReleaseOrder(ctx, uuid.New(), order.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

// txObservingAllocator records the order status visible inside the batch
// transaction and can fail after the real batch has run.
type txObservingAllocator struct {
	Allocator
	calls    int
	seen     enums.OrderStatus
	failWith error
}

func (a *txObservingAllocator) AutoAllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID, warehouseID, tenantID uuid.UUID) ([]allocation.AllocationResult, error) {
	a.calls++
	var order models.Order
	if err := tx.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}
	a.seen = order.Status
	results, err := a.Allocator.AutoAllocateOrderTx(ctx, tx, orderID, warehouseID, tenantID)
	if err != nil {
		return nil, err
	}
	if a.failWith != nil {
		return nil, a.failWith
	}
	return results, nil
}

func TestAllocateOrderRunsInsideOrderTransaction(t *testing.T) {
	spy := &txObservingAllocator{failWith: errors.New("boom")}
	h := newHarnessWithAllocator(t, nil, func(inner Allocator) Allocator {
		spy.Allocator = inner
		return spy
	})
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)
	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)

	_, err = h.svc.AllocateOrder(context.Background(), h.tenantID, order.ID, h.warehouse.ID)
	require.Error(t, err)
	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, enums.OrderStatusConfirmed, spy.seen)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(10)), "batch rolls back with the order transaction")
	records := h.records(order.ID)
	require.Len(t, records, 1)
	assert.Equal(t, enums.AllocationStatusPending, records[0].Status)
}

func TestAllocateOrderRejectsCancelledOrder(t *testing.T) {
	spy := &txObservingAllocator{}
	h := newHarnessWithAllocator(t, nil, func(inner Allocator) Allocator {
		spy.Allocator = inner
		return spy
	})
	lot := h.seedLot("L1", 10)
	order := h.createOrder("SO-1", 4)
	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.NoError(t, err)
	_, err = h.moveTo(order.ID, enums.OrderStatusCancelled)
	require.NoError(t, err)

	_, err = h.svc.AllocateOrder(context.Background(), h.tenantID, order.ID, h.warehouse.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "%v", err)
	assert.Zero(t, spy.calls)
	assert.True(t, h.remaining(lot.ID).Equal(decimal.NewFromInt(10)))
	records := h.records(order.ID)
	require.Len(t, records, 1)
	assert.Equal(t, enums.AllocationStatusPending, records[0].Status)
}

type busyLocker struct{ err error }

func (b busyLocker) Lock(context.Context, string) (func(context.Context) error, error) {
	return nil, b.err
}

func TestOrderLockContention(t *testing.T) {
	h := newHarness(t, busyLocker{err: locks.ErrNotAcquired})
	order := h.createOrder("SO-1", 1)

	_, err := h.moveTo(order.ID, enums.OrderStatusConfirmed)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	h2 := newHarness(t, busyLocker{err: errors.New("redis down")})
	order2 := h2.createOrder("SO-2", 1)
	_, err = h2.moveTo(order2.ID, enums.OrderStatusConfirmed)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
}
