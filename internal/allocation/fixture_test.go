package allocation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
)

type fixture struct {
	t         *testing.T
	db        *gorm.DB
	ledger    *inventory.Repository
	records   Repository
	engine    *Engine
	tenantID  uuid.UUID
	warehouse models.Warehouse
	productID uuid.UUID
	orderID   uuid.UUID
	baseDate  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:allocation_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models.All()...))

	ledger := inventory.NewRepository(db)
	records := NewRepository(db)
	engine, err := NewEngine(ledger, records, nil, nil)
	require.NoError(t, err)

	f := &fixture{
		t:         t,
		db:        db,
		ledger:    ledger,
		records:   records,
		engine:    engine,
		tenantID:  uuid.New(),
		productID: uuid.New(),
		orderID:   uuid.New(),
		baseDate:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.warehouse = models.Warehouse{TenantID: f.tenantID, Code: "WH1", Name: "Main", Active: true}
	require.NoError(t, db.Create(&f.warehouse).Error)
	return f
}

func (f *fixture) newService(overcommitTenants ...uuid.UUID) Service {
	f.t.Helper()
	svc, err := NewService(f.records, f.engine, dbpkg.Wrap(f.db), outbox.NewService(outbox.NewRepository(f.db), nil), overcommitTenants, nil)
	require.NoError(f.t, err)
	return svc
}

// seedLot creates an active lot purchased dayOffset days after the base date.
func (f *fixture) seedLot(number string, dayOffset int, qty int64) models.Lot {
	f.t.Helper()
	return f.seedLotFor(f.productID, number, dayOffset, qty)
}

func (f *fixture) seedLotFor(productID uuid.UUID, number string, dayOffset int, qty int64) models.Lot {
	f.t.Helper()
	q := decimal.NewFromInt(qty)
	lot := models.Lot{
		ProductID:         productID,
		WarehouseID:       f.warehouse.ID,
		LotNumber:         number,
		PurchaseDate:      f.baseDate.AddDate(0, 0, dayOffset),
		Status:            enums.LotStatusActive,
		QuantityReceived:  q,
		QuantityRemaining: q,
	}
	require.NoError(f.t, f.db.Create(&lot).Error)
	return lot
}

func (f *fixture) seedRecord(required int64) models.AllocationRecord {
	f.t.Helper()
	return f.seedRecordFor(f.productID, required)
}

func (f *fixture) seedRecordFor(productID uuid.UUID, required int64) models.AllocationRecord {
	f.t.Helper()
	record := models.AllocationRecord{
		TenantID:          f.tenantID,
		OrderID:           f.orderID,
		OrderLineID:       uuid.New(),
		ProductID:         productID,
		RequiredQuantity:  decimal.NewFromInt(required),
		AllocatedQuantity: decimal.Zero,
		Status:            enums.AllocationStatusPending,
	}
	require.NoError(f.t, f.db.Create(&record).Error)
	return record
}

func (f *fixture) reload(id uuid.UUID) models.AllocationRecord {
	f.t.Helper()
	var record models.AllocationRecord
	require.NoError(f.t, f.db.First(&record, "id = ?", id).Error)
	return record
}

func (f *fixture) remaining(lotID uuid.UUID) decimal.Decimal {
	f.t.Helper()
	var lot models.Lot
	require.NoError(f.t, f.db.First(&lot, "id = ?", lotID).Error)
	return lot.QuantityRemaining
}

func (f *fixture) reserved(lotID *uuid.UUID) decimal.Decimal {
	f.t.Helper()
	entry, err := f.ledger.FindStockEntry(context.Background(), f.warehouse.ID, f.productID, lotID)
	require.NoError(f.t, err)
	if entry == nil {
		return decimal.Zero
	}
	return entry.ReservedQuantity
}

func (f *fixture) inTx(fn func(tx *gorm.DB) error) error {
	return f.db.Transaction(fn)
}

// assertConservation checks that every unit missing from a lot is held by an
// allocated record and mirrored by a reservation.
func (f *fixture) assertConservation() {
	f.t.Helper()
	var lots []models.Lot
	require.NoError(f.t, f.db.Find(&lots).Error)
	consumed := decimal.Zero
	for _, lot := range lots {
		consumed = consumed.Add(lot.QuantityReceived.Sub(lot.QuantityRemaining))
	}

	var records []models.AllocationRecord
	require.NoError(f.t, f.db.Where("lot_id IS NOT NULL AND status IN ?", enums.StockHoldingAllocationStatuses()).Find(&records).Error)
	allocated := decimal.Zero
	for _, r := range records {
		allocated = allocated.Add(r.AllocatedQuantity)
	}

	var entries []models.WarehouseStockEntry
	require.NoError(f.t, f.db.Where("lot_id IS NOT NULL").Find(&entries).Error)
	reserved := decimal.Zero
	for _, e := range entries {
		reserved = reserved.Add(e.ReservedQuantity)
	}

	assert.True(f.t, consumed.Equal(allocated), "consumed=%s allocated=%s", consumed, allocated)
	assert.True(f.t, reserved.Equal(allocated), "reserved=%s allocated=%s", reserved, allocated)
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func assertDecimal(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "want %d got %s", want, got.String())
}
