package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
)

// Epsilon absorbs numeric(18,4) rounding when comparing quantities.
var Epsilon = decimal.New(1, -4)

// Repository is the lot ledger and the warehouse stock ledger.
// Every call is expected to run on a transaction handle obtained via WithTx.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the ledger to a GORM handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a ledger bound to the supplied transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListFIFOCandidates returns active lots of the product in the warehouse that
// still hold stock, oldest purchase first, locked for update. A non-nil
// lotNumber restricts the result to that lot.
func (r *Repository) ListFIFOCandidates(ctx context.Context, productID, warehouseID uuid.UUID, lotNumber *string) ([]models.Lot, error) {
	q := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		Where("status = ?", enums.LotStatusActive).
		Where("quantity_remaining > ?", decimal.Zero)
	if lotNumber != nil {
		q = q.Where("lot_number = ?", *lotNumber)
	}
	var lots []models.Lot
	if err := q.Order("purchase_date ASC").Order("id ASC").Find(&lots).Error; err != nil {
		return nil, err
	}
	return lots, nil
}

// FirstActiveLot returns the oldest active lot regardless of remaining stock,
// or nil when the product has no active lot in the warehouse.
func (r *Repository) FirstActiveLot(ctx context.Context, productID, warehouseID uuid.UUID) (*models.Lot, error) {
	var lot models.Lot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ?", productID, warehouseID).
		Where("status = ?", enums.LotStatusActive).
		Order("purchase_date ASC").
		Order("id ASC").
		First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// LotByNumber looks a lot up by its number without filtering on status or
// remaining stock. Returns nil when no such lot exists.
func (r *Repository) LotByNumber(ctx context.Context, productID, warehouseID uuid.UUID, lotNumber string) (*models.Lot, error) {
	var lot models.Lot
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("product_id = ? AND warehouse_id = ? AND lot_number = ?", productID, warehouseID, lotNumber).
		First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// LotByID loads a single lot. Returns nil when it does not exist.
func (r *Repository) LotByID(ctx context.Context, lotID uuid.UUID) (*models.Lot, error) {
	var lot models.Lot
	err := r.db.WithContext(ctx).Where("id = ?", lotID).First(&lot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

// Consume decrements the lot only while it still covers qty. It reports
// false when no row matched, meaning a concurrent writer got there first.
// A shortfall within Epsilon is absorbed and the lot ends at zero, never below.
func (r *Repository) Consume(ctx context.Context, lotID uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Lot{}).
		Where("id = ? AND quantity_remaining >= ?", lotID, qty.Sub(Epsilon)).
		Update("quantity_remaining", gorm.Expr(
			"CASE WHEN quantity_remaining > ? THEN quantity_remaining - ? ELSE 0 END", qty, qty,
		))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ConsumeUnconditional decrements the lot even past zero.
func (r *Repository) ConsumeUnconditional(ctx context.Context, lotID uuid.UUID, qty decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Lot{}).
		Where("id = ?", lotID).
		Update("quantity_remaining", gorm.Expr("quantity_remaining - ?", qty)).Error
}

// Restore puts qty back on the lot. The result may exceed quantity_received.
func (r *Repository) Restore(ctx context.Context, lotID uuid.UUID, qty decimal.Decimal) error {
	return r.db.WithContext(ctx).
		Model(&models.Lot{}).
		Where("id = ?", lotID).
		Update("quantity_remaining", gorm.Expr("quantity_remaining + ?", qty)).Error
}

// FindStockEntry returns the (warehouse, product, lot) entry or nil. A nil
// lotID addresses the lot-less bucket.
func (r *Repository) FindStockEntry(ctx context.Context, warehouseID, productID uuid.UUID, lotID *uuid.UUID) (*models.WarehouseStockEntry, error) {
	var entry models.WarehouseStockEntry
	err := stockKey(r.db.WithContext(ctx), warehouseID, productID, lotID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Reserve adds qty to reserved_quantity, creating the entry with zero
// on-hand quantity when it does not exist yet.
func (r *Repository) Reserve(ctx context.Context, warehouseID, productID uuid.UUID, lotID *uuid.UUID, qty decimal.Decimal) error {
	if qty.IsNegative() {
		return r.Unreserve(ctx, warehouseID, productID, lotID, qty.Neg())
	}
	res := stockKey(r.db.WithContext(ctx).Model(&models.WarehouseStockEntry{}), warehouseID, productID, lotID).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	entry := models.WarehouseStockEntry{
		WarehouseID:      warehouseID,
		ProductID:        productID,
		LotID:            lotID,
		Quantity:         decimal.Zero,
		ReservedQuantity: qty,
	}
	if err := r.db.WithContext(ctx).Create(&entry).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "concurrent stock entry insert; retry")
		}
		return err
	}
	return nil
}

// Unreserve subtracts qty from reserved_quantity, clamping at zero. A missing
// entry is a no-op.
func (r *Repository) Unreserve(ctx context.Context, warehouseID, productID uuid.UUID, lotID *uuid.UUID, qty decimal.Decimal) error {
	return stockKey(r.db.WithContext(ctx).Model(&models.WarehouseStockEntry{}), warehouseID, productID, lotID).
		Update("reserved_quantity", gorm.Expr(
			"CASE WHEN reserved_quantity > ? THEN reserved_quantity - ? ELSE 0 END", qty, qty,
		)).Error
}

func stockKey(q *gorm.DB, warehouseID, productID uuid.UUID, lotID *uuid.UUID) *gorm.DB {
	q = q.Where("warehouse_id = ? AND product_id = ?", warehouseID, productID)
	if lotID == nil {
		return q.Where("lot_id IS NULL")
	}
	return q.Where("lot_id = ?", *lotID)
}
