package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

// ErrNoAllocation reports that no lot could take the line under the chosen strategy.
var ErrNoAllocation = errors.New("no allocation made")

// AllocateParams configures a single-record allocation.
type AllocateParams struct {
	WarehouseID     uuid.UUID
	DesiredQuantity *decimal.Decimal
	PreferredLot    *string
	Strategy        Strategy
}

// Engine moves stock between lots, stock entries and allocation records.
// It never opens transactions; every call runs on the caller's tx.
type Engine struct {
	ledger  *inventory.Repository
	records Repository
	metrics *metrics.AllocationMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewEngine wires the engine to its ledgers.
func NewEngine(ledger *inventory.Repository, records Repository, m *metrics.AllocationMetrics, logg *logger.Logger) (*Engine, error) {
	if ledger == nil {
		return nil, fmt.Errorf("inventory ledger required")
	}
	if records == nil {
		return nil, fmt.Errorf("allocation repository required")
	}
	return &Engine{
		ledger:  ledger,
		records: records,
		metrics: m,
		logg:    logg,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Allocate commits one lot to the record. Any existing commitment is released
// first, so repeating the call with the same inputs converges on the same
// state. It returns (nil, nil) when the desired quantity is not positive and
// ErrNoAllocation when the strategy finds nothing.
func (e *Engine) Allocate(ctx context.Context, tx *gorm.DB, record *models.AllocationRecord, params AllocateParams) (*AllocationResult, error) {
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation record required")
	}
	switch record.Status {
	case enums.AllocationStatusPending, enums.AllocationStatusAllocated:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("allocation is %s and cannot be reallocated", record.Status))
	}
	strategy := params.Strategy
	if strategy == nil {
		strategy = StrictFIFO
	}

	if record.AllocatedQuantity.IsPositive() || record.Status == enums.AllocationStatusAllocated {
		if _, err := e.Release(ctx, tx, record, enums.AllocationStatusPending); err != nil {
			return nil, err
		}
	}

	desired := record.RequiredQuantity
	if params.DesiredQuantity != nil {
		desired = *params.DesiredQuantity
	}
	if !desired.IsPositive() {
		e.metrics.IncAttempt(strategy.Name(), metrics.OutcomeNoop)
		return nil, nil
	}

	ledger := e.ledger.WithTx(tx)
	candidates, err := ledger.ListFIFOCandidates(ctx, record.ProductID, params.WarehouseID, params.PreferredLot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lot candidates")
	}
	for i := range candidates {
		lot := candidates[i]
		if lot.QuantityRemaining.Add(inventory.Epsilon).LessThan(desired) {
			continue
		}
		consumed, err := ledger.Consume(ctx, lot.ID, desired)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume lot")
		}
		if !consumed {
			e.metrics.IncLostRace()
			if e.logg != nil {
				e.logg.Debug(e.logg.WithField(ctx, "lot_id", lot.ID.String()), "lot consumed concurrently, trying next candidate")
			}
			continue
		}
		lotID := lot.ID
		if err := e.commit(ctx, tx, record, params.WarehouseID, &lotID, desired); err != nil {
			return nil, err
		}
		e.metrics.IncAttempt(strategy.Name(), metrics.OutcomeAllocated)
		lotNumber := lot.LotNumber
		return &AllocationResult{
			AllocationID:      record.ID,
			LotNumber:         &lotNumber,
			AllocatedQuantity: desired,
		}, nil
	}

	lot, ok, err := strategy.overcommit(ctx, ledger, record.ProductID, params.WarehouseID, params.PreferredLot)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve overcommit lot")
	}
	if !ok {
		e.metrics.IncAttempt(strategy.Name(), metrics.OutcomeInsufficient)
		return nil, ErrNoAllocation
	}

	var lotID *uuid.UUID
	var lotNumber *string
	if lot != nil {
		if err := ledger.ConsumeUnconditional(ctx, lot.ID, desired); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "overcommit lot")
		}
		id, number := lot.ID, lot.LotNumber
		lotID, lotNumber = &id, &number
	}
	if err := e.commit(ctx, tx, record, params.WarehouseID, lotID, desired); err != nil {
		return nil, err
	}
	e.metrics.IncAttempt(strategy.Name(), metrics.OutcomeAllocated)
	if e.logg != nil {
		logCtx := e.logg.WithFields(ctx, map[string]any{
			"allocation_id": record.ID.String(),
			"quantity":      desired.String(),
			"virtual":       lotID == nil,
		})
		e.logg.Warn(logCtx, "allocation overcommitted stock")
	}
	return &AllocationResult{
		AllocationID:      record.ID,
		LotNumber:         lotNumber,
		AllocatedQuantity: desired,
		Overcommitted:     true,
	}, nil
}

func (e *Engine) commit(ctx context.Context, tx *gorm.DB, record *models.AllocationRecord, warehouseID uuid.UUID, lotID *uuid.UUID, qty decimal.Decimal) error {
	if err := e.ledger.WithTx(tx).Reserve(ctx, warehouseID, record.ProductID, lotID, qty); err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve stock")
	}
	now := e.now()
	wh := warehouseID
	record.AllocatedQuantity = qty
	record.WarehouseID = &wh
	record.LotID = lotID
	record.Status = enums.AllocationStatusAllocated
	record.AllocatedAt = &now
	record.ReleasedAt = nil
	if err := e.records.WithTx(tx).SaveAllocationState(ctx, record); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save allocation")
	}
	return nil
}

// Release hands the record's committed stock back and resets it to the
// terminal status. The summary is nil when nothing was committed.
func (e *Engine) Release(ctx context.Context, tx *gorm.DB, record *models.AllocationRecord, terminal enums.AllocationStatus) (*ReleaseSummary, error) {
	if record == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation record required")
	}
	if !terminal.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid release status")
	}

	var summary *ReleaseSummary
	released := record.AllocatedQuantity
	if released.IsPositive() && record.WarehouseID != nil {
		ledger := e.ledger.WithTx(tx)
		var lotNumber *string
		if record.LotID != nil {
			if err := ledger.Restore(ctx, *record.LotID, released); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore lot")
			}
			lot, err := ledger.LotByID(ctx, *record.LotID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load lot")
			}
			if lot != nil {
				number := lot.LotNumber
				lotNumber = &number
			}
		}
		if err := ledger.Unreserve(ctx, *record.WarehouseID, record.ProductID, record.LotID, released); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unreserve stock")
		}
		summary = &ReleaseSummary{
			AllocationID:     record.ID,
			ReleasedQuantity: released,
			LotNumber:        lotNumber,
		}
	}

	now := e.now()
	record.AllocatedQuantity = decimal.Zero
	record.LotID = nil
	record.WarehouseID = nil
	record.Status = terminal
	record.AllocatedAt = nil
	record.ReleasedAt = &now
	if err := e.records.WithTx(tx).SaveAllocationState(ctx, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save released allocation")
	}
	return summary, nil
}

// AutoAllocateOrder strictly allocates every open line of the order from the
// warehouse. Either every line that needs stock is satisfied or an
// INSUFFICIENT_STOCK error listing each failing line is returned and the
// caller must roll back.
func (e *Engine) AutoAllocateOrder(ctx context.Context, tx *gorm.DB, orderID, warehouseID, tenantID uuid.UUID) ([]AllocationResult, error) {
	records := e.records.WithTx(tx)
	warehouse, err := records.FindWarehouse(ctx, warehouseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load warehouse")
	}
	if warehouse == nil || warehouse.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeConfiguration, "warehouse not found for tenant").
			WithDetails(map[string]any{"warehouse_id": warehouseID})
	}

	started := e.now()
	defer func() { e.metrics.ObserveBatch("auto_allocate", e.now().Sub(started)) }()

	lines, err := records.LockOrderRecords(ctx, orderID,
		[]enums.AllocationStatus{enums.AllocationStatusPending, enums.AllocationStatusAllocated}, false)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order allocations")
	}

	results := make([]AllocationResult, 0, len(lines))
	var failures error
	for i := range lines {
		record := &lines[i]
		if record.IsSatisfied() {
			continue
		}
		result, err := e.Allocate(ctx, tx, record, AllocateParams{WarehouseID: warehouseID, Strategy: StrictFIFO})
		if errors.Is(err, ErrNoAllocation) {
			failures = multierr.Append(failures, LineFailure{
				AllocationID:     record.ID,
				ProductID:        record.ProductID,
				RequiredQuantity: record.RequiredQuantity,
			})
			continue
		}
		if err != nil {
			return nil, err
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	if failures != nil {
		errs := multierr.Errors(failures)
		details := make([]LineFailure, 0, len(errs))
		for _, ferr := range errs {
			var failure LineFailure
			if errors.As(ferr, &failure) {
				details = append(details, failure)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, failures,
			fmt.Sprintf("insufficient stock for %d order line(s)", len(details))).
			WithDetails(map[string]any{"lines": details})
	}
	return results, nil
}

// ReleaseOrderAllocations cancels every committed record of the order and
// returns what was handed back.
func (e *Engine) ReleaseOrderAllocations(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]ReleaseSummary, error) {
	started := e.now()
	defer func() { e.metrics.ObserveBatch("release_order", e.now().Sub(started)) }()

	lines, err := e.records.WithTx(tx).LockOrderRecords(ctx, orderID, enums.StockHoldingAllocationStatuses(), true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order allocations")
	}

	summaries := make([]ReleaseSummary, 0, len(lines))
	for i := range lines {
		summary, err := e.Release(ctx, tx, &lines[i], enums.AllocationStatusCancelled)
		if err != nil {
			return nil, err
		}
		if summary != nil {
			summaries = append(summaries, *summary)
		}
	}
	return summaries, nil
}
