package allocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service exposes allocation operations, each in its own transaction, plus
// tx-scoped variants for callers that already hold one.
type Service interface {
	Allocate(ctx context.Context, input AllocateInput) (*AllocationResult, error)
	Release(ctx context.Context, tenantID, allocationID uuid.UUID) (*ReleaseSummary, error)
	AutoAllocateOrder(ctx context.Context, orderID, warehouseID, tenantID uuid.UUID) ([]AllocationResult, error)
	ReleaseOrderAllocations(ctx context.Context, tenantID, orderID uuid.UUID) ([]ReleaseSummary, error)
	List(ctx context.Context, filters AllocationFilters, params pagination.Params) (*AllocationList, error)

	AutoAllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID, warehouseID, tenantID uuid.UUID) ([]AllocationResult, error)
	ReleaseOrderAllocationsTx(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID) ([]ReleaseSummary, error)
}

type service struct {
	repo       Repository
	engine     *Engine
	tx         txRunner
	outbox     outboxPublisher
	overcommit map[uuid.UUID]struct{}
	logg       *logger.Logger
}

// NewService builds the allocation service. overcommitTenants lists the
// tenants allowed to request negative-stock allocation.
func NewService(repo Repository, engine *Engine, tx txRunner, outbox outboxPublisher, overcommitTenants []uuid.UUID, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("allocation repository required")
	}
	if engine == nil {
		return nil, fmt.Errorf("allocation engine required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	allowed := make(map[uuid.UUID]struct{}, len(overcommitTenants))
	for _, id := range overcommitTenants {
		allowed[id] = struct{}{}
	}
	return &service{
		repo:       repo,
		engine:     engine,
		tx:         tx,
		outbox:     outbox,
		overcommit: allowed,
		logg:       logg,
	}, nil
}

func (s *service) Allocate(ctx context.Context, input AllocateInput) (*AllocationResult, error) {
	if input.AllocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation id required")
	}
	if input.WarehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id required")
	}
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if input.DesiredQuantity != nil && !input.DesiredQuantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "desired quantity must be positive")
	}
	if input.AllowNegativeStock {
		if _, ok := s.overcommit[input.TenantID]; !ok {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "tenant may not allocate negative stock")
		}
	}

	var result *AllocationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := s.checkWarehouse(ctx, repo, input.WarehouseID, input.TenantID); err != nil {
			return err
		}
		record, err := s.lockTenantRecord(ctx, repo, input.TenantID, input.AllocationID)
		if err != nil {
			return err
		}

		res, err := s.engine.Allocate(ctx, tx, record, AllocateParams{
			WarehouseID:     input.WarehouseID,
			DesiredQuantity: input.DesiredQuantity,
			PreferredLot:    input.PreferredLot,
			Strategy:        StrategyFor(input.AllowNegativeStock),
		})
		if errors.Is(err, ErrNoAllocation) {
			failure := LineFailure{
				AllocationID:     record.ID,
				ProductID:        record.ProductID,
				RequiredQuantity: record.RequiredQuantity,
			}
			return pkgerrors.Wrap(pkgerrors.CodeInsufficientStock, failure, "no lot can cover the requested quantity").
				WithDetails(map[string]any{"lines": []LineFailure{failure}})
		}
		if err != nil {
			return err
		}
		result = res
		if res == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLineAllocated,
			AggregateType: enums.AggregateAllocationRecord,
			AggregateID:   record.ID,
			TenantID:      &input.TenantID,
			Data: payloads.LineAllocatedEvent{
				AllocationID:      record.ID,
				OrderID:           record.OrderID,
				OrderLineID:       record.OrderLineID,
				ProductID:         record.ProductID,
				WarehouseID:       input.WarehouseID,
				LotNumber:         res.LotNumber,
				AllocatedQuantity: res.AllocatedQuantity,
				Overcommitted:     res.Overcommitted,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Release(ctx context.Context, tenantID, allocationID uuid.UUID) (*ReleaseSummary, error) {
	if allocationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "allocation id required")
	}
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}

	var summary *ReleaseSummary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		record, err := s.lockTenantRecord(ctx, s.repo.WithTx(tx), tenantID, allocationID)
		if err != nil {
			return err
		}
		if record.Status == enums.AllocationStatusCancelled {
			return nil
		}
		res, err := s.engine.Release(ctx, tx, record, enums.AllocationStatusPending)
		if err != nil {
			return err
		}
		summary = res
		if res == nil {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLineReleased,
			AggregateType: enums.AggregateAllocationRecord,
			AggregateID:   record.ID,
			TenantID:      &tenantID,
			Data: payloads.LineReleasedEvent{
				AllocationID:     record.ID,
				OrderID:          record.OrderID,
				ReleasedQuantity: res.ReleasedQuantity,
				LotNumber:        res.LotNumber,
				Status:           record.Status,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

func (s *service) AutoAllocateOrder(ctx context.Context, orderID, warehouseID, tenantID uuid.UUID) ([]AllocationResult, error) {
	var results []AllocationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.AutoAllocateOrderTx(ctx, tx, orderID, warehouseID, tenantID)
		results = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *service) AutoAllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID, warehouseID, tenantID uuid.UUID) ([]AllocationResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if warehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id required")
	}
	if tenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}

	results, err := s.engine.AutoAllocateOrder(ctx, tx, orderID, warehouseID, tenantID)
	if err != nil {
		if s.logg != nil && pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
			s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "order auto-allocation rejected for insufficient stock")
		}
		return nil, err
	}
	if len(results) == 0 {
		return results, nil
	}

	items := make([]payloads.LineAllocationItem, 0, len(results))
	for _, r := range results {
		items = append(items, payloads.LineAllocationItem{
			AllocationID:      r.AllocationID,
			LotNumber:         r.LotNumber,
			AllocatedQuantity: r.AllocatedQuantity,
		})
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderAllocated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		TenantID:      &tenantID,
		Data: payloads.OrderAllocatedEvent{
			OrderID:     orderID,
			WarehouseID: warehouseID,
			Lines:       items,
			AllocatedAt: time.Now().UTC(),
		},
	}); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *service) ReleaseOrderAllocations(ctx context.Context, tenantID, orderID uuid.UUID) ([]ReleaseSummary, error) {
	var summaries []ReleaseSummary
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.ReleaseOrderAllocationsTx(ctx, tx, tenantID, orderID)
		summaries = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *service) ReleaseOrderAllocationsTx(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID) ([]ReleaseSummary, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}

	summaries, err := s.engine.ReleaseOrderAllocations(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return summaries, nil
	}

	items := make([]payloads.LineReleaseItem, 0, len(summaries))
	for _, r := range summaries {
		items = append(items, payloads.LineReleaseItem{
			AllocationID:     r.AllocationID,
			ReleasedQuantity: r.ReleasedQuantity,
			LotNumber:        r.LotNumber,
		})
	}
	var tenant *uuid.UUID
	if tenantID != uuid.Nil {
		tenant = &tenantID
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderReleased,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		TenantID:      tenant,
		Data: payloads.OrderReleasedEvent{
			OrderID:    orderID,
			Lines:      items,
			ReleasedAt: time.Now().UTC(),
		},
	}); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *service) List(ctx context.Context, filters AllocationFilters, params pagination.Params) (*AllocationList, error) {
	if filters.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid allocation status")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, next, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list allocations")
	}
	list := &AllocationList{Allocations: rows}
	if next != nil {
		list.NextCursor = pagination.EncodeCursor(*next)
	}
	return list, nil
}

func (s *service) checkWarehouse(ctx context.Context, repo Repository, warehouseID, tenantID uuid.UUID) error {
	warehouse, err := repo.FindWarehouse(ctx, warehouseID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load warehouse")
	}
	if warehouse == nil || warehouse.TenantID != tenantID {
		return pkgerrors.New(pkgerrors.CodeConfiguration, "warehouse not found for tenant").
			WithDetails(map[string]any{"warehouse_id": warehouseID})
	}
	return nil
}

func (s *service) lockTenantRecord(ctx context.Context, repo Repository, tenantID, allocationID uuid.UUID) (*models.AllocationRecord, error) {
	record, err := repo.LockRecord(ctx, allocationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "allocation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load allocation")
	}
	if record.TenantID != tenantID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "allocation not found")
	}
	return record, nil
}
