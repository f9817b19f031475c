package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/internal/allocation"
	"github.com/angelmondragon/fulfillment-backend/internal/locks"
	dbpkg "github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox"
	"github.com/angelmondragon/fulfillment-backend/pkg/outbox/payloads"
)

const orderLockNamespace = "order"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Allocator is the slice of the allocation service the order lifecycle drives.
// Every call joins the transaction that holds the order row lock.
type Allocator interface {
	AutoAllocateOrderTx(ctx context.Context, tx *gorm.DB, orderID, warehouseID, tenantID uuid.UUID) ([]allocation.AllocationResult, error)
	ReleaseOrderAllocationsTx(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID) ([]allocation.ReleaseSummary, error)
}

// Service defines order lifecycle operations that drive stock allocation.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDetail, error)
	GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderDetail, error)
	ReplaceLines(ctx context.Context, input ReplaceLinesInput) (*OrderDetail, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusChangeResult, error)
	AllocateOrder(ctx context.Context, tenantID, orderID, warehouseID uuid.UUID) ([]allocation.AllocationResult, error)
	ReleaseOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]allocation.ReleaseSummary, error)
}

type service struct {
	repo      Repository
	records   allocation.Repository
	allocator Allocator
	tx        txRunner
	outbox    outboxPublisher
	locker    locks.KeyedLocker
	logg      *logger.Logger
}

var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusDraft:     {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed: {enums.OrderStatusPicking, enums.OrderStatusCancelled},
	enums.OrderStatusPicking:   {enums.OrderStatusShipped, enums.OrderStatusCancelled},
}

// NewService builds the order service. A nil locker disables the
// cross-process order lock.
func NewService(repo Repository, records allocation.Repository, allocator Allocator, tx txRunner, outbox outboxPublisher, locker locks.KeyedLocker, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if records == nil {
		return nil, fmt.Errorf("allocation repository required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("allocator required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if locker == nil {
		locker = locks.NoopLocker{}
	}
	return &service{
		repo:      repo,
		records:   records,
		allocator: allocator,
		tx:        tx,
		outbox:    outbox,
		locker:    locker,
		logg:      logg,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*OrderDetail, error) {
	if input.TenantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant id required")
	}
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number required")
	}
	lines, err := buildLines(input.Lines)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		TenantID:    input.TenantID,
		OrderNumber: number,
		Status:      enums.OrderStatusDraft,
		Lines:       lines,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "order number already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		return s.seedRecords(ctx, tx, order.TenantID, order.ID, order.Lines)
	})
	if err != nil {
		return nil, err
	}
	detail := toOrderDetail(order)
	return &detail, nil
}

func (s *service) GetOrder(ctx context.Context, tenantID, orderID uuid.UUID) (*OrderDetail, error) {
	order, err := s.loadOrder(ctx, s.repo, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	detail := toOrderDetail(order)
	return &detail, nil
}

// ReplaceLines releases committed stock, then drops and recreates the order's
// lines and pending allocation records.
func (s *service) ReplaceLines(ctx context.Context, input ReplaceLinesInput) (*OrderDetail, error) {
	if input.TenantID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and order id required")
	}
	lines, err := buildLines(input.Lines)
	if err != nil {
		return nil, err
	}

	var detail *OrderDetail
	err = s.withOrderLock(ctx, input.OrderID, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := s.lockOrder(ctx, repo, input.TenantID, input.OrderID)
			if err != nil {
				return err
			}
			if !order.Status.LinesEditable() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order lines cannot change while %s", order.Status))
			}

			if _, err := s.allocator.ReleaseOrderAllocationsTx(ctx, tx, input.TenantID, order.ID); err != nil {
				return err
			}
			if err := s.records.WithTx(tx).DeleteByOrder(ctx, order.ID); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete allocation records")
			}
			if err := repo.ReplaceLines(ctx, order.ID, lines); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace order lines")
			}
			if err := s.seedRecords(ctx, tx, order.TenantID, order.ID, lines); err != nil {
				return err
			}

			order.Lines = lines
			out := toOrderDetail(order)
			detail = &out
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// UpdateStatus applies a lifecycle transition. Entering picking allocates
// every line from the given warehouse and rolls the transition back if any
// line cannot be covered; cancelling hands committed stock back.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*StatusChangeResult, error) {
	if input.TenantID == uuid.Nil || input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and order id required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	if input.Status == enums.OrderStatusPicking && (input.WarehouseID == nil || *input.WarehouseID == uuid.Nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id required to start picking")
	}

	var result *StatusChangeResult
	err := s.withOrderLock(ctx, input.OrderID, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := s.lockOrder(ctx, repo, input.TenantID, input.OrderID)
			if err != nil {
				return err
			}
			from := order.Status
			res := &StatusChangeResult{}
			if from == input.Status {
				res.Order = toOrderDetail(order)
				result = res
				return nil
			}
			if !canTransition(from, input.Status) {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move order from %s to %s", from, input.Status))
			}

			switch input.Status {
			case enums.OrderStatusPicking:
				allocated, err := s.allocator.AutoAllocateOrderTx(ctx, tx, order.ID, *input.WarehouseID, input.TenantID)
				if err != nil {
					return err
				}
				res.Allocations = allocated
			case enums.OrderStatusCancelled:
				released, err := s.allocator.ReleaseOrderAllocationsTx(ctx, tx, input.TenantID, order.ID)
				if err != nil {
					return err
				}
				res.Releases = released
			}

			if err := repo.UpdateStatus(ctx, order.ID, input.Status); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
			}
			order.Status = input.Status
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderStatusChanged,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				TenantID:      &input.TenantID,
				Data: payloads.OrderStatusChangedEvent{
					OrderID:     order.ID,
					From:        from,
					To:          input.Status,
					WarehouseID: input.WarehouseID,
				},
			}); err != nil {
				return err
			}

			reloaded, err := repo.FindOrder(ctx, input.TenantID, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
			}
			res.Order = toOrderDetail(reloaded)
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
			"status": string(input.Status),
		})
		s.logg.Info(logCtx, "order status updated")
	}
	return result, nil
}

// AllocateOrder runs a standalone batch allocation for an editable order.
// The order row stays locked for the whole batch so a concurrent transition
// cannot slip in between the status check and the allocation.
func (s *service) AllocateOrder(ctx context.Context, tenantID, orderID, warehouseID uuid.UUID) ([]allocation.AllocationResult, error) {
	if tenantID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and order id required")
	}
	if warehouseID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "warehouse id required")
	}

	var results []allocation.AllocationResult
	err := s.withOrderLock(ctx, orderID, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.lockOrder(ctx, s.repo.WithTx(tx), tenantID, orderID)
			if err != nil {
				return err
			}
			if !order.Status.LinesEditable() {
				return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot allocate a %s order", order.Status))
			}
			results, err = s.allocator.AutoAllocateOrderTx(ctx, tx, order.ID, warehouseID, tenantID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ReleaseOrder cancels every committed allocation of the order.
func (s *service) ReleaseOrder(ctx context.Context, tenantID, orderID uuid.UUID) ([]allocation.ReleaseSummary, error) {
	if tenantID == uuid.Nil || orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tenant and order id required")
	}

	var summaries []allocation.ReleaseSummary
	err := s.withOrderLock(ctx, orderID, func() error {
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			order, err := s.lockOrder(ctx, s.repo.WithTx(tx), tenantID, orderID)
			if err != nil {
				return err
			}
			summaries, err = s.allocator.ReleaseOrderAllocationsTx(ctx, tx, tenantID, order.ID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (s *service) seedRecords(ctx context.Context, tx *gorm.DB, tenantID, orderID uuid.UUID, lines []models.OrderLine) error {
	records := make([]models.AllocationRecord, 0, len(lines))
	for _, line := range lines {
		if !line.RequiresStock() {
			continue
		}
		records = append(records, models.AllocationRecord{
			TenantID:          tenantID,
			OrderID:           orderID,
			OrderLineID:       line.ID,
			ProductID:         line.ProductID,
			RequiredQuantity:  line.Quantity,
			AllocatedQuantity: decimal.Zero,
			Status:            enums.AllocationStatusPending,
		})
	}
	if err := s.records.WithTx(tx).CreateRecords(ctx, records); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "seed allocation records")
	}
	return nil
}

func (s *service) withOrderLock(ctx context.Context, orderID uuid.UUID, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, orderLockNamespace+":"+orderID.String())
	if err != nil {
		if errors.Is(err, locks.ErrNotAcquired) {
			return pkgerrors.New(pkgerrors.CodeConflict, "order is being updated, retry shortly")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order lock")
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil && s.logg != nil {
			s.logg.Error(ctx, "release order lock", uerr)
		}
	}()
	return fn()
}

func (s *service) loadOrder(ctx context.Context, repo Repository, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) lockOrder(ctx context.Context, repo Repository, tenantID, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.LockOrder(ctx, tenantID, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock order")
	}
	return order, nil
}

func buildLines(inputs []LineInput) ([]models.OrderLine, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one order line required")
	}
	lines := make([]models.OrderLine, 0, len(inputs))
	for i, in := range inputs {
		if in.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: product id required", i))
		}
		if !in.Quantity.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be positive", i))
		}
		lines = append(lines, models.OrderLine{
			ID:            uuid.New(),
			ProductID:     in.ProductID,
			Quantity:      in.Quantity,
			IsFreebie:     in.IsFreebie,
			IsPromotional: in.IsPromotional,
		})
	}
	return lines, nil
}

func canTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
