package allocations

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/api/middleware"
	"github.com/angelmondragon/fulfillment-backend/api/responses"
	"github.com/angelmondragon/fulfillment-backend/api/validators"
	"github.com/angelmondragon/fulfillment-backend/internal/allocation"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fulfillment-backend/pkg/errors"
	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/pagination"
)

type allocateRequest struct {
	WarehouseID        string           `json:"warehouse_id" validate:"required,uuid"`
	DesiredQuantity    *decimal.Decimal `json:"desired_quantity"`
	PreferredLot       *string          `json:"preferred_lot" validate:"omitempty,max=128"`
	AllowNegativeStock bool             `json:"allow_negative_stock"`
}

// List returns the tenant's allocation records, newest first.
func List(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocation service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, err := validators.ParseQueryUUID(r, "order_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters := allocation.AllocationFilters{TenantID: tenantID, OrderID: orderID}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseAllocationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			filters.Status = &status
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		list, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// Allocate commits a single lot to one allocation record.
func Allocate(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocation service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		allocationID, err := validators.ParseUUIDParam(r, "allocationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req allocateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		warehouseID, err := uuid.Parse(req.WarehouseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid warehouse_id"))
			return
		}
		if req.DesiredQuantity != nil && !req.DesiredQuantity.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "desired_quantity must be positive").
				WithDetails(map[string]any{"field": "desired_quantity"}))
			return
		}
		var preferred *string
		if req.PreferredLot != nil {
			if lot := validators.SanitizeString(*req.PreferredLot, 128); lot != "" {
				preferred = &lot
			}
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithField(ctx, "allocation_id", allocationID.String())
		}
		result, err := svc.Allocate(ctx, allocation.AllocateInput{
			AllocationID:       allocationID,
			WarehouseID:        warehouseID,
			TenantID:           tenantID,
			DesiredQuantity:    req.DesiredQuantity,
			PreferredLot:       preferred,
			AllowNegativeStock: req.AllowNegativeStock,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result == nil {
			responses.WriteSuccess(w, map[string]any{"allocation_id": allocationID, "allocated": false})
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Release hands a record's committed stock back to its lot.
func Release(svc allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "allocation service unavailable"))
			return
		}
		tenantID, err := tenantFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		allocationID, err := validators.ParseUUIDParam(r, "allocationId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Release(r.Context(), tenantID, allocationID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if summary == nil {
			responses.WriteSuccess(w, map[string]any{"allocation_id": allocationID, "released": false})
			return
		}
		responses.WriteSuccess(w, summary)
	}
}

func tenantFromRequest(r *http.Request) (uuid.UUID, error) {
	tenantID := middleware.TenantIDFromContext(r.Context())
	if tenantID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "tenant context missing")
	}
	return tenantID, nil
}
