package allocation

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/internal/inventory"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// Strategy decides what happens when no lot can cover a line on its own.
// The set of strategies is closed: StrictFIFO and AllowNegative.
type Strategy interface {
	Name() string
	// overcommit resolves the lot to drive negative, if any. ok=false means
	// the strategy refuses to allocate without covering stock.
	overcommit(ctx context.Context, ledger *inventory.Repository, productID, warehouseID uuid.UUID, preferredLot *string) (lot *models.Lot, ok bool, err error)
}

type strictFIFO struct{}

func (strictFIFO) Name() string { return "strict_fifo" }

func (strictFIFO) overcommit(context.Context, *inventory.Repository, uuid.UUID, uuid.UUID, *string) (*models.Lot, bool, error) {
	return nil, false, nil
}

type allowNegative struct{}

func (allowNegative) Name() string { return "allow_negative" }

// overcommit prefers the named lot, then the oldest active lot. A product with
// no lot at all is still allocated against the lot-less stock bucket.
func (allowNegative) overcommit(ctx context.Context, ledger *inventory.Repository, productID, warehouseID uuid.UUID, preferredLot *string) (*models.Lot, bool, error) {
	if preferredLot != nil {
		lot, err := ledger.LotByNumber(ctx, productID, warehouseID, *preferredLot)
		if err != nil {
			return nil, false, err
		}
		if lot != nil {
			return lot, true, nil
		}
	}
	lot, err := ledger.FirstActiveLot(ctx, productID, warehouseID)
	if err != nil {
		return nil, false, err
	}
	return lot, true, nil
}

var (
	// StrictFIFO only allocates from a single lot that covers the full quantity.
	StrictFIFO Strategy = strictFIFO{}
	// AllowNegative falls back to overcommitting a lot when nothing covers the line.
	AllowNegative Strategy = allowNegative{}
)

// StrategyFor maps the overcommit flag onto a strategy.
func StrategyFor(allowNegativeStock bool) Strategy {
	if allowNegativeStock {
		return AllowNegative
	}
	return StrictFIFO
}
