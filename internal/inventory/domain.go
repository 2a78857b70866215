package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// LocationKind distinguishes warehouses from shops.
type LocationKind string

const (
	LocationWarehouse LocationKind = "WAREHOUSE"
	LocationShop      LocationKind = "SHOP"
)

// Valid reports whether the kind is known.
func (k LocationKind) Valid() bool {
	return k == LocationWarehouse || k == LocationShop
}

// Location identifies a place holding stock.
type Location struct {
	Kind LocationKind `json:"kind"`
	ID   int64        `json:"id"`
}

// Warehouse builds a warehouse location.
func Warehouse(id int64) Location { return Location{Kind: LocationWarehouse, ID: id} }

// Shop builds a shop location.
func Shop(id int64) Location { return Location{Kind: LocationShop, ID: id} }

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.Kind, l.ID)
}

func (l Location) valid() bool {
	return l.Kind.Valid() && l.ID > 0
}

// MovementType enumerates stock movement kinds.
type MovementType string

const (
	MovementPurchaseEntry    MovementType = "PURCHASE_ENTRY"
	MovementSupplierReturn   MovementType = "SUPPLIER_RETURN"
	MovementStoreTransfer    MovementType = "STORE_TRANSFER"
	MovementStoreReception   MovementType = "STORE_RECEPTION"
	MovementInternalTransfer MovementType = "INTERNAL_TRANSFER"
	MovementLoss             MovementType = "LOSS"
	MovementAdjustment       MovementType = "ADJUSTMENT"
)

// Valid reports whether the movement type is known.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchaseEntry, MovementSupplierReturn, MovementStoreTransfer, MovementStoreReception,
		MovementInternalTransfer, MovementLoss, MovementAdjustment:
		return true
	}
	return false
}

// Financial reports whether the movement has a ledger effect.
func (t MovementType) Financial() bool {
	return t == MovementLoss || t == MovementAdjustment
}

// StockRecord is the quantity of a product at one location. Quantity may be negative.
type StockRecord struct {
	ID         int64     `json:"id"`
	CompanyID  int64     `json:"company_id"`
	ProductID  int64     `json:"product_id"`
	Location   Location  `json:"location"`
	Quantity   int64     `json:"quantity"`
	StockAlert int64     `json:"stock_alert"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Alerting reports whether the record needs attention.
func (r StockRecord) Alerting() bool {
	return r.Quantity < 0 || (r.StockAlert > 0 && r.Quantity <= r.StockAlert)
}

// StockMovement is an immutable movement log row.
type StockMovement struct {
	ID              int64           `json:"id"`
	CompanyID       int64           `json:"company_id"`
	Reference       string          `json:"reference"`
	Type            MovementType    `json:"type"`
	ProductID       int64           `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	Source          *Location       `json:"source,omitempty"`
	Destination     *Location       `json:"destination,omitempty"`
	SupplyRequestID *int64          `json:"supply_request_id,omitempty"`
	TransferID      *int64          `json:"transfer_id,omitempty"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
	Note            string          `json:"note,omitempty"`
	CreatedBy       int64           `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
}

// MovementInput describes a movement to apply. Quantity is positive except for
// adjustments, where the sign carries the direction.
type MovementInput struct {
	CompanyID       int64
	ActorID         int64
	Type            MovementType
	ProductID       int64
	Quantity        int64
	Source          *Location
	Destination     *Location
	SupplyRequestID *int64
	TransferID      *int64
	UnitCost        decimal.Decimal
	Note            string
	IdempotencyKey  string
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	CompanyID int64
	ProductID int64
	Location  *Location
	Limit     int
}

var (
	// ErrInvalidQuantity indicates a zero or wrongly signed quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidMovement indicates missing or inconsistent locations.
	ErrInvalidMovement = errors.New("inventory: invalid movement")
	// ErrStockNotFound indicates the product was never moved at the location.
	ErrStockNotFound = fmt.Errorf("inventory: stock record %w", shared.ErrNotFound)
)

// deltas computes the stock changes of a movement.
func (in MovementInput) deltas() ([]stockDelta, error) {
	if in.CompanyID <= 0 || in.ProductID <= 0 {
		return nil, fmt.Errorf("%w: company and product required", ErrInvalidMovement)
	}
	if !in.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMovement, in.Type)
	}
	if in.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: negative unit cost", ErrInvalidMovement)
	}
	if in.Type.Financial() && !in.UnitCost.IsPositive() {
		return nil, fmt.Errorf("%w: unit cost required for %s", ErrInvalidMovement, in.Type)
	}
	if in.Type == MovementAdjustment {
		if in.Quantity == 0 {
			return nil, ErrInvalidQuantity
		}
	} else if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	requireLoc := func(loc *Location, name string) error {
		if loc == nil || !loc.valid() {
			return fmt.Errorf("%w: %s required for %s", ErrInvalidMovement, name, in.Type)
		}
		return nil
	}
	q := in.Quantity
	switch in.Type {
	case MovementPurchaseEntry, MovementStoreReception:
		if err := requireLoc(in.Destination, "destination"); err != nil {
			return nil, err
		}
		return []stockDelta{{Location: *in.Destination, Delta: q}}, nil
	case MovementSupplierReturn, MovementLoss:
		if err := requireLoc(in.Source, "source"); err != nil {
			return nil, err
		}
		return []stockDelta{{Location: *in.Source, Delta: -q}}, nil
	case MovementStoreTransfer:
		// the destination is credited by a later STORE_RECEPTION
		if err := requireLoc(in.Source, "source"); err != nil {
			return nil, err
		}
		return []stockDelta{{Location: *in.Source, Delta: -q}}, nil
	case MovementInternalTransfer:
		if err := requireLoc(in.Source, "source"); err != nil {
			return nil, err
		}
		if err := requireLoc(in.Destination, "destination"); err != nil {
			return nil, err
		}
		if *in.Source == *in.Destination {
			return nil, fmt.Errorf("%w: source and destination are the same", ErrInvalidMovement)
		}
		return []stockDelta{{Location: *in.Source, Delta: -q}, {Location: *in.Destination, Delta: q}}, nil
	default:
		if err := requireLoc(in.Source, "source"); err != nil {
			return nil, err
		}
		return []stockDelta{{Location: *in.Source, Delta: q}}, nil
	}
}

type stockDelta struct {
	Location Location
	Delta    int64
}
