// Package movements implements the supply request and transfer workflows that move
// stock between locations.
package movements

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// SupplyStatus enumerates supply request states.
type SupplyStatus string

const (
	SupplyPending   SupplyStatus = "PENDING"
	SupplyApproved  SupplyStatus = "APPROVED"
	SupplyRejected  SupplyStatus = "REJECTED"
	SupplyDelivered SupplyStatus = "DELIVERED"
)

// TransferStatus enumerates transfer states.
type TransferStatus string

const (
	TransferPending   TransferStatus = "PENDING"
	TransferApproved  TransferStatus = "APPROVED"
	TransferRejected  TransferStatus = "REJECTED"
	TransferShipped   TransferStatus = "SHIPPED"
	TransferDelivered TransferStatus = "DELIVERED"
	TransferReceived  TransferStatus = "RECEIVED"
)

// Stamp records who performed a step and when.
type Stamp struct {
	By *int64     `json:"by,omitempty"`
	At *time.Time `json:"at,omitempty"`
}

func stamp(actorID int64, at time.Time) Stamp {
	return Stamp{By: &actorID, At: &at}
}

// Done reports whether the step happened.
func (s Stamp) Done() bool { return s.At != nil }

// SupplyRequest asks for goods to be brought to a location, either from a warehouse or
// from an external supplier when SourceWarehouseID is nil.
type SupplyRequest struct {
	ID                int64              `json:"id"`
	CompanyID         int64              `json:"company_id"`
	Reference         string             `json:"reference"`
	SourceWarehouseID *int64             `json:"source_warehouse_id,omitempty"`
	Destination       inventory.Location `json:"destination"`
	CompanyBearsCosts bool               `json:"company_bears_costs"`
	Status            SupplyStatus       `json:"status"`
	Note              string             `json:"note,omitempty"`
	RejectReason      string             `json:"reject_reason,omitempty"`
	CreatedBy         int64              `json:"created_by"`
	CreatedAt         time.Time          `json:"created_at"`
	Approved          Stamp              `json:"approved"`
	Rejected          Stamp              `json:"rejected"`
	Delivered         Stamp              `json:"delivered"`
	Received          Stamp              `json:"received"`
	Items             []SupplyItem       `json:"items"`
}

// FromSupplier reports whether goods come from outside the company.
func (r SupplyRequest) FromSupplier() bool { return r.SourceWarehouseID == nil }

// SupplyItem is one product line of a supply request.
type SupplyItem struct {
	ID                int64           `json:"id"`
	RequestID         int64           `json:"request_id"`
	ProductID         int64           `json:"product_id"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityDelivered int64           `json:"quantity_delivered"`
	QuantityReceived  int64           `json:"quantity_received"`
	DiscrepancyNote   string          `json:"discrepancy_note,omitempty"`
}

// Transfer moves goods from a warehouse to another warehouse or a shop.
type Transfer struct {
	ID                int64              `json:"id"`
	CompanyID         int64              `json:"company_id"`
	Reference         string             `json:"reference"`
	SourceWarehouseID int64              `json:"source_warehouse_id"`
	Destination       inventory.Location `json:"destination"`
	VehicleID         *int64             `json:"vehicle_id,omitempty"`
	DriverID          *int64             `json:"driver_id,omitempty"`
	CompanyBearsCosts bool               `json:"company_bears_costs"`
	Status            TransferStatus     `json:"status"`
	Note              string             `json:"note,omitempty"`
	RejectReason      string             `json:"reject_reason,omitempty"`
	CreatedBy         int64              `json:"created_by"`
	CreatedAt         time.Time          `json:"created_at"`
	Approved          Stamp              `json:"approved"`
	Rejected          Stamp              `json:"rejected"`
	Shipped           Stamp              `json:"shipped"`
	Delivered         Stamp              `json:"delivered"`
	Received          Stamp              `json:"received"`
	Items             []TransferItem     `json:"items"`
}

// Source returns the warehouse goods leave from.
func (t Transfer) Source() inventory.Location {
	return inventory.Warehouse(t.SourceWarehouseID)
}

// TransferItem is one product line of a transfer.
type TransferItem struct {
	ID                int64           `json:"id"`
	TransferID        int64           `json:"transfer_id"`
	ProductID         int64           `json:"product_id"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityShipped   int64           `json:"quantity_shipped"`
	QuantityReceived  int64           `json:"quantity_received"`
	DiscrepancyNote   string          `json:"discrepancy_note,omitempty"`
}

// ItemInput is a requested product line.
type ItemInput struct {
	ProductID int64
	Quantity  int64
	UnitCost  decimal.Decimal
}

// ItemQuantity overrides the quantity handled for one item.
type ItemQuantity struct {
	ItemID   int64
	Quantity int64
	Note     string
}

// CreateSupplyRequestInput carries the fields of a new supply request.
type CreateSupplyRequestInput struct {
	CompanyID         int64
	ActorID           int64
	SourceWarehouseID *int64
	Destination       inventory.Location
	CompanyBearsCosts bool
	Note              string
	Items             []ItemInput
}

// CreateTransferInput carries the fields of a new transfer.
type CreateTransferInput struct {
	CompanyID         int64
	ActorID           int64
	SourceWarehouseID int64
	Destination       inventory.Location
	VehicleID         *int64
	DriverID          *int64
	CompanyBearsCosts bool
	Note              string
	Items             []ItemInput
}

// StepInput identifies a document and the quantities handled at a step. Items not
// listed keep their default quantity.
type StepInput struct {
	CompanyID  int64
	ActorID    int64
	DocumentID int64
	Items      []ItemQuantity
}

var (
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("movements: invalid state transition")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("movements: validation failed")
	// ErrSupplyRequestNotFound indicates a missing supply request.
	ErrSupplyRequestNotFound = fmt.Errorf("movements: supply request %w", shared.ErrNotFound)
	// ErrTransferNotFound indicates a missing transfer.
	ErrTransferNotFound = fmt.Errorf("movements: transfer %w", shared.ErrNotFound)
)

func validateItems(items []ItemInput) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	seen := make(map[int64]bool, len(items))
	for idx, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d product required", ErrValidation, idx)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d quantity must be positive", ErrValidation, idx)
		}
		if item.UnitCost.IsNegative() {
			return fmt.Errorf("%w: item %d negative unit cost", ErrValidation, idx)
		}
		if seen[item.ProductID] {
			return fmt.Errorf("%w: product %d listed twice", ErrValidation, item.ProductID)
		}
		seen[item.ProductID] = true
	}
	return nil
}

func (in CreateSupplyRequestInput) validate() error {
	if in.CompanyID <= 0 {
		return fmt.Errorf("%w: company required", ErrValidation)
	}
	if !in.Destination.Kind.Valid() || in.Destination.ID <= 0 {
		return fmt.Errorf("%w: destination required", ErrValidation)
	}
	if in.SourceWarehouseID != nil {
		if *in.SourceWarehouseID <= 0 {
			return fmt.Errorf("%w: invalid source warehouse", ErrValidation)
		}
		if inventory.Warehouse(*in.SourceWarehouseID) == in.Destination {
			return fmt.Errorf("%w: source and destination are the same", ErrValidation)
		}
	}
	return validateItems(in.Items)
}

func (in CreateTransferInput) validate() error {
	if in.CompanyID <= 0 {
		return fmt.Errorf("%w: company required", ErrValidation)
	}
	if in.SourceWarehouseID <= 0 {
		return fmt.Errorf("%w: source warehouse required", ErrValidation)
	}
	if !in.Destination.Kind.Valid() || in.Destination.ID <= 0 {
		return fmt.Errorf("%w: destination required", ErrValidation)
	}
	if inventory.Warehouse(in.SourceWarehouseID) == in.Destination {
		return fmt.Errorf("%w: source and destination are the same", ErrValidation)
	}
	return validateItems(in.Items)
}

// quantities indexes step overrides by item id. limits holds the most each item may
// record at this step; unknown items and quantities outside [0, limit] are rejected.
func quantities(overrides []ItemQuantity, limits map[int64]int64) (map[int64]ItemQuantity, error) {
	out := make(map[int64]ItemQuantity, len(overrides))
	for _, o := range overrides {
		limit, ok := limits[o.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown item %d", ErrValidation, o.ItemID)
		}
		if o.Quantity < 0 {
			return nil, fmt.Errorf("%w: item %d negative quantity", ErrValidation, o.ItemID)
		}
		if o.Quantity > limit {
			return nil, fmt.Errorf("%w: item %d quantity %d exceeds %d", ErrValidation, o.ItemID, o.Quantity, limit)
		}
		out[o.ItemID] = o
	}
	return out, nil
}

// byProduct returns item indexes ordered by product id. Multi-item steps record their
// movements in this order so concurrent documents lock stock rows consistently.
func byProduct[T any](items []T, product func(T) int64) []int {
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(product(items[a]), product(items[b]))
	})
	return order
}

func discrepancy(note string, received, expected int64) string {
	if note != "" || received == expected {
		return note
	}
	return fmt.Sprintf("received %d of %d", received, expected)
}
