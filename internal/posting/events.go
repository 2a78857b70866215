// Package posting turns business events into balanced journal entries.
package posting

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
)

// Source types stored on journal entries.
const (
	SourceSale           = "sale"
	SourceCreditPayment  = "credit_payment"
	SourceFuelLog        = "fuel_log"
	SourceStockMovement  = "stock_movement"
	SourceLogisticCharge = "logistic_charge"
	SourceExpense        = "expense"
)

// Event is a business fact with a possible ledger effect. The set of events is closed.
type Event interface {
	// Kind is the journal source type of the event.
	Kind() string
	// Source is the id of the originating document.
	Source() int64
	event()
}

// PaymentMethod identifies how money was collected.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentBank        PaymentMethod = "BANK"
	PaymentMobileMoney PaymentMethod = "MOBILE_MONEY"
)

// Payment is an amount collected with one method.
type Payment struct {
	Method PaymentMethod   `json:"method"`
	Amount decimal.Decimal `json:"amount"`
}

// SaleLine is a sold product with its cost price.
type SaleLine struct {
	ProductID int64           `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

// Sale is a completed point of sale ticket.
type Sale struct {
	ID       int64
	Date     time.Time
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Payments []Payment
	Lines    []SaleLine
}

// CreditPayment settles part of a sale receivable.
type CreditPayment struct {
	ID     int64
	SaleID int64
	Date   time.Time
	Method PaymentMethod
	Amount decimal.Decimal
}

// FuelLog is a fuel purchase for a vehicle, paid in cash.
type FuelLog struct {
	ID        int64
	VehicleID int64
	Date      time.Time
	Liters    decimal.Decimal
	Cost      decimal.Decimal
}

// StockMovement is the costed view of an inventory movement.
type StockMovement struct {
	ID        int64
	Type      inventory.MovementType
	ProductID int64
	Quantity  int64
	UnitCost  decimal.Decimal
	Date      time.Time
}

// LogisticCharge is a transport cost. Charges attached to a supply request are costed
// by the request itself.
type LogisticCharge struct {
	ID              int64
	SupplyRequestID *int64
	Date            time.Time
	Amount          decimal.Decimal
	Description     string
}

// ApprovedExpense is a manual expense that reached APPROVED.
type ApprovedExpense struct {
	ID             int64
	CategoryID     int64
	Amount         decimal.Decimal
	Date           time.Time
	Description    string
	Reference      string
	JournalEntryID *int64
}

func (Sale) Kind() string { return SourceSale }
func (CreditPayment) Kind() string { return SourceCreditPayment }
func (FuelLog) Kind() string { return SourceFuelLog }
func (StockMovement) Kind() string { return SourceStockMovement }
func (LogisticCharge) Kind() string { return SourceLogisticCharge }
func (ApprovedExpense) Kind() string { return SourceExpense }

func (e Sale) Source() int64 { return e.ID }
func (e CreditPayment) Source() int64 { return e.ID }
func (e FuelLog) Source() int64 { return e.ID }
func (e StockMovement) Source() int64 { return e.ID }
func (e LogisticCharge) Source() int64 { return e.ID }
func (e ApprovedExpense) Source() int64 { return e.ID }

func (Sale) event() {}
func (CreditPayment) event() {}
func (FuelLog) event() {}
func (StockMovement) event() {}
func (LogisticCharge) event() {}
func (ApprovedExpense) event() {}
