package posting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/expenses"
	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

var (
	// ErrInvalidEvent indicates event data that cannot be booked.
	ErrInvalidEvent = errors.New("posting: invalid event")
	// ErrUnknownEvent indicates an event variant without a recipe.
	ErrUnknownEvent = errors.New("posting: unknown event")
	// ErrAccountMissing indicates a system account absent from a provisioned ledger.
	ErrAccountMissing = errors.New("posting: system account missing")
)

// AccountLookup resolves account ids for one company.
type AccountLookup interface {
	ByCode(code string) (int64, error)
	// ForCategory returns the account linked to an expense category, false when the
	// category has none.
	ForCategory(categoryID int64) (int64, bool, error)
}

// AutoExpense describes the approved expense generated alongside an entry.
type AutoExpense struct {
	CategoryCode string
	Origin       expenses.Origin
	Amount       decimal.Decimal
	Description  string
}

// Translation is the journal entry an event produces.
type Translation struct {
	SourceType  string
	SourceID    int64
	Prefix      shared.ReferencePrefix
	Date        time.Time
	Description string
	Lines       []accounting.LineInput
	Expense     *AutoExpense
}

var printer = message.NewPrinter(language.English)

func formatAmount(amount decimal.Decimal) string {
	return printer.Sprintf("%.2f", amount.InexactFloat64())
}

var paymentAccounts = map[PaymentMethod]string{
	PaymentCash:        accounting.CodeCash,
	PaymentBank:        accounting.CodeBank,
	PaymentMobileMoney: accounting.CodeMobileMoney,
}

var paymentOrder = []PaymentMethod{PaymentCash, PaymentBank, PaymentMobileMoney}

// Translate builds the journal lines of ev. A nil translation means the event has no
// ledger effect.
func Translate(ev Event, lookup AccountLookup) (*Translation, error) {
	if ev == nil {
		return nil, ErrUnknownEvent
	}
	if ev.Source() <= 0 {
		return nil, fmt.Errorf("%w: %s without id", ErrInvalidEvent, ev.Kind())
	}
	switch e := ev.(type) {
	case Sale:
		return translateSale(e, lookup)
	case CreditPayment:
		return translateCreditPayment(e, lookup)
	case FuelLog:
		return translateFuelLog(e, lookup)
	case StockMovement:
		return translateStockMovement(e, lookup)
	case LogisticCharge:
		return translateLogisticCharge(e, lookup)
	case ApprovedExpense:
		return translateExpense(e, lookup)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
	}
}

type lineSet struct {
	lookup AccountLookup
	lines  []accounting.LineInput
	err    error
}

func (b *lineSet) add(code string, debit, credit decimal.Decimal, memo string) {
	if b.err != nil {
		return
	}
	id, err := b.lookup.ByCode(code)
	if err != nil {
		b.err = err
		return
	}
	b.lines = append(b.lines, accounting.LineInput{AccountID: id, Debit: debit, Credit: credit, Memo: memo})
}

func (b *lineSet) debit(code string, amount decimal.Decimal, memo string) {
	b.add(code, amount, decimal.Zero, memo)
}

func (b *lineSet) credit(code string, amount decimal.Decimal, memo string) {
	b.add(code, decimal.Zero, amount, memo)
}

func (b *lineSet) debitID(id int64, amount decimal.Decimal, memo string) {
	if b.err != nil {
		return
	}
	b.lines = append(b.lines, accounting.LineInput{AccountID: id, Debit: amount, Memo: memo})
}

func translateSale(e Sale, lookup AccountLookup) (*Translation, error) {
	if e.Subtotal.IsNegative() || e.Discount.IsNegative() || e.Discount.GreaterThan(e.Subtotal) {
		return nil, fmt.Errorf("%w: sale %d subtotal %s discount %s", ErrInvalidEvent, e.ID, e.Subtotal, e.Discount)
	}
	net := e.Subtotal.Sub(e.Discount)
	collected := map[PaymentMethod]decimal.Decimal{}
	paid := decimal.Zero
	for _, p := range e.Payments {
		if _, ok := paymentAccounts[p.Method]; !ok {
			return nil, fmt.Errorf("%w: sale %d payment method %q", ErrInvalidEvent, e.ID, p.Method)
		}
		if p.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: sale %d negative payment", ErrInvalidEvent, e.ID)
		}
		collected[p.Method] = collected[p.Method].Add(p.Amount)
		paid = paid.Add(p.Amount)
	}
	if paid.GreaterThan(net) {
		return nil, fmt.Errorf("%w: sale %d paid %s above net %s", ErrInvalidEvent, e.ID, paid, net)
	}
	cost := decimal.Zero
	for _, line := range e.Lines {
		if line.Quantity < 0 || line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: sale %d line for product %d", ErrInvalidEvent, e.ID, line.ProductID)
		}
		cost = cost.Add(line.UnitCost.Mul(decimal.NewFromInt(line.Quantity)))
	}
	if net.IsZero() && cost.IsZero() {
		return nil, nil
	}

	b := &lineSet{lookup: lookup}
	for _, method := range paymentOrder {
		if amount := collected[method]; amount.IsPositive() {
			b.debit(paymentAccounts[method], amount, fmt.Sprintf("Sale collected %s", method))
		}
	}
	if due := net.Sub(paid); due.IsPositive() {
		b.debit(accounting.CodeReceivables, due, "Sale amount due")
	}
	if net.IsPositive() {
		b.credit(accounting.CodeSalesRevenue, net, "Sale revenue")
	}
	if cost.IsPositive() {
		b.debit(accounting.CodeCOGS, cost, "Cost of goods sold")
		b.credit(accounting.CodeInventory, cost, "Inventory released")
	}
	if b.err != nil {
		return nil, b.err
	}
	return &Translation{
		SourceType:  SourceSale,
		SourceID:    e.ID,
		Prefix:      shared.PrefixSale,
		Date:        e.Date,
		Description: fmt.Sprintf("Sale #%d (%s)", e.ID, formatAmount(net)),
		Lines:       b.lines,
	}, nil
}

func translateCreditPayment(e CreditPayment, lookup AccountLookup) (*Translation, error) {
	code, ok := paymentAccounts[e.Method]
	if !ok {
		return nil, fmt.Errorf("%w: credit payment %d method %q", ErrInvalidEvent, e.ID, e.Method)
	}
	if e.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: credit payment %d negative amount", ErrInvalidEvent, e.ID)
	}
	if e.Amount.IsZero() {
		return nil, nil
	}
	b := &lineSet{lookup: lookup}
	b.debit(code, e.Amount, fmt.Sprintf("Payment received %s", e.Method))
	b.credit(accounting.CodeReceivables, e.Amount, fmt.Sprintf("Settlement of sale #%d", e.SaleID))
	if b.err != nil {
		return nil, b.err
	}
	return &Translation{
		SourceType:  SourceCreditPayment,
		SourceID:    e.ID,
		Prefix:      shared.PrefixCreditPayment,
		Date:        e.Date,
		Description: fmt.Sprintf("Credit payment for sale #%d (%s)", e.SaleID, formatAmount(e.Amount)),
		Lines:       b.lines,
	}, nil
}

func translateFuelLog(e FuelLog, lookup AccountLookup) (*Translation, error) {
	if e.Cost.IsNegative() {
		return nil, fmt.Errorf("%w: fuel log %d negative cost", ErrInvalidEvent, e.ID)
	}
	if e.Cost.IsZero() {
		return nil, nil
	}
	description := fmt.Sprintf("Fuel for vehicle #%d, %s L (%s)", e.VehicleID, e.Liters.StringFixed(2), formatAmount(e.Cost))
	b := &lineSet{lookup: lookup}
	b.debit(accounting.CodeFuelExpense, e.Cost, "Fuel")
	b.credit(accounting.CodeCash, e.Cost, "Fuel paid")
	if b.err != nil {
		return nil, b.err
	}
	return &Translation{
		SourceType:  SourceFuelLog,
		SourceID:    e.ID,
		Prefix:      shared.PrefixFuel,
		Date:        e.Date,
		Description: description,
		Lines:       b.lines,
		Expense: &AutoExpense{
			CategoryCode: accounting.CategoryFuel,
			Origin:       expenses.OriginFuelLog,
			Amount:       e.Cost,
			Description:  description,
		},
	}, nil
}

// translateStockMovement books losses and adjustments at cost. Other movement types
// only move goods between locations.
func translateStockMovement(e StockMovement, lookup AccountLookup) (*Translation, error) {
	if !e.Type.Financial() {
		return nil, nil
	}
	if e.UnitCost.IsNegative() {
		return nil, fmt.Errorf("%w: movement %d negative cost", ErrInvalidEvent, e.ID)
	}
	qty := e.Quantity
	if e.Type == inventory.MovementLoss && qty < 0 {
		qty = -qty
	}
	amount := e.UnitCost.Mul(decimal.NewFromInt(qty)).Abs()
	if amount.IsZero() {
		return nil, nil
	}
	t := &Translation{
		SourceType: SourceStockMovement,
		SourceID:   e.ID,
		Prefix:     shared.PrefixStock,
		Date:       e.Date,
	}
	b := &lineSet{lookup: lookup}
	switch {
	case e.Type == inventory.MovementLoss:
		t.Description = fmt.Sprintf("Stock loss, product #%d x%d (%s)", e.ProductID, qty, formatAmount(amount))
		b.debit(accounting.CodeStockLoss, amount, "Stock loss")
		b.credit(accounting.CodeInventory, amount, "Inventory written off")
	case qty < 0:
		t.Description = fmt.Sprintf("Stock adjustment, product #%d %d (%s)", e.ProductID, qty, formatAmount(amount))
		b.debit(accounting.CodeStockAdjustment, amount, "Negative adjustment")
		b.credit(accounting.CodeInventory, amount, "Inventory written down")
	default:
		t.Description = fmt.Sprintf("Stock adjustment, product #%d +%d (%s)", e.ProductID, qty, formatAmount(amount))
		b.debit(accounting.CodeInventory, amount, "Inventory written up")
		b.credit(accounting.CodeStockAdjustment, amount, "Positive adjustment")
	}
	if b.err != nil {
		return nil, b.err
	}
	t.Lines = b.lines
	if e.Type == inventory.MovementLoss || qty < 0 {
		t.Expense = &AutoExpense{
			CategoryCode: accounting.CategoryStockLoss,
			Origin:       expenses.OriginStockMovement,
			Amount:       amount,
			Description:  t.Description,
		}
	}
	return t, nil
}

func translateLogisticCharge(e LogisticCharge, lookup AccountLookup) (*Translation, error) {
	if e.SupplyRequestID != nil {
		return nil, nil
	}
	if e.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: logistic charge %d negative amount", ErrInvalidEvent, e.ID)
	}
	if e.Amount.IsZero() {
		return nil, nil
	}
	description := e.Description
	if description == "" {
		description = fmt.Sprintf("Logistic charge #%d (%s)", e.ID, formatAmount(e.Amount))
	}
	b := &lineSet{lookup: lookup}
	b.debit(accounting.CodeLogisticsExpense, e.Amount, "Logistics")
	b.credit(accounting.CodeCash, e.Amount, "Logistics paid")
	if b.err != nil {
		return nil, b.err
	}
	return &Translation{
		SourceType:  SourceLogisticCharge,
		SourceID:    e.ID,
		Prefix:      shared.PrefixLogistics,
		Date:        e.Date,
		Description: description,
		Lines:       b.lines,
		Expense: &AutoExpense{
			CategoryCode: accounting.CategoryLogistics,
			Origin:       expenses.OriginLogisticCharge,
			Amount:       e.Amount,
			Description:  description,
		},
	}, nil
}

// translateExpense debits the category account, or the default expense account when
// the category has none.
func translateExpense(e ApprovedExpense, lookup AccountLookup) (*Translation, error) {
	if e.JournalEntryID != nil {
		return nil, nil
	}
	if e.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: expense %d negative amount", ErrInvalidEvent, e.ID)
	}
	if e.Amount.IsZero() {
		return nil, nil
	}
	b := &lineSet{lookup: lookup}
	accountID, linked, err := lookup.ForCategory(e.CategoryID)
	if err != nil {
		return nil, err
	}
	if linked {
		b.debitID(accountID, e.Amount, "Expense")
	} else {
		b.debit(accounting.CodeDefaultExpense, e.Amount, "Expense")
	}
	b.credit(accounting.CodeCash, e.Amount, "Expense paid")
	if b.err != nil {
		return nil, b.err
	}
	description := e.Description
	if e.Reference != "" {
		description = fmt.Sprintf("%s %s", e.Reference, e.Description)
	}
	return &Translation{
		SourceType:  SourceExpense,
		SourceID:    e.ID,
		Prefix:      shared.PrefixExpense,
		Date:        e.Date,
		Description: description,
		Lines:       b.lines,
	}, nil
}
