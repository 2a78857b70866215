package posting

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/expenses"
	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
)

// mapLookup numbers system accounts 1..14 in catalog order.
type mapLookup struct {
	ids        map[string]int64
	categories map[int64]int64
}

func newMapLookup() *mapLookup {
	l := &mapLookup{ids: map[string]int64{}, categories: map[int64]int64{}}
	for i, acc := range accounting.SystemAccounts() {
		l.ids[acc.Code] = int64(i + 1)
	}
	return l
}

func (l *mapLookup) ByCode(code string) (int64, error) {
	id, ok := l.ids[code]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAccountMissing, code)
	}
	return id, nil
}

func (l *mapLookup) ForCategory(categoryID int64) (int64, bool, error) {
	id, ok := l.categories[categoryID]
	return id, ok, nil
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var day = time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

// sides sums lines per account code as debit minus credit.
func sides(t *testing.T, l *mapLookup, tr *Translation) map[string]decimal.Decimal {
	t.Helper()
	byID := map[int64]string{}
	for code, id := range l.ids {
		byID[id] = code
	}
	debit, credit := decimal.Zero, decimal.Zero
	out := map[string]decimal.Decimal{}
	for _, line := range tr.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
		code := byID[line.AccountID]
		out[code] = out[code].Add(line.Debit).Sub(line.Credit)
	}
	require.True(t, debit.Equal(credit), "unbalanced: %s vs %s", debit, credit)
	return out
}

func requireAmount(t *testing.T, expected int64, actual decimal.Decimal) {
	t.Helper()
	require.True(t, dec(expected).Equal(actual), "expected %d, got %s", expected, actual)
}

func TestSaleFullyPaidInCash(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(Sale{
		ID:       1,
		Date:     day,
		Subtotal: dec(10000),
		Payments: []Payment{{Method: PaymentCash, Amount: dec(10000)}},
		Lines:    []SaleLine{{ProductID: 3, Quantity: 2, UnitCost: dec(3000)}},
	}, lookup)
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.Len(t, tr.Lines, 4)
	require.Equal(t, SourceSale, tr.SourceType)
	require.Equal(t, "VTE", string(tr.Prefix))
	require.Nil(t, tr.Expense)

	got := sides(t, lookup, tr)
	requireAmount(t, 10000, got[accounting.CodeCash])
	requireAmount(t, -10000, got[accounting.CodeSalesRevenue])
	requireAmount(t, 6000, got[accounting.CodeCOGS])
	requireAmount(t, -6000, got[accounting.CodeInventory])
}

func TestSalePartiallyPaid(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(Sale{
		ID:       2,
		Subtotal: dec(20000),
		Payments: []Payment{{Method: PaymentCash, Amount: dec(5000)}},
	}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 5000, got[accounting.CodeCash])
	requireAmount(t, 15000, got[accounting.CodeReceivables])
	requireAmount(t, -20000, got[accounting.CodeSalesRevenue])
	require.Len(t, tr.Lines, 3)
}

func TestSaleWithDiscountAndMixedPayments(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(Sale{
		ID:       3,
		Subtotal: dec(12000),
		Discount: dec(2000),
		Payments: []Payment{
			{Method: PaymentMobileMoney, Amount: dec(4000)},
			{Method: PaymentCash, Amount: dec(3000)},
			{Method: PaymentMobileMoney, Amount: dec(1000)},
		},
	}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 3000, got[accounting.CodeCash])
	requireAmount(t, 5000, got[accounting.CodeMobileMoney])
	requireAmount(t, 2000, got[accounting.CodeReceivables])
	requireAmount(t, -10000, got[accounting.CodeSalesRevenue])
}

func TestSaleRejectsInconsistentAmounts(t *testing.T) {
	lookup := newMapLookup()
	_, err := Translate(Sale{ID: 4, Subtotal: dec(1000), Payments: []Payment{{Method: PaymentCash, Amount: dec(1500)}}}, lookup)
	require.ErrorIs(t, err, ErrInvalidEvent)
	_, err = Translate(Sale{ID: 4, Subtotal: dec(1000), Discount: dec(2000)}, lookup)
	require.ErrorIs(t, err, ErrInvalidEvent)
	_, err = Translate(Sale{ID: 4, Subtotal: dec(1000), Payments: []Payment{{Method: "CHEQUE", Amount: dec(10)}}}, lookup)
	require.ErrorIs(t, err, ErrInvalidEvent)

	tr, err := Translate(Sale{ID: 4}, lookup)
	require.NoError(t, err)
	require.Nil(t, tr)
}

func TestCreditPaymentReducesReceivable(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(CreditPayment{ID: 5, SaleID: 2, Method: PaymentBank, Amount: dec(7000)}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 7000, got[accounting.CodeBank])
	requireAmount(t, -7000, got[accounting.CodeReceivables])
	require.Equal(t, "RGL", string(tr.Prefix))
}

func TestFuelLogCreatesExpense(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(FuelLog{ID: 6, VehicleID: 9, Liters: decimal.RequireFromString("42.5"), Cost: dec(8500)}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 8500, got[accounting.CodeFuelExpense])
	requireAmount(t, -8500, got[accounting.CodeCash])
	require.NotNil(t, tr.Expense)
	require.Equal(t, accounting.CategoryFuel, tr.Expense.CategoryCode)
	require.Equal(t, expenses.OriginFuelLog, tr.Expense.Origin)
	requireAmount(t, 8500, tr.Expense.Amount)
	require.Equal(t, "CBR", string(tr.Prefix))
}

func TestStockLossBooksExpense(t *testing.T) {
	lookup := newMapLookup()
	tr, err := Translate(StockMovement{ID: 7, Type: inventory.MovementLoss, ProductID: 3, Quantity: 5, UnitCost: dec(2000)}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 10000, got[accounting.CodeStockLoss])
	requireAmount(t, -10000, got[accounting.CodeInventory])
	require.NotNil(t, tr.Expense)
	requireAmount(t, 10000, tr.Expense.Amount)
	require.Equal(t, accounting.CategoryStockLoss, tr.Expense.CategoryCode)
	require.Equal(t, "STK", string(tr.Prefix))
}

func TestStockAdjustments(t *testing.T) {
	lookup := newMapLookup()

	tr, err := Translate(StockMovement{ID: 8, Type: inventory.MovementAdjustment, ProductID: 3, Quantity: -3, UnitCost: dec(100)}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 300, got[accounting.CodeStockAdjustment])
	requireAmount(t, -300, got[accounting.CodeInventory])
	require.NotNil(t, tr.Expense)

	tr, err = Translate(StockMovement{ID: 9, Type: inventory.MovementAdjustment, ProductID: 3, Quantity: 4, UnitCost: dec(100)}, lookup)
	require.NoError(t, err)
	got = sides(t, lookup, tr)
	requireAmount(t, 400, got[accounting.CodeInventory])
	requireAmount(t, -400, got[accounting.CodeStockAdjustment])
	require.Nil(t, tr.Expense)

	for _, typ := range []inventory.MovementType{inventory.MovementPurchaseEntry, inventory.MovementInternalTransfer, inventory.MovementStoreTransfer} {
		tr, err = Translate(StockMovement{ID: 10, Type: typ, ProductID: 3, Quantity: 4, UnitCost: dec(100)}, lookup)
		require.NoError(t, err)
		require.Nil(t, tr, typ)
	}

	tr, err = Translate(StockMovement{ID: 11, Type: inventory.MovementLoss, ProductID: 3, Quantity: 4}, lookup)
	require.NoError(t, err)
	require.Nil(t, tr)
}

func TestLogisticCharges(t *testing.T) {
	lookup := newMapLookup()
	requestID := int64(3)

	tr, err := Translate(LogisticCharge{ID: 12, SupplyRequestID: &requestID, Amount: dec(15000)}, lookup)
	require.NoError(t, err)
	require.Nil(t, tr)

	tr, err = Translate(LogisticCharge{ID: 13, Amount: dec(15000)}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	require.Len(t, tr.Lines, 2)
	requireAmount(t, 15000, got[accounting.CodeLogisticsExpense])
	requireAmount(t, -15000, got[accounting.CodeCash])
	require.Equal(t, accounting.CategoryLogistics, tr.Expense.CategoryCode)
	require.Equal(t, "LOG", string(tr.Prefix))
}

func TestApprovedExpenseAccounts(t *testing.T) {
	lookup := newMapLookup()
	lookup.categories[4] = 99
	lookup.ids["9999"] = 99

	tr, err := Translate(ApprovedExpense{ID: 14, CategoryID: 4, Amount: dec(500), Reference: "DEP-1"}, lookup)
	require.NoError(t, err)
	got := sides(t, lookup, tr)
	requireAmount(t, 500, got["9999"])
	requireAmount(t, -500, got[accounting.CodeCash])
	require.Nil(t, tr.Expense)

	tr, err = Translate(ApprovedExpense{ID: 15, CategoryID: 5, Amount: dec(700)}, lookup)
	require.NoError(t, err)
	got = sides(t, lookup, tr)
	requireAmount(t, 700, got[accounting.CodeDefaultExpense])

	entryID := int64(40)
	tr, err = Translate(ApprovedExpense{ID: 16, CategoryID: 4, Amount: dec(700), JournalEntryID: &entryID}, lookup)
	require.NoError(t, err)
	require.Nil(t, tr)
}

type bogusEvent struct{}

func (bogusEvent) Kind() string { return "bogus" }
func (bogusEvent) Source() int64 { return 1 }
func (bogusEvent) event() {}

func TestUnknownAndMissingData(t *testing.T) {
	lookup := newMapLookup()
	_, err := Translate(bogusEvent{}, lookup)
	require.ErrorIs(t, err, ErrUnknownEvent)

	_, err = Translate(FuelLog{Cost: dec(10)}, lookup)
	require.ErrorIs(t, err, ErrInvalidEvent)

	delete(lookup.ids, accounting.CodeFuelExpense)
	_, err = Translate(FuelLog{ID: 1, Cost: dec(10)}, lookup)
	require.ErrorIs(t, err, ErrAccountMissing)
}
