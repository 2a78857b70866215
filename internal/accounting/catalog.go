package accounting

// Codes of the accounts every company receives at provisioning. Translators resolve
// accounts by these codes only.
const (
	CodeCash             = "1000"
	CodeBank             = "1010"
	CodeMobileMoney      = "1020"
	CodeReceivables      = "1100"
	CodeInventory        = "1200"
	CodePayables         = "2000"
	CodeOwnerCapital     = "3000"
	CodeSalesRevenue     = "4000"
	CodeCOGS             = "5000"
	CodeFuelExpense      = "6100"
	CodeLogisticsExpense = "6200"
	CodeStockLoss        = "6300"
	CodeStockAdjustment  = "6310"
	CodeDefaultExpense   = "6900"
)

// Codes of the provisioned expense categories.
const (
	CategoryFuel      = "FUEL"
	CategoryLogistics = "LOGISTICS"
	CategoryStockLoss = "STOCK_LOSS"
	CategoryMisc      = "MISC"
)

// SystemAccount describes one catalog account.
type SystemAccount struct {
	Code string
	Name string
	Type AccountType
}

// SystemCategory describes one catalog expense category. AccountCode is empty for
// categories that fall back to the default expense account.
type SystemCategory struct {
	Code        string
	Name        string
	AccountCode string
}

var systemAccounts = []SystemAccount{
	{Code: CodeCash, Name: "Cash", Type: AccountTypeAsset},
	{Code: CodeBank, Name: "Bank", Type: AccountTypeAsset},
	{Code: CodeMobileMoney, Name: "Mobile money", Type: AccountTypeAsset},
	{Code: CodeReceivables, Name: "Accounts receivable", Type: AccountTypeAsset},
	{Code: CodeInventory, Name: "Inventory", Type: AccountTypeAsset},
	{Code: CodePayables, Name: "Accounts payable", Type: AccountTypeLiability},
	{Code: CodeOwnerCapital, Name: "Owner's capital", Type: AccountTypeEquity},
	{Code: CodeSalesRevenue, Name: "Sales revenue", Type: AccountTypeRevenue},
	{Code: CodeCOGS, Name: "Cost of goods sold", Type: AccountTypeExpense},
	{Code: CodeFuelExpense, Name: "Fuel expense", Type: AccountTypeExpense},
	{Code: CodeLogisticsExpense, Name: "Logistics expense", Type: AccountTypeExpense},
	{Code: CodeStockLoss, Name: "Stock loss expense", Type: AccountTypeExpense},
	{Code: CodeStockAdjustment, Name: "Stock adjustment", Type: AccountTypeExpense},
	{Code: CodeDefaultExpense, Name: "Other operating expenses", Type: AccountTypeExpense},
}

var systemCategories = []SystemCategory{
	{Code: CategoryFuel, Name: "Fuel", AccountCode: CodeFuelExpense},
	{Code: CategoryLogistics, Name: "Logistics", AccountCode: CodeLogisticsExpense},
	{Code: CategoryStockLoss, Name: "Stock loss", AccountCode: CodeStockLoss},
	{Code: CategoryMisc, Name: "Miscellaneous"},
}

// SystemAccounts returns a copy of the provisioning catalog.
func SystemAccounts() []SystemAccount {
	out := make([]SystemAccount, len(systemAccounts))
	copy(out, systemAccounts)
	return out
}

// SystemCategories returns a copy of the expense category catalog.
func SystemCategories() []SystemCategory {
	out := make([]SystemCategory, len(systemCategories))
	copy(out, systemCategories)
	return out
}
