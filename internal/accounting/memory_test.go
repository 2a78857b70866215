package accounting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type memoryLedger struct {
	mu         sync.Mutex
	nextID     int64
	accounts   map[int64]Account
	categories map[int64]ExpenseCategory
	entries    map[int64]JournalEntry
	failAdd    error
}

type memoryTx struct {
	l *memoryLedger
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:   make(map[int64]Account),
		categories: make(map[int64]ExpenseCategory),
		entries:    make(map[int64]JournalEntry),
	}
}

// WithTx serialises callers and restores the previous state when fn fails.
func (l *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	accounts := make(map[int64]Account, len(l.accounts))
	for k, v := range l.accounts {
		accounts[k] = v
	}
	categories := make(map[int64]ExpenseCategory, len(l.categories))
	for k, v := range l.categories {
		categories[k] = v
	}
	entries := make(map[int64]JournalEntry, len(l.entries))
	for k, v := range l.entries {
		entries[k] = v
	}
	nextID := l.nextID
	if err := fn(ctx, &memoryTx{l: l}); err != nil {
		l.accounts, l.categories, l.entries, l.nextID = accounts, categories, entries, nextID
		return err
	}
	return nil
}

func (l *memoryLedger) id() int64 {
	l.nextID++
	return l.nextID
}

func (l *memoryLedger) accountByCode(companyID int64, code string) (Account, bool) {
	for _, a := range l.accounts {
		if a.CompanyID == companyID && a.Code == code {
			return a, true
		}
	}
	return Account{}, false
}

func (l *memoryLedger) balance(companyID int64, code string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, _ := l.accountByCode(companyID, code)
	return a.Balance
}

func (l *memoryLedger) accountID(companyID int64, code string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, _ := l.accountByCode(companyID, code)
	return a.ID
}

func (l *memoryLedger) countFor(companyID int64) (accounts, categories int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, a := range l.accounts {
		if a.CompanyID == companyID {
			accounts++
		}
	}
	for _, c := range l.categories {
		if c.CompanyID == companyID {
			categories++
		}
	}
	return accounts, categories
}

func (tx *memoryTx) EnsureAccount(ctx context.Context, companyID int64, account SystemAccount) (bool, error) {
	if _, ok := tx.l.accountByCode(companyID, account.Code); ok {
		return false, nil
	}
	id := tx.l.id()
	tx.l.accounts[id] = Account{ID: id, CompanyID: companyID, Code: account.Code, Name: account.Name, Type: account.Type, IsSystem: true}
	return true, nil
}

func (tx *memoryTx) EnsureExpenseCategory(ctx context.Context, companyID int64, category SystemCategory, accountID *int64) (bool, error) {
	for _, c := range tx.l.categories {
		if c.CompanyID == companyID && c.Code == category.Code {
			return false, nil
		}
	}
	id := tx.l.id()
	tx.l.categories[id] = ExpenseCategory{ID: id, CompanyID: companyID, Code: category.Code, Name: category.Name, AccountID: accountID, IsSystem: true}
	return true, nil
}

func (tx *memoryTx) CountSystemAccounts(ctx context.Context, companyID int64) (int, error) {
	count := 0
	for _, a := range tx.l.accounts {
		if a.CompanyID == companyID && a.IsSystem {
			count++
		}
	}
	return count, nil
}

func (tx *memoryTx) GetAccount(ctx context.Context, companyID, accountID int64) (Account, error) {
	a, ok := tx.l.accounts[accountID]
	if !ok || a.CompanyID != companyID {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (tx *memoryTx) GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	a, ok := tx.l.accountByCode(companyID, code)
	if !ok {
		return Account{}, fmt.Errorf("%w: code %s", ErrAccountNotConfigured, code)
	}
	return a, nil
}

func (tx *memoryTx) GetAccountsForUpdate(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	for _, id := range ids {
		if a, ok := tx.l.accounts[id]; ok && a.CompanyID == companyID {
			out[id] = a
		}
	}
	return out, nil
}

func (tx *memoryTx) AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	if tx.l.failAdd != nil {
		return tx.l.failAdd
	}
	a, ok := tx.l.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	tx.l.accounts[accountID] = a
	return nil
}

func (tx *memoryTx) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	var out []Account
	for _, a := range tx.l.accounts {
		if a.CompanyID == companyID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (tx *memoryTx) GetExpenseCategory(ctx context.Context, companyID, categoryID int64) (ExpenseCategory, error) {
	c, ok := tx.l.categories[categoryID]
	if !ok || c.CompanyID != companyID {
		return ExpenseCategory{}, ErrCategoryNotFound
	}
	return c, nil
}

func (tx *memoryTx) GetExpenseCategoryByCode(ctx context.Context, companyID int64, code string) (ExpenseCategory, error) {
	for _, c := range tx.l.categories {
		if c.CompanyID == companyID && c.Code == code {
			return c, nil
		}
	}
	return ExpenseCategory{}, ErrCategoryNotFound
}

func (tx *memoryTx) FindEntryBySource(ctx context.Context, companyID int64, sourceType string, sourceID int64) (JournalEntry, bool, error) {
	for _, e := range tx.l.entries {
		if e.CompanyID == companyID && e.SourceType == sourceType && e.SourceID != nil && *e.SourceID == sourceID {
			return e, true, nil
		}
	}
	return JournalEntry{}, false, nil
}

func (tx *memoryTx) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	for _, e := range tx.l.entries {
		if e.CompanyID == entry.CompanyID && e.Reference == entry.Reference {
			return JournalEntry{}, ErrReferenceConflict
		}
	}
	entry.ID = tx.l.id()
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	tx.l.entries[entry.ID] = entry
	return entry, nil
}

func (tx *memoryTx) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	entry, ok := tx.l.entries[entryID]
	if !ok {
		return nil, ErrJournalNotFound
	}
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{ID: tx.l.id(), EntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo})
	}
	entry.Lines = out
	tx.l.entries[entryID] = entry
	return out, nil
}

func (tx *memoryTx) GetJournal(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	e, ok := tx.l.entries[entryID]
	if !ok || e.CompanyID != companyID {
		return JournalEntry{}, ErrJournalNotFound
	}
	return e, nil
}

func (tx *memoryTx) GetJournalForUpdate(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	return tx.GetJournal(ctx, companyID, entryID)
}

func (tx *memoryTx) MarkJournalPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	e, ok := tx.l.entries[entryID]
	if !ok || e.Status != JournalStatusDraft {
		return ErrJournalNotFound
	}
	e.Status = JournalStatusPosted
	e.PostedBy = &actorID
	e.PostedAt = &at
	tx.l.entries[entryID] = e
	return nil
}

func (tx *memoryTx) MarkJournalVoided(ctx context.Context, entryID, actorID int64, reason string, at time.Time) error {
	e, ok := tx.l.entries[entryID]
	if !ok || e.Status == JournalStatusVoided {
		return ErrJournalNotFound
	}
	e.Status = JournalStatusVoided
	e.VoidedBy = &actorID
	e.VoidedAt = &at
	e.VoidReason = reason
	tx.l.entries[entryID] = e
	return nil
}

func (tx *memoryTx) ListCompaniesWithSystemAccounts(ctx context.Context) ([]int64, error) {
	seen := map[int64]bool{}
	var out []int64
	for _, a := range tx.l.accounts {
		if a.IsSystem && !seen[a.CompanyID] {
			seen[a.CompanyID] = true
			out = append(out, a.CompanyID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (tx *memoryTx) ListEntryTotals(ctx context.Context, companyID int64) ([]EntryTotals, error) {
	var out []EntryTotals
	for _, e := range tx.l.entries {
		if e.CompanyID != companyID {
			continue
		}
		t := EntryTotals{EntryID: e.ID, TotalDebit: e.TotalDebit, TotalCredit: e.TotalCredit}
		for _, line := range e.Lines {
			t.LineDebit = t.LineDebit.Add(line.Debit)
			t.LineCredit = t.LineCredit.Add(line.Credit)
		}
		out = append(out, t)
	}
	return out, nil
}

func (tx *memoryTx) ListBalanceSnapshots(ctx context.Context, companyID int64) ([]BalanceSnapshot, error) {
	var out []BalanceSnapshot
	for _, a := range tx.l.accounts {
		if a.CompanyID != companyID {
			continue
		}
		snap := BalanceSnapshot{AccountID: a.ID, Type: a.Type, Balance: a.Balance}
		for _, e := range tx.l.entries {
			if e.Status != JournalStatusPosted {
				continue
			}
			for _, line := range e.Lines {
				if line.AccountID == a.ID {
					snap.PostedDebit = snap.PostedDebit.Add(line.Debit)
					snap.PostedCredit = snap.PostedCredit.Add(line.Credit)
				}
			}
		}
		out = append(out, snap)
	}
	return out, nil
}

var errInjected = errors.New("injected failure")
