package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// EntryTotals carries the stored and recomputed totals of a journal entry.
type EntryTotals struct {
	EntryID     int64
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	LineDebit   decimal.Decimal
	LineCredit  decimal.Decimal
}

// BalanceSnapshot pairs an account balance with the sums of its posted lines.
type BalanceSnapshot struct {
	AccountID    int64
	Type         AccountType
	Balance      decimal.Decimal
	PostedDebit  decimal.Decimal
	PostedCredit decimal.Decimal
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	EnsureAccount(ctx context.Context, companyID int64, account SystemAccount) (bool, error)
	EnsureExpenseCategory(ctx context.Context, companyID int64, category SystemCategory, accountID *int64) (bool, error)
	CountSystemAccounts(ctx context.Context, companyID int64) (int, error)
	GetAccount(ctx context.Context, companyID, accountID int64) (Account, error)
	GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error)
	GetAccountsForUpdate(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error)
	AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	ListAccounts(ctx context.Context, companyID int64) ([]Account, error)
	GetExpenseCategory(ctx context.Context, companyID, categoryID int64) (ExpenseCategory, error)
	GetExpenseCategoryByCode(ctx context.Context, companyID int64, code string) (ExpenseCategory, error)
	FindEntryBySource(ctx context.Context, companyID int64, sourceType string, sourceID int64) (JournalEntry, bool, error)
	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error)
	GetJournal(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	GetJournalForUpdate(ctx context.Context, companyID, entryID int64) (JournalEntry, error)
	MarkJournalPosted(ctx context.Context, entryID, actorID int64, at time.Time) error
	MarkJournalVoided(ctx context.Context, entryID, actorID int64, reason string, at time.Time) error
	ListCompaniesWithSystemAccounts(ctx context.Context) ([]int64, error)
	ListEntryTotals(ctx context.Context, companyID int64) ([]EntryTotals, error)
	ListBalanceSnapshots(ctx context.Context, companyID int64) ([]BalanceSnapshot, error)
}

type txRepository struct {
	tx pgx.Tx
}

const (
	constraintJournalReference = "uq_journal_entries_reference"
	constraintJournalSource    = "uq_journal_entries_source"
)

// WithTx executes fn within the unit of work carried by ctx, opening one when absent.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, company_id, code, name, type, balance, is_system, category_id, archived_at, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.IsSystem, &a.CategoryID, &a.ArchivedAt, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) EnsureAccount(ctx context.Context, companyID int64, account SystemAccount) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO accounts (company_id, code, name, type, balance, is_system)
VALUES ($1,$2,$3,$4,0,TRUE)
ON CONFLICT (company_id, code) DO NOTHING`, companyID, account.Code, account.Name, account.Type)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) EnsureExpenseCategory(ctx context.Context, companyID int64, category SystemCategory, accountID *int64) (bool, error) {
	cmd, err := r.tx.Exec(ctx, `INSERT INTO expense_categories (company_id, code, name, account_id, is_system)
VALUES ($1,$2,$3,$4,TRUE)
ON CONFLICT (company_id, code) DO NOTHING`, companyID, category.Code, category.Name, accountID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *txRepository) CountSystemAccounts(ctx context.Context, companyID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE company_id=$1 AND is_system`, companyID).Scan(&count)
	return count, err
}

func (r *txRepository) GetAccount(ctx context.Context, companyID, accountID int64) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, accountID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return account, nil
}

func (r *txRepository) GetAccountByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	account, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, companyID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: code %s", ErrAccountNotConfigured, code)
		}
		return Account{}, err
	}
	return account, nil
}

// GetAccountsForUpdate locks the accounts in id order so concurrent postings touching
// the same accounts cannot deadlock.
func (r *txRepository) GetAccountsForUpdate(ctx context.Context, companyID int64, ids []int64) (map[int64]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE company_id=$1 AND id = ANY($2)
ORDER BY id
FOR UPDATE`, companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	accounts := make(map[int64]Account, len(ids))
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts[account.ID] = account
	}
	return accounts, rows.Err()
}

func (r *txRepository) AddToBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at=NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) ListAccounts(ctx context.Context, companyID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 ORDER BY code`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

const categoryColumns = `id, company_id, code, name, account_id, is_system, created_at`

func scanCategory(row pgx.Row) (ExpenseCategory, error) {
	var c ExpenseCategory
	err := row.Scan(&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.AccountID, &c.IsSystem, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExpenseCategory{}, ErrCategoryNotFound
	}
	return c, err
}

func (r *txRepository) GetExpenseCategory(ctx context.Context, companyID, categoryID int64) (ExpenseCategory, error) {
	return scanCategory(r.tx.QueryRow(ctx, `SELECT `+categoryColumns+` FROM expense_categories WHERE company_id=$1 AND id=$2`, companyID, categoryID))
}

func (r *txRepository) GetExpenseCategoryByCode(ctx context.Context, companyID int64, code string) (ExpenseCategory, error) {
	return scanCategory(r.tx.QueryRow(ctx, `SELECT `+categoryColumns+` FROM expense_categories WHERE company_id=$1 AND code=$2`, companyID, code))
}

const journalColumns = `id, company_id, reference, date, description, status, source_type, source_id, total_debit, total_credit,
COALESCE(created_by, 0), posted_by, posted_at, voided_by, voided_at, void_reason, created_at, updated_at`

func scanJournal(row pgx.Row) (JournalEntry, error) {
	var (
		e          JournalEntry
		sourceType *string
		voidReason *string
	)
	err := row.Scan(&e.ID, &e.CompanyID, &e.Reference, &e.Date, &e.Description, &e.Status, &sourceType, &e.SourceID, &e.TotalDebit, &e.TotalCredit,
		&e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.VoidedBy, &e.VoidedAt, &voidReason, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	if sourceType != nil {
		e.SourceType = *sourceType
	}
	if voidReason != nil {
		e.VoidReason = *voidReason
	}
	return e, nil
}

func (r *txRepository) FindEntryBySource(ctx context.Context, companyID int64, sourceType string, sourceID int64) (JournalEntry, bool, error) {
	entry, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries
WHERE company_id=$1 AND source_type=$2 AND source_id=$3`, companyID, sourceType, sourceID))
	if err != nil {
		if errors.Is(err, ErrJournalNotFound) {
			return JournalEntry{}, false, nil
		}
		return JournalEntry{}, false, err
	}
	return entry, true, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (company_id, reference, date, description, status, source_type, source_id,
total_debit, total_credit, created_by, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id, created_at, updated_at`,
		entry.CompanyID, entry.Reference, entry.Date, entry.Description, entry.Status, nullString(entry.SourceType), entry.SourceID,
		entry.TotalDebit, entry.TotalCredit, nullInt(entry.CreatedBy), entry.PostedBy, entry.PostedAt)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		switch {
		case db.IsUniqueViolation(err, constraintJournalReference):
			return JournalEntry{}, ErrReferenceConflict
		case db.IsUniqueViolation(err, constraintJournalSource):
			return JournalEntry{}, ErrSourceConflict
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		inserted := JournalLine{EntryID: entryID, AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo}
		if err := r.tx.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, memo)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, entryID, line.AccountID, line.Debit, line.Credit, line.Memo).Scan(&inserted.ID); err != nil {
			return nil, err
		}
		out = append(out, inserted)
	}
	return out, nil
}

func (r *txRepository) GetJournal(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2`, companyID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	return r.withLines(ctx, entry)
}

func (r *txRepository) GetJournalForUpdate(ctx context.Context, companyID, entryID int64) (JournalEntry, error) {
	entry, err := scanJournal(r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	return r.withLines(ctx, entry)
}

func (r *txRepository) withLines(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, memo FROM journal_lines WHERE entry_id=$1 ORDER BY id ASC`, entry.ID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit, &line.Memo); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) MarkJournalPosted(ctx context.Context, entryID, actorID int64, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='POSTED', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='DRAFT'`, entryID, nullInt(actorID), at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) MarkJournalVoided(ctx context.Context, entryID, actorID int64, reason string, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status='VOIDED', voided_by=$2, voided_at=$3, void_reason=$4, updated_at=NOW()
WHERE id=$1 AND status <> 'VOIDED'`, entryID, nullInt(actorID), at, nullString(reason))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) ListCompaniesWithSystemAccounts(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, `SELECT DISTINCT company_id FROM accounts WHERE is_system ORDER BY company_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListEntryTotals returns only the entries whose stored totals disagree with each other
// or with their lines.
func (r *txRepository) ListEntryTotals(ctx context.Context, companyID int64) ([]EntryTotals, error) {
	rows, err := r.tx.Query(ctx, `SELECT e.id, e.total_debit, e.total_credit, COALESCE(SUM(l.debit),0), COALESCE(SUM(l.credit),0)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.entry_id = e.id
WHERE e.company_id=$1
GROUP BY e.id, e.total_debit, e.total_credit
HAVING e.total_debit <> e.total_credit
    OR e.total_debit <> COALESCE(SUM(l.debit),0)
    OR e.total_credit <> COALESCE(SUM(l.credit),0)
ORDER BY e.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []EntryTotals
	for rows.Next() {
		var t EntryTotals
		if err := rows.Scan(&t.EntryID, &t.TotalDebit, &t.TotalCredit, &t.LineDebit, &t.LineCredit); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) ListBalanceSnapshots(ctx context.Context, companyID int64) ([]BalanceSnapshot, error) {
	rows, err := r.tx.Query(ctx, `SELECT a.id, a.type, a.balance,
       COALESCE(SUM(l.debit) FILTER (WHERE e.status='POSTED'),0),
       COALESCE(SUM(l.credit) FILTER (WHERE e.status='POSTED'),0)
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE a.company_id=$1
GROUP BY a.id, a.type, a.balance
ORDER BY a.id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BalanceSnapshot
	for rows.Next() {
		var s BalanceSnapshot
		if err := rows.Scan(&s.AccountID, &s.Type, &s.Balance, &s.PostedDebit, &s.PostedCredit); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}

func nullString(val string) any {
	if val == "" {
		return nil
	}
	return val
}
