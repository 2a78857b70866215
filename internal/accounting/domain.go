package accounting

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// DebitNormal reports whether debits increase the balance of the account type.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusDraft  JournalStatus = "DRAFT"
	JournalStatusPosted JournalStatus = "POSTED"
	JournalStatusVoided JournalStatus = "VOIDED"
)

// Account models a chart of accounts node owned by one company.
type Account struct {
	ID         int64           `json:"id"`
	CompanyID  int64           `json:"company_id"`
	Code       string          `json:"code"`
	Name       string          `json:"name"`
	Type       AccountType     `json:"type"`
	Balance    decimal.Decimal `json:"balance"`
	IsSystem   bool            `json:"is_system"`
	CategoryID *int64          `json:"category_id,omitempty"`
	ArchivedAt *time.Time      `json:"archived_at,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Ref returns the immutable identity of the account.
func (a Account) Ref() AccountRef {
	return AccountRef{ID: a.ID, Code: a.Code, Type: a.Type}
}

// AccountRef is the part of an account that never changes after provisioning, which
// makes it safe to cache.
type AccountRef struct {
	ID   int64       `json:"id"`
	Code string      `json:"code"`
	Type AccountType `json:"type"`
}

// ExpenseCategory groups expenses and optionally routes them to an expense account.
type ExpenseCategory struct {
	ID        int64     `json:"id"`
	CompanyID int64     `json:"company_id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	AccountID *int64    `json:"account_id,omitempty"`
	IsSystem  bool      `json:"is_system"`
	CreatedAt time.Time `json:"created_at"`
}

// JournalEntry captures posting metadata. TotalDebit and TotalCredit always match each
// other and the sum of the lines, whatever the status.
type JournalEntry struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	Reference   string          `json:"reference"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
	Status      JournalStatus   `json:"status"`
	SourceType  string          `json:"source_type,omitempty"`
	SourceID    *int64          `json:"source_id,omitempty"`
	TotalDebit  decimal.Decimal `json:"total_debit"`
	TotalCredit decimal.Decimal `json:"total_credit"`
	CreatedBy   int64           `json:"created_by"`
	PostedBy    *int64          `json:"posted_by,omitempty"`
	PostedAt    *time.Time      `json:"posted_at,omitempty"`
	VoidedBy    *int64          `json:"voided_by,omitempty"`
	VoidedAt    *time.Time      `json:"voided_at,omitempty"`
	VoidReason  string          `json:"void_reason,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Lines       []JournalLine   `json:"lines,omitempty"`
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID        int64           `json:"id"`
	EntryID   int64           `json:"entry_id"`
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo,omitempty"`
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Memo      string
}

// PostingRequest groups fields required to create a journal entry.
type PostingRequest struct {
	CompanyID   int64
	ActorID     int64
	Date        time.Time
	Description string
	SourceType  string
	SourceID    *int64
	// Prefix selects the reference family; Reference, when set, is used verbatim.
	Prefix    shared.ReferencePrefix
	Reference string
	Lines     []LineInput
}

// VoidInput wraps parameters for voiding.
type VoidInput struct {
	CompanyID int64
	EntryID   int64
	ActorID   int64
	Reason    string
}

// ProvisionResult reports what InitializeSystemAccounts created on this run.
type ProvisionResult struct {
	AccountsCreated   int `json:"accounts_created"`
	CategoriesCreated int `json:"categories_created"`
}

// IssueKind classifies integrity findings.
type IssueKind string

const (
	// IssueEntryTotals flags an entry whose stored debit and credit totals differ.
	IssueEntryTotals IssueKind = "ENTRY_TOTALS"
	// IssueEntryLines flags an entry whose stored totals differ from its lines.
	IssueEntryLines IssueKind = "ENTRY_LINES"
	// IssueBalanceDrift flags an account whose balance differs from its posted lines.
	IssueBalanceDrift IssueKind = "BALANCE_DRIFT"
)

// IntegrityIssue describes one ledger inconsistency.
type IntegrityIssue struct {
	Kind      IssueKind       `json:"kind"`
	EntryID   *int64          `json:"entry_id,omitempty"`
	AccountID *int64          `json:"account_id,omitempty"`
	Expected  decimal.Decimal `json:"expected"`
	Actual    decimal.Decimal `json:"actual"`
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = errors.New("accounting: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("accounting: journal requires at least two lines")
	// ErrInvalidLine indicates a malformed line.
	ErrInvalidLine = errors.New("accounting: invalid journal line")
	// ErrAlreadyPosted indicates a non-draft entry was posted again.
	ErrAlreadyPosted = errors.New("accounting: journal entry already posted")
	// ErrAlreadyVoided indicates the entry was voided before.
	ErrAlreadyVoided = errors.New("accounting: journal entry already voided")
	// ErrSourceAlreadyLinked indicates the business event already has an entry.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrSourceConflict indicates a concurrent posting linked the source first. The
	// insert failed, so the enclosing database transaction is aborted and must be
	// rolled back. It wraps ErrSourceAlreadyLinked.
	ErrSourceConflict = fmt.Errorf("accounting: concurrent posting for source: %w", ErrSourceAlreadyLinked)
	// ErrReferenceConflict indicates a duplicate reference.
	ErrReferenceConflict = errors.New("accounting: reference already used")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("accounting: journal entry %w", shared.ErrNotFound)
	// ErrAccountNotFound indicates an account id unknown to the company.
	ErrAccountNotFound = fmt.Errorf("accounting: account %w", shared.ErrNotFound)
	// ErrAccountNotConfigured indicates no account with the requested code exists.
	ErrAccountNotConfigured = errors.New("accounting: account not configured")
	// ErrCategoryNotFound indicates missing expense category.
	ErrCategoryNotFound = fmt.Errorf("accounting: expense category %w", shared.ErrNotFound)
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("accounting: validation failed")
)

// UnbalancedEntryError reports the totals of a rejected entry.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("%s: debit %s, credit %s", ErrUnbalanced, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalanced }

// AlreadyPostedError reports the status that blocked a post.
type AlreadyPostedError struct {
	EntryID int64
	Status  JournalStatus
}

func (e *AlreadyPostedError) Error() string {
	return fmt.Sprintf("%s: entry %d is %s", ErrAlreadyPosted, e.EntryID, e.Status)
}

func (e *AlreadyPostedError) Unwrap() error { return ErrAlreadyPosted }

// Validate ensures the request meets minimum criteria and returns its totals.
func (r PostingRequest) Validate() (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	if r.CompanyID == 0 {
		return debit, credit, fmt.Errorf("%w: company required", ErrValidation)
	}
	if r.Date.IsZero() {
		return debit, credit, fmt.Errorf("%w: date required", ErrValidation)
	}
	if len(r.Lines) < 2 {
		return debit, credit, ErrTooFewLines
	}
	for idx, line := range r.Lines {
		if line.AccountID == 0 {
			return debit, credit, fmt.Errorf("%w: line %d missing account", ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return debit, credit, fmt.Errorf("%w: line %d negative amount", ErrInvalidLine, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return debit, credit, fmt.Errorf("%w: line %d cannot be both debit and credit", ErrInvalidLine, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return debit, credit, fmt.Errorf("%w: line %d has no amount", ErrInvalidLine, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return debit, credit, &UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	if r.SourceID != nil && r.SourceType == "" {
		return debit, credit, fmt.Errorf("%w: source type required with source id", ErrValidation)
	}
	return debit, credit, nil
}

// balanceDelta converts a line into the signed change of the account balance.
func balanceDelta(t AccountType, debit, credit decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return debit.Sub(credit)
	}
	return credit.Sub(debit)
}
