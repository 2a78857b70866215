package expenses

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// Status enumerates expense workflow states.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Origin identifies what produced an expense.
type Origin string

const (
	OriginManual         Origin = "MANUAL"
	OriginFuelLog        Origin = "FUEL_LOG"
	OriginStockMovement  Origin = "STOCK_MOVEMENT"
	OriginLogisticCharge Origin = "LOGISTIC_CHARGE"
)

// Expense is a cash outflow document. Once JournalEntryID is set the expense is never
// journalised again.
type Expense struct {
	ID             int64           `json:"id"`
	CompanyID      int64           `json:"company_id"`
	Reference      string          `json:"reference"`
	CategoryID     int64           `json:"category_id"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	ExpenseDate    time.Time       `json:"expense_date"`
	Status         Status          `json:"status"`
	Origin         Origin          `json:"origin"`
	SourceID       *int64          `json:"source_id,omitempty"`
	JournalEntryID *int64          `json:"journal_entry_id,omitempty"`
	CreatedBy      int64           `json:"created_by"`
	SubmittedBy    *int64          `json:"submitted_by,omitempty"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	ApprovedBy     *int64          `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	RejectedBy     *int64          `json:"rejected_by,omitempty"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	ArchivedAt     *time.Time      `json:"archived_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Journalized reports whether a journal entry already records the expense.
func (e Expense) Journalized() bool {
	return e.JournalEntryID != nil
}

// CreateInput holds a manual expense.
type CreateInput struct {
	CompanyID   int64
	ActorID     int64
	CategoryID  int64
	Amount      decimal.Decimal
	Description string
	ExpenseDate time.Time
}

// AutomaticInput holds an expense generated from a posted business event.
type AutomaticInput struct {
	CompanyID      int64
	ActorID        int64
	CategoryID     int64
	Amount         decimal.Decimal
	Description    string
	ExpenseDate    time.Time
	Origin         Origin
	SourceID       *int64
	JournalEntryID int64
	Prefix         shared.ReferencePrefix
}

var (
	// ErrNotFound indicates a missing expense, including one owned by another company.
	ErrNotFound = fmt.Errorf("expenses: expense %w", shared.ErrNotFound)
	// ErrInvalidState indicates a transition not allowed from the current status.
	ErrInvalidState = errors.New("expenses: invalid state transition")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("expenses: validation failed")
)

func (in CreateInput) validate() error {
	switch {
	case in.CompanyID == 0:
		return fmt.Errorf("%w: company required", ErrValidation)
	case in.CategoryID == 0:
		return fmt.Errorf("%w: category required", ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case in.ExpenseDate.IsZero():
		return fmt.Errorf("%w: expense date required", ErrValidation)
	}
	return nil
}

func (in AutomaticInput) validate() error {
	switch {
	case in.CompanyID == 0:
		return fmt.Errorf("%w: company required", ErrValidation)
	case in.CategoryID == 0:
		return fmt.Errorf("%w: category required", ErrValidation)
	case !in.Amount.IsPositive():
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	case in.JournalEntryID == 0:
		return fmt.Errorf("%w: journal entry required", ErrValidation)
	case in.Origin == "" || in.Origin == OriginManual:
		return fmt.Errorf("%w: automatic origin required", ErrValidation)
	}
	return nil
}
