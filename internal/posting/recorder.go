package posting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/expenses"
	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/observability"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// Ledger is the part of the accounting service the recorder books into.
type Ledger interface {
	HasSystemAccounts(ctx context.Context, companyID int64) (bool, error)
	ResolveAccount(ctx context.Context, companyID int64, code string) (accounting.AccountRef, error)
	CategoryAccount(ctx context.Context, companyID, categoryID int64) (accounting.AccountRef, bool, error)
	ExpenseCategoryByCode(ctx context.Context, companyID int64, code string) (accounting.ExpenseCategory, error)
	Post(ctx context.Context, req accounting.PostingRequest) (accounting.JournalEntry, error)
}

// ExpenseRecorder stores automatic expenses.
type ExpenseRecorder interface {
	RecordAutomatic(ctx context.Context, in expenses.AutomaticInput) (expenses.Expense, error)
}

// Transactor opens a unit of work shared by the ledger and expense stores.
type Transactor interface {
	RunInTx(ctx context.Context, fn func(context.Context) error) error
}

// Result reports what recording an event produced. The zero value means nothing was
// posted, either because the company ledger is not provisioned or the event has no
// ledger effect.
type Result struct {
	Posted    bool                     `json:"posted"`
	Duplicate bool                     `json:"duplicate,omitempty"`
	Entry     *accounting.JournalEntry `json:"entry,omitempty"`
	Expense   *expenses.Expense        `json:"expense,omitempty"`
}

// Recorder books business events in the ledger.
type Recorder struct {
	ledger   Ledger
	expenses ExpenseRecorder
	tx       Transactor
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

var (
	_ inventory.LedgerHook = (*Recorder)(nil)
	_ expenses.Journalizer = (*Recorder)(nil)
)

// NewRecorder constructs a Recorder. tx may be nil when the ledger and expense stores
// already share the caller's unit of work.
func NewRecorder(ledger Ledger, expenseRecorder ExpenseRecorder, tx Transactor, logger *slog.Logger, metrics *observability.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ledger:   ledger,
		expenses: expenseRecorder,
		tx:       tx,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (r *Recorder) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Record translates ev and posts the result together with its automatic expense.
func (r *Recorder) Record(ctx context.Context, companyID, actorID int64, ev Event) (Result, error) {
	if ev == nil {
		return Result{}, ErrUnknownEvent
	}
	kind := ev.Kind()
	ready, err := r.ledger.HasSystemAccounts(ctx, companyID)
	if err != nil {
		return Result{}, err
	}
	if !ready {
		r.logger.Debug("ledger not provisioned, event skipped",
			slog.Int64("company_id", companyID), slog.String("kind", kind), slog.Int64("source_id", ev.Source()))
		r.metrics.EventRecorded(kind, "not_configured")
		return Result{}, nil
	}

	var result Result
	err = r.runInTx(ctx, func(ctx context.Context) error {
		result = Result{}
		t, err := Translate(ev, &ledgerLookup{ctx: ctx, ledger: r.ledger, companyID: companyID})
		if err != nil || t == nil {
			return err
		}
		return r.book(ctx, companyID, actorID, t, &result)
	})
	if err != nil {
		r.metrics.EventRecorded(kind, "failed")
		if errors.Is(err, ErrAccountMissing) {
			r.logger.Error("provisioned ledger lacks a system account",
				slog.Int64("company_id", companyID), slog.String("kind", kind), slog.Any("error", err))
		}
		return Result{}, err
	}
	switch {
	case result.Duplicate:
		r.metrics.EventRecorded(kind, "duplicate")
	case result.Posted:
		r.metrics.EventRecorded(kind, "posted")
	default:
		r.metrics.EventRecorded(kind, "not_applicable")
	}
	return result, nil
}

func (r *Recorder) book(ctx context.Context, companyID, actorID int64, t *Translation, result *Result) error {
	date := t.Date
	if date.IsZero() {
		date = r.now()
	}
	sourceID := t.SourceID
	entry, err := r.ledger.Post(ctx, accounting.PostingRequest{
		CompanyID:   companyID,
		ActorID:     actorID,
		Date:        date,
		Description: t.Description,
		SourceType:  t.SourceType,
		SourceID:    &sourceID,
		Prefix:      t.Prefix,
		Lines:       t.Lines,
	})
	if errors.Is(err, accounting.ErrSourceAlreadyLinked) && !errors.Is(err, accounting.ErrSourceConflict) {
		result.Duplicate = true
		return nil
	}
	if err != nil {
		return err
	}
	result.Posted = true
	result.Entry = &entry
	if t.Expense == nil || r.expenses == nil {
		return nil
	}
	category, err := r.ledger.ExpenseCategoryByCode(ctx, companyID, t.Expense.CategoryCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: expense category %s", ErrAccountMissing, t.Expense.CategoryCode)
		}
		return err
	}
	expense, err := r.expenses.RecordAutomatic(ctx, expenses.AutomaticInput{
		CompanyID:      companyID,
		ActorID:        actorID,
		CategoryID:     category.ID,
		Amount:         t.Expense.Amount,
		Description:    t.Expense.Description,
		ExpenseDate:    date,
		Origin:         t.Expense.Origin,
		SourceID:       &sourceID,
		JournalEntryID: entry.ID,
		Prefix:         t.Prefix,
	})
	if err != nil {
		return err
	}
	result.Expense = &expense
	return nil
}

// MovementRecorded books losses and adjustments as they are written to the stock ledger.
func (r *Recorder) MovementRecorded(ctx context.Context, m inventory.StockMovement) error {
	_, err := r.Record(ctx, m.CompanyID, m.CreatedBy, StockMovement{
		ID:        m.ID,
		Type:      m.Type,
		ProductID: m.ProductID,
		Quantity:  m.Quantity,
		UnitCost:  m.UnitCost,
		Date:      m.CreatedAt,
	})
	return err
}

// JournalizeExpense books a manually approved expense and returns its entry id, or nil
// when the company ledger is not provisioned.
func (r *Recorder) JournalizeExpense(ctx context.Context, e expenses.Expense, actorID int64) (*int64, error) {
	result, err := r.Record(ctx, e.CompanyID, actorID, ApprovedExpense{
		ID:             e.ID,
		CategoryID:     e.CategoryID,
		Amount:         e.Amount,
		Date:           e.ExpenseDate,
		Description:    e.Description,
		Reference:      e.Reference,
		JournalEntryID: e.JournalEntryID,
	})
	if err != nil {
		return nil, err
	}
	if result.Duplicate {
		return nil, fmt.Errorf("%w: expense %d", accounting.ErrSourceAlreadyLinked, e.ID)
	}
	if result.Entry == nil {
		return nil, nil
	}
	id := result.Entry.ID
	return &id, nil
}

func (r *Recorder) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.RunInTx(ctx, fn)
}

type ledgerLookup struct {
	ctx       context.Context
	ledger    Ledger
	companyID int64
}

func (l *ledgerLookup) ByCode(code string) (int64, error) {
	ref, err := l.ledger.ResolveAccount(l.ctx, l.companyID, code)
	if err != nil {
		if accounting.IsNotConfigured(err) {
			return 0, fmt.Errorf("%w: %s", ErrAccountMissing, code)
		}
		return 0, err
	}
	return ref.ID, nil
}

func (l *ledgerLookup) ForCategory(categoryID int64) (int64, bool, error) {
	ref, linked, err := l.ledger.CategoryAccount(l.ctx, l.companyID, categoryID)
	if err != nil {
		return 0, false, err
	}
	return ref.ID, linked, nil
}
