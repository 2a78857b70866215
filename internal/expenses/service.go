package expenses

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/observability"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

const approvalModule = "expense"

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// ApprovalPort stores the approval history of an expense.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// CategoryPort resolves expense categories of a company.
type CategoryPort interface {
	GetExpenseCategory(ctx context.Context, companyID, categoryID int64) (accounting.ExpenseCategory, error)
}

// Journalizer books an approved expense in the ledger. It returns a nil entry id when
// the company ledger is not configured, which is not an error.
type Journalizer interface {
	JournalizeExpense(ctx context.Context, expense Expense, actorID int64) (*int64, error)
}

// Service implements the expense workflow.
type Service struct {
	repo        RepositoryPort
	categories  CategoryPort
	approvals   ApprovalPort
	journalizer Journalizer
	refs        *shared.ReferenceGenerator
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the expense service.
func NewService(repo RepositoryPort, categories CategoryPort, approvals ApprovalPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		categories: categories,
		approvals:  approvals,
		refs:       shared.NewReferenceGenerator(),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// WithJournalizer sets the ledger adapter used on approval.
func (s *Service) WithJournalizer(j Journalizer) {
	s.journalizer = j
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithReferences overrides the reference generator.
func (s *Service) WithReferences(refs *shared.ReferenceGenerator) {
	if refs != nil {
		s.refs = refs
	}
}

// Create stores a manual DRAFT expense.
func (s *Service) Create(ctx context.Context, in CreateInput) (Expense, error) {
	if err := in.validate(); err != nil {
		return Expense{}, err
	}
	if err := s.ensureCategory(ctx, in.CompanyID, in.CategoryID); err != nil {
		return Expense{}, err
	}
	var created Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, Expense{
			CompanyID:   in.CompanyID,
			Reference:   s.refs.Next(shared.PrefixExpense),
			CategoryID:  in.CategoryID,
			Amount:      in.Amount,
			Description: in.Description,
			ExpenseDate: in.ExpenseDate,
			Status:      StatusDraft,
			Origin:      OriginManual,
			CreatedBy:   in.ActorID,
		})
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	return created, nil
}

// RecordAutomatic stores an APPROVED expense already linked to its journal entry.
func (s *Service) RecordAutomatic(ctx context.Context, in AutomaticInput) (Expense, error) {
	if err := in.validate(); err != nil {
		return Expense{}, err
	}
	prefix := in.Prefix
	if prefix == "" {
		prefix = shared.PrefixExpense
	}
	date := in.ExpenseDate
	if date.IsZero() {
		date = s.now()
	}
	now := s.now()
	entryID := in.JournalEntryID
	actor := in.ActorID
	var created Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Insert(ctx, Expense{
			CompanyID:      in.CompanyID,
			Reference:      s.refs.Next(prefix),
			CategoryID:     in.CategoryID,
			Amount:         in.Amount,
			Description:    in.Description,
			ExpenseDate:    date,
			Status:         StatusApproved,
			Origin:         in.Origin,
			SourceID:       in.SourceID,
			JournalEntryID: &entryID,
			CreatedBy:      in.ActorID,
			ApprovedBy:     &actor,
			ApprovedAt:     &now,
		})
		return err
	})
	if err != nil {
		return Expense{}, err
	}
	return created, nil
}

// Submit moves a DRAFT expense to PENDING.
func (s *Service) Submit(ctx context.Context, companyID, actorID, expenseID int64) (Expense, error) {
	return s.transition(ctx, companyID, actorID, expenseID, shared.ApprovalSubmit, "", func(ctx context.Context, e *Expense, now time.Time) error {
		if e.Status != StatusDraft {
			return fmt.Errorf("%w: submit requires DRAFT, got %s", ErrInvalidState, e.Status)
		}
		e.Status = StatusPending
		e.SubmittedBy = &actorID
		e.SubmittedAt = &now
		return nil
	})
}

// Approve moves a PENDING expense to APPROVED and books it in the ledger within the
// same unit of work.
func (s *Service) Approve(ctx context.Context, companyID, actorID, expenseID int64) (Expense, error) {
	return s.transition(ctx, companyID, actorID, expenseID, shared.ApprovalApprove, "", func(ctx context.Context, e *Expense, now time.Time) error {
		if e.Status != StatusPending {
			return fmt.Errorf("%w: approve requires PENDING, got %s", ErrInvalidState, e.Status)
		}
		e.Status = StatusApproved
		e.ApprovedBy = &actorID
		e.ApprovedAt = &now
		if s.journalizer == nil || e.Journalized() {
			return nil
		}
		entryID, err := s.journalizer.JournalizeExpense(ctx, *e, actorID)
		if err != nil {
			return err
		}
		e.JournalEntryID = entryID
		return nil
	})
}

// Reject moves a PENDING expense to REJECTED.
func (s *Service) Reject(ctx context.Context, companyID, actorID, expenseID int64, reason string) (Expense, error) {
	return s.transition(ctx, companyID, actorID, expenseID, shared.ApprovalReject, reason, func(ctx context.Context, e *Expense, now time.Time) error {
		if e.Status != StatusPending {
			return fmt.Errorf("%w: reject requires PENDING, got %s", ErrInvalidState, e.Status)
		}
		e.Status = StatusRejected
		e.RejectedBy = &actorID
		e.RejectedAt = &now
		e.RejectReason = reason
		return nil
	})
}

// Archive soft deletes an expense. Approved expenses stay in the books.
func (s *Service) Archive(ctx context.Context, companyID, actorID, expenseID int64) (Expense, error) {
	now := s.now()
	var archived Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, companyID, expenseID)
		if err != nil {
			return err
		}
		if current.Status == StatusApproved {
			return fmt.Errorf("%w: approved expenses cannot be deleted", ErrInvalidState)
		}
		if current.ArchivedAt != nil {
			archived = current
			return nil
		}
		current.ArchivedAt = &now
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		archived = current
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	s.logger.Info("expense archived", slog.Int64("company_id", companyID), slog.Int64("expense_id", expenseID), slog.Int64("actor_id", actorID))
	return archived, nil
}

// Get loads an expense.
func (s *Service) Get(ctx context.Context, companyID, expenseID int64) (Expense, error) {
	var expense Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		expense, err = tx.Get(ctx, companyID, expenseID)
		return err
	})
	return expense, err
}

func (s *Service) transition(ctx context.Context, companyID, actorID, expenseID int64, action shared.ApprovalAction, note string, apply func(context.Context, *Expense, time.Time) error) (Expense, error) {
	now := s.now()
	var updated Expense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, companyID, expenseID)
		if err != nil {
			return err
		}
		if current.ArchivedAt != nil {
			return fmt.Errorf("%w: expense archived", ErrInvalidState)
		}
		if err := apply(ctx, &current, now); err != nil {
			return err
		}
		if err := tx.Update(ctx, current); err != nil {
			return err
		}
		if s.approvals != nil {
			if err := s.approvals.Record(ctx, shared.ApprovalLog{
				CompanyID: companyID,
				Module:    approvalModule,
				RefID:     current.ID,
				ActorID:   actorID,
				Action:    action,
				Note:      note,
				At:        now,
			}); err != nil {
				return err
			}
		}
		updated = current
		return nil
	})
	if err != nil {
		return Expense{}, err
	}
	s.metrics.Transition(approvalModule, string(action))
	return updated, nil
}

func (s *Service) ensureCategory(ctx context.Context, companyID, categoryID int64) error {
	if s.categories == nil {
		return nil
	}
	_, err := s.categories.GetExpenseCategory(ctx, companyID, categoryID)
	return err
}
