package expenses

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
)

// Repository persists expenses in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	Insert(ctx context.Context, expense Expense) (Expense, error)
	Get(ctx context.Context, companyID, expenseID int64) (Expense, error)
	GetForUpdate(ctx context.Context, companyID, expenseID int64) (Expense, error)
	Update(ctx context.Context, expense Expense) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within the unit of work carried by ctx, opening one when absent.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("expenses repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const expenseColumns = `id, company_id, reference, category_id, amount, description, expense_date, status, origin, source_id,
journal_entry_id, created_by, submitted_by, submitted_at, approved_by, approved_at, rejected_by, rejected_at,
COALESCE(reject_reason, ''), archived_at, created_at, updated_at`

func scanExpense(row pgx.Row) (Expense, error) {
	var e Expense
	err := row.Scan(&e.ID, &e.CompanyID, &e.Reference, &e.CategoryID, &e.Amount, &e.Description, &e.ExpenseDate, &e.Status, &e.Origin, &e.SourceID,
		&e.JournalEntryID, &e.CreatedBy, &e.SubmittedBy, &e.SubmittedAt, &e.ApprovedBy, &e.ApprovedAt, &e.RejectedBy, &e.RejectedAt,
		&e.RejectReason, &e.ArchivedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Expense{}, ErrNotFound
		}
		return Expense{}, err
	}
	return e, nil
}

func (r *txRepository) Insert(ctx context.Context, e Expense) (Expense, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO expenses (company_id, reference, category_id, amount, description, expense_date, status, origin,
source_id, journal_entry_id, created_by, approved_by, approved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
RETURNING id, created_at, updated_at`,
		e.CompanyID, e.Reference, e.CategoryID, e.Amount, e.Description, e.ExpenseDate, e.Status, e.Origin,
		e.SourceID, e.JournalEntryID, e.CreatedBy, e.ApprovedBy, e.ApprovedAt).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return Expense{}, err
	}
	return e, nil
}

func (r *txRepository) Get(ctx context.Context, companyID, expenseID int64) (Expense, error) {
	return scanExpense(r.tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE company_id=$1 AND id=$2`, companyID, expenseID))
}

func (r *txRepository) GetForUpdate(ctx context.Context, companyID, expenseID int64) (Expense, error) {
	return scanExpense(r.tx.QueryRow(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE company_id=$1 AND id=$2 FOR UPDATE`, companyID, expenseID))
}

// Update writes the workflow fields. The journal link is only ever set once.
func (r *txRepository) Update(ctx context.Context, e Expense) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE expenses SET status=$3, journal_entry_id=COALESCE(journal_entry_id, $4),
submitted_by=$5, submitted_at=$6, approved_by=$7, approved_at=$8, rejected_by=$9, rejected_at=$10, reject_reason=$11,
archived_at=$12, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		e.CompanyID, e.ID, e.Status, e.JournalEntryID, e.SubmittedBy, e.SubmittedAt, e.ApprovedBy, e.ApprovedAt,
		e.RejectedBy, e.RejectedAt, e.RejectReason, e.ArchivedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
