package movements

import (
	"context"
	"log/slog"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/observability"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

const (
	moduleSupplyRequest = "supply_request"
	moduleTransfer      = "transfer"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// StockPort applies stock movements within the caller's unit of work.
type StockPort interface {
	RecordMovement(ctx context.Context, in inventory.MovementInput) (inventory.StockMovement, error)
}

// ApprovalPort stores the workflow history of a document.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Service drives supply requests and transfers.
type Service struct {
	repo      RepositoryPort
	stock     StockPort
	approvals ApprovalPort
	refs      *shared.ReferenceGenerator
	metrics   *observability.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the movements service.
func NewService(repo RepositoryPort, stock StockPort, approvals ApprovalPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		stock:     stock,
		approvals: approvals,
		refs:      shared.NewReferenceGenerator(),
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
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

func (s *Service) logStep(ctx context.Context, module string, companyID, refID, actorID int64, action shared.ApprovalAction, note string, at time.Time) error {
	if s.approvals == nil {
		return nil
	}
	return s.approvals.Record(ctx, shared.ApprovalLog{
		CompanyID: companyID,
		Module:    module,
		RefID:     refID,
		ActorID:   actorID,
		Action:    action,
		Note:      note,
		At:        at,
	})
}

func (s *Service) transitioned(module string, action shared.ApprovalAction, companyID, refID, actorID int64) {
	s.metrics.Transition(module, string(action))
	s.logger.Info("movement document transitioned",
		slog.String("document", module),
		slog.String("action", string(action)),
		slog.Int64("company_id", companyID),
		slog.Int64("id", refID),
		slog.Int64("actor_id", actorID))
}
