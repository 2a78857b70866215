package inventory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/observability"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

const idempotencyModule = "inventory"

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// LedgerHook books the financial effect of a loss or adjustment. It runs inside the
// movement's unit of work, so a failure undoes the stock change as well.
type LedgerHook interface {
	MovementRecorded(ctx context.Context, movement StockMovement) error
}

// IdempotencyPort guards against replayed movement requests.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, companyID int64, key, module string) error
}

// Service maintains stock quantities per product and location.
type Service struct {
	repo        RepositoryPort
	hook        LedgerHook
	idempotency IdempotencyPort
	refs        *shared.ReferenceGenerator
	metrics     *observability.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the inventory service.
func NewService(repo RepositoryPort, logger *slog.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		refs:    shared.NewReferenceGenerator(),
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// WithLedgerHook sets the hook called for financial movements.
func (s *Service) WithLedgerHook(hook LedgerHook) {
	s.hook = hook
}

// WithIdempotency enables idempotency keys on movements.
func (s *Service) WithIdempotency(store IdempotencyPort) {
	s.idempotency = store
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

// Adjust adds delta to the stock of a product at a location, creating the record on
// first use. The result may be negative.
func (s *Service) Adjust(ctx context.Context, companyID, productID int64, loc Location, delta int64) (StockRecord, error) {
	if companyID <= 0 || productID <= 0 || !loc.valid() {
		return StockRecord{}, ErrInvalidMovement
	}
	var record StockRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		record, err = s.apply(ctx, tx, companyID, productID, stockDelta{Location: loc, Delta: delta})
		return err
	})
	if err != nil {
		return StockRecord{}, err
	}
	return record, nil
}

// RecordMovement applies a typed movement and logs it. The locations of one movement
// are locked in a fixed order; callers recording several movements in one unit of work
// must order them by product themselves.
func (s *Service) RecordMovement(ctx context.Context, in MovementInput) (StockMovement, error) {
	deltas, err := in.deltas()
	if err != nil {
		return StockMovement{}, err
	}
	sort.Slice(deltas, func(i, j int) bool {
		a, b := deltas[i].Location, deltas[j].Location
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.ID < b.ID
	})
	var movement StockMovement
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.IdempotencyKey != "" && s.idempotency != nil {
			if err := s.idempotency.CheckAndInsert(ctx, in.CompanyID, in.IdempotencyKey, idempotencyModule); err != nil {
				return err
			}
		}
		for _, d := range deltas {
			if _, err := s.apply(ctx, tx, in.CompanyID, in.ProductID, d); err != nil {
				return err
			}
		}
		var err error
		movement, err = tx.InsertMovement(ctx, StockMovement{
			CompanyID:       in.CompanyID,
			Reference:       s.refs.Next(shared.PrefixStockMovement),
			Type:            in.Type,
			ProductID:       in.ProductID,
			Quantity:        in.Quantity,
			Source:          in.Source,
			Destination:     in.Destination,
			SupplyRequestID: in.SupplyRequestID,
			TransferID:      in.TransferID,
			UnitCost:        in.UnitCost,
			Note:            in.Note,
			CreatedBy:       in.ActorID,
			CreatedAt:       s.now().UTC(),
		})
		if err != nil {
			return err
		}
		if in.Type.Financial() && s.hook != nil {
			return s.hook.MovementRecorded(ctx, movement)
		}
		return nil
	})
	if err != nil {
		return StockMovement{}, err
	}
	s.metrics.MovementApplied(string(in.Type))
	return movement, nil
}

// GetStock returns the stock record of a product at a location.
func (s *Service) GetStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error) {
	var record StockRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		record, err = tx.GetStock(ctx, companyID, productID, loc)
		return err
	})
	return record, err
}

// SetStockAlert sets the low stock threshold of a record, creating it when needed.
func (s *Service) SetStockAlert(ctx context.Context, companyID, productID int64, loc Location, alert int64) (StockRecord, error) {
	if alert < 0 {
		return StockRecord{}, ErrInvalidQuantity
	}
	if companyID <= 0 || productID <= 0 || !loc.valid() {
		return StockRecord{}, ErrInvalidMovement
	}
	var record StockRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		record, err = tx.LockStock(ctx, companyID, productID, loc)
		if err != nil {
			return err
		}
		if err := tx.SetStockAlert(ctx, record.ID, alert); err != nil {
			return err
		}
		record.StockAlert = alert
		return nil
	})
	if err != nil {
		return StockRecord{}, err
	}
	return record, nil
}

// ListAlerts lists records of a company at or below their alert threshold or negative.
func (s *Service) ListAlerts(ctx context.Context, companyID int64) ([]StockRecord, error) {
	if companyID <= 0 {
		return nil, errors.New("inventory: company required")
	}
	return s.listAlerts(ctx, companyID)
}

// ListAllAlerts lists alerting records of every company.
func (s *Service) ListAllAlerts(ctx context.Context) ([]StockRecord, error) {
	return s.listAlerts(ctx, 0)
}

// ListMovements lists the most recent movements matching filter.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	if filter.CompanyID <= 0 {
		return nil, errors.New("inventory: company required")
	}
	var movements []StockMovement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		movements, err = tx.ListMovements(ctx, filter)
		return err
	})
	return movements, err
}

func (s *Service) listAlerts(ctx context.Context, companyID int64) ([]StockRecord, error) {
	var records []StockRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		records, err = tx.ListAlerts(ctx, companyID)
		return err
	})
	return records, err
}

func (s *Service) apply(ctx context.Context, tx TxRepository, companyID, productID int64, d stockDelta) (StockRecord, error) {
	record, err := tx.LockStock(ctx, companyID, productID, d.Location)
	if err != nil {
		return StockRecord{}, err
	}
	record.Quantity += d.Delta
	if err := tx.SetQuantity(ctx, record.ID, record.Quantity); err != nil {
		return StockRecord{}, err
	}
	if record.Quantity < 0 {
		s.logger.Warn("stock below zero",
			slog.Int64("company_id", companyID),
			slog.Int64("product_id", productID),
			slog.String("location", d.Location.String()),
			slog.Int64("quantity", record.Quantity))
		s.metrics.NegativeStock()
	}
	return record, nil
}
