package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
)

// Repository persists stock records and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	LockStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error)
	GetStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error)
	SetQuantity(ctx context.Context, recordID, quantity int64) error
	SetStockAlert(ctx context.Context, recordID, alert int64) error
	InsertMovement(ctx context.Context, movement StockMovement) (StockMovement, error)
	ListAlerts(ctx context.Context, companyID int64) ([]StockRecord, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn inside the unit of work carried by ctx, opening one when absent.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const stockColumns = `id, company_id, product_id, location_kind, location_id, quantity, stock_alert, updated_at`

func scanStock(row pgx.Row) (StockRecord, error) {
	var rec StockRecord
	err := row.Scan(&rec.ID, &rec.CompanyID, &rec.ProductID, &rec.Location.Kind, &rec.Location.ID, &rec.Quantity, &rec.StockAlert, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockRecord{}, ErrStockNotFound
		}
		return StockRecord{}, err
	}
	return rec, nil
}

// LockStock finds or creates the record and holds its row lock until the unit of work ends.
func (r *txRepository) LockStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error) {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_records (company_id, product_id, location_kind, location_id, quantity, stock_alert, updated_at)
VALUES ($1,$2,$3,$4,0,0,NOW())
ON CONFLICT ON CONSTRAINT uq_stock_records_location DO NOTHING`, companyID, productID, loc.Kind, loc.ID)
	if err != nil {
		return StockRecord{}, err
	}
	return scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock_records
WHERE company_id=$1 AND product_id=$2 AND location_kind=$3 AND location_id=$4 FOR UPDATE`, companyID, productID, loc.Kind, loc.ID))
}

func (r *txRepository) GetStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error) {
	return scanStock(r.tx.QueryRow(ctx, `SELECT `+stockColumns+` FROM stock_records
WHERE company_id=$1 AND product_id=$2 AND location_kind=$3 AND location_id=$4`, companyID, productID, loc.Kind, loc.ID))
}

func (r *txRepository) SetQuantity(ctx context.Context, recordID, quantity int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE stock_records SET quantity=$2, updated_at=NOW() WHERE id=$1`, recordID, quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *txRepository) SetStockAlert(ctx context.Context, recordID, alert int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE stock_records SET stock_alert=$2, updated_at=NOW() WHERE id=$1`, recordID, alert)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStockNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	srcKind, srcID := locationArgs(m.Source)
	dstKind, dstID := locationArgs(m.Destination)
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (company_id, reference, movement_type, product_id, quantity,
source_kind, source_id, destination_kind, destination_id, supply_request_id, transfer_id, unit_cost, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
RETURNING id`,
		m.CompanyID, m.Reference, m.Type, m.ProductID, m.Quantity,
		srcKind, srcID, dstKind, dstID, m.SupplyRequestID, m.TransferID, m.UnitCost, nullString(m.Note), m.CreatedBy, m.CreatedAt).Scan(&m.ID)
	if err != nil {
		return StockMovement{}, err
	}
	return m, nil
}

// ListAlerts returns records at or below their threshold or negative. A zero company
// lists every tenant.
func (r *txRepository) ListAlerts(ctx context.Context, companyID int64) ([]StockRecord, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+stockColumns+` FROM stock_records
WHERE ($1 = 0 OR company_id = $1) AND (quantity < 0 OR (stock_alert > 0 AND quantity <= stock_alert))
ORDER BY company_id, product_id, location_kind, location_id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []StockRecord
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *txRepository) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	clauses := []string{"company_id = $1"}
	args := []any{filter.CompanyID}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		clauses = append(clauses, fmt.Sprintf("product_id = $%d", len(args)))
	}
	if filter.Location != nil {
		args = append(args, filter.Location.Kind, filter.Location.ID)
		k, id := len(args)-1, len(args)
		clauses = append(clauses, fmt.Sprintf("((source_kind = $%d AND source_id = $%d) OR (destination_kind = $%d AND destination_id = $%d))", k, id, k, id))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT id, company_id, reference, movement_type, product_id, quantity, source_kind, source_id,
destination_kind, destination_id, supply_request_id, transfer_id, unit_cost, COALESCE(note, ''), created_by, created_at
FROM stock_movements WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d`, strings.Join(clauses, " AND "), len(args))
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var (
			m                StockMovement
			srcKind, dstKind *string
			srcID, dstID     *int64
		)
		if err := rows.Scan(&m.ID, &m.CompanyID, &m.Reference, &m.Type, &m.ProductID, &m.Quantity, &srcKind, &srcID,
			&dstKind, &dstID, &m.SupplyRequestID, &m.TransferID, &m.UnitCost, &m.Note, &m.CreatedBy, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Source = scanLocation(srcKind, srcID)
		m.Destination = scanLocation(dstKind, dstID)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func locationArgs(loc *Location) (any, any) {
	if loc == nil {
		return nil, nil
	}
	return string(loc.Kind), loc.ID
}

func scanLocation(kind *string, id *int64) *Location {
	if kind == nil || id == nil {
		return nil
	}
	return &Location{Kind: LocationKind(*kind), ID: *id}
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
