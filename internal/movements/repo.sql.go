package movements

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/db"
)

// Repository persists supply requests and transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertSupplyRequest(ctx context.Context, req SupplyRequest) (SupplyRequest, error)
	GetSupplyRequest(ctx context.Context, companyID, id int64) (SupplyRequest, error)
	GetSupplyRequestForUpdate(ctx context.Context, companyID, id int64) (SupplyRequest, error)
	UpdateSupplyRequest(ctx context.Context, req SupplyRequest) error

	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransfer(ctx context.Context, companyID, id int64) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, companyID, id int64) (Transfer, error)
	UpdateTransfer(ctx context.Context, t Transfer) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn inside the unit of work carried by ctx, opening one when absent.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("movements repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const supplyColumns = `id, company_id, reference, source_warehouse_id, destination_kind, destination_id, company_bears_costs,
status, COALESCE(note, ''), COALESCE(reject_reason, ''), created_by, created_at, approved_by, approved_at, rejected_by, rejected_at,
delivered_by, delivered_at, received_by, received_at`

func (r *txRepository) InsertSupplyRequest(ctx context.Context, req SupplyRequest) (SupplyRequest, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO supply_requests (company_id, reference, source_warehouse_id, destination_kind, destination_id,
company_bears_costs, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id`,
		req.CompanyID, req.Reference, req.SourceWarehouseID, req.Destination.Kind, req.Destination.ID,
		req.CompanyBearsCosts, req.Status, nullString(req.Note), req.CreatedBy, req.CreatedAt).Scan(&req.ID)
	if err != nil {
		return SupplyRequest{}, err
	}
	for i := range req.Items {
		item := &req.Items[i]
		item.RequestID = req.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO supply_request_items (request_id, product_id, unit_cost, quantity_requested)
VALUES ($1,$2,$3,$4) RETURNING id`, req.ID, item.ProductID, item.UnitCost, item.QuantityRequested).Scan(&item.ID); err != nil {
			return SupplyRequest{}, err
		}
	}
	return req, nil
}

func (r *txRepository) GetSupplyRequest(ctx context.Context, companyID, id int64) (SupplyRequest, error) {
	return r.loadSupplyRequest(ctx, companyID, id, "")
}

// GetSupplyRequestForUpdate locks the header row until the unit of work ends.
func (r *txRepository) GetSupplyRequestForUpdate(ctx context.Context, companyID, id int64) (SupplyRequest, error) {
	return r.loadSupplyRequest(ctx, companyID, id, " FOR UPDATE")
}

func (r *txRepository) loadSupplyRequest(ctx context.Context, companyID, id int64, lock string) (SupplyRequest, error) {
	var req SupplyRequest
	err := r.tx.QueryRow(ctx, `SELECT `+supplyColumns+` FROM supply_requests WHERE company_id=$1 AND id=$2`+lock, companyID, id).Scan(
		&req.ID, &req.CompanyID, &req.Reference, &req.SourceWarehouseID, &req.Destination.Kind, &req.Destination.ID, &req.CompanyBearsCosts,
		&req.Status, &req.Note, &req.RejectReason, &req.CreatedBy, &req.CreatedAt, &req.Approved.By, &req.Approved.At,
		&req.Rejected.By, &req.Rejected.At, &req.Delivered.By, &req.Delivered.At, &req.Received.By, &req.Received.At)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupplyRequest{}, ErrSupplyRequestNotFound
		}
		return SupplyRequest{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, request_id, product_id, unit_cost, quantity_requested, quantity_delivered,
quantity_received, COALESCE(discrepancy_note, '')
FROM supply_request_items WHERE request_id=$1 ORDER BY id`, req.ID)
	if err != nil {
		return SupplyRequest{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item SupplyItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ProductID, &item.UnitCost, &item.QuantityRequested,
			&item.QuantityDelivered, &item.QuantityReceived, &item.DiscrepancyNote); err != nil {
			return SupplyRequest{}, err
		}
		req.Items = append(req.Items, item)
	}
	return req, rows.Err()
}

func (r *txRepository) UpdateSupplyRequest(ctx context.Context, req SupplyRequest) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE supply_requests SET status=$3, reject_reason=$4,
approved_by=$5, approved_at=$6, rejected_by=$7, rejected_at=$8, delivered_by=$9, delivered_at=$10, received_by=$11, received_at=$12
WHERE company_id=$1 AND id=$2`,
		req.CompanyID, req.ID, req.Status, nullString(req.RejectReason),
		req.Approved.By, req.Approved.At, req.Rejected.By, req.Rejected.At,
		req.Delivered.By, req.Delivered.At, req.Received.By, req.Received.At)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSupplyRequestNotFound
	}
	for _, item := range req.Items {
		if _, err := r.tx.Exec(ctx, `UPDATE supply_request_items SET quantity_delivered=$2, quantity_received=$3, discrepancy_note=$4
WHERE id=$1`, item.ID, item.QuantityDelivered, item.QuantityReceived, nullString(item.DiscrepancyNote)); err != nil {
			return err
		}
	}
	return nil
}

const transferColumns = `id, company_id, reference, source_warehouse_id, destination_kind, destination_id, vehicle_id, driver_id,
company_bears_costs, status, COALESCE(note, ''), COALESCE(reject_reason, ''), created_by, created_at, approved_by, approved_at,
rejected_by, rejected_at, shipped_by, shipped_at, delivered_by, delivered_at, received_by, received_at`

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (company_id, reference, source_warehouse_id, destination_kind, destination_id,
vehicle_id, driver_id, company_bears_costs, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
RETURNING id`,
		t.CompanyID, t.Reference, t.SourceWarehouseID, t.Destination.Kind, t.Destination.ID,
		t.VehicleID, t.DriverID, t.CompanyBearsCosts, t.Status, nullString(t.Note), t.CreatedBy, t.CreatedAt).Scan(&t.ID)
	if err != nil {
		return Transfer{}, err
	}
	for i := range t.Items {
		item := &t.Items[i]
		item.TransferID = t.ID
		if err := r.tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, product_id, unit_cost, quantity_requested)
VALUES ($1,$2,$3,$4) RETURNING id`, t.ID, item.ProductID, item.UnitCost, item.QuantityRequested).Scan(&item.ID); err != nil {
			return Transfer{}, err
		}
	}
	return t, nil
}

func (r *txRepository) GetTransfer(ctx context.Context, companyID, id int64) (Transfer, error) {
	return r.loadTransfer(ctx, companyID, id, "")
}

// GetTransferForUpdate locks the header row until the unit of work ends.
func (r *txRepository) GetTransferForUpdate(ctx context.Context, companyID, id int64) (Transfer, error) {
	return r.loadTransfer(ctx, companyID, id, " FOR UPDATE")
}

func (r *txRepository) loadTransfer(ctx context.Context, companyID, id int64, lock string) (Transfer, error) {
	var t Transfer
	err := r.tx.QueryRow(ctx, `SELECT `+transferColumns+` FROM transfers WHERE company_id=$1 AND id=$2`+lock, companyID, id).Scan(
		&t.ID, &t.CompanyID, &t.Reference, &t.SourceWarehouseID, &t.Destination.Kind, &t.Destination.ID, &t.VehicleID, &t.DriverID,
		&t.CompanyBearsCosts, &t.Status, &t.Note, &t.RejectReason, &t.CreatedBy, &t.CreatedAt, &t.Approved.By, &t.Approved.At,
		&t.Rejected.By, &t.Rejected.At, &t.Shipped.By, &t.Shipped.At, &t.Delivered.By, &t.Delivered.At, &t.Received.By, &t.Received.At)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, ErrTransferNotFound
		}
		return Transfer{}, err
	}
	rows, err := r.tx.Query(ctx, `SELECT id, transfer_id, product_id, unit_cost, quantity_requested, quantity_shipped,
quantity_received, COALESCE(discrepancy_note, '')
FROM transfer_items WHERE transfer_id=$1 ORDER BY id`, t.ID)
	if err != nil {
		return Transfer{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TransferItem
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.UnitCost, &item.QuantityRequested,
			&item.QuantityShipped, &item.QuantityReceived, &item.DiscrepancyNote); err != nil {
			return Transfer{}, err
		}
		t.Items = append(t.Items, item)
	}
	return t, rows.Err()
}

func (r *txRepository) UpdateTransfer(ctx context.Context, t Transfer) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$3, reject_reason=$4,
approved_by=$5, approved_at=$6, rejected_by=$7, rejected_at=$8, shipped_by=$9, shipped_at=$10,
delivered_by=$11, delivered_at=$12, received_by=$13, received_at=$14
WHERE company_id=$1 AND id=$2`,
		t.CompanyID, t.ID, t.Status, nullString(t.RejectReason),
		t.Approved.By, t.Approved.At, t.Rejected.By, t.Rejected.At, t.Shipped.By, t.Shipped.At,
		t.Delivered.By, t.Delivered.At, t.Received.By, t.Received.At)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	for _, item := range t.Items {
		if _, err := r.tx.Exec(ctx, `UPDATE transfer_items SET quantity_shipped=$2, quantity_received=$3, discrepancy_note=$4
WHERE id=$1`, item.ID, item.QuantityShipped, item.QuantityReceived, nullString(item.DiscrepancyNote)); err != nil {
			return err
		}
	}
	return nil
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
