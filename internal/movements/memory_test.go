package movements

import (
	"context"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// world holds every fake store behind one lock so a failed unit of work can restore
// documents, stock and approvals together.
type world struct {
	mu        sync.Mutex
	nextID    int64
	supply    map[int64]SupplyRequest
	transfers map[int64]Transfer
	stock     map[stockKey]int64
	moves     []inventory.MovementInput
	approvals []shared.ApprovalLog
	stockErr  error
}

type stockKey struct {
	productID int64
	loc       inventory.Location
}

type snapshot struct {
	supply    map[int64]SupplyRequest
	transfers map[int64]Transfer
	stock     map[stockKey]int64
	moves     int
	approvals int
}

func newWorld() *world {
	return &world{
		supply:    map[int64]SupplyRequest{},
		transfers: map[int64]Transfer{},
		stock:     map[stockKey]int64{},
	}
}

func (w *world) snapshot() snapshot {
	s := snapshot{
		supply:    make(map[int64]SupplyRequest, len(w.supply)),
		transfers: make(map[int64]Transfer, len(w.transfers)),
		stock:     make(map[stockKey]int64, len(w.stock)),
		moves:     len(w.moves),
		approvals: len(w.approvals),
	}
	for id, r := range w.supply {
		r.Items = append([]SupplyItem(nil), r.Items...)
		s.supply[id] = r
	}
	for id, t := range w.transfers {
		t.Items = append([]TransferItem(nil), t.Items...)
		s.transfers[id] = t
	}
	for k, q := range w.stock {
		s.stock[k] = q
	}
	return s
}

func (w *world) restore(s snapshot) {
	w.supply = s.supply
	w.transfers = s.transfers
	w.stock = s.stock
	w.moves = w.moves[:s.moves]
	w.approvals = w.approvals[:s.approvals]
}

// WithTx serialises units of work; nested stock and approval calls run under the held lock.
func (w *world) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := w.snapshot()
	if err := fn(ctx, &worldTx{w: w}); err != nil {
		w.restore(snap)
		return err
	}
	return nil
}

func (w *world) quantity(productID int64, loc inventory.Location) int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stock[stockKey{productID, loc}]
}

func (w *world) seed(productID int64, loc inventory.Location, q int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stock[stockKey{productID, loc}] = q
}

type worldTx struct {
	w *world
}

func (tx *worldTx) InsertSupplyRequest(ctx context.Context, req SupplyRequest) (SupplyRequest, error) {
	tx.w.nextID++
	req.ID = tx.w.nextID
	for i := range req.Items {
		tx.w.nextID++
		req.Items[i].ID = tx.w.nextID
		req.Items[i].RequestID = req.ID
	}
	tx.w.supply[req.ID] = req
	return req, nil
}

func (tx *worldTx) GetSupplyRequest(ctx context.Context, companyID, id int64) (SupplyRequest, error) {
	req, ok := tx.w.supply[id]
	if !ok || req.CompanyID != companyID {
		return SupplyRequest{}, ErrSupplyRequestNotFound
	}
	req.Items = append([]SupplyItem(nil), req.Items...)
	return req, nil
}

func (tx *worldTx) GetSupplyRequestForUpdate(ctx context.Context, companyID, id int64) (SupplyRequest, error) {
	return tx.GetSupplyRequest(ctx, companyID, id)
}

func (tx *worldTx) UpdateSupplyRequest(ctx context.Context, req SupplyRequest) error {
	if _, ok := tx.w.supply[req.ID]; !ok {
		return ErrSupplyRequestNotFound
	}
	tx.w.supply[req.ID] = req
	return nil
}

func (tx *worldTx) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	tx.w.nextID++
	t.ID = tx.w.nextID
	for i := range t.Items {
		tx.w.nextID++
		t.Items[i].ID = tx.w.nextID
		t.Items[i].TransferID = t.ID
	}
	tx.w.transfers[t.ID] = t
	return t, nil
}

func (tx *worldTx) GetTransfer(ctx context.Context, companyID, id int64) (Transfer, error) {
	t, ok := tx.w.transfers[id]
	if !ok || t.CompanyID != companyID {
		return Transfer{}, ErrTransferNotFound
	}
	t.Items = append([]TransferItem(nil), t.Items...)
	return t, nil
}

func (tx *worldTx) GetTransferForUpdate(ctx context.Context, companyID, id int64) (Transfer, error) {
	return tx.GetTransfer(ctx, companyID, id)
}

func (tx *worldTx) UpdateTransfer(ctx context.Context, t Transfer) error {
	if _, ok := tx.w.transfers[t.ID]; !ok {
		return ErrTransferNotFound
	}
	tx.w.transfers[t.ID] = t
	return nil
}

// worldStock applies the movement table to the shared world; callers already hold its lock.
type worldStock struct {
	w *world
}

func (s worldStock) RecordMovement(ctx context.Context, in inventory.MovementInput) (inventory.StockMovement, error) {
	if s.w.stockErr != nil {
		return inventory.StockMovement{}, s.w.stockErr
	}
	switch in.Type {
	case inventory.MovementPurchaseEntry, inventory.MovementStoreReception:
		s.w.stock[stockKey{in.ProductID, *in.Destination}] += in.Quantity
	case inventory.MovementStoreTransfer:
		s.w.stock[stockKey{in.ProductID, *in.Source}] -= in.Quantity
	case inventory.MovementInternalTransfer:
		s.w.stock[stockKey{in.ProductID, *in.Source}] -= in.Quantity
		s.w.stock[stockKey{in.ProductID, *in.Destination}] += in.Quantity
	default:
		return inventory.StockMovement{}, inventory.ErrInvalidMovement
	}
	s.w.moves = append(s.w.moves, in)
	return inventory.StockMovement{Type: in.Type, ProductID: in.ProductID, Quantity: in.Quantity}, nil
}

type worldApprovals struct {
	w *world
}

func (a worldApprovals) Record(ctx context.Context, log shared.ApprovalLog) error {
	a.w.approvals = append(a.w.approvals, log)
	return nil
}

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
