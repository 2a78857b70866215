package inventory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

type stockKey struct {
	companyID int64
	productID int64
	loc       Location
}

// memoryRepo mimics row locking: LockStock holds a per-record mutex until the unit of
// work ends, and failed units of work restore the records they touched.
type memoryRepo struct {
	mu        sync.Mutex
	nextID    int64
	records   map[stockKey]*StockRecord
	locks     map[stockKey]*sync.Mutex
	movements []StockMovement
}

type memoryTx struct {
	repo   *memoryRepo
	held   []*sync.Mutex
	undo   map[stockKey]*StockRecord
	logLen int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{records: make(map[stockKey]*StockRecord), locks: make(map[stockKey]*sync.Mutex)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	tx := &memoryTx{repo: r, undo: make(map[stockKey]*StockRecord), logLen: len(r.movements)}
	r.mu.Unlock()
	err := fn(ctx, tx)
	r.mu.Lock()
	if err != nil {
		for k, prev := range tx.undo {
			if prev == nil {
				delete(r.records, k)
				continue
			}
			r.records[k] = prev
		}
		r.movements = r.movements[:tx.logLen]
	}
	r.mu.Unlock()
	for i := len(tx.held) - 1; i >= 0; i-- {
		tx.held[i].Unlock()
	}
	return err
}

func (r *memoryRepo) quantity(companyID, productID int64, loc Location) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[stockKey{companyID, productID, loc}]
	if !ok {
		return 0
	}
	return rec.Quantity
}

func (tx *memoryTx) remember(k stockKey) {
	if _, ok := tx.undo[k]; ok {
		return
	}
	if rec, ok := tx.repo.records[k]; ok {
		clone := *rec
		tx.undo[k] = &clone
		return
	}
	tx.undo[k] = nil
}

func (tx *memoryTx) LockStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error) {
	k := stockKey{companyID, productID, loc}
	tx.repo.mu.Lock()
	lock, ok := tx.repo.locks[k]
	if !ok {
		lock = &sync.Mutex{}
		tx.repo.locks[k] = lock
	}
	tx.repo.mu.Unlock()
	held := false
	for _, m := range tx.held {
		if m == lock {
			held = true
		}
	}
	if !held {
		lock.Lock()
		tx.held = append(tx.held, lock)
	}

	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	rec, ok := tx.repo.records[k]
	if !ok {
		tx.remember(k)
		tx.repo.nextID++
		rec = &StockRecord{ID: tx.repo.nextID, CompanyID: companyID, ProductID: productID, Location: loc}
		tx.repo.records[k] = rec
	}
	return *rec, nil
}

func (tx *memoryTx) GetStock(ctx context.Context, companyID, productID int64, loc Location) (StockRecord, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	rec, ok := tx.repo.records[stockKey{companyID, productID, loc}]
	if !ok {
		return StockRecord{}, ErrStockNotFound
	}
	return *rec, nil
}

func (tx *memoryTx) byID(recordID int64) (stockKey, *StockRecord, bool) {
	for k, rec := range tx.repo.records {
		if rec.ID == recordID {
			return k, rec, true
		}
	}
	return stockKey{}, nil, false
}

func (tx *memoryTx) SetQuantity(ctx context.Context, recordID, quantity int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	k, rec, ok := tx.byID(recordID)
	if !ok {
		return ErrStockNotFound
	}
	tx.remember(k)
	updated := *rec
	updated.Quantity = quantity
	tx.repo.records[k] = &updated
	return nil
}

func (tx *memoryTx) SetStockAlert(ctx context.Context, recordID, alert int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	k, rec, ok := tx.byID(recordID)
	if !ok {
		return ErrStockNotFound
	}
	tx.remember(k)
	updated := *rec
	updated.StockAlert = alert
	tx.repo.records[k] = &updated
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m StockMovement) (StockMovement, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.repo.movements = append(tx.repo.movements, m)
	return m, nil
}

func (tx *memoryTx) ListAlerts(ctx context.Context, companyID int64) ([]StockRecord, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	var out []StockRecord
	for _, rec := range tx.repo.records {
		if (companyID == 0 || rec.CompanyID == companyID) && rec.Alerting() {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memoryTx) ListMovements(ctx context.Context, filter MovementFilter) ([]StockMovement, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	var out []StockMovement
	for i := len(tx.repo.movements) - 1; i >= 0; i-- {
		m := tx.repo.movements[i]
		if m.CompanyID != filter.CompanyID {
			continue
		}
		if filter.ProductID > 0 && m.ProductID != filter.ProductID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

type memoryKeys struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (k *memoryKeys) CheckAndInsert(ctx context.Context, companyID int64, key, module string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.seen == nil {
		k.seen = map[string]bool{}
	}
	if k.seen[module+key] {
		return shared.ErrIdempotencyConflict
	}
	k.seen[module+key] = true
	return nil
}

type recordingHook struct {
	movements []StockMovement
	err       error
}

func (h *recordingHook) MovementRecorded(ctx context.Context, m StockMovement) error {
	h.movements = append(h.movements, m)
	return h.err
}

var testNow = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
