package inventory

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

func newTestService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, repo
}

func loc(l Location) *Location { return &l }

func TestAdjustCreatesRecordAndAllowsNegative(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	rec, err := svc.Adjust(ctx, 1, 10, Warehouse(1), 25)
	require.NoError(t, err)
	require.Equal(t, int64(25), rec.Quantity)

	rec, err = svc.Adjust(ctx, 1, 10, Warehouse(1), -40)
	require.NoError(t, err)
	require.Equal(t, int64(-15), rec.Quantity)
	require.Equal(t, int64(-15), repo.quantity(1, 10, Warehouse(1)))

	_, err = svc.Adjust(ctx, 1, 10, Location{Kind: "DEPOT", ID: 1}, 1)
	require.ErrorIs(t, err, ErrInvalidMovement)
}

func TestConcurrentMovementsAccumulate(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()
	_, err := svc.Adjust(ctx, 1, 7, Warehouse(1), 1000)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.RecordMovement(ctx, MovementInput{CompanyID: 1, Type: MovementInternalTransfer, ProductID: 7, Quantity: 3,
				Source: loc(Warehouse(1)), Destination: loc(Warehouse(2))})
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := svc.RecordMovement(ctx, MovementInput{CompanyID: 1, Type: MovementInternalTransfer, ProductID: 7, Quantity: 1,
				Source: loc(Warehouse(2)), Destination: loc(Warehouse(1))})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int64(1000-150+50), repo.quantity(1, 7, Warehouse(1)))
	require.Equal(t, int64(150-50), repo.quantity(1, 7, Warehouse(2)))
	require.Len(t, repo.movements, 100)
}

func TestMovementTable(t *testing.T) {
	cost := decimal.NewFromInt(1500)
	cases := []struct {
		name      string
		input     MovementInput
		warehouse int64
		shop      int64
	}{
		{"purchase entry", MovementInput{Type: MovementPurchaseEntry, Quantity: 5, Destination: loc(Warehouse(1))}, 105, 50},
		{"supplier return", MovementInput{Type: MovementSupplierReturn, Quantity: 5, Source: loc(Warehouse(1))}, 95, 50},
		{"store transfer debits source only", MovementInput{Type: MovementStoreTransfer, Quantity: 5, Source: loc(Warehouse(1)), Destination: loc(Shop(3))}, 95, 50},
		{"store reception", MovementInput{Type: MovementStoreReception, Quantity: 5, Destination: loc(Shop(3))}, 100, 55},
		{"internal transfer", MovementInput{Type: MovementInternalTransfer, Quantity: 5, Source: loc(Warehouse(1)), Destination: loc(Shop(3))}, 95, 55},
		{"loss", MovementInput{Type: MovementLoss, Quantity: 5, Source: loc(Shop(3)), UnitCost: cost}, 100, 45},
		{"negative adjustment", MovementInput{Type: MovementAdjustment, Quantity: -5, Source: loc(Warehouse(1)), UnitCost: cost}, 95, 50},
		{"positive adjustment", MovementInput{Type: MovementAdjustment, Quantity: 5, Source: loc(Warehouse(1)), UnitCost: cost}, 105, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, repo := newTestService()
			ctx := context.Background()
			_, err := svc.Adjust(ctx, 1, 9, Warehouse(1), 100)
			require.NoError(t, err)
			_, err = svc.Adjust(ctx, 1, 9, Shop(3), 50)
			require.NoError(t, err)

			in := tc.input
			in.CompanyID, in.ProductID, in.ActorID = 1, 9, 4
			movement, err := svc.RecordMovement(ctx, in)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(movement.Reference, "MVT-"))
			require.Equal(t, int64(4), movement.CreatedBy)
			require.Equal(t, tc.warehouse, repo.quantity(1, 9, Warehouse(1)))
			require.Equal(t, tc.shop, repo.quantity(1, 9, Shop(3)))
		})
	}
}

func TestMovementValidation(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	_, err := svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementLoss, Quantity: 0, Source: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementLoss, Quantity: -2, Source: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementPurchaseEntry, Quantity: 2})
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementInternalTransfer, Quantity: 2,
		Source: loc(Warehouse(1)), Destination: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: "THEFT", Quantity: 2, Source: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidMovement)
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementLoss, Quantity: 2, Source: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidMovement, "a loss without cost would skip the ledger")
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 1, Type: MovementAdjustment, Quantity: -2, Source: loc(Warehouse(1))})
	require.ErrorIs(t, err, ErrInvalidMovement)
	require.Empty(t, repo.movements)
}

func TestLedgerHookFailureRollsBackStock(t *testing.T) {
	svc, repo := newTestService()
	hook := &recordingHook{}
	svc.WithLedgerHook(hook)
	ctx := context.Background()
	_, err := svc.Adjust(ctx, 1, 2, Warehouse(1), 20)
	require.NoError(t, err)

	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 2, Type: MovementPurchaseEntry, Quantity: 4, Destination: loc(Warehouse(1))})
	require.NoError(t, err)
	require.Empty(t, hook.movements)

	movement, err := svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 2, Type: MovementLoss, Quantity: 5,
		Source: loc(Warehouse(1)), UnitCost: decimal.NewFromInt(2000)})
	require.NoError(t, err)
	require.Len(t, hook.movements, 1)
	require.Equal(t, movement.ID, hook.movements[0].ID)
	require.Equal(t, int64(19), repo.quantity(1, 2, Warehouse(1)))

	hook.err = errors.New("ledger unavailable")
	_, err = svc.RecordMovement(ctx, MovementInput{CompanyID: 1, ProductID: 2, Type: MovementLoss, Quantity: 5,
		Source: loc(Warehouse(1)), UnitCost: decimal.NewFromInt(2000)})
	require.Error(t, err)
	require.Equal(t, int64(19), repo.quantity(1, 2, Warehouse(1)))
	require.Len(t, repo.movements, 2)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	svc, repo := newTestService()
	svc.WithIdempotency(&memoryKeys{})
	ctx := context.Background()
	in := MovementInput{CompanyID: 1, ProductID: 2, Type: MovementPurchaseEntry, Quantity: 4, Destination: loc(Warehouse(1)), IdempotencyKey: "grn-77"}

	_, err := svc.RecordMovement(ctx, in)
	require.NoError(t, err)
	_, err = svc.RecordMovement(ctx, in)
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.Equal(t, int64(4), repo.quantity(1, 2, Warehouse(1)))
}

func TestStockAlerts(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Adjust(ctx, 1, 1, Warehouse(1), 8)
	require.NoError(t, err)
	rec, err := svc.SetStockAlert(ctx, 1, 1, Warehouse(1), 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.StockAlert)
	_, err = svc.Adjust(ctx, 1, 2, Shop(1), 50)
	require.NoError(t, err)
	_, err = svc.SetStockAlert(ctx, 1, 2, Shop(1), 10)
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, 2, 3, Warehouse(5), -1)
	require.NoError(t, err)

	alerts, err := svc.ListAlerts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, int64(1), alerts[0].ProductID)

	all, err := svc.ListAllAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = svc.GetStock(ctx, 2, 1, Warehouse(1))
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerRecordsMovement(t *testing.T) {
	svc, repo := newTestService()
	router := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(router)
	scoped := func(req *http.Request) *http.Request {
		return req.WithContext(shared.ContextWithScope(req.Context(), shared.Scope{CompanyID: 1, ActorID: 2}))
	}

	body := `{"type":"PURCHASE_ENTRY","product_id":5,"quantity":12,"destination":{"kind":"WAREHOUSE","id":3},"unit_cost":"1500"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, "/stock/movements", strings.NewReader(body))))
	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, int64(12), repo.quantity(1, 5, Warehouse(3)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodGet, "/stock/5/warehouse/3", nil)))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"quantity":12`)

	body = `{"type":"LOSS","product_id":5,"quantity":2}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, "/stock/movements", strings.NewReader(body))))
	require.Equal(t, http.StatusBadRequest, rr.Code)

	body = `{"type":"LOSS","product_id":5,"quantity":2,"source":{"kind":"WAREHOUSE","id":3}}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, "/stock/movements", strings.NewReader(body))))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "unit cost required")
	require.Equal(t, int64(12), repo.quantity(1, 5, Warehouse(3)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodGet, "/stock/5/depot/3", nil)))
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
