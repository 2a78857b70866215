package movements

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

func newTestService() (*Service, *world) {
	w := newWorld()
	svc := NewService(w, worldStock{w: w}, worldApprovals{w: w}, nil, nil)
	svc.WithNow(func() time.Time { return testNow })
	return svc, w
}

func warehouseID(id int64) *int64 { return &id }

func TestSupplyRequestFromWarehouseMovesStock(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	a, b := inventory.Warehouse(1), inventory.Warehouse(2)
	w.seed(9, a, 200)

	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, SourceWarehouseID: warehouseID(1), Destination: b,
		Items: []ItemInput{{ProductID: 9, Quantity: 40, UnitCost: decimal.NewFromInt(120)}},
	})
	require.NoError(t, err)
	require.Equal(t, SupplyPending, req.Status)
	require.True(t, strings.HasPrefix(req.Reference, "DAP-"))

	_, err = svc.ApproveSupplyRequest(ctx, 1, 6, req.ID)
	require.NoError(t, err)

	delivered, err := svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID})
	require.NoError(t, err)
	require.Equal(t, SupplyDelivered, delivered.Status)
	require.True(t, delivered.Delivered.Done())
	require.Equal(t, int64(40), delivered.Items[0].QuantityDelivered)

	require.Equal(t, int64(160), w.quantity(9, a))
	require.Equal(t, int64(40), w.quantity(9, b))
	require.Len(t, w.moves, 1)
	require.Equal(t, inventory.MovementInternalTransfer, w.moves[0].Type)
	require.Equal(t, req.ID, *w.moves[0].SupplyRequestID)

	received, err := svc.ReceiveSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: req.ID,
		Items: []ItemQuantity{{ItemID: req.Items[0].ID, Quantity: 38}}})
	require.NoError(t, err)
	require.True(t, received.Received.Done())
	require.Equal(t, int64(38), received.Items[0].QuantityReceived)
	require.Equal(t, "received 38 of 40", received.Items[0].DiscrepancyNote)
	require.Equal(t, int64(40), w.quantity(9, b), "reception does not move stock")

	_, err = svc.ReceiveSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: req.ID})
	require.ErrorIs(t, err, ErrInvalidState)

	actions := make([]shared.ApprovalAction, 0, len(w.approvals))
	for _, log := range w.approvals {
		require.Equal(t, moduleSupplyRequest, log.Module)
		actions = append(actions, log.Action)
	}
	require.Equal(t, []shared.ApprovalAction{shared.ApprovalApprove, shared.ApprovalDeliver, shared.ApprovalReceive}, actions)
}

func TestSupplierRequestEntersStock(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	shop := inventory.Shop(3)

	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, Destination: shop,
		Items: []ItemInput{{ProductID: 9, Quantity: 10}, {ProductID: 11, Quantity: 4}},
	})
	require.NoError(t, err)
	require.True(t, req.FromSupplier())
	_, err = svc.ApproveSupplyRequest(ctx, 1, 6, req.ID)
	require.NoError(t, err)

	_, err = svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID,
		Items: []ItemQuantity{{ItemID: req.Items[1].ID, Quantity: 0}}})
	require.NoError(t, err)
	require.Equal(t, int64(10), w.quantity(9, shop))
	require.Equal(t, int64(0), w.quantity(11, shop))
	require.Len(t, w.moves, 1, "zero quantities do not move stock")
	require.Equal(t, inventory.MovementPurchaseEntry, w.moves[0].Type)
	require.Nil(t, w.moves[0].Source)
}

func TestDeliverPendingRequestIsRejected(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	a := inventory.Warehouse(1)
	w.seed(9, a, 200)

	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, SourceWarehouseID: warehouseID(1), Destination: inventory.Warehouse(2),
		Items: []ItemInput{{ProductID: 9, Quantity: 40}},
	})
	require.NoError(t, err)

	_, err = svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID})
	require.ErrorIs(t, err, ErrInvalidState)

	got, err := svc.GetSupplyRequest(ctx, 1, req.ID)
	require.NoError(t, err)
	require.Equal(t, SupplyPending, got.Status)
	require.False(t, got.Delivered.Done())
	require.Equal(t, int64(200), w.quantity(9, a))
	require.Empty(t, w.moves)
	require.Empty(t, w.approvals)
}

func TestRejectRequiresPending(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, Destination: inventory.Shop(2), Items: []ItemInput{{ProductID: 9, Quantity: 1}},
	})
	require.NoError(t, err)

	rejected, err := svc.RejectSupplyRequest(ctx, 1, 6, req.ID, "not needed")
	require.NoError(t, err)
	require.Equal(t, SupplyRejected, rejected.Status)
	require.Equal(t, "not needed", rejected.RejectReason)

	_, err = svc.ApproveSupplyRequest(ctx, 1, 6, req.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	_, err = svc.RejectSupplyRequest(ctx, 1, 6, req.ID, "again")
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestStockFailureRollsBackDelivery(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	w.seed(9, inventory.Warehouse(1), 50)
	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, SourceWarehouseID: warehouseID(1), Destination: inventory.Warehouse(2),
		Items: []ItemInput{{ProductID: 9, Quantity: 5}},
	})
	require.NoError(t, err)
	_, err = svc.ApproveSupplyRequest(ctx, 1, 6, req.ID)
	require.NoError(t, err)

	boom := errors.New("ledger down")
	w.stockErr = boom
	_, err = svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID})
	require.ErrorIs(t, err, boom)

	got, err := svc.GetSupplyRequest(ctx, 1, req.ID)
	require.NoError(t, err)
	require.Equal(t, SupplyApproved, got.Status)
	require.Equal(t, int64(50), w.quantity(9, inventory.Warehouse(1)))
	require.Len(t, w.approvals, 1)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	cases := []struct {
		name string
		in   CreateSupplyRequestInput
	}{
		{"no items", CreateSupplyRequestInput{CompanyID: 1, Destination: inventory.Shop(1)}},
		{"no destination", CreateSupplyRequestInput{CompanyID: 1, Items: []ItemInput{{ProductID: 1, Quantity: 1}}}},
		{"same location", CreateSupplyRequestInput{CompanyID: 1, SourceWarehouseID: warehouseID(4), Destination: inventory.Warehouse(4),
			Items: []ItemInput{{ProductID: 1, Quantity: 1}}}},
		{"zero quantity", CreateSupplyRequestInput{CompanyID: 1, Destination: inventory.Shop(1), Items: []ItemInput{{ProductID: 1}}}},
		{"duplicate product", CreateSupplyRequestInput{CompanyID: 1, Destination: inventory.Shop(1),
			Items: []ItemInput{{ProductID: 1, Quantity: 1}, {ProductID: 1, Quantity: 2}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSupplyRequest(ctx, tc.in)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := svc.CreateTransfer(ctx, CreateTransferInput{CompanyID: 1, SourceWarehouseID: 2, Destination: inventory.Warehouse(2),
		Items: []ItemInput{{ProductID: 1, Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestTransferToShopLifecycle(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	src, shop := inventory.Warehouse(1), inventory.Shop(4)
	w.seed(9, src, 100)

	tr, err := svc.CreateTransfer(ctx, CreateTransferInput{
		CompanyID: 1, ActorID: 5, SourceWarehouseID: 1, Destination: shop,
		Items: []ItemInput{{ProductID: 9, Quantity: 30, UnitCost: decimal.NewFromInt(50)}},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tr.Reference, "TRF-"))

	_, err = svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = svc.ApproveTransfer(ctx, 1, 6, tr.ID)
	require.NoError(t, err)
	shipped, err := svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID})
	require.NoError(t, err)
	require.Equal(t, TransferShipped, shipped.Status)
	require.Equal(t, int64(70), w.quantity(9, src))
	require.Equal(t, int64(0), w.quantity(9, shop), "shop is credited on reception")
	require.Equal(t, inventory.MovementStoreTransfer, w.moves[0].Type)
	require.Equal(t, shop, *w.moves[0].Destination)

	delivered, err := svc.MarkTransferDelivered(ctx, 1, 7, tr.ID)
	require.NoError(t, err)
	require.Equal(t, TransferDelivered, delivered.Status)

	received, err := svc.ReceiveTransfer(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: tr.ID,
		Items: []ItemQuantity{{ItemID: tr.Items[0].ID, Quantity: 28, Note: "2 damaged"}}})
	require.NoError(t, err)
	require.Equal(t, TransferReceived, received.Status)
	require.Equal(t, "2 damaged", received.Items[0].DiscrepancyNote)
	require.Equal(t, int64(28), w.quantity(9, shop))
	require.Len(t, w.moves, 2)
	require.Equal(t, inventory.MovementStoreReception, w.moves[1].Type)

	_, err = svc.MarkTransferDelivered(ctx, 1, 7, tr.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestTransferBetweenWarehouses(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	a, b := inventory.Warehouse(1), inventory.Warehouse(2)
	w.seed(9, a, 10)

	tr, err := svc.CreateTransfer(ctx, CreateTransferInput{CompanyID: 1, ActorID: 5, SourceWarehouseID: 1, Destination: b,
		Items: []ItemInput{{ProductID: 9, Quantity: 10}}})
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(ctx, 1, 6, tr.ID)
	require.NoError(t, err)
	_, err = svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID})
	require.NoError(t, err)
	require.Equal(t, int64(0), w.quantity(9, a))
	require.Equal(t, int64(10), w.quantity(9, b))

	received, err := svc.ReceiveTransfer(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: tr.ID})
	require.NoError(t, err)
	require.True(t, received.Delivered.Done(), "receiving a shipped transfer stamps delivery")
	require.Equal(t, int64(10), received.Items[0].QuantityReceived)
	require.Empty(t, received.Items[0].DiscrepancyNote)
	require.Equal(t, int64(10), w.quantity(9, b))
	require.Len(t, w.moves, 1)
}

func TestUnknownStepItemIsRejected(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	tr, err := svc.CreateTransfer(ctx, CreateTransferInput{CompanyID: 1, ActorID: 5, SourceWarehouseID: 1, Destination: inventory.Shop(2),
		Items: []ItemInput{{ProductID: 9, Quantity: 1}}})
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(ctx, 1, 6, tr.ID)
	require.NoError(t, err)

	_, err = svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID, Items: []ItemQuantity{{ItemID: 999, Quantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.GetTransfer(ctx, 2, tr.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReceiptCannotExceedShippedQuantity(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	src, shop := inventory.Warehouse(1), inventory.Shop(4)
	w.seed(9, src, 100)

	tr, err := svc.CreateTransfer(ctx, CreateTransferInput{CompanyID: 1, ActorID: 5, SourceWarehouseID: 1, Destination: shop,
		Items: []ItemInput{{ProductID: 9, Quantity: 30}}})
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(ctx, 1, 6, tr.ID)
	require.NoError(t, err)

	_, err = svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID,
		Items: []ItemQuantity{{ItemID: tr.Items[0].ID, Quantity: 31}}})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, int64(100), w.quantity(9, src))

	_, err = svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID})
	require.NoError(t, err)

	_, err = svc.ReceiveTransfer(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: tr.ID,
		Items: []ItemQuantity{{ItemID: tr.Items[0].ID, Quantity: 500}}})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, int64(70), w.quantity(9, src))
	require.Equal(t, int64(0), w.quantity(9, shop))
	require.Len(t, w.moves, 1)
	current, err := svc.GetTransfer(ctx, 1, tr.ID)
	require.NoError(t, err)
	require.Equal(t, TransferShipped, current.Status)

	received, err := svc.ReceiveTransfer(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: tr.ID,
		Items: []ItemQuantity{{ItemID: tr.Items[0].ID, Quantity: 30}}})
	require.NoError(t, err)
	require.Equal(t, TransferReceived, received.Status)
	require.Equal(t, int64(100), w.quantity(9, src)+w.quantity(9, shop))
}

func TestSupplyReceiptCannotExceedDelivered(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	a, b := inventory.Warehouse(1), inventory.Warehouse(2)
	w.seed(9, a, 200)

	req, err := svc.CreateSupplyRequest(ctx, CreateSupplyRequestInput{
		CompanyID: 1, ActorID: 5, SourceWarehouseID: warehouseID(1), Destination: b,
		Items: []ItemInput{{ProductID: 9, Quantity: 40}},
	})
	require.NoError(t, err)
	_, err = svc.ApproveSupplyRequest(ctx, 1, 6, req.ID)
	require.NoError(t, err)

	_, err = svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID,
		Items: []ItemQuantity{{ItemID: req.Items[0].ID, Quantity: 41}}})
	require.ErrorIs(t, err, ErrValidation)
	require.Equal(t, int64(200), w.quantity(9, a))

	_, err = svc.DeliverSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: req.ID,
		Items: []ItemQuantity{{ItemID: req.Items[0].ID, Quantity: 35}}})
	require.NoError(t, err)

	_, err = svc.ReceiveSupplyRequest(ctx, StepInput{CompanyID: 1, ActorID: 8, DocumentID: req.ID,
		Items: []ItemQuantity{{ItemID: req.Items[0].ID, Quantity: 40}}})
	require.ErrorIs(t, err, ErrValidation)
	current, err := svc.GetSupplyRequest(ctx, 1, req.ID)
	require.NoError(t, err)
	require.False(t, current.Received.Done())
	require.Equal(t, int64(165), w.quantity(9, a))
	require.Equal(t, int64(35), w.quantity(9, b))
}

func TestMultiItemStepsRecordInProductOrder(t *testing.T) {
	svc, w := newTestService()
	ctx := context.Background()
	src := inventory.Warehouse(1)
	w.seed(9, src, 50)
	w.seed(11, src, 50)

	tr, err := svc.CreateTransfer(ctx, CreateTransferInput{CompanyID: 1, ActorID: 5, SourceWarehouseID: 1, Destination: inventory.Warehouse(2),
		Items: []ItemInput{{ProductID: 11, Quantity: 5}, {ProductID: 9, Quantity: 3}}})
	require.NoError(t, err)
	_, err = svc.ApproveTransfer(ctx, 1, 6, tr.ID)
	require.NoError(t, err)

	shipped, err := svc.ShipTransfer(ctx, StepInput{CompanyID: 1, ActorID: 7, DocumentID: tr.ID})
	require.NoError(t, err)
	require.Len(t, w.moves, 2)
	require.Equal(t, int64(9), w.moves[0].ProductID)
	require.Equal(t, int64(11), w.moves[1].ProductID)
	require.Equal(t, int64(11), shipped.Items[0].ProductID, "document keeps its item order")
	require.Equal(t, int64(5), shipped.Items[0].QuantityShipped)
}

func TestHandlerTransferFlow(t *testing.T) {
	svc, w := newTestService()
	w.seed(9, inventory.Warehouse(1), 20)
	router := chi.NewRouter()
	NewHandler(nil, svc).MountRoutes(router)
	scoped := func(req *http.Request) *http.Request {
		return req.WithContext(shared.ContextWithScope(req.Context(), shared.Scope{CompanyID: 1, ActorID: 2}))
	}

	body := `{"source_warehouse_id":1,"destination":{"kind":"SHOP","id":3},"items":[{"product_id":9,"quantity":5,"unit_cost":"10"}]}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, "/transfers", strings.NewReader(body))))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created Transfer
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	path := "/transfers/" + strconv.FormatInt(created.ID, 10)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, path+"/ship", nil)))
	require.Equal(t, http.StatusConflict, rr.Code)

	for _, step := range []string{"/approve", "/ship", "/receive"} {
		rr = httptest.NewRecorder()
		router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, path+step, nil)))
		require.Equal(t, http.StatusOK, rr.Code, step+": "+rr.Body.String())
	}
	require.Equal(t, int64(15), w.quantity(9, inventory.Warehouse(1)))
	require.Equal(t, int64(5), w.quantity(9, inventory.Shop(3)))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodGet, "/transfers/404", nil)))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, scoped(httptest.NewRequest(http.MethodPost, "/supply-requests", strings.NewReader(`{"destination":{"kind":"SHOP","id":3},"items":[]}`))))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}
