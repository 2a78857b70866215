package movements

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/inventory"
	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// Handler exposes supply request and transfer endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs movements handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers movements routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/supply-requests", func(r chi.Router) {
		r.Post("/", h.handleCreateSupplyRequest)
		r.Get("/{id}", h.handleGetSupplyRequest)
		r.Post("/{id}/approve", h.handleApproveSupplyRequest)
		r.Post("/{id}/reject", h.handleRejectSupplyRequest)
		r.Post("/{id}/deliver", h.handleDeliverSupplyRequest)
		r.Post("/{id}/receive", h.handleReceiveSupplyRequest)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.handleCreateTransfer)
		r.Get("/{id}", h.handleGetTransfer)
		r.Post("/{id}/approve", h.handleApproveTransfer)
		r.Post("/{id}/reject", h.handleRejectTransfer)
		r.Post("/{id}/ship", h.handleShipTransfer)
		r.Post("/{id}/deliver", h.handleDeliverTransfer)
		r.Post("/{id}/receive", h.handleReceiveTransfer)
	})
}

var errorRules = []httpx.Rule{
	{Err: ErrInvalidState, Status: http.StatusConflict, Title: "Invalid State"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Invalid Request"},
	{Err: inventory.ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Invalid Quantity"},
	{Err: inventory.ErrInvalidMovement, Status: http.StatusBadRequest, Title: "Invalid Movement"},
}

type itemRequest struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"required,gt=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type destinationRequest struct {
	Kind string `json:"kind" validate:"required,oneof=WAREHOUSE SHOP"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

type createSupplyRequest struct {
	SourceWarehouseID *int64             `json:"source_warehouse_id" validate:"omitempty,gt=0"`
	Destination       destinationRequest `json:"destination"`
	CompanyBearsCosts bool               `json:"company_bears_costs"`
	Note              string             `json:"note" validate:"max=500"`
	Items             []itemRequest      `json:"items" validate:"required,min=1,dive"`
}

type createTransferRequest struct {
	SourceWarehouseID int64              `json:"source_warehouse_id" validate:"required,gt=0"`
	Destination       destinationRequest `json:"destination"`
	VehicleID         *int64             `json:"vehicle_id" validate:"omitempty,gt=0"`
	DriverID          *int64             `json:"driver_id" validate:"omitempty,gt=0"`
	CompanyBearsCosts bool               `json:"company_bears_costs"`
	Note              string             `json:"note" validate:"max=500"`
	Items             []itemRequest      `json:"items" validate:"required,min=1,dive"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type stepItemRequest struct {
	ItemID   int64  `json:"item_id" validate:"required,gt=0"`
	Quantity int64  `json:"quantity" validate:"gte=0"`
	Note     string `json:"note" validate:"max=500"`
}

type stepRequest struct {
	Items []stepItemRequest `json:"items" validate:"dive"`
}

func (d destinationRequest) location() inventory.Location {
	return inventory.Location{Kind: inventory.LocationKind(d.Kind), ID: d.ID}
}

func itemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{ProductID: item.ProductID, Quantity: item.Quantity, UnitCost: item.UnitCost})
	}
	return out
}

func (h *Handler) handleCreateSupplyRequest(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req createSupplyRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	created, err := h.service.CreateSupplyRequest(r.Context(), CreateSupplyRequestInput{
		CompanyID:         scope.CompanyID,
		ActorID:           scope.ActorID,
		SourceWarehouseID: req.SourceWarehouseID,
		Destination:       req.Destination.location(),
		CompanyBearsCosts: req.CompanyBearsCosts,
		Note:              req.Note,
		Items:             itemInputs(req.Items),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetSupplyRequest(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.service.GetSupplyRequest(r.Context(), scope.CompanyID, id)
	h.respond(w, req, err)
}

func (h *Handler) handleApproveSupplyRequest(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	req, err := h.service.ApproveSupplyRequest(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, req, err)
}

func (h *Handler) handleRejectSupplyRequest(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if !httpx.DecodeAndValidate(w, r, &body) {
		return
	}
	req, err := h.service.RejectSupplyRequest(r.Context(), scope.CompanyID, scope.ActorID, id, body.Reason)
	h.respond(w, req, err)
}

func (h *Handler) handleDeliverSupplyRequest(w http.ResponseWriter, r *http.Request) {
	in, ok := h.step(w, r)
	if !ok {
		return
	}
	req, err := h.service.DeliverSupplyRequest(r.Context(), in)
	h.respond(w, req, err)
}

func (h *Handler) handleReceiveSupplyRequest(w http.ResponseWriter, r *http.Request) {
	in, ok := h.step(w, r)
	if !ok {
		return
	}
	req, err := h.service.ReceiveSupplyRequest(r.Context(), in)
	h.respond(w, req, err)
}

func (h *Handler) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req createTransferRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	created, err := h.service.CreateTransfer(r.Context(), CreateTransferInput{
		CompanyID:         scope.CompanyID,
		ActorID:           scope.ActorID,
		SourceWarehouseID: req.SourceWarehouseID,
		Destination:       req.Destination.location(),
		VehicleID:         req.VehicleID,
		DriverID:          req.DriverID,
		CompanyBearsCosts: req.CompanyBearsCosts,
		Note:              req.Note,
		Items:             itemInputs(req.Items),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.service.GetTransfer(r.Context(), scope.CompanyID, id)
	h.respond(w, t, err)
}

func (h *Handler) handleApproveTransfer(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.service.ApproveTransfer(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, t, err)
}

func (h *Handler) handleRejectTransfer(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var body rejectRequest
	if !httpx.DecodeAndValidate(w, r, &body) {
		return
	}
	t, err := h.service.RejectTransfer(r.Context(), scope.CompanyID, scope.ActorID, id, body.Reason)
	h.respond(w, t, err)
}

func (h *Handler) handleShipTransfer(w http.ResponseWriter, r *http.Request) {
	in, ok := h.step(w, r)
	if !ok {
		return
	}
	t, err := h.service.ShipTransfer(r.Context(), in)
	h.respond(w, t, err)
}

func (h *Handler) handleDeliverTransfer(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	t, err := h.service.MarkTransferDelivered(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, t, err)
}

func (h *Handler) handleReceiveTransfer(w http.ResponseWriter, r *http.Request) {
	in, ok := h.step(w, r)
	if !ok {
		return
	}
	t, err := h.service.ReceiveTransfer(r.Context(), in)
	h.respond(w, t, err)
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (shared.Scope, int64, bool) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Scope{}, 0, false
	}
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return shared.Scope{}, 0, false
	}
	return scope, id, true
}

// step decodes an optional body of per-item quantities.
func (h *Handler) step(w http.ResponseWriter, r *http.Request) (StepInput, bool) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return StepInput{}, false
	}
	in := StepInput{CompanyID: scope.CompanyID, ActorID: scope.ActorID, DocumentID: id}
	if r.ContentLength == 0 {
		return in, true
	}
	var body stepRequest
	if !httpx.DecodeAndValidate(w, r, &body) {
		return StepInput{}, false
	}
	for _, item := range body.Items {
		in.Items = append(in.Items, ItemQuantity{ItemID: item.ItemID, Quantity: item.Quantity, Note: item.Note})
	}
	return in, true
}

func (h *Handler) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, body)
}
