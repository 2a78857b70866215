package inventory

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/httpx"
)

// Handler exposes stock endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/stock/movements", h.handleMovement)
	r.Get("/stock/movements", h.handleListMovements)
	r.Get("/stock/alerts", h.handleAlerts)
	r.Get("/stock/{productID}/{kind}/{locationID}", h.handleGetStock)
	r.Put("/stock/{productID}/{kind}/{locationID}/alert", h.handleSetAlert)
}

var errorRules = []httpx.Rule{
	{Err: ErrInvalidQuantity, Status: http.StatusBadRequest, Title: "Invalid Quantity"},
	{Err: ErrInvalidMovement, Status: http.StatusBadRequest, Title: "Invalid Movement"},
}

type locationRequest struct {
	Kind string `json:"kind" validate:"required,oneof=WAREHOUSE SHOP"`
	ID   int64  `json:"id" validate:"required,gt=0"`
}

func (l *locationRequest) location() *Location {
	if l == nil {
		return nil
	}
	return &Location{Kind: LocationKind(l.Kind), ID: l.ID}
}

type movementRequest struct {
	Type        string           `json:"type" validate:"required"`
	ProductID   int64            `json:"product_id" validate:"required,gt=0"`
	Quantity    int64            `json:"quantity" validate:"required"`
	Source      *locationRequest `json:"source"`
	Destination *locationRequest `json:"destination"`
	UnitCost    decimal.Decimal  `json:"unit_cost"`
	Note        string           `json:"note" validate:"max=500"`
}

type alertRequest struct {
	StockAlert int64 `json:"stock_alert" validate:"gte=0"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req movementRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	movement, err := h.service.RecordMovement(r.Context(), MovementInput{
		CompanyID:      scope.CompanyID,
		ActorID:        scope.ActorID,
		Type:           MovementType(strings.ToUpper(req.Type)),
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
		Source:         req.Source.location(),
		Destination:    req.Destination.location(),
		UnitCost:       req.UnitCost,
		Note:           req.Note,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, movement)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	filter := MovementFilter{CompanyID: scope.CompanyID}
	q := r.URL.Query()
	if raw := q.Get("product_id"); raw != "" {
		filter.ProductID, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("location_kind"); raw != "" {
		kind := LocationKind(strings.ToUpper(raw))
		id, err := strconv.ParseInt(q.Get("location_id"), 10, 64)
		if !kind.Valid() || err != nil || id <= 0 {
			httpx.RespondError(w, h.logger, fmt.Errorf("%w: location_kind and location_id must name a location", httpx.ErrValidation))
			return
		}
		filter.Location = &Location{Kind: kind, ID: id}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	records, err := h.service.ListAlerts(r.Context(), scope.CompanyID)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetStock(w http.ResponseWriter, r *http.Request) {
	companyID, productID, loc, err := stockTarget(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	record, err := h.service.GetStock(r.Context(), companyID, productID, loc)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func (h *Handler) handleSetAlert(w http.ResponseWriter, r *http.Request) {
	companyID, productID, loc, err := stockTarget(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req alertRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	record, err := h.service.SetStockAlert(r.Context(), companyID, productID, loc, req.StockAlert)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, record)
}

func stockTarget(r *http.Request) (int64, int64, Location, error) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		return 0, 0, Location{}, err
	}
	productID, err := httpx.PathInt64(r, "productID")
	if err != nil {
		return 0, 0, Location{}, err
	}
	locationID, err := httpx.PathInt64(r, "locationID")
	if err != nil {
		return 0, 0, Location{}, err
	}
	kind := LocationKind(strings.ToUpper(chi.URLParam(r, "kind")))
	if !kind.Valid() {
		return 0, 0, Location{}, fmt.Errorf("%w: unknown location kind %q", httpx.ErrValidation, chi.URLParam(r, "kind"))
	}
	return scope.CompanyID, productID, Location{Kind: kind, ID: locationID}, nil
}
