package posting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/httpx"
)

// Handler accepts business events from the point of sale and fleet modules.
type Handler struct {
	logger   *slog.Logger
	recorder *Recorder
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, recorder *Recorder) *Handler {
	return &Handler{logger: logger, recorder: recorder}
}

// MountRoutes registers event routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/events/sales", h.handleSale)
	r.Post("/events/credit-payments", h.handleCreditPayment)
	r.Post("/events/fuel-logs", h.handleFuelLog)
	r.Post("/events/logistic-charges", h.handleLogisticCharge)
}

var errorRules = []httpx.Rule{
	{Err: ErrInvalidEvent, Status: http.StatusBadRequest, Title: "Invalid Event"},
	{Err: ErrUnknownEvent, Status: http.StatusBadRequest, Title: "Unknown Event"},
}

const dateLayout = "2006-01-02"

type saleRequest struct {
	ID       int64           `json:"id" validate:"required,gt=0"`
	Date     string          `json:"date" validate:"required,datetime=2006-01-02"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Payments []paymentDTO    `json:"payments" validate:"dive"`
	Lines    []saleLineDTO   `json:"lines" validate:"dive"`
}

type paymentDTO struct {
	Method string          `json:"method" validate:"required,oneof=CASH BANK MOBILE_MONEY"`
	Amount decimal.Decimal `json:"amount"`
}

type saleLineDTO struct {
	ProductID int64           `json:"product_id" validate:"required,gt=0"`
	Quantity  int64           `json:"quantity" validate:"gte=0"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
}

type creditPaymentRequest struct {
	ID     int64           `json:"id" validate:"required,gt=0"`
	SaleID int64           `json:"sale_id" validate:"required,gt=0"`
	Date   string          `json:"date" validate:"required,datetime=2006-01-02"`
	Method string          `json:"method" validate:"required,oneof=CASH BANK MOBILE_MONEY"`
	Amount decimal.Decimal `json:"amount"`
}

type fuelLogRequest struct {
	ID        int64           `json:"id" validate:"required,gt=0"`
	VehicleID int64           `json:"vehicle_id" validate:"required,gt=0"`
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Liters    decimal.Decimal `json:"liters"`
	Cost      decimal.Decimal `json:"cost"`
}

type logisticChargeRequest struct {
	ID              int64           `json:"id" validate:"required,gt=0"`
	SupplyRequestID *int64          `json:"supply_request_id"`
	Date            string          `json:"date" validate:"required,datetime=2006-01-02"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description" validate:"max=500"`
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	sale := Sale{ID: req.ID, Date: date, Subtotal: req.Subtotal, Discount: req.Discount}
	for _, p := range req.Payments {
		sale.Payments = append(sale.Payments, Payment{Method: PaymentMethod(p.Method), Amount: p.Amount})
	}
	for _, l := range req.Lines {
		sale.Lines = append(sale.Lines, SaleLine{ProductID: l.ProductID, Quantity: l.Quantity, UnitCost: l.UnitCost})
	}
	h.record(w, r, sale)
}

func (h *Handler) handleCreditPayment(w http.ResponseWriter, r *http.Request) {
	var req creditPaymentRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	h.record(w, r, CreditPayment{ID: req.ID, SaleID: req.SaleID, Date: date, Method: PaymentMethod(req.Method), Amount: req.Amount})
}

func (h *Handler) handleFuelLog(w http.ResponseWriter, r *http.Request) {
	var req fuelLogRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	h.record(w, r, FuelLog{ID: req.ID, VehicleID: req.VehicleID, Date: date, Liters: req.Liters, Cost: req.Cost})
}

func (h *Handler) handleLogisticCharge(w http.ResponseWriter, r *http.Request) {
	var req logisticChargeRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse(dateLayout, req.Date)
	h.record(w, r, LogisticCharge{ID: req.ID, SupplyRequestID: req.SupplyRequestID, Date: date, Amount: req.Amount, Description: req.Description})
}

func (h *Handler) record(w http.ResponseWriter, r *http.Request, ev Event) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.recorder.Record(r.Context(), scope.CompanyID, scope.ActorID, ev)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	status := http.StatusOK
	if result.Posted {
		status = http.StatusCreated
	}
	httpx.JSON(w, status, result)
}
