package expenses

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/accounting"
	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-backoffice/internal/shared"
)

// Handler exposes the expense workflow over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers expense routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/expenses", h.handleCreate)
	r.Get("/expenses/{id}", h.handleGet)
	r.Post("/expenses/{id}/submit", h.handleSubmit)
	r.Post("/expenses/{id}/approve", h.handleApprove)
	r.Post("/expenses/{id}/reject", h.handleReject)
	r.Delete("/expenses/{id}", h.handleArchive)
}

var errorRules = []httpx.Rule{
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrInvalidState, Status: http.StatusConflict, Title: "Invalid State"},
	{Err: accounting.ErrSourceAlreadyLinked, Status: http.StatusConflict, Title: "Already Recorded"},
}

type createRequest struct {
	CategoryID  int64           `json:"category_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
	ExpenseDate string          `json:"expense_date" validate:"required,datetime=2006-01-02"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req createRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse("2006-01-02", req.ExpenseDate)
	expense, err := h.service.Create(r.Context(), CreateInput{
		CompanyID:   scope.CompanyID,
		ActorID:     scope.ActorID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Description: req.Description,
		ExpenseDate: date,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, expense)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	expense, err := h.service.Get(r.Context(), scope.CompanyID, id)
	h.respond(w, expense, err)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	expense, err := h.service.Submit(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, expense, err)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	expense, err := h.service.Approve(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, expense, err)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	expense, err := h.service.Reject(r.Context(), scope.CompanyID, scope.ActorID, id, req.Reason)
	h.respond(w, expense, err)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	scope, id, ok := h.target(w, r)
	if !ok {
		return
	}
	expense, err := h.service.Archive(r.Context(), scope.CompanyID, scope.ActorID, id)
	h.respond(w, expense, err)
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

func (h *Handler) respond(w http.ResponseWriter, expense Expense, err error) {
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, expense)
}
