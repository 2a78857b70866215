package accounting

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-backoffice/internal/platform/httpx"
)

// Handler wires ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes for the ledger module.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/ledger/provision", h.handleProvision)
	r.Get("/ledger/accounts", h.handleListAccounts)
	r.Get("/ledger/accounts/{code}", h.handleGetAccount)
	r.Post("/ledger/journals", h.handleCreateDraft)
	r.Get("/ledger/journals/{id}", h.handleGetJournal)
	r.Post("/ledger/journals/{id}/post", h.handlePostDraft)
	r.Post("/ledger/journals/{id}/void", h.handleVoid)
}

var errorRules = []httpx.Rule{
	{Err: ErrUnbalanced, Status: http.StatusBadRequest, Title: "Unbalanced Entry"},
	{Err: ErrTooFewLines, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrInvalidLine, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed"},
	{Err: ErrAlreadyPosted, Status: http.StatusConflict, Title: "Already Posted"},
	{Err: ErrAlreadyVoided, Status: http.StatusConflict, Title: "Already Voided"},
	{Err: ErrSourceAlreadyLinked, Status: http.StatusConflict, Title: "Already Recorded"},
	{Err: ErrReferenceConflict, Status: http.StatusConflict, Title: "Reference Conflict"},
	{Err: ErrAccountNotConfigured, Status: http.StatusNotFound, Title: "Not Configured"},
}

type journalLineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Memo      string          `json:"memo" validate:"max=255"`
}

type draftRequest struct {
	Date        string               `json:"date" validate:"required,datetime=2006-01-02"`
	Description string               `json:"description" validate:"required,max=500"`
	Lines       []journalLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type voidRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.InitializeSystemAccounts(r.Context(), scope.CompanyID, scope.ActorID)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), scope.CompanyID)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	if accounts == nil {
		accounts = []Account{}
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	account, err := h.service.FindByCode(r.Context(), scope.CompanyID, chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) handleCreateDraft(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req draftRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	date, _ := time.Parse("2006-01-02", req.Date)
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit, Memo: line.Memo})
	}
	entry, err := h.service.CreateDraft(r.Context(), PostingRequest{
		CompanyID:   scope.CompanyID,
		ActorID:     scope.ActorID,
		Date:        date,
		Description: req.Description,
		Lines:       lines,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.GetEntry(r.Context(), scope.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handlePostDraft(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entry, err := h.service.PostDraft(r.Context(), scope.CompanyID, scope.ActorID, id)
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	scope, err := httpx.RequireScope(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req voidRequest
	if !httpx.DecodeAndValidate(w, r, &req) {
		return
	}
	entry, err := h.service.Void(r.Context(), VoidInput{CompanyID: scope.CompanyID, EntryID: id, ActorID: scope.ActorID, Reason: req.Reason})
	if err != nil {
		httpx.RespondError(w, h.logger, err, errorRules...)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}
