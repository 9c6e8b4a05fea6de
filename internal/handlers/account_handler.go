package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
)

// AccountStore is the slice of the account service the HTTP layer needs.
type AccountStore interface {
	Create(ctx context.Context, who models.Identity, p services.CreateAccountParams) (*models.Account, error)
	Get(ctx context.Context, who models.Identity, id string) (*models.Account, error)
	List(ctx context.Context, who models.Identity, f services.AccountFilter) ([]models.Account, error)
	Update(ctx context.Context, who models.Identity, id string, p services.UpdateAccountParams) (*models.Account, error)
	SetStatus(ctx context.Context, who models.Identity, id string, status models.AccountStatus) error
	Delete(ctx context.Context, who models.Identity, id string) error
}

// EntryLister lists ledger entries touching an account.
type EntryLister interface {
	ListByAccount(ctx context.Context, who models.Identity, accountID string, limit int) ([]models.Transaction, error)
}

type AccountHandler struct {
	accounts AccountStore
	entries  EntryLister
	logger   zerolog.Logger
}

func NewAccountHandler(accounts AccountStore, entries EntryLister, logger zerolog.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		entries:  entries,
		logger:   logger.With().Str("handler", "accounts").Logger(),
	}
}

// Routes mounts the account endpoints.
func (h *AccountHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Put("/{id}/status", h.SetStatus)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/entries", h.Entries)
}

// Create opens a new account
// @Summary Create account
// @Description Open an account with a zero balance
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateAccountParams true "Account"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.CreateAccountParams
	if !decodeBody(w, r, &req) {
		return
	}

	account, err := h.accounts.Create(r.Context(), who, req)
	if err != nil {
		writeServiceError(w, h.logger, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

// List returns the caller's accounts, optionally filtered by type, status and currency
// @Summary List accounts
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param type query string false "Account type"
// @Param status query string false "Account status"
// @Param currency query string false "Currency code"
// @Success 200 {array} models.Account
// @Router /accounts [get]
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}

	var filter services.AccountFilter
	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		t, err := models.ParseAccountType(raw)
		if err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		filter.Type = t
	}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseAccountStatus(raw)
		if err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		filter.Status = st
	}
	filter.Currency = q.Get("currency")

	accounts, err := h.accounts.List(r.Context(), who, filter)
	if err != nil {
		writeServiceError(w, h.logger, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

// @Summary Get account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{id} [get]
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	account, err := h.accounts.Get(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// @Summary Update account name or details
// @Tags Accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body services.UpdateAccountParams true "Changes"
// @Success 200 {object} models.Account
// @Router /accounts/{id} [patch]
func (h *AccountHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.UpdateAccountParams
	if !decodeBody(w, r, &req) {
		return
	}
	account, err := h.accounts.Update(r.Context(), who, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// @Summary Activate or deactivate an account
// @Tags Accounts
// @Accept json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body object{status=string} true "New status"
// @Success 204
// @Router /accounts/{id}/status [put]
func (h *AccountHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	status, err := models.ParseAccountStatus(req.Status)
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := h.accounts.SetStatus(r.Context(), who, chi.URLParam(r, "id"), status); err != nil {
		writeServiceError(w, h.logger, "set_status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary Delete an account without ledger history
// @Tags Accounts
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 204
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/{id} [delete]
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), who, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary List ledger entries of an account
// @Tags Accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} models.Transaction
// @Router /accounts/{id}/entries [get]
func (h *AccountHandler) Entries(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	entries, err := h.entries.ListByAccount(r.Context(), who, chi.URLParam(r, "id"), queryInt(r, "limit", 100))
	if err != nil {
		writeServiceError(w, h.logger, "entries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
