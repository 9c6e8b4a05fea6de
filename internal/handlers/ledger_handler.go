package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
)

type EntryRecorder interface {
	Record(ctx context.Context, who models.Identity, p services.SimpleEntryParams) (*models.Transaction, error)
	Get(ctx context.Context, who models.Identity, id string) (*models.Transaction, error)
	Delete(ctx context.Context, who models.Identity, id string, reverse bool) error
}

type Transferer interface {
	Execute(ctx context.Context, who models.Identity, req services.TransferRequest) (*services.TransferResult, error)
}

// LedgerHandler serves single-account entries and transfers.
type LedgerHandler struct {
	entries   EntryRecorder
	transfers Transferer
	logger    zerolog.Logger
}

func NewLedgerHandler(entries EntryRecorder, transfers Transferer, logger zerolog.Logger) *LedgerHandler {
	return &LedgerHandler{
		entries:   entries,
		transfers: transfers,
		logger:    logger.With().Str("handler", "ledger").Logger(),
	}
}

// @Summary Record income, expense or ATM operation
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.SimpleEntryParams true "Entry"
// @Success 201 {object} models.Transaction
// @Failure 422 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /entries [post]
func (h *LedgerHandler) Record(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.SimpleEntryParams
	if !decodeBody(w, r, &req) {
		return
	}
	entry, err := h.entries.Record(r.Context(), who, req)
	if err != nil {
		writeServiceError(w, h.logger, "record", err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// @Summary Get a ledger entry
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Success 200 {object} models.Transaction
// @Router /entries/{id} [get]
func (h *LedgerHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	entry, err := h.entries.Get(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Delete removes an entry (and its transfer pair). With reverse=true the
// balance effect is undone as well.
// @Summary Delete a ledger entry
// @Tags Ledger
// @Security BearerAuth
// @Param id path string true "Entry ID"
// @Param reverse query bool false "Reverse balance effect"
// @Success 204
// @Failure 409 {object} services.ErrorResponse
// @Router /entries/{id} [delete]
func (h *LedgerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	reverse, _ := strconv.ParseBool(r.URL.Query().Get("reverse"))
	if err := h.entries.Delete(r.Context(), who, chi.URLParam(r, "id"), reverse); err != nil {
		writeServiceError(w, h.logger, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Transfer moves money between two of the caller's accounts
// @Summary Transfer between accounts
// @Description Cross-currency transfers convert through the base currency
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.TransferRequest true "Transfer"
// @Success 201 {object} services.TransferResult
// @Failure 422 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.TransferRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.transfers.Execute(r.Context(), who, req)
	if err != nil {
		writeServiceError(w, h.logger, "transfer", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
