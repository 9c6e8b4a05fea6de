package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
)

type LoanBook interface {
	Create(ctx context.Context, who models.Identity, p services.CreateLoanParams) (*models.Loan, error)
	Get(ctx context.Context, who models.Identity, id string) (*models.Loan, error)
	List(ctx context.Context, who models.Identity, status models.LoanStatus) ([]models.Loan, error)
	Payments(ctx context.Context, who models.Identity, id string) ([]models.Transaction, error)
	AddPayment(ctx context.Context, who models.Identity, loanID string, req services.LoanPaymentRequest) (*services.LoanPaymentResult, error)
	Delete(ctx context.Context, who models.Identity, id string) error
}

type LoanHandler struct {
	loans  LoanBook
	logger zerolog.Logger
}

func NewLoanHandler(loans LoanBook, logger zerolog.Logger) *LoanHandler {
	return &LoanHandler{loans: loans, logger: logger.With().Str("handler", "loans").Logger()}
}

func (h *LoanHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	r.Get("/{id}/payments", h.Payments)
	r.Post("/{id}/payments", h.Pay)
}

// @Summary Register a loan
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateLoanParams true "Loan"
// @Success 201 {object} models.Loan
// @Router /loans [post]
func (h *LoanHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.CreateLoanParams
	if !decodeBody(w, r, &req) {
		return
	}
	loan, err := h.loans.Create(r.Context(), who, req)
	if err != nil {
		writeServiceError(w, h.logger, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// @Summary List loans
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param status query string false "Loan status"
// @Success 200 {array} models.Loan
// @Router /loans [get]
func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var status models.LoanStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st, err := models.ParseLoanStatus(raw)
		if err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		status = st
	}
	loans, err := h.loans.List(r.Context(), who, status)
	if err != nil {
		writeServiceError(w, h.logger, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// @Summary Get a loan
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {object} models.Loan
// @Router /loans/{id} [get]
func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	loan, err := h.loans.Get(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// @Summary Payment history of a loan
// @Tags Loans
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 200 {array} models.Transaction
// @Router /loans/{id}/payments [get]
func (h *LoanHandler) Payments(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	entries, err := h.loans.Payments(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "payments", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// @Summary Pay one installment
// @Tags Loans
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Param request body services.LoanPaymentRequest true "Payment"
// @Success 201 {object} services.LoanPaymentResult
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/{id}/payments [post]
func (h *LoanHandler) Pay(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.LoanPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.loans.AddPayment(r.Context(), who, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, "pay", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// @Summary Delete a loan without payments
// @Tags Loans
// @Security BearerAuth
// @Param id path string true "Loan ID"
// @Success 204
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/{id} [delete]
func (h *LoanHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.loans.Delete(r.Context(), who, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
