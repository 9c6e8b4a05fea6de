package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type DebtBook interface {
	Create(ctx context.Context, who models.Identity, p services.CreateDebtParams) (*models.Debt, error)
	Get(ctx context.Context, who models.Identity, id string) (*models.Debt, error)
	List(ctx context.Context, who models.Identity, f services.DebtFilter) ([]models.Debt, error)
	Update(ctx context.Context, who models.Identity, id string, p services.UpdateDebtParams) (*models.Debt, error)
	RecordPayment(ctx context.Context, who models.Identity, id string, amount decimal.Decimal) (*models.Debt, error)
	Liquidate(ctx context.Context, who models.Identity, id string, sellPrice decimal.Decimal) (*models.Debt, error)
	Delete(ctx context.Context, who models.Identity, id string) error
}

type DebtHandler struct {
	debts  DebtBook
	logger zerolog.Logger
}

func NewDebtHandler(debts DebtBook, logger zerolog.Logger) *DebtHandler {
	return &DebtHandler{debts: debts, logger: logger.With().Str("handler", "debts").Logger()}
}

func (h *DebtHandler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/payments", h.Pay)
	r.Post("/{id}/liquidate", h.Liquidate)
}

// @Summary Record a payable or receivable
// @Tags Debts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.CreateDebtParams true "Debt"
// @Success 201 {object} models.Debt
// @Router /debts [post]
func (h *DebtHandler) Create(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.CreateDebtParams
	if !decodeBody(w, r, &req) {
		return
	}
	debt, err := h.debts.Create(r.Context(), who, req)
	if err != nil {
		writeServiceError(w, h.logger, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, debt)
}

// @Summary List debts
// @Tags Debts
// @Produce json
// @Security BearerAuth
// @Param type query string false "payable or receivable"
// @Param status query string false "Debt status"
// @Success 200 {array} models.Debt
// @Router /debts [get]
func (h *DebtHandler) List(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var filter services.DebtFilter
	q := r.URL.Query()
	if raw := q.Get("type"); raw != "" {
		t, err := models.ParseDebtType(raw)
		if err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		filter.Type = t
	}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseDebtStatus(raw)
		if err != nil {
			services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
			return
		}
		filter.Status = st
	}
	debts, err := h.debts.List(r.Context(), who, filter)
	if err != nil {
		writeServiceError(w, h.logger, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, debts)
}

// @Summary Get a debt
// @Tags Debts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Debt ID"
// @Success 200 {object} models.Debt
// @Router /debts/{id} [get]
func (h *DebtHandler) Get(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	debt, err := h.debts.Get(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// @Summary Update a debt
// @Tags Debts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Debt ID"
// @Param request body services.UpdateDebtParams true "Changes"
// @Success 200 {object} models.Debt
// @Router /debts/{id} [patch]
func (h *DebtHandler) Update(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.UpdateDebtParams
	if !decodeBody(w, r, &req) {
		return
	}
	debt, err := h.debts.Update(r.Context(), who, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// @Summary Record a partial or full settlement
// @Tags Debts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Debt ID"
// @Param request body object{amount=string} true "Amount"
// @Success 200 {object} models.Debt
// @Router /debts/{id}/payments [post]
func (h *DebtHandler) Pay(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	debt, err := h.debts.RecordPayment(r.Context(), who, chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		writeServiceError(w, h.logger, "pay", err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// @Summary Sell a precious-metal or foreign-currency position
// @Tags Debts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Debt ID"
// @Param request body object{sell_price=string} true "Sell price per unit"
// @Success 200 {object} models.Debt
// @Router /debts/{id}/liquidate [post]
func (h *DebtHandler) Liquidate(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req struct {
		SellPrice decimal.Decimal `json:"sell_price"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	debt, err := h.debts.Liquidate(r.Context(), who, chi.URLParam(r, "id"), req.SellPrice)
	if err != nil {
		writeServiceError(w, h.logger, "liquidate", err)
		return
	}
	writeJSON(w, http.StatusOK, debt)
}

// @Summary Delete a debt
// @Tags Debts
// @Security BearerAuth
// @Param id path string true "Debt ID"
// @Success 204
// @Router /debts/{id} [delete]
func (h *DebtHandler) Delete(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.debts.Delete(r.Context(), who, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, "delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
