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

type CardPayer interface {
	MinimumPayment(ctx context.Context, who models.Identity, cardID string) (decimal.Decimal, error)
	Statement(ctx context.Context, who models.Identity, cardID string) (*services.CardStatement, error)
	MakePayment(ctx context.Context, who models.Identity, cardID string, req services.CardPaymentRequest) (*services.CardPaymentResult, error)
}

type CreditHandler struct {
	cards  CardPayer
	logger zerolog.Logger
}

func NewCreditHandler(cards CardPayer, logger zerolog.Logger) *CreditHandler {
	return &CreditHandler{cards: cards, logger: logger.With().Str("handler", "credit").Logger()}
}

func (h *CreditHandler) Routes(r chi.Router) {
	r.Get("/{id}/statement", h.Statement)
	r.Get("/{id}/minimum-payment", h.MinimumPayment)
	r.Post("/{id}/payments", h.Pay)
}

// @Summary Minimum payment due on a credit card
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card account ID"
// @Success 200 {object} object{card_id=string,minimum_payment=string}
// @Router /cards/{id}/minimum-payment [get]
func (h *CreditHandler) MinimumPayment(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	due, err := h.cards.MinimumPayment(r.Context(), who, id)
	if err != nil {
		writeServiceError(w, h.logger, "minimum_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"card_id": id, "minimum_payment": due})
}

// @Summary Credit card statement summary
// @Tags Cards
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card account ID"
// @Success 200 {object} services.CardStatement
// @Router /cards/{id}/statement [get]
func (h *CreditHandler) Statement(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	st, err := h.cards.Statement(r.Context(), who, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, "statement", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// @Summary Pay down a credit card
// @Tags Cards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Card account ID"
// @Param request body services.CardPaymentRequest true "Payment"
// @Success 201 {object} services.CardPaymentResult
// @Failure 409 {object} services.ErrorResponse
// @Router /cards/{id}/payments [post]
func (h *CreditHandler) Pay(w http.ResponseWriter, r *http.Request) {
	who, ok := identity(w, r)
	if !ok {
		return
	}
	var req services.CardPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := h.cards.MakePayment(r.Context(), who, chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, h.logger, "pay", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
