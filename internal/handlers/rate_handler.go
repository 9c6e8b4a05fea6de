package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
)

type RateHandler struct {
	rates  services.RateProvider
	logger zerolog.Logger
}

func NewRateHandler(rates services.RateProvider, logger zerolog.Logger) *RateHandler {
	return &RateHandler{rates: rates, logger: logger.With().Str("handler", "rates").Logger()}
}

// @Summary Effective exchange rates for a date
// @Tags Rates
// @Produce json
// @Security BearerAuth
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} map[string]models.Rate
// @Failure 503 {object} services.ErrorResponse
// @Router /rates [get]
func (h *RateHandler) List(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		services.SendErrorResponse(w, "date must be YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}
	rates, err := h.rates.Rates(r.Context(), date)
	if err != nil {
		writeServiceError(w, h.logger, "rates", err)
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

// @Summary Effective rate of one currency
// @Tags Rates
// @Produce json
// @Security BearerAuth
// @Param currency path string true "Currency code"
// @Param date query string false "YYYY-MM-DD, defaults to today"
// @Success 200 {object} models.Rate
// @Router /rates/{currency} [get]
func (h *RateHandler) Get(w http.ResponseWriter, r *http.Request) {
	date, err := queryDate(r, "date")
	if err != nil {
		services.SendErrorResponse(w, "date must be YYYY-MM-DD", http.StatusBadRequest, nil)
		return
	}
	rate, err := h.rates.Rate(r.Context(), strings.ToUpper(chi.URLParam(r, "currency")), date)
	if err != nil {
		writeServiceError(w, h.logger, "rate", err)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}
