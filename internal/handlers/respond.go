package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mizan/backend/internal/middleware"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1_048_576

var statusByCode = map[string]int{
	services.ErrNotFound.Code:               http.StatusNotFound,
	services.ErrInvalidInput.Code:           http.StatusBadRequest,
	services.ErrMissingRequiredAccount.Code: http.StatusBadRequest,
	services.ErrInvalidAmount.Code:          http.StatusUnprocessableEntity,
	services.ErrInsufficientBalance.Code:    http.StatusUnprocessableEntity,
	services.ErrCurrencyMismatch.Code:       http.StatusUnprocessableEntity,
	services.ErrAlreadyPaid.Code:            http.StatusConflict,
	services.ErrAlreadySettled.Code:         http.StatusConflict,
	services.ErrDeletionBlocked.Code:        http.StatusConflict,
	services.ErrAccountInactive.Code:        http.StatusConflict,
	services.ErrRateUnavailable.Code:        http.StatusServiceUnavailable,
	services.ErrConcurrentUpdate.Code:       http.StatusServiceUnavailable,
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	if status, ok := statusByCode[services.CodeOf(err)]; ok {
		return status
	}
	if services.KindOf(err) == services.KindRejected {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeServiceError(w http.ResponseWriter, logger zerolog.Logger, op string, err error) {
	status := statusFor(err)
	ev := logger.Warn()
	if status >= http.StatusInternalServerError {
		ev = logger.Error()
	}
	ev.Err(err).Str("op", op).Int("status", status).Msg("request failed")

	message := services.CodeOf(err)
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	services.SendErrorResponse(w, message, status, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// identity resolves the caller or writes a 401.
func identity(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	who, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return who, ok
}

// decodeBody reads exactly one JSON object into dst, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}
	return true
}

// queryDate parses an optional YYYY-MM-DD query parameter, defaulting to today.
func queryDate(r *http.Request, name string) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}
	return time.Parse(time.DateOnly, raw)
}

func queryInt(r *http.Request, name string, fallback int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
