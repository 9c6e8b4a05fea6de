package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/middleware"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEntries struct {
	mock.Mock
}

func (m *MockEntries) Record(ctx context.Context, who models.Identity, p services.SimpleEntryParams) (*models.Transaction, error) {
	args := m.Called(ctx, who, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockEntries) Get(ctx context.Context, who models.Identity, id string) (*models.Transaction, error) {
	args := m.Called(ctx, who, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockEntries) Delete(ctx context.Context, who models.Identity, id string, reverse bool) error {
	return m.Called(ctx, who, id, reverse).Error(0)
}

type MockTransfers struct {
	mock.Mock
}

func (m *MockTransfers) Execute(ctx context.Context, who models.Identity, req services.TransferRequest) (*services.TransferResult, error) {
	args := m.Called(ctx, who, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.TransferResult), args.Error(1)
}

var caller = models.Identity{UserID: "user-1"}

func ledgerRouter(entries *MockEntries, transfers *MockTransfers) http.Handler {
	h := NewLedgerHandler(entries, transfers, zerolog.Nop())
	r := chi.NewRouter()
	r.Post("/transfers", h.Transfer)
	r.Post("/entries", h.Record)
	r.Get("/entries/{id}", h.Get)
	r.Delete("/entries/{id}", h.Delete)
	return r
}

func serve(t *testing.T, handler http.Handler, method, target, body string, who *models.Identity) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if who != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *who))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: entry x", services.ErrNotFound), http.StatusNotFound},
		{services.ErrMissingRequiredAccount, http.StatusBadRequest},
		{services.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{services.ErrAlreadyPaid, http.StatusConflict},
		{services.ErrDeletionBlocked, http.StatusConflict},
		{services.ErrRateUnavailable, http.StatusServiceUnavailable},
		{services.ErrConcurrentUpdate, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
		{services.ErrPersistenceFailure, http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			assert.Equal(t, tc.want, statusFor(tc.err))
		})
	}
}

func TestLedgerHandler_Transfer(t *testing.T) {
	body := `{"source_account_id":"a1","destination_account_id":"a2","amount":"100","date":"2026-03-15T00:00:00Z"}`

	t.Run("unauthenticated", func(t *testing.T) {
		rec := serve(t, ledgerRouter(&MockEntries{}, &MockTransfers{}), http.MethodPost, "/transfers", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec := serve(t, ledgerRouter(&MockEntries{}, &MockTransfers{}), http.MethodPost, "/transfers",
			`{"source_account_id":"a1","fee":"1"}`, &caller)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("committed", func(t *testing.T) {
		transfers := &MockTransfers{}
		transfers.On("Execute", mock.Anything, caller, mock.AnythingOfType("services.TransferRequest")).
			Return(&services.TransferResult{Rate: decimal.NewFromInt(1), TargetAmount: decimal.NewFromInt(100)}, nil)

		rec := serve(t, ledgerRouter(&MockEntries{}, transfers), http.MethodPost, "/transfers", body, &caller)
		assert.Equal(t, http.StatusCreated, rec.Code)

		var got services.TransferResult
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.True(t, got.TargetAmount.Equal(decimal.NewFromInt(100)))
		transfers.AssertExpectations(t)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		transfers := &MockTransfers{}
		transfers.On("Execute", mock.Anything, caller, mock.Anything).
			Return(nil, fmt.Errorf("%w: account a1", services.ErrInsufficientBalance))

		rec := serve(t, ledgerRouter(&MockEntries{}, transfers), http.MethodPost, "/transfers", body, &caller)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

		var got services.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "insufficient_balance", got.Code)
		assert.Equal(t, "rejected", got.Kind)
	})

	t.Run("rate unavailable is retryable", func(t *testing.T) {
		transfers := &MockTransfers{}
		transfers.On("Execute", mock.Anything, caller, mock.Anything).Return(nil, services.ErrRateUnavailable)

		rec := serve(t, ledgerRouter(&MockEntries{}, transfers), http.MethodPost, "/transfers", body, &caller)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	})
}

func TestLedgerHandler_Delete(t *testing.T) {
	t.Run("reverse flag is passed through", func(t *testing.T) {
		entries := &MockEntries{}
		entries.On("Delete", mock.Anything, caller, "e1", true).Return(nil)

		rec := serve(t, ledgerRouter(entries, &MockTransfers{}), http.MethodDelete, "/entries/e1?reverse=true", "", &caller)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		entries.AssertExpectations(t)
	})

	t.Run("loan payment entries are blocked", func(t *testing.T) {
		entries := &MockEntries{}
		entries.On("Delete", mock.Anything, caller, "e2", false).Return(services.ErrDeletionBlocked)

		rec := serve(t, ledgerRouter(entries, &MockTransfers{}), http.MethodDelete, "/entries/e2", "", &caller)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("storage failure hides details", func(t *testing.T) {
		entries := &MockEntries{}
		entries.On("Get", mock.Anything, caller, "e3").Return(nil, errors.New("pq: connection refused"))

		rec := serve(t, ledgerRouter(entries, &MockTransfers{}), http.MethodGet, "/entries/e3", "", &caller)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var got services.ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "Internal server error", got.Error)
	})
}
