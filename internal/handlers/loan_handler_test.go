package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mizan/backend/internal/models"
	"github.com/mizan/backend/internal/services"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockLoans struct {
	mock.Mock
}

func (m *MockLoans) loan(args mock.Arguments) (*models.Loan, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Loan), args.Error(1)
}

func (m *MockLoans) Create(ctx context.Context, who models.Identity, p services.CreateLoanParams) (*models.Loan, error) {
	return m.loan(m.Called(ctx, who, p))
}

func (m *MockLoans) Get(ctx context.Context, who models.Identity, id string) (*models.Loan, error) {
	return m.loan(m.Called(ctx, who, id))
}

func (m *MockLoans) List(ctx context.Context, who models.Identity, status models.LoanStatus) ([]models.Loan, error) {
	args := m.Called(ctx, who, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Loan), args.Error(1)
}

func (m *MockLoans) Payments(ctx context.Context, who models.Identity, id string) ([]models.Transaction, error) {
	args := m.Called(ctx, who, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Transaction), args.Error(1)
}

func (m *MockLoans) AddPayment(ctx context.Context, who models.Identity, loanID string, req services.LoanPaymentRequest) (*services.LoanPaymentResult, error) {
	args := m.Called(ctx, who, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.LoanPaymentResult), args.Error(1)
}

func (m *MockLoans) Delete(ctx context.Context, who models.Identity, id string) error {
	return m.Called(ctx, who, id).Error(0)
}

func loanRouter(loans *MockLoans) http.Handler {
	r := chi.NewRouter()
	r.Route("/loans", NewLoanHandler(loans, zerolog.Nop()).Routes)
	return r
}

func TestLoanHandler_List(t *testing.T) {
	t.Run("all loans", func(t *testing.T) {
		loans := &MockLoans{}
		loans.On("List", mock.Anything, caller, models.LoanStatus("")).Return([]models.Loan{}, nil)

		rec := serve(t, loanRouter(loans), http.MethodGet, "/loans/", "", &caller)
		assert.Equal(t, http.StatusOK, rec.Code)
		loans.AssertExpectations(t)
	})

	t.Run("by status", func(t *testing.T) {
		loans := &MockLoans{}
		loans.On("List", mock.Anything, caller, models.LoanOverdue).Return([]models.Loan{{ID: "l1"}}, nil)

		rec := serve(t, loanRouter(loans), http.MethodGet, "/loans/?status=overdue", "", &caller)
		assert.Equal(t, http.StatusOK, rec.Code)
		loans.AssertExpectations(t)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := serve(t, loanRouter(&MockLoans{}), http.MethodGet, "/loans/?status=late", "", &caller)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoanHandler_Pay(t *testing.T) {
	body := `{"amount":"500","method":"cash","date":"2026-03-15T00:00:00Z"}`

	t.Run("installment recorded", func(t *testing.T) {
		loans := &MockLoans{}
		loans.On("AddPayment", mock.Anything, caller, "l1", mock.MatchedBy(func(req services.LoanPaymentRequest) bool {
			return req.Method == "cash" && req.AccountID == nil && req.Amount.Equal(decimal.NewFromInt(500))
		})).Return(&services.LoanPaymentResult{Loan: &models.Loan{ID: "l1"}, InstallmentNumber: 3}, nil)

		rec := serve(t, loanRouter(loans), http.MethodPost, "/loans/l1/payments", body, &caller)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"installment_number":3`)
		loans.AssertExpectations(t)
	})

	t.Run("paid off loan", func(t *testing.T) {
		loans := &MockLoans{}
		loans.On("AddPayment", mock.Anything, caller, "l1", mock.Anything).Return(nil, services.ErrAlreadyPaid)

		rec := serve(t, loanRouter(loans), http.MethodPost, "/loans/l1/payments", body, &caller)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("funding account in another currency", func(t *testing.T) {
		loans := &MockLoans{}
		loans.On("AddPayment", mock.Anything, caller, "l1", mock.Anything).Return(nil, services.ErrCurrencyMismatch)

		rec := serve(t, loanRouter(loans), http.MethodPost, "/loans/l1/payments",
			`{"amount":"500","method":"bank_transfer","account_id":"usd-1","date":"2026-03-15T00:00:00Z"}`, &caller)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestLoanHandler_Delete(t *testing.T) {
	loans := &MockLoans{}
	loans.On("Delete", mock.Anything, caller, "l1").Return(services.ErrDeletionBlocked)

	rec := serve(t, loanRouter(loans), http.MethodDelete, "/loans/l1", "", &caller)
	assert.Equal(t, http.StatusConflict, rec.Code)
	loans.AssertExpectations(t)
}
