package services

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	owner     = models.Identity{UserID: "user-1"}
	entryDate = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
)

type MockRateProvider struct {
	mock.Mock
}

func (m *MockRateProvider) Rate(ctx context.Context, currency string, date time.Time) (models.Rate, error) {
	args := m.Called(ctx, currency, date)
	return args.Get(0).(models.Rate), args.Error(1)
}

func (m *MockRateProvider) Rates(ctx context.Context, date time.Time) (map[string]models.Rate, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]models.Rate), args.Error(1)
}

// recordingSink keeps every reported outcome.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *recordingSink) Report(_ context.Context, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *recordingSink) last() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.outcomes) == 0 {
		return Outcome{}
	}
	return s.outcomes[len(s.outcomes)-1]
}

// decimalArg matches a decimal query argument by value, ignoring its exponent.
type decimalArg struct {
	want decimal.Decimal
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func eqDecimal(s string) decimalArg {
	return decimalArg{want: dec(s)}
}

func (a decimalArg) Match(v driver.Value) bool {
	var got decimal.Decimal
	switch x := v.(type) {
	case string:
		d, err := decimal.NewFromString(x)
		if err != nil {
			return false
		}
		got = d
	case []byte:
		d, err := decimal.NewFromString(string(x))
		if err != nil {
			return false
		}
		got = d
	default:
		return false
	}
	return got.Equal(a.want)
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		BaseCurrency:    "YER",
		MinPaymentRate:  dec("0.20"),
		MinPaymentFloor: decimal.NewFromInt(100),
		RateCacheTTL:    time.Minute,
		AmountPlaces:    8,
	}
}

// fixture wires every service against one mocked database.
type fixture struct {
	db        *sqlx.DB
	sql       sqlmock.Sqlmock
	rates     *MockRateProvider
	sink      *recordingSink
	cfg       *config.LedgerConfig
	accounts  *AccountService
	ledger    *LedgerService
	transfers *TransferService
	credit    *CreditService
	loans     *LoanService
	debts     *DebtService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, sqlMock := newMockDB(t)
	f := &fixture{
		db:    db,
		sql:   sqlMock,
		rates: &MockRateProvider{},
		sink:  &recordingSink{},
		cfg:   testConfig(),
	}
	log := zerolog.Nop()
	f.accounts = NewAccountService(db, f.sink, log)
	f.ledger = NewLedgerService(db, f.accounts, f.rates, f.cfg, f.sink, log)
	f.transfers = NewTransferService(db, f.accounts, f.ledger, f.rates, f.cfg, f.sink, log)
	f.credit = NewCreditService(db, f.accounts, f.ledger, f.transfers, f.rates, f.cfg, f.sink, log)
	f.loans = NewLoanService(db, f.accounts, f.ledger, f.cfg, f.sink, log)
	f.debts = NewDebtService(db, f.cfg, f.sink, log)
	return f
}

func (f *fixture) verify(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sql.ExpectationsWereMet())
	f.rates.AssertExpectations(t)
}

func (f *fixture) rate(currency string, r models.Rate) {
	f.rates.On("Rate", mock.Anything, currency, mock.Anything).Return(r, nil)
}

var accountColumnNames = []string{"id", "owner_id", "name", "type", "currency", "balance", "status",
	"details", "version", "created_at", "updated_at"}

func account(id string, t models.AccountType, currency, balance string) models.Account {
	a := models.Account{
		ID:       id,
		OwnerID:  owner.UserID,
		Name:     id,
		Type:     t,
		Currency: currency,
		Balance:  dec(balance),
		Status:   models.AccountStatusActive,
		Version:  1,
	}
	switch t {
	case models.AccountTypeBank:
		a.Details.Bank = &models.BankDetails{BankName: "Kuraimi"}
	case models.AccountTypeCreditCard:
		a.Details.CreditCard = &models.CreditCardDetails{BankName: "Tadhamon"}
	}
	return a
}

func card(id, balance, limit string) models.Account {
	a := account(id, models.AccountTypeCreditCard, "YER", balance)
	a.Details.CreditCard.CreditLimit = dec(limit)
	return a
}

func accountRows(accounts ...models.Account) *sqlmock.Rows {
	rows := sqlmock.NewRows(accountColumnNames)
	for _, a := range accounts {
		details, _ := json.Marshal(a.Details)
		rows.AddRow(a.ID, a.OwnerID, a.Name, string(a.Type), a.Currency, a.Balance.String(),
			string(a.Status), details, a.Version, entryDate, entryDate)
	}
	return rows
}

const (
	selectAccount       = `SELECT id, owner_id, name, type, currency, balance, status, details, version, created_at, updated_at FROM accounts WHERE id = \$1 AND owner_id = \$2`
	selectAccountLocked = selectAccount + ` FOR UPDATE`
	updateBalance       = `UPDATE accounts SET balance = \$1, version = version \+ 1, updated_at = \$2 WHERE id = \$3 AND version = \$4`
	insertEntry         = `INSERT INTO transactions`
)

// expectAccount queues a plain (unlocked) account read.
func (f *fixture) expectAccount(a models.Account) {
	f.sql.ExpectQuery(selectAccount + `$`).WithArgs(a.ID, owner.UserID).WillReturnRows(accountRows(a))
}

func (f *fixture) expectLock(a models.Account) {
	f.sql.ExpectQuery(selectAccountLocked).WithArgs(a.ID, owner.UserID).WillReturnRows(accountRows(a))
}

func (f *fixture) expectBalance(a models.Account, newBalance string) {
	f.sql.ExpectExec(updateBalance).
		WithArgs(eqDecimal(newBalance), sqlmock.AnyArg(), a.ID, a.Version).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

var transactionColumnNames = []string{"id", "owner_id", "type", "amount", "currency", "exchange_rate",
	"try_equivalent", "source_account_id", "destination_account_id", "reference_id", "related_type",
	"related_id", "category_id", "description", "date", "status", "created_at"}

func entryRows(entries ...models.Transaction) *sqlmock.Rows {
	rows := sqlmock.NewRows(transactionColumnNames)
	for _, e := range entries {
		rows.AddRow(e.ID, owner.UserID, string(e.Type), e.Amount.String(), e.Currency, e.ExchangeRate.String(),
			e.BaseEquivalent.String(), nullable(e.SourceAccountID), nullable(e.DestinationAccountID),
			nullable(e.ReferenceID), nullable(e.RelatedType), nullable(e.RelatedID), nullable(e.CategoryID),
			e.Description, e.Date, "completed", entryDate)
	}
	return rows
}

func nullable(s *string) driver.Value {
	if s == nil {
		return nil
	}
	return *s
}

func ptr[T any](v T) *T {
	return &v
}
