package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const loanColumns = `id, owner_id, bank_name, loan_type, amount, monthly_payment, installments,
	remaining_installments, start_date, due_date, next_payment_date, remaining_amount, status,
	notes, created_at, updated_at`

type CreateLoanParams struct {
	BankName              string          `json:"bank_name" validate:"required,max=120"`
	LoanType              string          `json:"loan_type" validate:"required,max=60"`
	Amount                decimal.Decimal `json:"amount" validate:"dpositive"`
	MonthlyPayment        decimal.Decimal `json:"monthly_payment" validate:"dpositive"`
	Installments          int             `json:"installments" validate:"required,min=1,max=600"`
	RemainingInstallments *int            `json:"remaining_installments"`
	StartDate             time.Time       `json:"start_date" validate:"required"`
	NextPaymentDate       *time.Time      `json:"next_payment_date"`
	Status                string          `json:"status" validate:"omitempty,oneof=pending active overdue"`
	Notes                 string          `json:"notes" validate:"max=1000"`
}

type LoanPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount" validate:"dpositive"`
	Method    string          `json:"method" validate:"required"`
	Date      time.Time       `json:"date" validate:"required"`
	AccountID *string         `json:"account_id"`
	Notes     string          `json:"notes" validate:"max=500"`
}

type LoanPaymentResult struct {
	Loan              *models.Loan        `json:"loan"`
	Entry             *models.Transaction `json:"entry"`
	InstallmentNumber int                 `json:"installment_number"`
}

// LoanService tracks installment loans. Money movement for a payment goes
// through the ledger in the same unit of work as the loan update.
type LoanService struct {
	db        *sqlx.DB
	accounts  *AccountService
	ledger    *LedgerService
	cfg       *config.LedgerConfig
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewLoanService(db *sqlx.DB, accounts *AccountService, ledger *LedgerService, cfg *config.LedgerConfig, sink OutcomeSink, logger zerolog.Logger) *LoanService {
	return &LoanService{
		db:        db,
		accounts:  accounts,
		ledger:    ledger,
		cfg:       cfg,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "loans").Logger(),
	}
}

// Create registers a loan. due_date is start + installments months and
// remaining_amount is monthly_payment × remaining_installments.
func (s *LoanService) Create(ctx context.Context, who models.Identity, p CreateLoanParams) (*models.Loan, error) {
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}
	remaining := p.Installments
	if p.RemainingInstallments != nil {
		remaining = *p.RemainingInstallments
	}
	if remaining < 0 || remaining > p.Installments {
		return nil, rejectf(ErrInvalidInput, "remaining installments %d outside 0..%d", remaining, p.Installments)
	}

	status := models.LoanActive
	if p.Status != "" {
		parsed, err := models.ParseLoanStatus(p.Status)
		if err != nil {
			return nil, rejectf(ErrInvalidInput, "%v", err)
		}
		status = parsed
	}

	next := models.AddMonths(p.StartDate, p.Installments-remaining+1)
	if p.NextPaymentDate != nil {
		next = *p.NextPaymentDate
	}

	now := time.Now().UTC()
	loan := &models.Loan{
		ID:                    uuid.NewString(),
		OwnerID:               who.UserID,
		BankName:              p.BankName,
		LoanType:              p.LoanType,
		Amount:                p.Amount,
		MonthlyPayment:        p.MonthlyPayment,
		Installments:          p.Installments,
		RemainingInstallments: remaining,
		StartDate:             p.StartDate,
		DueDate:               models.AddMonths(p.StartDate, p.Installments),
		NextPaymentDate:       next,
		RemainingAmount:       p.MonthlyPayment.Mul(decimal.NewFromInt(int64(remaining))),
		Status:                status,
		Notes:                 p.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if remaining == 0 {
		loan.Status = models.LoanPaid
		loan.RemainingAmount = decimal.Zero
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO loans (id, owner_id, bank_name, loan_type, amount, monthly_payment, installments,
			remaining_installments, start_date, due_date, next_payment_date, remaining_amount, status,
			notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		loan.ID, loan.OwnerID, loan.BankName, loan.LoanType, loan.Amount, loan.MonthlyPayment, loan.Installments,
		loan.RemainingInstallments, loan.StartDate, loan.DueDate, loan.NextPaymentDate, loan.RemainingAmount,
		string(loan.Status), loan.Notes, loan.CreatedAt, loan.UpdatedAt)
	err = persistence("insert loan", err)
	s.sink.Report(ctx, Outcome{Operation: "loan.create", OwnerID: who.UserID, EntityID: loan.ID,
		Amount: loan.Amount, Currency: s.cfg.BaseCurrency, Err: err})
	if err != nil {
		return nil, err
	}
	return loan, nil
}

// Get returns one of the caller's loans.
func (s *LoanService) Get(ctx context.Context, who models.Identity, id string) (*models.Loan, error) {
	return s.find(ctx, s.db, who, id, false)
}

// List returns the caller's loans, optionally by status.
func (s *LoanService) List(ctx context.Context, who models.Identity, status models.LoanStatus) ([]models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE owner_id = $1`
	args := []any{who.UserID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY next_payment_date`

	loans := []models.Loan{}
	if err := s.db.SelectContext(ctx, &loans, query, args...); err != nil {
		return nil, persistence("list loans", err)
	}
	return loans, nil
}

// Payments lists the ledger entries recorded against a loan.
func (s *LoanService) Payments(ctx context.Context, who models.Identity, id string) ([]models.Transaction, error) {
	entries := []models.Transaction{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1 AND related_type = $2 AND related_id = $3
		ORDER BY date, created_at`, who.UserID, models.RelatedLoan, id)
	if err != nil {
		return nil, persistence("list loan payments", err)
	}
	return entries, nil
}

// AddPayment applies one installment.
func (s *LoanService) AddPayment(ctx context.Context, who models.Identity, loanID string, req LoanPaymentRequest) (*LoanPaymentResult, error) {
	result, err := s.addPayment(ctx, who, loanID, req)
	s.sink.Report(ctx, Outcome{Operation: "loan.payment", OwnerID: who.UserID, EntityID: loanID,
		Amount: req.Amount, Currency: s.cfg.BaseCurrency, Err: err})
	return result, err
}

func (s *LoanService) addPayment(ctx context.Context, who models.Identity, loanID string, req LoanPaymentRequest) (*LoanPaymentResult, error) {
	if err := s.validator.Params(&req); err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, rejectf(ErrInvalidInput, "%v", err)
	}

	loan, err := s.Get(ctx, who, loanID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(loan); err != nil {
		return nil, err
	}
	if method.RequiresAccount() && (req.AccountID == nil || *req.AccountID == "") {
		return nil, rejectf(ErrMissingRequiredAccount, "%s payments need an account", method)
	}

	amount := req.Amount.Round(s.cfg.AmountPlaces)
	var result *LoanPaymentResult
	err = withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		loan, err := s.find(ctx, tx, who, loanID, true)
		if err != nil {
			return err
		}
		if err := checkPayable(loan); err != nil {
			return err
		}
		installment := loan.NextInstallment()

		entry := &models.Transaction{
			OwnerID:        who.UserID,
			Type:           models.TransactionLoanPayment,
			Amount:         amount.Neg(),
			Currency:       s.cfg.BaseCurrency,
			ExchangeRate:   one,
			BaseEquivalent: amount.Neg(),
			RelatedType:    strPtr(models.RelatedLoan),
			RelatedID:      &loan.ID,
			Description:    describe(fmt.Sprintf("installment %d/%d", installment, loan.Installments), loan.BankName, req.Notes),
			Date:           req.Date,
		}

		leg := Leg{Entry: entry}
		if method.RequiresAccount() {
			account, err := s.fundingAccount(ctx, tx, who, *req.AccountID, method, amount)
			if err != nil {
				return err
			}
			entry.SourceAccountID = &account.ID
			leg.Account = account
		}
		if err := s.ledger.RecordSimple(ctx, tx, leg); err != nil {
			return err
		}

		applyInstallment(loan)
		loan.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE loans
			SET remaining_installments = $1, next_payment_date = $2, remaining_amount = $3, status = $4, updated_at = $5
			WHERE id = $6`,
			loan.RemainingInstallments, loan.NextPaymentDate, loan.RemainingAmount, string(loan.Status), loan.UpdatedAt, loan.ID)
		if err != nil {
			return persistence("update loan", err)
		}

		result = &LoanPaymentResult{Loan: loan, Entry: entry, InstallmentNumber: installment}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("loan", loanID).Int("installment", result.InstallmentNumber).
		Int("remaining", result.Loan.RemainingInstallments).Str("status", string(result.Loan.Status)).
		Msg("loan payment recorded")
	return result, nil
}

// fundingAccount locks and checks the account an installment is paid from.
// A card pays by taking on the amount as debt.
func (s *LoanService) fundingAccount(ctx context.Context, tx *sqlx.Tx, who models.Identity, id string, method models.PaymentMethod, amount decimal.Decimal) (*models.Account, error) {
	locked, err := s.accounts.lockAccounts(ctx, tx, who, id)
	if err != nil {
		return nil, err
	}
	account := locked[id]
	isCard := account.Type == models.AccountTypeCreditCard
	if isCard != (method == models.PaymentCreditCard) {
		return nil, rejectf(ErrInvalidInput, "%s payments cannot draw on a %s account", method, account.Type)
	}
	if account.Currency != s.cfg.BaseCurrency {
		return nil, rejectf(ErrCurrencyMismatch, "loan payments are in %s, account %s holds %s", s.cfg.BaseCurrency, account.ID, account.Currency)
	}
	if !account.CanSpend(amount) {
		return nil, rejectf(ErrInsufficientBalance, "account %s balance %s, requested %s", account.ID, account.Balance, amount)
	}
	return account, nil
}

func checkPayable(loan *models.Loan) error {
	if loan.Status == models.LoanPaid || loan.RemainingInstallments <= 0 {
		return rejectf(ErrAlreadyPaid, "loan %s has no installments left", loan.ID)
	}
	return nil
}

// applyInstallment advances the schedule by one paid installment.
func applyInstallment(loan *models.Loan) {
	loan.RemainingInstallments--
	if loan.RemainingInstallments > 0 {
		loan.NextPaymentDate = models.AddMonths(loan.NextPaymentDate, 1)
	}
	loan.RemainingAmount = loan.MonthlyPayment.Mul(decimal.NewFromInt(int64(loan.RemainingInstallments)))

	if loan.RemainingInstallments == 0 {
		loan.Status = models.LoanPaid
		loan.RemainingAmount = decimal.Zero
	} else if loan.Status == models.LoanOverdue {
		loan.Status = models.LoanActive
	}
}

// Delete removes a loan that has no payments. A loan with payments is kept
// and ErrDeletionBlocked is returned.
func (s *LoanService) Delete(ctx context.Context, who models.Identity, id string) error {
	err := withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, who, id, true); err != nil {
			return err
		}
		var payments int
		err := tx.GetContext(ctx, &payments, `
			SELECT COUNT(*) FROM transactions
			WHERE related_type = $1 AND related_id = $2 AND type = $3`,
			models.RelatedLoan, id, string(models.TransactionLoanPayment))
		if err != nil {
			return persistence("count loan payments", err)
		}
		if payments > 0 {
			return rejectf(ErrDeletionBlocked, "loan %s has %d payments", id, payments)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE related_type = $1 AND related_id = $2`, models.RelatedLoan, id); err != nil {
			return persistence("delete loan entries", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
		return persistence("delete loan", err)
	})
	s.sink.Report(ctx, Outcome{Operation: "loan.delete", OwnerID: who.UserID, EntityID: id, Err: err})
	return err
}

// MarkOverdue flags loans whose next payment date has passed. It is meant
// for an external scheduler and is not scoped to a single owner.
func (s *LoanService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE loans SET status = $1, updated_at = $2
		WHERE status IN ($3, $4) AND next_payment_date < $5`,
		string(models.LoanOverdue), time.Now().UTC(), string(models.LoanPending), string(models.LoanActive), asOf)
	if err != nil {
		return 0, persistence("mark overdue loans", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, persistence("mark overdue loans", err)
	}
	if n > 0 {
		s.logger.Info().Int64("loans", n).Time("as_of", asOf).Msg("loans marked overdue")
	}
	return n, nil
}

func (s *LoanService) find(ctx context.Context, q sqlx.QueryerContext, who models.Identity, id string, forUpdate bool) (*models.Loan, error) {
	query := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var loan models.Loan
	err := sqlx.GetContext(ctx, q, &loan, query, id, who.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rejectf(ErrNotFound, "loan %s", id)
	}
	if err != nil {
		return nil, persistence("load loan", err)
	}
	return &loan, nil
}

func strPtr(s string) *string {
	return &s
}
