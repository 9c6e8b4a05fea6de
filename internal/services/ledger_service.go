package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, owner_id, type, amount, currency, exchange_rate, try_equivalent,
	source_account_id, destination_account_id, reference_id, related_type, related_id,
	category_id, description, date, status, created_at`

// Leg pairs a ledger entry with the account whose balance it moves. Account
// is nil for entries that touch no account (a cash loan installment).
type Leg struct {
	Entry   *models.Transaction
	Account *models.Account
}

// LedgerService writes ledger entries together with their balance effects.
type LedgerService struct {
	db        *sqlx.DB
	accounts  *AccountService
	rates     RateProvider
	cfg       *config.LedgerConfig
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewLedgerService(db *sqlx.DB, accounts *AccountService, rates RateProvider, cfg *config.LedgerConfig, sink OutcomeSink, logger zerolog.Logger) *LedgerService {
	return &LedgerService{
		db:        db,
		accounts:  accounts,
		rates:     rates,
		cfg:       cfg,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "ledger").Logger(),
	}
}

// withinUnit runs fn in one database transaction. Any error, including a
// cancelled context, rolls everything back.
func withinUnit(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return persistence("begin", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return persistence("commit", err)
	}
	return nil
}

// RecordTransfer writes both legs of a transfer with mutual reference ids and
// applies both balance deltas, all within tx.
func (s *LedgerService) RecordTransfer(ctx context.Context, tx *sqlx.Tx, source, destination Leg) error {
	if source.Account == nil || destination.Account == nil {
		return rejectf(ErrMissingRequiredAccount, "transfer legs need both accounts")
	}
	if source.Entry.ID == "" {
		source.Entry.ID = uuid.NewString()
	}
	if destination.Entry.ID == "" {
		destination.Entry.ID = uuid.NewString()
	}
	source.Entry.ReferenceID = &destination.Entry.ID
	destination.Entry.ReferenceID = &source.Entry.ID

	if err := s.applyEntry(ctx, tx, source); err != nil {
		return err
	}
	if err := s.applyEntry(ctx, tx, destination); err != nil {
		return err
	}
	if err := s.insertEntry(ctx, tx, source.Entry); err != nil {
		return err
	}
	return s.insertEntry(ctx, tx, destination.Entry)
}

// RecordSimple writes a single entry and its balance effect within tx.
func (s *LedgerService) RecordSimple(ctx context.Context, tx *sqlx.Tx, leg Leg) error {
	if leg.Entry.ID == "" {
		leg.Entry.ID = uuid.NewString()
	}
	if err := s.applyEntry(ctx, tx, leg); err != nil {
		return err
	}
	return s.insertEntry(ctx, tx, leg.Entry)
}

// applyEntry moves the account balance by the entry's signed amount:
// negative amounts leave the account, positive amounts arrive.
func (s *LedgerService) applyEntry(ctx context.Context, tx *sqlx.Tx, leg Leg) error {
	if leg.Account == nil {
		return nil
	}
	if leg.Entry.Amount.IsNegative() {
		return s.accounts.debit(ctx, tx, leg.Account, leg.Entry.Amount.Neg())
	}
	return s.accounts.credit(ctx, tx, leg.Account, leg.Entry.Amount)
}

func (s *LedgerService) insertEntry(ctx context.Context, tx *sqlx.Tx, e *models.Transaction) error {
	if e.Status == "" {
		e.Status = models.TransactionCompleted
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, owner_id, type, amount, currency, exchange_rate, try_equivalent,
			source_account_id, destination_account_id, reference_id, related_type, related_id,
			category_id, description, date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		e.ID, e.OwnerID, string(e.Type), e.Amount, e.Currency, e.ExchangeRate, e.BaseEquivalent,
		e.SourceAccountID, e.DestinationAccountID, e.ReferenceID, e.RelatedType, e.RelatedID,
		e.CategoryID, e.Description, e.Date, string(e.Status), e.CreatedAt)
	return persistence("insert ledger entry", err)
}

// SimpleEntryParams describes an income, expense or ATM operation on one account.
type SimpleEntryParams struct {
	AccountID   string          `json:"account_id" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=income expense atm_deposit atm_withdraw"`
	Amount      decimal.Decimal `json:"amount" validate:"dpositive"`
	Date        time.Time       `json:"date" validate:"required"`
	CategoryID  *string         `json:"category_id"`
	Description string          `json:"description" validate:"max=500"`
}

// Record posts a single-account operation. The rate is looked up before any
// write; spending checks run against the locked row.
func (s *LedgerService) Record(ctx context.Context, who models.Identity, p SimpleEntryParams) (*models.Transaction, error) {
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}
	entryType, err := models.ParseTransactionType(p.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	account, err := s.accounts.Get(ctx, who, p.AccountID)
	if err != nil {
		return nil, err
	}
	rate, err := s.rates.Rate(ctx, account.Currency, p.Date)
	if err != nil {
		s.sink.Report(ctx, Outcome{Operation: "ledger.record", OwnerID: who.UserID, EntityID: p.AccountID, Err: err})
		return nil, err
	}

	amount := p.Amount.Round(s.cfg.AmountPlaces)
	signed := amount
	if !entryType.IsInflow() {
		signed = amount.Neg()
	}
	entry := &models.Transaction{
		OwnerID:        who.UserID,
		Type:           entryType,
		Amount:         signed,
		Currency:       account.Currency,
		ExchangeRate:   rate.Buying,
		BaseEquivalent: BaseEquivalent(signed, rate, s.cfg.AmountPlaces),
		CategoryID:     p.CategoryID,
		Description:    p.Description,
		Date:           p.Date,
	}
	if entryType.IsInflow() {
		entry.DestinationAccountID = &account.ID
	} else {
		entry.SourceAccountID = &account.ID
	}

	err = withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.lockAccounts(ctx, tx, who, account.ID)
		if err != nil {
			return err
		}
		acct := locked[account.ID]
		if err := checkMovement(acct, signed); err != nil {
			return err
		}
		return s.RecordSimple(ctx, tx, Leg{Entry: entry, Account: acct})
	})
	s.sink.Report(ctx, Outcome{Operation: "ledger.record", OwnerID: who.UserID, EntityID: entry.ID,
		Amount: amount, Currency: account.Currency, Err: err})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Get returns one ledger entry.
func (s *LedgerService) Get(ctx context.Context, who models.Identity, id string) (*models.Transaction, error) {
	return s.findEntry(ctx, s.db, who, id, false)
}

// ListByAccount returns entries touching an account, newest first.
func (s *LedgerService) ListByAccount(ctx context.Context, who models.Identity, accountID string, limit int) ([]models.Transaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	entries := []models.Transaction{}
	err := s.db.SelectContext(ctx, &entries, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1 AND (source_account_id = $2 OR destination_account_id = $2)
		ORDER BY date DESC, created_at DESC
		LIMIT $3`, who.UserID, accountID, limit)
	if err != nil {
		return nil, persistence("list entries", err)
	}
	return entries, nil
}

// Delete removes an entry. A transfer leg takes its paired leg with it so no
// single-leg transfer survives. Balances are restored only when reverse is
// set. Loan and card payments cannot be deleted here.
func (s *LedgerService) Delete(ctx context.Context, who models.Identity, id string, reverse bool) error {
	err := withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		entry, err := s.findEntry(ctx, tx, who, id, true)
		if err != nil {
			return err
		}
		switch entry.Type {
		case models.TransactionLoanPayment, models.TransactionCreditPayment:
			return rejectf(ErrDeletionBlocked, "%s entries are owned by their loan or card", entry.Type)
		}

		entries := []*models.Transaction{entry}
		if entry.ReferenceID != nil {
			pair, err := s.findEntry(ctx, tx, who, *entry.ReferenceID, true)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			if pair != nil {
				entries = append(entries, pair)
			}
		}

		if reverse {
			if err := s.reverse(ctx, tx, who, entries); err != nil {
				return err
			}
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ANY($1)`, pq.Array(ids))
		return persistence("delete entries", err)
	})
	s.sink.Report(ctx, Outcome{Operation: "ledger.delete", OwnerID: who.UserID, EntityID: id, Err: err})
	return err
}

func (s *LedgerService) reverse(ctx context.Context, tx *sqlx.Tx, who models.Identity, entries []*models.Transaction) error {
	var ids []string
	for _, e := range entries {
		if accountID := e.AccountID(); accountID != "" {
			ids = append(ids, accountID)
		}
	}
	locked, err := s.accounts.lockAccounts(ctx, tx, who, ids...)
	if err != nil {
		return err
	}
	for _, e := range entries {
		account := locked[e.AccountID()]
		if account == nil {
			continue
		}
		undo := &models.Transaction{Amount: e.Amount.Neg()}
		if err := checkMovement(account, undo.Amount); err != nil {
			return err
		}
		if err := s.applyEntry(ctx, tx, Leg{Entry: undo, Account: account}); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerService) findEntry(ctx context.Context, q sqlx.QueryerContext, who models.Identity, id string, forUpdate bool) (*models.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var entry models.Transaction
	err := sqlx.GetContext(ctx, q, &entry, query, id, who.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rejectf(ErrNotFound, "ledger entry %s", id)
	}
	if err != nil {
		return nil, persistence("load ledger entry", err)
	}
	return &entry, nil
}

// checkMovement applies the balance rules to a signed amount about to hit
// account: outflows must be spendable, inflows into a card cannot exceed its debt.
func checkMovement(account *models.Account, signed decimal.Decimal) error {
	if signed.IsNegative() {
		if !account.CanSpend(signed.Neg()) {
			return rejectf(ErrInsufficientBalance, "account %s balance %s, requested %s", account.ID, account.Balance, signed.Neg())
		}
		return nil
	}
	if !account.CanReceive(signed) {
		return rejectf(ErrInvalidAmount, "payment %s exceeds debt %s on %s", signed, account.Balance, account.ID)
	}
	return nil
}

// BaseEquivalent converts a signed amount into the base currency using the
// buying rate.
func BaseEquivalent(amount decimal.Decimal, rate models.Rate, places int32) decimal.Decimal {
	return amount.Mul(rate.Buying).Round(places)
}

func describe(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}
