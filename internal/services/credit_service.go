package services

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MinimumPayment is rate×balance, never below min(floor, balance) and never
// above the balance. A settled card owes nothing.
func MinimumPayment(balance, rate, floor decimal.Decimal) decimal.Decimal {
	if !balance.IsPositive() {
		return decimal.Zero
	}
	raw := decimal.Min(balance.Mul(rate), balance)
	return decimal.Max(raw, decimal.Min(floor, balance))
}

// CardPaymentRequest pays down a card. Bank-funded payments move money from
// SourceAccountID; cash payments touch only the card.
type CardPaymentRequest struct {
	Amount          decimal.Decimal `json:"amount" validate:"dpositive"`
	Method          string          `json:"method" validate:"required,oneof=cash bank_transfer"`
	SourceAccountID *string         `json:"source_account_id"`
	Date            time.Time       `json:"date" validate:"required"`
	Description     string          `json:"description" validate:"max=500"`
}

type CardPaymentResult struct {
	Entry       *models.Transaction `json:"entry"`
	SourceEntry *models.Transaction `json:"source_entry,omitempty"`
	Rate        decimal.Decimal     `json:"rate"`
}

type CardStatement struct {
	CardID          string           `json:"card_id"`
	Currency        string           `json:"currency"`
	Debt            decimal.Decimal  `json:"debt"`
	CreditLimit     decimal.Decimal  `json:"credit_limit"`
	AvailableCredit *decimal.Decimal `json:"available_credit,omitempty"` // nil when the card has no limit
	MinimumPayment  decimal.Decimal  `json:"minimum_payment"`
	StatementDay    int              `json:"statement_day"`
}

// CreditService handles revolving-debt accounts (credit cards).
type CreditService struct {
	db        *sqlx.DB
	accounts  *AccountService
	ledger    *LedgerService
	transfers *TransferService
	rates     RateProvider
	cfg       *config.LedgerConfig
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewCreditService(db *sqlx.DB, accounts *AccountService, ledger *LedgerService, transfers *TransferService, rates RateProvider, cfg *config.LedgerConfig, sink OutcomeSink, logger zerolog.Logger) *CreditService {
	return &CreditService{
		db:        db,
		accounts:  accounts,
		ledger:    ledger,
		transfers: transfers,
		rates:     rates,
		cfg:       cfg,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "credit").Logger(),
	}
}

func (s *CreditService) card(ctx context.Context, who models.Identity, id string) (*models.Account, error) {
	card, err := s.accounts.Get(ctx, who, id)
	if err != nil {
		return nil, err
	}
	if card.Type != models.AccountTypeCreditCard {
		return nil, rejectf(ErrInvalidInput, "account %s is a %s, not a credit card", id, card.Type)
	}
	return card, nil
}

// MinimumPayment returns the minimum due on a card's current debt.
func (s *CreditService) MinimumPayment(ctx context.Context, who models.Identity, cardID string) (decimal.Decimal, error) {
	card, err := s.card(ctx, who, cardID)
	if err != nil {
		return decimal.Zero, err
	}
	return MinimumPayment(card.Balance, s.cfg.MinPaymentRate, s.cfg.MinPaymentFloor), nil
}

// Statement summarises debt, limit and minimum payment.
func (s *CreditService) Statement(ctx context.Context, who models.Identity, cardID string) (*CardStatement, error) {
	card, err := s.card(ctx, who, cardID)
	if err != nil {
		return nil, err
	}
	limit := card.CreditLimit()
	statement := &CardStatement{
		CardID:         card.ID,
		Currency:       card.Currency,
		Debt:           card.Balance,
		CreditLimit:    limit,
		MinimumPayment: MinimumPayment(card.Balance, s.cfg.MinPaymentRate, s.cfg.MinPaymentFloor),
	}
	if !limit.IsZero() {
		available := decimal.Max(limit.Sub(card.Balance), decimal.Zero)
		statement.AvailableCredit = &available
	}
	if card.Details.CreditCard != nil {
		statement.StatementDay = card.Details.CreditCard.StatementDay
	}
	return statement, nil
}

// MakePayment reduces the card's debt by the paid amount.
func (s *CreditService) MakePayment(ctx context.Context, who models.Identity, cardID string, req CardPaymentRequest) (*CardPaymentResult, error) {
	result, err := s.makePayment(ctx, who, cardID, req)
	outcome := Outcome{Operation: "credit.payment", OwnerID: who.UserID, EntityID: cardID, Amount: req.Amount, Err: err}
	if result != nil {
		outcome.Currency = result.Entry.Currency
	}
	s.sink.Report(ctx, outcome)
	return result, err
}

func (s *CreditService) makePayment(ctx context.Context, who models.Identity, cardID string, req CardPaymentRequest) (*CardPaymentResult, error) {
	if err := s.validator.Params(&req); err != nil {
		return nil, err
	}
	method, err := models.ParsePaymentMethod(req.Method)
	if err != nil {
		return nil, rejectf(ErrInvalidInput, "%v", err)
	}
	if method.RequiresAccount() && (req.SourceAccountID == nil || *req.SourceAccountID == "") {
		return nil, rejectf(ErrMissingRequiredAccount, "%s payments need a source account", method)
	}

	card, err := s.card(ctx, who, cardID)
	if err != nil {
		return nil, err
	}
	if !card.Balance.IsPositive() {
		return nil, rejectf(ErrAlreadySettled, "card %s has no outstanding debt", card.ID)
	}

	settleCheck := func(c *models.Account, paid decimal.Decimal) error {
		if !c.Balance.IsPositive() {
			return rejectf(ErrAlreadySettled, "card %s has no outstanding debt", c.ID)
		}
		if paid.GreaterThan(c.Balance) {
			return rejectf(ErrInvalidAmount, "payment %s exceeds debt %s", paid, c.Balance)
		}
		return nil
	}

	if method == models.PaymentBankTransfer {
		res, err := s.transfers.move(ctx, who, movement{
			entryType:     models.TransactionCreditPayment,
			sourceID:      *req.SourceAccountID,
			destinationID: card.ID,
			amount:        req.Amount,
			date:          req.Date,
			description:   describe("card payment", req.Description),
			check: func(_, dst *models.Account, targetAmount decimal.Decimal) error {
				return settleCheck(dst, targetAmount)
			},
		})
		if err != nil {
			return nil, err
		}
		return &CardPaymentResult{Entry: res.Destination, SourceEntry: res.Source, Rate: res.Rate}, nil
	}

	rate, err := s.rates.Rate(ctx, card.Currency, req.Date)
	if err != nil {
		return nil, err
	}
	amount := req.Amount.Round(s.cfg.AmountPlaces)
	entry := &models.Transaction{
		OwnerID:              who.UserID,
		Type:                 models.TransactionCreditPayment,
		Amount:               amount,
		Currency:             card.Currency,
		ExchangeRate:         rate.Buying,
		BaseEquivalent:       BaseEquivalent(amount, rate, s.cfg.AmountPlaces),
		DestinationAccountID: &card.ID,
		Description:          describe("card payment (cash)", req.Description),
		Date:                 req.Date,
	}
	err = withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.lockAccounts(ctx, tx, who, card.ID)
		if err != nil {
			return err
		}
		if err := settleCheck(locked[card.ID], amount); err != nil {
			return err
		}
		return s.ledger.RecordSimple(ctx, tx, Leg{Entry: entry, Account: locked[card.ID]})
	})
	if err != nil {
		return nil, err
	}
	return &CardPaymentResult{Entry: entry, Rate: one}, nil
}
