package services

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)

// CrossRate is the number of destination units bought by one source unit.
// Same-currency pairs return exactly 1; the other cases go through the base
// currency: buy the source, sell the destination.
func CrossRate(base, sourceCurrency, targetCurrency string, source, target models.Rate) decimal.Decimal {
	switch {
	case sourceCurrency == targetCurrency:
		return one
	case sourceCurrency == base:
		return one.Div(target.Selling)
	case targetCurrency == base:
		return source.Buying
	default:
		return source.Buying.Div(target.Selling)
	}
}

// TransferRequest moves Amount (in the source account's currency) between two
// of the caller's accounts.
type TransferRequest struct {
	SourceAccountID      string          `json:"source_account_id" validate:"required"`
	DestinationAccountID string          `json:"destination_account_id" validate:"required,nefield=SourceAccountID"`
	Amount               decimal.Decimal `json:"amount" validate:"dpositive"`
	Date                 time.Time       `json:"date" validate:"required"`
	CategoryID           *string         `json:"category_id"`
	Description          string          `json:"description" validate:"max=500"`
}

type TransferResult struct {
	Source       *models.Transaction `json:"source"`
	Destination  *models.Transaction `json:"destination"`
	Rate         decimal.Decimal     `json:"rate"`
	TargetAmount decimal.Decimal     `json:"target_amount"`
}

// TransferService composes accounts, ledger and rates into single-request moves.
type TransferService struct {
	db        *sqlx.DB
	accounts  *AccountService
	ledger    *LedgerService
	rates     RateProvider
	cfg       *config.LedgerConfig
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewTransferService(db *sqlx.DB, accounts *AccountService, ledger *LedgerService, rates RateProvider, cfg *config.LedgerConfig, sink OutcomeSink, logger zerolog.Logger) *TransferService {
	return &TransferService{
		db:        db,
		accounts:  accounts,
		ledger:    ledger,
		rates:     rates,
		cfg:       cfg,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "transfer").Logger(),
	}
}

// Execute performs the transfer: both legs commit together or not at all.
func (s *TransferService) Execute(ctx context.Context, who models.Identity, req TransferRequest) (*TransferResult, error) {
	if err := s.validator.Params(&req); err != nil {
		return nil, err
	}
	result, err := s.move(ctx, who, movement{
		entryType:     models.TransactionTransfer,
		sourceID:      req.SourceAccountID,
		destinationID: req.DestinationAccountID,
		amount:        req.Amount,
		date:          req.Date,
		categoryID:    req.CategoryID,
		description:   req.Description,
	})
	s.report(ctx, who, "transfer.execute", req.Amount, result, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *TransferService) report(ctx context.Context, who models.Identity, op string, amount decimal.Decimal, result *TransferResult, err error) {
	outcome := Outcome{Operation: op, OwnerID: who.UserID, Amount: amount, Err: err}
	if result != nil {
		outcome.EntityID = result.Source.ID
		outcome.Currency = result.Source.Currency
	}
	s.sink.Report(ctx, outcome)
}

// movement is the shared shape of transfers and bank-funded card payments.
type movement struct {
	entryType     models.TransactionType
	sourceID      string
	destinationID string
	amount        decimal.Decimal
	date          time.Time
	categoryID    *string
	description   string
	// check runs against the locked accounts after the balance check.
	check func(source, destination *models.Account, targetAmount decimal.Decimal) error
}

func (s *TransferService) move(ctx context.Context, who models.Identity, m movement) (*TransferResult, error) {
	if m.sourceID == m.destinationID {
		return nil, rejectf(ErrInvalidInput, "source and destination are the same account")
	}
	// Currencies never change after creation, so they can be read before locking.
	source, err := s.accounts.Get(ctx, who, m.sourceID)
	if err != nil {
		return nil, err
	}
	destination, err := s.accounts.Get(ctx, who, m.destinationID)
	if err != nil {
		return nil, err
	}

	// Every rate is settled before the unit of work begins.
	sourceRate, err := s.rates.Rate(ctx, source.Currency, m.date)
	if err != nil {
		return nil, err
	}
	targetRate, err := s.rates.Rate(ctx, destination.Currency, m.date)
	if err != nil {
		return nil, err
	}

	base := s.cfg.BaseCurrency
	places := s.cfg.AmountPlaces
	rate := CrossRate(base, source.Currency, destination.Currency, sourceRate, targetRate)
	amount := m.amount.Round(places)
	targetAmount := amount.Mul(rate).Round(places)
	if !targetAmount.IsPositive() {
		return nil, rejectf(ErrInvalidAmount, "%s %s converts to nothing in %s", amount, source.Currency, destination.Currency)
	}

	description := describe(m.description)
	if source.Currency != destination.Currency {
		description = describe(m.description, fmt.Sprintf("(%s->%s @ %s)", source.Currency, destination.Currency, rate.Round(8).String()))
	}

	sourceEntry := &models.Transaction{
		OwnerID:         who.UserID,
		Type:            m.entryType,
		Amount:          amount.Neg(),
		Currency:        source.Currency,
		ExchangeRate:    sourceRate.Buying,
		BaseEquivalent:  BaseEquivalent(amount.Neg(), sourceRate, places),
		SourceAccountID: &source.ID,
		CategoryID:      m.categoryID,
		Description:     description,
		Date:            m.date,
	}
	destinationEntry := &models.Transaction{
		OwnerID:              who.UserID,
		Type:                 m.entryType,
		Amount:               targetAmount,
		Currency:             destination.Currency,
		ExchangeRate:         targetRate.Buying,
		BaseEquivalent:       BaseEquivalent(targetAmount, targetRate, places),
		DestinationAccountID: &destination.ID,
		CategoryID:           m.categoryID,
		Description:          description,
		Date:                 m.date,
	}

	err = withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		locked, err := s.accounts.lockAccounts(ctx, tx, who, source.ID, destination.ID)
		if err != nil {
			return err
		}
		src, dst := locked[source.ID], locked[destination.ID]
		if !src.CanSpend(amount) {
			return rejectf(ErrInsufficientBalance, "account %s balance %s, requested %s", src.ID, src.Balance, amount)
		}
		if m.check != nil {
			if err := m.check(src, dst, targetAmount); err != nil {
				return err
			}
		}
		if err := checkMovement(dst, targetAmount); err != nil {
			return err
		}
		return s.ledger.RecordTransfer(ctx, tx,
			Leg{Entry: sourceEntry, Account: src},
			Leg{Entry: destinationEntry, Account: dst})
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("source", source.ID).Str("destination", destination.ID).
			Str("amount", amount.String()).Msg("transfer aborted")
		return nil, err
	}

	s.logger.Info().Str("source", source.ID).Str("destination", destination.ID).
		Str("amount", amount.String()).Str("target_amount", targetAmount.String()).
		Str("rate", rate.String()).Msg("transfer committed")
	return &TransferResult{
		Source:       sourceEntry,
		Destination:  destinationEntry,
		Rate:         rate,
		TargetAmount: targetAmount,
	}, nil
}
