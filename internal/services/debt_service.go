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
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const debtColumns = `id, owner_id, type, party_name, amount, paid_amount, currency, buy_price,
	sell_price, profit_loss, due_date, status, notes, created_at, updated_at`

type CreateDebtParams struct {
	Type      string           `json:"type" validate:"required,oneof=payable receivable"`
	PartyName string           `json:"party_name" validate:"required,max=120"`
	Amount    decimal.Decimal  `json:"amount" validate:"dpositive"`
	Currency  string           `json:"currency" validate:"required,currency"`
	BuyPrice  *decimal.Decimal `json:"buy_price"`
	DueDate   *time.Time       `json:"due_date"`
	Notes     string           `json:"notes" validate:"max=1000"`
}

type UpdateDebtParams struct {
	PartyName *string    `json:"party_name" validate:"omitempty,min=1,max=120"`
	DueDate   *time.Time `json:"due_date"`
	Status    *string    `json:"status" validate:"omitempty,oneof=pending completed overdue"`
	Notes     *string    `json:"notes" validate:"omitempty,max=1000"`
}

type DebtFilter struct {
	Type   models.DebtType
	Status models.DebtStatus
}

// DebtService tracks payables and receivables. They are informational and are
// not reconciled against account balances.
type DebtService struct {
	db        *sqlx.DB
	cfg       *config.LedgerConfig
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewDebtService(db *sqlx.DB, cfg *config.LedgerConfig, sink OutcomeSink, logger zerolog.Logger) *DebtService {
	return &DebtService{
		db:        db,
		cfg:       cfg,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "debts").Logger(),
	}
}

// Create records a debt. Records outside the base currency (foreign cash or
// gold/silver) carry the price they were acquired at.
func (s *DebtService) Create(ctx context.Context, who models.Identity, p CreateDebtParams) (*models.Debt, error) {
	p.Currency = strings.ToUpper(p.Currency)
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}
	debtType, err := models.ParseDebtType(p.Type)
	if err != nil {
		return nil, rejectf(ErrInvalidInput, "%v", err)
	}

	now := time.Now().UTC()
	debt := &models.Debt{
		ID:         uuid.NewString(),
		OwnerID:    who.UserID,
		Type:       debtType,
		PartyName:  p.PartyName,
		Amount:     p.Amount,
		PaidAmount: decimal.Zero,
		Currency:   p.Currency,
		DueDate:    p.DueDate,
		Status:     models.DebtPending,
		Notes:      p.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.Currency != s.cfg.BaseCurrency {
		if p.BuyPrice == nil || !p.BuyPrice.IsPositive() {
			return nil, rejectf(ErrInvalidAmount, "%s debts need a positive buy price", p.Currency)
		}
		debt.BuyPrice = decimal.NewNullDecimal(*p.BuyPrice)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO debts (id, owner_id, type, party_name, amount, paid_amount, currency, buy_price,
			sell_price, profit_loss, due_date, status, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		debt.ID, debt.OwnerID, string(debt.Type), debt.PartyName, debt.Amount, debt.PaidAmount, debt.Currency,
		debt.BuyPrice, debt.SellPrice, debt.ProfitLoss, debt.DueDate, string(debt.Status), debt.Notes,
		debt.CreatedAt, debt.UpdatedAt)
	err = persistence("insert debt", err)
	s.sink.Report(ctx, Outcome{Operation: "debt.create", OwnerID: who.UserID, EntityID: debt.ID,
		Amount: debt.Amount, Currency: debt.Currency, Err: err})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

// Get returns one of the caller's debts.
func (s *DebtService) Get(ctx context.Context, who models.Identity, id string) (*models.Debt, error) {
	return s.find(ctx, s.db, who, id, false)
}

// List returns the caller's debts, optionally filtered.
func (s *DebtService) List(ctx context.Context, who models.Identity, f DebtFilter) ([]models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE owner_id = $1`
	args := []any{who.UserID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY due_date NULLS LAST, created_at"

	debts := []models.Debt{}
	if err := s.db.SelectContext(ctx, &debts, query, args...); err != nil {
		return nil, persistence("list debts", err)
	}
	return debts, nil
}

// Update edits descriptive fields and status. Amount and currency are fixed.
func (s *DebtService) Update(ctx context.Context, who models.Identity, id string, p UpdateDebtParams) (*models.Debt, error) {
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}
	return s.mutate(ctx, who, id, "debt.update", func(d *models.Debt) error {
		if p.PartyName != nil {
			d.PartyName = *p.PartyName
		}
		if p.DueDate != nil {
			d.DueDate = p.DueDate
		}
		if p.Notes != nil {
			d.Notes = *p.Notes
		}
		if p.Status != nil {
			status, err := models.ParseDebtStatus(*p.Status)
			if err != nil {
				return rejectf(ErrInvalidInput, "%v", err)
			}
			d.Status = status
		}
		return nil
	})
}

// RecordPayment notes a partial or full settlement. No ledger entry is made.
func (s *DebtService) RecordPayment(ctx context.Context, who models.Identity, id string, amount decimal.Decimal) (*models.Debt, error) {
	if !amount.IsPositive() {
		return nil, rejectf(ErrInvalidAmount, "payment must be positive")
	}
	return s.mutate(ctx, who, id, "debt.payment", func(d *models.Debt) error {
		if d.Status == models.DebtCompleted {
			return rejectf(ErrAlreadySettled, "debt %s is settled", d.ID)
		}
		if amount.GreaterThan(d.RemainingAmount()) {
			return rejectf(ErrInvalidAmount, "payment %s exceeds remaining %s", amount, d.RemainingAmount())
		}
		d.PaidAmount = d.PaidAmount.Add(amount)
		if d.RemainingAmount().IsZero() {
			d.Status = models.DebtCompleted
		}
		return nil
	})
}

// Liquidate closes a non-base holding at sellPrice and books
// profit_loss = (sell_price - buy_price) × amount.
func (s *DebtService) Liquidate(ctx context.Context, who models.Identity, id string, sellPrice decimal.Decimal) (*models.Debt, error) {
	if !sellPrice.IsPositive() {
		return nil, rejectf(ErrInvalidAmount, "sell price must be positive")
	}
	return s.mutate(ctx, who, id, "debt.liquidate", func(d *models.Debt) error {
		if !d.BuyPrice.Valid {
			return rejectf(ErrInvalidInput, "debt %s is in the base currency and has no price", d.ID)
		}
		if d.SellPrice.Valid {
			return rejectf(ErrAlreadySettled, "debt %s was already liquidated", d.ID)
		}
		d.SellPrice = decimal.NewNullDecimal(sellPrice)
		d.ProfitLoss = decimal.NewNullDecimal(ProfitLoss(d.BuyPrice.Decimal, sellPrice, d.Amount))
		d.Status = models.DebtCompleted
		return nil
	})
}

// ProfitLoss of liquidating amount units bought at buy and sold at sell.
func ProfitLoss(buy, sell, amount decimal.Decimal) decimal.Decimal {
	return sell.Sub(buy).Mul(amount)
}

// Delete removes a debt record.
func (s *DebtService) Delete(ctx context.Context, who models.Identity, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM debts WHERE id = $1 AND owner_id = $2`, id, who.UserID)
	if err == nil {
		err = requireRow(res, "debt", id)
	}
	err = persistence("delete debt", err)
	s.sink.Report(ctx, Outcome{Operation: "debt.delete", OwnerID: who.UserID, EntityID: id, Err: err})
	return err
}

func (s *DebtService) mutate(ctx context.Context, who models.Identity, id, op string, fn func(d *models.Debt) error) (*models.Debt, error) {
	var debt *models.Debt
	err := withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		debt, err = s.find(ctx, tx, who, id, true)
		if err != nil {
			return err
		}
		if err := fn(debt); err != nil {
			return err
		}
		debt.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE debts
			SET party_name = $1, paid_amount = $2, sell_price = $3, profit_loss = $4, due_date = $5,
				status = $6, notes = $7, updated_at = $8
			WHERE id = $9`,
			debt.PartyName, debt.PaidAmount, debt.SellPrice, debt.ProfitLoss, debt.DueDate,
			string(debt.Status), debt.Notes, debt.UpdatedAt, debt.ID)
		return persistence("update debt", err)
	})
	s.sink.Report(ctx, Outcome{Operation: op, OwnerID: who.UserID, EntityID: id, Err: err})
	if err != nil {
		return nil, err
	}
	return debt, nil
}

func (s *DebtService) find(ctx context.Context, q sqlx.QueryerContext, who models.Identity, id string, forUpdate bool) (*models.Debt, error) {
	query := `SELECT ` + debtColumns + ` FROM debts WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var debt models.Debt
	err := sqlx.GetContext(ctx, q, &debt, query, id, who.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rejectf(ErrNotFound, "debt %s", id)
	}
	if err != nil {
		return nil, persistence("load debt", err)
	}
	return &debt, nil
}
