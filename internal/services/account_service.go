package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, owner_id, name, type, currency, balance, status, details, version, created_at, updated_at`

// AccountService owns account rows. Balances change only through
// applyDelta, which callers run inside the same unit of work as the
// matching ledger entry.
type AccountService struct {
	db        *sqlx.DB
	validator *ValidationHelper
	sink      OutcomeSink
	logger    zerolog.Logger
}

func NewAccountService(db *sqlx.DB, sink OutcomeSink, logger zerolog.Logger) *AccountService {
	return &AccountService{
		db:        db,
		validator: NewValidationHelper(),
		sink:      sinkOrDiscard(sink),
		logger:    logger.With().Str("component", "accounts").Logger(),
	}
}

type CreateAccountParams struct {
	Name     string                `json:"name" validate:"required,max=120"`
	Type     string                `json:"type" validate:"required"`
	Currency string                `json:"currency" validate:"required,currency"`
	Details  models.AccountDetails `json:"details"`
}

type UpdateAccountParams struct {
	Name    *string                `json:"name" validate:"omitempty,min=1,max=120"`
	Details *models.AccountDetails `json:"details"`
}

type AccountFilter struct {
	Type     models.AccountType
	Status   models.AccountStatus
	Currency string
}

// Create opens an account with a zero balance. Funds arrive through ledger
// operations so that every balance change has an entry.
func (s *AccountService) Create(ctx context.Context, who models.Identity, p CreateAccountParams) (*models.Account, error) {
	p.Currency = strings.ToUpper(p.Currency)
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}
	accountType, err := models.ParseAccountType(p.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := p.Details.Validate(accountType); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	account := &models.Account{
		ID:        uuid.NewString(),
		OwnerID:   who.UserID,
		Name:      p.Name,
		Type:      accountType,
		Currency:  p.Currency,
		Balance:   decimal.Zero,
		Status:    models.AccountStatusActive,
		Details:   p.Details,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, name, type, currency, balance, status, details, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		account.ID, account.OwnerID, account.Name, string(account.Type), account.Currency, account.Balance,
		string(account.Status), account.Details, account.Version, account.CreatedAt, account.UpdatedAt)
	if err != nil {
		err = persistence("insert account", err)
		s.sink.Report(ctx, Outcome{Operation: "account.create", OwnerID: who.UserID, Err: err})
		return nil, err
	}

	s.sink.Report(ctx, Outcome{Operation: "account.create", OwnerID: who.UserID, EntityID: account.ID})
	return account, nil
}

// Get returns one of the caller's accounts.
func (s *AccountService) Get(ctx context.Context, who models.Identity, id string) (*models.Account, error) {
	return s.find(ctx, s.db, who, id, false)
}

// List returns the caller's accounts, optionally filtered.
func (s *AccountService) List(ctx context.Context, who models.Identity, f AccountFilter) ([]models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1`
	args := []any{who.UserID}
	if f.Type != "" {
		args = append(args, string(f.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if f.Currency != "" {
		args = append(args, strings.ToUpper(f.Currency))
		query += fmt.Sprintf(" AND currency = $%d", len(args))
	}
	query += " ORDER BY created_at"

	accounts := []models.Account{}
	if err := s.db.SelectContext(ctx, &accounts, query, args...); err != nil {
		return nil, persistence("list accounts", err)
	}
	return accounts, nil
}

// Update changes the name or type-specific details. Type, currency and
// balance are not editable here.
func (s *AccountService) Update(ctx context.Context, who models.Identity, id string, p UpdateAccountParams) (*models.Account, error) {
	if err := s.validator.Params(&p); err != nil {
		return nil, err
	}

	var account *models.Account
	err := withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		account, err = s.find(ctx, tx, who, id, true)
		if err != nil {
			return err
		}
		if p.Name != nil {
			account.Name = *p.Name
		}
		if p.Details != nil {
			if err := p.Details.Validate(account.Type); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidInput, err)
			}
			account.Details = *p.Details
		}
		account.UpdatedAt = time.Now().UTC()
		_, err = tx.ExecContext(ctx, `
			UPDATE accounts SET name = $1, details = $2, updated_at = $3
			WHERE id = $4`,
			account.Name, account.Details, account.UpdatedAt, account.ID)
		return persistence("update account", err)
	})
	s.sink.Report(ctx, Outcome{Operation: "account.update", OwnerID: who.UserID, EntityID: id, Err: err})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// SetStatus activates or deactivates an account. Deactivation is the soft delete.
func (s *AccountService) SetStatus(ctx context.Context, who models.Identity, id string, status models.AccountStatus) error {
	if _, err := models.ParseAccountStatus(string(status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET status = $1, updated_at = $2
		WHERE id = $3 AND owner_id = $4`,
		string(status), time.Now().UTC(), id, who.UserID)
	if err == nil {
		err = requireRow(res, "account", id)
	}
	err = persistence("set account status", err)
	s.sink.Report(ctx, Outcome{Operation: "account.status", OwnerID: who.UserID, EntityID: id, Err: err})
	return err
}

// Delete hard-deletes an account that no ledger entry references.
func (s *AccountService) Delete(ctx context.Context, who models.Identity, id string) error {
	err := withinUnit(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := s.find(ctx, tx, who, id, true); err != nil {
			return err
		}
		var refs int
		err := tx.GetContext(ctx, &refs, `
			SELECT COUNT(*) FROM transactions
			WHERE source_account_id = $1 OR destination_account_id = $1`, id)
		if err != nil {
			return persistence("count account entries", err)
		}
		if refs > 0 {
			return rejectf(ErrDeletionBlocked, "account %s has %d ledger entries", id, refs)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		return persistence("delete account", err)
	})
	s.sink.Report(ctx, Outcome{Operation: "account.delete", OwnerID: who.UserID, EntityID: id, Err: err})
	return err
}

func (s *AccountService) find(ctx context.Context, q sqlx.QueryerContext, who models.Identity, id string, forUpdate bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var account models.Account
	err := sqlx.GetContext(ctx, q, &account, query, id, who.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rejectf(ErrNotFound, "account %s", id)
	}
	if err != nil {
		return nil, persistence("load account", err)
	}
	return &account, nil
}

// lockAccounts locks the given accounts in id order so that two operations
// touching the same pair never deadlock. Every account must be active.
func (s *AccountService) lockAccounts(ctx context.Context, tx *sqlx.Tx, who models.Identity, ids ...string) (map[string]*models.Account, error) {
	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	locked := make(map[string]*models.Account, len(ordered))
	for _, id := range ordered {
		if _, ok := locked[id]; ok {
			continue
		}
		account, err := s.find(ctx, tx, who, id, true)
		if err != nil {
			return nil, err
		}
		if account.Status != models.AccountStatusActive {
			return nil, rejectf(ErrAccountInactive, "account %s", id)
		}
		locked[id] = account
	}
	return locked, nil
}

// applyDelta adds delta to the balance, guarded by the row version. The
// in-memory account is updated on success.
func (s *AccountService) applyDelta(ctx context.Context, tx *sqlx.Tx, account *models.Account, delta decimal.Decimal) error {
	if _, err := account.Type.BalanceMeaning(); err != nil {
		return rejectf(ErrInvalidInput, "account %s: %v", account.ID, err)
	}
	newBalance := account.Balance.Add(delta)
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4`,
		newBalance, now, account.ID, account.Version)
	if err != nil {
		return persistence("update balance", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return persistence("update balance", err)
	}
	if rowsAffected == 0 {
		return rejectConcurrent(account.ID)
	}

	account.Balance = newBalance
	account.Version++
	account.UpdatedAt = now
	return nil
}

// debit records money leaving the account.
func (s *AccountService) debit(ctx context.Context, tx *sqlx.Tx, account *models.Account, amount decimal.Decimal) error {
	return s.applyDelta(ctx, tx, account, account.OutflowDelta(amount))
}

// credit records money arriving into the account.
func (s *AccountService) credit(ctx context.Context, tx *sqlx.Tx, account *models.Account, amount decimal.Decimal) error {
	return s.applyDelta(ctx, tx, account, account.InflowDelta(amount))
}

func rejectConcurrent(accountID string) error {
	return fmt.Errorf("%w: optimistic lock failed for account %s", ErrConcurrentUpdate, accountID)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rejectf(ErrNotFound, "%s %s", kind, id)
	}
	return nil
}
