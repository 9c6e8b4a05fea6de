package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mizan/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("card with limit starts at zero", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectExec(`INSERT INTO accounts`).
			WithArgs(sqlmock.AnyArg(), owner.UserID, "Visa", "credit_card", "YER", eqDecimal("0"), "active",
				sqlmock.AnyArg(), 1, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		acct, err := f.accounts.Create(ctx, owner, CreateAccountParams{
			Name:     "Visa",
			Type:     "credit_card",
			Currency: "yer",
			Details: models.AccountDetails{
				CreditCard: &models.CreditCardDetails{BankName: "Tadhamon", CreditLimit: dec("500000")},
			},
		})
		require.NoError(t, err)
		assert.True(t, acct.Balance.IsZero())
		assert.True(t, acct.IsLiability())
		assert.Equal(t, "account.create", f.sink.last().Operation)
		f.verify(t)
	})

	t.Run("details must match the type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.accounts.Create(ctx, owner, CreateAccountParams{
			Name:     "Wallet",
			Type:     "cash",
			Currency: "YER",
			Details:  models.AccountDetails{Bank: &models.BankDetails{BankName: "Kuraimi"}},
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
		f.verify(t)
	})

	t.Run("unknown type", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.accounts.Create(ctx, owner, CreateAccountParams{Name: "X", Type: "savings", Currency: "YER"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		f.verify(t)
	})
}

func TestAccountService_Delete(t *testing.T) {
	ctx := context.Background()
	acct := account("a1", models.AccountTypeCash, "YER", "0")

	t.Run("account with history is kept", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.expectLock(acct)
		f.sql.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).WithArgs("a1").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
		f.sql.ExpectRollback()

		err := f.accounts.Delete(ctx, owner, "a1")
		assert.ErrorIs(t, err, ErrDeletionBlocked)
		f.verify(t)
	})

	t.Run("unused account is removed", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectBegin()
		f.expectLock(acct)
		f.sql.ExpectQuery(`SELECT COUNT\(\*\) FROM transactions`).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		f.sql.ExpectExec(`DELETE FROM accounts WHERE id = \$1`).WithArgs("a1").WillReturnResult(sqlmock.NewResult(0, 1))
		f.sql.ExpectCommit()

		require.NoError(t, f.accounts.Delete(ctx, owner, "a1"))
		f.verify(t)
	})
}

func TestAccountService_SetStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("deactivate", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectExec(`UPDATE accounts SET status = \$1`).
			WithArgs("inactive", sqlmock.AnyArg(), "a1", owner.UserID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, f.accounts.SetStatus(ctx, owner, "a1", models.AccountStatusInactive))
		f.verify(t)
	})

	t.Run("someone else's account", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectExec(`UPDATE accounts SET status = \$1`).WillReturnResult(sqlmock.NewResult(0, 0))

		err := f.accounts.SetStatus(ctx, owner, "a9", models.AccountStatusInactive)
		assert.ErrorIs(t, err, ErrNotFound)
		f.verify(t)
	})
}

func TestAccountService_UpdateKeepsBalance(t *testing.T) {
	f := newFixture(t)
	acct := account("a1", models.AccountTypeBank, "YER", "1234.5")

	f.sql.ExpectBegin()
	f.expectLock(acct)
	f.sql.ExpectExec(`UPDATE accounts SET name = \$1, details = \$2`).
		WithArgs("Salary", sqlmock.AnyArg(), sqlmock.AnyArg(), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	f.sql.ExpectCommit()

	updated, err := f.accounts.Update(context.Background(), owner, "a1", UpdateAccountParams{Name: ptr("Salary")})
	require.NoError(t, err)
	assert.Equal(t, "Salary", updated.Name)
	assert.True(t, updated.Balance.Equal(dec("1234.5")))
	f.verify(t)
}

func TestAccountService_ApplyDeltaUnknownType(t *testing.T) {
	f := newFixture(t)
	f.sql.ExpectBegin()
	f.sql.ExpectRollback()

	tx, err := f.db.Beginx()
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		err = f.accounts.debit(context.Background(), tx, &models.Account{ID: "a0", Balance: dec("10")}, dec("1"))
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
	require.NoError(t, tx.Rollback())
	f.verify(t)
}
