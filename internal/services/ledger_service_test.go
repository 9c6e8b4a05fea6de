package services

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mizan/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selectEntryLocked = `FROM transactions WHERE id = \$1 AND owner_id = \$2 FOR UPDATE`
	deleteEntries     = `DELETE FROM transactions WHERE id = ANY\(\$1\)`
)

func TestLedgerService_Record(t *testing.T) {
	ctx := context.Background()

	t.Run("expense debits the account", func(t *testing.T) {
		f := newFixture(t)
		acct := account("a1", models.AccountTypeCash, "YER", "1000")

		f.expectAccount(acct)
		f.rate("YER", models.UnitRate)
		f.sql.ExpectBegin()
		f.expectLock(acct)
		f.expectBalance(acct, "700")
		f.sql.ExpectExec(insertEntry).
			WithArgs(sqlmock.AnyArg(), owner.UserID, "expense", eqDecimal("-300"), "YER", eqDecimal("1"),
				eqDecimal("-300"), "a1", nil, nil, nil, nil, nil, "groceries", entryDate, "completed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.sql.ExpectCommit()

		entry, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID:   "a1",
			Type:        "expense",
			Amount:      dec("300"),
			Date:        entryDate,
			Description: "groceries",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, entry.ID)
		assert.Nil(t, entry.DestinationAccountID)
		f.verify(t)
	})

	t.Run("foreign income records the base equivalent", func(t *testing.T) {
		f := newFixture(t)
		acct := account("a-sar", models.AccountTypeBank, "SAR", "0")
		sar := models.Rate{Buying: dec("65.5"), Selling: dec("66")}

		f.expectAccount(acct)
		f.rate("SAR", sar)
		f.sql.ExpectBegin()
		f.expectLock(acct)
		f.expectBalance(acct, "200")
		f.sql.ExpectExec(insertEntry).
			WithArgs(sqlmock.AnyArg(), owner.UserID, "income", eqDecimal("200"), "SAR", eqDecimal("65.5"),
				eqDecimal("13100"), nil, "a-sar", nil, nil, nil, nil, "", entryDate, "completed", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		f.sql.ExpectCommit()

		entry, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID: "a-sar",
			Type:      "income",
			Amount:    dec("200"),
			Date:      entryDate,
		})
		require.NoError(t, err)
		assert.True(t, entry.BaseEquivalent.Equal(dec("13100")))
		f.verify(t)
	})

	t.Run("ATM withdrawal over balance", func(t *testing.T) {
		f := newFixture(t)
		acct := account("a1", models.AccountTypeBank, "YER", "50")

		f.expectAccount(acct)
		f.rate("YER", models.UnitRate)
		f.sql.ExpectBegin()
		f.expectLock(acct)
		f.sql.ExpectRollback()

		_, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID: "a1",
			Type:      "atm_withdraw",
			Amount:    dec("50.01"),
			Date:      entryDate,
		})
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		f.verify(t)
	})

	t.Run("deposit on a card cannot exceed its debt", func(t *testing.T) {
		f := newFixture(t)
		c := card("c1", "50", "1000")

		f.expectAccount(c)
		f.rate("YER", models.UnitRate)
		f.sql.ExpectBegin()
		f.expectLock(c)
		f.sql.ExpectRollback()

		_, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID: "c1",
			Type:      "atm_deposit",
			Amount:    dec("50.01"),
			Date:      entryDate,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		f.verify(t)
	})

	t.Run("non-positive amount", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID: "a1",
			Type:      "income",
			Amount:    dec("0"),
			Date:      entryDate,
		})
		assert.ErrorIs(t, err, ErrInvalidAmount)
		f.verify(t)
	})

	t.Run("unknown account", func(t *testing.T) {
		f := newFixture(t)
		f.sql.ExpectQuery(selectAccount).WithArgs("ghost", owner.UserID).
			WillReturnRows(sqlmock.NewRows(accountColumnNames))

		_, err := f.ledger.Record(ctx, owner, SimpleEntryParams{
			AccountID: "ghost",
			Type:      "income",
			Amount:    dec("1"),
			Date:      entryDate,
		})
		assert.ErrorIs(t, err, ErrNotFound)
		f.verify(t)
	})
}

func TestLedgerService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer leg takes its pair and reverses both", func(t *testing.T) {
		f := newFixture(t)
		src := account("a1", models.AccountTypeCash, "YER", "4000")
		dst := account("a2", models.AccountTypeCash, "YER", "1000")
		out := models.Transaction{ID: "t-out", Type: models.TransactionTransfer, Amount: dec("-1000"),
			Currency: "YER", SourceAccountID: ptr("a1"), ReferenceID: ptr("t-in"), Date: entryDate}
		in := models.Transaction{ID: "t-in", Type: models.TransactionTransfer, Amount: dec("1000"),
			Currency: "YER", DestinationAccountID: ptr("a2"), ReferenceID: ptr("t-out"), Date: entryDate}

		f.sql.ExpectBegin()
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t-out", owner.UserID).WillReturnRows(entryRows(out))
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t-in", owner.UserID).WillReturnRows(entryRows(in))
		f.expectLock(src)
		f.expectLock(dst)
		f.expectBalance(src, "5000")
		f.expectBalance(dst, "0")
		f.sql.ExpectExec(deleteEntries).WillReturnResult(sqlmock.NewResult(0, 2))
		f.sql.ExpectCommit()

		require.NoError(t, f.ledger.Delete(ctx, owner, "t-out", true))
		f.verify(t)
	})

	t.Run("reversal cannot overdraw the receiving account", func(t *testing.T) {
		f := newFixture(t)
		src := account("a1", models.AccountTypeCash, "YER", "4000")
		dst := account("a2", models.AccountTypeCash, "YER", "200")
		out := models.Transaction{ID: "t-out", Type: models.TransactionTransfer, Amount: dec("-1000"),
			Currency: "YER", SourceAccountID: ptr("a1"), ReferenceID: ptr("t-in"), Date: entryDate}
		in := models.Transaction{ID: "t-in", Type: models.TransactionTransfer, Amount: dec("1000"),
			Currency: "YER", DestinationAccountID: ptr("a2"), ReferenceID: ptr("t-out"), Date: entryDate}

		f.sql.ExpectBegin()
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t-out", owner.UserID).WillReturnRows(entryRows(out))
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t-in", owner.UserID).WillReturnRows(entryRows(in))
		f.expectLock(src)
		f.expectLock(dst)
		f.expectBalance(src, "5000")
		f.sql.ExpectRollback()

		err := f.ledger.Delete(ctx, owner, "t-out", true)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		f.verify(t)
	})

	t.Run("reversing a card expense cannot leave negative debt", func(t *testing.T) {
		f := newFixture(t)
		c := card("c1", "100", "2000")
		e := models.Transaction{ID: "t1", Type: models.TransactionExpense, Amount: dec("-300"),
			Currency: "YER", SourceAccountID: ptr("c1"), Date: entryDate}

		f.sql.ExpectBegin()
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t1", owner.UserID).WillReturnRows(entryRows(e))
		f.expectLock(c)
		f.sql.ExpectRollback()

		err := f.ledger.Delete(ctx, owner, "t1", true)
		assert.ErrorIs(t, err, ErrInvalidAmount)
		f.verify(t)
	})

	t.Run("without reverse balances stay", func(t *testing.T) {
		f := newFixture(t)
		e := models.Transaction{ID: "t1", Type: models.TransactionIncome, Amount: dec("10"),
			Currency: "YER", DestinationAccountID: ptr("a1"), Date: entryDate}

		f.sql.ExpectBegin()
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t1", owner.UserID).WillReturnRows(entryRows(e))
		f.sql.ExpectExec(deleteEntries).WillReturnResult(sqlmock.NewResult(0, 1))
		f.sql.ExpectCommit()

		require.NoError(t, f.ledger.Delete(ctx, owner, "t1", false))
		f.verify(t)
	})

	t.Run("loan payments are owned by the loan", func(t *testing.T) {
		f := newFixture(t)
		e := models.Transaction{ID: "t1", Type: models.TransactionLoanPayment, Amount: dec("-500"),
			Currency: "YER", RelatedType: ptr("loan"), RelatedID: ptr("l1"), Date: entryDate}

		f.sql.ExpectBegin()
		f.sql.ExpectQuery(selectEntryLocked).WithArgs("t1", owner.UserID).WillReturnRows(entryRows(e))
		f.sql.ExpectRollback()

		err := f.ledger.Delete(ctx, owner, "t1", true)
		assert.ErrorIs(t, err, ErrDeletionBlocked)
		f.verify(t)
	})
}

func TestBaseEquivalent(t *testing.T) {
	rate := models.Rate{Buying: dec("3.75"), Selling: dec("3.80")}
	assert.True(t, BaseEquivalent(dec("-12.5"), rate, 8).Equal(dec("-46.875")))
	assert.True(t, BaseEquivalent(dec("1"), models.UnitRate, 8).Equal(dec("1")))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "card payment", describe("card payment", "  "))
	assert.Equal(t, "installment 2/18 Kuraimi", describe("installment 2/18", "Kuraimi", ""))
	assert.Equal(t, "", describe())
}
