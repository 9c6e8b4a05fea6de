package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the business reason for a ledger entry.
type TransactionType string

const (
	TransactionIncome        TransactionType = "income"
	TransactionExpense       TransactionType = "expense"
	TransactionTransfer      TransactionType = "transfer"
	TransactionATMDeposit    TransactionType = "atm_deposit"
	TransactionATMWithdraw   TransactionType = "atm_withdraw"
	TransactionLoanPayment   TransactionType = "loan_payment"
	TransactionCreditPayment TransactionType = "credit_payment"
	TransactionDebtPayment   TransactionType = "debt_payment"
)

// ParseTransactionType rejects unknown entry types.
func ParseTransactionType(s string) (TransactionType, error) {
	switch TransactionType(s) {
	case TransactionIncome, TransactionExpense, TransactionTransfer, TransactionATMDeposit,
		TransactionATMWithdraw, TransactionLoanPayment, TransactionCreditPayment, TransactionDebtPayment:
		return TransactionType(s), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Scan implements sql.Scanner
func (t *TransactionType) Scan(value any) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseTransactionType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsInflow reports whether a single-account entry of this type brings money in.
func (t TransactionType) IsInflow() bool {
	switch t {
	case TransactionIncome, TransactionATMDeposit:
		return true
	}
	return false
}

// TransactionStatus of a ledger entry.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionPending   TransactionStatus = "pending"
	TransactionFailed    TransactionStatus = "failed"
)

// RelatedLoan marks entries that belong to a loan.
const RelatedLoan = "loan"

// Transaction is one ledger entry. Amount is signed and expressed in Currency;
// BaseEquivalent is the same amount in the base currency at entry time.
type Transaction struct {
	ID                   string            `json:"id" db:"id"`
	OwnerID              string            `json:"owner_id" db:"owner_id"`
	Type                 TransactionType   `json:"type" db:"type"`
	Amount               decimal.Decimal   `json:"amount" db:"amount"`
	Currency             string            `json:"currency" db:"currency"`
	ExchangeRate         decimal.Decimal   `json:"exchange_rate" db:"exchange_rate"`
	BaseEquivalent       decimal.Decimal   `json:"try_equivalent" db:"try_equivalent"`
	SourceAccountID      *string           `json:"source_account_id,omitempty" db:"source_account_id"`
	DestinationAccountID *string           `json:"destination_account_id,omitempty" db:"destination_account_id"`
	ReferenceID          *string           `json:"reference_id,omitempty" db:"reference_id"`
	RelatedType          *string           `json:"related_type,omitempty" db:"related_type"`
	RelatedID            *string           `json:"related_id,omitempty" db:"related_id"`
	CategoryID           *string           `json:"category_id,omitempty" db:"category_id"`
	Description          string            `json:"description" db:"description"`
	Date                 time.Time         `json:"date" db:"date"`
	Status               TransactionStatus `json:"status" db:"status"`
	CreatedAt            time.Time         `json:"created_at" db:"created_at"`
}

// AccountID returns whichever account the entry touches.
func (t *Transaction) AccountID() string {
	if t.SourceAccountID != nil {
		return *t.SourceAccountID
	}
	if t.DestinationAccountID != nil {
		return *t.DestinationAccountID
	}
	return ""
}
