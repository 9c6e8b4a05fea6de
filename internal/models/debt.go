package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type DebtType string

const (
	DebtPayable    DebtType = "payable"
	DebtReceivable DebtType = "receivable"
)

// ParseDebtType rejects unknown kinds.
func ParseDebtType(s string) (DebtType, error) {
	switch DebtType(s) {
	case DebtPayable, DebtReceivable:
		return DebtType(s), nil
	}
	return "", fmt.Errorf("unknown debt type %q", s)
}

type DebtStatus string

const (
	DebtPending   DebtStatus = "pending"
	DebtCompleted DebtStatus = "completed"
	DebtOverdue   DebtStatus = "overdue"
)

// ParseDebtStatus rejects unknown statuses.
func ParseDebtStatus(s string) (DebtStatus, error) {
	switch DebtStatus(s) {
	case DebtPending, DebtCompleted, DebtOverdue:
		return DebtStatus(s), nil
	}
	return "", fmt.Errorf("unknown debt status %q", s)
}

// Precious-metal units a debt may be denominated in.
const (
	CurrencyGold   = "XAU"
	CurrencySilver = "XAG"
)

// IsPreciousMetal reports whether code is a metal unit rather than fiat.
func IsPreciousMetal(code string) bool {
	return code == CurrencyGold || code == CurrencySilver
}

// Debt is a payable or receivable tracked outside account balances.
type Debt struct {
	ID         string              `json:"id" db:"id"`
	OwnerID    string              `json:"owner_id" db:"owner_id"`
	Type       DebtType            `json:"type" db:"type"`
	PartyName  string              `json:"party_name" db:"party_name"`
	Amount     decimal.Decimal     `json:"amount" db:"amount"`
	PaidAmount decimal.Decimal     `json:"paid_amount" db:"paid_amount"`
	Currency   string              `json:"currency" db:"currency"`
	BuyPrice   decimal.NullDecimal `json:"buy_price" db:"buy_price"`
	SellPrice  decimal.NullDecimal `json:"sell_price" db:"sell_price"`
	ProfitLoss decimal.NullDecimal `json:"profit_loss" db:"profit_loss"`
	DueDate    *time.Time          `json:"due_date,omitempty" db:"due_date"`
	Status     DebtStatus          `json:"status" db:"status"`
	Notes      string              `json:"notes" db:"notes"`
	CreatedAt  time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at" db:"updated_at"`
}

// RemainingAmount is what is still owed.
func (d *Debt) RemainingAmount() decimal.Decimal {
	return d.Amount.Sub(d.PaidAmount)
}
