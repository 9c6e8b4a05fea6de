package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus follows pending/active -> paid, with overdue -> active on recovery.
type LoanStatus string

const (
	LoanPending LoanStatus = "pending"
	LoanActive  LoanStatus = "active"
	LoanPaid    LoanStatus = "paid"
	LoanOverdue LoanStatus = "overdue"
)

// ParseLoanStatus rejects unknown statuses.
func ParseLoanStatus(s string) (LoanStatus, error) {
	switch LoanStatus(s) {
	case LoanPending, LoanActive, LoanPaid, LoanOverdue:
		return LoanStatus(s), nil
	}
	return "", fmt.Errorf("unknown loan status %q", s)
}

// PaymentMethod says how an installment or card payment is funded.
type PaymentMethod string

const (
	PaymentCash         PaymentMethod = "cash"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentCreditCard   PaymentMethod = "credit_card"
)

// ParsePaymentMethod rejects unknown methods.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case PaymentCash, PaymentBankTransfer, PaymentCreditCard:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// RequiresAccount reports whether the method draws from an account.
func (m PaymentMethod) RequiresAccount() bool {
	return m != PaymentCash
}

// Loan is an installment loan. RemainingAmount is stored, not derived on read.
type Loan struct {
	ID                    string          `json:"id" db:"id"`
	OwnerID               string          `json:"owner_id" db:"owner_id"`
	BankName              string          `json:"bank_name" db:"bank_name"`
	LoanType              string          `json:"loan_type" db:"loan_type"`
	Amount                decimal.Decimal `json:"amount" db:"amount"`
	MonthlyPayment        decimal.Decimal `json:"monthly_payment" db:"monthly_payment"`
	Installments          int             `json:"installments" db:"installments"`
	RemainingInstallments int             `json:"remaining_installments" db:"remaining_installments"`
	StartDate             time.Time       `json:"start_date" db:"start_date"`
	DueDate               time.Time       `json:"due_date" db:"due_date"`
	NextPaymentDate       time.Time       `json:"next_payment_date" db:"next_payment_date"`
	RemainingAmount       decimal.Decimal `json:"remaining_amount" db:"remaining_amount"`
	Status                LoanStatus      `json:"status" db:"status"`
	Notes                 string          `json:"notes" db:"notes"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

// NextInstallment is the 1-based number of the installment due next.
func (l *Loan) NextInstallment() int {
	return l.Installments - l.RemainingInstallments + 1
}

// AddMonths moves t forward by n calendar months, clamping to the last day of
// the target month (Jan 31 + 1 month = Feb 28/29).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
