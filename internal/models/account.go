package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType is the closed set of account kinds.
type AccountType string

const (
	AccountTypeBank         AccountType = "bank"
	AccountTypeCreditCard   AccountType = "credit_card"
	AccountTypeCryptoWallet AccountType = "crypto_wallet"
	AccountTypeVirtualPOS   AccountType = "virtual_pos"
	AccountTypeCash         AccountType = "cash"
)

var accountTypes = []AccountType{
	AccountTypeBank,
	AccountTypeCreditCard,
	AccountTypeCryptoWallet,
	AccountTypeVirtualPOS,
	AccountTypeCash,
}

// ParseAccountType rejects any value outside the enumeration.
func ParseAccountType(s string) (AccountType, error) {
	for _, t := range accountTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown account type %q", s)
}

// Scan implements sql.Scanner so stored values are checked against the enumeration.
func (t *AccountType) Scan(value any) error {
	s, err := scanString(value)
	if err != nil {
		return err
	}
	parsed, err := ParseAccountType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// BalanceMeaning tells whether an account balance is something owned or something owed.
type BalanceMeaning string

const (
	BalanceAsset     BalanceMeaning = "asset"
	BalanceLiability BalanceMeaning = "liability"
)

// BalanceMeaning reports how the balance of this account type is read.
// Credit cards carry debt: the balance grows when the card pays for something.
func (t AccountType) BalanceMeaning() (BalanceMeaning, error) {
	switch t {
	case AccountTypeCreditCard:
		return BalanceLiability, nil
	case AccountTypeBank, AccountTypeCryptoWallet, AccountTypeVirtualPOS, AccountTypeCash:
		return BalanceAsset, nil
	}
	return "", fmt.Errorf("account type %q has no balance meaning", string(t))
}

// AccountStatus is active or inactive; inactive accounts are soft-deleted.
type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "active"
	AccountStatusInactive AccountStatus = "inactive"
)

// ParseAccountStatus rejects unknown statuses.
func ParseAccountStatus(s string) (AccountStatus, error) {
	switch AccountStatus(s) {
	case AccountStatusActive, AccountStatusInactive:
		return AccountStatus(s), nil
	}
	return "", fmt.Errorf("unknown account status %q", s)
}

type BankDetails struct {
	BankName      string `json:"bank_name" validate:"required"`
	AccountNumber string `json:"account_number,omitempty"`
	IBAN          string `json:"iban,omitempty"`
	Branch        string `json:"branch,omitempty"`
}

type CreditCardDetails struct {
	BankName     string          `json:"bank_name" validate:"required"`
	CreditLimit  decimal.Decimal `json:"credit_limit"`
	StatementDay int             `json:"statement_day" validate:"omitempty,min=1,max=31"`
}

type CryptoWalletDetails struct {
	Platform      string `json:"platform" validate:"required"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

type VirtualPOSDetails struct {
	Provider string `json:"provider" validate:"required"`
}

// AccountDetails holds the type-specific part of an account. Exactly one case
// is set, and it must match the account type; cash accounts carry none.
type AccountDetails struct {
	Bank         *BankDetails         `json:"bank,omitempty"`
	CreditCard   *CreditCardDetails   `json:"credit_card,omitempty"`
	CryptoWallet *CryptoWalletDetails `json:"crypto_wallet,omitempty"`
	VirtualPOS   *VirtualPOSDetails   `json:"virtual_pos,omitempty"`
}

func (d AccountDetails) set() []AccountType {
	var kinds []AccountType
	if d.Bank != nil {
		kinds = append(kinds, AccountTypeBank)
	}
	if d.CreditCard != nil {
		kinds = append(kinds, AccountTypeCreditCard)
	}
	if d.CryptoWallet != nil {
		kinds = append(kinds, AccountTypeCryptoWallet)
	}
	if d.VirtualPOS != nil {
		kinds = append(kinds, AccountTypeVirtualPOS)
	}
	return kinds
}

// Validate checks that the populated case matches t.
func (d AccountDetails) Validate(t AccountType) error {
	kinds := d.set()
	if t == AccountTypeCash {
		if len(kinds) != 0 {
			return fmt.Errorf("cash accounts take no details, got %v", kinds)
		}
		return nil
	}
	if len(kinds) != 1 || kinds[0] != t {
		return fmt.Errorf("details for %s account must set exactly the %s case, got %v", t, t, kinds)
	}
	if t == AccountTypeCreditCard && d.CreditCard.CreditLimit.IsNegative() {
		return errors.New("credit limit must not be negative")
	}
	return nil
}

// Value implements driver.Valuer for AccountDetails
func (d AccountDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for AccountDetails
func (d *AccountDetails) Scan(value any) error {
	if value == nil {
		*d = AccountDetails{}
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, d)
}

// Account is a money-holding (or, for credit cards, money-owing) account.
type Account struct {
	ID        string          `json:"id" db:"id"`
	OwnerID   string          `json:"owner_id" db:"owner_id"`
	Name      string          `json:"name" db:"name"`
	Type      AccountType     `json:"type" db:"type"`
	Currency  string          `json:"currency" db:"currency"`
	Balance   decimal.Decimal `json:"balance" db:"balance"`
	Status    AccountStatus   `json:"status" db:"status"`
	Details   AccountDetails  `json:"details" db:"details"`
	Version   int             `json:"version" db:"version"` // for optimistic locking
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// IsLiability reports whether the balance is a debt. Unknown types are not.
func (a *Account) IsLiability() bool {
	meaning, err := a.Type.BalanceMeaning()
	return err == nil && meaning == BalanceLiability
}

// OutflowDelta is the balance change when amount leaves through this account.
func (a *Account) OutflowDelta(amount decimal.Decimal) decimal.Decimal {
	if a.IsLiability() {
		return amount
	}
	return amount.Neg()
}

// InflowDelta is the balance change when amount arrives into this account.
func (a *Account) InflowDelta(amount decimal.Decimal) decimal.Decimal {
	if a.IsLiability() {
		return amount.Neg()
	}
	return amount
}

// CreditLimit returns the card limit, or zero when the account is not a card.
func (a *Account) CreditLimit() decimal.Decimal {
	if a.Details.CreditCard == nil {
		return decimal.Zero
	}
	return a.Details.CreditCard.CreditLimit
}

// CanSpend reports whether amount may leave the account. Asset accounts may be
// drained to exactly zero; cards may be used up to their limit (no limit set
// means unlimited).
func (a *Account) CanSpend(amount decimal.Decimal) bool {
	if a.IsLiability() {
		limit := a.CreditLimit()
		if limit.IsZero() {
			return true
		}
		return a.Balance.Add(amount).LessThanOrEqual(limit)
	}
	return amount.LessThanOrEqual(a.Balance)
}

// CanReceive reports whether amount may arrive into the account. Paying a card
// beyond its debt would leave a negative debt, so liabilities cap at the
// balance; assets take anything.
func (a *Account) CanReceive(amount decimal.Decimal) bool {
	if a.IsLiability() {
		return amount.LessThanOrEqual(a.Balance)
	}
	return true
}
