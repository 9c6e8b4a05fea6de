package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rate is a buying/selling pair against the base currency.
type Rate struct {
	Buying  decimal.Decimal `json:"buying"`
	Selling decimal.Decimal `json:"selling"`
}

// UnitRate is the rate of the base currency against itself.
var UnitRate = Rate{Buying: decimal.NewFromInt(1), Selling: decimal.NewFromInt(1)}

// ExchangeRate is a stored rate row.
type ExchangeRate struct {
	Currency string          `json:"currency" db:"currency" validate:"required,currency"`
	RateDate time.Time       `json:"rate_date" db:"rate_date" validate:"required"`
	Buying   decimal.Decimal `json:"buying" db:"buying" validate:"dpositive"`
	Selling  decimal.Decimal `json:"selling" db:"selling" validate:"dpositive"`
}

// Rate drops the date.
func (r ExchangeRate) Rate() Rate {
	return Rate{Buying: r.Buying, Selling: r.Selling}
}
