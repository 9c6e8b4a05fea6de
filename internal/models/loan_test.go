package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddMonths(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	testCases := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"plain", day(2026, 3, 15), 1, day(2026, 4, 15)},
		{"clamps to february", day(2026, 1, 31), 1, day(2026, 2, 28)},
		{"leap year", day(2028, 1, 31), 1, day(2028, 2, 29)},
		{"across the year", day(2025, 11, 30), 3, day(2026, 2, 28)},
		{"eighteen months", day(2025, 1, 31), 18, day(2026, 7, 31)},
		{"zero", day(2026, 5, 31), 0, day(2026, 5, 31)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AddMonths(tc.from, tc.n))
		})
	}
}

func TestPaymentMethod(t *testing.T) {
	for _, raw := range []string{"cash", "bank_transfer", "credit_card"} {
		m, err := ParsePaymentMethod(raw)
		assert.NoError(t, err)
		assert.Equal(t, raw != "cash", m.RequiresAccount())
	}
	_, err := ParsePaymentMethod("cheque")
	assert.Error(t, err)
}

func TestLoan_NextInstallment(t *testing.T) {
	l := Loan{Installments: 18, RemainingInstallments: 18}
	assert.Equal(t, 1, l.NextInstallment())
	l.RemainingInstallments = 1
	assert.Equal(t, 18, l.NextInstallment())
}
