package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type LedgerConfig struct {
	BaseCurrency    string
	MinPaymentRate  decimal.Decimal
	MinPaymentFloor decimal.Decimal
	RateCacheTTL    time.Duration
	AmountPlaces    int32
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		BaseCurrency:    strings.ToUpper(getEnv("LEDGER_BASE_CURRENCY", "YER")),
		MinPaymentRate:  getEnvAsDecimal("CREDIT_MIN_PAYMENT_RATE", decimal.RequireFromString("0.20")),
		MinPaymentFloor: getEnvAsDecimal("CREDIT_MIN_PAYMENT_FLOOR", decimal.NewFromInt(100)),
		RateCacheTTL:    getEnvAsDuration("RATE_CACHE_TTL", 10*time.Minute),
		AmountPlaces:    int32(getEnvAsInt("LEDGER_AMOUNT_PLACES", 8)),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsDecimal(key string, defaultVal decimal.Decimal) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if d, err := decimal.NewFromString(val); err == nil {
			return d
		}
	}
	return defaultVal
}
