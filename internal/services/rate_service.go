package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/models"
	"github.com/rs/zerolog"
)

const rateDateLayout = "2006-01-02"

// RateProvider supplies buying/selling rates against the base currency.
// A missing rate is ErrRateUnavailable, never a default of 1.
type RateProvider interface {
	Rate(ctx context.Context, currency string, date time.Time) (models.Rate, error)
	Rates(ctx context.Context, date time.Time) (map[string]models.Rate, error)
}

// RateService reads exchange_rates, using the most recent row on or before the
// requested date, with an optional Redis read-through cache.
type RateService struct {
	db        *sqlx.DB
	redis     *redis.Client
	base      string
	ttl       time.Duration
	validator *ValidationHelper
	logger    zerolog.Logger
}

func NewRateService(db *sqlx.DB, redisClient *redis.Client, cfg *config.LedgerConfig, logger zerolog.Logger) *RateService {
	return &RateService{
		db:        db,
		redis:     redisClient,
		base:      cfg.BaseCurrency,
		ttl:       cfg.RateCacheTTL,
		validator: NewValidationHelper(),
		logger:    logger.With().Str("component", "rates").Logger(),
	}
}

func rateCacheKey(currency string, date time.Time) string {
	return fmt.Sprintf("rate:%s:%s", currency, date.Format(rateDateLayout))
}

// Rate returns the rate for currency as of date.
func (s *RateService) Rate(ctx context.Context, currency string, date time.Time) (models.Rate, error) {
	currency = strings.ToUpper(currency)
	if currency == s.base {
		return models.UnitRate, nil
	}

	key := rateCacheKey(currency, date)
	if rate, ok := s.cached(ctx, key); ok {
		return rate, nil
	}

	var row models.ExchangeRate
	err := s.db.GetContext(ctx, &row, `
		SELECT currency, rate_date, buying, selling
		FROM exchange_rates
		WHERE currency = $1 AND rate_date <= $2
		ORDER BY rate_date DESC
		LIMIT 1`, currency, date.Format(rateDateLayout))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Rate{}, rejectRate(currency, date)
	}
	if err != nil {
		return models.Rate{}, fmt.Errorf("%w: %s on %s: %v", ErrRateUnavailable, currency, date.Format(rateDateLayout), err)
	}

	rate := row.Rate()
	s.store(ctx, key, rate)
	return rate, nil
}

func rejectRate(currency string, date time.Time) error {
	return fmt.Errorf("%w: no rate for %s on or before %s", ErrRateUnavailable, currency, date.Format(rateDateLayout))
}

// Rates returns every known currency's rate as of date, including the base.
func (s *RateService) Rates(ctx context.Context, date time.Time) (map[string]models.Rate, error) {
	var rows []models.ExchangeRate
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (currency) currency, rate_date, buying, selling
		FROM exchange_rates
		WHERE rate_date <= $1
		ORDER BY currency, rate_date DESC`, date.Format(rateDateLayout))
	if err != nil {
		return nil, fmt.Errorf("%w: listing rates: %v", ErrRateUnavailable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rates on or before %s", ErrRateUnavailable, date.Format(rateDateLayout))
	}

	rates := make(map[string]models.Rate, len(rows)+1)
	for _, r := range rows {
		rates[r.Currency] = r.Rate()
	}
	rates[s.base] = models.UnitRate
	return rates, nil
}

// UpsertRate stores a rate row and drops cached lookups for that currency.
func (s *RateService) UpsertRate(ctx context.Context, rate models.ExchangeRate) error {
	rate.Currency = strings.ToUpper(rate.Currency)
	if err := s.validator.Params(&rate); err != nil {
		return err
	}
	if rate.Currency == s.base {
		return rejectf(ErrInvalidInput, "the base currency %s has a fixed rate of 1", s.base)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO exchange_rates (currency, rate_date, buying, selling)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (currency, rate_date) DO UPDATE SET buying = EXCLUDED.buying, selling = EXCLUDED.selling`,
		rate.Currency, rate.RateDate.Format(rateDateLayout), rate.Buying, rate.Selling)
	if err != nil {
		return persistence("upsert rate", err)
	}

	s.invalidate(ctx, rate.Currency)
	s.logger.Info().Str("currency", rate.Currency).Time("rate_date", rate.RateDate).
		Str("buying", rate.Buying.String()).Str("selling", rate.Selling.String()).Msg("rate stored")
	return nil
}

func (s *RateService) cached(ctx context.Context, key string) (models.Rate, bool) {
	if s.redis == nil {
		return models.Rate{}, false
	}
	val, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Str("key", key).Msg("rate cache read failed")
		}
		return models.Rate{}, false
	}
	var rate models.Rate
	if err := json.Unmarshal([]byte(val), &rate); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("discarding malformed cached rate")
		return models.Rate{}, false
	}
	return rate, true
}

func (s *RateService) store(ctx context.Context, key string, rate models.Rate) {
	if s.redis == nil {
		return
	}
	b, err := json.Marshal(rate)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, key, string(b), s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("rate cache write failed")
	}
}

func (s *RateService) invalidate(ctx context.Context, currency string) {
	if s.redis == nil {
		return
	}
	iter := s.redis.Scan(ctx, 0, fmt.Sprintf("rate:%s:*", currency), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		s.logger.Warn().Err(err).Str("currency", currency).Msg("rate cache scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		s.logger.Warn().Err(err).Str("currency", currency).Msg("rate cache invalidation failed")
	}
}
