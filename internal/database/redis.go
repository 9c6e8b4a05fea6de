package database

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// InitRedis initializes the Redis client used as the exchange-rate cache.
// A nil client means the cache is disabled.
func InitRedis(ctx context.Context) *redis.Client {
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	addr := viper.GetString("redis.host") + ":" + viper.GetString("redis.port")
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("redis connection failed, continuing without rate cache")
		return nil
	}

	log.Info().Str("addr", addr).Msg("redis connection established")
	return rdb
}
