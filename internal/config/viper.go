package config

import (
	"github.com/spf13/viper"
)

var envBindings = map[string]string{
	"database.host":     "DATABASE_HOST",
	"database.port":     "DATABASE_PORT",
	"database.user":     "DATABASE_USER",
	"database.password": "DATABASE_PASSWORD",
	"database.name":     "DATABASE_NAME",
	"database.ssl_mode": "DATABASE_SSL_MODE",

	"redis.host":     "REDIS_HOST",
	"redis.port":     "REDIS_PORT",
	"redis.password": "REDIS_PASSWORD",
	"redis.db":       "REDIS_DB",

	"jwt.secret_key": "JWT_SECRET_KEY",

	"log.level":  "LOG_LEVEL",
	"log.pretty": "LOG_PRETTY",
	"http.port":  "PORT",
}

// InitViper reads an optional .env file and binds environment overrides.
// The returned error only reports a missing or unreadable .env file.
func InitViper(path string) error {
	viper.SetConfigFile(path)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	for key, env := range envBindings {
		_ = viper.BindEnv(key, env)
	}

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
	viper.SetDefault("http.port", "8080")

	return viper.ReadInConfig()
}
