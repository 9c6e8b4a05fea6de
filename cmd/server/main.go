package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/mizan/backend/internal/config"
	"github.com/mizan/backend/internal/database"
	"github.com/mizan/backend/internal/handlers"
	mW "github.com/mizan/backend/internal/middleware"
	"github.com/mizan/backend/internal/services"
	"github.com/mizan/backend/pkg/logger"
	"github.com/spf13/viper"
)

// @title Mizan Ledger API
// @version 1.0
// @description Multi-currency personal ledger: accounts, transfers, cards, loans and debts
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	configErr := config.InitViper(".env")

	log := logger.New(logger.Config{
		Level:   viper.GetString("log.level"),
		Pretty:  viper.GetBool("log.pretty"),
		Service: "mizan-api",
	})
	logger.SetGlobalLogger(log)
	if configErr != nil {
		log.Info().Err(configErr).Msg("config file not found, using environment and defaults")
	}

	ctx := context.Background()

	db, err := database.InitDB(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	redisClient := database.InitRedis(ctx)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ledgerCfg := config.LoadLedgerConfig()
	audit := services.NewAuditLogger(log)

	rateService := services.NewRateService(db, redisClient, ledgerCfg, log)
	accountService := services.NewAccountService(db, audit, log)
	ledgerService := services.NewLedgerService(db, accountService, rateService, ledgerCfg, audit, log)
	transferService := services.NewTransferService(db, accountService, ledgerService, rateService, ledgerCfg, audit, log)
	creditService := services.NewCreditService(db, accountService, ledgerService, transferService, rateService, ledgerCfg, audit, log)
	loanService := services.NewLoanService(db, accountService, ledgerService, ledgerCfg, audit, log)
	debtService := services.NewDebtService(db, ledgerCfg, audit, log)

	accountHandler := handlers.NewAccountHandler(accountService, ledgerService, log)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService, transferService, log)
	creditHandler := handlers.NewCreditHandler(creditService, log)
	loanHandler := handlers.NewLoanHandler(loanService, log)
	debtHandler := handlers.NewDebtHandler(debtService, log)
	rateHandler := handlers.NewRateHandler(rateService, log)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Route("/accounts", accountHandler.Routes)
		r.Route("/cards", creditHandler.Routes)
		r.Route("/loans", loanHandler.Routes)
		r.Route("/debts", debtHandler.Routes)

		r.Post("/transfers", ledgerHandler.Transfer)
		r.Post("/entries", ledgerHandler.Record)
		r.Get("/entries/{id}", ledgerHandler.Get)
		r.Delete("/entries/{id}", ledgerHandler.Delete)

		r.Get("/rates", rateHandler.List)
		r.Get("/rates/{currency}", rateHandler.Get)
	})

	// Start server
	server := &http.Server{
		Addr:         ":" + viper.GetString("http.port"),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
