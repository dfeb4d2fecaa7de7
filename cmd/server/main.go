// Package main is the entry point for the lotledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotledger/internal/domain/ledger"
	v1 "lotledger/internal/infrastructure/http/v1"
	"lotledger/internal/infrastructure/numerator"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/catalog_repo"
	"lotledger/internal/infrastructure/storage/postgres/register_repo"
	"lotledger/pkg/logger"
)

func main() {
	// Initialize logger
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lotledger server")

	// --- Database connection ---
	poolCfg := postgres.DefaultPoolConfig(mustEnv("DATABASE_URL"))
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Audit ---
	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Numerator ---
	numeratorService := numerator.New(pool)

	// --- Correction policy ---
	policy, err := ledger.PolicyFromConfig(
		ledger.CorrectionMode(getEnv("LEDGER_CORRECTION_MODE", "auto-heal")),
		getEnv("LEDGER_CORRECTION_RULE", ""),
	)
	if err != nil {
		log.Fatalw("failed to build correction policy", "error", err)
	}

	// --- Ledger engine ---
	// Ledger operations run at serializable isolation; catalog CRUD keeps
	// the default level through the plain TxManager.
	engine := ledger.NewService(ledger.Config{
		TxManager: postgres.NewSerializableManager(txManager),
		Products:  catalog_repo.NewProductRepo(txManager),
		Lots:      register_repo.NewLotRepo(txManager),
		OpenUnits: register_repo.NewOpenUnitRepo(txManager),
		TxLog:     register_repo.NewTxLogRepo(txManager),
		Customers: catalog_repo.NewCustomerRepo(txManager),
		Numerator: numeratorService,
		Policy:    policy,
		Auditor:   postgres.NewLedgerAuditor(auditService),
	})

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:               pool,
		TxManager:          txManager,
		Logger:             log,
		Numerator:          numeratorService,
		Ledger:             engine,
		IdempotencyEnabled: getEnv("IDEMPOTENCY_ENABLED", "false") == "true",
	})

	// --- HTTP Server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
