// Package v1 provides HTTP API version 1.
package v1

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/numerator"
	"lotledger/internal/domain/catalogs/customer"
	"lotledger/internal/domain/catalogs/product"
	"lotledger/internal/domain/catalogs/warehouse"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/registers/lots"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/catalog_repo"
	"lotledger/internal/infrastructure/storage/postgres/register_repo"
	"lotledger/pkg/logger"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (health checks, idempotency).
	Pool *postgres.Pool

	// TxManager runs queries and transactions; repositories share it.
	TxManager *postgres.TxManager

	// Logger for request logging
	Logger *logger.Logger

	// Numerator for document number generation
	Numerator numerator.Generator

	// Ledger is the inventory ledger engine, wired in main with its
	// correction policy and auditor.
	Ledger *ledger.Service

	// IdempotencyEnabled enables idempotency middleware
	IdempotencyEnabled bool
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.UserContext())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		// Apply idempotency middleware for mutating operations
		if cfg.IdempotencyEnabled {
			store := postgres.NewIdempotencyStore(cfg.Pool, cfg.TxManager, 10*time.Minute)
			v1.Use(middleware.Idempotency(store))
		}

		registerCatalogRoutes(v1, cfg)
		registerLedgerRoutes(v1, cfg)
	}

	return router
}

// registerCatalogRoutes registers catalog endpoints.
func registerCatalogRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	catalogs := rg.Group("/catalog")
	baseHandler := handlers.NewBaseHandler()

	// --- PRODUCTS ---
	{
		repo := catalog_repo.NewProductRepo(cfg.TxManager)
		service := product.NewService(repo, cfg.TxManager, cfg.Numerator)
		handler := handlers.NewProductHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/products"), handler)
	}

	// --- WAREHOUSES ---
	{
		repo := catalog_repo.NewWarehouseRepo(cfg.TxManager)
		service := warehouse.NewService(repo, cfg.TxManager, cfg.Numerator)
		handler := handlers.NewWarehouseHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/warehouses"), handler)
	}

	// --- CUSTOMERS ---
	{
		repo := catalog_repo.NewCustomerRepo(cfg.TxManager)
		service := customer.NewService(repo, cfg.TxManager, cfg.Numerator)
		handler := handlers.NewCustomerHandler(baseHandler, service)
		RegisterCatalogRoutes(catalogs.Group("/customers"), handler)
	}
}

// registerLedgerRoutes registers the ledger operation and register
// inspection endpoints.
func registerLedgerRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	baseHandler := handlers.NewBaseHandler()

	lotRepo := register_repo.NewLotRepo(cfg.TxManager)
	lotService := lots.NewService(lotRepo)
	openUnitRepo := register_repo.NewOpenUnitRepo(cfg.TxManager)
	txLogRepo := register_repo.NewTxLogRepo(cfg.TxManager)

	handler := handlers.NewLedgerHandler(baseHandler, cfg.Ledger, lotService, openUnitRepo, txLogRepo)

	group := rg.Group("/ledger")
	{
		group.POST("/receivings", handler.Receive)
		group.POST("/sales", handler.Sell)
		group.POST("/sales/:id/reverse", handler.ReverseSale)
		group.POST("/manufacturings", handler.Manufacture)
		group.POST("/transfers", handler.Transfer)

		group.GET("/products/:id/cost", handler.GetProductCost)
		group.GET("/lots", handler.ListLots)
		group.GET("/open-units", handler.ListOpenUnits)
		group.GET("/transactions", handler.ListTransactions)
		group.GET("/transactions/:id", handler.GetTransaction)
	}
}
