package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"papertrade/internal/config"
	"papertrade/internal/database"
	"papertrade/internal/handlers"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/metrics"
	"papertrade/internal/middleware"
	"papertrade/internal/quote"
	"papertrade/internal/services"
	"papertrade/internal/validator"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	_ "papertrade/internal/docs" // Import swagger docs
)

// @title           Paper Trading API
// @version         1.0
// @description     Simulated equity trading against live quotes: virtual cash, market/limit/stop-loss orders, positions and valuation.
// @termsOfService  http://swagger.io/terms/

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	// Load configuration
	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	trading := appConfig.Trading

	// Create database manager
	dbConfig := database.FromApp(appConfig.DBHost, appConfig.DBPort, appConfig.DBUser,
		appConfig.DBPassword, appConfig.DBName, appConfig.DBSSLMode)
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("failed to close database: %v", err)
		}
	}()

	// Run migrations
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()
	m := metrics.New(prometheus.NewRegistry())

	// Quote oracle
	db := dbManager.DB()
	source, err := newQuoteSource(trading, db, &http.Client{Timeout: 10 * time.Second})
	if err != nil {
		return err
	}
	oracle := quote.NewCachedOracle(source, trading.QuoteTTL, trading.QuoteMaxStaleness, m)
	log.Infof("Using %s quote source", source.Name())

	// Ledger
	locks := ledger.NewLocks(trading.LockTimeout)
	store := ledger.NewStore(db, trading.CommissionRate)

	// Initialize services
	auditService := services.NewAuditService(db)
	orderValidator := services.NewOrderValidator(db, oracle, trading.CommissionRate, trading.QuoteTimeout)
	engine := services.NewExecutionEngine(db, store, locks, oracle, trading.QuoteTimeout, m)
	tradingService := services.NewTradingService(db, orderValidator, engine, locks, auditService, m)
	scanner := services.NewTriggerScanner(db, oracle, engine, trading.ScanConcurrency, trading.QuoteTimeout, m)
	portfolioService := services.NewPortfolioService(db, oracle, trading.InitialBalance, trading.ScanConcurrency, trading.QuoteTimeout)
	snapshotService := services.NewPortfolioSnapshotService(db, portfolioService)
	priceService := services.NewQuotePriceService(db, oracle)

	// Initialize handlers
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, auditService)
	tradeHandler := handlers.NewTradeHandler(tradingService)
	snapshotHandler := handlers.NewPortfolioSnapshotHandler(snapshotService)
	pipelineHandler := handlers.NewPipelineHandler(scanner, priceService)
	quoteHandler := handlers.NewQuoteHandler(oracle, priceService, trading.QuoteTimeout)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(m.Middleware())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check and metrics endpoints
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", m.Handler())

	// API v1 group
	v1 := router.Group("/api/v1")

	// Pipeline routes (API key auth)
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.POST("/triggers/scan", pipelineHandler.ScanTriggers)
	pipeline.POST("/prices", pipelineHandler.RecordPrices)
	pipeline.GET("/symbols", pipelineHandler.TrackedSymbols)
	pipeline.POST("/snapshots", snapshotHandler.ComputeSnapshots)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(appConfig.JWTSecret))

	// Portfolio routes
	portfolios := protected.Group("/portfolios")
	portfolios.POST("", portfolioHandler.CreateDefaultPortfolio)
	portfolios.GET("", portfolioHandler.GetUserPortfolios)
	portfolios.GET("/:id", portfolioHandler.GetPortfolioSummary)
	portfolios.GET("/:id/positions", portfolioHandler.ListPositions)

	// Order routes
	portfolios.POST("/:id/orders", tradeHandler.SubmitOrder)
	portfolios.GET("/:id/orders", tradeHandler.ListTrades)
	portfolios.GET("/:id/orders/:tradeId", tradeHandler.GetTrade)
	portfolios.DELETE("/:id/orders/:tradeId", tradeHandler.CancelOrder)

	// Snapshot routes
	portfolios.GET("/:id/snapshots", snapshotHandler.GetSnapshots)
	portfolios.POST("/:id/snapshots", snapshotHandler.RecordSnapshot)

	// Quote routes
	quotes := protected.Group("/quotes")
	quotes.GET("/:symbol", quoteHandler.GetQuote)
	quotes.GET("/:symbol/history", quoteHandler.GetPriceHistory)

	log.Infof("Starting paper trading server on port %s", appConfig.Port)
	log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}

// newQuoteSource selects the upstream price source named by QUOTE_SOURCE.
// Live sources fall back to the prices the pipeline has recorded.
func newQuoteSource(trading config.TradingConfig, db *gorm.DB, httpClient *http.Client) (quote.Source, error) {
	store := quote.NewStoreSource(db)
	switch trading.QuoteSource {
	case "store":
		return store, nil
	case "yahoo":
		return quote.NewFallbackSource(quote.NewYahooSource(httpClient, trading.QuoteExchange), store), nil
	case "alpaca":
		if trading.AlpacaAPIKey == "" || trading.AlpacaAPISecret == "" {
			return nil, fmt.Errorf("alpaca quote source requires ALPACA_API_KEY and ALPACA_API_SECRET")
		}
		return quote.NewFallbackSource(quote.NewAlpacaSource(trading.AlpacaAPIKey, trading.AlpacaAPISecret, ""), store), nil
	default:
		return nil, fmt.Errorf("unknown quote source %q", trading.QuoteSource)
	}
}
