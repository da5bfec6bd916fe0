package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"papertrade/internal/handlers"
	"papertrade/internal/ledger"
	"papertrade/internal/logger"
	"papertrade/internal/middleware"
	"papertrade/internal/quote"
	"papertrade/internal/services"
	"papertrade/internal/testutil"
	"papertrade/internal/uuid"
	"papertrade/internal/validator"
)

const (
	testJWTSecret   = "integration-secret"
	testPipelineKey = "integration-pipeline-key"
	initialBalance  = 100_000_000
)

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupApp creates a full application stack backed by an isolated in-memory
// SQLite. Quotes come from prices pushed through the pipeline endpoint.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	rate := decimal.RequireFromString("0.001")
	oracle := quote.NewCachedOracle(quote.NewStoreSource(db), time.Hour, 2*time.Hour, nil)
	locks := ledger.NewLocks(2 * time.Second)
	store := ledger.NewStore(db, rate)

	// Services
	auditService := services.NewAuditService(db)
	orderValidator := services.NewOrderValidator(db, oracle, rate, time.Second)
	engine := services.NewExecutionEngine(db, store, locks, oracle, time.Second, nil)
	tradingService := services.NewTradingService(db, orderValidator, engine, locks, auditService, nil)
	scanner := services.NewTriggerScanner(db, oracle, engine, 4, time.Second, nil)
	portfolioService := services.NewPortfolioService(db, oracle, initialBalance, 4, time.Second)
	snapshotService := services.NewPortfolioSnapshotService(db, portfolioService)
	priceService := services.NewQuotePriceService(db, oracle)

	// Handlers
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService, auditService)
	tradeHandler := handlers.NewTradeHandler(tradingService)
	snapshotHandler := handlers.NewPortfolioSnapshotHandler(snapshotService)
	pipelineHandler := handlers.NewPipelineHandler(scanner, priceService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(testPipelineKey))
	pipeline.POST("/triggers/scan", pipelineHandler.ScanTriggers)
	pipeline.POST("/prices", pipelineHandler.RecordPrices)
	pipeline.GET("/symbols", pipelineHandler.TrackedSymbols)
	pipeline.POST("/snapshots", snapshotHandler.ComputeSnapshots)

	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware(testJWTSecret))

	portfolios := protected.Group("/portfolios")
	portfolios.POST("", portfolioHandler.CreateDefaultPortfolio)
	portfolios.GET("", portfolioHandler.GetUserPortfolios)
	portfolios.GET("/:id", portfolioHandler.GetPortfolioSummary)
	portfolios.GET("/:id/positions", portfolioHandler.ListPositions)
	portfolios.POST("/:id/orders", tradeHandler.SubmitOrder)
	portfolios.GET("/:id/orders", tradeHandler.ListTrades)
	portfolios.GET("/:id/orders/:tradeId", tradeHandler.GetTrade)
	portfolios.DELETE("/:id/orders/:tradeId", tradeHandler.CancelOrder)
	portfolios.GET("/:id/snapshots", snapshotHandler.GetSnapshots)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// pipelineRequest calls a pipeline endpoint with the API key.
func (app *testApp) pipelineRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testPipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// newUser returns a fresh user id and a signed access token for it.
func newUser(t *testing.T) (userID, token string) {
	t.Helper()
	userID = uuid.New()
	token, err := middleware.GenerateAccessToken(userID, testJWTSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return userID, token
}

// createPortfolio creates the user's default portfolio and returns its id.
func (app *testApp) createPortfolio(t *testing.T, token string) string {
	t.Helper()
	rec := app.request("POST", "/api/v1/portfolios", "", token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create portfolio failed: %d %s", rec.Code, rec.Body.String())
	}
	return parseJSON(t, rec)["portfolio"].(map[string]interface{})["id"].(string)
}

// pushPrice records a price through the pipeline endpoint.
func (app *testApp) pushPrice(t *testing.T, symbol string, price int64, at time.Time) {
	t.Helper()
	body := fmt.Sprintf(`{"prices":[{"symbol":%q,"price":%d,"recorded_at":%q}]}`, symbol, price, at.UTC().Format(time.RFC3339))
	rec := app.pipelineRequest("POST", "/api/v1/pipeline/prices", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("push price failed: %d %s", rec.Code, rec.Body.String())
	}
}

// submit places an order and returns the recorder.
func (app *testApp) submit(token, portfolioID, body string) *httptest.ResponseRecorder {
	return app.request("POST", "/api/v1/portfolios/"+portfolioID+"/orders", body, token)
}
