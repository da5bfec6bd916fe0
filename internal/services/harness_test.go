package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"papertrade/internal/ledger"
	"papertrade/internal/models"
	"papertrade/internal/quote"
	"papertrade/internal/testutil"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var testRate = decimal.RequireFromString("0.001")

// fakeOracle serves fixed quotes. Symbols without a quote are unavailable.
type fakeOracle struct {
	mu     sync.Mutex
	quotes map[string]quote.Quote
	calls  map[string]int
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{quotes: make(map[string]quote.Quote), calls: make(map[string]int)}
}

func (f *fakeOracle) set(symbol string, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = quote.Quote{Symbol: symbol, Price: price, AsOf: time.Now()}
}

func (f *fakeOracle) setStale(symbol string, price int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = quote.Quote{Symbol: symbol, Price: price, AsOf: time.Now().Add(-time.Hour), Stale: true}
}

func (f *fakeOracle) remove(symbol string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quotes, symbol)
}

func (f *fakeOracle) callCount(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeOracle) GetQuote(ctx context.Context, symbol string) (quote.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := ctx.Err(); err != nil {
		return quote.Quote{}, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return quote.Quote{}, quote.ErrUnavailable
	}
	return q, nil
}

// harness wires the trading services over one test database and one
// portfolio holding testutil.DefaultBalance.
type harness struct {
	db        *gorm.DB
	oracle    *fakeOracle
	locks     *ledger.Locks
	engine    OrderExecutor
	trading   TradingServicer
	scanner   TriggerScanner
	userID    string
	portfolio *models.Portfolio
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithLockTimeout(t, 2*time.Second)
}

func newHarnessWithLockTimeout(t *testing.T, lockTimeout time.Duration) *harness {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.TeardownTestDB(t, db) })

	oracle := newFakeOracle()
	locks := ledger.NewLocks(lockTimeout)
	store := ledger.NewStore(db, testRate)
	engine := NewExecutionEngine(db, store, locks, oracle, time.Second, nil)
	validator := NewOrderValidator(db, oracle, testRate, time.Second)

	userID := testutil.NewUserID()
	return &harness{
		db:        db,
		oracle:    oracle,
		locks:     locks,
		engine:    engine,
		trading:   NewTradingService(db, validator, engine, locks, NewAuditService(db), nil),
		scanner:   NewTriggerScanner(db, oracle, engine, 4, time.Second, nil),
		userID:    userID,
		portfolio: testutil.CreateTestPortfolio(t, db, userID),
	}
}

func (h *harness) market(t *testing.T, symbol string, side models.OrderSide, qty int64) (*models.Trade, error) {
	t.Helper()
	return h.trading.SubmitOrder(context.Background(), h.userID, h.portfolio.ID, symbol, side, models.OrderTypeMarket, qty, nil, nil, "", "127.0.0.1")
}

func (h *harness) limit(t *testing.T, symbol string, side models.OrderSide, qty, price int64) (*models.Trade, error) {
	t.Helper()
	return h.trading.SubmitOrder(context.Background(), h.userID, h.portfolio.ID, symbol, side, models.OrderTypeLimit, qty, &price, nil, "", "127.0.0.1")
}

func (h *harness) stopLoss(t *testing.T, symbol string, qty, stop int64) (*models.Trade, error) {
	t.Helper()
	return h.trading.SubmitOrder(context.Background(), h.userID, h.portfolio.ID, symbol, models.OrderSideSell, models.OrderTypeStopLoss, qty, nil, &stop, "", "127.0.0.1")
}

func (h *harness) countTrades(t *testing.T) int64 {
	t.Helper()
	var n int64
	if err := h.db.Model(&models.Trade{}).Where("portfolio_id = ?", h.portfolio.ID).Count(&n).Error; err != nil {
		t.Fatalf("failed to count trades: %v", err)
	}
	return n
}

func int64Ptr(v int64) *int64 { return &v }
