package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/models"
	"papertrade/internal/testutil"
)

func TestExecute_ConcurrentBuysOnOnePortfolio(t *testing.T) {
	h := newHarness(t)
	h.oracle.set("RELIANCE", 250_000)

	// Two 600,000.00 orders against 1,000,000.00 of cash: only one fits.
	first := testutil.CreateTestTrade(t, h.db, h.portfolio, "RELIANCE", models.OrderSideBuy, models.OrderTypeMarket, 240, 0)
	second := testutil.CreateTestTrade(t, h.db, h.portfolio, "RELIANCE", models.OrderSideBuy, models.OrderTypeMarket, 240, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.engine.Execute(context.Background(), id)
		}()
	}
	wg.Wait()

	executed, rejected := 0, 0
	for _, id := range []string{first.ID, second.ID} {
		trade := testutil.ReloadTrade(t, h.db, id)
		switch trade.Status {
		case models.OrderStatusExecuted:
			executed++
		case models.OrderStatusRejected:
			rejected++
			if trade.RejectReason == "" {
				t.Error("rejected trade has no reason")
			}
		default:
			t.Errorf("unexpected status %s", trade.Status)
		}
	}
	if executed != 1 || rejected != 1 {
		t.Fatalf("expected one EXECUTED and one REJECTED, got %d/%d", executed, rejected)
	}

	fundsErrors := 0
	for _, err := range errs {
		if errors.Is(err, apperrors.ErrInsufficientFunds) {
			fundsErrors++
		}
	}
	if fundsErrors != 1 {
		t.Errorf("expected one INSUFFICIENT_FUNDS error, got %v", errs)
	}

	p := testutil.ReloadPortfolio(t, h.db, h.portfolio.ID)
	if p.CashBalance != testutil.DefaultBalance-60_060_000 {
		t.Errorf("unexpected cash %d", p.CashBalance)
	}
	testutil.AssertReconciled(t, h.db, h.portfolio.ID)
}

func TestExecute_ManyConcurrentFillsReconcile(t *testing.T) {
	h := newHarness(t)
	h.oracle.set("TCS", 400_000)
	h.oracle.set("INFY", 150_000)
	testutil.CreateTestPosition(t, h.db, h.portfolio, "INFY", 100, 140_000)

	var ids []string
	for i := 0; i < 10; i++ {
		ids = append(ids, testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeMarket, 3, 0).ID)
		ids = append(ids, testutil.CreateTestTrade(t, h.db, h.portfolio, "INFY", models.OrderSideSell, models.OrderTypeMarket, 7, 0).ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.engine.Execute(context.Background(), id)
		}()
	}
	wg.Wait()

	for _, id := range ids {
		if trade := testutil.ReloadTrade(t, h.db, id); trade.Status != models.OrderStatusExecuted {
			t.Errorf("trade %s ended %s: %s", id, trade.Status, trade.RejectReason)
		}
	}
	positions := testutil.Positions(t, h.db, h.portfolio.ID)
	if len(positions) != 2 || positions[0].Symbol != "INFY" || positions[0].Quantity != 30 || positions[1].Quantity != 30 {
		t.Errorf("unexpected positions %+v", positions)
	}
	testutil.AssertReconciled(t, h.db, h.portfolio.ID)
}

func TestExecute_LockTimeout(t *testing.T) {
	t.Run("market_order_rejected_busy", func(t *testing.T) {
		h := newHarnessWithLockTimeout(t, 20*time.Millisecond)
		h.oracle.set("TCS", 400_000)

		release, err := h.locks.Acquire(context.Background(), h.portfolio.ID)
		testutil.AssertNoError(t, err)
		defer release()

		trade, err := h.market(t, "TCS", models.OrderSideBuy, 1)
		testutil.AssertAppError(t, err, "CONCURRENCY_TIMEOUT")
		testutil.AssertRetryable(t, err)
		if trade == nil || trade.Status != models.OrderStatusRejected || trade.RejectReason != busyReason {
			t.Fatalf("expected REJECTED busy trade, got %+v", trade)
		}
		if p := testutil.ReloadPortfolio(t, h.db, h.portfolio.ID); p.CashBalance != testutil.DefaultBalance {
			t.Errorf("cash changed to %d", p.CashBalance)
		}
	})

	t.Run("deferred_order_stays_pending", func(t *testing.T) {
		h := newHarnessWithLockTimeout(t, 20*time.Millisecond)
		h.oracle.set("TCS", 300_000)
		trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeLimit, 1, 350_000)

		release, err := h.locks.Acquire(context.Background(), h.portfolio.ID)
		testutil.AssertNoError(t, err)
		defer release()

		_, err = h.engine.Execute(context.Background(), trade.ID)
		testutil.AssertAppError(t, err, "CONCURRENCY_TIMEOUT")
		testutil.AssertRetryable(t, err)
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", got.Status)
		}
	})
}

func TestExecute_DeferredOrders(t *testing.T) {
	t.Run("trigger_not_met_stays_pending", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 400_000)
		trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeLimit, 1, 350_000)

		_, err := h.engine.Execute(context.Background(), trade.ID)
		testutil.AssertAppError(t, err, "TRIGGER_NOT_MET")
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", got.Status)
		}
	})

	t.Run("quote_unavailable_stays_pending", func(t *testing.T) {
		h := newHarness(t)
		trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeLimit, 1, 350_000)

		_, err := h.engine.Execute(context.Background(), trade.ID)
		testutil.AssertAppError(t, err, "QUOTE_UNAVAILABLE")
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", got.Status)
		}
	})

	t.Run("limit_fills_at_quote", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 330_000)
		trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeLimit, 2, 350_000)

		executed, err := h.engine.Execute(context.Background(), trade.ID)
		testutil.AssertNoError(t, err)
		if executed.Price != 330_000 || executed.TotalValue != 660_000 || executed.Commission != 660 {
			t.Errorf("unexpected fill %+v", executed)
		}
		testutil.AssertReconciled(t, h.db, h.portfolio.ID)
	})

	t.Run("funds_spent_before_trigger", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 300_000)
		trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeLimit, 300, 350_000)
		h.db.Model(&models.Portfolio{}).Where("id = ?", h.portfolio.ID).
			Updates(map[string]interface{}{"cash_balance": 1_000_000, "initial_balance": 1_000_000})

		got, err := h.engine.Execute(context.Background(), trade.ID)
		testutil.AssertAppError(t, err, "INSUFFICIENT_FUNDS")
		if got.Status != models.OrderStatusRejected {
			t.Errorf("expected REJECTED, got %s", got.Status)
		}
	})
}

func TestExecute_InconsistentLedgerRollsBack(t *testing.T) {
	h := newHarness(t)
	h.oracle.set("TCS", 400_000)
	trade := testutil.CreateTestTrade(t, h.db, h.portfolio, "TCS", models.OrderSideBuy, models.OrderTypeMarket, 1, 0)

	// Corrupt the stored totals so no fill can reconcile.
	h.db.Model(&models.Portfolio{}).Where("id = ?", h.portfolio.ID).Update("total_invested", 12_345)

	got, err := h.engine.Execute(context.Background(), trade.ID)
	testutil.AssertAppError(t, err, "INCONSISTENCY")
	if got.Status != models.OrderStatusRejected {
		t.Errorf("expected REJECTED, got %s", got.Status)
	}
	if got.RejectReason != apperrors.ErrInconsistency.Message {
		t.Errorf("reject reason leaks ledger details: %q", got.RejectReason)
	}

	p := testutil.ReloadPortfolio(t, h.db, h.portfolio.ID)
	if p.CashBalance != testutil.DefaultBalance || p.Version != h.portfolio.Version {
		t.Errorf("fill was not rolled back: %+v", p)
	}
	if positions := testutil.Positions(t, h.db, h.portfolio.ID); len(positions) != 0 {
		t.Errorf("position was not rolled back: %+v", positions)
	}
}

func TestExecute_UnknownTrade(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Execute(context.Background(), testutil.NewUserID())
	testutil.AssertAppError(t, err, "TRADE_NOT_FOUND")
}
