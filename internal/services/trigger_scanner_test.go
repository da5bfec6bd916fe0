package services

import (
	"context"
	"testing"

	"papertrade/internal/models"
	"papertrade/internal/testutil"
)

func TestScanTriggers(t *testing.T) {
	t.Run("limit_buy_fires_when_price_drops", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("RELIANCE", 250_000)

		trade, err := h.limit(t, "RELIANCE", models.OrderSideBuy, 10, 240_000)
		testutil.AssertNoError(t, err)

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Fatalf("expected nothing executed at 2,500.00, got %d", n)
		}
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusPending {
			t.Fatalf("expected PENDING, got %s", got.Status)
		}

		h.oracle.set("RELIANCE", 239_500)
		n, err = h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 1 {
			t.Fatalf("expected 1 executed, got %d", n)
		}

		got := testutil.ReloadTrade(t, h.db, trade.ID)
		if got.Status != models.OrderStatusExecuted || got.Price != 239_500 {
			t.Errorf("unexpected trade %+v", got)
		}
		p := testutil.ReloadPortfolio(t, h.db, h.portfolio.ID)
		// 2,395,000 + 2,395 commission
		if p.CashBalance != testutil.DefaultBalance-2_397_395 {
			t.Errorf("unexpected cash %d", p.CashBalance)
		}
		testutil.AssertReconciled(t, h.db, h.portfolio.ID)
	})

	t.Run("stop_loss_closes_position", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "INFY", 10, 150_000)
		h.oracle.set("INFY", 145_000)

		trade, err := h.stopLoss(t, "INFY", 10, 140_000)
		testutil.AssertNoError(t, err)

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Fatalf("stop should not fire at 1,450.00, got %d", n)
		}

		h.oracle.set("INFY", 139_000)
		n, err = h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 1 {
			t.Fatalf("expected 1 executed, got %d", n)
		}

		got := testutil.ReloadTrade(t, h.db, trade.ID)
		// 1,390,000 − 1,500,000 cost − 1,390 commission
		if got.RealizedPnL != -111_390 {
			t.Errorf("expected realized -111390, got %d", got.RealizedPnL)
		}
		if positions := testutil.Positions(t, h.db, h.portfolio.ID); len(positions) != 0 {
			t.Errorf("expected position closed, got %+v", positions)
		}
		testutil.AssertReconciled(t, h.db, h.portfolio.ID)
	})

	t.Run("limit_sell_fires_at_or_above", func(t *testing.T) {
		h := newHarness(t)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "TCS", 4, 400_000)
		h.oracle.set("TCS", 420_000)

		trade, err := h.limit(t, "TCS", models.OrderSideSell, 4, 420_000)
		testutil.AssertNoError(t, err)

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 1 {
			t.Fatalf("expected 1 executed, got %d", n)
		}
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusExecuted {
			t.Errorf("expected EXECUTED, got %s", got.Status)
		}
	})

	t.Run("skips_symbol_without_quote", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 300_000)

		broken, err := h.limit(t, "WIPRO", models.OrderSideBuy, 1, 50_000)
		testutil.AssertNoError(t, err)
		ok, err := h.limit(t, "TCS", models.OrderSideBuy, 1, 350_000)
		testutil.AssertNoError(t, err)

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 1 {
			t.Fatalf("expected 1 executed, got %d", n)
		}
		if got := testutil.ReloadTrade(t, h.db, broken.ID); got.Status != models.OrderStatusPending {
			t.Errorf("order without a quote should stay PENDING, got %s", got.Status)
		}
		if got := testutil.ReloadTrade(t, h.db, ok.ID); got.Status != models.OrderStatusExecuted {
			t.Errorf("expected EXECUTED, got %s", got.Status)
		}
	})

	t.Run("skips_stale_quotes", func(t *testing.T) {
		h := newHarness(t)
		trade, err := h.limit(t, "TCS", models.OrderSideBuy, 1, 350_000)
		testutil.AssertNoError(t, err)
		h.oracle.setStale("TCS", 300_000)

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Errorf("stale quote must not fire orders, got %d", n)
		}
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusPending {
			t.Errorf("expected PENDING, got %s", got.Status)
		}
	})

	t.Run("one_quote_per_symbol", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 400_000)
		for i := 0; i < 3; i++ {
			_, err := h.limit(t, "TCS", models.OrderSideBuy, 1, 350_000)
			testutil.AssertNoError(t, err)
		}

		_, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if calls := h.oracle.callCount("TCS"); calls != 1 {
			t.Errorf("expected 1 quote lookup, got %d", calls)
		}
	})

	t.Run("rejects_unfillable_trigger", func(t *testing.T) {
		h := newHarness(t)
		h.oracle.set("TCS", 300_000)
		trade, err := h.limit(t, "TCS", models.OrderSideBuy, 300, 350_000)
		testutil.AssertNoError(t, err)
		h.db.Model(&models.Portfolio{}).Where("id = ?", h.portfolio.ID).
			Updates(map[string]interface{}{"cash_balance": 1_000_000, "initial_balance": 1_000_000})

		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Errorf("expected 0 executed, got %d", n)
		}
		if got := testutil.ReloadTrade(t, h.db, trade.ID); got.Status != models.OrderStatusRejected {
			t.Errorf("expected REJECTED, got %s", got.Status)
		}
	})

	t.Run("nothing_pending", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.scanner.ScanTriggers(context.Background())
		testutil.AssertNoError(t, err)
		if n != 0 {
			t.Errorf("expected 0, got %d", n)
		}
	})
}
