package services

import (
	"context"
	"math"
	"testing"
	"time"

	"papertrade/internal/models"
	"papertrade/internal/testutil"
)

func newTestPortfolioService(h *harness) PortfolioServicer {
	return NewPortfolioService(h.db, h.oracle, testutil.DefaultBalance, 4, time.Second)
}

func TestCreateDefaultPortfolio(t *testing.T) {
	t.Run("creates_with_initial_balance", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)
		userID := testutil.NewUserID()

		p, err := svc.CreateDefaultPortfolio(userID)
		testutil.AssertNoError(t, err)
		if p.CashBalance != testutil.DefaultBalance || p.InitialBalance != testutil.DefaultBalance || !p.IsDefault {
			t.Errorf("unexpected portfolio %+v", p)
		}
		testutil.AssertReconciled(t, h.db, p.ID)
	})

	t.Run("second_default_conflicts", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)

		_, err := svc.CreateDefaultPortfolio(h.userID)
		testutil.AssertAppError(t, err, "PORTFOLIO_EXISTS")
	})
}

func TestGetPortfolio(t *testing.T) {
	h := newHarness(t)
	svc := newTestPortfolioService(h)

	t.Run("owner", func(t *testing.T) {
		p, err := svc.GetPortfolio(h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)
		if p.ID != h.portfolio.ID {
			t.Errorf("got portfolio %s", p.ID)
		}
	})

	t.Run("other_user", func(t *testing.T) {
		_, err := svc.GetPortfolio(testutil.NewUserID(), h.portfolio.ID)
		testutil.AssertAppError(t, err, "PORTFOLIO_NOT_FOUND")
	})

	t.Run("list_for_user", func(t *testing.T) {
		list, err := svc.GetUserPortfolios(h.userID)
		testutil.AssertNoError(t, err)
		if len(list) != 1 {
			t.Errorf("expected 1 portfolio, got %d", len(list))
		}
	})
}

func TestGetPortfolioSummary(t *testing.T) {
	t.Run("values_at_current_quotes", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "RELIANCE", 10, 250_000)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "TCS", 5, 400_000)
		h.oracle.set("RELIANCE", 260_000)
		h.oracle.set("TCS", 390_000)

		s, err := svc.GetPortfolioSummary(context.Background(), h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)

		if s.CashBalance != testutil.DefaultBalance-4_500_000 {
			t.Errorf("unexpected cash %d", s.CashBalance)
		}
		if s.HoldingsValue != 2_600_000+1_950_000 {
			t.Errorf("unexpected holdings %d", s.HoldingsValue)
		}
		if s.TotalEquity != s.CashBalance+s.HoldingsValue {
			t.Errorf("equity %d != cash+holdings", s.TotalEquity)
		}
		if s.UnrealizedPnL != 100_000-50_000 || s.TotalPnL != 50_000 {
			t.Errorf("unexpected pnl unrealized=%d total=%d", s.UnrealizedPnL, s.TotalPnL)
		}
		if math.Abs(s.TotalPnLPct-0.05) > 1e-9 {
			t.Errorf("unexpected pct %f", s.TotalPnLPct)
		}
		if s.Stale || s.NumPositions != 2 {
			t.Errorf("unexpected summary %+v", s)
		}
		if s.Positions[0].Symbol != "RELIANCE" || s.Positions[0].UnrealizedPnL != 100_000 {
			t.Errorf("unexpected first position %+v", s.Positions[0])
		}
		if math.Abs(s.Positions[1].UnrealizedPnLPct+2.5) > 1e-9 {
			t.Errorf("unexpected TCS pct %f", s.Positions[1].UnrealizedPnLPct)
		}

		stored := testutil.Positions(t, h.db, h.portfolio.ID)
		if stored[0].CurrentPrice != 260_000 {
			t.Errorf("fresh quote should refresh last known price, got %d", stored[0].CurrentPrice)
		}
	})

	t.Run("falls_back_to_last_price", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "TCS", 5, 400_000)

		s, err := svc.GetPortfolioSummary(context.Background(), h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)
		if !s.Stale || !s.Positions[0].Stale {
			t.Error("expected stale valuation")
		}
		if s.HoldingsValue != 2_000_000 || s.UnrealizedPnL != 0 {
			t.Errorf("unexpected fallback valuation %+v", s)
		}
	})

	t.Run("stale_quote_marks_stale", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)
		testutil.CreateTestPosition(t, h.db, h.portfolio, "TCS", 5, 400_000)
		h.oracle.setStale("TCS", 380_000)

		s, err := svc.GetPortfolioSummary(context.Background(), h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)
		if !s.Stale || s.HoldingsValue != 1_900_000 {
			t.Errorf("unexpected summary %+v", s)
		}
		if stored := testutil.Positions(t, h.db, h.portfolio.ID); stored[0].CurrentPrice != 400_000 {
			t.Errorf("stale quote must not be stored, got %d", stored[0].CurrentPrice)
		}
	})

	t.Run("empty_portfolio", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)

		s, err := svc.GetPortfolioSummary(context.Background(), h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)
		if s.TotalEquity != testutil.DefaultBalance || s.TotalPnL != 0 || len(s.Positions) != 0 {
			t.Errorf("unexpected summary %+v", s)
		}
	})

	t.Run("after_trades", func(t *testing.T) {
		h := newHarness(t)
		svc := newTestPortfolioService(h)
		h.oracle.set("RELIANCE", 250_000)
		_, err := h.market(t, "RELIANCE", models.OrderSideBuy, 10)
		testutil.AssertNoError(t, err)

		s, err := svc.GetPortfolioSummary(context.Background(), h.userID, h.portfolio.ID)
		testutil.AssertNoError(t, err)
		// Buy commission is a cost already paid out of cash.
		if s.TotalEquity != testutil.DefaultBalance-2_500 || s.TotalCommission != 2_500 {
			t.Errorf("unexpected summary %+v", s)
		}
	})
}
