package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/models"
	"papertrade/internal/services"
)

// --- mock portfolio service ---

type mockPortfolioService struct {
	createDefaultPortfolioFn func(userID string) (*models.Portfolio, error)
	getUserPortfoliosFn      func(userID string) ([]models.Portfolio, error)
	getPortfolioFn           func(userID, portfolioID string) (*models.Portfolio, error)
	listPositionsFn          func(userID, portfolioID string) ([]models.Position, error)
	getPortfolioSummaryFn    func(ctx context.Context, userID, portfolioID string) (*services.PortfolioSummary, error)
}

var _ services.PortfolioServicer = (*mockPortfolioService)(nil)

func (m *mockPortfolioService) CreateDefaultPortfolio(userID string) (*models.Portfolio, error) {
	if m.createDefaultPortfolioFn != nil {
		return m.createDefaultPortfolioFn(userID)
	}
	return &models.Portfolio{}, nil
}

func (m *mockPortfolioService) GetUserPortfolios(userID string) ([]models.Portfolio, error) {
	if m.getUserPortfoliosFn != nil {
		return m.getUserPortfoliosFn(userID)
	}
	return []models.Portfolio{}, nil
}

func (m *mockPortfolioService) GetPortfolio(userID, portfolioID string) (*models.Portfolio, error) {
	if m.getPortfolioFn != nil {
		return m.getPortfolioFn(userID, portfolioID)
	}
	return &models.Portfolio{}, nil
}

func (m *mockPortfolioService) ListPositions(userID, portfolioID string) ([]models.Position, error) {
	if m.listPositionsFn != nil {
		return m.listPositionsFn(userID, portfolioID)
	}
	return []models.Position{}, nil
}

func (m *mockPortfolioService) GetPortfolioSummary(ctx context.Context, userID, portfolioID string) (*services.PortfolioSummary, error) {
	if m.getPortfolioSummaryFn != nil {
		return m.getPortfolioSummaryFn(ctx, userID, portfolioID)
	}
	return &services.PortfolioSummary{}, nil
}

func (m *mockPortfolioService) Summarize(_ context.Context, portfolioID string) (*services.PortfolioSummary, error) {
	return &services.PortfolioSummary{PortfolioID: portfolioID}, nil
}

func setupPortfolioRouter(handler *PortfolioHandler) *gin.Engine {
	r := newTestRouter()
	auth := r.Group("", injectUserID(testUserID))
	auth.POST("/portfolios", handler.CreateDefaultPortfolio)
	auth.GET("/portfolios", handler.GetUserPortfolios)
	auth.GET("/portfolios/:id", handler.GetPortfolioSummary)
	auth.GET("/portfolios/:id/positions", handler.ListPositions)
	return r
}

func TestPortfolioHandler_CreateDefaultPortfolio(t *testing.T) {
	t.Run("returns_201_and_audits", func(t *testing.T) {
		svc := &mockPortfolioService{
			createDefaultPortfolioFn: func(userID string) (*models.Portfolio, error) {
				return &models.Portfolio{Base: models.Base{ID: testPortfolioID}, UserID: userID, CashBalance: 100_000_000}, nil
			},
		}
		audit := &mockAuditService{}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, audit))

		rec := doRequest(r, "POST", "/portfolios", "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		p := parseJSON(t, rec)["portfolio"].(map[string]interface{})
		if p["cash_balance"].(float64) != 100_000_000 {
			t.Errorf("unexpected cash %v", p["cash_balance"])
		}
		if len(audit.events) != 1 || audit.events[0].Action != models.AuditActionCreatePortfolio ||
			audit.events[0].PortfolioID != testPortfolioID {
			t.Errorf("unexpected audit events %+v", audit.events)
		}
	})

	t.Run("returns_409_when_exists", func(t *testing.T) {
		svc := &mockPortfolioService{
			createDefaultPortfolioFn: func(string) (*models.Portfolio, error) {
				return nil, apperrors.ErrPortfolioExists
			},
		}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "POST", "/portfolios", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "PORTFOLIO_EXISTS")
	})
}

func TestPortfolioHandler_GetPortfolioSummary(t *testing.T) {
	t.Run("returns_200", func(t *testing.T) {
		svc := &mockPortfolioService{
			getPortfolioSummaryFn: func(_ context.Context, userID, portfolioID string) (*services.PortfolioSummary, error) {
				if userID != testUserID || portfolioID != testPortfolioID {
					t.Errorf("unexpected ids %s %s", userID, portfolioID)
				}
				return &services.PortfolioSummary{PortfolioID: portfolioID, TotalEquity: 100_100_000, Stale: true}, nil
			},
		}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolios/"+testPortfolioID, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		summary := parseJSON(t, rec)["summary"].(map[string]interface{})
		if summary["total_equity"].(float64) != 100_100_000 || summary["stale"] != true {
			t.Errorf("unexpected summary %v", summary)
		}
	})

	t.Run("returns_400_for_bad_id", func(t *testing.T) {
		r := setupPortfolioRouter(NewPortfolioHandler(&mockPortfolioService{}, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolios/42", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})

	t.Run("returns_404_for_other_users_portfolio", func(t *testing.T) {
		svc := &mockPortfolioService{
			getPortfolioSummaryFn: func(context.Context, string, string) (*services.PortfolioSummary, error) {
				return nil, apperrors.ErrPortfolioNotFound
			},
		}
		r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

		rec := doRequest(r, "GET", "/portfolios/"+testPortfolioID, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestPortfolioHandler_ListPositions(t *testing.T) {
	svc := &mockPortfolioService{
		listPositionsFn: func(string, string) ([]models.Position, error) {
			return []models.Position{{Symbol: "RELIANCE", Quantity: 10}}, nil
		},
	}
	r := setupPortfolioRouter(NewPortfolioHandler(svc, &mockAuditService{}))

	rec := doRequest(r, "GET", "/portfolios/"+testPortfolioID+"/positions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	positions := parseJSON(t, rec)["positions"].([]interface{})
	if len(positions) != 1 {
		t.Errorf("expected 1 position, got %d", len(positions))
	}
}
