package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"papertrade/internal/models"
	"papertrade/internal/services"
)

// PortfolioHandler handles portfolio reads and valuation.
type PortfolioHandler struct {
	portfolioService services.PortfolioServicer
	auditService     services.AuditServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioService services.PortfolioServicer, auditService services.AuditServicer) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService, auditService: auditService}
}

// CreateDefaultPortfolio handles creating the user's default portfolio.
// @Summary     Create default portfolio
// @Description Create the authenticated user's default portfolio with the configured starting cash
// @Tags        portfolios
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Success     201 {object} models.Portfolio "Portfolio created"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     409 {object} ErrorResponse "Default portfolio already exists"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolios [post]
func (h *PortfolioHandler) CreateDefaultPortfolio(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolio, err := h.portfolioService.CreateDefaultPortfolio(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(services.AuditEvent{
		UserID:       userID,
		PortfolioID:  portfolio.ID,
		Action:       models.AuditActionCreatePortfolio,
		ResourceType: "portfolio",
		ResourceID:   portfolio.ID,
		IPAddress:    c.ClientIP(),
		Changes:      map[string]any{"initial_balance": portfolio.InitialBalance},
	})

	c.JSON(http.StatusCreated, gin.H{"portfolio": portfolio})
}

// GetUserPortfolios handles listing the user's portfolios.
// @Summary     List portfolios
// @Description List the authenticated user's portfolios, default first
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} map[string][]models.Portfolio "Portfolios"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /portfolios [get]
func (h *PortfolioHandler) GetUserPortfolios(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolios, err := h.portfolioService.GetUserPortfolios(userID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"portfolios": portfolios})
}

// GetPortfolioSummary handles valuing a portfolio at current prices.
// @Summary     Get portfolio summary
// @Description Value a portfolio's positions at current quotes. Positions whose quote is unavailable are valued at their last known price and flagged stale.
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     200 {object} services.PortfolioSummary "Portfolio summary"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id} [get]
func (h *PortfolioHandler) GetPortfolioSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolioID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.portfolioService.GetPortfolioSummary(c.Request.Context(), userID, portfolioID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ListPositions handles listing a portfolio's open positions.
// @Summary     List positions
// @Description List the open positions of a portfolio as last committed
// @Tags        portfolios
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     200 {object} map[string][]models.Position "Positions"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/positions [get]
func (h *PortfolioHandler) ListPositions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	portfolioID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	positions, err := h.portfolioService.ListPositions(userID, portfolioID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"positions": positions})
}
