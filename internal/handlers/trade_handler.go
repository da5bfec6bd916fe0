package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/middleware"
	"papertrade/internal/models"
	"papertrade/internal/pagination"
	"papertrade/internal/services"
)

// TradeHandler handles order submission, cancellation and trade history.
type TradeHandler struct {
	tradingService services.TradingServicer
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradingService services.TradingServicer) *TradeHandler {
	return &TradeHandler{tradingService: tradingService}
}

// SubmitOrderRequest represents the request payload for submitting an order.
// Prices are in minor units (paise).
type SubmitOrderRequest struct {
	Symbol     string           `json:"symbol" binding:"required,ticker"`
	Side       models.OrderSide `json:"side" binding:"required,order_side"`
	OrderType  models.OrderType `json:"order_type" binding:"required,order_type"`
	Quantity   int64            `json:"quantity" binding:"required,gt=0"`
	LimitPrice *int64           `json:"limit_price,omitempty" binding:"omitempty,gt=0"`
	StopPrice  *int64           `json:"stop_price,omitempty" binding:"omitempty,gt=0"`
	Notes      string           `json:"notes" binding:"max=500"`
}

// TradeResponse is a trade together with a readable description of its outcome.
type TradeResponse struct {
	Trade   *models.Trade `json:"trade"`
	Message string        `json:"message"`
}

// TradeErrorResponse is an error that left a recorded trade behind, such as
// a MARKET order rejected at execution.
type TradeErrorResponse struct {
	Error ErrorDetail   `json:"error"`
	Trade *models.Trade `json:"trade,omitempty"`
}

// SubmitOrder handles placing an order.
// @Summary     Submit order
// @Description Submit a MARKET, LIMIT or STOP_LOSS order. MARKET orders execute immediately; LIMIT and STOP_LOSS orders stay PENDING until their trigger holds.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string             true "Portfolio ID"
// @Param       request body SubmitOrderRequest true "Order details"
// @Success     201 {object} TradeResponse      "Executed or pending trade"
// @Failure     400 {object} TradeErrorResponse "Invalid input, insufficient funds or holdings"
// @Failure     401 {object} ErrorResponse      "Unauthorized"
// @Failure     404 {object} ErrorResponse      "Portfolio not found"
// @Failure     503 {object} TradeErrorResponse "Quote unavailable or portfolio busy"
// @Router      /portfolios/{id}/orders [post]
func (h *TradeHandler) SubmitOrder(c *gin.Context) {
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

	var req SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	trade, err := h.tradingService.SubmitOrder(
		c.Request.Context(), userID, portfolioID, req.Symbol,
		req.Side, req.OrderType, req.Quantity, req.LimitPrice, req.StopPrice,
		req.Notes, c.ClientIP(),
	)
	if err != nil {
		respondWithTradeError(c, trade, err)
		return
	}

	c.JSON(http.StatusCreated, TradeResponse{Trade: trade, Message: services.DescribeTrade(trade)})
}

// ListTrades handles listing a portfolio's trade history.
// @Summary     List trades
// @Description Get a paginated, filterable trade history, newest first
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Portfolio ID"
// @Param       status    query string false "PENDING, EXECUTED, REJECTED or CANCELLED"
// @Param       side      query string false "BUY or SELL"
// @Param       symbol    query string false "Ticker symbol"
// @Param       from_date query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string false "End date (RFC3339 or YYYY-MM-DD)"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Trade] "Paginated trades"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/orders [get]
func (h *TradeHandler) ListTrades(c *gin.Context) {
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

	filter, err := parseTradeFilter(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.tradingService.ListTrades(userID, portfolioID, filter, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTrade handles fetching a single trade.
// @Summary     Get trade
// @Description Get one trade of a portfolio
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string true "Portfolio ID"
// @Param       tradeId path string true "Trade ID"
// @Success     200 {object} TradeResponse "Trade"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Trade not found"
// @Router      /portfolios/{id}/orders/{tradeId} [get]
func (h *TradeHandler) GetTrade(c *gin.Context) {
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
	tradeID, err := parsePathID(c, "tradeId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	trade, err := h.tradingService.GetTrade(userID, portfolioID, tradeID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, TradeResponse{Trade: trade, Message: services.DescribeTrade(trade)})
}

// CancelOrder handles cancelling a pending order.
// @Summary     Cancel order
// @Description Cancel a PENDING order. Orders that already executed, were rejected or were cancelled return 409.
// @Tags        orders
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string true "Portfolio ID"
// @Param       tradeId path string true "Trade ID"
// @Success     200 {object} TradeResponse      "Cancelled trade"
// @Failure     400 {object} ErrorResponse      "Invalid input"
// @Failure     401 {object} ErrorResponse      "Unauthorized"
// @Failure     404 {object} ErrorResponse      "Trade not found"
// @Failure     409 {object} TradeErrorResponse "Order is no longer pending"
// @Router      /portfolios/{id}/orders/{tradeId} [delete]
func (h *TradeHandler) CancelOrder(c *gin.Context) {
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
	tradeID, err := parsePathID(c, "tradeId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	trade, err := h.tradingService.CancelOrder(c.Request.Context(), userID, portfolioID, tradeID, c.ClientIP())
	if err != nil {
		respondWithTradeError(c, trade, err)
		return
	}

	c.JSON(http.StatusOK, TradeResponse{Trade: trade, Message: services.DescribeTrade(trade)})
}

// respondWithTradeError renders err like respondWithError, adding the trade
// when one was recorded.
func respondWithTradeError(c *gin.Context, trade *models.Trade, err error) {
	if trade != nil {
		middleware.WithErrorField(c, "trade", trade)
	}
	respondWithError(c, err)
}

func parseTradeFilter(c *gin.Context) (services.TradeFilter, error) {
	var filter services.TradeFilter

	if v := c.Query("status"); v != "" {
		status := models.OrderStatus(strings.ToUpper(v))
		switch status {
		case models.OrderStatusPending, models.OrderStatusExecuted, models.OrderStatusRejected, models.OrderStatusCancelled:
		default:
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid status")
		}
		filter.Status = &status
	}
	if v := c.Query("side"); v != "" {
		side := models.OrderSide(strings.ToUpper(v))
		if side != models.OrderSideBuy && side != models.OrderSideSell {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid side")
		}
		filter.Side = &side
	}
	if v := c.Query("symbol"); v != "" {
		filter.Symbol = &v
	}
	if v := c.Query("from_date"); v != "" {
		t, err := pagination.ParseTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
		}
		filter.FromDate = &t
	}
	if v := c.Query("to_date"); v != "" {
		t, err := pagination.ParseTime(v)
		if err != nil {
			return filter, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error())
		}
		filter.ToDate = &t
	}
	return filter, nil
}
