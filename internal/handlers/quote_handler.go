package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/pagination"
	"papertrade/internal/quote"
	"papertrade/internal/services"
	"papertrade/internal/validator"
)

// QuoteHandler serves current and historical prices.
type QuoteHandler struct {
	oracle       quote.Oracle
	priceService services.QuotePriceServicer
	quoteTimeout time.Duration
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(oracle quote.Oracle, priceService services.QuotePriceServicer, quoteTimeout time.Duration) *QuoteHandler {
	return &QuoteHandler{oracle: oracle, priceService: priceService, quoteTimeout: quoteTimeout}
}

// GetQuote handles fetching the current quote of a symbol.
// @Summary     Get quote
// @Description Current price of a symbol in minor units; stale quotes are flagged
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       symbol path string true "Ticker symbol"
// @Success     200 {object} quote.Quote   "Quote"
// @Failure     400 {object} ErrorResponse "Invalid symbol"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     503 {object} ErrorResponse "Quote unavailable"
// @Router      /quotes/{symbol} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	symbol := validator.NormalizeTicker(c.Param("symbol"))
	if !validator.IsTicker(symbol) {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid symbol"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.quoteTimeout)
	defer cancel()

	q, err := h.oracle.GetQuote(ctx, symbol)
	if err != nil {
		respondWithError(c, apperrors.Wrap(apperrors.ErrQuoteUnavailable, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"quote": q})
}

// GetPriceHistory handles listing recorded prices of a symbol.
// @Summary     Get price history
// @Description Paginated recorded prices for a symbol within a date range, newest first
// @Tags        quotes
// @Produce     json
// @Security    BearerAuth
// @Param       symbol    path  string true  "Ticker symbol"
// @Param       from_date query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string false "End date (RFC3339 or YYYY-MM-DD), defaults to now"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.QuotePrice] "Paginated prices"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /quotes/{symbol}/history [get]
func (h *QuoteHandler) GetPriceHistory(c *gin.Context) {
	window, err := pagination.ParseTimeRange(c.Query("from_date"), c.Query("to_date"), time.Now())
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.priceService.GetPriceHistory(c.Param("symbol"), window.From, window.To, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
