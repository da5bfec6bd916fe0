package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/services"
)

// PipelineHandler serves the endpoints driven by the scheduled pipeline job.
type PipelineHandler struct {
	scanner      services.TriggerScanner
	priceService services.QuotePriceServicer
}

// NewPipelineHandler creates a new PipelineHandler.
func NewPipelineHandler(scanner services.TriggerScanner, priceService services.QuotePriceServicer) *PipelineHandler {
	return &PipelineHandler{scanner: scanner, priceService: priceService}
}

// PriceEntry is one recorded price. Price is in minor units.
type PriceEntry struct {
	Symbol     string    `json:"symbol" binding:"required,ticker"`
	Price      int64     `json:"price" binding:"required,gt=0"`
	RecordedAt time.Time `json:"recorded_at" binding:"required"`
}

// RecordPricesRequest represents the request payload for recording prices.
type RecordPricesRequest struct {
	Prices []PriceEntry `json:"prices" binding:"required,min=1,max=1000,dive"`
}

// ScanTriggers handles one pass of the trigger scanner.
// @Summary     Scan pending triggers
// @Description Evaluate pending LIMIT and STOP_LOSS orders against current quotes and execute those whose trigger holds
// @Tags        pipeline
// @Produce     json
// @Param       X-API-Key header   string          true "Pipeline API key"
// @Success     200       {object} map[string]int  "Executed count"
// @Failure     401       {object} ErrorResponse   "Invalid API key"
// @Failure     503       {object} ErrorResponse   "Pipeline not configured"
// @Router      /pipeline/triggers/scan [post]
func (h *PipelineHandler) ScanTriggers(c *gin.Context) {
	executed, err := h.scanner.ScanTriggers(c.Request.Context())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"executed": executed})
}

// RecordPrices handles bulk price recording.
// @Summary     Record prices
// @Description Bulk-insert quote prices; duplicates on (symbol, recorded_at) are skipped
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key header   string              true "Pipeline API key"
// @Param       request   body     RecordPricesRequest true "Prices"
// @Success     200       {object} map[string]int      "Inserted count"
// @Failure     400       {object} ErrorResponse       "Invalid input"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/prices [post]
func (h *PipelineHandler) RecordPrices(c *gin.Context) {
	var req RecordPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	inputs := make([]services.QuotePriceInput, len(req.Prices))
	for i, p := range req.Prices {
		inputs[i] = services.QuotePriceInput{Symbol: p.Symbol, Price: p.Price, RecordedAt: p.RecordedAt.UTC()}
	}

	count, err := h.priceService.RecordPrices(inputs)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"prices_recorded": count})
}

// TrackedSymbols handles listing the symbols the pipeline should price.
// @Summary     List tracked symbols
// @Description Symbols that are held or have a pending order
// @Tags        pipeline
// @Produce     json
// @Param       X-API-Key header   string              true "Pipeline API key"
// @Success     200       {object} map[string][]string "Symbols"
// @Failure     401       {object} ErrorResponse       "Invalid API key"
// @Failure     503       {object} ErrorResponse       "Pipeline not configured"
// @Router      /pipeline/symbols [get]
func (h *PipelineHandler) TrackedSymbols(c *gin.Context) {
	symbols, err := h.priceService.TrackedSymbols()
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}
