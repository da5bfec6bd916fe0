package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "papertrade/internal/errors"
	"papertrade/internal/pagination"
	"papertrade/internal/services"
)

// PortfolioSnapshotHandler handles portfolio snapshot requests.
type PortfolioSnapshotHandler struct {
	snapshotService services.PortfolioSnapshotServicer
	now             func() time.Time
}

// NewPortfolioSnapshotHandler creates a new PortfolioSnapshotHandler.
func NewPortfolioSnapshotHandler(snapshotService services.PortfolioSnapshotServicer) *PortfolioSnapshotHandler {
	return &PortfolioSnapshotHandler{snapshotService: snapshotService, now: time.Now}
}

// ComputeSnapshotsRequest represents the request payload for computing snapshots.
type ComputeSnapshotsRequest struct {
	RecordedAt time.Time `json:"recorded_at" binding:"required"`
}

// ComputeSnapshots handles computing and recording snapshots of every portfolio.
// @Summary     Compute portfolio snapshots
// @Description Value and record every portfolio at recorded_at (pipeline endpoint). Portfolios already recorded at that time keep their snapshot.
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Param       X-API-Key  header   string                   true "Pipeline API key"
// @Param       request    body     ComputeSnapshotsRequest  true "Snapshot parameters"
// @Success     200        {object} map[string]int           "Snapshots recorded count"
// @Failure     400        {object} ErrorResponse            "Invalid input"
// @Failure     401        {object} ErrorResponse            "Invalid API key"
// @Failure     503        {object} ErrorResponse            "Pipeline not configured"
// @Router      /pipeline/snapshots [post]
func (h *PortfolioSnapshotHandler) ComputeSnapshots(c *gin.Context) {
	var req ComputeSnapshotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	count, err := h.snapshotService.ComputeAndRecordSnapshots(c.Request.Context(), req.RecordedAt.UTC())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"snapshots_recorded": count})
}

// RecordSnapshot handles recording a snapshot of one portfolio now.
// @Summary     Record portfolio snapshot
// @Description Value a portfolio at current quotes and store the result
// @Tags        snapshots
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Portfolio ID"
// @Success     201 {object} models.PortfolioSnapshot "Recorded snapshot"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/snapshots [post]
func (h *PortfolioSnapshotHandler) RecordSnapshot(c *gin.Context) {
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

	snapshot, err := h.snapshotService.RecordSnapshot(c.Request.Context(), userID, portfolioID, h.now().UTC().Truncate(time.Second))
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"snapshot": snapshot})
}

// GetSnapshots handles retrieving snapshots of a portfolio.
// @Summary     Get portfolio snapshots
// @Description Get paginated portfolio snapshots for a date range, newest first
// @Tags        snapshots
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  string true  "Portfolio ID"
// @Param       from_date query string false "Start date (RFC3339 or YYYY-MM-DD)"
// @Param       to_date   query string false "End date (RFC3339 or YYYY-MM-DD), defaults to now"
// @Param       page      query int    false "Page number (default 1)"
// @Param       page_size query int    false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.PortfolioSnapshot] "Paginated snapshots"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Portfolio not found"
// @Router      /portfolios/{id}/snapshots [get]
func (h *PortfolioSnapshotHandler) GetSnapshots(c *gin.Context) {
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

	window, err := pagination.ParseTimeRange(c.Query("from_date"), c.Query("to_date"), h.now())
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.snapshotService.GetSnapshots(userID, portfolioID, window.From, window.To, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
