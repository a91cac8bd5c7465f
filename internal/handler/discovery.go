package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"coinscout/internal/domain"
	"coinscout/internal/provider"
	"coinscout/internal/scan"
	"coinscout/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type discoverRequest struct {
	UserID                 string `json:"user_id" binding:"required"`
	ForceRefresh           bool   `json:"force_refresh"`
	IncludeRecommendations bool   `json:"include_strategy_recommendations"`
}

// DiscoverOpportunities godoc
// @Summary      Start an opportunity discovery scan
// @Description  Kicks off an asynchronous scan across the user's active strategies and returns the scan id to poll
// @Tags         scans
// @Accept       json
// @Produce      json
// @Param        request  body  discoverRequest  true  "Scan request"
// @Success      202  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /api/opportunities/discover [post]
func (h *Handler) DiscoverOpportunities(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.discover-opportunities")
	defer span.End()

	var req discoverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	span.SetAttributes(attribute.String("user.id", req.UserID))

	state, err := h.discoveryService.StartScan(ctx, domain.ScanRequest{
		UserID:                 req.UserID,
		ForceRefresh:           req.ForceRefresh,
		IncludeRecommendations: req.IncludeRecommendations,
		RequestedAt:            time.Now().UTC(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		case errors.Is(err, service.ErrNoActiveStrategies):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no active strategies to scan with"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"scan_id":                      state.ScanID,
		"status":                       state.Status,
		"message":                      fmt.Sprintf("scanning %d strategies", state.StrategiesTotal),
		"estimated_completion_seconds": estimatedCompletionSeconds(state.StrategiesTotal),
	})
}

// estimatedCompletionSeconds is a coarse budget hint for pollers, not a
// promise. Scans typically finish well under it.
func estimatedCompletionSeconds(strategiesTotal int) int {
	secs := strategiesTotal * 5
	if secs < 10 {
		return 10
	}
	if secs > 120 {
		return 120
	}
	return secs
}

// GetScanStatus godoc
// @Summary      Get scan progress
// @Tags         scans
// @Produce      json
// @Param        scan_id  path   string  true  "Scan ID"
// @Param        user_id  query  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/opportunities/status/{scan_id} [get]
func (h *Handler) GetScanStatus(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-scan-status")
	defer span.End()

	userID, scanID, ok := h.scanIdentity(c)
	if !ok {
		return
	}

	state, err := h.discoveryService.Status(ctx, userID, scanID)
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"scan": state})
}

// GetScanResults godoc
// @Summary      Get scan results
// @Description  Returns ranked opportunities once the scan has finished. Timed-out scans return partial results.
// @Tags         scans
// @Produce      json
// @Param        scan_id  path   string  true  "Scan ID"
// @Param        user_id  query  string  true  "User ID"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      422  {object}  map[string]string
// @Router       /api/opportunities/results/{scan_id} [get]
func (h *Handler) GetScanResults(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-scan-results")
	defer span.End()

	userID, scanID, ok := h.scanIdentity(c)
	if !ok {
		return
	}

	results, err := h.discoveryService.Results(ctx, userID, scanID)
	if err != nil {
		var failed *scan.FailedError
		switch {
		case errors.Is(err, scan.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		case errors.Is(err, scan.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "scan still running"})
		case errors.As(err, &failed):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": failed.Reason})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// CancelScan godoc
// @Summary      Cancel a running scan
// @Tags         scans
// @Produce      json
// @Param        scan_id  path   string  true  "Scan ID"
// @Param        user_id  query  string  true  "User ID"
// @Success      200  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Router       /api/opportunities/cancel/{scan_id} [post]
func (h *Handler) CancelScan(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.cancel-scan")
	defer span.End()

	userID, scanID, ok := h.scanIdentity(c)
	if !ok {
		return
	}

	if err := h.discoveryService.Cancel(ctx, userID, scanID); err != nil {
		switch {
		case errors.Is(err, scan.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		case errors.Is(err, scan.ErrAlreadyTerminal):
			c.JSON(http.StatusConflict, gin.H{"error": "scan already finished"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetRecentOpportunities godoc
// @Summary      List recently discovered opportunities
// @Tags         opportunities
// @Produce      json
// @Param        user_id  query  string  true   "User ID"
// @Param        limit    query  int     false  "Number of opportunities (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Router       /api/opportunities/recent [get]
func (h *Handler) GetRecentOpportunities(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-recent-opportunities")
	defer span.End()

	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	opportunities, err := h.discoveryService.RecentOpportunities(ctx, userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"opportunities": opportunities})
}

func (h *Handler) scanIdentity(c *gin.Context) (userID, scanID string, ok bool) {
	userID = strings.TrimSpace(c.Query("user_id"))
	scanID = strings.TrimSpace(c.Param("scan_id"))
	if userID == "" || scanID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and scan id are required"})
		return "", "", false
	}
	return userID, scanID, true
}
