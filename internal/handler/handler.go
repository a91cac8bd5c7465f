package handler

import (
	"net/http"

	"coinscout/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

type Handler struct {
	tracer           trace.Tracer
	discoveryService *service.DiscoveryService
	rebalanceService *service.RebalanceService
	hub              *ProgressHub
}

func New(
	tracer trace.Tracer,
	discoveryService *service.DiscoveryService,
	rebalanceService *service.RebalanceService,
	hub *ProgressHub,
) *Handler {
	return &Handler{
		tracer:           tracer,
		discoveryService: discoveryService,
		rebalanceService: rebalanceService,
		hub:              hub,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.POST("/api/opportunities/discover", h.DiscoverOpportunities)
	r.GET("/api/opportunities/status/:scan_id", h.GetScanStatus)
	r.GET("/api/opportunities/results/:scan_id", h.GetScanResults)
	r.POST("/api/opportunities/cancel/:scan_id", h.CancelScan)
	r.GET("/api/opportunities/stream/:scan_id", h.StreamScan)
	r.GET("/api/opportunities/recent", h.GetRecentOpportunities)
	r.POST("/api/rebalance/plan", h.PlanRebalance)
}

// Health godoc
// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
