package handler

import (
	"errors"
	"net/http"

	"coinscout/internal/provider"
	"coinscout/internal/service"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type rebalanceRequest struct {
	UserID        string             `json:"user_id" binding:"required"`
	TargetWeights map[string]float64 `json:"target_weights" binding:"required"`
}

// PlanRebalance godoc
// @Summary      Generate a rebalancing trade plan
// @Description  Compares the user's live portfolio against target weights and returns the trades to close the gap
// @Tags         rebalance
// @Accept       json
// @Produce      json
// @Param        request  body  rebalanceRequest  true  "Target allocation"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/rebalance/plan [post]
func (h *Handler) PlanRebalance(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.plan-rebalance")
	defer span.End()

	var req rebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and target_weights are required"})
		return
	}
	span.SetAttributes(attribute.String("user.id", req.UserID))

	plan, err := h.rebalanceService.PlanRebalance(ctx, req.UserID, req.TargetWeights)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provider.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"plan": plan})
}
