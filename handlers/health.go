package handlers

import (
	"net/http"

	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

type HealthHandler struct {
	predictor *services.Predictor
}

func NewHealthHandler(predictor *services.Predictor) *HealthHandler {
	return &HealthHandler{predictor: predictor}
}

func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"model_reachable": h.predictor.Reachable(c.Request.Context()),
	})
}
