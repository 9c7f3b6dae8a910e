package handlers

import (
	"net/http"

	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

type PredictHandler struct {
	predictor *services.Predictor
}

func NewPredictHandler(predictor *services.Predictor) *PredictHandler {
	return &PredictHandler{predictor: predictor}
}

// PredictRequest accepts sensor values under either key; "features" wins
// when both are present.
type PredictRequest struct {
	MachineID string             `json:"machine_id" binding:"required"`
	Timestamp string             `json:"timestamp"`
	Features  map[string]float64 `json:"features"`
	Params    map[string]float64 `json:"params"`
}

func (h *PredictHandler) Predict(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	params := req.Params
	if req.Features != nil {
		params = req.Features
	}
	if params == nil {
		params = map[string]float64{}
	}

	result := h.predictor.Predict(c.Request.Context(), req.MachineID, params)
	c.JSON(http.StatusOK, result)
}
