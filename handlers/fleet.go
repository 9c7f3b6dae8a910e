package handlers

import (
	"net/http"

	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

// Repair-cost constants for the fleet budget estimate.
const (
	highRiskThreshold  = 0.37
	costHighRiskRepair = 1500
	costLowRiskRepair  = 200
)

type FleetHandler struct {
	registry *services.Registry
}

func NewFleetHandler(registry *services.Registry) *FleetHandler {
	return &FleetHandler{registry: registry}
}

type FleetSummary struct {
	TotalMachines         int     `json:"total_machines"`
	HighRiskMachines      int     `json:"high_risk_machines"`
	AverageHealth         float64 `json:"average_health"`
	EstimatedRepairBudget int     `json:"estimated_repair_budget"`
}

func (h *FleetHandler) GetSummary(c *gin.Context) {
	machines := h.registry.List()

	summary := FleetSummary{TotalMachines: len(machines)}
	var healthSum float64
	for _, m := range machines {
		healthSum += m.LastHealth
		if m.FailureProbability > highRiskThreshold {
			summary.HighRiskMachines++
			summary.EstimatedRepairBudget += costHighRiskRepair
		} else {
			summary.EstimatedRepairBudget += costLowRiskRepair
		}
	}
	if len(machines) > 0 {
		summary.AverageHealth = healthSum / float64(len(machines))
	}

	c.JSON(http.StatusOK, summary)
}
