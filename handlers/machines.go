package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"predictive-maintenance-api/models"
	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

const (
	monthlyWindow    = 12
	paramHistoryView = 50
)

type MachinesHandler struct {
	registry *services.Registry
	cache    *services.CacheService
}

func NewMachinesHandler(registry *services.Registry, cache *services.CacheService) *MachinesHandler {
	return &MachinesHandler{registry: registry, cache: cache}
}

func (h *MachinesHandler) GetMachines(c *gin.Context) {
	const cacheKey = "machines:all"

	var cached []models.Machine
	if err := h.cache.Get(c.Request.Context(), cacheKey, &cached); err == nil && cached != nil {
		c.JSON(http.StatusOK, cached)
		return
	}

	machines := h.registry.List()
	go h.cache.Set(context.Background(), cacheKey, machines, 5*time.Second)

	c.JSON(http.StatusOK, machines)
}

type MachineHistoryResponse struct {
	MachineID         string                    `json:"machine_id"`
	Monthly           []models.MonthlyAggregate `json:"monthly"`
	RecentPredictions []models.RecentPrediction `json:"recent_predictions"`
	Next30Days        []models.ForecastPoint    `json:"next_30_days"`
	ParamHistory      []models.ParameterRecord  `json:"param_history"`
}

func (h *MachinesHandler) GetHistory(c *gin.Context) {
	machineID := c.Param("id")
	if _, ok := h.registry.Get(machineID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}

	c.JSON(http.StatusOK, MachineHistoryResponse{
		MachineID:         machineID,
		Monthly:           h.registry.MonthlyAggregates(machineID, monthlyWindow, time.Now()),
		RecentPredictions: h.registry.RecentPredictions(machineID),
		Next30Days:        h.registry.Forecast(machineID),
		ParamHistory:      h.registry.ParameterHistory(machineID, paramHistoryView),
	})
}

// DownloadPredictionsCSV streams the machine's recent predictions followed
// by its 30-day forecast as a CSV attachment.
func (h *MachinesHandler) DownloadPredictionsCSV(c *gin.Context) {
	machineID := c.Param("id")
	if _, ok := h.registry.Get(machineID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "machine not found"})
		return
	}

	var b strings.Builder
	b.WriteString("date,failure_probability\n")
	for _, p := range h.registry.RecentPredictions(machineID) {
		fmt.Fprintf(&b, "%s,%.4f\n", p.Timestamp.Format("2006-01-02"), p.FailureProbability)
	}
	for _, f := range h.registry.Forecast(machineID) {
		fmt.Fprintf(&b, "%s,%.4f\n", f.Date.Format("2006-01-02"), f.FailureProbability)
	}

	filename := fmt.Sprintf("predictions_%s.csv", machineID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "text/csv", []byte(b.String()))
}
