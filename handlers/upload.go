package handlers

import (
	"errors"
	"io"
	"net/http"

	"predictive-maintenance-api/services"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	training *services.TrainingService
	maxBytes int64
}

func NewUploadHandler(training *services.TrainingService, maxBytes int64) *UploadHandler {
	return &UploadHandler{training: training, maxBytes: maxBytes}
}

type UploadResponse struct {
	TrainingJobID string `json:"training_job_id"`
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
}

func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing csv file upload"})
		return
	}
	if fileHeader.Size > h.maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds upload size limit"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to read uploaded file"})
		return
	}
	if int64(len(data)) > h.maxBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds upload size limit"})
		return
	}

	job, err := h.training.Submit(data)
	if err != nil {
		var verr *services.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "missing_columns": verr.Missing})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, UploadResponse{
		TrainingJobID: job.ID,
		Status:        job.Status,
		Progress:      job.Progress,
	})
}

func (h *UploadHandler) GetJob(c *gin.Context) {
	job, ok := h.training.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "training job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}
