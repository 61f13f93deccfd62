package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/ledger-share/internal/models"
)

// TriggerJob asks the background runner for an immediate run of a job
func (h *Handler) TriggerJob(c *gin.Context) {
	if h.svc.Jobs == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
			Status:  "error",
			Code:    "JOBS_DISABLED",
			Message: "background jobs are not running",
		})
		return
	}

	name := c.Param("name")
	if err := h.svc.Jobs.Trigger(name); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, models.MessageResponse{
		Status:  "success",
		Message: name + " scheduled",
	})
}
