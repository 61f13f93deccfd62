package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/ledger-share/internal/models"
)

// PublishSnapshot uploads the current ledger for peers to fetch
func (h *Handler) PublishSnapshot(c *gin.Context) {
	ref, err := h.svc.Publisher.EnsurePublished(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PublishResponse{
		Status: "success",
		Ref:    string(ref),
	})
}

// CreateBackup uploads a timestamped copy of the ledger
func (h *Handler) CreateBackup(c *gin.Context) {
	ref, name, err := h.svc.Publisher.Backup(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.BackupResponse{
		Status: "success",
		Ref:    string(ref),
		Name:   name,
	})
}

func (h *Handler) ListBackups(c *gin.Context) {
	objects, err := h.svc.Publisher.ListBackups(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	backups := make([]models.BackupInfo, 0, len(objects))
	for _, o := range objects {
		backups = append(backups, models.BackupInfo{
			Ref:        string(o.Ref),
			Name:       o.Name,
			ModifiedAt: formatTime(o.ModifiedAt),
		})
	}

	c.JSON(http.StatusOK, models.BackupListResponse{
		Status:  "success",
		Backups: backups,
	})
}
