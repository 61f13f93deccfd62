package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/service"
	"github.com/rongwang/ledger-share/internal/worker"
)

// InvitationRelay delivers a sent invitation to its invitee
type InvitationRelay interface {
	Deliver(ctx context.Context, invitation *models.Invitation) error
}

// JobTrigger schedules a run of a named background job
type JobTrigger interface {
	Trigger(name string) error
}

// Services are the components the HTTP layer drives. Relay and Jobs are optional.
type Services struct {
	Invitations *service.InvitationProtocol
	Peers       *service.PeerService
	Publisher   *service.SnapshotPublisher
	Syncer      *service.SyncEngine
	Relay       InvitationRelay
	Jobs        JobTrigger
}

// Handler handles all API requests
type Handler struct {
	svc       Services
	jwtSecret []byte
	logger    *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc Services, jwtSecret string, logger *zap.Logger) *Handler {
	return &Handler{
		svc:       svc,
		jwtSecret: []byte(jwtSecret),
		logger:    logger,
	}
}

// SetupRoutes registers all routes on the router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.MessageResponse{Status: "success", Message: "ok"})
	})

	api := router.Group("/api")
	api.Use(AuthMiddleware(h.jwtSecret))
	{
		// Snapshots and backups
		api.POST("/snapshot/publish", h.PublishSnapshot)
		api.POST("/backups", h.CreateBackup)
		api.GET("/backups", h.ListBackups)

		// Invitations
		api.POST("/invitations", h.SendInvitation)
		api.POST("/invitations/received", h.ReceiveInvitation)
		api.GET("/invitations/received", h.ListReceivedInvitations)
		api.GET("/invitations/sent", h.ListSentInvitations)
		api.POST("/invitations/:id/accept", h.AcceptInvitation)
		api.POST("/invitations/:id/reject", h.RejectInvitation)

		// Peers and sync
		api.GET("/peers", h.ListPeers)
		api.POST("/peers", h.AddPeer)
		api.GET("/peers/watch", h.WatchPeers)
		api.GET("/peers/:id", h.GetPeer)
		api.PUT("/peers/:id/role", h.UpdatePeerRole)
		api.DELETE("/peers/:id", h.RemovePeer)
		api.POST("/peers/:id/sync", h.SyncPeer)
		api.POST("/sync", h.SyncAll)

		// Background jobs
		api.POST("/jobs/:name", h.TriggerJob)
	}
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Ordered: the first matching sentinel decides the response
var errorMappings = []errorMapping{
	{service.ErrInvalidInvitation, http.StatusConflict, "INVALID_INVITATION"},
	{service.ErrSnapshotNotReady, http.StatusConflict, "SNAPSHOT_NOT_READY"},
	{service.ErrNoRemoteRef, http.StatusConflict, "NO_REMOTE_REF"},
	{service.ErrCorruptSnapshot, http.StatusUnprocessableEntity, "CORRUPT_SNAPSHOT"},
	{service.ErrPublish, http.StatusBadGateway, "PUBLISH_FAILED"},
	{service.ErrDownload, http.StatusBadGateway, "DOWNLOAD_FAILED"},
	{service.ErrPeerNotFound, http.StatusNotFound, "NOT_FOUND"},
	{service.ErrNoAccess, http.StatusForbidden, "FORBIDDEN"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "BAD_REQUEST"},
	{worker.ErrUnknownJob, http.StatusNotFound, "NOT_FOUND"},
}

// errorBody maps a service error to a status and response body
func errorBody(err error) (int, models.ErrorResponse) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			message := err.Error()
			if m.target == service.ErrInvalidInvitation {
				message = service.ErrInvalidInvitation.Error()
			}
			return m.status, models.ErrorResponse{Status: "error", Code: m.code, Message: message}
		}
	}

	return http.StatusInternalServerError, models.ErrorResponse{
		Status:  "error",
		Code:    "STORAGE_ERROR",
		Message: "local store error",
	}
}

func (h *Handler) respondError(c *gin.Context, err error) {
	c.Error(err)
	status, body := errorBody(err)
	c.JSON(status, body)
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Status:  "error",
		Code:    "BAD_REQUEST",
		Message: message,
	})
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
