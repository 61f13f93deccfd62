package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
)

// SendInvitation records an invitation and relays it to the invitee.
// Without a snapshotRef the ledger is published first.
func (h *Handler) SendInvitation(c *gin.Context) {
	var req models.SendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, err := models.ParseRole(req.Role)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	ref := req.SnapshotRef
	if ref == "" {
		published, err := h.svc.Publisher.EnsurePublished(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		ref = string(published)
	}

	invitation, err := h.svc.Invitations.Send(ctx, req.Email, role, ref)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// The invitation stands even if the relay is down; it can be shared by hand
	if h.svc.Relay != nil {
		if err := h.svc.Relay.Deliver(ctx, invitation); err != nil {
			h.logger.Warn("failed to relay invitation",
				zap.String("invitation", invitation.InvitationID), zap.Error(err))
		}
	}

	c.JSON(http.StatusCreated, models.InvitationResponse{
		Status:     "success",
		Invitation: *invitation,
	})
}

// ReceiveInvitation imports an invitation delivered out of band
func (h *Handler) ReceiveInvitation(c *gin.Context) {
	var req models.ReceiveInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, err := models.ParseRole(req.RequestedRole)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	invitation, created, err := h.svc.Invitations.Receive(c.Request.Context(), models.Invitation{
		InvitationID:       req.InvitationID,
		InvitedEmail:       req.InvitedEmail,
		InviterEmail:       req.InviterEmail,
		RequestedRole:      role,
		InviterSnapshotRef: req.InviterSnapshotRef,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, models.InvitationResponse{
		Status:     "success",
		Invitation: *invitation,
	})
}

func (h *Handler) ListReceivedInvitations(c *gin.Context) {
	invitations, err := h.svc.Invitations.ListReceivedPending(c.Request.Context(), "")
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InvitationListResponse{
		Status:      "success",
		Invitations: invitations,
	})
}

func (h *Handler) ListSentInvitations(c *gin.Context) {
	invitations, err := h.svc.Invitations.ListSent(c.Request.Context(), "")
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.InvitationListResponse{
		Status:      "success",
		Invitations: invitations,
	})
}

func (h *Handler) AcceptInvitation(c *gin.Context) {
	peer, err := h.svc.Invitations.Accept(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PeerResponse{
		Status: "success",
		Peer:   *peer,
	})
}

func (h *Handler) RejectInvitation(c *gin.Context) {
	if err := h.svc.Invitations.Reject(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{
		Status:  "success",
		Message: "invitation rejected",
	})
}
