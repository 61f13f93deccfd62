package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/service"
)

func (h *Handler) ListPeers(c *gin.Context) {
	peers, err := h.svc.Peers.ListPeers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PeerListResponse{
		Status: "success",
		Peers:  peers,
	})
}

// WatchPeers streams the peer list as server-sent "peers" events: the
// current list first, then the latest list after every change, until the
// client goes away.
func (h *Handler) WatchPeers(c *gin.Context) {
	ctx := c.Request.Context()
	updates, err := h.svc.Peers.WatchPeers(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	for {
		select {
		case <-ctx.Done():
			return
		case peers, ok := <-updates:
			if !ok {
				return
			}
			c.SSEvent("peers", models.PeerListResponse{
				Status: "success",
				Peers:  peers,
			})
			c.Writer.Flush()
		}
	}
}

// AddPeer creates or replaces a peer without going through an invitation
func (h *Handler) AddPeer(c *gin.Context) {
	var req models.AddPeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	roleGivenByMe, err := optionalRole(req.RoleGivenByMe)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	myRole, err := optionalRole(req.MyRoleForTheirData)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	var ref *string
	if req.TheirSnapshotRef != "" {
		ref = &req.TheirSnapshotRef
	}

	peer, err := h.svc.Peers.AddSharedPeer(c.Request.Context(), req.Email, roleGivenByMe, ref, myRole)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, models.PeerResponse{
		Status: "success",
		Peer:   *peer,
	})
}

func (h *Handler) GetPeer(c *gin.Context) {
	peer, err := h.svc.Peers.GetPeer(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PeerResponse{
		Status: "success",
		Peer:   *peer,
	})
}

// UpdatePeerRole changes the role granted to the peer over my data
func (h *Handler) UpdatePeerRole(c *gin.Context) {
	var req models.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	role, err := optionalRole(req.Role)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	peer, err := h.svc.Peers.UpdateRole(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.PeerResponse{
		Status: "success",
		Peer:   *peer,
	})
}

func (h *Handler) RemovePeer(c *gin.Context) {
	if err := h.svc.Peers.RemovePeer(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{
		Status:  "success",
		Message: "peer removed",
	})
}

// SyncPeer merges one peer's published snapshot into the local ledger
func (h *Handler) SyncPeer(c *gin.Context) {
	result, err := h.svc.Syncer.SyncPeer(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SyncResponse{
		Status:   "success",
		PeerID:   result.PeerID,
		Merged:   result.Merged,
		SyncedAt: formatTime(&result.SyncedAt),
	})
}

// SyncAll syncs every readable peer and reports each outcome separately
func (h *Handler) SyncAll(c *gin.Context) {
	outcomes, err := h.svc.Syncer.SyncAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.SyncAllResponse{
		Status:   "success",
		Outcomes: outcomeResponses(outcomes),
	})
}

func outcomeResponses(outcomes []service.SyncOutcome) []models.SyncOutcomeResponse {
	responses := make([]models.SyncOutcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		r := models.SyncOutcomeResponse{PeerID: o.PeerID}
		if o.Err != nil {
			_, body := errorBody(o.Err)
			r.Error = body.Message
		} else {
			merged := o.Result.Merged
			r.Merged = &merged
			r.SyncedAt = o.Result.SyncedAt.UTC().Format(time.RFC3339)
		}
		responses = append(responses, r)
	}
	return responses
}

func optionalRole(s string) (*models.Role, error) {
	if s == "" {
		return nil, nil
	}
	role, err := models.ParseRole(s)
	if err != nil {
		return nil, err
	}
	return &role, nil
}
