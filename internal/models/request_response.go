package models

// Request models
type SendInvitationRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Role        string `json:"role" binding:"required,oneof=Reader Writer"`
	SnapshotRef string `json:"snapshotRef"`
}

type ReceiveInvitationRequest struct {
	InvitationID       string `json:"invitationId" binding:"required"`
	InvitedEmail       string `json:"invitedEmail" binding:"required,email"`
	InviterEmail       string `json:"inviterEmail" binding:"required,email"`
	RequestedRole      string `json:"requestedRole" binding:"required"`
	InviterSnapshotRef string `json:"inviterSnapshotRef" binding:"required"`
}

type AddPeerRequest struct {
	Email              string `json:"email" binding:"required,email"`
	RoleGivenByMe      string `json:"roleGivenByMe" binding:"omitempty,oneof=Reader Writer"`
	TheirSnapshotRef   string `json:"theirSnapshotRef"`
	MyRoleForTheirData string `json:"myRoleForTheirData" binding:"omitempty,oneof=Reader Writer"`
}

type UpdateRoleRequest struct {
	// Empty revokes the role
	Role string `json:"role" binding:"omitempty,oneof=Reader Writer"`
}

// Response models
type PublishResponse struct {
	Status string `json:"status"`
	Ref    string `json:"ref"`
}

type InvitationResponse struct {
	Status     string     `json:"status"`
	Invitation Invitation `json:"invitation"`
}

type InvitationListResponse struct {
	Status      string       `json:"status"`
	Invitations []Invitation `json:"invitations"`
}

type PeerResponse struct {
	Status string     `json:"status"`
	Peer   SharedPeer `json:"peer"`
}

type PeerListResponse struct {
	Status string       `json:"status"`
	Peers  []SharedPeer `json:"peers"`
}

type SyncResponse struct {
	Status   string     `json:"status"`
	PeerID   string     `json:"peerId"`
	Merged   MergeStats `json:"merged"`
	SyncedAt string     `json:"syncedAt"`
}

type SyncOutcomeResponse struct {
	PeerID   string      `json:"peerId"`
	Merged   *MergeStats `json:"merged,omitempty"`
	SyncedAt string      `json:"syncedAt,omitempty"`
	Error    string      `json:"error,omitempty"`
}

type SyncAllResponse struct {
	Status   string                `json:"status"`
	Outcomes []SyncOutcomeResponse `json:"outcomes"`
}

type BackupResponse struct {
	Status string `json:"status"`
	Ref    string `json:"ref"`
	Name   string `json:"name"`
}

type BackupListResponse struct {
	Status  string       `json:"status"`
	Backups []BackupInfo `json:"backups"`
}

type BackupInfo struct {
	Ref        string `json:"ref"`
	Name       string `json:"name"`
	ModifiedAt string `json:"modifiedAt,omitempty"`
}

type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
