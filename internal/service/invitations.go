package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/repository"
)

// InvitationProtocol manages the invitation lifecycle:
// Pending -> Accepted or Pending -> Rejected, both terminal.
type InvitationProtocol struct {
	repo     repository.Repository
	identity IdentityProvider
	feed     *PeerFeed
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewInvitationProtocol creates a new InvitationProtocol
func NewInvitationProtocol(repo repository.Repository, identity IdentityProvider, feed *PeerFeed, logger *zap.Logger) *InvitationProtocol {
	return &InvitationProtocol{
		repo:     repo,
		identity: identity,
		feed:     feed,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// Send records an invitation from the current user to invitedEmail. It does
// not deliver it; that happens out of band.
func (p *InvitationProtocol) Send(ctx context.Context, invitedEmail string, role models.Role, snapshotRef string) (*models.Invitation, error) {
	invitedEmail = strings.TrimSpace(invitedEmail)
	if invitedEmail == "" {
		return nil, invalidArgument("invited email is required")
	}
	if !role.Valid() {
		return nil, invalidArgument("unknown role %d", int(role))
	}
	if strings.TrimSpace(snapshotRef) == "" {
		return nil, ErrSnapshotNotReady
	}

	inviter, err := p.identity.CurrentEmail(ctx)
	if err != nil {
		return nil, err
	}

	invitation := &models.Invitation{
		InvitationID:       p.newID(),
		InvitedEmail:       invitedEmail,
		InviterEmail:       inviter,
		RequestedRole:      role,
		Status:             models.StatusPending,
		InviterSnapshotRef: snapshotRef,
		Direction:          models.DirectionSent,
		CreatedAt:          p.now(),
	}

	if err := p.repo.UpsertInvitation(ctx, invitation); err != nil {
		return nil, storageError("save invitation", err)
	}

	p.logger.Info("invitation sent",
		zap.String("invitation", invitation.InvitationID),
		zap.String("peer", invitedEmail),
		zap.Stringer("role", role))

	return invitation, nil
}

// Receive records an invitation delivered by its inviter. Repeated deliveries
// of the same invitation leave the stored row untouched. The bool reports
// whether a new row was created.
func (p *InvitationProtocol) Receive(ctx context.Context, in models.Invitation) (*models.Invitation, bool, error) {
	if _, err := uuid.Parse(in.InvitationID); err != nil {
		return nil, false, invalidArgument("invitation id %q is not a uuid", in.InvitationID)
	}
	if strings.TrimSpace(in.InviterEmail) == "" || strings.TrimSpace(in.InvitedEmail) == "" {
		return nil, false, invalidArgument("inviter and invited email are required")
	}
	if !in.RequestedRole.Valid() {
		return nil, false, invalidArgument("unknown role %d", int(in.RequestedRole))
	}
	if strings.TrimSpace(in.InviterSnapshotRef) == "" {
		return nil, false, ErrSnapshotNotReady
	}

	me, err := p.identity.CurrentEmail(ctx)
	if err != nil {
		return nil, false, err
	}
	if !strings.EqualFold(me, in.InvitedEmail) {
		return nil, false, invalidArgument("invitation is addressed to %s", in.InvitedEmail)
	}

	in.Status = models.StatusPending
	in.Direction = models.DirectionReceived
	if in.CreatedAt.IsZero() {
		in.CreatedAt = p.now()
	}

	created, err := p.repo.InsertInvitationIfAbsent(ctx, &in)
	if err != nil {
		return nil, false, storageError("save invitation", err)
	}

	stored, err := p.repo.GetInvitation(ctx, in.InvitationID)
	if err != nil {
		return nil, false, storageError("load invitation", err)
	}
	if stored == nil {
		return nil, false, storageError("load invitation", repository.ErrNotFound)
	}

	if created {
		p.logger.Info("invitation received",
			zap.String("invitation", in.InvitationID),
			zap.String("peer", in.InviterEmail))
	}

	return stored, created, nil
}

// Accept moves a pending invitation to Accepted and records the inviter as a
// peer whose data I may read under the requested role. Of several concurrent
// calls for one invitation exactly one succeeds.
func (p *InvitationProtocol) Accept(ctx context.Context, invitationID string) (*models.SharedPeer, error) {
	var peer *models.SharedPeer

	err := p.repo.InTx(ctx, func(tx repository.Repository) error {
		invitation, err := tx.GetInvitation(ctx, invitationID)
		if err != nil {
			return storageError("load invitation", err)
		}
		if invitation == nil || invitation.Status != models.StatusPending {
			return ErrInvalidInvitation
		}

		ok, err := tx.TransitionInvitation(ctx, invitationID, models.StatusPending, models.StatusAccepted)
		if err != nil {
			return storageError("accept invitation", err)
		}
		if !ok {
			return ErrInvalidInvitation
		}

		existing, err := tx.GetPeer(ctx, invitation.InviterEmail)
		if err != nil {
			return storageError("load peer", err)
		}

		ref := invitation.InviterSnapshotRef
		peer = &models.SharedPeer{
			PeerID:                 invitation.InviterEmail,
			TheirRemoteSnapshotRef: &ref,
			MyRoleForTheirData:     models.RoleRef(invitation.RequestedRole),
		}
		// Acceptance grants nothing back, but must not revoke an earlier grant
		if existing != nil {
			peer.RoleGivenByMe = existing.RoleGivenByMe
			peer.LastSyncTimestamp = existing.LastSyncTimestamp
		}

		if err := tx.UpsertPeer(ctx, peer); err != nil {
			return storageError("save peer", err)
		}
		return nil
	})
	if err != nil {
		return nil, storageError("accept invitation", err)
	}

	p.logger.Info("invitation accepted",
		zap.String("invitation", invitationID),
		zap.String("peer", peer.PeerID))
	p.feed.Notify(ctx)

	return peer, nil
}

// Reject moves a pending invitation to Rejected
func (p *InvitationProtocol) Reject(ctx context.Context, invitationID string) error {
	ok, err := p.repo.TransitionInvitation(ctx, invitationID, models.StatusPending, models.StatusRejected)
	if err != nil {
		return storageError("reject invitation", err)
	}
	if !ok {
		return ErrInvalidInvitation
	}

	p.logger.Info("invitation rejected", zap.String("invitation", invitationID))
	return nil
}

// GetInvitation returns one invitation or ErrInvalidInvitation
func (p *InvitationProtocol) GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	invitation, err := p.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, storageError("load invitation", err)
	}
	if invitation == nil {
		return nil, ErrInvalidInvitation
	}
	return invitation, nil
}

// ListReceivedPending lists pending invitations received by email, or by the
// current user when email is empty.
func (p *InvitationProtocol) ListReceivedPending(ctx context.Context, email string) ([]models.Invitation, error) {
	email, err := p.emailOrCurrent(ctx, email)
	if err != nil {
		return nil, err
	}

	received, err := p.repo.ListReceived(ctx, email)
	if err != nil {
		return nil, storageError("list received invitations", err)
	}

	pending := make([]models.Invitation, 0, len(received))
	for _, invitation := range received {
		if invitation.Status == models.StatusPending {
			pending = append(pending, invitation)
		}
	}
	return pending, nil
}

// ListSent lists invitations sent by email, or by the current user when
// email is empty.
func (p *InvitationProtocol) ListSent(ctx context.Context, email string) ([]models.Invitation, error) {
	email, err := p.emailOrCurrent(ctx, email)
	if err != nil {
		return nil, err
	}

	sent, err := p.repo.ListSent(ctx, email)
	if err != nil {
		return nil, storageError("list sent invitations", err)
	}
	return sent, nil
}

func (p *InvitationProtocol) emailOrCurrent(ctx context.Context, email string) (string, error) {
	if email = strings.TrimSpace(email); email != "" {
		return email, nil
	}
	return p.identity.CurrentEmail(ctx)
}
