package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rongwang/ledger-share/internal/models"
)

const (
	peerColumns       = `peer_id, role_given_by_me, their_remote_snapshot_ref, my_role_for_their_data, last_sync_timestamp`
	invitationColumns = `invitation_id, invited_email, inviter_email, requested_role, status, inviter_snapshot_ref, direction, created_at`
)

// Shared peer repository methods
func (r *SQLRepository) UpsertPeer(ctx context.Context, p *models.SharedPeer) error {
	query := `
		INSERT INTO shared_peers (` + peerColumns + `)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (peer_id) DO UPDATE SET
			role_given_by_me = excluded.role_given_by_me,
			their_remote_snapshot_ref = excluded.their_remote_snapshot_ref,
			my_role_for_their_data = excluded.my_role_for_their_data,
			last_sync_timestamp = excluded.last_sync_timestamp`

	_, err := r.exec(ctx, query,
		p.PeerID, p.RoleGivenByMe, p.TheirRemoteSnapshotRef, p.MyRoleForTheirData, p.LastSyncTimestamp)

	return err
}

func (r *SQLRepository) UpdatePeer(ctx context.Context, p *models.SharedPeer) error {
	query := `
		UPDATE shared_peers SET
			role_given_by_me = ?,
			their_remote_snapshot_ref = ?,
			my_role_for_their_data = ?,
			last_sync_timestamp = ?
		WHERE peer_id = ?`

	n, err := r.exec(ctx, query,
		p.RoleGivenByMe, p.TheirRemoteSnapshotRef, p.MyRoleForTheirData, p.LastSyncTimestamp, p.PeerID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// RemovePeer deletes the peer row only; ledger records merged from the peer stay
func (r *SQLRepository) RemovePeer(ctx context.Context, peerID string) error {
	_, err := r.exec(ctx, `DELETE FROM shared_peers WHERE peer_id = ?`, peerID)
	return err
}

func (r *SQLRepository) GetPeer(ctx context.Context, peerID string) (*models.SharedPeer, error) {
	var peer models.SharedPeer
	err := r.get(ctx, &peer, `SELECT `+peerColumns+` FROM shared_peers WHERE peer_id = ?`, peerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Peer not found
		}
		return nil, err
	}

	return &peer, nil
}

func (r *SQLRepository) ListPeers(ctx context.Context) ([]models.SharedPeer, error) {
	peers := []models.SharedPeer{}
	if err := r.selectAll(ctx, &peers, `SELECT `+peerColumns+` FROM shared_peers ORDER BY peer_id`); err != nil {
		return nil, err
	}

	return peers, nil
}

// Invitation repository methods
func (r *SQLRepository) UpsertInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO sharing_invitations (` + invitationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invitation_id) DO UPDATE SET
			invited_email = excluded.invited_email,
			inviter_email = excluded.inviter_email,
			requested_role = excluded.requested_role,
			status = excluded.status,
			inviter_snapshot_ref = excluded.inviter_snapshot_ref,
			direction = excluded.direction,
			created_at = excluded.created_at`

	_, err := r.exec(ctx, query, invitationArgs(inv)...)
	return err
}

// InsertInvitationIfAbsent stores the invitation unless its id is already
// known, and reports whether a row was written.
func (r *SQLRepository) InsertInvitationIfAbsent(ctx context.Context, inv *models.Invitation) (bool, error) {
	query := `
		INSERT INTO sharing_invitations (` + invitationColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (invitation_id) DO NOTHING`

	n, err := r.exec(ctx, query, invitationArgs(inv)...)
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *SQLRepository) UpdateInvitation(ctx context.Context, inv *models.Invitation) error {
	query := `
		UPDATE sharing_invitations SET
			invited_email = ?,
			inviter_email = ?,
			requested_role = ?,
			status = ?,
			inviter_snapshot_ref = ?,
			direction = ?,
			created_at = ?
		WHERE invitation_id = ?`

	args := append(invitationArgs(inv)[1:], inv.InvitationID)
	n, err := r.exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// TransitionInvitation moves an invitation from one status to another.
// It reports false when the invitation does not exist or is not in the from
// status, which makes concurrent transitions of one invitation at-most-once.
func (r *SQLRepository) TransitionInvitation(
	ctx context.Context,
	invitationID string,
	from models.InvitationStatus,
	to models.InvitationStatus,
) (bool, error) {
	n, err := r.exec(ctx,
		`UPDATE sharing_invitations SET status = ? WHERE invitation_id = ? AND status = ?`,
		to, invitationID, from)
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *SQLRepository) GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.get(ctx, &inv,
		`SELECT `+invitationColumns+` FROM sharing_invitations WHERE invitation_id = ?`, invitationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Invitation not found
		}
		return nil, err
	}

	return &inv, nil
}

func (r *SQLRepository) ListReceived(ctx context.Context, email string) ([]models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + ` FROM sharing_invitations
		WHERE invited_email = ? AND direction = ?
		ORDER BY created_at DESC`

	invitations := []models.Invitation{}
	if err := r.selectAll(ctx, &invitations, query, email, models.DirectionReceived); err != nil {
		return nil, err
	}

	return invitations, nil
}

func (r *SQLRepository) ListSent(ctx context.Context, email string) ([]models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + ` FROM sharing_invitations
		WHERE inviter_email = ? AND direction = ?
		ORDER BY created_at DESC`

	invitations := []models.Invitation{}
	if err := r.selectAll(ctx, &invitations, query, email, models.DirectionSent); err != nil {
		return nil, err
	}

	return invitations, nil
}

func invitationArgs(inv *models.Invitation) []interface{} {
	return []interface{}{
		inv.InvitationID, inv.InvitedEmail, inv.InviterEmail, inv.RequestedRole,
		inv.Status, inv.InviterSnapshotRef, inv.Direction, inv.CreatedAt,
	}
}
