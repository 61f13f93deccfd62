package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/ledger-share/internal/models"
)

func TestSendInvitation(t *testing.T) {
	alice := newTestEnv(t, "alice@x.com")
	ctx := context.Background()

	invitation, err := alice.invitations.Send(ctx, "bob@x.com", models.RoleReader, "r1")
	require.NoError(t, err)

	_, err = uuid.Parse(invitation.InvitationID)
	assert.NoError(t, err)
	assert.Equal(t, "alice@x.com", invitation.InviterEmail)
	assert.Equal(t, models.StatusPending, invitation.Status)
	assert.Equal(t, models.DirectionSent, invitation.Direction)

	stored, err := alice.repo.GetInvitation(ctx, invitation.InvitationID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "bob@x.com", stored.InvitedEmail)
	assert.Equal(t, models.RoleReader, stored.RequestedRole)
	assert.Equal(t, "r1", stored.InviterSnapshotRef)
	assert.WithinDuration(t, invitation.CreatedAt, stored.CreatedAt, time.Second)
}

func TestSendRequiresPublishedSnapshot(t *testing.T) {
	alice := newTestEnv(t, "alice@x.com")

	_, err := alice.invitations.Send(context.Background(), "bob@x.com", models.RoleWriter, "")
	assert.ErrorIs(t, err, ErrSnapshotNotReady)

	sent, err := alice.invitations.ListSent(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, sent)
}

func TestSendRejectsBadArguments(t *testing.T) {
	alice := newTestEnv(t, "alice@x.com")
	ctx := context.Background()

	_, err := alice.invitations.Send(ctx, "  ", models.RoleReader, "r1")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = alice.invitations.Send(ctx, "bob@x.com", models.Role(42), "r1")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendUsesInjectedIdentity(t *testing.T) {
	env := newTestEnv(t, "owner@x.com")
	env.invitations.identity = ContextIdentity{Fallback: StaticIdentity("owner@x.com")}

	ctx := WithIdentity(context.Background(), "carol@x.com")
	invitation, err := env.invitations.Send(ctx, "bob@x.com", models.RoleReader, "r1")
	require.NoError(t, err)
	assert.Equal(t, "carol@x.com", invitation.InviterEmail)

	invitation, err = env.invitations.Send(context.Background(), "bob@x.com", models.RoleReader, "r1")
	require.NoError(t, err)
	assert.Equal(t, "owner@x.com", invitation.InviterEmail)
}

// deliver hands an invitation sent by one side to the other
func deliver(t *testing.T, to *testEnv, invitation *models.Invitation) *models.Invitation {
	t.Helper()
	received, created, err := to.invitations.Receive(context.Background(), *invitation)
	require.NoError(t, err)
	require.True(t, created)
	return received
}

func TestInvitationScenario(t *testing.T) {
	alice := newTestEnv(t, "alice@x.com")
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	sent, err := alice.invitations.Send(ctx, "bob@x.com", models.RoleWriter, "r1")
	require.NoError(t, err)
	received := deliver(t, bob, sent)
	assert.Equal(t, models.DirectionReceived, received.Direction)
	assert.Equal(t, sent.InvitationID, received.InvitationID)

	peer, err := bob.invitations.Accept(ctx, received.InvitationID)
	require.NoError(t, err)

	assert.Equal(t, "alice@x.com", peer.PeerID)
	require.NotNil(t, peer.MyRoleForTheirData)
	assert.Equal(t, models.RoleWriter, *peer.MyRoleForTheirData)
	require.NotNil(t, peer.TheirRemoteSnapshotRef)
	assert.Equal(t, "r1", *peer.TheirRemoteSnapshotRef)
	assert.Nil(t, peer.RoleGivenByMe)

	stored, err := bob.repo.GetPeer(ctx, "alice@x.com")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.RoleWriter, *stored.MyRoleForTheirData)
	assert.Nil(t, stored.RoleGivenByMe)
	assert.Nil(t, stored.LastSyncTimestamp)

	invitation, err := bob.invitations.GetInvitation(ctx, received.InvitationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, invitation.Status)
}

func TestAcceptIsAtMostOnce(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	invitation := deliver(t, bob, &models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleReader,
		InviterSnapshotRef: "r1",
	})

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bob.invitations.Accept(ctx, invitation.InvitationID)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, ErrInvalidInvitation) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, callers-1, rejected)

	peers, err := bob.peers.ListPeers(ctx)
	require.NoError(t, err)
	assert.Len(t, peers, 1)

	stored, err := bob.invitations.GetInvitation(ctx, invitation.InvitationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, stored.Status)
}

func TestRejectIsTerminal(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	invitation := deliver(t, bob, &models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleWriter,
		InviterSnapshotRef: "r1",
	})

	require.NoError(t, bob.invitations.Reject(ctx, invitation.InvitationID))

	_, err := bob.invitations.Accept(ctx, invitation.InvitationID)
	assert.ErrorIs(t, err, ErrInvalidInvitation)
	assert.ErrorIs(t, bob.invitations.Reject(ctx, invitation.InvitationID), ErrInvalidInvitation)

	peers, err := bob.peers.ListPeers(ctx)
	require.NoError(t, err)
	assert.Empty(t, peers)

	stored, err := bob.invitations.GetInvitation(ctx, invitation.InvitationID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

func TestAcceptTwiceFails(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	invitation := deliver(t, bob, &models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleReader,
		InviterSnapshotRef: "r1",
	})

	_, err := bob.invitations.Accept(ctx, invitation.InvitationID)
	require.NoError(t, err)

	_, err = bob.invitations.Accept(ctx, invitation.InvitationID)
	assert.ErrorIs(t, err, ErrInvalidInvitation)
	assert.ErrorIs(t, bob.invitations.Reject(ctx, invitation.InvitationID), ErrInvalidInvitation)
}

func TestAcceptUnknownInvitation(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")

	_, err := bob.invitations.Accept(context.Background(), uuid.New().String())
	assert.ErrorIs(t, err, ErrInvalidInvitation)
	assert.EqualError(t, err, "invitation invalid or already processed")

	assert.ErrorIs(t, bob.invitations.Reject(context.Background(), "nope"), ErrInvalidInvitation)
}

func TestAcceptKeepsExistingGrant(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	_, err := bob.peers.AddSharedPeer(ctx, "alice@x.com", models.RoleRef(models.RoleReader), nil, nil)
	require.NoError(t, err)

	invitation := deliver(t, bob, &models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleWriter,
		InviterSnapshotRef: "r2",
	})

	peer, err := bob.invitations.Accept(ctx, invitation.InvitationID)
	require.NoError(t, err)
	require.NotNil(t, peer.RoleGivenByMe)
	assert.Equal(t, models.RoleReader, *peer.RoleGivenByMe)
	assert.Equal(t, models.RoleWriter, *peer.MyRoleForTheirData)
	assert.Equal(t, "r2", *peer.TheirRemoteSnapshotRef)
}

func TestReceiveIsIdempotent(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	envelope := models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleReader,
		InviterSnapshotRef: "r1",
	}
	deliver(t, bob, &envelope)
	require.NoError(t, bob.invitations.Reject(ctx, envelope.InvitationID))

	// A redelivery must not reopen the invitation
	stored, created, err := bob.invitations.Receive(ctx, envelope)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, models.StatusRejected, stored.Status)
}

func TestReceiveValidatesEnvelope(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	valid := models.Invitation{
		InvitationID:       uuid.New().String(),
		InvitedEmail:       "bob@x.com",
		InviterEmail:       "alice@x.com",
		RequestedRole:      models.RoleReader,
		InviterSnapshotRef: "r1",
	}

	cases := map[string]func(in *models.Invitation){
		"bad id":         func(in *models.Invitation) { in.InvitationID = "123" },
		"no inviter":     func(in *models.Invitation) { in.InviterEmail = "" },
		"unknown role":   func(in *models.Invitation) { in.RequestedRole = 0 },
		"someone else's": func(in *models.Invitation) { in.InvitedEmail = "carol@x.com" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, _, err := bob.invitations.Receive(ctx, in)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}

	noRef := valid
	noRef.InviterSnapshotRef = ""
	_, _, err := bob.invitations.Receive(ctx, noRef)
	assert.ErrorIs(t, err, ErrSnapshotNotReady)
}

func TestListInvitations(t *testing.T) {
	bob := newTestEnv(t, "bob@x.com")
	ctx := context.Background()

	var ids []string
	for _, inviter := range []string{"alice@x.com", "carol@x.com", "dave@x.com"} {
		invitation := deliver(t, bob, &models.Invitation{
			InvitationID:       uuid.New().String(),
			InvitedEmail:       "bob@x.com",
			InviterEmail:       inviter,
			RequestedRole:      models.RoleReader,
			InviterSnapshotRef: "ref-" + inviter,
		})
		ids = append(ids, invitation.InvitationID)
	}
	_, err := bob.invitations.Accept(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, bob.invitations.Reject(ctx, ids[1]))

	_, err = bob.invitations.Send(ctx, "erin@x.com", models.RoleWriter, "mine")
	require.NoError(t, err)

	pending, err := bob.invitations.ListReceivedPending(ctx, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[2], pending[0].InvitationID)

	sent, err := bob.invitations.ListSent(ctx, "bob@x.com")
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "erin@x.com", sent[0].InvitedEmail)

	none, err := bob.invitations.ListSent(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Empty(t, none)
}
