// Package notify carries invitations from inviter to invitee over RabbitMQ.
// Each user consumes a durable queue named after their email.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rongwang/ledger-share/internal/codec"
	"github.com/rongwang/ledger-share/internal/models"
)

// ErrMalformedEnvelope is returned for messages that are not a valid
// invitation envelope, including unknown role names.
var ErrMalformedEnvelope = fmt.Errorf("%w: malformed invitation envelope", codec.ErrCorruptSnapshot)

// Envelope is the message published for one invitation
type Envelope struct {
	InvitationID       string      `json:"invitationId"`
	InvitedEmail       string      `json:"invitedEmail"`
	InviterEmail       string      `json:"inviterEmail"`
	RequestedRole      models.Role `json:"requestedRole"`
	InviterSnapshotRef string      `json:"inviterSnapshotRef"`
	CreatedAt          time.Time   `json:"createdAt"`
}

// QueueName returns the queue holding invitations addressed to email
func QueueName(email string) string {
	return "invitations." + strings.ToLower(strings.TrimSpace(email))
}

// NewEnvelope builds the envelope for an invitation
func NewEnvelope(inv *models.Invitation) Envelope {
	return Envelope{
		InvitationID:       inv.InvitationID,
		InvitedEmail:       inv.InvitedEmail,
		InviterEmail:       inv.InviterEmail,
		RequestedRole:      inv.RequestedRole,
		InviterSnapshotRef: inv.InviterSnapshotRef,
		CreatedAt:          inv.CreatedAt,
	}
}

// Invitation converts the envelope into an invitation as seen by its recipient
func (e Envelope) Invitation() models.Invitation {
	return models.Invitation{
		InvitationID:       e.InvitationID,
		InvitedEmail:       e.InvitedEmail,
		InviterEmail:       e.InviterEmail,
		RequestedRole:      e.RequestedRole,
		Status:             models.StatusPending,
		InviterSnapshotRef: e.InviterSnapshotRef,
		Direction:          models.DirectionReceived,
		CreatedAt:          e.CreatedAt,
	}
}

// Marshal encodes the envelope; an unknown role is an error
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEnvelope decodes and checks a message body
func ParseEnvelope(body []byte) (Envelope, error) {
	var e Envelope

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedEnvelope, err)
	}

	switch {
	case e.InvitationID == "":
		return Envelope{}, fmt.Errorf("%w: missing invitationId", ErrMalformedEnvelope)
	case e.InvitedEmail == "" || e.InviterEmail == "":
		return Envelope{}, fmt.Errorf("%w: missing email", ErrMalformedEnvelope)
	case !e.RequestedRole.Valid():
		return Envelope{}, fmt.Errorf("%w: missing requestedRole", ErrMalformedEnvelope)
	case e.InviterSnapshotRef == "":
		return Envelope{}, fmt.Errorf("%w: missing inviterSnapshotRef", ErrMalformedEnvelope)
	}

	return e, nil
}
