package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseRecord represents a single expense in the local ledger.
// IDs are assigned by the local store and are not globally unique.
type ExpenseRecord struct {
	ID             int64           `db:"id" json:"id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	Date           string          `db:"date" json:"date"`
	Time           string          `db:"time" json:"time"`
	Merchant       string          `db:"merchant" json:"merchant"`
	CategoryID     *int64          `db:"category_id" json:"categoryId"`
	Installments   *int            `db:"installments" json:"installments"`
	LastCardDigits *string         `db:"last_card_digits" json:"lastCardDigits"`
	Description    *string         `db:"description" json:"description"`
}

// CategoryRecord represents an expense category
type CategoryRecord struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// BudgetRecord represents the amount assigned to a category for one month
type BudgetRecord struct {
	ID         int64           `db:"id" json:"id"`
	CategoryID int64           `db:"category_id" json:"categoryId"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Month      int             `db:"month" json:"month"`
	Year       int             `db:"year" json:"year"`
}

// LedgerSnapshot is a whole-ledger export of one user at a point in time.
// It is a value: nothing mutates a snapshot after it has been built.
type LedgerSnapshot struct {
	Expenses   []ExpenseRecord
	Categories []CategoryRecord
	Budgets    []BudgetRecord
}

// Size returns the total number of records in the snapshot
func (s *LedgerSnapshot) Size() int {
	return len(s.Expenses) + len(s.Categories) + len(s.Budgets)
}

// SharedPeer is another user with whom a sharing relationship exists.
// The two role fields are independent: RoleGivenByMe covers my data,
// MyRoleForTheirData covers theirs.
type SharedPeer struct {
	PeerID                 string     `db:"peer_id" json:"peerId"`
	RoleGivenByMe          *Role      `db:"role_given_by_me" json:"roleGivenByMe"`
	TheirRemoteSnapshotRef *string    `db:"their_remote_snapshot_ref" json:"theirRemoteSnapshotRef"`
	MyRoleForTheirData     *Role      `db:"my_role_for_their_data" json:"myRoleForTheirData"`
	LastSyncTimestamp      *time.Time `db:"last_sync_timestamp" json:"lastSyncTimestamp"`
}

// CanReadTheirData reports whether I hold any role over the peer's ledger
func (p *SharedPeer) CanReadTheirData() bool {
	return p.MyRoleForTheirData != nil
}

// HasRemoteRef reports whether the peer has a published snapshot we know about
func (p *SharedPeer) HasRemoteRef() bool {
	return p.TheirRemoteSnapshotRef != nil && *p.TheirRemoteSnapshotRef != ""
}

// Invitation is a sent or received offer of access to a ledger
type Invitation struct {
	InvitationID       string           `db:"invitation_id" json:"invitationId"`
	InvitedEmail       string           `db:"invited_email" json:"invitedEmail"`
	InviterEmail       string           `db:"inviter_email" json:"inviterEmail"`
	RequestedRole      Role             `db:"requested_role" json:"requestedRole"`
	Status             InvitationStatus `db:"status" json:"status"`
	InviterSnapshotRef string           `db:"inviter_snapshot_ref" json:"inviterSnapshotRef"`
	Direction          Direction        `db:"direction" json:"direction"`
	CreatedAt          time.Time        `db:"created_at" json:"createdAt"`
}

// MergeStats counts the records folded into the local ledger by one merge
type MergeStats struct {
	Categories int `json:"categories"`
	Budgets    int `json:"budgets"`
	Expenses   int `json:"expenses"`
}

// Total returns the number of merged records
func (m MergeStats) Total() int {
	return m.Categories + m.Budgets + m.Expenses
}
