package repository

import (
	"context"
	"errors"

	"github.com/rongwang/ledger-share/internal/models"
)

// ErrNotFound is returned by update operations whose target row does not exist
var ErrNotFound = errors.New("record not found")

// LedgerStore is the local store for expenses, categories and budgets.
// InsertOrReplace* assign a fresh id when the record's ID is zero and otherwise
// replace any row that already has that id.
type LedgerStore interface {
	AllExpenses(ctx context.Context) ([]models.ExpenseRecord, error)
	AllCategories(ctx context.Context) ([]models.CategoryRecord, error)
	AllBudgets(ctx context.Context) ([]models.BudgetRecord, error)

	GetExpense(ctx context.Context, id int64) (*models.ExpenseRecord, error)
	GetCategory(ctx context.Context, id int64) (*models.CategoryRecord, error)
	GetBudget(ctx context.Context, id int64) (*models.BudgetRecord, error)

	InsertOrReplaceExpense(ctx context.Context, expense *models.ExpenseRecord) (int64, error)
	InsertOrReplaceCategory(ctx context.Context, category *models.CategoryRecord) (int64, error)
	InsertOrReplaceBudget(ctx context.Context, budget *models.BudgetRecord) (int64, error)
}

// SharingDirectory persists known peers and sent/received invitations.
// Get* return nil, nil when the row does not exist.
type SharingDirectory interface {
	// Peer operations
	UpsertPeer(ctx context.Context, peer *models.SharedPeer) error
	UpdatePeer(ctx context.Context, peer *models.SharedPeer) error
	RemovePeer(ctx context.Context, peerID string) error
	GetPeer(ctx context.Context, peerID string) (*models.SharedPeer, error)
	ListPeers(ctx context.Context) ([]models.SharedPeer, error)

	// Invitation operations
	UpsertInvitation(ctx context.Context, invitation *models.Invitation) error
	InsertInvitationIfAbsent(ctx context.Context, invitation *models.Invitation) (bool, error)
	UpdateInvitation(ctx context.Context, invitation *models.Invitation) error
	TransitionInvitation(ctx context.Context, invitationID string, from, to models.InvitationStatus) (bool, error)
	GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error)
	ListReceived(ctx context.Context, email string) ([]models.Invitation, error)
	ListSent(ctx context.Context, email string) ([]models.Invitation, error)
}

// Repository combines both stores over one connection.
// InTx runs fn against a transaction-bound Repository; fn must only use the
// Repository it is given. Nested calls reuse the outer transaction.
type Repository interface {
	LedgerStore
	SharingDirectory
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
