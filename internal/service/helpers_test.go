package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/config"
	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/remote"
	"github.com/rongwang/ledger-share/internal/repository"
)

const tempDir = "/tmp/ledger-share"

var testSettings = RemoteSettings{
	FolderName:       "PersonalBudgetBackups",
	SnapshotFileName: "my_personalbudget_data.json",
	Timeout:          5 * time.Second,
	TempDir:          tempDir,
}

// testEnv is one user's side: a private ledger plus the shared remote store
type testEnv struct {
	owner       string
	repo        *repository.SQLRepository
	fs          afero.Fs
	store       remote.ObjectStore
	feed        *PeerFeed
	invitations *InvitationProtocol
	peers       *PeerService
	publisher   *SnapshotPublisher
	syncer      *SyncEngine
}

func newTestEnv(t *testing.T, owner string) *testEnv {
	t.Helper()
	fs := afero.NewMemMapFs()
	return newTestEnvWithStore(t, owner, fs, remote.NewLocalStore(fs, "/remote", remote.Namespace(owner)))
}

func newTestEnvWithStore(t *testing.T, owner string, fs afero.Fs, store remote.ObjectStore) *testEnv {
	t.Helper()

	db, err := config.SetupDatabase(&config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := zap.NewNop()
	repo := repository.NewSQLRepository(db)
	feed := NewPeerFeed(repo, logger)

	return &testEnv{
		owner:       owner,
		repo:        repo,
		fs:          fs,
		store:       store,
		feed:        feed,
		invitations: NewInvitationProtocol(repo, StaticIdentity(owner), feed, logger),
		peers:       NewPeerService(repo, feed, logger),
		publisher:   NewSnapshotPublisher(repo, store, fs, testSettings, logger),
		syncer:      NewSyncEngine(repo, store, fs, testSettings, nil, feed, logger),
	}
}

func ptr[T any](v T) *T { return &v }

func sampleLedger() *models.LedgerSnapshot {
	return &models.LedgerSnapshot{
		Expenses: []models.ExpenseRecord{
			{
				ID:             7,
				Amount:         decimal.RequireFromString("1520.75"),
				Date:           "2024-03-10",
				Time:           "13:45",
				Merchant:       "Supermercado Lider",
				CategoryID:     ptr(int64(2)),
				Installments:   ptr(3),
				LastCardDigits: ptr("4821"),
				Description:    ptr("weekly groceries"),
			},
			{ID: 8, Amount: decimal.RequireFromString("9.9"), Date: "2024-03-09", Time: "08:02", Merchant: "Cafe"},
			{ID: 9, Amount: decimal.RequireFromString("45000"), Date: "2024-03-01", Time: "19:30", Merchant: "Copec", CategoryID: ptr(int64(1))},
		},
		Categories: []models.CategoryRecord{
			{ID: 1, Name: "Transport"},
			{ID: 2, Name: "Food"},
		},
		Budgets: []models.BudgetRecord{
			{ID: 1, CategoryID: 2, Amount: decimal.RequireFromString("300000"), Month: 3, Year: 2024},
			{ID: 2, CategoryID: 1, Amount: decimal.RequireFromString("80000"), Month: 3, Year: 2024},
		},
	}
}

func seedLedger(t *testing.T, store repository.LedgerStore, snap *models.LedgerSnapshot) {
	t.Helper()
	_, err := (ReplaceByID{}).Merge(context.Background(), store, snap)
	require.NoError(t, err)
}

func exportLedger(t *testing.T, store repository.LedgerStore) *models.LedgerSnapshot {
	t.Helper()
	snap, err := ExportLedger(context.Background(), store)
	require.NoError(t, err)
	return snap
}

func assertNoTempFiles(t *testing.T, fs afero.Fs) {
	t.Helper()
	entries, err := afero.ReadDir(fs, tempDir)
	if errors.Is(err, afero.ErrFileNotFound) {
		return
	}
	require.NoError(t, err)
	require.Empty(t, entries, "scratch files left behind")
}

// failingStore fails every call with err
type failingStore struct {
	err error
}

func (s failingStore) GetOrCreateFolder(ctx context.Context, name string) (remote.FolderRef, error) {
	return remote.FolderRef(name), nil
}

func (s failingStore) Upload(ctx context.Context, name string, content []byte, mimeType string, folder remote.FolderRef) (remote.ObjectRef, error) {
	return "", s.err
}

func (s failingStore) Download(ctx context.Context, ref remote.ObjectRef) ([]byte, error) {
	return nil, s.err
}

func (s failingStore) List(ctx context.Context, folder remote.FolderRef, filter string) ([]remote.ObjectMetadata, error) {
	return nil, s.err
}

// hangingStore blocks every call until its context ends
type hangingStore struct{}

func (hangingStore) GetOrCreateFolder(ctx context.Context, name string) (remote.FolderRef, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingStore) Upload(ctx context.Context, name string, content []byte, mimeType string, folder remote.FolderRef) (remote.ObjectRef, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (hangingStore) Download(ctx context.Context, ref remote.ObjectRef) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingStore) List(ctx context.Context, folder remote.FolderRef, filter string) ([]remote.ObjectMetadata, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
