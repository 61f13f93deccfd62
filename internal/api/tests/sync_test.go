package api_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/ledger-share/internal/api/testutils"
	"github.com/rongwang/ledger-share/internal/models"
)

func addPeer(t *testing.T, testCtx *testutils.TestContext, req models.AddPeerRequest) {
	t.Helper()
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/peers", req,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func errorCode(t *testing.T, testCtx *testutils.TestContext, method, path string) (int, string) {
	t.Helper()
	w := testutils.PerformRequest(testCtx.Router, method, path, nil, testutils.AuthHeaders(testCtx.TestUserJWT))
	var errResponse models.ErrorResponse
	testutils.DecodeJSON(t, w, &errResponse)
	return w.Code, errResponse.Code
}

func TestSyncPeerErrors(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	folder, err := testCtx.Store.GetOrCreateFolder(context.Background(), testutils.TestSettings.FolderName)
	require.NoError(t, err)
	garbage, err := testCtx.Store.Upload(context.Background(), "garbage.json", []byte("{not json"), "application/json", folder)
	require.NoError(t, err)

	addPeer(t, testCtx, models.AddPeerRequest{Email: "noaccess@example.com", TheirSnapshotRef: "PersonalBudgetBackups/x.json"})
	addPeer(t, testCtx, models.AddPeerRequest{Email: "noref@example.com", MyRoleForTheirData: "Reader"})
	addPeer(t, testCtx, models.AddPeerRequest{Email: "corrupt@example.com", MyRoleForTheirData: "Reader", TheirSnapshotRef: string(garbage)})
	addPeer(t, testCtx, models.AddPeerRequest{Email: "missing@example.com", MyRoleForTheirData: "Writer", TheirSnapshotRef: "PersonalBudgetBackups/missing.json"})

	// Test case 1: Unknown peer
	status, code := errorCode(t, testCtx, http.MethodPost, "/api/peers/nobody@example.com/sync")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", code)

	// Test case 2: I hold no role over their data
	status, code = errorCode(t, testCtx, http.MethodPost, "/api/peers/noaccess@example.com/sync")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", code)

	// Test case 3: They never published
	status, code = errorCode(t, testCtx, http.MethodPost, "/api/peers/noref@example.com/sync")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "NO_REMOTE_REF", code)

	// Test case 4: Unreadable snapshot
	status, code = errorCode(t, testCtx, http.MethodPost, "/api/peers/corrupt@example.com/sync")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "CORRUPT_SNAPSHOT", code)

	// Test case 5: Snapshot gone from the remote
	status, code = errorCode(t, testCtx, http.MethodPost, "/api/peers/missing@example.com/sync")
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "DOWNLOAD_FAILED", code)

	// Failed syncs leave the ledger and the sync time untouched
	expenses, err := testCtx.Repository.AllExpenses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, expenses)

	peer, err := testCtx.Repository.GetPeer(context.Background(), "corrupt@example.com")
	require.NoError(t, err)
	assert.Nil(t, peer.LastSyncTimestamp)
}

func TestSyncAll(t *testing.T) {
	a, b := sharedPair(t)
	seedExpenses(t, a, "Lider")

	inv := invite(t, a, b, "Reader")
	w := testutils.PerformRequest(b.Router, http.MethodPost, "/api/invitations/"+inv.InvitationID+"/accept", nil,
		testutils.AuthHeaders(b.TestUserJWT))
	require.Equal(t, http.StatusOK, w.Code)

	// Skipped: no role over their data
	addPeer(t, b, models.AddPeerRequest{Email: carol, RoleGivenByMe: "Reader", TheirSnapshotRef: "Carol/ledger.json"})
	// Attempted and failed
	addPeer(t, b, models.AddPeerRequest{Email: "dave@example.com", MyRoleForTheirData: "Reader", TheirSnapshotRef: "PersonalBudgetBackups/gone.json"})

	w = testutils.PerformRequest(b.Router, http.MethodPost, "/api/sync", nil, testutils.AuthHeaders(b.TestUserJWT))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var response models.SyncAllResponse
	testutils.DecodeJSON(t, w, &response)
	require.Len(t, response.Outcomes, 2)

	// Peer id order
	assert.Equal(t, alice, response.Outcomes[0].PeerID)
	require.NotNil(t, response.Outcomes[0].Merged)
	assert.Equal(t, 1, response.Outcomes[0].Merged.Expenses)
	assert.Empty(t, response.Outcomes[0].Error)
	assert.NotEmpty(t, response.Outcomes[0].SyncedAt)

	assert.Equal(t, "dave@example.com", response.Outcomes[1].PeerID)
	assert.Nil(t, response.Outcomes[1].Merged)
	assert.True(t, strings.Contains(response.Outcomes[1].Error, "download"), response.Outcomes[1].Error)

	expenses, err := b.Repository.AllExpenses(context.Background())
	require.NoError(t, err)
	assert.Len(t, expenses, 1)
}

func TestPublishAndBackup(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)
	seedExpenses(t, testCtx, "Lider", "Copec")

	// Test case 1: Publish
	w := testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/snapshot/publish", nil,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var published models.PublishResponse
	testutils.DecodeJSON(t, w, &published)
	assert.Equal(t, testutils.TestOwner+"/PersonalBudgetBackups/my_personalbudget_data.json", published.Ref)

	// Test case 2: No backups yet; the published snapshot is not one
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/backups", nil,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	require.Equal(t, http.StatusOK, w.Code)

	var list models.BackupListResponse
	testutils.DecodeJSON(t, w, &list)
	assert.Empty(t, list.Backups)

	// Test case 3: Backup
	w = testutils.PerformRequest(testCtx.Router, http.MethodPost, "/api/backups", nil,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var backup models.BackupResponse
	testutils.DecodeJSON(t, w, &backup)
	assert.True(t, strings.HasPrefix(backup.Name, "personalbudget_backup_"), backup.Name)
	assert.Equal(t, testutils.TestOwner+"/PersonalBudgetBackups/"+backup.Name, backup.Ref)

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/backups", nil,
		testutils.AuthHeaders(testCtx.TestUserJWT))
	require.Equal(t, http.StatusOK, w.Code)

	testutils.DecodeJSON(t, w, &list)
	require.Len(t, list.Backups, 1)
	assert.Equal(t, backup.Name, list.Backups[0].Name)
	assert.NotEmpty(t, list.Backups[0].ModifiedAt)
}
