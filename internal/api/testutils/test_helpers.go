package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/api"
	"github.com/rongwang/ledger-share/internal/config"
	"github.com/rongwang/ledger-share/internal/remote"
	"github.com/rongwang/ledger-share/internal/repository"
	"github.com/rongwang/ledger-share/internal/service"
	"github.com/rongwang/ledger-share/internal/worker"
)

const (
	TestJWTSecret = "test-secret-key"
	TestOwner     = "owner@example.com"
	RemoteRoot    = "/remote"
	TempDir       = "/tmp/ledger-share"
)

// TestSettings are the remote settings every test context uses
var TestSettings = service.RemoteSettings{
	FolderName:       "PersonalBudgetBackups",
	SnapshotFileName: "my_personalbudget_data.json",
	Timeout:          5 * time.Second,
	TempDir:          TempDir,
}

// TestContext holds all dependencies of one user's server
type TestContext struct {
	Router      *gin.Engine
	Repository  *repository.SQLRepository
	Services    api.Services
	Runner      *worker.Runner
	DB          *sqlx.DB
	Fs          afero.Fs
	Store       remote.ObjectStore
	JWTSecret   []byte
	Owner       string
	TestUserJWT string
}

// SetupTestContext creates a server for TestOwner on a fresh in-memory
// store and remote
func SetupTestContext(t *testing.T) *TestContext {
	return SetupUserContext(t, TestOwner, afero.NewMemMapFs())
}

// SetupUserContext creates a server for owner. Contexts built on the same
// fs share one remote store, the way two devices share a cloud folder.
func SetupUserContext(t *testing.T, owner string, fs afero.Fs) *TestContext {
	t.Helper()

	// Private local store
	db, err := config.SetupDatabase(&config.Config{
		Database: config.DatabaseConfig{Driver: config.DriverSQLite, Path: ":memory:"},
	})
	require.NoError(t, err, "Failed to set up test database")

	logger := zap.NewNop()
	repo := repository.NewSQLRepository(db)
	store := remote.NewLocalStore(fs, RemoteRoot, remote.Namespace(owner))
	feed := service.NewPeerFeed(repo, logger)
	identity := service.ContextIdentity{Fallback: service.StaticIdentity(owner)}

	publisher := service.NewSnapshotPublisher(repo, store, fs, TestSettings, logger)
	syncer := service.NewSyncEngine(repo, store, fs, TestSettings, nil, feed, logger)

	// Registered but never started: triggers are only queued
	runner := worker.NewRunner(logger)
	runner.Register(worker.JobPublish, 0, func(ctx context.Context) error {
		_, err := publisher.EnsurePublished(ctx)
		return err
	})
	runner.Register(worker.JobSyncAll, 0, func(ctx context.Context) error {
		_, err := syncer.SyncAll(ctx)
		return err
	})

	svc := api.Services{
		Invitations: service.NewInvitationProtocol(repo, identity, feed, logger),
		Peers:       service.NewPeerService(repo, feed, logger),
		Publisher:   publisher,
		Syncer:      syncer,
		Jobs:        runner,
	}

	return &TestContext{
		Router:      NewRouter(svc),
		Repository:  repo,
		Services:    svc,
		Runner:      runner,
		DB:          db,
		Fs:          fs,
		Store:       store,
		JWTSecret:   []byte(TestJWTSecret),
		Owner:       owner,
		TestUserJWT: GenerateToken(t, owner),
	}
}

// NewRouter builds a test router over svc
func NewRouter(svc api.Services) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.Recovery(zap.NewNop()))

	handler := api.NewHandler(svc, TestJWTSecret, zap.NewNop())
	handler.SetupRoutes(router)
	return router
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		t.DB.Close()
	}
}

// GenerateToken signs a token whose identity is email
func GenerateToken(t *testing.T, email string) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": email,
		"exp":   time.Now().Add(24 * time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(TestJWTSecret))
	require.NoError(t, err, "Failed to generate JWT token")

	return tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeJSON unmarshals a recorded response body into v
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
