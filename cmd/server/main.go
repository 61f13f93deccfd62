package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/api"
	"github.com/rongwang/ledger-share/internal/config"
	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/notify"
	"github.com/rongwang/ledger-share/internal/remote"
	"github.com/rongwang/ledger-share/internal/repository"
	"github.com/rongwang/ledger-share/internal/service"
	"github.com/rongwang/ledger-share/internal/utils"
	"github.com/rongwang/ledger-share/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Set up database connection
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to set up database", zap.Error(err))
	}
	defer db.Close()

	// Create repository
	repo := repository.NewSQLRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Remote store shared with peers
	fs := afero.NewOsFs()
	store, closeStore, err := newObjectStore(ctx, cfg, fs)
	if err != nil {
		logger.Fatal("Failed to set up remote store", zap.Error(err))
	}
	defer closeStore()

	settings := service.RemoteSettings{
		FolderName:       cfg.Remote.FolderName,
		SnapshotFileName: cfg.Remote.SnapshotFileName,
		Timeout:          cfg.Remote.Timeout,
		TempDir:          filepath.Join(os.TempDir(), "ledger-share"),
	}

	// Create services
	identity := service.ContextIdentity{Fallback: service.StaticIdentity(cfg.Owner.Email)}
	feed := service.NewPeerFeed(repo, logger)
	invitations := service.NewInvitationProtocol(repo, identity, feed, logger)
	publisher := service.NewSnapshotPublisher(repo, store, fs, settings, logger)
	syncer := service.NewSyncEngine(repo, store, fs, settings, service.ReplaceByID{}, feed, logger)

	runner := worker.NewRunner(logger)
	runner.Register(worker.JobPublish, cfg.Jobs.PublishInterval, func(ctx context.Context) error {
		_, err := publisher.EnsurePublished(ctx)
		return err
	})
	runner.Register(worker.JobBackup, cfg.Jobs.BackupInterval, func(ctx context.Context) error {
		_, _, err := publisher.Backup(ctx)
		return err
	})
	runner.Register(worker.JobSyncAll, cfg.Jobs.SyncInterval, func(ctx context.Context) error {
		outcomes, err := syncer.SyncAll(ctx)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if o.Err != nil {
				logger.Warn("peer sync failed", zap.String("peer", o.PeerID), zap.Error(o.Err))
			}
		}
		return nil
	})

	svc := api.Services{
		Invitations: invitations,
		Peers:       service.NewPeerService(repo, feed, logger),
		Publisher:   publisher,
		Syncer:      syncer,
		Jobs:        runner,
	}

	// Optional invitation relay
	if cfg.Relay.AMQPURL != "" {
		relay, err := notify.DialRabbitMQ(cfg.Relay.AMQPURL, logger)
		if err != nil {
			logger.Fatal("Failed to set up invitation relay", zap.Error(err))
		}
		defer relay.Close()
		svc.Relay = relay

		go func() {
			err := relay.Consume(ctx, cfg.Owner.Email, func(ctx context.Context, inv models.Invitation) error {
				_, _, err := invitations.Receive(ctx, inv)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invitation relay stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("job runner stopped", zap.Error(err))
		}
	}()

	// Create API handler
	handler := api.NewHandler(svc, cfg.Auth.JWTSecret, logger)

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(api.RequestLogger(logger))
	router.Use(api.Recovery(logger))
	if len(cfg.Server.AllowedOrigins) > 0 {
		router.Use(api.CORSMiddleware(cfg.Server.AllowedOrigins))
	}

	// Set up routes
	handler.SetupRoutes(router)

	// Start server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Info("Starting server",
			zap.String("addr", server.Addr),
			zap.String("owner", cfg.Owner.Email),
			zap.String("remote", cfg.Remote.Backend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shut down", zap.Error(err))
	}
}

// newObjectStore builds the configured remote backend and its cleanup
func newObjectStore(ctx context.Context, cfg *config.Config, fs afero.Fs) (remote.ObjectStore, func(), error) {
	noop := func() {}

	switch cfg.Remote.Backend {
	case config.BackendDrive:
		store, err := remote.NewDriveStore(ctx, cfg.Remote.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.BackendGCS:
		store, err := remote.NewGCSStore(ctx, cfg.Remote.GCSBucket, remote.Namespace(cfg.Owner.Email), cfg.Remote.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		return remote.NewLocalStore(fs, cfg.Remote.LocalRoot, remote.Namespace(cfg.Owner.Email)), noop, nil
	}
}
