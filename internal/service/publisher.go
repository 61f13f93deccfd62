package service

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rongwang/ledger-share/internal/codec"
	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/remote"
	"github.com/rongwang/ledger-share/internal/repository"
)

// RemoteSettings names where snapshots live and bounds each remote call
type RemoteSettings struct {
	FolderName       string
	SnapshotFileName string
	Timeout          time.Duration
	// TempDir holds scratch copies of snapshots on the given afero.Fs
	TempDir string
}

func (r RemoteSettings) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.Timeout)
}

// SnapshotPublisher uploads the local ledger to the remote store under a
// fixed name, so every publish replaces the previous snapshot.
type SnapshotPublisher struct {
	ledger   repository.LedgerStore
	store    remote.ObjectStore
	fs       afero.Fs
	settings RemoteSettings
	logger   *zap.Logger

	group singleflight.Group
	now   func() time.Time
}

// NewSnapshotPublisher creates a new SnapshotPublisher
func NewSnapshotPublisher(
	ledger repository.LedgerStore,
	store remote.ObjectStore,
	fs afero.Fs,
	settings RemoteSettings,
	logger *zap.Logger,
) *SnapshotPublisher {
	return &SnapshotPublisher{
		ledger:   ledger,
		store:    store,
		fs:       fs,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsurePublished uploads the current ledger and returns its reference.
// Concurrent calls share one upload. The shared upload is bounded by the
// remote timeout only; a caller whose ctx ends stops waiting for it without
// failing the others.
func (p *SnapshotPublisher) EnsurePublished(ctx context.Context) (remote.ObjectRef, error) {
	ch := p.group.DoChan("publish", func() (interface{}, error) {
		return p.upload(context.WithoutCancel(ctx), p.settings.SnapshotFileName)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrPublish, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.logger.Debug("publish shared with a concurrent caller")
		}
		return res.Val.(remote.ObjectRef), nil
	}
}

// upload encodes the ledger to a scratch file, then uploads it as name
func (p *SnapshotPublisher) upload(ctx context.Context, name string) (remote.ObjectRef, error) {
	snap, err := ExportLedger(ctx, p.ledger)
	if err != nil {
		return "", err
	}

	if err := p.fs.MkdirAll(p.settings.TempDir, 0o700); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	tmp, err := afero.TempFile(p.fs, p.settings.TempDir, "snapshot-*.json")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	defer p.fs.Remove(tmp.Name())

	if err := codec.Encode(tmp, snap); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}

	content, err := afero.ReadFile(p.fs, tmp.Name())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPublish, err)
	}

	rctx, cancel := p.settings.withTimeout(ctx)
	defer cancel()

	folder, err := p.store.GetOrCreateFolder(rctx, p.settings.FolderName)
	if err != nil {
		p.logger.Error("failed to get remote folder",
			zap.String("folder", p.settings.FolderName), zap.Error(err))
		return "", fmt.Errorf("%w: folder %q: %w", ErrPublish, p.settings.FolderName, err)
	}

	ref, err := p.store.Upload(rctx, name, content, codec.MimeType, folder)
	if err != nil {
		p.logger.Error("failed to upload snapshot",
			zap.String("folder", string(folder)), zap.Error(err))
		return "", fmt.Errorf("%w: upload %q: %w", ErrPublish, name, err)
	}

	p.logger.Info("snapshot published",
		zap.String("ref", string(ref)),
		zap.Int("records", snap.Size()))

	return ref, nil
}

// ExportLedger reads the whole local ledger into a snapshot
func ExportLedger(ctx context.Context, ledger repository.LedgerStore) (*models.LedgerSnapshot, error) {
	expenses, err := ledger.AllExpenses(ctx)
	if err != nil {
		return nil, storageError("read expenses", err)
	}
	categories, err := ledger.AllCategories(ctx)
	if err != nil {
		return nil, storageError("read categories", err)
	}
	budgets, err := ledger.AllBudgets(ctx)
	if err != nil {
		return nil, storageError("read budgets", err)
	}

	return &models.LedgerSnapshot{
		Expenses:   expenses,
		Categories: categories,
		Budgets:    budgets,
	}, nil
}
