package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/remote"
)

const backupPrefix = "personalbudget_backup_"

// BackupName returns the object name of a backup taken at t
func BackupName(t time.Time) string {
	return backupPrefix + t.Format("20060102_150405") + ".json"
}

// Backup uploads the current ledger under a timestamped name. Backups are
// never overwritten by later publishes.
func (p *SnapshotPublisher) Backup(ctx context.Context) (remote.ObjectRef, string, error) {
	name := BackupName(p.now().UTC())

	ref, err := p.upload(ctx, name)
	if err != nil {
		return "", "", err
	}

	p.logger.Info("backup created", zap.String("ref", string(ref)))
	return ref, name, nil
}

// ListBackups lists backups in the snapshot folder, newest first
func (p *SnapshotPublisher) ListBackups(ctx context.Context) ([]remote.ObjectMetadata, error) {
	rctx, cancel := p.settings.withTimeout(ctx)
	defer cancel()

	folder, err := p.store.GetOrCreateFolder(rctx, p.settings.FolderName)
	if err != nil {
		return nil, fmt.Errorf("%w: folder %q: %w", ErrDownload, p.settings.FolderName, err)
	}

	backups, err := p.store.List(rctx, folder, backupPrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrDownload, folder, err)
	}

	// Names embed the timestamp, so name order is time order
	sort.SliceStable(backups, func(i, j int) bool { return backups[i].Name > backups[j].Name })

	return backups, nil
}
