package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/codec"
	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/remote"
	"github.com/rongwang/ledger-share/internal/repository"
)

// SyncResult describes one successful sync from a peer
type SyncResult struct {
	PeerID   string
	Merged   models.MergeStats
	SyncedAt time.Time
}

// SyncOutcome is the result of syncing one peer during SyncAll
type SyncOutcome struct {
	PeerID string
	Result *SyncResult
	Err    error
}

// SyncEngine pulls peers' published snapshots and merges them into the
// local ledger.
type SyncEngine struct {
	repo     repository.Repository
	store    remote.ObjectStore
	fs       afero.Fs
	settings RemoteSettings
	policy   MergePolicy
	feed     *PeerFeed
	logger   *zap.Logger

	now func() time.Time
}

// NewSyncEngine creates a new SyncEngine. A nil policy means ReplaceByID.
func NewSyncEngine(
	repo repository.Repository,
	store remote.ObjectStore,
	fs afero.Fs,
	settings RemoteSettings,
	policy MergePolicy,
	feed *PeerFeed,
	logger *zap.Logger,
) *SyncEngine {
	if policy == nil {
		policy = ReplaceByID{}
	}
	return &SyncEngine{
		repo:     repo,
		store:    store,
		fs:       fs,
		settings: settings,
		policy:   policy,
		feed:     feed,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SyncFrom downloads the peer's snapshot and merges it. Download, decode,
// merge and the sync timestamp update run strictly in that order; the merge
// and the timestamp share one transaction, so a failure changes nothing.
// The caller is responsible for checking that a role is held. A peer removed
// from the directory meanwhile keeps the merge and gets no timestamp.
func (e *SyncEngine) SyncFrom(ctx context.Context, peer *models.SharedPeer) (*SyncResult, error) {
	if peer == nil {
		return nil, invalidArgument("peer is required")
	}
	if !peer.HasRemoteRef() {
		return nil, fmt.Errorf("%w: %s", ErrNoRemoteRef, peer.PeerID)
	}
	ref := remote.ObjectRef(*peer.TheirRemoteSnapshotRef)
	log := e.logger.With(zap.String("peer", peer.PeerID), zap.String("ref", string(ref)))

	snap, err := e.fetch(ctx, ref)
	if err != nil {
		log.Warn("failed to fetch peer snapshot", zap.Error(err))
		return nil, err
	}

	result := &SyncResult{PeerID: peer.PeerID, SyncedAt: e.now()}
	err = e.repo.InTx(ctx, func(tx repository.Repository) error {
		stats, err := e.policy.Merge(ctx, tx, snap)
		if err != nil {
			return fmt.Errorf("merge: %w", err)
		}
		result.Merged = stats

		current, err := tx.GetPeer(ctx, peer.PeerID)
		if err != nil {
			return err
		}
		if current == nil {
			log.Warn("peer left the directory during sync, timestamp not recorded")
			return nil
		}
		current.LastSyncTimestamp = &result.SyncedAt
		return tx.UpdatePeer(ctx, current)
	})
	if errors.Is(err, repository.ErrNotFound) {
		err = ErrPeerNotFound
	}
	if err != nil {
		log.Error("failed to apply peer snapshot", zap.Error(err))
		return nil, storageError("apply snapshot", err)
	}

	log.Info("peer synced", zap.Int("records", result.Merged.Total()))
	e.feed.Notify(ctx)

	return result, nil
}

// fetch downloads ref into a scratch file and decodes it. The scratch file is
// removed on every path, including cancellation.
func (e *SyncEngine) fetch(ctx context.Context, ref remote.ObjectRef) (*models.LedgerSnapshot, error) {
	if err := e.fs.MkdirAll(e.settings.TempDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	tmp, err := afero.TempFile(e.fs, e.settings.TempDir, "peer-*.json")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	defer e.fs.Remove(tmp.Name())
	defer tmp.Close()

	rctx, cancel := e.settings.withTimeout(ctx)
	data, err := e.store.Download(rctx, ref)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDownload, ref, err)
	}

	if _, err := tmp.Write(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownload, err)
	}

	snap, err := codec.Decode(tmp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return snap, nil
}

// SyncPeer loads a peer by id, checks that I hold a role over its data and
// syncs from it.
func (e *SyncEngine) SyncPeer(ctx context.Context, peerID string) (*SyncResult, error) {
	peer, err := e.repo.GetPeer(ctx, peerID)
	if err != nil {
		return nil, storageError("load peer", err)
	}
	if peer == nil {
		return nil, ErrPeerNotFound
	}
	if !peer.CanReadTheirData() {
		return nil, fmt.Errorf("%w: %s", ErrNoAccess, peerID)
	}
	return e.SyncFrom(ctx, peer)
}

// SyncAll syncs every peer I hold a role for and that has published a
// snapshot, one at a time in peer id order. A failing peer does not stop
// the others. The returned error is only set when the peer list cannot be
// loaded or ctx is cancelled.
func (e *SyncEngine) SyncAll(ctx context.Context) ([]SyncOutcome, error) {
	peers, err := e.repo.ListPeers(ctx)
	if err != nil {
		return nil, storageError("list peers", err)
	}

	outcomes := []SyncOutcome{}
	for i := range peers {
		peer := &peers[i]
		if !peer.CanReadTheirData() || !peer.HasRemoteRef() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		result, err := e.SyncFrom(ctx, peer)
		outcomes = append(outcomes, SyncOutcome{PeerID: peer.PeerID, Result: result, Err: err})
	}

	return outcomes, nil
}
