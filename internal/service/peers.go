package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/repository"
)

// PeerService manages SharedPeer entries directly, outside the invitation flow
type PeerService struct {
	repo   repository.Repository
	feed   *PeerFeed
	logger *zap.Logger
}

// NewPeerService creates a new PeerService
func NewPeerService(repo repository.Repository, feed *PeerFeed, logger *zap.Logger) *PeerService {
	return &PeerService{
		repo:   repo,
		feed:   feed,
		logger: logger,
	}
}

// AddSharedPeer creates or replaces a peer. The last sync time of an existing
// peer is kept.
func (s *PeerService) AddSharedPeer(
	ctx context.Context,
	peerID string,
	roleGivenByMe *models.Role,
	theirSnapshotRef *string,
	myRoleForTheirData *models.Role,
) (*models.SharedPeer, error) {
	peerID = strings.TrimSpace(peerID)
	if peerID == "" {
		return nil, invalidArgument("peer id is required")
	}
	if roleGivenByMe != nil && !roleGivenByMe.Valid() {
		return nil, invalidArgument("unknown role %d", int(*roleGivenByMe))
	}
	if myRoleForTheirData != nil && !myRoleForTheirData.Valid() {
		return nil, invalidArgument("unknown role %d", int(*myRoleForTheirData))
	}
	if theirSnapshotRef != nil && strings.TrimSpace(*theirSnapshotRef) == "" {
		theirSnapshotRef = nil
	}

	peer := &models.SharedPeer{
		PeerID:                 peerID,
		RoleGivenByMe:          roleGivenByMe,
		TheirRemoteSnapshotRef: theirSnapshotRef,
		MyRoleForTheirData:     myRoleForTheirData,
	}

	err := s.repo.InTx(ctx, func(tx repository.Repository) error {
		existing, err := tx.GetPeer(ctx, peerID)
		if err != nil {
			return err
		}
		if existing != nil {
			peer.LastSyncTimestamp = existing.LastSyncTimestamp
		}
		return tx.UpsertPeer(ctx, peer)
	})
	if err != nil {
		return nil, storageError("save peer", err)
	}

	s.logger.Info("peer added", zap.String("peer", peerID))
	s.feed.Notify(ctx)

	return peer, nil
}

// UpdateRole changes the role I grant the peer over my data. A nil role
// revokes it.
func (s *PeerService) UpdateRole(ctx context.Context, peerID string, role *models.Role) (*models.SharedPeer, error) {
	if role != nil && !role.Valid() {
		return nil, invalidArgument("unknown role %d", int(*role))
	}

	var peer *models.SharedPeer
	err := s.repo.InTx(ctx, func(tx repository.Repository) error {
		var err error
		peer, err = tx.GetPeer(ctx, peerID)
		if err != nil {
			return err
		}
		if peer == nil {
			return ErrPeerNotFound
		}

		peer.RoleGivenByMe = role
		return tx.UpdatePeer(ctx, peer)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPeerNotFound
	}
	if err != nil {
		return nil, storageError("update peer", err)
	}

	s.logger.Info("peer role updated", zap.String("peer", peerID))
	s.feed.Notify(ctx)

	return peer, nil
}

// RemovePeer deletes the peer. Ledger records already merged from it stay.
func (s *PeerService) RemovePeer(ctx context.Context, peerID string) error {
	peer, err := s.repo.GetPeer(ctx, peerID)
	if err != nil {
		return storageError("load peer", err)
	}
	if peer == nil {
		return ErrPeerNotFound
	}

	if err := s.repo.RemovePeer(ctx, peerID); err != nil {
		return storageError("remove peer", err)
	}

	s.logger.Info("peer removed", zap.String("peer", peerID))
	s.feed.Notify(ctx)

	return nil
}

// GetPeer returns the peer or ErrPeerNotFound
func (s *PeerService) GetPeer(ctx context.Context, peerID string) (*models.SharedPeer, error) {
	peer, err := s.repo.GetPeer(ctx, peerID)
	if err != nil {
		return nil, storageError("load peer", err)
	}
	if peer == nil {
		return nil, ErrPeerNotFound
	}
	return peer, nil
}

func (s *PeerService) ListPeers(ctx context.Context) ([]models.SharedPeer, error) {
	peers, err := s.repo.ListPeers(ctx)
	if err != nil {
		return nil, storageError("list peers", err)
	}
	return peers, nil
}

// WatchPeers streams the peer list, starting with the current one, until ctx
// is cancelled.
func (s *PeerService) WatchPeers(ctx context.Context) (<-chan []models.SharedPeer, error) {
	return s.feed.Watch(ctx)
}
