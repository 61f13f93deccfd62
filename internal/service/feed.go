package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/rongwang/ledger-share/internal/models"
	"github.com/rongwang/ledger-share/internal/repository"
)

// PeerFeed pushes the list of peers to subscribers. A subscriber first gets
// the current list and then a fresh list after every change. Slow subscribers
// only ever see the latest list.
type PeerFeed struct {
	repo   repository.SharingDirectory
	logger *zap.Logger

	mu   sync.Mutex
	subs map[chan []models.SharedPeer]struct{}
}

// NewPeerFeed creates a feed backed by the sharing directory
func NewPeerFeed(repo repository.SharingDirectory, logger *zap.Logger) *PeerFeed {
	return &PeerFeed{
		repo:   repo,
		logger: logger,
		subs:   make(map[chan []models.SharedPeer]struct{}),
	}
}

// Watch subscribes to the feed until ctx is cancelled, then closes the channel
func (f *PeerFeed) Watch(ctx context.Context) (<-chan []models.SharedPeer, error) {
	ch := make(chan []models.SharedPeer, 1)

	f.mu.Lock()
	peers, err := f.repo.ListPeers(ctx)
	if err != nil {
		f.mu.Unlock()
		return nil, storageError("list peers", err)
	}
	ch <- peers
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, ch)
		close(ch)
		f.mu.Unlock()
	}()

	return ch, nil
}

// Notify reloads the peer list and hands it to every subscriber
func (f *PeerFeed) Notify(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.subs) == 0 {
		return
	}

	// The change already happened; a caller cancelling now must not hide it
	peers, err := f.repo.ListPeers(context.WithoutCancel(ctx))
	if err != nil {
		f.logger.Warn("failed to refresh peer feed", zap.Error(err))
		return
	}

	for ch := range f.subs {
		select {
		case ch <- peers:
		default:
			// Replace the undelivered list with the newer one
			select {
			case <-ch:
			default:
			}
			ch <- peers
		}
	}
}

func (f *PeerFeed) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
