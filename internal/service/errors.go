package service

import (
	"errors"
	"fmt"

	"github.com/rongwang/ledger-share/internal/codec"
)

// Errors returned by the sharing services. They are wrapped with context, so
// test them with errors.Is.
var (
	ErrSnapshotNotReady  = errors.New("snapshot not ready: publish the ledger first")
	ErrInvalidInvitation = errors.New("invitation invalid or already processed")
	ErrPublish           = errors.New("failed to publish snapshot")
	ErrNoRemoteRef       = errors.New("peer has no published snapshot")
	ErrDownload          = errors.New("failed to download snapshot")
	ErrCorruptSnapshot   = codec.ErrCorruptSnapshot
	ErrStorage           = errors.New("local store error")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrNoAccess          = errors.New("no role held over this peer's data")
	ErrInvalidArgument   = errors.New("invalid argument")
)

var classified = []error{
	ErrSnapshotNotReady,
	ErrInvalidInvitation,
	ErrPublish,
	ErrNoRemoteRef,
	ErrDownload,
	ErrCorruptSnapshot,
	ErrStorage,
	ErrPeerNotFound,
	ErrNoAccess,
	ErrInvalidArgument,
}

// storageError wraps a local-store failure unless it already carries one of
// the service errors (for example when returned from inside a transaction).
func storageError(op string, err error) error {
	for _, target := range classified {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func invalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
