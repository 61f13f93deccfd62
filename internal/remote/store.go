// Package remote holds the blob stores that carry ledger snapshots between
// peers who share no direct network channel.
package remote

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
)

// ErrNotFound is returned by Download when the object does not exist
var ErrNotFound = errors.New("remote object not found")

// FolderRef identifies a folder-like namespace in the store
type FolderRef string

// ObjectRef is the opaque handle of an uploaded object. Peers exchange it
// (inside invitations) to fetch each other's snapshots.
type ObjectRef string

// ObjectMetadata describes an object returned by List
type ObjectMetadata struct {
	Ref        ObjectRef
	Name       string
	MimeType   string
	ModifiedAt *time.Time
}

// ObjectStore is the remote blob storage used to publish and fetch snapshots.
// Uploading a name that already exists in the folder replaces its content.
type ObjectStore interface {
	GetOrCreateFolder(ctx context.Context, name string) (FolderRef, error)
	Upload(ctx context.Context, name string, content []byte, mimeType string, folder FolderRef) (ObjectRef, error)
	Download(ctx context.Context, ref ObjectRef) ([]byte, error)
	// List returns the objects in folder whose name contains filter; an
	// empty filter matches everything.
	List(ctx context.Context, folder FolderRef, filter string) ([]ObjectMetadata, error)
}

// Namespace turns an owner email into the top-level prefix that keeps each
// owner's folders apart when several owners share one root or bucket
func Namespace(owner string) string {
	return strings.ToLower(strings.TrimSpace(owner))
}

func folderPath(namespace, name string) (FolderRef, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if namespace == "" {
		return FolderRef(name), nil
	}
	if err := validName(namespace); err != nil {
		return "", fmt.Errorf("invalid namespace: %w", err)
	}
	return FolderRef(path.Join(namespace, name)), nil
}
