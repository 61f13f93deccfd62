package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStore implements ObjectStore on a Google Cloud Storage bucket.
// Folders are object-name prefixes under the owner's namespace and ObjectRef
// is the full object name.
type GCSStore struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	namespace string
}

// NewGCSStore creates a store on bucket whose folders live under namespace.
// With an empty credentialsFile the client falls back to Application Default
// Credentials.
func NewGCSStore(ctx context.Context, bucket, namespace, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}

	return &GCSStore{client: client, bucket: client.Bucket(bucket), namespace: namespace}, nil
}

// Close releases the underlying client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// GetOrCreateFolder only validates the name: prefixes exist implicitly
func (s *GCSStore) GetOrCreateFolder(ctx context.Context, name string) (FolderRef, error) {
	return folderPath(s.namespace, name)
}

func (s *GCSStore) Upload(ctx context.Context, name string, content []byte, mimeType string, folder FolderRef) (ObjectRef, error) {
	if err := validName(name); err != nil {
		return "", err
	}

	key := path.Join(string(folder), name)
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = mimeType
	if _, err := w.Write(content); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to upload %q: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", key, err)
	}

	return ObjectRef(key), nil
}

func (s *GCSStore) Download(ctx context.Context, ref ObjectRef) ([]byte, error) {
	r, err := s.bucket.Object(string(ref)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to download %q: %w", ref, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", ref, err)
	}

	return data, nil
}

func (s *GCSStore) List(ctx context.Context, folder FolderRef, filter string) ([]ObjectMetadata, error) {
	prefix := string(folder) + "/"
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})

	objects := []ObjectMetadata{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %q: %w", folder, err)
		}

		name := strings.TrimPrefix(attrs.Name, prefix)
		if strings.Contains(name, "/") || !strings.Contains(name, filter) {
			continue
		}
		updated := attrs.Updated
		objects = append(objects, ObjectMetadata{
			Ref:        ObjectRef(attrs.Name),
			Name:       name,
			MimeType:   attrs.ContentType,
			ModifiedAt: &updated,
		})
	}

	return objects, nil
}
