package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// DriveStore implements ObjectStore on Google Drive. Objects are Drive files
// and ObjectRef is the Drive file id. Uploading an existing name in a folder
// updates that file in place, so its id stays stable across publishes.
type DriveStore struct {
	files *drive.FilesService
}

// NewDriveStore creates a Drive-backed store. With an empty credentialsFile
// the client falls back to Application Default Credentials.
func NewDriveStore(ctx context.Context, credentialsFile string) (*DriveStore, error) {
	opts := []option.ClientOption{option.WithScopes(drive.DriveFileScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("drive.NewService: %w", err)
	}

	return &DriveStore{files: srv.Files}, nil
}

func (s *DriveStore) GetOrCreateFolder(ctx context.Context, name string) (FolderRef, error) {
	query := fmt.Sprintf("mimeType='%s' and name='%s' and trashed=false", folderMimeType, escapeQuery(name))
	list, err := s.files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up folder %q: %w", name, err)
	}
	if len(list.Files) > 0 {
		return FolderRef(list.Files[0].Id), nil
	}

	created, err := s.files.Create(&drive.File{Name: name, MimeType: folderMimeType}).
		Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", name, err)
	}

	return FolderRef(created.Id), nil
}

func (s *DriveStore) Upload(ctx context.Context, name string, content []byte, mimeType string, folder FolderRef) (ObjectRef, error) {
	existing, err := s.findByName(ctx, name, folder)
	if err != nil {
		return "", err
	}

	media := googleapi.ContentType(mimeType)
	if existing != "" {
		updated, err := s.files.Update(existing, &drive.File{}).
			Media(bytes.NewReader(content), media).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("failed to update %q: %w", name, err)
		}
		return ObjectRef(updated.Id), nil
	}

	meta := &drive.File{Name: name, MimeType: mimeType}
	if folder != "" {
		meta.Parents = []string{string(folder)}
	}
	created, err := s.files.Create(meta).Media(bytes.NewReader(content), media).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload %q: %w", name, err)
	}

	return ObjectRef(created.Id), nil
}

func (s *DriveStore) Download(ctx context.Context, ref ObjectRef) ([]byte, error) {
	resp, err := s.files.Get(string(ref)).Context(ctx).Download()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to download %q: %w", ref, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", ref, err)
	}

	return data, nil
}

func (s *DriveStore) List(ctx context.Context, folder FolderRef, filter string) ([]ObjectMetadata, error) {
	query := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(string(folder)))
	if filter != "" {
		query += fmt.Sprintf(" and name contains '%s'", escapeQuery(filter))
	}

	objects := []ObjectMetadata{}
	err := s.files.List().Q(query).Spaces("drive").
		Fields("nextPageToken, files(id, name, mimeType, modifiedTime)").
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				meta := ObjectMetadata{Ref: ObjectRef(f.Id), Name: f.Name, MimeType: f.MimeType}
				if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
					meta.ModifiedAt = &t
				}
				objects = append(objects, meta)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %q: %w", folder, err)
	}

	return objects, nil
}

func (s *DriveStore) findByName(ctx context.Context, name string, folder FolderRef) (string, error) {
	query := fmt.Sprintf("name='%s' and trashed=false", escapeQuery(name))
	if folder != "" {
		query += fmt.Sprintf(" and '%s' in parents", escapeQuery(string(folder)))
	}

	list, err := s.files.List().Q(query).Spaces("drive").Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to look up %q: %w", name, err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	return list.Files[0].Id, nil
}

// escapeQuery quotes a value for use inside a single-quoted Drive query string
func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
