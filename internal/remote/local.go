package remote

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// LocalStore keeps objects as files under a root directory. It backs
// self-hosted setups where peers share a synced or network directory, and
// runs on afero.MemMapFs in tests.
//
// Folders are sub-directories of root/namespace; an ObjectRef is
// "namespace/folder/name" and resolves from the root, so any owner sharing
// the root can download it.
type LocalStore struct {
	fs        afero.Fs
	root      string
	namespace string
}

// NewLocalStore creates a store rooted at root on fs. Folders it creates live
// under namespace, normally Namespace(owner email); an empty namespace puts
// them directly under root.
func NewLocalStore(fs afero.Fs, root, namespace string) *LocalStore {
	return &LocalStore{fs: fs, root: root, namespace: namespace}
}

func (s *LocalStore) GetOrCreateFolder(ctx context.Context, name string) (FolderRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	folder, err := folderPath(s.namespace, name)
	if err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(path.Join(s.root, string(folder)), 0o755); err != nil {
		return "", fmt.Errorf("failed to create folder %q: %w", folder, err)
	}
	return folder, nil
}

func (s *LocalStore) Upload(ctx context.Context, name string, content []byte, mimeType string, folder FolderRef) (ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validName(name); err != nil {
		return "", err
	}

	dir := path.Join(s.root, string(folder))
	if ok, err := afero.DirExists(s.fs, dir); err != nil || !ok {
		return "", fmt.Errorf("folder %q does not exist", folder)
	}

	// Write then rename so a concurrent Download never sees half a file
	target := path.Join(dir, name)
	tmp := target + ".partial"
	if err := afero.WriteFile(s.fs, tmp, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %q: %w", name, err)
	}
	if err := s.fs.Rename(tmp, target); err != nil {
		s.fs.Remove(tmp)
		return "", fmt.Errorf("failed to store %q: %w", name, err)
	}

	return ObjectRef(path.Join(string(folder), name)), nil
}

func (s *LocalStore) Download(ctx context.Context, ref ObjectRef) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	clean := path.Clean("/" + string(ref))
	data, err := afero.ReadFile(s.fs, path.Join(s.root, clean))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("failed to read %q: %w", ref, err)
	}

	return data, nil
}

func (s *LocalStore) List(ctx context.Context, folder FolderRef, filter string) ([]ObjectMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := afero.ReadDir(s.fs, path.Join(s.root, string(folder)))
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %q: %w", folder, err)
	}

	objects := []ObjectMetadata{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasSuffix(name, ".partial") || !strings.Contains(name, filter) {
			continue
		}
		modified := entry.ModTime().UTC()
		objects = append(objects, ObjectMetadata{
			Ref:        ObjectRef(path.Join(string(folder), name)),
			Name:       name,
			MimeType:   mimeTypeFor(name),
			ModifiedAt: &modified,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Name < objects[j].Name })

	return objects, nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}

func mimeTypeFor(name string) string {
	if t := mime.TypeByExtension(path.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
