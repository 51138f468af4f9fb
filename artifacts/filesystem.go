package artifacts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FilesystemStore keeps artifacts below a local folder.
type FilesystemStore struct {
	root string
}

var _ ObjectStore = (*FilesystemStore)(nil)

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "[NewFilesystemStore] failed to create root")
	}
	return &FilesystemStore{root: root}, nil
}

// Save writes to a temporary file first so readers never see a partial artifact.
func (f *FilesystemStore) Save(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	path, err := f.pathFor(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return errors.Wrap(err, "[FilesystemStore Save] mkdir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return errors.Wrap(err, "[FilesystemStore Save] create temp")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return errors.Wrap(err, "[FilesystemStore Save] write")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "[FilesystemStore Save] close")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "[FilesystemStore Save] rename")
}

func (f *FilesystemStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", errors.Errorf("[FilesystemStore] invalid key %q", key)
	}
	return filepath.Join(f.root, clean), nil
}
