package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the S3-compatible operations used for source reports
// and recommendation exports.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

// DirStorage implements ObjectStorage on a local directory. Keys are slash
// separated paths below the root.
type DirStorage struct {
	root string
}

// NewDirStorage returns a DirStorage rooted at root, creating it if needed.
func NewDirStorage(root string) (*DirStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed creating storage root %s", root)
	}
	return &DirStorage{root: root}, nil
}

func (d *DirStorage) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", errors.Errorf("invalid object key %q", key)
	}
	return filepath.Join(d.root, clean), nil
}

func (d *DirStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(d.root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list %s failed", prefix)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (d *DirStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	src, err := d.path(key)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "failed reading %s", key)
	}
	return writeFile(destPath, data)
}

func (d *DirStorage) UploadObject(ctx context.Context, key string, data []byte, contentType string) error {
	dest, err := d.path(key)
	if err != nil {
		return err
	}
	return writeFile(dest, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "failed creating directory for %s", path)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed writing %s", path)
	}
	return nil
}

var _ ObjectStorage = (*DirStorage)(nil)
