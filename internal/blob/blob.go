package blob

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/blagoySimandov/certmapper/internal/gcs"
)

// Store holds uploaded workbooks and their exports. Missing objects are reported with an error
// wrapping fs.ErrNotExist.
type Store interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	Close() error
}

// New picks the store from the URI: gs://bucket/prefix for Cloud Storage, anything else
// (optionally file://) is a local directory.
func New(ctx context.Context, uri string) (Store, error) {
	if rest, ok := strings.CutPrefix(uri, "gs://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return nil, fmt.Errorf("invalid storage uri %q: missing bucket", uri)
		}
		return gcs.NewBucket(ctx, bucket, prefix)
	}
	return NewDirStore(strings.TrimPrefix(uri, "file://"))
}

type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	return &DirStore{root: root}, nil
}

func (d *DirStore) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	return f, nil
}

func (d *DirStore) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	p, err := d.path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create dir for %s: %w", name, err)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", name, err)
	}
	return f, nil
}

func (d *DirStore) Close() error {
	return nil
}

func (d *DirStore) path(name string) (string, error) {
	local := filepath.FromSlash(name)
	if !filepath.IsLocal(local) {
		return "", fmt.Errorf("invalid object name %q: %w", name, fs.ErrInvalid)
	}
	return filepath.Join(d.root, local), nil
}
