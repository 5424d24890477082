// Package fsstore implements storage.Store on a local directory tree laid
// out as <root>/<bucket>/<object_key>.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/storage"
)

// Provider stores objects below a root directory.
type Provider struct {
	root string
}

// New creates a filesystem store rooted at root, creating it when missing.
func New(root string) (*Provider, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Provider{root: abs}, nil
}

// Put writes the object, creating the bucket directory as needed.
func (p *Provider) Put(_ context.Context, loc media.StorageLocation, reader io.Reader) error {
	dest, err := p.hostPath(loc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Open returns a reader for the object.
func (p *Provider) Open(_ context.Context, loc media.StorageLocation) (io.ReadCloser, error) {
	dest, err := p.hostPath(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", media.ErrObjectNotFound, loc)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

// Stat reports size and modification time.
func (p *Provider) Stat(_ context.Context, loc media.StorageLocation) (storage.ObjectInfo, error) {
	dest, err := p.hostPath(loc)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := os.Stat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("%w: %s", media.ErrObjectNotFound, loc)
		}
		return storage.ObjectInfo{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return storage.ObjectInfo{}, fmt.Errorf("%w: %s", media.ErrObjectNotFound, loc)
	}
	return storage.ObjectInfo{Location: loc, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// hostPath maps a location onto <root>/<bucket>/<key> and rejects anything
// that would land outside the bucket.
func (p *Provider) hostPath(loc media.StorageLocation) (string, error) {
	bucket := strings.TrimSpace(loc.Bucket)
	key := strings.TrimSpace(loc.ObjectKey)
	if bucket == "" || key == "" {
		return "", fmt.Errorf("invalid storage location: %q", loc.String())
	}
	if strings.ContainsAny(bucket, `/\`) || bucket == "." || bucket == ".." {
		return "", fmt.Errorf("%w: bucket %q", media.ErrPathTraversal, bucket)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) {
		return "", fmt.Errorf("absolute key is forbidden: %s", key)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", media.ErrPathTraversal, key)
	}
	bucketRoot := filepath.Join(p.root, bucket)
	joined := filepath.Join(bucketRoot, clean)
	if !strings.HasPrefix(joined, bucketRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", media.ErrPathTraversal, key)
	}
	return joined, nil
}
