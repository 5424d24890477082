// Package storage defines the object store used for inbound attachments.
package storage

import (
	"context"
	"io"
	"time"

	"github.com/memohai/lexdesk/internal/media"
)

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Location media.StorageLocation
	Size     int64
	ModTime  time.Time
}

// Store abstracts object storage operations addressed by bucket and key.
type Store interface {
	// Put writes data under the given location.
	Put(ctx context.Context, loc media.StorageLocation, reader io.Reader) error
	// Open returns a reader for the object. Callers close it.
	Open(ctx context.Context, loc media.StorageLocation) (io.ReadCloser, error)
	// Stat reports object metadata, or media.ErrObjectNotFound.
	Stat(ctx context.Context, loc media.StorageLocation) (ObjectInfo, error)
}
