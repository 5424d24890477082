package media

import (
	"fmt"
	"io"
)

const (
	// MaxAssetBytes caps how much of one object is read into memory.
	MaxAssetBytes int64 = 25 * 1024 * 1024
)

// ReadAllWithLimit drains reader and fails with ErrAssetTooLarge once more
// than maxBytes are available. A non-positive maxBytes uses MaxAssetBytes.
func ReadAllWithLimit(reader io.Reader, maxBytes int64) ([]byte, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if maxBytes <= 0 {
		maxBytes = MaxAssetBytes
	}
	data, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: max %d bytes", ErrAssetTooLarge, maxBytes)
	}
	return data, nil
}
