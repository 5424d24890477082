package media

import "errors"

var (
	// ErrObjectNotFound indicates the referenced object does not exist.
	ErrObjectNotFound = errors.New("media object not found")
	// ErrProviderUnavailable indicates the storage provider is not configured or reachable.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrAssetTooLarge indicates the payload exceeds the configured max asset size.
	ErrAssetTooLarge = errors.New("media asset too large")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrNotImage indicates a credential was requested for a non-image reference.
	ErrNotImage = errors.New("credentials are only issued for images")
)
