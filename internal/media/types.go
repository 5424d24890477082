// Package media describes inbound attachments and the transient references
// and credentials derived from them while a reply is being produced.
package media

import (
	"log/slog"
	"strings"
)

// MediaType classifies the kind of media asset.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
	MediaTypeOther MediaType = "other"
)

// StorageLocation addresses one object in the object store.
type StorageLocation struct {
	Bucket    string `json:"bucket" validate:"required"`
	ObjectKey string `json:"object_key" validate:"required"`
}

// String renders the location as bucket/key for logs.
func (l StorageLocation) String() string {
	return l.Bucket + "/" + l.ObjectKey
}

// Item is an attachment descriptor as reported by the messaging gateway.
type Item struct {
	Location    StorageLocation `json:"storage_location" validate:"required"`
	ContentType string          `json:"content_type" validate:"required"`
	SizeBytes   int64           `json:"size_bytes" validate:"gte=0"`
}

// Kind classifies the item by its content type prefix.
func (i Item) Kind() MediaType {
	ct := strings.ToLower(strings.TrimSpace(i.ContentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(ct, "audio/"):
		return MediaTypeAudio
	default:
		return MediaTypeOther
	}
}

// Reference returns the item's identity without its size.
func (i Item) Reference() Reference {
	return Reference{Location: i.Location, ContentType: i.ContentType}
}

// Reference is the minimal identity of an attachment passed between stages.
// It is never stored on its own; history rows embed it by value.
type Reference struct {
	Location    StorageLocation `json:"storage_location"`
	ContentType string          `json:"content_type"`
}

// Credential is a short-lived URL granting read access to one object. It
// lives only for the model invocation that uses it.
type Credential struct {
	URL         string
	ContentType string
}

// ResolvedImage pairs an image reference with the credential issued for it.
type ResolvedImage struct {
	Reference  Reference
	Credential Credential
}

// LogValue keeps the URL out of structured logs.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(slog.String("content_type", c.ContentType), slog.Bool("issued", c.URL != ""))
}
