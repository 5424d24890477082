package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMediaFetch marks a failure of the model to download or decode an image.
var ErrMediaFetch = errors.New("media fetch failed")

// MediaFetchError is a model-side download failure for an image URL. Message
// may quote the URL; Error redacts it.
type MediaFetchError struct {
	Status  int
	Message string
}

func (e *MediaFetchError) Error() string {
	msg := RedactURLs(e.Message)
	if e.Status > 0 {
		return fmt.Sprintf("media fetch failed (status %d): %s", e.Status, msg)
	}
	return "media fetch failed: " + msg
}

const redactedURL = "[redacted-url]"

var urlPattern = regexp.MustCompile(`(?i)https?://[^\s"'<>]+`)

// RedactURLs replaces every http(s) URL in s. Signed media URLs are bearer
// credentials and must not reach logs.
func RedactURLs(s string) string {
	return urlPattern.ReplaceAllString(s, redactedURL)
}

func (e *MediaFetchError) Is(target error) bool {
	return target == ErrMediaFetch
}

// Messages providers use when an image URL cannot be fetched or parsed.
var mediaFetchMarkers = []string{
	"error while downloading",
	"failed to download",
	"invalid image",
	"unsupported image",
	"could not process image",
	"image_url",
	"invalid_image_url",
	"image could not be fetched",
}

// IsMediaFetchError is the single classifier used for both the model's error
// hook and errors returned from the stream call.
func IsMediaFetchError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMediaFetch) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range mediaFetchMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
