// Package signer mints download URLs for stored media using HS256 tokens
// that the HTTP server's media handler verifies.
package signer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/memohai/lexdesk/internal/auth"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/retry"
	"github.com/memohai/lexdesk/internal/storage"
)

// JWTSigner implements media.Signer.
type JWTSigner struct {
	store   storage.Store
	secret  string
	baseURL string
}

// New creates a signer. baseURL is the externally reachable server origin.
func New(store storage.Store, secret, baseURL string) (*JWTSigner, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("media signing secret is required")
	}
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.Parse(base); err != nil || base == "" {
		return nil, fmt.Errorf("invalid public base url %q", baseURL)
	}
	return &JWTSigner{store: store, secret: secret, baseURL: base}, nil
}

// SignURL verifies the object exists and returns {base}/media/{token}.
func (s *JWTSigner) SignURL(ctx context.Context, ref media.Reference, ttl time.Duration) (string, error) {
	if s.store != nil {
		if _, err := s.store.Stat(ctx, ref.Location); err != nil {
			if errors.Is(err, media.ErrObjectNotFound) || errors.Is(err, media.ErrPathTraversal) {
				return "", err
			}
			return "", retry.Retryable(fmt.Errorf("%w: %w", media.ErrProviderUnavailable, err))
		}
	}
	token, _, err := auth.GenerateMediaToken(auth.MediaToken{
		Bucket:      ref.Location.Bucket,
		ObjectKey:   ref.Location.ObjectKey,
		ContentType: ref.ContentType,
	}, s.secret, ttl)
	if err != nil {
		return "", fmt.Errorf("sign media token: %w", err)
	}
	return s.baseURL + "/media/" + url.PathEscape(token), nil
}
