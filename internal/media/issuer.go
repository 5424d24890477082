package media

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/lexdesk/internal/retry"
)

// Signer mints a time-limited URL scoped to one stored object.
type Signer interface {
	SignURL(ctx context.Context, ref Reference, ttl time.Duration) (string, error)
}

// TTLFunc returns the credential lifetime. It is called once per issuance so
// configuration changes apply without a restart.
type TTLFunc func() time.Duration

// IssuanceError reports a credential that could not be minted for one image.
type IssuanceError struct {
	Location StorageLocation
	Err      error
}

func (e *IssuanceError) Error() string {
	return fmt.Sprintf("issue credential for %s: %v", e.Location, e.Err)
}

func (e *IssuanceError) Unwrap() error { return e.Err }

// Issuer turns image references into ephemeral credentials right before the
// model call. Credentials are returned to the caller and never retained.
type Issuer struct {
	signer Signer
	ttl    TTLFunc
	policy retry.Policy
	logger *slog.Logger
}

// NewIssuer creates an Issuer. A nil ttl uses the default lifetime.
func NewIssuer(log *slog.Logger, signer Signer, ttl TTLFunc, policy retry.Policy) *Issuer {
	if log == nil {
		log = slog.Default()
	}
	if ttl == nil {
		ttl = func() time.Duration { return 600 * time.Second }
	}
	return &Issuer{
		signer: signer,
		ttl:    ttl,
		policy: policy,
		logger: log.With(slog.String("service", "media_issuer")),
	}
}

// Issue mints one credential. Transient signer failures are retried.
func (i *Issuer) Issue(ctx context.Context, ref Reference) (Credential, error) {
	if i.signer == nil {
		return Credential{}, &IssuanceError{Location: ref.Location, Err: ErrProviderUnavailable}
	}
	if !strings.HasPrefix(strings.ToLower(ref.ContentType), "image/") {
		return Credential{}, &IssuanceError{Location: ref.Location, Err: ErrNotImage}
	}
	ttl := i.ttl()
	var url string
	err := retry.Do(ctx, i.policy, i.logger, "sign_url", func(ctx context.Context) error {
		signed, err := i.signer.SignURL(ctx, ref, ttl)
		if err != nil {
			return err
		}
		url = signed
		return nil
	})
	if err != nil {
		return Credential{}, &IssuanceError{Location: ref.Location, Err: err}
	}
	return Credential{URL: url, ContentType: ref.ContentType}, nil
}

// IssueAll issues credentials for every reference concurrently. A failing
// image is logged and omitted; the rest keep their original order.
func (i *Issuer) IssueAll(ctx context.Context, threadID string, refs []Reference) []ResolvedImage {
	if len(refs) == 0 {
		return nil
	}
	slots := make([]*ResolvedImage, len(refs))
	var g errgroup.Group
	for idx, ref := range refs {
		g.Go(func() error {
			cred, err := i.Issue(ctx, ref)
			if err != nil {
				i.logger.Warn("credential issuance failed, omitting image",
					slog.String("thread_id", threadID),
					slog.String("bucket", ref.Location.Bucket),
					slog.String("object_key", ref.Location.ObjectKey),
					slog.String("content_type", ref.ContentType),
					slog.Any("error", err),
				)
				return nil
			}
			slots[idx] = &ResolvedImage{Reference: ref, Credential: cred}
			return nil
		})
	}
	_ = g.Wait()

	resolved := make([]ResolvedImage, 0, len(refs))
	for _, slot := range slots {
		if slot != nil {
			resolved = append(resolved, *slot)
		}
	}
	return resolved
}
