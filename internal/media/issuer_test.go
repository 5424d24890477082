package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lexdesk/internal/retry"
)

type fakeSigner struct {
	mu    sync.Mutex
	fail  map[string]error
	ttls  []time.Duration
	calls map[string]int
}

func (s *fakeSigner) SignURL(_ context.Context, ref Reference, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[ref.Location.ObjectKey]++
	s.ttls = append(s.ttls, ttl)
	if err, ok := s.fail[ref.Location.ObjectKey]; ok {
		return "", err
	}
	return "https://files.test/media/" + ref.Location.ObjectKey, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() retry.Policy {
	return retry.Policy{Attempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func imageRef(key string) Reference {
	return Reference{Location: StorageLocation{Bucket: "chat", ObjectKey: key}, ContentType: "image/png"}
}

func TestIssueAll_OmitsFailedImageAndKeepsOrder(t *testing.T) {
	t.Parallel()

	signer := &fakeSigner{fail: map[string]error{"img-2": ErrObjectNotFound}}
	issuer := NewIssuer(quietLogger(), signer, nil, fastRetry())

	refs := []Reference{imageRef("img-1"), imageRef("img-2"), imageRef("img-3")}
	got := issuer.IssueAll(context.Background(), "telegram:1", refs)

	require.Len(t, got, 2)
	assert.Equal(t, refs[0], got[0].Reference)
	assert.Equal(t, refs[2], got[1].Reference)
	assert.Equal(t, "https://files.test/media/img-1", got[0].Credential.URL)
	assert.Equal(t, "image/png", got[1].Credential.ContentType)
}

func TestIssueAll_ReadsTTLPerIssuance(t *testing.T) {
	t.Parallel()

	var (
		mu  sync.Mutex
		ttl = 30 * time.Second
	)
	ttlFn := func() time.Duration {
		mu.Lock()
		defer mu.Unlock()
		return ttl
	}
	signer := &fakeSigner{}
	issuer := NewIssuer(quietLogger(), signer, ttlFn, fastRetry())

	issuer.IssueAll(context.Background(), "t", []Reference{imageRef("a")})
	mu.Lock()
	ttl = 90 * time.Second
	mu.Unlock()
	issuer.IssueAll(context.Background(), "t", []Reference{imageRef("b")})

	assert.Equal(t, []time.Duration{30 * time.Second, 90 * time.Second}, signer.ttls)
}

func TestIssue_RetriesTransientSignerError(t *testing.T) {
	t.Parallel()

	signer := &flakySigner{failures: 1}
	issuer := NewIssuer(quietLogger(), signer, nil, fastRetry())
	cred, err := issuer.Issue(context.Background(), imageRef("a"))
	require.NoError(t, err)
	assert.NotEmpty(t, cred.URL)
	assert.Equal(t, 2, signer.calls)
}

func TestIssue_RejectsNonImage(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(quietLogger(), &fakeSigner{}, nil, fastRetry())
	_, err := issuer.Issue(context.Background(), Reference{ContentType: "audio/ogg"})
	var ie *IssuanceError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestIssue_NoSigner(t *testing.T) {
	t.Parallel()

	issuer := NewIssuer(quietLogger(), nil, nil, fastRetry())
	_, err := issuer.Issue(context.Background(), imageRef("a"))
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestIssueAll_Empty(t *testing.T) {
	t.Parallel()
	issuer := NewIssuer(quietLogger(), &fakeSigner{}, nil, fastRetry())
	assert.Nil(t, issuer.IssueAll(context.Background(), "t", nil))
}

type flakySigner struct {
	failures int
	calls    int
}

func (s *flakySigner) SignURL(context.Context, Reference, time.Duration) (string, error) {
	s.calls++
	if s.calls <= s.failures {
		return "", retry.Retryable(errors.New("signer unavailable"))
	}
	return "https://files.test/ok", nil
}
