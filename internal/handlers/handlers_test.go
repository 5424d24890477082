package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/lexdesk/internal/auth"
	"github.com/memohai/lexdesk/internal/healthcheck"
	"github.com/memohai/lexdesk/internal/ingress"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/storage/providers/fsstore"
	"github.com/memohai/lexdesk/internal/workflow"
)

const testSecret = "handler-test-secret"

type recordingDispatcher struct {
	mu        sync.Mutex
	msgs      []workflow.InboundMessage
	duplicate bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg workflow.InboundMessage) ingress.Ticket {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.msgs = append(d.msgs, msg)
	id := msg.CorrelationID
	if id == "" {
		id = "generated"
	}
	return ingress.Ticket{CorrelationID: id, Duplicate: d.duplicate}
}

func serve(t *testing.T, h interface{ Register(*echo.Echo) }, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.Register(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestInboundHandler_Accepts(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{}
	h := NewInboundHandler(nil, d)
	body := `{"thread_id":" telegram:42 ","raw_text":"hola","correlation_id":"c-1",
		"media_items":[{"storage_location":{"bucket":"inbound","object_key":"a.jpg"},"content_type":"image/jpeg","size_bytes":10}]}`

	rec := serve(t, h, jsonRequest(http.MethodPost, "/inbound", body))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp inboundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.False(t, resp.Duplicate)
	assert.Equal(t, "c-1", resp.CorrelationID)

	require.Len(t, d.msgs, 1)
	assert.Equal(t, "telegram:42", d.msgs[0].ThreadID)
	require.Len(t, d.msgs[0].MediaItems, 1)
	assert.Equal(t, "a.jpg", d.msgs[0].MediaItems[0].Location.ObjectKey)
}

func TestInboundHandler_IdempotencyHeader(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{duplicate: true}
	req := jsonRequest(http.MethodPost, "/inbound", `{"thread_id":"telegram:1"}`)
	req.Header.Set("Idempotency-Key", "idem-1")

	rec := serve(t, NewInboundHandler(nil, d), req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp inboundResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Accepted)
	assert.True(t, resp.Duplicate)
	assert.Equal(t, "idem-1", resp.CorrelationID)
}

func TestInboundHandler_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"thread_id":`},
		{name: "missing thread", body: `{"raw_text":"hola"}`},
		{name: "blank thread", body: `{"thread_id":"   "}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := &recordingDispatcher{}
			rec := serve(t, NewInboundHandler(nil, d), jsonRequest(http.MethodPost, "/inbound", tc.body))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, d.msgs)
		})
	}
}

func TestInboundHandler_BadAttachmentStillDispatches(t *testing.T) {
	t.Parallel()

	d := &recordingDispatcher{}
	body := `{"thread_id":"telegram:1","raw_text":"hola","media_items":[
		{"storage_location":{"object_key":"k"},"content_type":"image/png"},
		{"storage_location":{"bucket":"b","object_key":"k2"}},
		{"storage_location":{"bucket":"b","object_key":"k3"},"content_type":"image/jpeg"}]}`

	rec := serve(t, NewInboundHandler(nil, d), jsonRequest(http.MethodPost, "/inbound", body))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, d.msgs, 1)
	assert.Equal(t, "hola", d.msgs[0].RawText)
}

func newMediaFixture(t *testing.T) (*MediaHandler, media.StorageLocation) {
	t.Helper()
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	loc := media.StorageLocation{Bucket: "inbound", ObjectKey: "2026/photo.jpg"}
	require.NoError(t, store.Put(context.Background(), loc, bytes.NewReader([]byte("jpeg-bytes"))))
	return NewMediaHandler(nil, store, testSecret), loc
}

func TestMediaHandler_ServesSignedObject(t *testing.T) {
	t.Parallel()

	h, loc := newMediaFixture(t)
	token, _, err := auth.GenerateMediaToken(auth.MediaToken{Bucket: loc.Bucket, ObjectKey: loc.ObjectKey, ContentType: "image/jpeg"}, testSecret, time.Minute)
	require.NoError(t, err)

	rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/media/"+token, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get(echo.HeaderContentType))
	assert.Equal(t, "private, no-store", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "jpeg-bytes", rec.Body.String())
}

func TestMediaHandler_Errors(t *testing.T) {
	t.Parallel()

	h, loc := newMediaFixture(t)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.MediaClaims{
		Bucket:    loc.Bucket,
		ObjectKey: loc.ObjectKey,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{auth.MediaAudience},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	foreign, _, err := auth.GenerateMediaToken(auth.MediaToken{Bucket: loc.Bucket, ObjectKey: loc.ObjectKey}, "other-secret", time.Minute)
	require.NoError(t, err)
	missing, _, err := auth.GenerateMediaToken(auth.MediaToken{Bucket: loc.Bucket, ObjectKey: "gone.jpg"}, testSecret, time.Minute)
	require.NoError(t, err)

	cases := []struct {
		name  string
		token string
		want  int
	}{
		{name: "garbage", token: "not-a-token", want: http.StatusUnauthorized},
		{name: "expired", token: expired, want: http.StatusUnauthorized},
		{name: "wrong secret", token: foreign, want: http.StatusUnauthorized},
		{name: "missing object", token: missing, want: http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := serve(t, h, httptest.NewRequest(http.MethodGet, "/media/"+tc.token, nil))
		assert.Equal(t, tc.want, rec.Code, tc.name)
	}
}

func TestPingHandler(t *testing.T) {
	t.Parallel()

	ok := NewPingHandler(nil, []healthcheck.Checker{
		healthcheck.Func("postgres", func(context.Context) error { return nil }),
	})
	rec := serve(t, ok, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, ok, httptest.NewRequest(http.MethodHead, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, ok, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	failing := NewPingHandler(nil, []healthcheck.Checker{
		healthcheck.Func("redis", func(context.Context) error { return errors.New("down") }),
	})
	rec = serve(t, failing, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis"`)
}
