package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeListener struct {
	events    []string
	chunks    []string
	typingErr error
	chunkErr  error
}

func (l *fakeListener) OnStepStart(context.Context) error {
	l.events = append(l.events, "step")
	return l.typingErr
}

func (l *fakeListener) OnChunk(_ context.Context, text string) error {
	l.events = append(l.events, "chunk:"+text)
	if l.chunkErr != nil {
		return l.chunkErr
	}
	l.chunks = append(l.chunks, text)
	return nil
}

// scriptedModel replays a fixed sequence of hook calls.
type scriptedModel struct {
	steps []func(ctx context.Context, hooks Hooks) error
	req   Request
}

func (m *scriptedModel) Stream(ctx context.Context, req Request, hooks Hooks) error {
	m.req = req
	for _, step := range m.steps {
		if err := step(ctx, hooks); err != nil {
			return err
		}
	}
	return nil
}

func stepStart() func(context.Context, Hooks) error {
	return func(ctx context.Context, h Hooks) error { h.OnStepStart(ctx); return nil }
}

func chunk(text string) func(context.Context, Hooks) error {
	return func(ctx context.Context, h Hooks) error { return h.OnChunk(ctx, text) }
}

func hookError(err error) func(context.Context, Hooks) error {
	return func(ctx context.Context, h Hooks) error { h.OnError(ctx, err); return nil }
}

func fail(err error) func(context.Context, Hooks) error {
	return func(context.Context, Hooks) error { return err }
}

func TestEngine_StreamsIncrementsInOrder(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{steps: []func(context.Context, Hooks) error{
		stepStart(), chunk("Respuesta"), stepStart(), chunk(""), chunk(" final"),
	}}
	l := &fakeListener{}
	out, err := NewEngine(nil, model).Stream(context.Background(), Request{ThreadID: "telegram:1", Text: "hola"}, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"step", "chunk:Respuesta", "step", "chunk: final"}, l.events)
	assert.False(t, out.Degraded)
	assert.Equal(t, 2, out.Delivered)
	assert.Equal(t, "Respuesta final", out.Reply)
}

func TestEngine_TypingFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{steps: []func(context.Context, Hooks) error{stepStart(), chunk("ok")}}
	l := &fakeListener{typingErr: errors.New("typing down")}
	out, err := NewEngine(nil, model).Stream(context.Background(), Request{}, l)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, l.chunks)
	assert.Equal(t, 1, out.Delivered)
}

func TestEngine_MediaFetchErrorIsAbsorbed(t *testing.T) {
	t.Parallel()

	mediaErr := &MediaFetchError{Status: 404, Message: "image not found"}
	tests := []struct {
		name  string
		steps []func(context.Context, Hooks) error
	}{
		{name: "outer call", steps: []func(context.Context, Hooks) error{stepStart(), chunk("Parcial"), fail(mediaErr)}},
		{name: "error hook", steps: []func(context.Context, Hooks) error{stepStart(), hookError(mediaErr)}},
		{name: "hook then outer", steps: []func(context.Context, Hooks) error{hookError(mediaErr), fail(fmt.Errorf("stream: %w", mediaErr))}},
		{name: "repeated hook", steps: []func(context.Context, Hooks) error{hookError(mediaErr), hookError(mediaErr), hookError(mediaErr)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := &fakeListener{}
			out, err := NewEngine(nil, &scriptedModel{steps: tt.steps}).Stream(context.Background(), Request{ThreadID: "telegram:1"}, l)
			require.NoError(t, err)
			assert.True(t, out.Degraded)
			assert.True(t, errors.Is(out.Cause, ErrMediaFetch))

			apologies := 0
			for _, c := range l.chunks {
				if c == ApologyMessage {
					apologies++
				}
			}
			assert.LessOrEqual(t, apologies, 1)
			assert.Equal(t, 1, apologies)
		})
	}
}

func TestEngine_ApologyFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	model := &scriptedModel{steps: []func(context.Context, Hooks) error{fail(&MediaFetchError{Message: "bad image"})}}
	l := &fakeListener{chunkErr: errors.New("gateway down")}
	out, err := NewEngine(nil, model).Stream(context.Background(), Request{}, l)
	require.NoError(t, err)
	assert.True(t, out.Degraded)
}

func TestEngine_OtherErrorsAreReturned(t *testing.T) {
	t.Parallel()

	boom := errors.New("model overloaded")
	tests := []struct {
		name  string
		steps []func(context.Context, Hooks) error
	}{
		{name: "outer call", steps: []func(context.Context, Hooks) error{chunk("Hola"), fail(boom)}},
		{name: "error hook", steps: []func(context.Context, Hooks) error{chunk("Hola"), hookError(boom)}},
		{name: "error hook before media failure", steps: []func(context.Context, Hooks) error{
			chunk("Hola"), hookError(boom), fail(&MediaFetchError{Status: 400, Message: "bad image"}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := &fakeListener{}
			out, err := NewEngine(nil, &scriptedModel{steps: tt.steps}).Stream(context.Background(), Request{}, l)
			require.ErrorIs(t, err, boom)
			assert.Equal(t, 1, out.Delivered)
			assert.NotContains(t, l.chunks, ApologyMessage)
		})
	}
}

func TestEngine_SendFailureAbortsStream(t *testing.T) {
	t.Parallel()

	sendErr := errors.New("chat not found")
	model := &scriptedModel{steps: []func(context.Context, Hooks) error{chunk("a"), chunk("b")}}
	l := &fakeListener{chunkErr: sendErr}
	out, err := NewEngine(nil, model).Stream(context.Background(), Request{}, l)
	require.ErrorIs(t, err, sendErr)
	assert.Equal(t, 0, out.Delivered)
	assert.Equal(t, []string{"chunk:a"}, l.events)
}

func TestMediaFetchError_RedactsURLs(t *testing.T) {
	t.Parallel()

	err := &MediaFetchError{Status: 400, Message: "Error while downloading https://files.example.com/media/eyJhbGciOi.x.y?a=1"}
	assert.Equal(t, "media fetch failed (status 400): Error while downloading [redacted-url]", err.Error())
	assert.True(t, IsMediaFetchError(errors.New(RedactURLs("Error while downloading http://h/p"))))
	assert.Equal(t, "no urls here", RedactURLs("no urls here"))
}

func TestIsMediaFetchError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{err: nil, want: false},
		{err: ErrMediaFetch, want: true},
		{err: fmt.Errorf("wrapped: %w", &MediaFetchError{Status: 403}), want: true},
		{err: errors.New("Error while downloading image"), want: true},
		{err: errors.New("Invalid image format"), want: true},
		{err: errors.New("rate limit exceeded"), want: false},
		{err: context.DeadlineExceeded, want: false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsMediaFetchError(tt.err), "%v", tt.err)
	}
}

type fakeDelivery struct {
	sends  []string
	typing []string
}

func (d *fakeDelivery) Send(_ context.Context, address, body string) error {
	d.sends = append(d.sends, address+"|"+body)
	return nil
}

func (d *fakeDelivery) Typing(_ context.Context, address string) error {
	d.typing = append(d.typing, address)
	return nil
}

func TestDeliveryListener(t *testing.T) {
	t.Parallel()

	d := &fakeDelivery{}
	l := NewDeliveryListener(d, "telegram:1")
	require.NoError(t, l.OnStepStart(context.Background()))
	require.NoError(t, l.OnChunk(context.Background(), "hola"))
	assert.Equal(t, []string{"telegram:1"}, d.typing)
	assert.Equal(t, []string{"telegram:1|hola"}, d.sends)
}
