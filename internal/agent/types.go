// Package agent drives the streaming model call for one reply and classifies
// the errors it raises.
package agent

import (
	"context"
)

// ImagePart is an image the model may download while answering.
type ImagePart struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

// HistoryMessage is prior thread context passed to the model.
type HistoryMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Request is the composed multi-part user message.
type Request struct {
	ThreadID string
	Text     string
	Images   []ImagePart
	History  []HistoryMessage
}

// Hooks receive model lifecycle events. Implementations are called
// synchronously and in order by the model client.
type Hooks interface {
	OnStepStart(ctx context.Context)
	// OnChunk receives one completed text increment. A returned error aborts
	// the stream.
	OnChunk(ctx context.Context, text string) error
	OnError(ctx context.Context, err error)
}

// ModelClient runs one streaming inference. It returns when the stream ends
// or fails.
type ModelClient interface {
	Stream(ctx context.Context, req Request, hooks Hooks) error
}

// Listener observes a run at its two hook points.
type Listener interface {
	OnStepStart(ctx context.Context) error
	OnChunk(ctx context.Context, text string) error
}

// Outcome describes how a stream ended.
type Outcome struct {
	// Degraded is set when a media-fetch error was absorbed.
	Degraded bool
	// Delivered counts text increments handed to the listener.
	Delivered int
	// Reply is the concatenation of delivered increments.
	Reply string
	// Cause is the absorbed media-fetch error, if any.
	Cause error
}
