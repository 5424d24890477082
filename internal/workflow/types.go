// Package workflow runs one inbound message through media resolution,
// transcription, identity checks and the streamed reply.
package workflow

import (
	"context"

	"github.com/memohai/lexdesk/internal/agent"
	"github.com/memohai/lexdesk/internal/identity"
	"github.com/memohai/lexdesk/internal/media"
)

// State is a workflow run state.
type State string

const (
	StateReceived          State = "received"
	StateMediaResolved     State = "media_resolved"
	StateTranscribed       State = "transcribed"
	StatePromptComposed    State = "prompt_composed"
	StateStreaming         State = "streaming"
	StateCompleted         State = "completed"
	StateDegradedCompleted State = "degraded_completed"
	StateFailed            State = "failed"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateDegradedCompleted || s == StateFailed
}

// InboundMessage is one incoming chat event. It is not modified by a run.
type InboundMessage struct {
	ThreadID      string       `json:"thread_id" validate:"required"`
	RawText       string       `json:"raw_text"`
	MediaItems    []media.Item `json:"media_items"`
	CorrelationID string       `json:"correlation_id"`
}

// Result summarizes a finished run.
type Result struct {
	RunID    string `json:"run_id"`
	State    State  `json:"state"`
	Degraded bool   `json:"degraded"`
}

// TranscriptionPipeline turns audio items into combined text.
type TranscriptionPipeline interface {
	Run(ctx context.Context, threadID string, audio []media.Item) string
}

// IdentityResolver finds the verified destination for a thread.
type IdentityResolver interface {
	Resolve(ctx context.Context, threadID string) (identity.Destination, error)
}

// CredentialIssuer mints just-in-time credentials, omitting failed images.
type CredentialIssuer interface {
	IssueAll(ctx context.Context, threadID string, refs []media.Reference) []media.ResolvedImage
}

// ResponseEngine streams the reply.
type ResponseEngine interface {
	Stream(ctx context.Context, req agent.Request, listener agent.Listener) (agent.Outcome, error)
}
