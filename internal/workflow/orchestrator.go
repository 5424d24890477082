package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/memohai/lexdesk/internal/agent"
	"github.com/memohai/lexdesk/internal/conversation"
	"github.com/memohai/lexdesk/internal/identity"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/prune"
	"github.com/memohai/lexdesk/internal/retry"
	"github.com/memohai/lexdesk/internal/transcription"
)

const defaultHistoryLimit = 20

// Deps are the collaborators of a run. History is optional.
type Deps struct {
	Transcription TranscriptionPipeline
	Identity      IdentityResolver
	Credentials   CredentialIssuer
	Engine        ResponseEngine
	Delivery      agent.Delivery
	History       conversation.Store
}

// Options tune retries and history. HistoryClip bounds each replayed entry.
type Options struct {
	Retry        retry.Policy
	HistoryLimit int
	HistoryClip  prune.Config
}

// Orchestrator runs workflows. It holds no per-run state, so Run may be
// called concurrently.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New creates an Orchestrator.
func New(log *slog.Logger, deps Deps, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.HistoryLimit == 0 {
		opts.HistoryLimit = defaultHistoryLimit
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: log.With(slog.String("service", "workflow")),
	}
}

// runState is confined to one Run call.
type runState struct {
	runID  string
	msg    InboundMessage
	state  State
	logger *slog.Logger

	partition  media.Partition
	transcript string
	prompt     string
	dest       identity.Destination
	history    []agent.HistoryMessage
	resolved   []media.Reference
	recorded   bool
	outcome    agent.Outcome
}

func (s *runState) transition(to State) {
	if s.state.Terminal() {
		s.logger.Warn("ignored transition from terminal state",
			slog.String("from", string(s.state)),
			slog.String("to", string(to)),
		)
		return
	}
	s.logger.Info("workflow transition",
		slog.String("from", string(s.state)),
		slog.String("to", string(to)),
	)
	s.state = to
}

// Run processes msg to a terminal state. On Failed the returned error is a
// *StepError wrapping the cause; identity failures satisfy
// errors.Is(err, identity.ErrUnlinkedChannel).
func (o *Orchestrator) Run(ctx context.Context, msg InboundMessage) (Result, error) {
	s := &runState{
		runID: uuid.NewString(),
		msg:   msg,
		state: StateReceived,
	}
	s.logger = o.logger.With(
		slog.String("run_id", s.runID),
		slog.String("thread_id", msg.ThreadID),
		slog.String("correlation_id", msg.CorrelationID),
	)
	started := time.Now()
	s.logger.Info("workflow started",
		slog.Int("media_items", len(msg.MediaItems)),
	)

	in := interpreter{policy: o.opts.Retry, logger: s.logger}
	if err := in.run(ctx, s, o.steps()); err != nil {
		return o.fail(s, err)
	}

	final := StateCompleted
	if s.outcome.Degraded {
		final = StateDegradedCompleted
	}
	s.transition(final)
	o.recordReply(ctx, s)
	s.logger.Info("workflow finished",
		slog.String("state", string(final)),
		slog.Int("delivered", s.outcome.Delivered),
		slog.Duration("elapsed", time.Since(started)),
	)
	return Result{RunID: s.runID, State: final, Degraded: s.outcome.Degraded}, nil
}

func (o *Orchestrator) fail(s *runState, err error) (Result, error) {
	s.transition(StateFailed)
	if errors.Is(err, identity.ErrUnlinkedChannel) {
		s.logger.Warn("workflow failed", slog.String("error", agent.RedactURLs(err.Error())))
	} else {
		s.logger.Error("workflow failed", slog.String("error", agent.RedactURLs(err.Error())))
	}
	return Result{RunID: s.runID, State: StateFailed}, err
}

func (o *Orchestrator) steps() []step {
	return []step{
		{Name: "classify_media", Reaches: StateMediaResolved, Run: o.classify},
		{Name: "transcribe_audio", Reaches: StateTranscribed, Run: o.transcribe},
		{Name: "compose_prompt", Reaches: StatePromptComposed, Run: o.compose},
		{Name: "resolve_identity", Run: o.resolveIdentity},
		{Name: "load_history", Run: o.loadHistory},
		{Name: "stream_reply", Run: o.streamReply},
	}
}

func (o *Orchestrator) classify(_ context.Context, s *runState) error {
	s.partition = media.Classify(s.msg.MediaItems)
	return nil
}

func (o *Orchestrator) transcribe(ctx context.Context, s *runState) error {
	if o.deps.Transcription == nil || len(s.partition.Audio) == 0 {
		s.transcript = ""
		return nil
	}
	s.transcript = o.deps.Transcription.Run(ctx, s.msg.ThreadID, s.partition.Audio)
	return nil
}

func (o *Orchestrator) compose(_ context.Context, s *runState) error {
	s.prompt = transcription.AppendToPrompt(s.msg.RawText, s.transcript)
	return nil
}

func (o *Orchestrator) resolveIdentity(ctx context.Context, s *runState) error {
	dest, err := o.deps.Identity.Resolve(ctx, s.msg.ThreadID)
	if err != nil {
		if errors.Is(err, identity.ErrUnlinkedChannel) {
			return Fatal(err)
		}
		return err
	}
	s.dest = dest
	return nil
}

func (o *Orchestrator) loadHistory(ctx context.Context, s *runState) error {
	if o.deps.History == nil || o.opts.HistoryLimit < 0 {
		return nil
	}
	recent, err := o.deps.History.Recent(ctx, s.msg.ThreadID, o.opts.HistoryLimit)
	if err != nil {
		s.logger.Warn("load history failed", slog.Any("error", err))
		return nil
	}
	s.history = make([]agent.HistoryMessage, 0, len(recent))
	for _, m := range recent {
		if m.Text == "" {
			continue
		}
		s.history = append(s.history, agent.HistoryMessage{Role: m.Role, Text: prune.Clip(m.Text, o.opts.HistoryClip)})
	}
	return nil
}

// issueCredentials mints fresh credentials for every model attempt. They
// live only in the request built from them.
func (o *Orchestrator) issueCredentials(ctx context.Context, s *runState) []agent.ImagePart {
	if o.deps.Credentials == nil || len(s.partition.Images) == 0 {
		s.resolved = nil
		return nil
	}
	images := o.deps.Credentials.IssueAll(ctx, s.msg.ThreadID, media.References(s.partition.Images))
	parts := make([]agent.ImagePart, 0, len(images))
	s.resolved = make([]media.Reference, 0, len(images))
	for _, img := range images {
		parts = append(parts, agent.ImagePart{URL: img.Credential.URL, ContentType: img.Credential.ContentType})
		s.resolved = append(s.resolved, img.Reference)
	}
	return parts
}

// recordInbound appends the user message once per run with the references
// of the images that resolved.
func (o *Orchestrator) recordInbound(ctx context.Context, s *runState) {
	if o.deps.History == nil || s.recorded {
		return
	}
	s.recorded = true
	if _, err := o.deps.History.Append(ctx, conversation.Message{
		ThreadID: s.msg.ThreadID,
		Role:     conversation.RoleUser,
		Text:     s.prompt,
		Media:    s.resolved,
	}); err != nil {
		s.logger.Warn("append inbound message failed", slog.Any("error", err))
	}
}

// streamReply is retried only while nothing has reached the user.
func (o *Orchestrator) streamReply(ctx context.Context, s *runState) error {
	req := agent.Request{
		ThreadID: s.msg.ThreadID,
		Text:     s.prompt,
		Images:   o.issueCredentials(ctx, s),
		History:  s.history,
	}
	if s.state != StateStreaming {
		s.transition(StateStreaming)
	}
	out, err := o.deps.Engine.Stream(ctx, req, agent.NewDeliveryListener(o.deps.Delivery, s.dest.Address))
	s.outcome = out
	o.recordInbound(ctx, s)
	if err != nil {
		if out.Delivered > 0 {
			return Fatal(err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) recordReply(ctx context.Context, s *runState) {
	if o.deps.History == nil || s.outcome.Reply == "" {
		return
	}
	if _, err := o.deps.History.Append(ctx, conversation.Message{
		ThreadID: s.msg.ThreadID,
		Role:     conversation.RoleAssistant,
		Text:     s.outcome.Reply,
	}); err != nil {
		s.logger.Warn("append reply failed", slog.Any("error", err))
	}
}
