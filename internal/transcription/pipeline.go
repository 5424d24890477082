// Package transcription turns audio attachments into prompt text.
package transcription

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/retry"
)

// PromptLabel introduces transcribed audio inside the composed prompt.
const PromptLabel = "Transcripción del audio: "

// Transcriber converts one stored audio object into text.
type Transcriber interface {
	Transcribe(ctx context.Context, loc media.StorageLocation) (string, error)
}

// Pipeline transcribes all audio items of a message concurrently.
type Pipeline struct {
	transcriber Transcriber
	policy      retry.Policy
	logger      *slog.Logger
}

// NewPipeline creates a Pipeline. A nil transcriber yields empty text for
// every item.
func NewPipeline(log *slog.Logger, transcriber Transcriber, policy retry.Policy) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		transcriber: transcriber,
		policy:      policy,
		logger:      log.With(slog.String("service", "transcription")),
	}
}

// Run transcribes audio items and joins the non-empty results with a blank
// line, in item order. Failed items contribute nothing. The empty string is
// returned both when no audio was attached and when every item failed.
func (p *Pipeline) Run(ctx context.Context, threadID string, audio []media.Item) string {
	if len(audio) == 0 {
		return ""
	}
	texts := make([]string, len(audio))
	var g errgroup.Group
	for i, item := range audio {
		g.Go(func() error {
			texts[i] = p.transcribe(ctx, threadID, item)
			return nil
		})
	}
	_ = g.Wait()

	parts := make([]string, 0, len(texts))
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

func (p *Pipeline) transcribe(ctx context.Context, threadID string, item media.Item) string {
	if p.transcriber == nil {
		return ""
	}
	var text string
	err := retry.Do(ctx, p.policy, p.logger, "transcribe", func(ctx context.Context) error {
		out, err := p.transcriber.Transcribe(ctx, item.Location)
		if err != nil {
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		p.logger.Error("transcription failed",
			slog.String("thread_id", threadID),
			slog.String("bucket", item.Location.Bucket),
			slog.String("object_key", item.Location.ObjectKey),
			slog.String("content_type", item.ContentType),
			slog.Any("error", err),
		)
		return ""
	}
	return text
}

// AppendToPrompt adds the combined transcription to the raw message text.
// The prompt is returned unchanged when combined is empty.
func AppendToPrompt(rawText, combined string) string {
	if combined == "" {
		return rawText
	}
	return rawText + "\n\n" + PromptLabel + combined
}
