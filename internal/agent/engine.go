package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ApologyMessage is sent once when an attachment could not be used.
const ApologyMessage = "Lo siento, no pude procesar una de las imágenes que enviaste. Por favor, inténtalo de nuevo."

// Engine streams a reply and absorbs media-fetch failures.
type Engine struct {
	model  ModelClient
	logger *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(log *slog.Logger, model ModelClient) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		model:  model,
		logger: log.With(slog.String("service", "response_engine")),
	}
}

// Stream runs the model for req and forwards hook points to listener.
// Media-fetch errors end the run without error and Degraded set; any other
// error is returned. The Outcome is filled in both cases.
func (e *Engine) Stream(ctx context.Context, req Request, listener Listener) (Outcome, error) {
	if e.model == nil {
		return Outcome{}, errors.New("model client is not configured")
	}
	r := &run{engine: e, threadID: req.ThreadID, listener: listener}
	err := e.model.Stream(ctx, req, r)
	if r.hookErr != nil && (err == nil || IsMediaFetchError(err)) {
		err = r.hookErr
	}
	if err != nil {
		if IsMediaFetchError(err) {
			r.absorb(ctx, err)
		} else {
			e.logger.Error("model stream failed",
				slog.String("thread_id", req.ThreadID),
				slog.Int("delivered", r.outcome.Delivered),
				redactedError(err),
			)
			return r.result(), err
		}
	}
	return r.result(), nil
}

// run holds the state of one Stream call. The model client calls its hooks
// from a single goroutine.
type run struct {
	engine   *Engine
	threadID string
	listener Listener

	outcome    Outcome
	reply      strings.Builder
	hookErr    error
	apologized bool
}

func (r *run) OnStepStart(ctx context.Context) {
	if err := r.listener.OnStepStart(ctx); err != nil {
		r.engine.logger.Debug("typing indicator failed",
			slog.String("thread_id", r.threadID),
			slog.Any("error", err),
		)
	}
}

func (r *run) OnChunk(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := r.listener.OnChunk(ctx, text); err != nil {
		return err
	}
	r.outcome.Delivered++
	r.reply.WriteString(text)
	return nil
}

func (r *run) OnError(ctx context.Context, err error) {
	if err == nil {
		return
	}
	if IsMediaFetchError(err) {
		r.absorb(ctx, err)
		return
	}
	if r.hookErr == nil {
		r.hookErr = err
	}
}

func (r *run) absorb(ctx context.Context, err error) {
	r.outcome.Degraded = true
	if r.outcome.Cause == nil {
		r.outcome.Cause = err
	}
	if r.apologized {
		return
	}
	r.apologized = true
	attrs := []any{slog.String("thread_id", r.threadID)}
	var mf *MediaFetchError
	if errors.As(err, &mf) && mf.Status > 0 {
		attrs = append(attrs, slog.Int("status", mf.Status))
	}
	r.engine.logger.Warn("media fetch failed during stream", append(attrs, redactedError(err))...)
	if sendErr := r.listener.OnChunk(ctx, ApologyMessage); sendErr != nil {
		r.engine.logger.Warn("apology send failed",
			slog.String("thread_id", r.threadID),
			slog.Any("error", sendErr),
		)
	}
}

func (r *run) result() Outcome {
	out := r.outcome
	out.Reply = r.reply.String()
	return out
}

func redactedError(err error) slog.Attr {
	return slog.String("error", RedactURLs(err.Error()))
}
