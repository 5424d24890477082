// Package ingress accepts inbound messages, deduplicates them by correlation
// id and runs the workflow with bounded concurrency.
package ingress

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/memohai/lexdesk/internal/dedup"
	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/workflow"
)

// ErrDuplicate is returned by RunSync for an already claimed message.
var ErrDuplicate = errors.New("duplicate inbound message")

// Runner executes one workflow.
type Runner interface {
	Run(ctx context.Context, msg workflow.InboundMessage) (workflow.Result, error)
}

// Ticket acknowledges an accepted message.
type Ticket struct {
	CorrelationID string `json:"correlation_id"`
	Duplicate     bool   `json:"duplicate"`
}

// Dispatcher runs workflows on behalf of ingress transports.
type Dispatcher struct {
	runner   Runner
	claimer  dedup.Claimer
	validate *validator.Validate
	sem      chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher allowing maxConcurrency runs at once.
// A nil claimer disables deduplication.
func NewDispatcher(log *slog.Logger, runner Runner, claimer dedup.Claimer, maxConcurrency int) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Dispatcher{
		runner:   runner,
		claimer:  claimer,
		validate: validator.New(),
		sem:      make(chan struct{}, maxConcurrency),
		logger:   log.With(slog.String("service", "ingress")),
	}
}

// Dispatch claims msg and starts its workflow in the background. The run is
// detached from ctx so it outlives the request that delivered it.
func (d *Dispatcher) Dispatch(ctx context.Context, msg workflow.InboundMessage) Ticket {
	msg, fresh := d.claim(ctx, msg)
	if !fresh {
		return Ticket{CorrelationID: msg.CorrelationID, Duplicate: true}
	}
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_, _ = d.execute(runCtx, msg)
	}()
	return Ticket{CorrelationID: msg.CorrelationID}
}

// RunSync claims msg and runs it on the caller's goroutine. Duplicates
// return ErrDuplicate without running.
func (d *Dispatcher) RunSync(ctx context.Context, msg workflow.InboundMessage) (workflow.Result, error) {
	msg, fresh := d.claim(ctx, msg)
	if !fresh {
		return workflow.Result{}, ErrDuplicate
	}
	d.wg.Add(1)
	defer d.wg.Done()
	return d.execute(ctx, msg)
}

// Wait blocks until in-flight runs finish or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) execute(ctx context.Context, msg workflow.InboundMessage) (workflow.Result, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return workflow.Result{State: workflow.StateFailed}, ctx.Err()
	}
	defer func() { <-d.sem }()
	msg.MediaItems = d.dropMalformed(msg)
	return d.runner.Run(ctx, msg)
}

// dropMalformed keeps only attachments with a full storage location and a
// content type. A bad attachment never blocks the rest of the message.
func (d *Dispatcher) dropMalformed(msg workflow.InboundMessage) []media.Item {
	if len(msg.MediaItems) == 0 {
		return msg.MediaItems
	}
	kept := make([]media.Item, 0, len(msg.MediaItems))
	for i, item := range msg.MediaItems {
		if err := d.validate.Struct(item); err != nil {
			d.logger.Warn("dropping malformed media item",
				slog.String("correlation_id", msg.CorrelationID),
				slog.String("thread_id", msg.ThreadID),
				slog.Int("index", i),
				slog.Any("error", err),
			)
			continue
		}
		kept = append(kept, item)
	}
	return kept
}

// claim assigns a correlation id when missing and reports whether msg is
// new. Messages without an id are never deduplicated. A failing claimer
// lets the message through.
func (d *Dispatcher) claim(ctx context.Context, msg workflow.InboundMessage) (workflow.InboundMessage, bool) {
	if strings.TrimSpace(msg.CorrelationID) == "" {
		msg.CorrelationID = uuid.NewString()
		return msg, true
	}
	if d.claimer == nil {
		return msg, true
	}
	ok, err := d.claimer.Claim(ctx, msg.CorrelationID)
	if err != nil {
		d.logger.Warn("correlation claim failed, processing anyway",
			slog.String("correlation_id", msg.CorrelationID),
			slog.Any("error", err),
		)
		return msg, true
	}
	if !ok {
		d.logger.Info("duplicate inbound message",
			slog.String("correlation_id", msg.CorrelationID),
			slog.String("thread_id", msg.ThreadID),
		)
	}
	return msg, ok
}
