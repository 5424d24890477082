// Package gateway implements agent.ModelClient over the agent gateway's
// server-sent events endpoint.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/memohai/lexdesk/internal/agent"
	"github.com/memohai/lexdesk/internal/retry"
)

// Event names emitted by the gateway.
const (
	EventStepStart = "step_start"
	EventTextDelta = "text_delta"
	EventError     = "error"
	EventDone      = "done"
)

// CodeMediaFetch is the error code the gateway uses when the model could not
// download an image part.
const CodeMediaFetch = "media_fetch"

type streamRequest struct {
	ThreadID string                 `json:"thread_id"`
	Messages []agent.HistoryMessage `json:"messages"`
	Input    streamInput            `json:"input"`
}

type streamInput struct {
	Text   string            `json:"text"`
	Images []agent.ImagePart `json:"images,omitempty"`
}

type envelope struct {
	Type    string `json:"type"`
	Delta   string `json:"delta"`
	Code    string `json:"code"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Client streams chat completions from the gateway.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a gateway client. timeout bounds the whole stream; zero means
// no client-side limit.
func New(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  log.With(slog.String("service", "agent_gateway")),
	}
}

// Stream posts the request and replays the event stream onto hooks.
func (c *Client) Stream(ctx context.Context, req agent.Request, hooks agent.Hooks) error {
	history := req.History
	if history == nil {
		history = []agent.HistoryMessage{}
	}
	body, err := json.Marshal(streamRequest{
		ThreadID: req.ThreadID,
		Messages: history,
		Input:    streamInput{Text: req.Text, Images: req.Images},
	})
	if err != nil {
		return err
	}
	url := c.baseURL + "/chat/stream"
	c.logger.Debug("gateway stream request",
		slog.String("thread_id", req.ThreadID),
		slog.Int("images", len(req.Images)),
		slog.Int("history", len(history)),
	)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Error("gateway stream connect failed", slog.String("url", url), slog.Any("error", err))
		return retry.Retryable(fmt.Errorf("agent gateway connect: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("agent gateway error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(errBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Retryable(err)
		}
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	currentEvent := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			currentEvent = ""
			continue
		}
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return nil
		}
		var env envelope
		if err := json.Unmarshal([]byte(data), &env); err != nil {
			c.logger.Warn("skip malformed gateway event", slog.String("event", currentEvent), slog.Any("error", err))
			continue
		}
		eventType := currentEvent
		if eventType == "" {
			eventType = env.Type
		}
		switch eventType {
		case EventStepStart:
			hooks.OnStepStart(ctx)
		case EventTextDelta:
			if err := hooks.OnChunk(ctx, env.Delta); err != nil {
				return err
			}
		case EventError:
			streamErr := toError(env)
			hooks.OnError(ctx, streamErr)
			return streamErr
		case EventDone:
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return retry.Retryable(fmt.Errorf("read gateway stream: %w", err))
	}
	return nil
}

func toError(env envelope) error {
	if env.Code == CodeMediaFetch {
		return &agent.MediaFetchError{Status: env.Status, Message: agent.RedactURLs(env.Message)}
	}
	msg := strings.TrimSpace(agent.RedactURLs(env.Message))
	if msg == "" {
		msg = "unknown error"
	}
	if env.Code != "" {
		return fmt.Errorf("agent gateway stream error [%s]: %s", env.Code, msg)
	}
	return fmt.Errorf("agent gateway stream error: %s", msg)
}
