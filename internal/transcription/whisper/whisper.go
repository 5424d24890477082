// Package whisper implements transcription.Transcriber against an
// OpenAI-compatible /audio/transcriptions endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/memohai/lexdesk/internal/media"
	"github.com/memohai/lexdesk/internal/retry"
	"github.com/memohai/lexdesk/internal/storage"
)

// Config configures the client.
type Config struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// Client reads audio from the object store and uploads it for transcription.
type Client struct {
	store    storage.Store
	baseURL  string
	apiKey   string
	model    string
	language string
	http     *http.Client
	logger   *slog.Logger
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// New creates a whisper client.
func New(log *slog.Logger, store storage.Store, cfg Config) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		store:    store,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		language: cfg.Language,
		http:     &http.Client{Timeout: cfg.Timeout},
		logger:   log.With(slog.String("service", "whisper")),
	}
}

// Transcribe uploads the object at loc. Network errors, 429 and 5xx are
// marked retryable.
func (c *Client) Transcribe(ctx context.Context, loc media.StorageLocation) (string, error) {
	rc, err := c.store.Open(ctx, loc)
	if err != nil {
		if errors.Is(err, media.ErrObjectNotFound) {
			return "", err
		}
		return "", retry.Retryable(err)
	}
	data, err := media.ReadAllWithLimit(rc, media.MaxAssetBytes)
	rc.Close()
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", path.Base(loc.ObjectKey))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	_ = writer.WriteField("model", c.model)
	_ = writer.WriteField("response_format", "json")
	if c.language != "" {
		_ = writer.WriteField("language", c.language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("whisper request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		err := fmt.Errorf("whisper status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Retryable(err)
		}
		return "", err
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	c.logger.Debug("transcription complete",
		slog.String("bucket", loc.Bucket),
		slog.String("object_key", loc.ObjectKey),
		slog.Int("text_len", len(result.Text)),
		slog.String("language", result.Language),
	)
	return strings.TrimSpace(result.Text), nil
}
