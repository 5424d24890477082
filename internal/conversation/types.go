// Package conversation stores the append-only message history of a thread.
package conversation

import (
	"context"
	"time"

	"github.com/memohai/lexdesk/internal/media"
)

// Role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one history entry. Media holds references only; credentials
// are never part of history.
type Message struct {
	ID        int64             `json:"id"`
	ThreadID  string            `json:"thread_id"`
	Role      string            `json:"role"`
	Text      string            `json:"text"`
	Media     []media.Reference `json:"media,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store appends and reads thread history.
type Store interface {
	Append(ctx context.Context, msg Message) (Message, error)
	// Recent returns up to limit latest messages, oldest first.
	Recent(ctx context.Context, threadID string, limit int) ([]Message, error)
}
