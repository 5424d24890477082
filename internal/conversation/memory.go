package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	threads map[string][]Message
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: map[string][]Message{}}
}

func (s *MemoryStore) Append(_ context.Context, msg Message) (Message, error) {
	if strings.TrimSpace(msg.ThreadID) == "" {
		return Message{}, fmt.Errorf("thread id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	msg.ID = s.nextID
	msg.CreatedAt = time.Now().UTC()
	s.threads[msg.ThreadID] = append(s.threads[msg.ThreadID], msg)
	return msg, nil
}

func (s *MemoryStore) Recent(_ context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.threads[threadID]
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	out := make([]Message, len(items))
	copy(out, items)
	return out, nil
}
