package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/memohai/lexdesk/internal/media"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps history in the thread_messages table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a history store.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, msg Message) (Message, error) {
	if strings.TrimSpace(msg.ThreadID) == "" {
		return Message{}, fmt.Errorf("thread id is required")
	}
	refs := msg.Media
	if refs == nil {
		refs = []media.Reference{}
	}
	payload, err := json.Marshal(refs)
	if err != nil {
		return Message{}, fmt.Errorf("encode media refs: %w", err)
	}
	const query = `
        INSERT INTO thread_messages (thread_id, role, text, media)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	if err := s.db.QueryRow(ctx, query, msg.ThreadID, msg.Role, msg.Text, payload).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("insert thread message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) Recent(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	const query = `
        SELECT id, thread_id, role, text, media, created_at FROM (
            SELECT id, thread_id, role, text, media, created_at
            FROM thread_messages WHERE thread_id = $1
            ORDER BY id DESC LIMIT $2
        ) recent ORDER BY id ASC`
	rows, err := s.db.Query(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query thread messages: %w", err)
	}
	defer rows.Close()

	var result []Message
	for rows.Next() {
		var (
			msg Message
			raw []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &msg.Role, &msg.Text, &raw, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &msg.Media); err != nil {
				return nil, fmt.Errorf("decode media refs: %w", err)
			}
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
