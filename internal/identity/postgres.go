package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/memohai/lexdesk/internal/retry"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory reads users and threads tables.
type PostgresDirectory struct {
	db Querier
}

// NewPostgresDirectory creates a Directory over a pgx pool.
func NewPostgresDirectory(db Querier) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ResolveOwner(ctx context.Context, threadID string) (string, error) {
	const query = `SELECT owner_user_id FROM threads WHERE id = $1`
	var userID string
	if err := d.db.QueryRow(ctx, query, threadID).Scan(&userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrOwnerNotFound
		}
		return "", retry.Retryable(fmt.Errorf("query thread owner: %w", err))
	}
	return userID, nil
}

func (d *PostgresDirectory) GetVerifiedChannelAddress(ctx context.Context, userID string) (string, error) {
	const query = `SELECT channel_address, channel_verified FROM users WHERE id = $1`
	var (
		address  *string
		verified bool
	)
	if err := d.db.QueryRow(ctx, query, userID).Scan(&address, &verified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", retry.Retryable(fmt.Errorf("query channel address: %w", err))
	}
	if address == nil || !verified {
		return "", nil
	}
	return *address, nil
}
