// Package identity maps a conversation thread to the user who owns it and the
// verified address replies are delivered to.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/lexdesk/internal/channel"
)

var (
	ErrUnlinkedChannel = errors.New("unlinked channel")
	ErrOwnerNotFound   = errors.New("thread owner not found")
	ErrUserNotFound    = errors.New("user not found")
)

// Unlinked reasons.
const (
	ReasonUnrecognizedNamespace = "unrecognized namespace"
	ReasonOwnerNotFound         = "owner not found"
	ReasonUserNotFound          = "user record missing"
	ReasonNoVerifiedAddress     = "no verified channel address"
	ReasonInvalidAddress        = "invalid channel address"
)

// UnlinkedChannelError reports a thread that has no usable outbound address.
type UnlinkedChannelError struct {
	ThreadID string
	Reason   string
}

func (e *UnlinkedChannelError) Error() string {
	return fmt.Sprintf("unlinked channel for thread %q: %s", e.ThreadID, e.Reason)
}

func (e *UnlinkedChannelError) Is(target error) bool {
	return target == ErrUnlinkedChannel
}

// Directory is the user and thread lookup backing the resolver.
type Directory interface {
	// ResolveOwner returns the owning user id or ErrOwnerNotFound.
	ResolveOwner(ctx context.Context, threadID string) (string, error)
	// GetVerifiedChannelAddress returns the address, or "" when absent or
	// unverified. A missing user returns ErrUserNotFound.
	GetVerifiedChannelAddress(ctx context.Context, userID string) (string, error)
}

// NamespaceChecker reports whether a thread namespace is known.
type NamespaceChecker interface {
	Has(channelType channel.ChannelType) bool
}

// Destination is where replies for a thread go.
type Destination struct {
	UserID  string
	Address string
}

// Resolver checks that a thread can be answered before any model call.
type Resolver struct {
	directory  Directory
	namespaces NamespaceChecker
	logger     *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(log *slog.Logger, directory Directory, namespaces NamespaceChecker) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		directory:  directory,
		namespaces: namespaces,
		logger:     log.With(slog.String("service", "identity_resolver")),
	}
}

// Resolve returns the owner and verified address for threadID. Unanswerable
// threads yield *UnlinkedChannelError; directory errors pass through so the
// caller can retry them.
func (r *Resolver) Resolve(ctx context.Context, threadID string) (Destination, error) {
	threadID = strings.TrimSpace(threadID)
	addr, err := channel.ParseAddress(threadID)
	if err != nil || r.namespaces == nil || !r.namespaces.Has(addr.Channel) {
		return Destination{}, r.unlinked(threadID, ReasonUnrecognizedNamespace)
	}

	userID, err := r.directory.ResolveOwner(ctx, threadID)
	if err != nil {
		if errors.Is(err, ErrOwnerNotFound) {
			return Destination{}, r.unlinked(threadID, ReasonOwnerNotFound)
		}
		return Destination{}, fmt.Errorf("resolve owner: %w", err)
	}

	address, err := r.directory.GetVerifiedChannelAddress(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Destination{}, r.unlinked(threadID, ReasonUserNotFound)
		}
		return Destination{}, fmt.Errorf("resolve channel address: %w", err)
	}
	address = strings.TrimSpace(address)
	if address == "" {
		return Destination{}, r.unlinked(threadID, ReasonNoVerifiedAddress)
	}
	dest, err := channel.ParseAddress(address)
	if err != nil || !r.namespaces.Has(dest.Channel) {
		return Destination{}, r.unlinked(threadID, ReasonInvalidAddress)
	}
	return Destination{UserID: userID, Address: dest.String()}, nil
}

func (r *Resolver) unlinked(threadID, reason string) error {
	r.logger.Warn("thread has no verified channel",
		slog.String("thread_id", threadID),
		slog.String("reason", reason),
	)
	return &UnlinkedChannelError{ThreadID: threadID, Reason: reason}
}
