package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memohai/lexdesk/internal/retry"
)

// Gateway is the delivery gateway: it resolves addresses to adapters and
// retries sends the adapter marked transient.
type Gateway struct {
	registry *Registry
	policy   retry.Policy
	logger   *slog.Logger
}

// NewGateway creates a Gateway over the registry.
func NewGateway(log *slog.Logger, registry *Registry, policy retry.Policy) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		registry: registry,
		policy:   policy,
		logger:   log.With(slog.String("service", "delivery_gateway")),
	}
}

// Send delivers body to the address. Blank bodies are skipped.
func (g *Gateway) Send(ctx context.Context, address, body string) error {
	if strings.TrimSpace(body) == "" {
		return nil
	}
	adapter, addr, err := g.resolve(address)
	if err != nil {
		return err
	}
	return retry.Do(ctx, g.policy, g.logger, "channel_send", func(ctx context.Context) error {
		return adapter.Send(ctx, addr.Target, body)
	})
}

// Typing shows a typing indicator at the address. It is safe to call
// repeatedly.
func (g *Gateway) Typing(ctx context.Context, address string) error {
	adapter, addr, err := g.resolve(address)
	if err != nil {
		return err
	}
	return adapter.Typing(ctx, addr.Target)
}

func (g *Gateway) resolve(address string) (Adapter, Address, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, Address{}, err
	}
	adapter, ok := g.registry.Get(addr.Channel)
	if !ok {
		return nil, Address{}, fmt.Errorf("%w: %s", ErrUnknownChannel, addr.Channel)
	}
	return adapter, addr, nil
}
