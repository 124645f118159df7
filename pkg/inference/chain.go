package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Chain is an ordered fallback over providers. On the device the local
// model comes first; a cloud model behind it answers when the local
// server is down or overloaded.
type Chain struct {
	members []member
	logger  *slog.Logger
}

type member struct {
	name string
	p    Provider
}

// NewChain creates a chain. At least one provider is required.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

// NewChainWithLogger creates a chain that logs fallbacks to logger.
func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	members := make([]member, len(providers))
	for i, p := range providers {
		name := fmt.Sprintf("provider-%d", i)
		if n, ok := p.(interface{ Name() string }); ok {
			name = n.Name()
		}
		members[i] = member{name: name, p: p}
	}
	return &Chain{members: members, logger: logger.With("component", "inference.chain")}, nil
}

// attempt calls fn on every eligible member in order and returns the first
// success. A done context stops the walk.
func attempt[T any](ctx context.Context, c *Chain, op string, eligible func(Capabilities) bool, none error, fn func(Provider) (T, error)) (T, error) {
	var (
		zero T
		errs []error
	)
	for i, m := range c.members {
		if !eligible(m.p.Capabilities()) {
			continue
		}
		out, err := fn(m.p)
		if err == nil {
			if i > 0 {
				c.logger.Info("served by fallback", "op", op, "provider", m.name)
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		errs = append(errs, err)
		c.logger.Warn("provider failed", "op", op, "provider", m.name, "error", err)
	}
	if len(errs) == 0 {
		return zero, none
	}
	return zero, &ChainError{Errors: errs}
}

// Chat asks each member in turn. A request that offers tools skips members
// that cannot call them.
func (c *Chain) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	needTools := len(req.Tools) > 0
	return attempt(ctx, c, "chat",
		func(caps Capabilities) bool { return caps.Chat && (caps.Tools || !needTools) },
		ErrProviderUnavailable,
		func(p Provider) (*ChatResponse, error) { return p.Chat(ctx, req) },
	)
}

// Embed uses the first member that embeds successfully. Vectors from
// different members live in different spaces, so anything that stores
// vectors should embed through one provider, not a Chain.
func (c *Chain) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	return attempt(ctx, c, "embed",
		func(caps Capabilities) bool { return caps.Embeddings },
		ErrEmbeddingsNotSupported,
		func(p Provider) (*EmbedResponse, error) { return p.Embed(ctx, req) },
	)
}

// Capabilities is the union over members.
func (c *Chain) Capabilities() Capabilities {
	var caps Capabilities
	for _, m := range c.members {
		mc := m.p.Capabilities()
		caps.Chat = caps.Chat || mc.Chat
		caps.Tools = caps.Tools || mc.Tools
		caps.Embeddings = caps.Embeddings || mc.Embeddings
	}
	return caps
}

// Health passes while any member is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, m := range c.members {
		err := m.p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
	}
	return WrapError("chain", errors.Join(errs...))
}

// Close closes every member.
func (c *Chain) Close() error {
	var errs []error
	for _, m := range c.members {
		errs = append(errs, m.p.Close())
	}
	return errors.Join(errs...)
}

// Providers returns the members in order.
func (c *Chain) Providers() []Provider {
	out := make([]Provider, len(c.members))
	for i, m := range c.members {
		out[i] = m.p
	}
	return out
}

var _ Provider = (*Chain)(nil)
