// Package agentctx carries the running agent's identity on a context. It has
// no dependencies so agents, tools and adapters can all import it.
package agentctx

import "context"

type (
	agentNameCtxKey    struct{}
	invocationIDCtxKey struct{}
)

// WithAgentName returns a new context carrying the given agent name.
func WithAgentName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, agentNameCtxKey{}, name)
}

// AgentNameFromContext extracts the agent name from the context.
// Returns "" if no agent name is present.
func AgentNameFromContext(ctx context.Context) string {
	v, _ := ctx.Value(agentNameCtxKey{}).(string)
	return v
}

// WithInvocationID returns a new context carrying the id of the current
// coordinator turn.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDCtxKey{}, id)
}

// InvocationIDFromContext extracts the invocation id, or "" when absent.
func InvocationIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(invocationIDCtxKey{}).(string)
	return v
}

// AgentNameOr returns the agent name on ctx, or fallback when none is set.
func AgentNameOr(ctx context.Context, fallback string) string {
	if name := AgentNameFromContext(ctx); name != "" {
		return name
	}
	return fallback
}
