package resilience

import (
	"context"
	"fmt"

	"github.com/MrWong99/aiprof/pkg/provider/llm"
)

// GuardedLLM implements [llm.Provider] by sending every completion through a
// [CircuitBreaker]. While the breaker is open calls fail fast with an error
// wrapping [ErrCircuitOpen]; otherwise the wrapped provider is called exactly
// once.
type GuardedLLM struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Compile-time interface assertion.
var _ llm.Provider = (*GuardedLLM)(nil)

// NewGuardedLLM wraps provider with a breaker built from cfg.
func NewGuardedLLM(provider llm.Provider, cfg CircuitBreakerConfig) *GuardedLLM {
	if cfg.Name == "" {
		cfg.Name = "llm"
	}
	return &GuardedLLM{provider: provider, breaker: NewCircuitBreaker(cfg)}
}

// Breaker exposes the breaker, e.g. for health checks.
func (g *GuardedLLM) Breaker() *CircuitBreaker { return g.breaker }

// Complete implements [llm.Provider].
func (g *GuardedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := Do(ctx, g.breaker, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return g.provider.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: complete: %w", g.breaker.Name(), err)
	}
	return resp, nil
}

// StreamCompletion implements [llm.Provider]. Only opening the stream is
// guarded; errors delivered inside chunks are the caller's concern.
func (g *GuardedLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch, err := Do(ctx, g.breaker, func(ctx context.Context) (<-chan llm.Chunk, error) {
		return g.provider.StreamCompletion(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: stream: %w", g.breaker.Name(), err)
	}
	return ch, nil
}

// CountTokens delegates to the wrapped provider. Token counting is local and
// is not guarded.
func (g *GuardedLLM) CountTokens(messages []llm.Message) (int, error) {
	return g.provider.CountTokens(messages)
}

// Capabilities delegates to the wrapped provider.
func (g *GuardedLLM) Capabilities() llm.ModelCapabilities {
	return g.provider.Capabilities()
}
