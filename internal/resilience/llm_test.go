package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/aiprof/pkg/provider/llm"
	"github.com/MrWong99/aiprof/pkg/provider/llm/mock"
)

func TestGuardedLLM_Complete(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "ok"}}
	g := NewGuardedLLM(p, CircuitBreakerConfig{})

	resp, err := g.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{llm.UserMessage("hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q, want ok", resp.Content)
	}
	if n := len(p.Calls()); n != 1 {
		t.Errorf("provider called %d times, want 1", n)
	}
	if g.Breaker().Name() != "llm" {
		t.Errorf("breaker name = %q, want llm", g.Breaker().Name())
	}
}

func TestGuardedLLM_OpensAndFailsFast(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{CompleteErr: errTest}
	g := NewGuardedLLM(p, CircuitBreakerConfig{Name: "openai", MaxFailures: 2, ResetTimeout: time.Hour})
	ctx := context.Background()
	req := llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("hi")}}

	for range 2 {
		if _, err := g.Complete(ctx, req); !errors.Is(err, errTest) {
			t.Fatalf("err = %v, want errTest", err)
		}
	}
	if _, err := g.Complete(ctx, req); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if n := len(p.Calls()); n != 2 {
		t.Errorf("provider called %d times, want 2", n)
	}
}

func TestGuardedLLM_StreamCompletion(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{StreamChunks: []llm.Chunk{{Text: "a"}, {Text: "b", FinishReason: "stop"}}}
	g := NewGuardedLLM(p, CircuitBreakerConfig{})

	ch, err := g.StreamCompletion(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var text string
	for c := range ch {
		text += c.Text
	}
	if text != "ab" {
		t.Errorf("text = %q, want ab", text)
	}
}

func TestGuardedLLM_Delegates(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{
		TokenCount:        12,
		ModelCapabilities: llm.ModelCapabilities{ContextWindow: 8192, SupportsJSONMode: true},
	}
	g := NewGuardedLLM(p, CircuitBreakerConfig{})

	n, err := g.CountTokens([]llm.Message{llm.UserMessage("x")})
	if err != nil || n != 12 {
		t.Errorf("CountTokens = (%d, %v), want (12, nil)", n, err)
	}
	if caps := g.Capabilities(); !caps.SupportsJSONMode || caps.ContextWindow != 8192 {
		t.Errorf("Capabilities = %+v", caps)
	}
}
