package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/pkg/provider/llm"
)

// defaultSourceYear is used when the model omits a publication year.
const defaultSourceYear = "2023"

// Explain writes a professional explanation of req.Topic together with a
// list of sources. Both completions run concurrently and either failing
// fails the whole call with a *lecture.ExternalServiceError.
func (s *Service) Explain(ctx context.Context, req ExplainRequest) (_ *Explanation, err error) {
	req.Topic = strings.TrimSpace(req.Topic)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	if req.Subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if req.Level == "" {
		req.Level = LevelUndergraduate
	}
	if !req.Level.IsValid() {
		return nil, fmt.Errorf("%w: unknown level %q", ErrInvalidInput, req.Level)
	}

	ctx, span := observe.StartSpan(ctx, "analysis.Explain")
	defer func() { observe.EndSpan(span, err) }()
	defer s.observe(ctx, "explain", time.Now())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var (
		body    string
		sources sourcesReply
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		body, err = s.complete(gctx, OpExplain, llm.CompletionRequest{
			SystemPrompt: explainSystemPrompt,
			Messages:     []llm.Message{llm.UserMessage(explainPrompt(req))},
			Temperature:  s.temperature,
		})
		return err
	})
	g.Go(func() error {
		return s.completeJSON(gctx, OpSources, sourcesSystemPrompt, sourcesPrompt(req), &sources)
	})
	if err := g.Wait(); err != nil {
		observe.Logger(ctx).Warn("explanation failed", "topic", req.Topic, "err", err)
		return nil, err
	}

	return &Explanation{
		ID:        uuid.NewString(),
		Topic:     req.Topic,
		Subject:   req.Subject,
		Level:     req.Level,
		Content:   strings.TrimSpace(body),
		Sources:   sources.build(s.float),
		CreatedAt: s.now(),
	}, nil
}

type sourcesReply struct {
	Sources []struct {
		Title string `json:"title"`
		Type  string `json:"type"`
		Year  string `json:"year"`
	} `json:"sources"`
}

// build assigns each source a placeholder URL and a credibility score in
// [0.85, 1).
func (r sourcesReply) build(float func() float64) []Source {
	out := make([]Source, 0, len(r.Sources))
	for _, rs := range r.Sources {
		if strings.TrimSpace(rs.Title) == "" {
			continue
		}
		n := len(out) + 1
		out = append(out, Source{
			Title:       rs.Title,
			Type:        firstNonEmpty(rs.Type, "paper"),
			Year:        firstNonEmpty(rs.Year, defaultSourceYear),
			URL:         fmt.Sprintf("https://example.com/source-%d", n),
			Credibility: 0.85 + float()*0.15,
		})
	}
	return out
}
