// Package analysis turns study material into a quiz and a fact-check report,
// and writes professional explanations of academic topics, using an LLM.
//
// Every backend call is attempted exactly once. Calls go through a circuit
// breaker so that a failing backend is not hammered, but nothing is retried.
// Any failure surfaces as a *lecture.ExternalServiceError and no partial
// result is returned.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/internal/resilience"
	"github.com/MrWong99/aiprof/pkg/lecture"
	"github.com/MrWong99/aiprof/pkg/provider/llm"
)

// Fallback quiz metadata used when neither the model nor the user supply it.
const (
	DefaultQuizTitle       = "Generated Quiz"
	DefaultQuizDescription = "AI-generated quiz from your content"
)

// Operation names reported in [lecture.ExternalServiceError].
const (
	OpQuiz      = "quiz"
	OpFactCheck = "fact-check"
	OpExplain   = "explain"
	OpSources   = "sources"
)

// Validation errors. These describe bad input and are not wrapped in
// [lecture.ExternalServiceError].
var (
	ErrEmptyContent = errors.New("analysis: content is empty")
	ErrInvalidInput = errors.New("analysis: invalid input")
)

// errMalformed is wrapped when the model's reply cannot be used.
var errMalformed = errors.New("malformed model response")

// Config configures a [Service].
type Config struct {
	// ProviderName labels metrics, e.g. "openai".
	ProviderName string

	// Timeout bounds one Analyze or Explain call. Zero means no extra bound.
	Timeout time.Duration

	// Temperature is passed to every completion. Zero leaves the provider
	// default.
	Temperature float64

	// Breaker configures the circuit breaker around the provider.
	Breaker resilience.CircuitBreakerConfig

	// Metrics records latency and provider outcomes. Nil uses
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now stamps results. Defaults to time.Now.
	Now func() time.Time

	// Float returns a value in [0, 1) used to spread source credibility.
	// Defaults to math/rand/v2.Float64.
	Float func() float64
}

// Service analyses content with an LLM. It is safe for concurrent use.
type Service struct {
	llm         *resilience.GuardedLLM
	provider    string
	timeout     time.Duration
	temperature float64
	metrics     *observe.Metrics
	now         func() time.Time
	float       func() float64
}

// New returns a [Service] that sends completions to p through a circuit
// breaker.
func New(p llm.Provider, cfg Config) *Service {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "llm"
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker.Name = cfg.ProviderName
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Float == nil {
		cfg.Float = rand.Float64
	}
	return &Service{
		llm:         resilience.NewGuardedLLM(p, cfg.Breaker),
		provider:    cfg.ProviderName,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		metrics:     cfg.Metrics,
		now:         cfg.Now,
		float:       cfg.Float,
	}
}

// Breaker returns the circuit breaker guarding the provider.
func (s *Service) Breaker() *resilience.CircuitBreaker { return s.llm.Breaker() }

// SourceText returns the text that is sent to the model for c. URL content
// is not fetched; the model only sees the address.
func SourceText(c Content) string {
	if c.Kind == KindURL {
		return "Content from URL: " + strings.TrimSpace(c.URL)
	}
	return c.Text
}

func validateContent(c Content) (Content, error) {
	if c.Kind == "" {
		c.Kind = KindText
	}
	if !c.Kind.IsValid() {
		return c, fmt.Errorf("%w: unknown content kind %q", ErrInvalidInput, c.Kind)
	}
	if c.LearningMode == "" {
		c.LearningMode = ModeStandard
	}
	if !c.LearningMode.IsValid() {
		return c, fmt.Errorf("%w: unknown learning mode %q", ErrInvalidInput, c.LearningMode)
	}
	if c.Kind == KindURL {
		if strings.TrimSpace(c.URL) == "" {
			return c, ErrEmptyContent
		}
	} else if strings.TrimSpace(c.Text) == "" {
		return c, ErrEmptyContent
	}
	return c, nil
}

// Analyze generates a quiz and fact-checks c. The two completions run
// concurrently; if either fails the other is cancelled and the error is
// returned as a *lecture.ExternalServiceError.
func (s *Service) Analyze(ctx context.Context, c Content) (_ *Result, err error) {
	c, err = validateContent(c)
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "analysis.Analyze")
	defer func() { observe.EndSpan(span, err) }()
	defer s.observe(ctx, "analyze", time.Now())

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text := SourceText(c)
	var (
		quiz  quizReply
		facts factReply
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.completeJSON(gctx, OpQuiz, quizSystemPrompt, quizPrompt(text, c.LearningMode), &quiz)
	})
	g.Go(func() error {
		return s.completeJSON(gctx, OpFactCheck, factCheckSystemPrompt, factCheckPrompt(text), &facts)
	})
	if err := g.Wait(); err != nil {
		observe.Logger(ctx).Warn("content analysis failed", "kind", c.Kind, "err", err)
		return nil, err
	}

	q, err := quiz.build(c, text, s.now())
	if err != nil {
		return nil, &lecture.ExternalServiceError{Operation: OpQuiz, Cause: err}
	}
	return &Result{Quiz: q, FactChecks: facts.build()}, nil
}

// completeJSON runs one JSON-mode completion and decodes the reply into out.
// Errors are *lecture.ExternalServiceError.
func (s *Service) completeJSON(ctx context.Context, op, system, prompt string, out any) error {
	content, err := s.complete(ctx, op, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{llm.UserMessage(prompt)},
		Temperature:  s.temperature,
		JSONMode:     true,
	})
	if err != nil {
		return err
	}
	if err := decodeJSON(content, out); err != nil {
		s.metrics.RecordProviderError(ctx, s.provider, op)
		return &lecture.ExternalServiceError{Operation: op, Cause: err}
	}
	return nil
}

// complete runs one completion and records its outcome.
func (s *Service) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	start := time.Now()
	resp, err := s.llm.Complete(ctx, req)
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metricAttrs(s.provider, op))
	if err != nil {
		s.metrics.RecordProviderRequest(ctx, s.provider, op, "error")
		s.metrics.RecordProviderError(ctx, s.provider, op)
		return "", &lecture.ExternalServiceError{Operation: op, Cause: err}
	}
	s.metrics.RecordProviderRequest(ctx, s.provider, op, "ok")
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", &lecture.ExternalServiceError{Operation: op, Cause: fmt.Errorf("%w: empty reply", errMalformed)}
	}
	return resp.Content, nil
}

func (s *Service) observe(ctx context.Context, op string, start time.Time) {
	s.metrics.AnalysisDuration.Record(context.WithoutCancel(ctx), time.Since(start).Seconds(),
		metricAttrs(s.provider, op))
}

func metricAttrs(provider, op string) metric.RecordOption {
	return metric.WithAttributes(observe.Attr("provider", provider), observe.Attr("operation", op))
}

// decodeJSON tolerates a Markdown code fence around the object.
func decodeJSON(content string, out any) error {
	body := strings.TrimSpace(content)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	if i, j := strings.IndexByte(body, '{'), strings.LastIndexByte(body, '}'); i >= 0 && j > i {
		body = body[i : j+1]
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

type quizReply struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Questions   []struct {
		Question      string   `json:"question"`
		Options       []string `json:"options"`
		CorrectAnswer int      `json:"correctAnswer"`
		Explanation   string   `json:"explanation"`
		Difficulty    string   `json:"difficulty"`
	} `json:"questions"`
}

func (r quizReply) build(c Content, source string, at time.Time) (Quiz, error) {
	q := Quiz{
		ID:            "quiz-" + uuid.NewString(),
		Title:         firstNonEmpty(r.Title, c.Title, DefaultQuizTitle),
		Description:   firstNonEmpty(r.Description, DefaultQuizDescription),
		SourceContent: source,
		CreatedAt:     at,
	}
	for i, rq := range r.Questions {
		if strings.TrimSpace(rq.Question) == "" || len(rq.Options) < 2 {
			continue
		}
		if rq.CorrectAnswer < 0 || rq.CorrectAnswer >= len(rq.Options) {
			continue
		}
		q.Questions = append(q.Questions, Question{
			ID:            fmt.Sprintf("q-%d", i),
			Question:      rq.Question,
			Options:       rq.Options,
			CorrectAnswer: rq.CorrectAnswer,
			Explanation:   rq.Explanation,
			Difficulty:    normalizeDifficulty(rq.Difficulty),
		})
	}
	if len(q.Questions) == 0 {
		return Quiz{}, fmt.Errorf("%w: quiz has no usable questions", errMalformed)
	}
	return q, nil
}

type factReply struct {
	Results []struct {
		OriginalText string   `json:"originalText"`
		Status       string   `json:"status"`
		Correction   string   `json:"correction"`
		Sources      []string `json:"sources"`
		Confidence   float64  `json:"confidence"`
	} `json:"results"`
}

func (r factReply) build() []FactCheck {
	out := make([]FactCheck, 0, len(r.Results))
	for i, fr := range r.Results {
		sources := fr.Sources
		if sources == nil {
			sources = []string{}
		}
		out = append(out, FactCheck{
			ID:           fmt.Sprintf("fact-%d", i),
			OriginalText: fr.OriginalText,
			Status:       normalizeStatus(fr.Status),
			Correction:   fr.Correction,
			Sources:      sources,
			Confidence:   clamp01(fr.Confidence),
		})
	}
	return out
}

func normalizeDifficulty(s string) Difficulty {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d
	}
	return DifficultyMedium
}

// normalizeStatus maps anything the model invents to questionable.
func normalizeStatus(s string) FactStatus {
	switch st := FactStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case FactVerified, FactQuestionable, FactFalse:
		return st
	}
	return FactQuestionable
}

func clamp01(f float64) float64 {
	return min(max(f, 0), 1)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
