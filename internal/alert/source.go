// Package alert produces the real-time alerts raised while a lecture
// records.
//
// A [Source] decides, once per tick, whether an alert fires and what it
// says. The [Generator] owns the ticker for one session: it polls the
// source, appends the alert through a sink, and notifies the user about
// alerts worth interrupting for.
package alert

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

// Source yields at most one alert per call.
type Source interface {
	// Next returns an alert and true when one fires at now.
	Next(ctx context.Context, now time.Time) (lecture.Alert, bool)
}

// SourceFunc adapts a function to [Source].
type SourceFunc func(ctx context.Context, now time.Time) (lecture.Alert, bool)

// Next calls f.
func (f SourceFunc) Next(ctx context.Context, now time.Time) (lecture.Alert, bool) {
	return f(ctx, now)
}

// Placeholder texts used by [RandomSource].
var (
	SampleContents = []string{
		"Claim about scientific discovery needs verification",
		"Historical date mentioned may be inaccurate",
		"Statistical information requires recent data",
		"Technical explanation missing important context",
		"Cultural reference may need sensitivity check",
	}
	SampleCorrections = []string{
		"Please verify with latest peer-reviewed sources",
		"Consider citing the most recent research findings",
		"Add context about limitations and assumptions",
		"Include multiple perspectives on this topic",
		"Ensure cultural sensitivity in explanations",
	}
)

// randomSeverities are the severities [RandomSource] draws from. Critical is
// never produced by the simulation.
var randomSeverities = []lecture.Severity{
	lecture.SeverityLow,
	lecture.SeverityMedium,
	lecture.SeverityHigh,
}

// DefaultProbability is the per-tick firing chance of [RandomSource].
const DefaultProbability = 0.1

// RandomSource simulates misinformation detection. Each call fires with a
// fixed probability and draws type, severity, confidence and placeholder
// texts uniformly.
type RandomSource struct {
	mu          sync.Mutex
	rng         *rand.Rand
	probability float64
}

// RandomOption configures a [RandomSource].
type RandomOption func(*RandomSource)

// WithRand replaces the random number generator, typically with a seeded one
// in tests.
func WithRand(r *rand.Rand) RandomOption {
	return func(s *RandomSource) { s.rng = r }
}

// WithProbability sets the firing chance per tick, clamped to [0, 1].
func WithProbability(p float64) RandomOption {
	return func(s *RandomSource) {
		s.probability = min(max(p, 0), 1)
	}
}

// NewRandomSource returns a [RandomSource] firing with [DefaultProbability].
func NewRandomSource(opts ...RandomOption) *RandomSource {
	s := &RandomSource{
		rng:         rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		probability: DefaultProbability,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next implements [Source].
func (s *RandomSource) Next(_ context.Context, now time.Time) (lecture.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() >= s.probability {
		return lecture.Alert{}, false
	}
	return lecture.Alert{
		ID:                  uuid.NewString(),
		Timestamp:           now,
		Type:                lecture.AlertTypes[s.rng.IntN(len(lecture.AlertTypes))],
		Severity:            randomSeverities[s.rng.IntN(len(randomSeverities))],
		Content:             SampleContents[s.rng.IntN(len(SampleContents))],
		SuggestedCorrection: SampleCorrections[s.rng.IntN(len(SampleCorrections))],
		Confidence:          0.7 + s.rng.Float64()*0.3,
	}, true
}

// ScriptedSource replays a fixed queue of alerts, one per call. It is the
// deterministic source for tests and for forcing alerts by hand.
type ScriptedSource struct {
	mu    sync.Mutex
	queue []lecture.Alert
}

// NewScriptedSource returns a source that yields alerts in order.
func NewScriptedSource(alerts ...lecture.Alert) *ScriptedSource {
	return &ScriptedSource{queue: alerts}
}

// Push appends alerts to the end of the queue.
func (s *ScriptedSource) Push(alerts ...lecture.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, alerts...)
}

// Remaining returns how many alerts are still queued.
func (s *ScriptedSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Next implements [Source]. Missing IDs and timestamps are filled in.
func (s *ScriptedSource) Next(_ context.Context, now time.Time) (lecture.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.queue) == 0 {
		return lecture.Alert{}, false
	}
	a := s.queue[0]
	s.queue = s.queue[1:]
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	return a, true
}
