// Package report builds the correction report attached to a lecture session
// once recording stops.
//
// The builder is deliberately simple: it counts alerts per type, grades the
// lecture by the total and attaches a fixed set of recommendations. A
// configurable delay stands in for the latency of a real analysis backend.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// DefaultDelay is the simulated processing time used when [Config.Delay] is
// zero. Use a negative Delay to disable it.
const DefaultDelay = 3 * time.Second

// Recommendations are attached to every report in this order.
var Recommendations = []string{
	"Consider citing more recent sources for statistical claims",
	"Add visual aids to support complex explanations",
	"Include diverse perspectives on controversial topics",
}

// Quality grades a lecture by its total issue count: at most two issues is
// excellent, at most five is good, anything above is fair.
//
// [lecture.QualityPoor] is part of the data model but no count maps to it.
func Quality(totalIssues int) lecture.Quality {
	switch {
	case totalIssues <= 2:
		return lecture.QualityExcellent
	case totalIssues <= 5:
		return lecture.QualityGood
	default:
		return lecture.QualityFair
	}
}

// Builder produces the correction report for a finished recording.
type Builder interface {
	// Build returns the report for sessionID given its frozen alerts.
	// Errors are always *lecture.ReportGenerationError.
	Build(ctx context.Context, sessionID string, alerts []lecture.Alert) (*lecture.CorrectionReport, error)
}

// BuilderFunc adapts a function to [Builder].
type BuilderFunc func(ctx context.Context, sessionID string, alerts []lecture.Alert) (*lecture.CorrectionReport, error)

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, sessionID string, alerts []lecture.Alert) (*lecture.CorrectionReport, error) {
	return f(ctx, sessionID, alerts)
}

// Config configures a [Simulated] builder.
type Config struct {
	// Delay is the simulated processing time. Zero means [DefaultDelay];
	// negative disables the delay.
	Delay time.Duration

	// Now returns the generation timestamp. Defaults to time.Now.
	Now func() time.Time

	// Metrics records report latency. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Simulated is the [Builder] used for live lectures.
type Simulated struct {
	delay   time.Duration
	now     func() time.Time
	metrics *observe.Metrics
}

var _ Builder = (*Simulated)(nil)

// New returns a [Simulated] builder.
func New(cfg Config) *Simulated {
	switch {
	case cfg.Delay == 0:
		cfg.Delay = DefaultDelay
	case cfg.Delay < 0:
		cfg.Delay = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Simulated{delay: cfg.Delay, now: cfg.Now, metrics: cfg.Metrics}
}

// Build implements [Builder]. It waits out the configured delay, returning
// early with an error when ctx is cancelled.
func (b *Simulated) Build(ctx context.Context, sessionID string, alerts []lecture.Alert) (_ *lecture.CorrectionReport, err error) {
	ctx, span := observe.StartSpan(ctx, "report.Build")
	defer func() { observe.EndSpan(span, err) }()

	start := time.Now()
	defer func() {
		b.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	}()

	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &lecture.ReportGenerationError{SessionID: sessionID, Cause: ctx.Err()}
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, &lecture.ReportGenerationError{SessionID: sessionID, Cause: err}
	}

	r := Tally(sessionID, alerts, b.now())
	if err := Validate(r); err != nil {
		return nil, &lecture.ReportGenerationError{SessionID: sessionID, Cause: err}
	}
	return r, nil
}

// Tally builds a report from alerts without any delay.
func Tally(sessionID string, alerts []lecture.Alert, at time.Time) *lecture.CorrectionReport {
	byType := make(map[lecture.AlertType]int)
	for _, a := range alerts {
		byType[a.Type]++
	}
	return &lecture.CorrectionReport{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		TotalIssues:     len(alerts),
		IssuesByType:    byType,
		Recommendations: append([]string(nil), Recommendations...),
		OverallQuality:  Quality(len(alerts)),
		GeneratedAt:     at,
	}
}

// ErrInconsistent is wrapped by [Validate] when a report violates its own
// invariants.
var ErrInconsistent = errors.New("report: inconsistent report")

// Validate checks that TotalIssues equals the sum of IssuesByType, that every
// counted type is known, and that the quality grade is recognised.
func Validate(r *lecture.CorrectionReport) error {
	if r == nil {
		return fmt.Errorf("%w: nil report", ErrInconsistent)
	}
	if !r.Consistent() {
		return fmt.Errorf("%w: total %d does not match per-type counts", ErrInconsistent, r.TotalIssues)
	}
	for t, n := range r.IssuesByType {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown alert type %q", ErrInconsistent, t)
		}
		if n < 0 {
			return fmt.Errorf("%w: negative count for %q", ErrInconsistent, t)
		}
	}
	if !r.OverallQuality.IsValid() {
		return fmt.Errorf("%w: unknown quality %q", ErrInconsistent, r.OverallQuality)
	}
	return nil
}
