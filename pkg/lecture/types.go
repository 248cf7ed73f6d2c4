// Package lecture defines the shared data model for live lecture sessions:
// the session record itself, the alerts raised while it records, the
// correction report produced when it stops, and the error taxonomy used by
// every component that touches a session.
//
// This package lives under pkg/ because consumers of a finished session
// (dashboards, exporters, the HTTP API clients) decode these types directly.
// JSON field names follow the camelCase wire format the browser client
// persists in its key-value store.
package lecture

import (
	"maps"
	"slices"
	"time"
)

// Status is the lifecycle state of a [Session].
type Status string

const (
	// StatusRecording means audio is being captured and alerts may be appended.
	StatusRecording Status = "recording"

	// StatusProcessing means capture has stopped and the report is being built.
	StatusProcessing Status = "processing"

	// StatusCompleted means the report is attached. Terminal.
	StatusCompleted Status = "completed"

	// StatusError means the session failed. Terminal.
	StatusError Status = "error"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRecording, StatusProcessing, StatusCompleted, StatusError:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// AlertType classifies the issue an [Alert] reports.
type AlertType string

const (
	AlertMisinformation AlertType = "misinformation"
	AlertOutdatedInfo   AlertType = "outdated-info"
	AlertMissingContext AlertType = "missing-context"
	AlertBiasDetected   AlertType = "bias-detected"
)

// AlertTypes lists every alert type in a stable order.
var AlertTypes = []AlertType{
	AlertMisinformation,
	AlertOutdatedInfo,
	AlertMissingContext,
	AlertBiasDetected,
}

// IsValid reports whether t is a recognised alert type.
func (t AlertType) IsValid() bool {
	return slices.Contains(AlertTypes, t)
}

// Severity ranks how urgent an [Alert] is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid reports whether s is a recognised severity.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Notifies reports whether an alert of this severity is surfaced to the user
// immediately. Low-severity alerts only appear in the final report.
func (s Severity) Notifies() bool {
	return s != SeverityLow
}

// Quality is the overall grade attached to a [CorrectionReport].
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// IsValid reports whether q is a recognised quality grade.
func (q Quality) IsValid() bool {
	switch q {
	case QualityExcellent, QualityGood, QualityFair, QualityPoor:
		return true
	}
	return false
}

// Alert is a single flagged issue raised while a lecture records.
// Alerts are immutable once appended to a session except for Notified.
type Alert struct {
	ID                  string    `json:"id"`
	Timestamp           time.Time `json:"timestamp"`
	Type                AlertType `json:"type"`
	Severity            Severity  `json:"severity"`
	Content             string    `json:"content"`
	SuggestedCorrection string    `json:"suggestedCorrection"`

	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`

	// Notified is set once the user has been shown this alert.
	Notified bool `json:"notified"`
}

// CorrectionReport summarises the alerts of one finished session.
// Invariant: TotalIssues equals the sum of IssuesByType.
type CorrectionReport struct {
	ID              string            `json:"id"`
	SessionID       string            `json:"sessionId"`
	TotalIssues     int               `json:"totalIssues"`
	IssuesByType    map[AlertType]int `json:"issuesByType"`
	Recommendations []string          `json:"recommendations"`
	OverallQuality  Quality           `json:"overallQuality"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// Consistent reports whether TotalIssues matches the per-type counts.
func (r *CorrectionReport) Consistent() bool {
	sum := 0
	for _, n := range r.IssuesByType {
		sum += n
	}
	return sum == r.TotalIssues
}

// Clone returns a deep copy of r.
func (r *CorrectionReport) Clone() *CorrectionReport {
	if r == nil {
		return nil
	}
	c := *r
	c.IssuesByType = maps.Clone(r.IssuesByType)
	c.Recommendations = slices.Clone(r.Recommendations)
	return &c
}

// Session is one recording of a live lecture from start to its terminal
// state.
//
// Invariants: Report is nil unless Status is [StatusCompleted]; EndTime is
// nil while Status is [StatusRecording].
type Session struct {
	ID                 string            `json:"id"`
	Title              string            `json:"title"`
	Subject            string            `json:"subject"`
	Instructor         string            `json:"instructor,omitempty"`
	Language           string            `json:"language"`
	Dialect            string            `json:"dialect,omitempty"`
	Status             Status            `json:"status"`
	StartTime          time.Time         `json:"startTime"`
	EndTime            *time.Time        `json:"endTime,omitempty"`
	Alerts             []Alert           `json:"alerts"`
	Report             *CorrectionReport `json:"correctionReport,omitempty"`
	Error              string            `json:"error,omitempty"`
	RealTimeMonitoring bool              `json:"realTimeMonitoring"`
}

// Clone returns a deep copy of s so callers can hold a snapshot without
// racing with the owner.
func (s Session) Clone() Session {
	c := s
	c.Alerts = slices.Clone(s.Alerts)
	if c.Alerts == nil {
		c.Alerts = []Alert{}
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	c.Report = s.Report.Clone()
	return c
}

// Duration returns how long the session recorded. While still recording it
// is measured against now.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndTime != nil {
		return s.EndTime.Sub(s.StartTime)
	}
	return now.Sub(s.StartTime)
}

// Defaults applied by [Config.Normalize].
const (
	DefaultTitle    = "Untitled Lecture"
	DefaultSubject  = "General"
	DefaultLanguage = "en"
)

// Config is what a user supplies to start recording.
type Config struct {
	Title              string `json:"title"`
	Subject            string `json:"subject"`
	Instructor         string `json:"instructor,omitempty"`
	Language           string `json:"language"`
	Dialect            string `json:"dialect,omitempty"`
	RealTimeMonitoring bool   `json:"realTimeMonitoring"`
}

// Normalize returns a copy of c with empty title, subject and language
// replaced by their defaults.
func (c Config) Normalize() Config {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.Subject == "" {
		c.Subject = DefaultSubject
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	return c
}
