// Package notify delivers short user-facing notifications about lecture
// sessions: recording started or stopped, alerts worth interrupting for,
// report ready, and failures.
//
// A [Notifier] must never block the caller. Producers (the alert generator,
// the recording controller) call Notify from their own critical paths.
package notify

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

// Kind classifies a [Notification].
type Kind string

const (
	KindRecordingStarted Kind = "recording-started"
	KindRecordingStopped Kind = "recording-stopped"
	KindAlert            Kind = "alert"
	KindReportReady      Kind = "report-ready"
	KindError            Kind = "error"
)

// Level is the visual weight of a notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one message for the user.
type Notification struct {
	Kind      Kind   `json:"kind"`
	Level     Level  `json:"level"`
	SessionID string `json:"sessionId,omitempty"`

	// Message is the standard text, which may contain emoji.
	Message string `json:"message"`

	// AccessibleMessage is the plain-language variant for screen readers.
	// Equal to Message when no dedicated variant exists.
	AccessibleMessage string `json:"accessibleMessage"`

	// Alert is set for KindAlert.
	Alert *lecture.Alert `json:"alert,omitempty"`

	Time time.Time `json:"time"`
}

// Text returns AccessibleMessage when accessible is true, else Message.
func (n Notification) Text(accessible bool) string {
	if accessible && n.AccessibleMessage != "" {
		return n.AccessibleMessage
	}
	return n.Message
}

// Notifier receives notifications. Implementations must return promptly and
// be safe for concurrent use.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a plain function to [Notifier].
type Func func(Notification)

// Notify calls f(n).
func (f Func) Notify(n Notification) { f(n) }

// Multi fans a notification out to several notifiers in order.
type Multi []Notifier

// Notify implements [Notifier].
func (m Multi) Notify(n Notification) {
	for _, x := range m {
		if x != nil {
			x.Notify(n)
		}
	}
}

// Discard drops every notification.
var Discard Notifier = Func(func(Notification) {})

// alertPreviewLen is how many characters of the suggested correction an
// alert notification shows.
const alertPreviewLen = 50

// RecordingStarted builds the notification for a session that began recording.
func RecordingStarted(s lecture.Session) Notification {
	msg := "🎙️ Recording started"
	accessible := "Live lecture recording started"
	if s.RealTimeMonitoring {
		msg += " with AI monitoring"
		accessible += " with real-time fact-checking enabled"
	}
	return Notification{
		Kind:              KindRecordingStarted,
		Level:             LevelSuccess,
		SessionID:         s.ID,
		Message:           msg,
		AccessibleMessage: accessible,
		Time:              time.Now(),
	}
}

// RecordingStopped builds the notification for a session that moved to processing.
func RecordingStopped(s lecture.Session) Notification {
	return Notification{
		Kind:              KindRecordingStopped,
		Level:             LevelSuccess,
		SessionID:         s.ID,
		Message:           "🔄 Processing lecture for fact-checking...",
		AccessibleMessage: "Recording stopped. Processing correction report.",
		Time:              time.Now(),
	}
}

// ReportReady builds the notification for a completed session.
func ReportReady(s lecture.Session) Notification {
	return Notification{
		Kind:              KindReportReady,
		Level:             LevelSuccess,
		SessionID:         s.ID,
		Message:           "📊 Correction report generated successfully!",
		AccessibleMessage: "Correction report generated successfully.",
		Time:              time.Now(),
	}
}

// AlertRaised builds the warning for an alert.
func AlertRaised(sessionID string, a lecture.Alert) Notification {
	label := alertLabel(a.Type)
	return Notification{
		Kind:              KindAlert,
		Level:             LevelWarning,
		SessionID:         sessionID,
		Message:           "⚠️ " + label + ": " + preview(a.SuggestedCorrection) + "...",
		AccessibleMessage: "Alert, " + strings.ToLower(label) + ", " + string(a.Severity) + " severity. " + a.SuggestedCorrection,
		Alert:             &a,
		Time:              time.Now(),
	}
}

// Failed builds the error notification for err. sessionID may be empty.
func Failed(sessionID string, err error) Notification {
	msg := lecture.UserMessage(err)
	return Notification{
		Kind:              KindError,
		Level:             LevelError,
		SessionID:         sessionID,
		Message:           msg,
		AccessibleMessage: msg,
		Time:              time.Now(),
	}
}

// alertLabel renders "outdated-info" as "OUTDATED INFO". Only the first
// hyphen is replaced.
func alertLabel(t lecture.AlertType) string {
	return strings.ToUpper(strings.Replace(string(t), "-", " ", 1))
}

// preview truncates s to alertPreviewLen runes.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= alertPreviewLen {
		return s
	}
	r := []rune(s)
	return string(r[:alertPreviewLen])
}
