package lecture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aiprof/internal/kv"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// Key-value keys written by [Machine].
const (
	// SessionKeyPrefix prefixes the key holding a session snapshot.
	SessionKeyPrefix = "lecture-session:"

	// LiveAlertsKey holds the alert list of the session that is recording
	// or was recording most recently.
	LiveAlertsKey = "live-alerts"
)

// persistTimeout bounds a single snapshot write.
const persistTimeout = 2 * time.Second

// SessionKey returns the key-value key of session id.
func SessionKey(id string) string { return SessionKeyPrefix + id }

// MachineConfig configures a [Machine].
type MachineConfig struct {
	// ID is the session identifier. Required.
	ID string

	// Config is the user input the session was started with. It is
	// normalised before use.
	Config lecture.Config

	// StartTime is when recording began.
	StartTime time.Time

	// Store receives a snapshot after every mutation. Nil disables
	// persistence.
	Store kv.Store

	// OnChange is called with a snapshot after every successful transition
	// and every appended alert. It runs under the machine lock and must not
	// call back into the machine.
	OnChange func(lecture.Session)
}

// Machine owns one [lecture.Session] and enforces its lifecycle:
//
//	recording ──► processing ──► completed
//	    │              │
//	    └──► error ◄───┘
//
// Every mutation is serialised by the machine's mutex. A machine that was
// abandoned rejects all further transitions with [lecture.ErrAbandoned].
type Machine struct {
	mu        sync.Mutex
	s         lecture.Session
	abandoned bool

	store    kv.Store
	onChange func(lecture.Session)
}

// NewMachine creates a machine whose session is recording and persists the
// initial snapshot. The live alert list is reset to empty.
func NewMachine(ctx context.Context, cfg MachineConfig) *Machine {
	c := cfg.Config.Normalize()
	m := &Machine{
		s: lecture.Session{
			ID:                 cfg.ID,
			Title:              c.Title,
			Subject:            c.Subject,
			Instructor:         c.Instructor,
			Language:           c.Language,
			Dialect:            c.Dialect,
			Status:             lecture.StatusRecording,
			StartTime:          cfg.StartTime,
			Alerts:             []lecture.Alert{},
			RealTimeMonitoring: c.RealTimeMonitoring,
		},
		store:    cfg.Store,
		onChange: cfg.OnChange,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.persistLocked(ctx, true)
	m.changedLocked()
	return m
}

// ID returns the session identifier.
func (m *Machine) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.ID
}

// Status returns the current status.
func (m *Machine) Status() lecture.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Status
}

// Snapshot returns a deep copy of the session.
func (m *Machine) Snapshot() lecture.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.Clone()
}

// AppendAlert adds a to the session. It is only allowed while recording.
// The stored timestamp is moved forward when needed so that alert timestamps
// are strictly increasing; the stored alert is returned.
func (m *Machine) AppendAlert(ctx context.Context, a lecture.Alert) (lecture.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked("append alert", lecture.StatusRecording); err != nil {
		return lecture.Alert{}, err
	}

	if n := len(m.s.Alerts); n > 0 {
		last := m.s.Alerts[n-1].Timestamp
		if !a.Timestamp.After(last) {
			a.Timestamp = last.Add(time.Nanosecond)
		}
	}
	a.Confidence = min(max(a.Confidence, 0), 1)
	m.s.Alerts = append(m.s.Alerts, a)

	m.persistLocked(ctx, true)
	m.changedLocked()
	return a, nil
}

// MarkNotified sets the Notified flag of the alert with id. It reports
// whether the alert was found. Flags can still be set after recording
// stopped because the notification may race with Stop.
func (m *Machine) MarkNotified(ctx context.Context, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.abandoned {
		return false
	}
	for i := range m.s.Alerts {
		if m.s.Alerts[i].ID == id {
			if !m.s.Alerts[i].Notified {
				m.s.Alerts[i].Notified = true
				m.persistLocked(ctx, m.s.Status == lecture.StatusRecording)
			}
			return true
		}
	}
	return false
}

// BeginProcessing moves a recording session to processing, records end as
// its end time and returns a frozen copy of its alerts. It succeeds at most
// once per session, which guarantees a single report generation.
func (m *Machine) BeginProcessing(ctx context.Context, end time.Time) ([]lecture.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked("begin processing", lecture.StatusRecording); err != nil {
		return nil, err
	}

	if end.Before(m.s.StartTime) {
		end = m.s.StartTime
	}
	m.s.EndTime = &end
	m.s.Status = lecture.StatusProcessing

	m.persistLocked(ctx, false)
	m.changedLocked()

	frozen := make([]lecture.Alert, len(m.s.Alerts))
	copy(frozen, m.s.Alerts)
	return frozen, nil
}

// Complete attaches r and moves a processing session to completed. The
// report must belong to this session and count exactly its alerts.
func (m *Machine) Complete(ctx context.Context, r *lecture.CorrectionReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked("complete", lecture.StatusProcessing); err != nil {
		return err
	}
	if r == nil {
		return &lecture.ReportGenerationError{SessionID: m.s.ID, Cause: fmt.Errorf("nil report")}
	}
	if r.SessionID != m.s.ID {
		return &lecture.ReportGenerationError{
			SessionID: m.s.ID,
			Cause:     fmt.Errorf("report belongs to session %q", r.SessionID),
		}
	}
	if !r.Consistent() || r.TotalIssues != len(m.s.Alerts) {
		return &lecture.ReportGenerationError{
			SessionID: m.s.ID,
			Cause:     fmt.Errorf("report counts %d issues for %d alerts", r.TotalIssues, len(m.s.Alerts)),
		}
	}

	m.s.Report = r.Clone()
	m.s.Status = lecture.StatusCompleted

	m.persistLocked(ctx, false)
	m.changedLocked()
	return nil
}

// Fail moves a recording or processing session to error, keeping its
// alerts. cause is recorded as the session's error text.
func (m *Machine) Fail(ctx context.Context, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkLocked("fail", lecture.StatusRecording, lecture.StatusProcessing); err != nil {
		return err
	}

	if m.s.EndTime == nil {
		end := time.Now()
		if end.Before(m.s.StartTime) {
			end = m.s.StartTime
		}
		m.s.EndTime = &end
	}
	if cause != nil {
		m.s.Error = cause.Error()
	}
	m.s.Report = nil
	m.s.Status = lecture.StatusError

	m.persistLocked(ctx, false)
	m.changedLocked()
	return nil
}

// Abandon marks the machine as torn down. Later transitions return
// [lecture.ErrAbandoned] and nothing is persisted any more. The session keeps
// whatever status it had.
func (m *Machine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.abandoned = true
}

// Abandoned reports whether [Machine.Abandon] was called.
func (m *Machine) Abandoned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.abandoned
}

func (m *Machine) checkLocked(op string, allowed ...lecture.Status) error {
	if m.abandoned {
		return fmt.Errorf("lecture: %s session %s: %w", op, m.s.ID, lecture.ErrAbandoned)
	}
	for _, s := range allowed {
		if m.s.Status == s {
			return nil
		}
	}
	return fmt.Errorf("lecture: %s session %s in status %s: %w", op, m.s.ID, m.s.Status, lecture.ErrInvalidTransition)
}

// persistLocked writes the session snapshot and, when liveAlerts is set, the
// live alert list. Failures are logged and otherwise ignored.
func (m *Machine) persistLocked(ctx context.Context, liveAlerts bool) {
	if m.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := kv.PutJSON(ctx, m.store, SessionKey(m.s.ID), m.s); err != nil {
		slog.Warn("lecture: persist session failed", "session_id", m.s.ID, "err", err)
	}
	if liveAlerts {
		if err := kv.PutJSON(ctx, m.store, LiveAlertsKey, m.s.Alerts); err != nil {
			slog.Warn("lecture: persist live alerts failed", "session_id", m.s.ID, "err", err)
		}
	}
}

func (m *Machine) changedLocked() {
	if m.onChange != nil {
		m.onChange(m.s.Clone())
	}
}

// LoadSession reads a persisted session snapshot from store.
func LoadSession(ctx context.Context, store kv.Store, id string) (lecture.Session, error) {
	s, err := kv.GetJSON[lecture.Session](ctx, store, SessionKey(id))
	if err != nil {
		return lecture.Session{}, fmt.Errorf("lecture: load session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions returns every persisted session snapshot, ordered by key.
// Snapshots that fail to decode are skipped with a warning.
func ListSessions(ctx context.Context, store kv.Store) ([]lecture.Session, error) {
	keys, err := store.List(ctx, SessionKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("lecture: list sessions: %w", err)
	}
	out := make([]lecture.Session, 0, len(keys))
	for _, k := range keys {
		s, err := kv.GetJSON[lecture.Session](ctx, store, k)
		if err != nil {
			slog.Warn("lecture: skip unreadable session", "key", k, "err", err)
			continue
		}
		out = append(out, s)
	}
	return out, nil
}
