package lecture_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aiprof/internal/kv"
	lec "github.com/MrWong99/aiprof/internal/lecture"
	"github.com/MrWong99/aiprof/internal/report"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newMachine(t *testing.T, store kv.Store) *lec.Machine {
	t.Helper()
	return lec.NewMachine(context.Background(), lec.MachineConfig{
		ID:        "s1",
		Config:    lecture.Config{Title: "Intro to Physics", RealTimeMonitoring: true},
		StartTime: t0,
		Store:     store,
	})
}

func TestNewMachine_Defaults(t *testing.T) {
	t.Parallel()

	m := lec.NewMachine(context.Background(), lec.MachineConfig{ID: "x", StartTime: t0})
	s := m.Snapshot()
	if s.Status != lecture.StatusRecording {
		t.Errorf("Status = %q, want recording", s.Status)
	}
	if s.Title != lecture.DefaultTitle || s.Subject != lecture.DefaultSubject || s.Language != lecture.DefaultLanguage {
		t.Errorf("defaults not applied: %+v", s)
	}
	if s.EndTime != nil || s.Report != nil {
		t.Error("new session must have no end time and no report")
	}
	if s.Alerts == nil || len(s.Alerts) != 0 {
		t.Errorf("Alerts = %v, want empty non-nil", s.Alerts)
	}
}

func TestMachine_AlertTimestampsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	m := newMachine(t, nil)
	ctx := context.Background()

	stamps := []time.Time{t0.Add(time.Second), t0.Add(time.Second), t0, t0.Add(3 * time.Second)}
	for i, ts := range stamps {
		if _, err := m.AppendAlert(ctx, lecture.Alert{ID: string(rune('a' + i)), Timestamp: ts}); err != nil {
			t.Fatalf("AppendAlert: %v", err)
		}
	}

	alerts := m.Snapshot().Alerts
	if len(alerts) != len(stamps) {
		t.Fatalf("len = %d, want %d", len(alerts), len(stamps))
	}
	for i := 1; i < len(alerts); i++ {
		if !alerts[i].Timestamp.After(alerts[i-1].Timestamp) {
			t.Errorf("alert %d timestamp %v not after %v", i, alerts[i].Timestamp, alerts[i-1].Timestamp)
		}
	}
	if !alerts[3].Timestamp.Equal(t0.Add(3 * time.Second)) {
		t.Errorf("an already increasing timestamp was changed: %v", alerts[3].Timestamp)
	}
}

func TestMachine_NoAlertAfterRecording(t *testing.T) {
	t.Parallel()

	m := newMachine(t, nil)
	ctx := context.Background()
	for range 3 {
		if _, err := m.AppendAlert(ctx, lecture.Alert{Type: lecture.AlertMisinformation}); err != nil {
			t.Fatal(err)
		}
	}

	frozen, err := m.BeginProcessing(ctx, t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("BeginProcessing: %v", err)
	}
	if len(frozen) != 3 {
		t.Fatalf("frozen = %d alerts, want 3", len(frozen))
	}

	_, err = m.AppendAlert(ctx, lecture.Alert{Type: lecture.AlertBiasDetected})
	if !errors.Is(err, lecture.ErrInvalidTransition) {
		t.Fatalf("AppendAlert in processing err = %v, want ErrInvalidTransition", err)
	}

	r := report.Tally("s1", frozen, t0.Add(2*time.Minute))
	if err := m.Complete(ctx, r); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	s := m.Snapshot()
	if len(s.Alerts) != 3 {
		t.Errorf("alerts at completion = %d, want 3", len(s.Alerts))
	}
	if s.Report == nil || s.Report.TotalIssues != 3 || s.Report.OverallQuality != lecture.QualityGood {
		t.Errorf("report = %+v", s.Report)
	}
	if s.Report.IssuesByType[lecture.AlertMisinformation] != 3 {
		t.Errorf("IssuesByType = %v", s.Report.IssuesByType)
	}
}

func TestMachine_Transitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tests := []struct {
		name    string
		steps   func(m *lec.Machine) error
		want    lecture.Status
		wantErr error
	}{
		{
			name: "complete from recording is rejected",
			steps: func(m *lec.Machine) error {
				return m.Complete(ctx, report.Tally("s1", nil, t0))
			},
			want:    lecture.StatusRecording,
			wantErr: lecture.ErrInvalidTransition,
		},
		{
			name: "begin processing twice",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				_, err := m.BeginProcessing(ctx, t0)
				return err
			},
			want:    lecture.StatusProcessing,
			wantErr: lecture.ErrInvalidTransition,
		},
		{
			name: "fail from recording",
			steps: func(m *lec.Machine) error {
				return m.Fail(ctx, errors.New("boom"))
			},
			want: lecture.StatusError,
		},
		{
			name: "fail from processing",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				return m.Fail(ctx, errors.New("boom"))
			},
			want: lecture.StatusError,
		},
		{
			name: "complete twice",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				if err := m.Complete(ctx, report.Tally("s1", nil, t0)); err != nil {
					return err
				}
				return m.Complete(ctx, report.Tally("s1", nil, t0))
			},
			want:    lecture.StatusCompleted,
			wantErr: lecture.ErrInvalidTransition,
		},
		{
			name: "fail after completed",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				if err := m.Complete(ctx, report.Tally("s1", nil, t0)); err != nil {
					return err
				}
				return m.Fail(ctx, errors.New("late"))
			},
			want:    lecture.StatusCompleted,
			wantErr: lecture.ErrInvalidTransition,
		},
		{
			name: "report for another session",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				return m.Complete(ctx, report.Tally("other", nil, t0))
			},
			want:    lecture.StatusProcessing,
			wantErr: lecture.ErrReportGeneration,
		},
		{
			name: "report miscounting alerts",
			steps: func(m *lec.Machine) error {
				if _, err := m.BeginProcessing(ctx, t0); err != nil {
					return err
				}
				return m.Complete(ctx, report.Tally("s1", []lecture.Alert{{Type: lecture.AlertBiasDetected}}, t0))
			},
			want:    lecture.StatusProcessing,
			wantErr: lecture.ErrReportGeneration,
		},
		{
			name: "abandoned",
			steps: func(m *lec.Machine) error {
				m.Abandon()
				_, err := m.BeginProcessing(ctx, t0)
				return err
			},
			want:    lecture.StatusRecording,
			wantErr: lecture.ErrAbandoned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMachine(t, nil)
			err := tt.steps(m)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got := m.Status(); got != tt.want {
				t.Errorf("Status = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMachine_StatusInvariants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMachine(t, nil)

	check := func(stage string) {
		s := m.Snapshot()
		if s.Report != nil && s.Status != lecture.StatusCompleted {
			t.Errorf("%s: report present in status %s", stage, s.Status)
		}
		if s.Status == lecture.StatusRecording && s.EndTime != nil {
			t.Errorf("%s: end time set while recording", stage)
		}
	}

	check("recording")
	if _, err := m.BeginProcessing(ctx, t0.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	check("processing")
	if s := m.Snapshot(); s.EndTime == nil || s.EndTime.Before(s.StartTime) {
		t.Errorf("EndTime = %v, must not precede StartTime", s.EndTime)
	}
	if err := m.Fail(ctx, errors.New("report failed")); err != nil {
		t.Fatal(err)
	}
	check("error")
	if got := m.Snapshot().Error; got != "report failed" {
		t.Errorf("Error = %q", got)
	}
}

func TestMachine_MarkNotified(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMachine(t, nil)
	a, _ := m.AppendAlert(ctx, lecture.Alert{ID: "a1", Timestamp: t0})

	if !m.MarkNotified(ctx, a.ID) {
		t.Fatal("MarkNotified did not find the alert")
	}
	if m.MarkNotified(ctx, "missing") {
		t.Error("MarkNotified found a missing alert")
	}
	if !m.Snapshot().Alerts[0].Notified {
		t.Error("Notified flag not set")
	}
}

func TestMachine_Persistence(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := kv.NewMemoryStore()
	m := newMachine(t, store)

	if _, err := m.AppendAlert(ctx, lecture.Alert{ID: "a1", Type: lecture.AlertOutdatedInfo, Timestamp: t0}); err != nil {
		t.Fatal(err)
	}

	live, err := kv.GetJSON[[]lecture.Alert](ctx, store, lec.LiveAlertsKey)
	if err != nil {
		t.Fatalf("live alerts: %v", err)
	}
	if len(live) != 1 || live[0].ID != "a1" {
		t.Errorf("live alerts = %+v", live)
	}

	alerts, _ := m.BeginProcessing(ctx, t0.Add(time.Minute))
	if err := m.Complete(ctx, report.Tally("s1", alerts, t0.Add(2*time.Minute))); err != nil {
		t.Fatal(err)
	}

	got, err := lec.LoadSession(ctx, store, "s1")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got.Status != lecture.StatusCompleted || got.Report == nil || got.Report.TotalIssues != 1 {
		t.Errorf("persisted session = %+v", got)
	}

	all, err := lec.ListSessions(ctx, store)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(all) != 1 || all[0].ID != "s1" {
		t.Errorf("ListSessions = %+v", all)
	}
}

// failingStore refuses every write.
type failingStore struct{ kv.Store }

func (failingStore) Put(context.Context, string, []byte) error { return errors.New("disk full") }

func TestMachine_PersistenceFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMachine(t, failingStore{kv.NewMemoryStore()})
	if _, err := m.AppendAlert(ctx, lecture.Alert{Timestamp: t0}); err != nil {
		t.Fatalf("AppendAlert with failing store: %v", err)
	}
	if _, err := m.BeginProcessing(ctx, t0); err != nil {
		t.Fatalf("BeginProcessing with failing store: %v", err)
	}
}

func TestMachine_ConcurrentAppendAndStop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := newMachine(t, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = m.AppendAlert(ctx, lecture.Alert{Type: lecture.AlertMissingContext, Timestamp: t0})
			}
		}()
	}
	time.Sleep(time.Millisecond)
	frozen, err := m.BeginProcessing(ctx, t0.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if got := len(m.Snapshot().Alerts); got != len(frozen) {
		t.Fatalf("alerts grew after processing: frozen %d, now %d", len(frozen), got)
	}
	for i := 1; i < len(frozen); i++ {
		if !frozen[i].Timestamp.After(frozen[i-1].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestMachine_OnChange(t *testing.T) {
	t.Parallel()

	var statuses []lecture.Status
	m := lec.NewMachine(context.Background(), lec.MachineConfig{
		ID:        "s1",
		StartTime: t0,
		OnChange:  func(s lecture.Session) { statuses = append(statuses, s.Status) },
	})
	ctx := context.Background()
	_, _ = m.AppendAlert(ctx, lecture.Alert{Timestamp: t0})
	alerts, _ := m.BeginProcessing(ctx, t0)
	_ = m.Complete(ctx, report.Tally("s1", alerts, t0))

	want := []lecture.Status{
		lecture.StatusRecording, lecture.StatusRecording,
		lecture.StatusProcessing, lecture.StatusCompleted,
	}
	if len(statuses) != len(want) {
		t.Fatalf("OnChange statuses = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("statuses[%d] = %q, want %q", i, statuses[i], want[i])
		}
	}
}
