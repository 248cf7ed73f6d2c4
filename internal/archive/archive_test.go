package archive

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

func finished(id string, status lecture.Status) lecture.Session {
	end := time.Date(2024, 4, 1, 11, 0, 0, 0, time.UTC)
	s := lecture.Session{
		ID:        id,
		Title:     "Intro to Physics",
		Subject:   "Physics",
		Language:  "en",
		Status:    status,
		StartTime: end.Add(-time.Hour),
		EndTime:   &end,
		Alerts:    []lecture.Alert{},
	}
	if status == lecture.StatusCompleted {
		s.Report = &lecture.CorrectionReport{ID: "r-" + id, SessionID: id, IssuesByType: map[lecture.AlertType]int{}, OverallQuality: lecture.QualityExcellent}
	} else {
		s.Error = "report generation failed"
	}
	return s
}

func TestAppendAndLoad(t *testing.T) {
	t.Parallel()

	a := New(filepath.Join(t.TempDir(), "sessions.jsonl"))
	ctx := context.Background()

	for _, s := range []lecture.Session{
		finished("a", lecture.StatusCompleted),
		finished("b", lecture.StatusError),
	} {
		if err := a.Append(s); err != nil {
			t.Fatalf("Append(%s): %v", s.ID, err)
		}
	}

	recs, err := a.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Session.ID != "a" || recs[1].Session.ID != "b" {
		t.Errorf("order = %s, %s", recs[0].Session.ID, recs[1].Session.ID)
	}
	if recs[0].Session.Report == nil || recs[0].Session.Report.ID != "r-a" {
		t.Errorf("report not round-tripped: %+v", recs[0].Session.Report)
	}
	if recs[1].Session.Error == "" {
		t.Error("error text not round-tripped")
	}
	if recs[0].ArchivedAt.IsZero() {
		t.Error("archivedAt should be set")
	}
}

func TestAppendRejectsUnfinished(t *testing.T) {
	t.Parallel()

	a := New(filepath.Join(t.TempDir(), "sessions.jsonl"))
	for _, st := range []lecture.Status{lecture.StatusRecording, lecture.StatusProcessing} {
		if err := a.Append(lecture.Session{ID: "x", Status: st}); err == nil {
			t.Errorf("Append(%s) should fail", st)
		}
	}
	if _, err := os.Stat(a.Path()); !os.IsNotExist(err) {
		t.Error("file should not be created for rejected sessions")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	a := New(filepath.Join(t.TempDir(), "nope.jsonl"))
	recs, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("records = %d, want 0", len(recs))
	}
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sessions.jsonl")
	a := New(path)
	if err := a.Append(finished("a", lecture.StatusCompleted)); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("{truncated\n\n")
	_ = f.Close()
	if err := a.Append(finished("b", lecture.StatusError)); err != nil {
		t.Fatal(err)
	}

	recs, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
}

func TestConsumeConcurrent(t *testing.T) {
	t.Parallel()

	a := New(filepath.Join(t.TempDir(), "sessions.jsonl"))
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Consume(finished(string(rune('a'+i)), lecture.StatusCompleted))
		}()
	}
	wg.Wait()

	recs, err := a.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(recs) != 20 {
		t.Errorf("records = %d, want 20", len(recs))
	}
}
