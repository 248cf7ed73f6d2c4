package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/aiprof/internal/analysis"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/internal/health"
	"github.com/MrWong99/aiprof/internal/kv"
	lec "github.com/MrWong99/aiprof/internal/lecture"
	"github.com/MrWong99/aiprof/internal/locale"
	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/pkg/audio"
	audiomock "github.com/MrWong99/aiprof/pkg/audio/mock"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// fakeAnalyzer records requests and returns canned results.
type fakeAnalyzer struct {
	mu       sync.Mutex
	contents []analysis.Content
	result   *analysis.Result
	explain  *analysis.Explanation
	err      error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, c analysis.Content) (*analysis.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contents = append(f.contents, c)
	return f.result, f.err
}

func (f *fakeAnalyzer) Explain(_ context.Context, _ analysis.ExplainRequest) (*analysis.Explanation, error) {
	return f.explain, f.err
}

type fixture struct {
	srv      *Server
	ctrl     *lec.Controller
	device   *audiomock.Device
	store    *kv.MemoryStore
	hub      *notify.Hub
	analyzer *fakeAnalyzer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		device:   &audiomock.Device{},
		store:    kv.NewMemoryStore(),
		hub:      notify.NewHub(),
		analyzer: &fakeAnalyzer{},
	}
	monitoring := false
	f.ctrl = lec.NewController(lec.ControllerConfig{
		Device:         f.device,
		Store:          f.store,
		Notifier:       f.hub,
		ValidateConfig: locale.ValidateConfig,
		Lecture: config.LectureConfig{
			ReportDelay:        -1,
			RealTimeMonitoring: &monitoring,
		},
		Metrics: metrics,
	})
	t.Cleanup(func() {
		_ = f.ctrl.Close()
		f.hub.Close()
	})
	f.srv = New(Config{
		Lectures: f.ctrl,
		Store:    f.store,
		Analyzer: f.analyzer,
		Events:   f.hub,
		Health:   health.New(health.StoreChecker(f.store)),
		Metrics:  metrics,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestLectureLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/lectures", `{"title":"Intro to Physics","subject":"Physics","language":"en","dialect":"US"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body)
	}
	started := decode[lecture.Session](t, rec)
	if started.Status != lecture.StatusRecording || started.Title != "Intro to Physics" {
		t.Fatalf("started = %+v", started)
	}

	rec = f.do(t, "POST", "/api/lectures", `{"title":"Second"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second start status = %d, want 409", rec.Code)
	}

	rec = f.do(t, "GET", "/api/lectures/current", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("current status = %d", rec.Code)
	}
	if cur := decode[currentResponse](t, rec); !cur.Recording || cur.Session.ID != started.ID {
		t.Errorf("current = %+v", cur)
	}

	rec = f.do(t, "POST", "/api/lectures/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if stop := decode[stopResponse](t, rec); !stop.Stopped || stop.Session == nil || stop.Session.Status != lecture.StatusProcessing {
		t.Errorf("stop = %+v", stop)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.ctrl.Wait(ctx); err != nil {
		t.Fatal(err)
	}

	rec = f.do(t, "GET", "/api/lectures/"+started.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	got := decode[lecture.Session](t, rec)
	if got.Status != lecture.StatusCompleted || got.Report == nil {
		t.Fatalf("persisted = %+v", got)
	}
	if got.Report.OverallQuality != lecture.QualityExcellent {
		t.Errorf("quality = %q, want excellent", got.Report.OverallQuality)
	}

	rec = f.do(t, "GET", "/api/lectures?status=completed", "")
	if list := decode[[]lecture.Session](t, rec); len(list) != 1 {
		t.Errorf("completed sessions = %d, want 1", len(list))
	}
	rec = f.do(t, "GET", "/api/lectures?status=recording", "")
	if list := decode[[]lecture.Session](t, rec); len(list) != 0 {
		t.Errorf("recording sessions = %d, want 0", len(list))
	}
}

func TestStopWhenIdle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "POST", "/api/lectures/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if stop := decode[stopResponse](t, rec); stop.Stopped || stop.Session != nil {
		t.Errorf("stop = %+v, want no-op", stop)
	}
}

func TestStartErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		deviceErr  error
		wantStatus int
		wantMsg    string
	}{
		{"unknown language", `{"language":"xx"}`, nil, http.StatusBadRequest, ""},
		{"unknown dialect", `{"language":"en","dialect":"NZ"}`, nil, http.StatusBadRequest, ""},
		{"unknown field", `{"titel":"typo"}`, nil, http.StatusBadRequest, ""},
		{"malformed", `{`, nil, http.StatusBadRequest, ""},
		{"mic denied", `{"title":"x"}`, audio.ErrPermissionDenied, http.StatusForbidden, "Failed to access microphone. Please check permissions."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			if tt.deviceErr != nil {
				f.device.SetError(tt.deviceErr)
			}
			rec := f.do(t, "POST", "/api/lectures", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body)
			}
			body := decode[errorBody](t, rec)
			if tt.wantMsg != "" && body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if _, ok := f.ctrl.Current(); ok {
				t.Error("no session should exist after a failed start")
			}
		})
	}
}

func TestCurrentAndGetNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/api/lectures/current", "/api/lectures/does-not-exist"} {
		if rec := f.do(t, "GET", path, ""); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestLanguages(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec := f.do(t, "GET", "/api/languages", "")
	langs := decode[[]locale.Language](t, rec)
	if len(langs) != len(locale.Languages) {
		t.Fatalf("languages = %d, want %d", len(langs), len(locale.Languages))
	}
}

func TestAnalyzeJSON(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.analyzer.result = &analysis.Result{Quiz: analysis.Quiz{ID: "quiz-1", Title: "T"}, FactChecks: []analysis.FactCheck{}}

	rec := f.do(t, "POST", "/api/analyze", `{"kind":"text","text":"Water boils at 100C.","learningMode":"visual"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if res := decode[analysis.Result](t, rec); res.Quiz.ID != "quiz-1" {
		t.Errorf("quiz = %+v", res.Quiz)
	}
	if got := f.analyzer.contents[0]; got.LearningMode != analysis.ModeVisual {
		t.Errorf("learning mode = %q", got.LearningMode)
	}
}

func TestAnalyzeUpload(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.analyzer.result = &analysis.Result{}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("Mitochondria are the powerhouse of the cell."))
	_ = mw.WriteField("subject", "Biology")
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/api/analyze", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	got := f.analyzer.contents[0]
	if got.Kind != analysis.KindFile || got.Title != "notes.txt" || got.Subject != "Biology" {
		t.Errorf("content = %+v", got)
	}
	if !strings.Contains(got.Text, "powerhouse") {
		t.Errorf("text = %q", got.Text)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		retryable  bool
	}{
		{"external", &lecture.ExternalServiceError{Operation: "quiz", Cause: errors.New("503")}, http.StatusBadGateway, true},
		{"empty", analysis.ErrEmptyContent, http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.analyzer.err = tt.err
			rec := f.do(t, "POST", "/api/analyze", `{"text":"x"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := decode[errorBody](t, rec)
			if body.Retryable != tt.retryable {
				t.Errorf("retryable = %v, want %v", body.Retryable, tt.retryable)
			}
			if tt.retryable && body.Error != "Failed to process content" {
				t.Errorf("error = %q", body.Error)
			}
		})
	}
}

func TestAnalyzerUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := lec.NewController(lec.ControllerConfig{Metrics: mustMetrics(t)})
	t.Cleanup(func() { _ = ctrl.Close() })
	s := New(Config{Lectures: ctrl, Metrics: mustMetrics(t)})
	for _, path := range []string{"/api/analyze", "/api/explain"} {
		req := httptest.NewRequest("POST", path, strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("POST %s = %d, want 503", path, rec.Code)
		}
	}
}

func TestExplain(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.analyzer.explain = &analysis.Explanation{ID: "e1", Topic: "entropy"}

	rec := f.do(t, "POST", "/api/explain", `{"topic":"entropy","subject":"physics","level":"graduate"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if exp := decode[analysis.Explanation](t, rec); exp.ID != "e1" {
		t.Errorf("explanation = %+v", exp)
	}
}

func TestHealthRoutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		if rec := f.do(t, "GET", path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, rec.Code)
		}
	}
}

func TestEventsStream(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	ts := httptest.NewServer(f.srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/api/lectures/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// Wait until the handler has subscribed.
	for f.hub.Subscribers() == 0 {
		select {
		case <-ctx.Done():
			t.Fatal("subscriber never registered")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if _, err := f.ctrl.Start(ctx, lecture.Config{Title: "Streamed"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var n notify.Notification
	if err := wsjson.Read(ctx, conn, &n); err != nil {
		t.Fatalf("read: %v", err)
	}
	if n.Kind != notify.KindRecordingStarted {
		t.Errorf("kind = %q, want %q", n.Kind, notify.KindRecordingStarted)
	}
	if n.AccessibleMessage == "" {
		t.Error("accessible message missing")
	}
}

func mustMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatal(err)
	}
	return m
}
