package notify

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/aiprof/pkg/lecture"
)

func TestAlertRaised_Message(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		alert      lecture.Alert
		want       string
	}{
		{
			name: "short correction",
			alert: lecture.Alert{
				Type:                lecture.AlertOutdatedInfo,
				Severity:            lecture.SeverityMedium,
				SuggestedCorrection: "Add context about limitations and assumptions",
			},
			want: "⚠️ OUTDATED INFO: Add context about limitations and assumptions...",
		},
		{
			name: "truncated at fifty characters",
			alert: lecture.Alert{
				Type:                lecture.AlertMisinformation,
				Severity:            lecture.SeverityHigh,
				SuggestedCorrection: "Please verify with latest peer-reviewed sources and data",
			},
			want: "⚠️ MISINFORMATION: Please verify with latest peer-reviewed sources an...",
		},
		{
			name: "bias label",
			alert: lecture.Alert{
				Type:                lecture.AlertBiasDetected,
				Severity:            lecture.SeverityHigh,
				SuggestedCorrection: "Include multiple perspectives on this topic",
			},
			want: "⚠️ BIAS DETECTED: Include multiple perspectives on this topic...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			n := AlertRaised("s1", tt.alert)
			if n.Message != tt.want {
				t.Errorf("Message = %q\nwant      %q", n.Message, tt.want)
			}
			if n.Kind != KindAlert || n.Level != LevelWarning {
				t.Errorf("Kind/Level = %s/%s", n.Kind, n.Level)
			}
			if n.Alert == nil || n.Alert.Type != tt.alert.Type {
				t.Error("notification should carry the alert")
			}
			if strings.Contains(n.AccessibleMessage, "⚠️") {
				t.Error("accessible message must not contain emoji")
			}
		})
	}
}

func TestAlertLabel_OnlyFirstHyphen(t *testing.T) {
	t.Parallel()
	if got := alertLabel("a-b-c"); got != "A B-C" {
		t.Errorf("alertLabel = %q, want %q", got, "A B-C")
	}
}

func TestSessionNotifications(t *testing.T) {
	t.Parallel()
	s := lecture.Session{ID: "s1", RealTimeMonitoring: true}

	started := RecordingStarted(s)
	if started.Message != "🎙️ Recording started with AI monitoring" {
		t.Errorf("started message = %q", started.Message)
	}
	if started.Text(true) != "Live lecture recording started with real-time fact-checking enabled" {
		t.Errorf("started accessible = %q", started.Text(true))
	}

	s.RealTimeMonitoring = false
	if got := RecordingStarted(s).Message; strings.Contains(got, "monitoring") {
		t.Errorf("unmonitored start should not mention monitoring: %q", got)
	}

	stopped := RecordingStopped(s)
	if stopped.Text(false) != "🔄 Processing lecture for fact-checking..." {
		t.Errorf("stopped message = %q", stopped.Text(false))
	}
	if stopped.Text(true) != "Recording stopped. Processing correction report." {
		t.Errorf("stopped accessible = %q", stopped.Text(true))
	}

	if ReportReady(s).Message != "📊 Correction report generated successfully!" {
		t.Errorf("report ready message = %q", ReportReady(s).Message)
	}
}

func TestFailed_UsesUserMessage(t *testing.T) {
	t.Parallel()
	n := Failed("", &lecture.DeviceAccessError{Cause: errors.New("denied")})
	if n.Message != "Failed to access microphone. Please check permissions." {
		t.Errorf("Message = %q", n.Message)
	}
	if n.Level != LevelError {
		t.Errorf("Level = %s, want error", n.Level)
	}
}

func TestHub_FanOut(t *testing.T) {
	t.Parallel()
	h := NewHub()
	a, cancelA := h.Subscribe(4)
	b, cancelB := h.Subscribe(4)
	defer cancelA()
	defer cancelB()

	h.Notify(Notification{Kind: KindReportReady})

	for i, ch := range []<-chan Notification{a, b} {
		select {
		case n := <-ch:
			if n.Kind != KindReportReady {
				t.Errorf("subscriber %d got %s", i, n.Kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}
}

func TestHub_DropsForSlowSubscriber(t *testing.T) {
	t.Parallel()
	var dropped atomic.Int32
	h := NewHub(WithDropHook(func() { dropped.Add(1) }))
	ch, cancel := h.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for range 5 {
			h.Notify(Notification{Kind: KindAlert})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full subscriber")
	}
	if got := dropped.Load(); got != 4 {
		t.Errorf("dropped = %d, want 4", got)
	}
	if len(ch) != 1 {
		t.Errorf("buffered = %d, want 1", len(ch))
	}
}

func TestHub_CancelAndClose(t *testing.T) {
	t.Parallel()
	h := NewHub()
	ch, cancel := h.Subscribe(0)
	if h.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", h.Subscribers())
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	if h.Subscribers() != 0 {
		t.Errorf("Subscribers = %d after cancel", h.Subscribers())
	}

	ch2, cancel2 := h.Subscribe(0)
	h.Close()
	h.Close()
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after hub Close")
	}
	cancel2()

	ch3, _ := h.Subscribe(0)
	if _, ok := <-ch3; ok {
		t.Error("subscribing to a closed hub should return a closed channel")
	}
}

func TestMulti(t *testing.T) {
	t.Parallel()
	var got []Kind
	m := Multi{
		Func(func(n Notification) { got = append(got, n.Kind) }),
		nil,
		Func(func(n Notification) { got = append(got, n.Kind) }),
	}
	m.Notify(Notification{Kind: KindError})
	if len(got) != 2 {
		t.Fatalf("got %d deliveries, want 2", len(got))
	}
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := LogNotifier{Logger: slog.New(slog.NewTextHandler(&buf, nil))}
	l.Notify(AlertRaised("s1", lecture.Alert{
		Type:                lecture.AlertMissingContext,
		Severity:            lecture.SeverityHigh,
		SuggestedCorrection: "Add context",
	}))

	out := buf.String()
	for _, want := range []string{"level=WARN", "session_id=s1", "alert_type=missing-context"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
