package tui

import (
	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// startedMsg carries the result of starting a recording.
type startedMsg struct {
	Session lecture.Session
	Err     error
}

// stoppedMsg carries the result of stopping a recording.
type stoppedMsg struct {
	Session lecture.Session
	Stopped bool
	Err     error
}

// notificationMsg wraps one notification from the hub.
type notificationMsg struct {
	Notification notify.Notification
}

// eventsClosedMsg is sent when the notification channel closes.
type eventsClosedMsg struct{}

// tickMsg refreshes the level meter and the elapsed time.
type tickMsg struct{}

// clearToastMsg hides the latest toast after a while.
type clearToastMsg struct{ seq int }
