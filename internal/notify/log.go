package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes every notification to a [slog.Logger]. Warnings and
// errors are logged at the matching level, everything else at info.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements [Notifier].
func (l LogNotifier) Notify(n Notification) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	attrs := []any{"kind", n.Kind}
	if n.SessionID != "" {
		attrs = append(attrs, "session_id", n.SessionID)
	}
	if n.Alert != nil {
		attrs = append(attrs, "alert_type", n.Alert.Type, "severity", n.Alert.Severity)
	}
	logger.Log(context.Background(), level, n.Message, attrs...)
}
