package alert

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// DefaultInterval is the tick period used when [Config.Interval] is zero.
const DefaultInterval = 5 * time.Second

// Sink stores an alert on its session and returns the alert as stored.
// It returns an error once the session no longer accepts alerts.
type Sink func(a lecture.Alert) (lecture.Alert, error)

// Config configures a [Generator].
type Config struct {
	// SessionID is used for logs and notifications.
	SessionID string

	// Source decides whether a tick produces an alert. Required.
	Source Source

	// Sink receives every produced alert. Required.
	Sink Sink

	// MarkNotified is called with the alert ID after the user was notified.
	// Optional.
	MarkNotified func(id string)

	// Notifier receives notifications for alerts whose severity warrants one.
	// Nil discards them.
	Notifier notify.Notifier

	// OnAlert is called after each stored alert. Optional; used for metrics.
	OnAlert func(lecture.Alert)

	// Interval is the tick period. Defaults to [DefaultInterval].
	Interval time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Generator runs the alert ticker for one recording session.
//
// All methods are safe for concurrent use. A Generator is started at most
// once; after [Generator.Stop] returns no further tick runs.
type Generator struct {
	cfg Config

	tickMu sync.Mutex

	startMu sync.Mutex
	started bool

	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
}

// NewGenerator creates a [Generator]. It does not start ticking until
// [Generator.Start] is called.
func NewGenerator(cfg Config) *Generator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Generator{
		cfg:    cfg,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine. The goroutine runs until
// [Generator.Stop] is called or ctx is cancelled. Calling Start more than
// once, or after Stop, has no effect.
func (g *Generator) Start(ctx context.Context) {
	g.startMu.Lock()
	defer g.startMu.Unlock()
	if g.started {
		return
	}
	select {
	case <-g.done:
		return
	default:
	}
	g.started = true
	go g.loop(ctx)
}

// Stop halts the ticker and waits for a tick in progress to finish. Safe to
// call multiple times and before Start.
func (g *Generator) Stop() {
	g.stopOnce.Do(func() {
		close(g.done)
	})

	g.startMu.Lock()
	started := g.started
	g.startMu.Unlock()
	if started {
		<-g.exited
	}

	// Wait out a manual Tick that raced with Stop.
	g.tickMu.Lock()
	g.tickMu.Unlock() //nolint:staticcheck // empty critical section is the barrier
}

// Tick runs one generation step synchronously: ask the source, store the
// alert, notify. It returns the sink's error when the session refused the
// alert. Tick is a no-op after Stop.
func (g *Generator) Tick(ctx context.Context) error {
	g.tickMu.Lock()
	defer g.tickMu.Unlock()

	select {
	case <-g.done:
		return nil
	default:
	}

	a, ok := g.cfg.Source.Next(ctx, g.cfg.Now())
	if !ok {
		return nil
	}

	stored, err := g.cfg.Sink(a)
	if err != nil {
		return err
	}

	if stored.Severity.Notifies() {
		g.cfg.Notifier.Notify(notify.AlertRaised(g.cfg.SessionID, stored))
		if g.cfg.MarkNotified != nil {
			g.cfg.MarkNotified(stored.ID)
		}
	}
	if g.cfg.OnAlert != nil {
		g.cfg.OnAlert(stored)
	}

	slog.Debug("alert raised",
		"session_id", g.cfg.SessionID,
		"alert_id", stored.ID,
		"type", stored.Type,
		"severity", stored.Severity,
	)
	return nil
}

func (g *Generator) loop(ctx context.Context) {
	defer close(g.exited)

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-g.done:
			return
		case <-ticker.C:
			if err := g.Tick(ctx); err != nil {
				if errors.Is(err, lecture.ErrInvalidTransition) || errors.Is(err, lecture.ErrAbandoned) {
					// The session left recording between ticks.
					return
				}
				slog.Warn("alert tick failed",
					"session_id", g.cfg.SessionID,
					"err", err,
				)
			}
		}
	}
}
