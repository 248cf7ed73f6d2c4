// Package lecture runs live lecture sessions: the [Machine] that owns one
// session's lifecycle and the [Controller] that ties a machine to the
// microphone, the alert generator and the report builder.
//
// Only one session records at a time. A stopped session is handed to a
// background report goroutine; once it reaches completed or error it is
// delivered to the configured [Consumer].
package lecture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aiprof/internal/alert"
	"github.com/MrWong99/aiprof/internal/config"
	"github.com/MrWong99/aiprof/internal/kv"
	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/internal/observe"
	"github.com/MrWong99/aiprof/internal/report"
	"github.com/MrWong99/aiprof/pkg/audio"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

// ErrClosed is returned by [Controller.Start] after [Controller.Close].
var ErrClosed = errors.New("lecture: controller closed")

// Consumer receives sessions that reached completed or error. It is called
// from a background goroutine.
type Consumer func(lecture.Session)

// ControllerConfig holds all dependencies for a [Controller].
type ControllerConfig struct {
	// Device is the microphone. Required; a nil device makes every Start
	// fail with a device access error.
	Device audio.Device

	// Constraints are passed to Device.Acquire.
	Constraints audio.Constraints

	// Lecture holds the tuning values. Zero fields take their defaults.
	Lecture config.LectureConfig

	// Store persists session snapshots. Nil disables persistence.
	Store kv.Store

	// Builder produces correction reports. When nil a [report.Simulated]
	// builder is created per session from the current tuning.
	Builder report.Builder

	// NewSource returns the alert source for a new session. When nil a
	// [alert.RandomSource] with the configured probability is used.
	NewSource func() alert.Source

	// Notifier receives user-facing notifications. Nil discards them.
	Notifier notify.Notifier

	// Consumer receives finished sessions. Optional.
	Consumer Consumer

	// OnChange is called with a snapshot on every state change and every
	// appended alert. It must return promptly. Optional.
	OnChange func(lecture.Session)

	// ValidateConfig checks user input before the microphone is requested.
	// Optional.
	ValidateConfig func(lecture.Config) error

	// Metrics records session metrics. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// NewID returns a fresh session ID. Defaults to uuid.NewString.
	NewID func() string
}

// Controller manages live lecture recordings. Only one session can record
// at a time (enforced by mutex). All exported methods are safe for
// concurrent use.
type Controller struct {
	mu sync.Mutex

	deps   ControllerConfig
	tuning config.LectureConfig

	// current is the most recently started session, recording or not.
	current *Machine
	stream  audio.Stream
	gen     *alert.Generator
	meter   chan struct{}
	level   atomic.Uint64

	// pending holds sessions whose report is being generated.
	pending map[string]*Machine
	wg      sync.WaitGroup

	// starting is set while Start waits for the microphone. bg tracks that
	// wait and the level meter; Close waits for both.
	starting bool
	bg       sync.WaitGroup

	baseCtx    context.Context
	baseCancel context.CancelFunc
	closed     bool
}

// NewController creates a Controller with the given dependencies.
func NewController(cfg ControllerConfig) *Controller {
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		deps:       cfg,
		tuning:     cfg.Lecture.WithDefaults(),
		pending:    make(map[string]*Machine),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// Reconfigure replaces the tuning values. They apply to sessions started,
// and reports generated, after the call.
func (c *Controller) Reconfigure(l config.LectureConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tuning = l.WithDefaults()
	slog.Info("lecture: tuning updated",
		"alert_interval", c.tuning.AlertInterval,
		"alert_probability", c.tuning.AlertProbability,
		"report_delay", c.tuning.ReportDelay,
		"report_timeout", c.tuning.ReportTimeout,
	)
}

// Start acquires the microphone and begins recording a new session.
//
// While another session records, or another Start is waiting for the
// microphone, it returns a *lecture.AlreadyRecordingError and leaves that
// session untouched. When the microphone cannot be acquired it returns a
// *lecture.DeviceAccessError and no session is created.
//
// The controller lock is not held while the device is acquired, so a
// pending permission prompt blocks neither [Controller.Current] nor
// [Controller.Close]. Close cancels the pending acquisition.
func (c *Controller) Start(ctx context.Context, in lecture.Config) (lecture.Session, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return lecture.Session{}, ErrClosed
	}
	if c.starting {
		c.mu.Unlock()
		return lecture.Session{}, &lecture.AlreadyRecordingError{}
	}
	if c.current != nil && c.current.Status() == lecture.StatusRecording {
		id := c.current.ID()
		c.mu.Unlock()
		return lecture.Session{}, &lecture.AlreadyRecordingError{SessionID: id}
	}

	in = in.Normalize()
	if c.deps.ValidateConfig != nil {
		if err := c.deps.ValidateConfig(in); err != nil {
			c.mu.Unlock()
			return lecture.Session{}, err
		}
	}
	c.starting = true
	c.bg.Add(1)
	c.mu.Unlock()
	defer c.bg.Done()

	stream, err := c.acquire(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.starting = false

	if c.closed {
		if stream != nil {
			_ = stream.Stop()
		}
		return lecture.Session{}, ErrClosed
	}
	if err != nil {
		derr := &lecture.DeviceAccessError{Cause: err}
		c.deps.Notifier.Notify(notify.Failed("", derr))
		slog.Warn("lecture: microphone unavailable", "err", err)
		return lecture.Session{}, derr
	}

	m := NewMachine(ctx, MachineConfig{
		ID:        c.deps.NewID(),
		Config:    in,
		StartTime: c.deps.Now(),
		Store:     c.deps.Store,
		OnChange:  c.deps.OnChange,
	})
	id := m.ID()

	var gen *alert.Generator
	if in.RealTimeMonitoring {
		gen = alert.NewGenerator(alert.Config{
			SessionID: id,
			Source:    c.newSource(),
			Sink: func(a lecture.Alert) (lecture.Alert, error) {
				return m.AppendAlert(c.baseCtx, a)
			},
			MarkNotified: func(alertID string) { m.MarkNotified(c.baseCtx, alertID) },
			Notifier:     c.deps.Notifier,
			OnAlert: func(a lecture.Alert) {
				c.deps.Metrics.RecordAlert(c.baseCtx, string(a.Type), string(a.Severity))
			},
			Interval: c.tuning.AlertInterval,
			Now:      c.deps.Now,
		})
		gen.Start(c.baseCtx)
	}

	c.current = m
	c.stream = stream
	c.gen = gen
	c.level.Store(0)
	c.meter = make(chan struct{})
	c.bg.Add(1)
	go c.meterLoop(m, stream, c.meter)

	c.deps.Metrics.ActiveSessions.Add(ctx, 1)

	snap := m.Snapshot()
	c.deps.Notifier.Notify(notify.RecordingStarted(snap))
	slog.Info("lecture: recording started",
		"session_id", id,
		"title", snap.Title,
		"subject", snap.Subject,
		"language", snap.Language,
		"monitoring", snap.RealTimeMonitoring,
		"tracks", len(stream.Tracks()),
	)
	return snap, nil
}

// Stop ends the recording session: it stops the alert generator, releases
// the microphone, moves the session to processing and launches report
// generation in the background.
//
// When nothing is recording Stop is a no-op and returns false with a nil
// error.
func (c *Controller) Stop(ctx context.Context) (lecture.Session, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil || c.current.Abandoned() || c.current.Status() != lecture.StatusRecording {
		return lecture.Session{}, false, nil
	}
	m := c.current
	id := m.ID()

	c.releaseLocked()

	alerts, err := m.BeginProcessing(ctx, c.deps.Now())
	if err != nil {
		return lecture.Session{}, false, fmt.Errorf("lecture: stop %s: %w", id, err)
	}
	c.deps.Metrics.ActiveSessions.Add(ctx, -1)

	snap := m.Snapshot()
	c.deps.Notifier.Notify(notify.RecordingStopped(snap))
	slog.Info("lecture: recording stopped",
		"session_id", id,
		"alerts", len(alerts),
		"duration", snap.Duration(c.deps.Now()),
	)

	builder := c.builderLocked()
	rctx, cancel := context.WithTimeout(c.baseCtx, c.tuning.ReportTimeout)
	c.pending[id] = m
	c.wg.Add(1)
	go c.generateReport(rctx, cancel, builder, m, alerts)

	return snap, true, nil
}

// Close tears the controller down. A recording session is released and
// abandoned; report generation in flight is cancelled and its session is
// abandoned too, so neither transitions again. Close waits for background
// work to finish and is safe to call more than once.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.bg.Wait()
		c.wg.Wait()
		return nil
	}
	c.closed = true

	if c.current != nil && c.current.Status() == lecture.StatusRecording {
		c.releaseLocked()
		c.current.Abandon()
		c.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("lecture: recording abandoned", "session_id", c.current.ID())
	}
	for id, m := range c.pending {
		m.Abandon()
		slog.Info("lecture: report generation abandoned", "session_id", id)
	}
	c.baseCancel()
	c.mu.Unlock()

	c.bg.Wait()
	c.wg.Wait()
	return nil
}

// Current returns a snapshot of the most recently started session and
// whether there is one.
func (c *Controller) Current() (lecture.Session, bool) {
	c.mu.Lock()
	m := c.current
	c.mu.Unlock()
	if m == nil {
		return lecture.Session{}, false
	}
	return m.Snapshot(), true
}

// Recording reports whether a session is currently recording.
func (c *Controller) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.Abandoned() && c.current.Status() == lecture.StatusRecording
}

// Level returns the RMS level of the most recent captured frame in [0, 1].
// It is 0 when nothing records.
func (c *Controller) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

// Wait blocks until every report generation in flight has finished or ctx
// is done.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// acquire requests the microphone under a context that is also cancelled
// when the controller closes.
func (c *Controller) acquire(ctx context.Context) (audio.Stream, error) {
	if c.deps.Device == nil {
		return nil, audio.ErrNoDevice
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.baseCtx, cancel)
	defer stop()

	stream, err := c.deps.Device.Acquire(ctx, c.deps.Constraints.WithDefaults())
	if err != nil {
		return nil, err
	}
	if stream == nil {
		return nil, audio.ErrNoDevice
	}
	return stream, nil
}

// releaseLocked stops the generator before anything else, then releases the
// microphone and waits for the level meter to drain.
func (c *Controller) releaseLocked() {
	id := c.current.ID()
	if c.gen != nil {
		c.gen.Stop()
		c.gen = nil
	}
	if c.stream != nil {
		if err := c.stream.Stop(); err != nil {
			slog.Warn("lecture: release microphone", "session_id", id, "err", err)
		}
		c.stream = nil
	}
	if c.meter != nil {
		<-c.meter
		c.meter = nil
	}
	c.level.Store(0)
}

// meterLoop tracks the level of every captured frame. When the frame channel
// closes without a Stop or Close releasing the stream, the device went away
// mid-recording and the session fails.
func (c *Controller) meterLoop(m *Machine, stream audio.Stream, done chan<- struct{}) {
	defer c.bg.Done()
	for f := range stream.Frames() {
		c.level.Store(math.Float64bits(audio.Level(f)))
	}
	close(done)
	c.deviceLost(m, stream)
}

func (c *Controller) deviceLost(m *Machine, stream audio.Stream) {
	c.mu.Lock()
	if c.closed || c.current != m || c.stream != stream {
		c.mu.Unlock()
		return
	}
	id := m.ID()
	c.releaseLocked()

	cause := &lecture.DeviceAccessError{Cause: audio.ErrDeviceLost}
	err := m.Fail(c.baseCtx, cause)
	c.mu.Unlock()
	if err != nil {
		slog.Warn("lecture: fail session after device loss", "session_id", id, "err", err)
		return
	}

	slog.Error("lecture: microphone lost while recording", "session_id", id)
	c.deps.Metrics.ActiveSessions.Add(c.baseCtx, -1)
	c.deps.Metrics.RecordSessionFinished(c.baseCtx, string(lecture.StatusError))
	c.deps.Notifier.Notify(notify.Failed(id, cause))
	if c.deps.Consumer != nil {
		c.deps.Consumer(m.Snapshot())
	}
}

func (c *Controller) newSource() alert.Source {
	if c.deps.NewSource != nil {
		return c.deps.NewSource()
	}
	return alert.NewRandomSource(alert.WithProbability(c.tuning.AlertProbability))
}

func (c *Controller) builderLocked() report.Builder {
	if c.deps.Builder != nil {
		return c.deps.Builder
	}
	delay := c.tuning.ReportDelay
	if delay == 0 {
		// WithDefaults maps a disabled delay to zero; the builder reads zero
		// as "use the default".
		delay = -1
	}
	return report.New(report.Config{Delay: delay, Now: c.deps.Now, Metrics: c.deps.Metrics})
}

func (c *Controller) generateReport(ctx context.Context, cancel context.CancelFunc, b report.Builder, m *Machine, alerts []lecture.Alert) {
	defer c.wg.Done()
	defer cancel()

	id := m.ID()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	r, err := b.Build(ctx, id, alerts)
	if m.Abandoned() {
		return
	}
	if err == nil {
		err = m.Complete(ctx, r)
	}

	if err != nil {
		var rge *lecture.ReportGenerationError
		if !errors.As(err, &rge) {
			err = &lecture.ReportGenerationError{SessionID: id, Cause: err}
		}
		if ferr := m.Fail(ctx, err); ferr != nil {
			// Abandoned while the report was being built.
			return
		}
		slog.Error("lecture: report generation failed", "session_id", id, "err", err)
		c.deps.Metrics.RecordSessionFinished(ctx, string(lecture.StatusError))
		c.deps.Notifier.Notify(notify.Failed(id, err))
	} else {
		slog.Info("lecture: report ready",
			"session_id", id,
			"total_issues", r.TotalIssues,
			"quality", r.OverallQuality,
		)
		c.deps.Metrics.RecordSessionFinished(ctx, string(lecture.StatusCompleted))
		c.deps.Notifier.Notify(notify.ReportReady(m.Snapshot()))
	}

	if c.deps.Consumer != nil {
		c.deps.Consumer(m.Snapshot())
	}
}
